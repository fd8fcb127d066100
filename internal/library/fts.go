package library

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/llehouerou/autoplay/internal/db"
)

// EnsureFTSIndex builds the search index when it is empty, which is the case
// for a database created before any scan.
func (l *Library) EnsureFTSIndex() error {
	var count int
	err := l.db.QueryRow(`SELECT COUNT(*) FROM library_search_fts`).Scan(&count)
	if err != nil {
		return err
	}
	if count == 0 {
		return l.RebuildFTSIndex()
	}
	return nil
}

// RebuildFTSIndex rebuilds the trigram index from library_tracks.
// Refresh calls it after a scan that changed anything.
func (l *Library) RebuildFTSIndex() error {
	return db.WithTx(l.db, func(tx *sql.Tx) error {
		if _, err := tx.Exec(`DELETE FROM library_search_fts`); err != nil {
			return fmt.Errorf("clear search index: %w", err)
		}
		_, err := tx.Exec(`
			INSERT INTO library_search_fts (search_text, track_id)
			SELECT
				artist || ' ' || title || ' ' || album
					|| CASE WHEN album_artist != artist THEN ' ' || album_artist ELSE '' END,
				id
			FROM library_tracks
		`)
		if err != nil {
			return fmt.Errorf("fill search index: %w", err)
		}
		return nil
	})
}

// escapeFTSQuery escapes a query string for FTS5 trigram search.
// Each word is wrapped in quotes for substring matching, with implicit AND between words.
func escapeFTSQuery(query string) string {
	words := strings.Fields(query)
	if len(words) == 0 {
		return `""`
	}

	quoted := make([]string, len(words))
	for i, word := range words {
		escaped := strings.ReplaceAll(word, `"`, `""`)
		quoted[i] = `"` + escaped + `"`
	}
	return strings.Join(quoted, " ")
}
