package radio

import (
	"database/sql"
	"time"

	"github.com/llehouerou/autoplay/internal/db"
	"github.com/llehouerou/autoplay/internal/lastfm"
)

// Cache manages the Last.fm data cache in SQLite.
// Keys are normalised so that spelling variants share entries.
type Cache struct {
	db      *sql.DB
	ttlDays int
}

// NewCache creates a new Cache instance.
func NewCache(db *sql.DB, ttlDays int) *Cache {
	return &Cache{
		db:      db,
		ttlDays: ttlDays,
	}
}

// isExpired checks if a cached entry is expired.
func (c *Cache) isExpired(fetchedAt int64) bool {
	expiry := time.Now().AddDate(0, 0, -c.ttlDays).Unix()
	return fetchedAt < expiry
}

// GetSimilarTracks returns cached similar tracks if not expired.
func (c *Cache) GetSimilarTracks(artist, track string) ([]lastfm.SimilarTrack, error) {
	rows, err := c.db.Query(`
		SELECT similar_artist, similar_track, mbid, match_score, playcount, duration_ms, fetched_at
		FROM lastfm_similar_tracks
		WHERE artist = ? AND track = ?
		ORDER BY match_score DESC
	`, normalizeString(artist), normalizeString(track))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []lastfm.SimilarTrack
	var fetchedAt int64
	hasData := false

	for rows.Next() {
		var s lastfm.SimilarTrack
		var durationMs int64
		if err := rows.Scan(&s.Artist, &s.Name, &s.MBID, &s.MatchScore, &s.Playcount, &durationMs, &fetchedAt); err != nil {
			return nil, err
		}
		hasData = true

		// All rows of one lookup share the same timestamp
		if c.isExpired(fetchedAt) {
			return nil, nil
		}

		s.Duration = time.Duration(durationMs) * time.Millisecond
		result = append(result, s)
	}

	if !hasData {
		return nil, nil
	}

	return result, rows.Err()
}

// SetSimilarTracks caches the similar tracks of artist - track.
func (c *Cache) SetSimilarTracks(artist, track string, similar []lastfm.SimilarTrack) error {
	artist, track = normalizeString(artist), normalizeString(track)
	return db.WithTx(c.db, func(tx *sql.Tx) error {
		if _, err := tx.Exec(`DELETE FROM lastfm_similar_tracks WHERE artist = ? AND track = ?`, artist, track); err != nil {
			return err
		}

		now := time.Now().Unix()
		stmt, err := tx.Prepare(`
			INSERT OR REPLACE INTO lastfm_similar_tracks
			(artist, track, similar_artist, similar_track, mbid, match_score, playcount, duration_ms, fetched_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, s := range similar {
			if _, err := stmt.Exec(artist, track, s.Artist, s.Name, s.MBID, s.MatchScore,
				s.Playcount, s.Duration.Milliseconds(), now); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetArtistTags returns cached top tags for an artist if not expired.
func (c *Cache) GetArtistTags(artist string) ([]lastfm.Tag, error) {
	rows, err := c.db.Query(`
		SELECT tag, weight, fetched_at
		FROM lastfm_artist_tags
		WHERE artist = ?
		ORDER BY weight DESC
	`, normalizeString(artist))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []lastfm.Tag
	var fetchedAt int64
	hasData := false

	for rows.Next() {
		var tag lastfm.Tag
		if err := rows.Scan(&tag.Name, &tag.Count, &fetchedAt); err != nil {
			return nil, err
		}
		hasData = true

		if c.isExpired(fetchedAt) {
			return nil, nil
		}

		// Artists without tags are stored as a single empty marker row
		if tag.Name != "" {
			result = append(result, tag)
		}
	}

	if !hasData {
		return nil, nil
	}
	if result == nil {
		result = []lastfm.Tag{}
	}

	return result, rows.Err()
}

// SetArtistTags caches the top tags of an artist. An empty list is cached
// too, so untagged artists are not looked up on every cycle.
func (c *Cache) SetArtistTags(artist string, tags []lastfm.Tag) error {
	artist = normalizeString(artist)
	return db.WithTx(c.db, func(tx *sql.Tx) error {
		if _, err := tx.Exec(`DELETE FROM lastfm_artist_tags WHERE artist = ?`, artist); err != nil {
			return err
		}

		now := time.Now().Unix()
		if len(tags) == 0 {
			_, err := tx.Exec(`INSERT INTO lastfm_artist_tags (artist, tag, weight, fetched_at) VALUES (?, '', 0, ?)`, artist, now)
			return err
		}

		stmt, err := tx.Prepare(`
			INSERT OR REPLACE INTO lastfm_artist_tags (artist, tag, weight, fetched_at)
			VALUES (?, ?, ?, ?)
		`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, t := range tags {
			if _, err := stmt.Exec(artist, t.Name, t.Count, now); err != nil {
				return err
			}
		}
		return nil
	})
}

// CleanExpired removes all expired cache entries.
func (c *Cache) CleanExpired() error {
	expiry := time.Now().AddDate(0, 0, -c.ttlDays).Unix()

	if _, err := c.db.Exec(`DELETE FROM lastfm_similar_tracks WHERE fetched_at < ?`, expiry); err != nil {
		return err
	}
	_, err := c.db.Exec(`DELETE FROM lastfm_artist_tags WHERE fetched_at < ?`, expiry)
	return err
}
