// Package library indexes local audio files in the state database and serves
// them as a media backend: free-text search, artist/genre mixes, ISRC lookup
// and resolution of "library:<id>" ids.
package library

import (
	"database/sql"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/llehouerou/autoplay/internal/media"
)

// IDPrefix qualifies library ids ("library:42").
const IDPrefix = "library"

type Track struct {
	ID          int64
	Path        string
	Mtime       int64
	Artist      string
	AlbumArtist string
	Album       string
	Title       string
	DiscNumber  int
	TrackNumber int
	Year        int
	Genre       string
	ISRC        string
	Duration    time.Duration
}

// ExternalID returns the backend-qualified id of the track.
func (t *Track) ExternalID() string {
	return IDPrefix + ":" + strconv.FormatInt(t.ID, 10)
}

// Item converts the track into a playable item.
func (t *Track) Item() media.Item {
	return media.Item{
		Title:      t.Title,
		Artist:     t.Artist,
		Album:      t.Album,
		ExternalID: t.ExternalID(),
		URI:        t.Path,
		Duration:   t.Duration,
		Source:     IDPrefix,
		Genres:     splitGenres(t.Genre),
		Year:       t.Year,
		ISRC:       t.ISRC,
	}
}

// splitGenres splits multi-valued genre tags ("Rock; Indie", "rock/pop").
func splitGenres(s string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ';' || r == '/' || r == ',' || r == '\x00'
	})
	var out []string
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}

type Library struct {
	db *sql.DB
}

func New(db *sql.DB) *Library {
	return &Library{db: db}
}

// executor is satisfied by *sql.DB and *sql.Tx.
type executor interface {
	Exec(query string, args ...any) (sql.Result, error)
}

type rowScanner interface {
	Scan(dest ...any) error
}

const trackColumns = `id, path, mtime, artist, album_artist, album, title,
	disc_number, track_number, year, genre, isrc, duration_ms`

func scanTrack(row rowScanner) (Track, error) {
	var t Track
	var disc, trackNum, year sql.NullInt64
	var genre, isrc sql.NullString
	var durationMs int64

	err := row.Scan(&t.ID, &t.Path, &t.Mtime, &t.Artist, &t.AlbumArtist, &t.Album, &t.Title,
		&disc, &trackNum, &year, &genre, &isrc, &durationMs)
	if err != nil {
		return Track{}, err
	}
	t.DiscNumber = int(disc.Int64)
	t.TrackNumber = int(trackNum.Int64)
	t.Year = int(year.Int64)
	t.Genre = genre.String
	t.ISRC = isrc.String
	t.Duration = time.Duration(durationMs) * time.Millisecond
	return t, nil
}

func scanTracks(rows *sql.Rows) ([]Track, error) {
	defer rows.Close()

	var tracks []Track
	for rows.Next() {
		t, err := scanTrack(rows)
		if err != nil {
			return nil, err
		}
		tracks = append(tracks, t)
	}
	return tracks, rows.Err()
}

func (l *Library) TrackCount() (int, error) {
	var count int
	err := l.db.QueryRow(`SELECT COUNT(*) FROM library_tracks`).Scan(&count)
	return count, err
}

// TrackByID returns a track by its ID, or nil when it is not indexed.
func (l *Library) TrackByID(id int64) (*Track, error) {
	t, err := scanTrack(l.db.QueryRow(`SELECT `+trackColumns+` FROM library_tracks WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil //nolint:nilnil // unknown id is not an error
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// TrackByPath returns a track by its file path, or nil when it is not indexed.
func (l *Library) TrackByPath(path string) (*Track, error) {
	t, err := scanTrack(l.db.QueryRow(`SELECT `+trackColumns+` FROM library_tracks WHERE path = ?`, path))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil //nolint:nilnil // unknown path is not an error
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// parseID extracts the numeric id of "library:<n>".
func parseID(id string) (int64, bool) {
	rest, ok := strings.CutPrefix(id, IDPrefix+":")
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseInt(rest, 10, 64)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}
