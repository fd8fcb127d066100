package state

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// LastfmSession is the linked Last.fm account.
type LastfmSession struct {
	Username   string
	SessionKey string
	LinkedAt   time.Time
}

// PendingScrobble is a finished play Last.fm did not accept yet.
type PendingScrobble struct {
	ID            int64
	Artist        string
	Track         string
	Album         string
	DurationSecs  int
	Timestamp     time.Time // when the play started
	MBRecordingID string
	Attempts      int
	LastError     string
	CreatedAt     time.Time
}

const pendingColumns = `id, artist, track, album, duration_seconds, timestamp,
	mb_recording_id, attempts, last_error, created_at`

// GetLastfmSession returns the linked account, or nil when none is linked.
func (m *Manager) GetLastfmSession() (*LastfmSession, error) {
	var s LastfmSession
	var linkedAt int64
	err := m.db.QueryRow(`
		SELECT username, session_key, linked_at FROM lastfm_session WHERE id = 1
	`).Scan(&s.Username, &s.SessionKey, &linkedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil //nolint:nilnil // no linked account is not an error
	}
	if err != nil {
		return nil, fmt.Errorf("read lastfm session: %w", err)
	}
	s.LinkedAt = time.Unix(linkedAt, 0)
	return &s, nil
}

// SaveLastfmSession links an account, replacing any previous one.
func (m *Manager) SaveLastfmSession(username, sessionKey string) error {
	_, err := m.db.Exec(`
		INSERT INTO lastfm_session (id, username, session_key, linked_at)
		VALUES (1, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			username = excluded.username,
			session_key = excluded.session_key,
			linked_at = excluded.linked_at
	`, username, sessionKey, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("save lastfm session: %w", err)
	}
	return nil
}

// DeleteLastfmSession unlinks the account.
func (m *Manager) DeleteLastfmSession() error {
	if _, err := m.db.Exec(`DELETE FROM lastfm_session WHERE id = 1`); err != nil {
		return fmt.Errorf("delete lastfm session: %w", err)
	}
	return nil
}

// AddPendingScrobble queues a play for a later retry.
func (m *Manager) AddPendingScrobble(s PendingScrobble) error {
	_, err := m.db.Exec(`
		INSERT INTO lastfm_pending_scrobbles
			(artist, track, album, duration_seconds, timestamp, mb_recording_id, attempts, last_error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, 0, '', ?)
	`, s.Artist, s.Track, s.Album, s.DurationSecs, s.Timestamp.Unix(), s.MBRecordingID, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("queue scrobble %s - %s: %w", s.Artist, s.Track, err)
	}
	return nil
}

// GetPendingScrobbles returns the queued plays, oldest first.
func (m *Manager) GetPendingScrobbles() ([]PendingScrobble, error) {
	rows, err := m.db.Query(`SELECT ` + pendingColumns + `
		FROM lastfm_pending_scrobbles
		ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list pending scrobbles: %w", err)
	}
	defer rows.Close()

	var out []PendingScrobble
	for rows.Next() {
		s, err := scanPendingScrobble(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func scanPendingScrobble(rows *sql.Rows) (PendingScrobble, error) {
	var s PendingScrobble
	var album, mbid, lastErr sql.NullString
	var ts, created int64
	if err := rows.Scan(
		&s.ID, &s.Artist, &s.Track, &album, &s.DurationSecs, &ts,
		&mbid, &s.Attempts, &lastErr, &created,
	); err != nil {
		return PendingScrobble{}, fmt.Errorf("scan pending scrobble: %w", err)
	}
	s.Album = album.String
	s.MBRecordingID = mbid.String
	s.LastError = lastErr.String
	s.Timestamp = time.Unix(ts, 0)
	s.CreatedAt = time.Unix(created, 0)
	return s, nil
}

// DeletePendingScrobble removes a play once Last.fm accepted it.
func (m *Manager) DeletePendingScrobble(id int64) error {
	if _, err := m.db.Exec(`DELETE FROM lastfm_pending_scrobbles WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete pending scrobble %d: %w", id, err)
	}
	return nil
}

// UpdatePendingScrobbleAttempt records a failed retry.
func (m *Manager) UpdatePendingScrobbleAttempt(id int64, errMsg string) error {
	_, err := m.db.Exec(`
		UPDATE lastfm_pending_scrobbles
		SET attempts = attempts + 1, last_error = ?
		WHERE id = ?
	`, errMsg, id)
	if err != nil {
		return fmt.Errorf("update pending scrobble %d: %w", id, err)
	}
	return nil
}

// DeleteOldPendingScrobbles drops plays queued longer than maxAge ago.
func (m *Manager) DeleteOldPendingScrobbles(maxAge time.Duration) error {
	cutoff := time.Now().Add(-maxAge).Unix()
	if _, err := m.db.Exec(`DELETE FROM lastfm_pending_scrobbles WHERE created_at < ?`, cutoff); err != nil {
		return fmt.Errorf("prune pending scrobbles: %w", err)
	}
	return nil
}
