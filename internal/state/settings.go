package state

import (
	"database/sql"
	"errors"
	"time"

	"github.com/llehouerou/autoplay/internal/logging"
)

// StayConnected reports whether the session of contextID should survive
// inactivity. Unknown contexts and read errors default to false.
func (m *Manager) StayConnected(contextID string) bool {
	var v bool
	err := m.db.QueryRow(`
		SELECT stay_connected FROM context_settings WHERE context_id = ?
	`, contextID).Scan(&v)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			logging.Warn().Err(err).Str("context", contextID).Msg("read stay-connected setting")
		}
		return false
	}
	return v
}

// SetStayConnected stores the stay-connected flag of contextID.
func (m *Manager) SetStayConnected(contextID string, on bool) error {
	_, err := m.db.Exec(`
		INSERT INTO context_settings (context_id, stay_connected, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(context_id) DO UPDATE SET
			stay_connected = excluded.stay_connected,
			updated_at = excluded.updated_at
	`, contextID, on, time.Now().Unix())
	return err
}
