package state

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	db := setupTestDB(t)
	t.Cleanup(func() { db.Close() })
	return &Manager{db: db}
}

func TestLastfmSession_Lifecycle(t *testing.T) {
	m := newTestManager(t)

	s, err := m.GetLastfmSession()
	require.NoError(t, err)
	assert.Nil(t, s, "no account linked yet")

	before := time.Now().Add(-time.Second)
	require.NoError(t, m.SaveLastfmSession("alice", "key-1"))
	require.NoError(t, m.SaveLastfmSession("bob", "key-2"))

	s, err = m.GetLastfmSession()
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.Equal(t, "bob", s.Username, "a new link replaces the previous one")
	assert.Equal(t, "key-2", s.SessionKey)
	assert.True(t, s.LinkedAt.After(before))

	require.NoError(t, m.DeleteLastfmSession())
	s, err = m.GetLastfmSession()
	require.NoError(t, err)
	assert.Nil(t, s)

	assert.NoError(t, m.DeleteLastfmSession(), "unlinking twice is fine")
}

func TestPendingScrobbles_Queue(t *testing.T) {
	m := newTestManager(t)

	played := time.Unix(1_700_000_000, 0)
	require.NoError(t, m.AddPendingScrobble(PendingScrobble{
		Artist:       "Slowdive",
		Track:        "Alison",
		Album:        "Souvlaki",
		DurationSecs: 230,
		Timestamp:    played,
	}))
	require.NoError(t, m.AddPendingScrobble(PendingScrobble{
		Artist:    "Pixies",
		Track:     "Hey",
		Timestamp: played.Add(4 * time.Minute),
	}))

	pending, err := m.GetPendingScrobbles()
	require.NoError(t, err)
	require.Len(t, pending, 2)

	first := pending[0]
	assert.Equal(t, "Slowdive", first.Artist)
	assert.Equal(t, "Souvlaki", first.Album)
	assert.Equal(t, 230, first.DurationSecs)
	assert.True(t, first.Timestamp.Equal(played))
	assert.Zero(t, first.Attempts)
	assert.Empty(t, first.LastError)
	assert.Equal(t, "Pixies", pending[1].Artist, "oldest first")

	require.NoError(t, m.UpdatePendingScrobbleAttempt(first.ID, "service offline"))
	require.NoError(t, m.UpdatePendingScrobbleAttempt(first.ID, "rate limited"))
	require.NoError(t, m.DeletePendingScrobble(pending[1].ID))

	pending, err = m.GetPendingScrobbles()
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, 2, pending[0].Attempts)
	assert.Equal(t, "rate limited", pending[0].LastError)
}

func TestDeleteOldPendingScrobbles(t *testing.T) {
	m := newTestManager(t)

	require.NoError(t, m.AddPendingScrobble(PendingScrobble{Artist: "Old", Track: "Song", Timestamp: time.Now()}))
	_, err := m.db.Exec(`UPDATE lastfm_pending_scrobbles SET created_at = ?`, time.Now().Add(-48*time.Hour).Unix())
	require.NoError(t, err)
	require.NoError(t, m.AddPendingScrobble(PendingScrobble{Artist: "New", Track: "Song", Timestamp: time.Now()}))

	require.NoError(t, m.DeleteOldPendingScrobbles(24*time.Hour))

	pending, err := m.GetPendingScrobbles()
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "New", pending[0].Artist)
}
