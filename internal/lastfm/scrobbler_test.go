package lastfm

import (
	"errors"
	"testing"
	"testing/synctest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/llehouerou/autoplay/internal/media"
	"github.com/llehouerou/autoplay/internal/state"
)

type fakeSubmitter struct {
	authed     bool
	failNext   int
	nowPlaying []ScrobbleTrack
	scrobbled  []ScrobbleTrack
}

func (f *fakeSubmitter) IsAuthenticated() bool { return f.authed }

func (f *fakeSubmitter) UpdateNowPlaying(t ScrobbleTrack) error {
	f.nowPlaying = append(f.nowPlaying, t)
	return nil
}

func (f *fakeSubmitter) Scrobble(t ScrobbleTrack) error {
	if f.failNext > 0 {
		f.failNext--
		return errors.New("service offline")
	}
	f.scrobbled = append(f.scrobbled, t)
	return nil
}

type fakePending struct {
	nextID  int64
	entries []state.PendingScrobble
}

func (f *fakePending) AddPendingScrobble(s state.PendingScrobble) error {
	f.nextID++
	s.ID = f.nextID
	f.entries = append(f.entries, s)
	return nil
}

func (f *fakePending) GetPendingScrobbles() ([]state.PendingScrobble, error) {
	return append([]state.PendingScrobble(nil), f.entries...), nil
}

func (f *fakePending) DeletePendingScrobble(id int64) error {
	for i := range f.entries {
		if f.entries[i].ID == id {
			f.entries = append(f.entries[:i], f.entries[i+1:]...)
			break
		}
	}
	return nil
}

func (f *fakePending) UpdatePendingScrobbleAttempt(id int64, msg string) error {
	for i := range f.entries {
		if f.entries[i].ID == id {
			f.entries[i].Attempts++
			f.entries[i].LastError = msg
		}
	}
	return nil
}

func song(id string, d time.Duration) media.Item {
	return media.Item{Title: "Song " + id, Artist: "Band", ExternalID: "library:" + id, Duration: d}
}

func TestShouldScrobble(t *testing.T) {
	tests := []struct {
		name     string
		duration time.Duration
		played   time.Duration
		want     bool
	}{
		{"too short track", 25 * time.Second, 25 * time.Second, false},
		{"half played", 3 * time.Minute, 90 * time.Second, true},
		{"less than half", 3 * time.Minute, 80 * time.Second, false},
		{"four minutes of long track", 20 * time.Minute, 4 * time.Minute, true},
		{"three minutes of long track", 20 * time.Minute, 3 * time.Minute, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ShouldScrobble(tt.duration, tt.played))
		})
	}
}

func TestScrobbler_NowPlayingAndEnded(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		api := &fakeSubmitter{authed: true}
		s := NewScrobbler(api, nil)

		it := song("1", 3*time.Minute)
		start := time.Now()
		s.NowPlaying(it)
		require.Len(t, api.nowPlaying, 1)

		time.Sleep(2 * time.Minute)
		assert.True(t, s.Ended(it, 2*time.Minute))
		require.Len(t, api.scrobbled, 1)
		assert.Equal(t, start, api.scrobbled[0].Timestamp)
		assert.Equal(t, "Band", api.scrobbled[0].Artist)
	})
}

func TestScrobbler_NotAuthenticated(t *testing.T) {
	api := &fakeSubmitter{}
	s := NewScrobbler(api, nil)

	it := song("1", 3*time.Minute)
	s.NowPlaying(it)
	assert.False(t, s.Ended(it, 3*time.Minute))
	assert.Empty(t, api.nowPlaying)
	assert.Empty(t, api.scrobbled)
}

func TestScrobbler_QueuesAndRetries(t *testing.T) {
	api := &fakeSubmitter{authed: true, failNext: 1}
	pending := &fakePending{}
	s := NewScrobbler(api, pending)

	it := song("1", 3*time.Minute)
	s.NowPlaying(it)
	assert.True(t, s.Ended(it, 3*time.Minute))
	require.Len(t, pending.entries, 1)
	assert.Empty(t, api.scrobbled)

	ok, failed, err := s.RetryPending()
	require.NoError(t, err)
	assert.Equal(t, 1, ok)
	assert.Zero(t, failed)
	assert.Empty(t, pending.entries)
	assert.Len(t, api.scrobbled, 1)
}

func TestScrobbler_RetryFailureCountsAttempt(t *testing.T) {
	api := &fakeSubmitter{authed: true, failNext: 2}
	pending := &fakePending{}
	s := NewScrobbler(api, pending)

	it := song("1", 3*time.Minute)
	s.Ended(it, 3*time.Minute)

	ok, failed, err := s.RetryPending()
	require.NoError(t, err)
	assert.Zero(t, ok)
	assert.Equal(t, 1, failed)
	require.Len(t, pending.entries, 1)
	assert.Equal(t, 1, pending.entries[0].Attempts)
	assert.Equal(t, "service offline", pending.entries[0].LastError)
}
