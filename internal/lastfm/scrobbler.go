package lastfm

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/llehouerou/autoplay/internal/logging"
	"github.com/llehouerou/autoplay/internal/media"
	"github.com/llehouerou/autoplay/internal/state"
)

const (
	// minScrobbleDuration is the shortest track Last.fm accepts.
	minScrobbleDuration = 30 * time.Second
	// maxScrobbleWait caps the listening time required before scrobbling.
	maxScrobbleWait = 4 * time.Minute
	// maxPendingAttempts drops a queued scrobble after this many failures.
	maxPendingAttempts = 10
	// RetryInterval is how often queued scrobbles are resubmitted.
	RetryInterval = 5 * time.Minute
)

// Submitter is the part of Client the scrobbler needs.
type Submitter interface {
	IsAuthenticated() bool
	UpdateNowPlaying(track ScrobbleTrack) error
	Scrobble(track ScrobbleTrack) error
}

// PendingStore persists scrobbles that could not be submitted.
type PendingStore interface {
	AddPendingScrobble(s state.PendingScrobble) error
	GetPendingScrobbles() ([]state.PendingScrobble, error)
	DeletePendingScrobble(id int64) error
	UpdatePendingScrobbleAttempt(id int64, errMsg string) error
}

// Scrobbler turns item-started and item-ended events into now-playing
// updates and scrobbles. Failed scrobbles are queued and retried by Serve.
type Scrobbler struct {
	api     Submitter
	pending PendingStore
	now     func() time.Time

	mu      sync.Mutex
	started map[string]time.Time // external id -> playback start
}

// NewScrobbler creates a scrobbler. pending may be nil to drop failures.
func NewScrobbler(api Submitter, pending PendingStore) *Scrobbler {
	return &Scrobbler{
		api:     api,
		pending: pending,
		now:     time.Now,
		started: make(map[string]time.Time),
	}
}

// ShouldScrobble applies the Last.fm rule: the track is longer than 30s and
// was played for half its duration or four minutes, whichever comes first.
func ShouldScrobble(duration, played time.Duration) bool {
	if duration <= minScrobbleDuration {
		return false
	}
	return played >= min(duration/2, maxScrobbleWait)
}

func toScrobble(it *media.Item, at time.Time) ScrobbleTrack {
	return ScrobbleTrack{
		Artist:    it.Artist,
		Track:     it.Title,
		Album:     it.Album,
		Duration:  it.Duration,
		Timestamp: at,
	}
}

// NowPlaying records the start of it and notifies Last.fm.
func (s *Scrobbler) NowPlaying(it media.Item) {
	at := s.now()
	s.mu.Lock()
	s.started[it.ExternalID] = at
	s.mu.Unlock()

	if !s.api.IsAuthenticated() || it.IsStream {
		return
	}
	if err := s.api.UpdateNowPlaying(toScrobble(&it, at)); err != nil {
		logging.Debug().Err(err).Str("item", it.Label()).Msg("lastfm now playing failed")
	}
}

// Ended scrobbles it if it was listened to long enough.
// It reports whether a scrobble was submitted or queued.
func (s *Scrobbler) Ended(it media.Item, played time.Duration) bool {
	s.mu.Lock()
	at, ok := s.started[it.ExternalID]
	delete(s.started, it.ExternalID)
	s.mu.Unlock()

	if !ok {
		at = s.now().Add(-played)
	}
	if it.IsStream || !ShouldScrobble(it.Duration, played) || !s.api.IsAuthenticated() {
		return false
	}

	track := toScrobble(&it, at)
	err := s.api.Scrobble(track)
	if err == nil {
		return true
	}
	logging.Warn().Err(err).Str("item", it.Label()).Msg("scrobble failed, queueing")
	if s.pending == nil {
		return false
	}
	if err := s.pending.AddPendingScrobble(state.PendingScrobble{
		Artist:       track.Artist,
		Track:        track.Track,
		Album:        track.Album,
		DurationSecs: int(track.Duration.Seconds()),
		Timestamp:    track.Timestamp,
	}); err != nil {
		logging.Error().Err(err).Msg("queue pending scrobble")
		return false
	}
	return true
}

// RetryPending resubmits queued scrobbles.
func (s *Scrobbler) RetryPending() (succeeded, failed int, err error) {
	if s.pending == nil || !s.api.IsAuthenticated() {
		return 0, 0, nil
	}
	pending, err := s.pending.GetPendingScrobbles()
	if err != nil {
		return 0, 0, err
	}

	for i := range pending {
		p := &pending[i]
		if p.Attempts >= maxPendingAttempts {
			continue
		}

		track := ScrobbleTrack{
			Artist:        p.Artist,
			Track:         p.Track,
			Album:         p.Album,
			Duration:      time.Duration(p.DurationSecs) * time.Second,
			Timestamp:     p.Timestamp,
			MBRecordingID: p.MBRecordingID,
		}
		if serr := s.api.Scrobble(track); serr != nil {
			failed++
			err = errors.Join(err, s.pending.UpdatePendingScrobbleAttempt(p.ID, serr.Error()))
			continue
		}
		succeeded++
		err = errors.Join(err, s.pending.DeletePendingScrobble(p.ID))
	}
	return succeeded, failed, err
}

// Serve retries pending scrobbles every RetryInterval until ctx is done.
func (s *Scrobbler) Serve(ctx context.Context) error {
	ticker := time.NewTicker(RetryInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			ok, failed, err := s.RetryPending()
			if err != nil {
				logging.Warn().Err(err).Msg("retry pending scrobbles")
			}
			if ok+failed > 0 {
				logging.Info().Int("succeeded", ok).Int("failed", failed).Msg("pending scrobbles retried")
			}
		}
	}
}

// String names the service for the supervisor.
func (s *Scrobbler) String() string { return "lastfm-scrobbler" }
