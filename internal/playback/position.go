package playback

import "time"

// Tracker interpolates the playback position between transport reports.
// It is a value type so that snapshots can copy it.
type Tracker struct {
	known    time.Duration // position at the last sync
	at       time.Time     // when known was recorded
	duration time.Duration // 0 for streams and unknown lengths
	paused   bool
}

// Reset starts tracking a new item at position zero.
func (t *Tracker) Reset(duration time.Duration, now time.Time) {
	*t = Tracker{at: now, duration: duration}
}

// Sync records a position reported by the transport.
func (t *Tracker) Sync(pos time.Duration, now time.Time) {
	t.known = t.clamp(pos)
	t.at = now
}

// Pause freezes the position.
func (t *Tracker) Pause(now time.Time) {
	if t.paused {
		return
	}
	t.known = t.Position(now)
	t.at = now
	t.paused = true
}

// Resume restarts interpolation from the frozen position.
func (t *Tracker) Resume(now time.Time) {
	if !t.paused {
		return
	}
	t.at = now
	t.paused = false
}

// Position returns the interpolated position, clamped to the duration.
func (t Tracker) Position(now time.Time) time.Duration {
	if t.paused || t.at.IsZero() {
		return t.known
	}
	elapsed := now.Sub(t.at)
	if elapsed < 0 {
		elapsed = 0
	}
	return t.clamp(t.known + elapsed)
}

// Duration returns the length of the tracked item.
func (t Tracker) Duration() time.Duration {
	return t.duration
}

func (t Tracker) clamp(pos time.Duration) time.Duration {
	if pos < 0 {
		return 0
	}
	if t.duration > 0 && pos > t.duration {
		return t.duration
	}
	return pos
}
