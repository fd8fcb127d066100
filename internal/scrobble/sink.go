// Package scrobble forwards playback events to a scrobbling service.
package scrobble

import (
	"context"
	"time"

	"github.com/thejerf/suture/v4"

	"github.com/llehouerou/autoplay/internal/logging"
	"github.com/llehouerou/autoplay/internal/media"
	"github.com/llehouerou/autoplay/internal/playback"
)

// Scrobbler is implemented by lastfm.Scrobbler.
type Scrobbler interface {
	NowPlaying(it media.Item)
	Ended(it media.Item, played time.Duration) bool
}

// Sink reports started items as now playing and finished items as plays.
// Skipped, failed and stopped items are never scrobbled.
type Sink struct {
	scrobbler Scrobbler
	sub       *playback.Subscription
}

// NewSink creates a sink reading from sub. Run it with Serve.
func NewSink(s Scrobbler, sub *playback.Subscription) *Sink {
	return &Sink{scrobbler: s, sub: sub}
}

// Serve consumes events until ctx ends or the subscription closes.
func (s *Sink) Serve(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.sub.Done:
			return suture.ErrDoNotRestart
		case e := <-s.sub.ItemStarted:
			s.scrobbler.NowPlaying(e.Item)
		case e := <-s.sub.ItemEnded:
			if e.Reason != playback.EndFinished {
				continue
			}
			if s.scrobbler.Ended(e.Item, e.Played) {
				logging.Debug().
					Str("context", e.ContextID).
					Str("item", e.Item.Label()).
					Msg("scrobbled")
			}
		}
	}
}

func (s *Sink) String() string { return "scrobble sink" }
