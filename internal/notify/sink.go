package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/thejerf/suture/v4"

	"github.com/llehouerou/autoplay/internal/errmsg"
	"github.com/llehouerou/autoplay/internal/logging"
	"github.com/llehouerou/autoplay/internal/media"
	"github.com/llehouerou/autoplay/internal/playback"
)

const (
	nowPlayingTimeout = 5000
	upNextTimeout     = 4000
)

// SinkConfig selects which playback events raise a notification.
type SinkConfig struct {
	NowPlaying bool
	UpNext     bool
}

// Sink turns playback events into desktop notifications. Each context keeps
// one "now playing" notification that is replaced on every new item and
// by idle or unplayable messages.
type Sink struct {
	notifier Notifier
	sub      *playback.Subscription
	cfg      SinkConfig
	log      zerolog.Logger

	current map[string]uint32 // context id -> notification id
}

// NewSink creates a sink reading from sub. Run it with Serve.
func NewSink(n Notifier, sub *playback.Subscription, cfg SinkConfig) *Sink {
	return &Sink{
		notifier: n,
		sub:      sub,
		cfg:      cfg,
		log:      logging.With("notify"),
		current:  make(map[string]uint32),
	}
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
			s.itemStarted(e)
		case e := <-s.sub.RecommendationAdded:
			s.recommendationAdded(e)
		case e := <-s.sub.SessionIdle:
			s.idle(e)
		case e := <-s.sub.ItemUnplayable:
			s.problem(e.ContextID, errmsg.Unplayable(e))
		case e := <-s.sub.SessionDisconnected:
			s.disconnected(e)
		}
	}
}

func (s *Sink) String() string { return "notify sink" }

func (s *Sink) itemStarted(e playback.ItemStarted) {
	if !s.cfg.NowPlaying {
		return
	}
	n := Notification{
		Title:      e.Item.Title,
		Body:       nowPlayingBody(&e.Item),
		Icon:       FindAlbumArtPath(e.Item.URI),
		Timeout:    nowPlayingTimeout,
		ReplacesID: s.current[e.ContextID],
		Urgency:    UrgencyNormal,
	}
	id, err := s.notifier.Notify(n)
	if err != nil {
		s.log.Debug().Err(err).Str("context", e.ContextID).Msg("now playing notification failed")
		return
	}
	if id != 0 {
		s.current[e.ContextID] = id
	}
}

func (s *Sink) recommendationAdded(e playback.RecommendationAdded) {
	if !s.cfg.UpNext {
		return
	}
	_, err := s.notifier.Notify(Notification{
		Title:   "Up next",
		Body:    fmt.Sprintf("%s\nvia %s", e.Item.Label(), e.Source),
		Icon:    FindAlbumArtPath(e.Item.URI),
		Timeout: upNextTimeout,
		Urgency: UrgencyLow,
	})
	if err != nil {
		s.log.Debug().Err(err).Str("context", e.ContextID).Msg("up next notification failed")
	}
}

func (s *Sink) idle(e playback.SessionIdle) {
	if msg := errmsg.Idle(e.Reason); msg != "" {
		s.problem(e.ContextID, msg)
	}
}

// problem reports an informational outcome in place of the now playing
// notification of the context.
func (s *Sink) problem(contextID, msg string) {
	_, err := s.notifier.Notify(Notification{
		Title:      appName,
		Body:       msg,
		Timeout:    nowPlayingTimeout,
		ReplacesID: s.current[contextID],
		Urgency:    UrgencyNormal,
	})
	if err != nil {
		s.log.Debug().Err(err).Str("context", contextID).Msg("notification failed")
	}
}

func (s *Sink) disconnected(e playback.SessionDisconnected) {
	id, ok := s.current[e.ContextID]
	if !ok {
		return
	}
	delete(s.current, e.ContextID)
	if err := s.notifier.Close(id); err != nil {
		s.log.Debug().Err(err).Str("context", e.ContextID).Msg("close notification failed")
	}
}

func nowPlayingBody(it *media.Item) string {
	parts := make([]string, 0, 2)
	if it.Artist != "" {
		parts = append(parts, it.Artist)
	}
	if it.Album != "" {
		parts = append(parts, it.Album)
	}
	body := strings.Join(parts, "\n")
	if it.Autoplay {
		body += "\n(autoplay)"
	}
	return strings.TrimPrefix(body, "\n")
}
