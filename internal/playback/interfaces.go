package playback

import (
	"context"
	"time"

	"github.com/llehouerou/autoplay/internal/fallback"
	"github.com/llehouerou/autoplay/internal/media"
	"github.com/llehouerou/autoplay/internal/radio"
)

// Transport plays items for a context. Load returns an error when the item
// is rejected outright; playback start, end and mid-play failures are
// reported later through a Reporter.
type Transport interface {
	Load(ctx context.Context, contextID string, it media.Item) error
	Pause(contextID string) error
	Resume(contextID string) error
	Stop(contextID string) error
}

// Positioner is implemented by transports that can report the true position.
// Sessions use it to resync interpolation on progress ticks.
type Positioner interface {
	Position(contextID string) (time.Duration, bool)
}

// Reporter receives transport callbacks. itemID is ItemID of the loaded item.
type Reporter interface {
	TrackStarted(contextID, itemID string)
	TrackEnded(contextID, itemID string)
	TrackFailed(contextID, itemID string, err error)
}

// Settings exposes per-context persisted settings.
type Settings interface {
	// StayConnected reports whether idle sessions must never disconnect.
	StayConnected(contextID string) bool
}

// Recommender runs one recommendation cycle.
type Recommender interface {
	Recommend(ctx context.Context, req radio.Request) (radio.Result, error)
}

// FallbackResolver finds a replacement for an item that failed to play.
type FallbackResolver interface {
	Resolve(ctx context.Context, a fallback.Attempt) (media.Item, error)
}

// Deps are the collaborators of a session. Transport is required.
type Deps struct {
	Transport Transport
	Engine    Recommender      // nil disables autoplay
	Fallback  FallbackResolver // nil makes every failure final
	Settings  Settings         // nil means never stay connected
	Backend   media.Backend    // resolves queries for Registry.Play
}

// ItemID identifies an item in transport callbacks.
func ItemID(it media.Item) string {
	if it.ExternalID != "" {
		return it.ExternalID
	}
	return it.URI
}
