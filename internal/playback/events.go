package playback

import (
	"time"

	"github.com/llehouerou/autoplay/internal/media"
)

// EndReason tells why an item stopped being current.
type EndReason int

const (
	EndFinished EndReason = iota
	EndSkipped
	EndFailed
	EndStopped
)

func (r EndReason) String() string {
	switch r {
	case EndFinished:
		return "finished"
	case EndSkipped:
		return "skipped"
	case EndFailed:
		return "failed"
	case EndStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// IdleReason tells why a session entered Idle.
type IdleReason int

const (
	IdleQueueEmpty IdleReason = iota
	IdleNoCandidates
	IdleNoRecommendation
	IdleCycleFailed
	IdleRestarted
)

func (r IdleReason) String() string {
	switch r {
	case IdleQueueEmpty:
		return "queue empty"
	case IdleNoCandidates:
		return "no candidates"
	case IdleNoRecommendation:
		return "no recommendation"
	case IdleCycleFailed:
		return "recommendation failed"
	case IdleRestarted:
		return "restarted"
	default:
		return "unknown"
	}
}

// DisconnectReason tells why a session ended.
type DisconnectReason int

const (
	DisconnectStopped DisconnectReason = iota
	DisconnectInactive
	DisconnectShutdown
)

func (r DisconnectReason) String() string {
	switch r {
	case DisconnectStopped:
		return "stopped"
	case DisconnectInactive:
		return "inactivity"
	case DisconnectShutdown:
		return "shutdown"
	default:
		return "unknown"
	}
}

// StateChange is emitted on every state transition.
type StateChange struct {
	ContextID string
	Previous  State
	Current   State
}

// ItemStarted is emitted when the transport confirms playback of an item.
type ItemStarted struct {
	ContextID string
	Item      media.Item
}

// ItemEnded is emitted when the current item stops being current.
type ItemEnded struct {
	ContextID string
	Item      media.Item
	Reason    EndReason
	Played    time.Duration
}

// RecommendationAdded is emitted when a drain cycle enqueues an item.
type RecommendationAdded struct {
	ContextID string
	Item      media.Item
	Source    string
	Score     float64
	Trace     []string
}

// SessionIdle is emitted when a session enters Idle.
type SessionIdle struct {
	ContextID string
	Reason    IdleReason
}

// SessionDisconnected is emitted once, when a session ends.
type SessionDisconnected struct {
	ContextID string
	Reason    DisconnectReason
}

// ItemUnplayable is emitted when fallback gave up on an item.
type ItemUnplayable struct {
	ContextID string
	Item      media.Item
	Attempts  int
	Err       error
}

// PositionChange is emitted on every progress tick while playing.
type PositionChange struct {
	ContextID string
	Position  time.Duration
	Duration  time.Duration
}
