// internal/playback/state.go
package playback

// State is the lifecycle state of a session.
type State int

const (
	StateIdle State = iota
	StateLoading
	StatePlaying
	StatePaused
	StateStalled  // waiting for a fallback replacement
	StateDraining // waiting for a recommendation
	StateDisconnected
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateLoading:
		return "Loading"
	case StatePlaying:
		return "Playing"
	case StatePaused:
		return "Paused"
	case StateStalled:
		return "Stalled"
	case StateDraining:
		return "Draining"
	case StateDisconnected:
		return "Disconnected"
	default:
		return "Unknown"
	}
}

// IsActive returns true if an item is loaded (playing or paused).
func (s State) IsActive() bool {
	return s == StatePlaying || s == StatePaused
}

// HasItem returns true if the session holds a current item.
func (s State) HasItem() bool {
	switch s {
	case StateLoading, StatePlaying, StatePaused, StateStalled:
		return true
	default:
		return false
	}
}
