package playback

import "sync"

const eventBufferSize = 16

// Subscription provides event channels for a subscriber.
// Sends never block: events are dropped when a buffer is full.
type Subscription struct {
	StateChanged        <-chan StateChange
	ItemStarted         <-chan ItemStarted
	ItemEnded           <-chan ItemEnded
	RecommendationAdded <-chan RecommendationAdded
	SessionIdle         <-chan SessionIdle
	SessionDisconnected <-chan SessionDisconnected
	ItemUnplayable      <-chan ItemUnplayable
	PositionChanged     <-chan PositionChange
	Done                <-chan struct{}

	// Internal write channels
	stateCh        chan StateChange
	startedCh      chan ItemStarted
	endedCh        chan ItemEnded
	recommendCh    chan RecommendationAdded
	idleCh         chan SessionIdle
	disconnectedCh chan SessionDisconnected
	unplayableCh   chan ItemUnplayable
	positionCh     chan PositionChange
	doneCh         chan struct{}
}

// newSubscription creates a new subscription with buffered channels.
func newSubscription() *Subscription {
	s := &Subscription{
		stateCh:        make(chan StateChange, eventBufferSize),
		startedCh:      make(chan ItemStarted, eventBufferSize),
		endedCh:        make(chan ItemEnded, eventBufferSize),
		recommendCh:    make(chan RecommendationAdded, eventBufferSize),
		idleCh:         make(chan SessionIdle, eventBufferSize),
		disconnectedCh: make(chan SessionDisconnected, eventBufferSize),
		unplayableCh:   make(chan ItemUnplayable, eventBufferSize),
		positionCh:     make(chan PositionChange, eventBufferSize),
		doneCh:         make(chan struct{}),
	}
	s.StateChanged = s.stateCh
	s.ItemStarted = s.startedCh
	s.ItemEnded = s.endedCh
	s.RecommendationAdded = s.recommendCh
	s.SessionIdle = s.idleCh
	s.SessionDisconnected = s.disconnectedCh
	s.ItemUnplayable = s.unplayableCh
	s.PositionChanged = s.positionCh
	s.Done = s.doneCh
	return s
}

// close signals subscribers to stop by closing doneCh.
func (s *Subscription) close() {
	close(s.doneCh)
}

func send[T any](ch chan T, e T) {
	select {
	case ch <- e:
	default:
		// Drop if buffer full
	}
}

// deliver routes an event to the matching channel.
func (s *Subscription) deliver(e any) {
	switch e := e.(type) {
	case StateChange:
		send(s.stateCh, e)
	case ItemStarted:
		send(s.startedCh, e)
	case ItemEnded:
		send(s.endedCh, e)
	case RecommendationAdded:
		send(s.recommendCh, e)
	case SessionIdle:
		send(s.idleCh, e)
	case SessionDisconnected:
		send(s.disconnectedCh, e)
	case ItemUnplayable:
		send(s.unplayableCh, e)
	case PositionChange:
		send(s.positionCh, e)
	}
}

// hub fans events out to a set of subscriptions.
type hub struct {
	mu     sync.RWMutex
	subs   []*Subscription
	closed bool
}

func (h *hub) subscribe() *Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()
	sub := newSubscription()
	if h.closed {
		sub.close()
		return sub
	}
	h.subs = append(h.subs, sub)
	return sub
}

func (h *hub) publish(e any) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, sub := range h.subs {
		sub.deliver(e)
	}
}

func (h *hub) close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for _, sub := range h.subs {
		sub.close()
	}
	h.subs = nil
}
