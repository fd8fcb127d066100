// Package playback runs one actor per playback context. The actor owns the
// session state machine (current item, queue, history, skips and timers)
// and processes transport callbacks, timers and commands one at a time.
package playback

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/llehouerou/autoplay/internal/fallback"
	"github.com/llehouerou/autoplay/internal/logging"
	"github.com/llehouerou/autoplay/internal/media"
	"github.com/llehouerou/autoplay/internal/radio"
)

var (
	// ErrLoadFailure wraps a transport rejection of a resolved item.
	ErrLoadFailure = errors.New("load failure")
	// ErrInvalidTransition is returned for commands not valid in the current state.
	ErrInvalidTransition = errors.New("invalid transition")
	// ErrSessionNotFound is returned by the registry for unknown contexts.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionClosed is returned for commands sent to a disconnected session.
	ErrSessionClosed = errors.New("session closed")
	// ErrSessionCrashed is returned for a command whose handling panicked.
	// The actor is restarted by its supervisor.
	ErrSessionCrashed = errors.New("session crashed")
)

const (
	inboxSize         = 32
	maxUnplayable     = 50
	defaultHistory    = 50
	defaultInactivity = 5 * time.Minute
	defaultProgress   = time.Second
)

// Config tunes a session.
type Config struct {
	HistorySize       int
	InactivityTimeout time.Duration
	ProgressInterval  time.Duration
}

// DefaultConfig returns the stock session tuning.
func DefaultConfig() Config {
	return Config{
		HistorySize:       defaultHistory,
		InactivityTimeout: defaultInactivity,
		ProgressInterval:  defaultProgress,
	}
}

type snapshot struct {
	state   State
	current *media.Item
	tracker Tracker
	queued  int
	played  int
}

// Session is the playback lifecycle owner for one context.
// Every exported method is safe for concurrent use.
type Session struct {
	id        string
	contextID string
	cfg       Config
	deps      Deps
	log       zerolog.Logger

	inbox     chan event
	done      chan struct{}
	closeOnce sync.Once
	events    hub
	parent    *hub
	onClose   func(*Session)

	// Owned by the actor goroutine.
	served     bool
	state      State
	current    *media.Item
	queue      []media.Item
	history    *radio.History
	skips      *radio.SkipStore
	pending    *media.Item // finished, pushed to history when the next item starts
	lastEnded  *media.Item
	unplayable []media.Item
	attempt    *fallback.Attempt
	attemptID  string
	tracker    Tracker
	idle       *time.Timer
	idleC      <-chan time.Time
	ticker     *time.Ticker
	tickC      <-chan time.Time
	gen        uint64
	opCancel   context.CancelFunc

	snapMu sync.RWMutex
	snap   snapshot
}

// NewSession creates an idle session. Run it with Serve.
func NewSession(contextID string, cfg Config, deps Deps) *Session {
	def := DefaultConfig()
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = def.HistorySize
	}
	if cfg.InactivityTimeout <= 0 {
		cfg.InactivityTimeout = def.InactivityTimeout
	}
	if cfg.ProgressInterval <= 0 {
		cfg.ProgressInterval = def.ProgressInterval
	}

	id := uuid.NewString()
	return &Session{
		id:        id,
		contextID: contextID,
		cfg:       cfg,
		deps:      deps,
		log: logging.With("playback").With().
			Str("context", contextID).
			Str("session", id).
			Logger(),
		inbox:   make(chan event, inboxSize),
		done:    make(chan struct{}),
		state:   StateIdle,
		history: radio.NewHistory(cfg.HistorySize),
		skips:   radio.NewSkipStore(),
	}
}

// ID returns the unique id of this session instance.
func (s *Session) ID() string { return s.id }

// ContextID returns the playback context the session belongs to.
func (s *Session) ContextID() string { return s.contextID }

// Done is closed once the session is disconnected.
func (s *Session) Done() <-chan struct{} { return s.done }

// Subscribe returns a subscription to this session's events.
func (s *Session) Subscribe() *Subscription { return s.events.subscribe() }

func (s *Session) String() string { return "session " + s.contextID }

// Enqueue appends items to the queue, starting playback when idle.
func (s *Session) Enqueue(items ...media.Item) error {
	r := newReply()
	return s.call(enqueueCmd{items: items, reply: r}, r)
}

// Skip ends the current item and records a skip for it.
func (s *Session) Skip(by string) error {
	r := newReply()
	return s.call(skipCmd{by: by, reply: r}, r)
}

// Pause pauses the current item.
func (s *Session) Pause() error {
	r := newReply()
	return s.call(pauseCmd{r}, r)
}

// Resume resumes a paused item.
func (s *Session) Resume() error {
	r := newReply()
	return s.call(resumeCmd{r}, r)
}

// Stop disconnects the session and waits for the actor to finish.
func (s *Session) Stop() {
	r := newReply()
	_ = s.call(stopCmd{r}, r)
	<-s.done
}

// Started reports that the transport began playing itemID.
func (s *Session) Started(itemID string) { s.post(trackStarted{id: itemID}) }

// Ended reports that itemID played to its end.
func (s *Session) Ended(itemID string) { s.post(trackEnded{id: itemID}) }

// Failed reports a playback error for itemID.
func (s *Session) Failed(itemID string, err error) { s.post(trackFailed{id: itemID, err: err}) }

// State returns the last published state.
func (s *Session) State() State {
	s.snapMu.RLock()
	defer s.snapMu.RUnlock()
	return s.snap.state
}

// CurrentItem returns a copy of the current item, or nil.
func (s *Session) CurrentItem() *media.Item {
	s.snapMu.RLock()
	defer s.snapMu.RUnlock()
	if s.snap.current == nil {
		return nil
	}
	it := s.snap.current.Clone()
	return &it
}

// Position returns the interpolated position of the current item.
// It is frozen while paused and zero when nothing is playing.
func (s *Session) Position() time.Duration {
	s.snapMu.RLock()
	defer s.snapMu.RUnlock()
	if !s.snap.state.IsActive() {
		return 0
	}
	return s.snap.tracker.Position(time.Now())
}

// QueueLen returns the number of items waiting after the current one.
func (s *Session) QueueLen() int {
	s.snapMu.RLock()
	defer s.snapMu.RUnlock()
	return s.snap.queued
}

// HistoryLen returns the number of finished items in the session history.
func (s *Session) HistoryLen() int {
	s.snapMu.RLock()
	defer s.snapMu.RUnlock()
	return s.snap.played
}

// call sends a command and waits for its outcome.
func (s *Session) call(cmd command, r reply) error {
	select {
	case s.inbox <- cmd:
	case <-s.done:
		return ErrSessionClosed
	}
	select {
	case err := <-r:
		return err
	case <-s.done:
		// the stop command is answered just before done closes
		select {
		case err := <-r:
			return err
		default:
			return ErrSessionClosed
		}
	}
}

// post delivers an event without waiting for it to be processed.
func (s *Session) post(ev event) {
	select {
	case s.inbox <- ev:
	case <-s.done:
	}
}

func (s *Session) publishSnapshot() {
	snap := snapshot{
		state:   s.state,
		tracker: s.tracker,
		queued:  len(s.queue),
		played:  s.history.Len(),
	}
	if s.current != nil {
		it := s.current.Clone()
		snap.current = &it
	}
	s.snapMu.Lock()
	s.snap = snap
	s.snapMu.Unlock()
}

func (s *Session) emit(e any) {
	s.events.publish(e)
	if s.parent != nil {
		s.parent.publish(e)
	}
}

// Serve runs the actor until the session disconnects or ctx ends.
// It implements suture.Service: after a panic the supervisor calls Serve
// again and the session resumes in Idle.
func (s *Session) Serve(ctx context.Context) error {
	select {
	case <-s.done:
		return errDoNotRestart
	default:
	}

	if s.served {
		s.log.Warn().Str("state", s.state.String()).Int("queued", len(s.queue)).Msg("session restarted")
		s.reset()
		if len(s.queue) > 0 {
			s.advance(ctx)
		} else {
			s.enterIdle(IdleRestarted)
		}
	} else {
		s.served = true
		s.scheduleInactivity()
	}
	s.publishSnapshot()

	for {
		select {
		case <-ctx.Done():
			s.disconnect(DisconnectShutdown)
			s.close()
			return nil
		case ev := <-s.inbox:
			err := s.dispatch(ctx, ev)
			s.publishSnapshot()
			if cmd, ok := ev.(command); ok {
				cmd.respond(err)
			}
		case <-s.idleC:
			s.idle, s.idleC = nil, nil
			s.onInactivity()
			s.publishSnapshot()
		case <-s.tickC:
			s.onProgress()
			s.publishSnapshot()
		}

		if s.state == StateDisconnected {
			s.close()
			return errDoNotRestart
		}
	}
}

// dispatch handles ev. If the handler panics, a waiting caller is answered
// with ErrSessionCrashed before the panic reaches the supervisor.
func (s *Session) dispatch(ctx context.Context, ev event) error {
	if cmd, ok := ev.(command); ok {
		defer func() {
			if r := recover(); r != nil {
				cmd.respond(fmt.Errorf("%w: %s: %v", ErrSessionCrashed, ev.name(), r))
				panic(r)
			}
		}()
	}
	return s.handle(ctx, ev)
}

func (s *Session) close() {
	s.closeOnce.Do(func() {
		if s.onClose != nil {
			s.onClose(s)
		}
		s.events.close()
		close(s.done)
	})
}
