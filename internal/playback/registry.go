package playback

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/thejerf/suture/v4"

	"github.com/llehouerou/autoplay/internal/logging"
	"github.com/llehouerou/autoplay/internal/media"
	"github.com/llehouerou/autoplay/internal/metrics"
)

var errDoNotRestart = suture.ErrDoNotRestart

// Verify Registry implements Reporter at compile time.
var _ Reporter = (*Registry)(nil)

// Registry owns the live sessions, one per context id, and supervises their
// actors. Sessions are created on first play and removed once disconnected.
type Registry struct {
	cfg  Config
	deps Deps
	log  zerolog.Logger
	sup  *suture.Supervisor

	mu       sync.Mutex
	sessions map[string]*Session

	events hub
}

// NewRegistry creates an empty registry. Run it with Serve.
func NewRegistry(cfg Config, deps Deps) *Registry {
	log := logging.With("registry")
	return &Registry{
		cfg:  cfg,
		deps: deps,
		log:  log,
		sup: suture.New("sessions", suture.Spec{
			EventHook: func(e suture.Event) {
				log.Warn().Str("event", e.String()).Msg("session supervisor")
			},
			FailureThreshold: 5,
			FailureBackoff:   time.Second,
			Timeout:          5 * time.Second,
		}),
		sessions: make(map[string]*Session),
	}
}

// Serve runs the session supervisor until ctx ends. Every session is
// disconnected on the way out.
func (r *Registry) Serve(ctx context.Context) error {
	err := r.sup.Serve(ctx)
	r.events.close()
	return err
}

func (r *Registry) String() string { return "session registry" }

// Subscribe returns a subscription to the events of every session.
func (r *Registry) Subscribe() *Subscription { return r.events.subscribe() }

// StartSession enqueues items in the session of contextID, creating it if
// needed.
func (r *Registry) StartSession(contextID string, items ...media.Item) (*Session, error) {
	for {
		s := r.getOrCreate(contextID)
		err := s.Enqueue(items...)
		if errors.Is(err, ErrSessionClosed) {
			// lost a race with a disconnect; the next lookup creates a new one
			r.remove(s)
			continue
		}
		return s, err
	}
}

// Play resolves query on the media backend and starts the first result.
func (r *Registry) Play(ctx context.Context, contextID, query string, hint media.SourceHint, requestedBy string) (media.Item, error) {
	if r.deps.Backend == nil {
		return media.Item{}, media.ErrNoBackend
	}
	items, err := r.deps.Backend.Search(ctx, query, hint)
	if err != nil {
		return media.Item{}, fmt.Errorf("search %q: %w", query, err)
	}
	if len(items) == 0 {
		return media.Item{}, fmt.Errorf("no results for %q", query)
	}
	it := items[0].Clone()
	it.RequestedBy = requestedBy
	if _, err := r.StartSession(contextID, it); err != nil {
		return media.Item{}, err
	}
	return it, nil
}

// Get returns the live session of contextID.
func (r *Registry) Get(contextID string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[contextID]
	return s, ok
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Stop disconnects the session of contextID.
func (r *Registry) Stop(contextID string) error {
	s, ok := r.Get(contextID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, contextID)
	}
	s.Stop()
	return nil
}

// Skip skips the current item of contextID.
func (r *Registry) Skip(contextID, by string) error {
	s, ok := r.Get(contextID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, contextID)
	}
	return s.Skip(by)
}

// CurrentItem returns the current item of contextID, or nil.
func (r *Registry) CurrentItem(contextID string) (*media.Item, error) {
	s, ok := r.Get(contextID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, contextID)
	}
	return s.CurrentItem(), nil
}

// Position returns the interpolated position in contextID.
func (r *Registry) Position(contextID string) (time.Duration, error) {
	s, ok := r.Get(contextID)
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrSessionNotFound, contextID)
	}
	return s.Position(), nil
}

// TrackStarted implements Reporter.
func (r *Registry) TrackStarted(contextID, itemID string) {
	if s, ok := r.lookup(contextID, "started"); ok {
		s.Started(itemID)
	}
}

// TrackEnded implements Reporter.
func (r *Registry) TrackEnded(contextID, itemID string) {
	if s, ok := r.lookup(contextID, "ended"); ok {
		s.Ended(itemID)
	}
}

// TrackFailed implements Reporter.
func (r *Registry) TrackFailed(contextID, itemID string, err error) {
	if s, ok := r.lookup(contextID, "failed"); ok {
		s.Failed(itemID, err)
	}
}

func (r *Registry) lookup(contextID, callback string) (*Session, bool) {
	s, ok := r.Get(contextID)
	if !ok {
		r.log.Debug().Str("context", contextID).Str("callback", callback).Msg("callback for unknown session")
	}
	return s, ok
}

func (r *Registry) getOrCreate(contextID string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[contextID]; ok {
		return s
	}

	s := NewSession(contextID, r.cfg, r.deps)
	s.parent = &r.events
	s.onClose = r.remove
	r.sessions[contextID] = s
	r.sup.Add(s)
	metrics.SessionsActive.Inc()
	r.log.Info().Str("context", contextID).Str("session", s.ID()).Msg("session created")
	return s
}

// remove forgets s if it is still the registered session of its context.
func (r *Registry) remove(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.sessions[s.ContextID()]; !ok || cur != s {
		return
	}
	delete(r.sessions, s.ContextID())
	metrics.SessionsActive.Dec()
}
