package media

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// SourceHint selects which backend a query is addressed to.
type SourceHint string

const (
	HintDefault SourceHint = ""
	HintLibrary SourceHint = "library"
	HintSpotify SourceHint = "spotify"
	HintMix     SourceHint = "mix"  // expansion of a reference item id into a radio/mix
	HintISRC    SourceHint = "isrc" // query is an ISRC code
)

// ErrNoBackend is returned when no backend is registered for a hint or id prefix.
var ErrNoBackend = errors.New("no backend for source")

// Backend is the media backend contract: text/URI queries in, normalised items out.
type Backend interface {
	Search(ctx context.Context, query string, hint SourceHint) ([]Item, error)
	// ResolveByID returns nil, nil when the id is unknown.
	ResolveByID(ctx context.Context, id string) (*Item, error)
}

// Router dispatches queries to registered backends by hint and ids by prefix.
// The first registered backend serves HintDefault.
type Router struct {
	mu       sync.RWMutex
	byHint   map[SourceHint]Backend
	byPrefix map[string]Backend
	first    Backend
}

// Verify Router implements Backend at compile time.
var _ Backend = (*Router)(nil)

// NewRouter creates an empty router.
func NewRouter() *Router {
	return &Router{
		byHint:   make(map[SourceHint]Backend),
		byPrefix: make(map[string]Backend),
	}
}

// Register routes hint queries and ids carrying idPrefix to b.
// An empty idPrefix means b does not resolve ids.
func (r *Router) Register(hint SourceHint, idPrefix string, b Backend) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.byHint[hint] = b
	if idPrefix != "" {
		r.byPrefix[idPrefix] = b
	}
	if r.first == nil {
		r.first = b
	}
}

// Has reports whether a backend serves hint.
func (r *Router) Has(hint SourceHint) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if hint == HintDefault {
		return r.first != nil
	}
	_, ok := r.byHint[hint]
	return ok
}

// Search forwards to the backend registered for hint.
func (r *Router) Search(ctx context.Context, query string, hint SourceHint) ([]Item, error) {
	r.mu.RLock()
	b, ok := r.byHint[hint]
	if !ok && hint == HintDefault {
		b, ok = r.first, r.first != nil
	}
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNoBackend, hint)
	}
	return b.Search(ctx, query, hint)
}

// ResolveByID forwards to the backend owning the id prefix.
func (r *Router) ResolveByID(ctx context.Context, id string) (*Item, error) {
	r.mu.RLock()
	b, ok := r.byPrefix[IDPrefix(id)]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: id %q", ErrNoBackend, id)
	}
	return b.ResolveByID(ctx, id)
}
