package radio

import (
	"context"
	"errors"
	"fmt"

	"github.com/llehouerou/autoplay/internal/media"
)

// ErrUnresolvable is returned when a candidate has no playable counterpart.
var ErrUnresolvable = errors.New("candidate not playable")

// DefaultMatchThreshold is the minimum artist and title similarity for a
// search hit to stand for a metadata-only candidate.
const DefaultMatchThreshold = 0.8

// BackendResolver resolves candidates against the playable media backend.
// Candidates fetched from that backend are already playable; the others
// (metadata-rich recommenders) are looked up by artist and title.
type BackendResolver struct {
	Backend   media.Backend
	Hint      media.SourceHint
	Threshold float64
}

// NewBackendResolver creates a resolver searching b with the default hint.
func NewBackendResolver(b media.Backend) *BackendResolver {
	return &BackendResolver{Backend: b, Threshold: DefaultMatchThreshold}
}

// Resolve returns the playable item for c, enriched with the candidate's
// genres and audio features when the backend lacks them.
func (r *BackendResolver) Resolve(ctx context.Context, c *Candidate) (media.Item, error) {
	if playableSource(c.Source) && c.Item.URI != "" {
		return finalize(c.Item.Clone(), c), nil
	}

	hits, err := r.Backend.Search(ctx, c.Item.SearchQuery(), r.Hint)
	if err != nil {
		return media.Item{}, fmt.Errorf("resolve %s: %w", c.Item.Label(), err)
	}
	it, ok := bestMatch(hits, c.Item.Artist, c.Item.Title, r.Threshold)
	if !ok {
		return media.Item{}, fmt.Errorf("%w: %s", ErrUnresolvable, c.Item.Label())
	}
	return finalize(it.Clone(), c), nil
}

// playableSource reports whether the source yields items from the playable backend.
func playableSource(s SourceTag) bool {
	switch s {
	case SourceMix, SourceSearch, SourceTopArtist:
		return true
	default:
		return false
	}
}

func finalize(it media.Item, c *Candidate) media.Item {
	if len(it.Genres) == 0 && len(c.Item.Genres) > 0 {
		it.Genres = append([]string(nil), c.Item.Genres...)
	}
	if it.Features == nil && c.Item.Features != nil {
		f := *c.Item.Features
		it.Features = &f
	}
	if it.Year == 0 {
		it.Year = c.Item.Year
	}
	if it.ISRC == "" {
		it.ISRC = c.Item.ISRC
	}
	if it.Popularity == 0 {
		it.Popularity = c.Popularity
	}
	it.Autoplay = true
	return it
}
