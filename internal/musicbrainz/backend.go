package musicbrainz

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/llehouerou/autoplay/internal/logging"
	"github.com/llehouerou/autoplay/internal/media"
)

// ISRCLookup is what the ISRC backend needs from MusicBrainz.
type ISRCLookup interface {
	LookupISRC(ctx context.Context, isrc string) ([]Recording, error)
}

// ISRCBackend answers ISRC queries from a playable backend. It first asks
// the target for the ISRC directly, then searches it for every recording
// MusicBrainz associates with the code.
type ISRCBackend struct {
	lookup ISRCLookup
	target media.Backend
	log    zerolog.Logger
}

// Verify ISRCBackend implements media.Backend at compile time.
var _ media.Backend = (*ISRCBackend)(nil)

// NewISRCBackend creates an ISRC backend resolving into target.
func NewISRCBackend(lookup ISRCLookup, target media.Backend) *ISRCBackend {
	return &ISRCBackend{lookup: lookup, target: target, log: logging.With("musicbrainz")}
}

// Search implements media.Backend. The hint is ignored: every query is an ISRC.
func (b *ISRCBackend) Search(ctx context.Context, query string, _ media.SourceHint) ([]media.Item, error) {
	isrc := NormalizeISRC(query)
	if !ValidISRC(isrc) {
		return nil, nil
	}

	direct, err := b.target.Search(ctx, isrc, media.HintISRC)
	if err != nil {
		b.log.Debug().Err(err).Str("isrc", isrc).Msg("direct ISRC search failed")
	}
	if len(direct) > 0 {
		return direct, nil
	}

	recordings, err := b.lookup.LookupISRC(ctx, isrc)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup %s: %w", isrc, err)
	}

	seen := make(map[string]bool)
	var out []media.Item
	for _, rec := range recordings {
		items, err := b.target.Search(ctx, rec.SearchQuery(), media.HintDefault)
		if err != nil {
			b.log.Debug().Err(err).Str("recording", rec.ID).Msg("recording search failed")
			continue
		}
		for _, it := range items {
			if seen[it.ExternalID] {
				continue
			}
			seen[it.ExternalID] = true
			if it.ISRC == "" {
				it.ISRC = isrc
			}
			out = append(out, it)
		}
	}
	return out, nil
}

// ResolveByID implements media.Backend. ISRC results carry the target's ids.
func (b *ISRCBackend) ResolveByID(ctx context.Context, id string) (*media.Item, error) {
	return b.target.ResolveByID(ctx, id)
}
