// Package fallback finds a replacement for an item the transport failed to
// play, by searching other backends with the item's own metadata.
package fallback

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/llehouerou/autoplay/internal/logging"
	"github.com/llehouerou/autoplay/internal/media"
	"github.com/llehouerou/autoplay/internal/metrics"
)

// ErrExhausted is returned once an item has used all its fallback attempts
// or no query produced a replacement. The item is then unplayable.
var ErrExhausted = errors.New("fallback exhausted")

// DefaultMaxAttempts caps fallback attempts per original item.
const DefaultMaxAttempts = 3

// Attempt tracks the fallback history of one originally queued item.
// It is a value: Next returns an updated copy and the item is never mutated.
type Attempt struct {
	Original media.Item
	Number   int                 // failures so far, 1 on the first failure
	Excluded map[string]struct{} // ids that already failed
}

// NewAttempt starts tracking after the first failure of original.
func NewAttempt(original media.Item) Attempt {
	a := Attempt{Original: original, Number: 1, Excluded: make(map[string]struct{})}
	if original.ExternalID != "" {
		a.Excluded[original.ExternalID] = struct{}{}
	}
	return a
}

// Next records the failure of replacement and returns the following attempt.
func (a Attempt) Next(replacement media.Item) Attempt {
	excluded := make(map[string]struct{}, len(a.Excluded)+1)
	for id := range a.Excluded {
		excluded[id] = struct{}{}
	}
	if replacement.ExternalID != "" {
		excluded[replacement.ExternalID] = struct{}{}
	}
	return Attempt{Original: a.Original, Number: a.Number + 1, Excluded: excluded}
}

// IsExcluded reports whether id already failed in this attempt chain.
func (a Attempt) IsExcluded(id string) bool {
	if id == "" {
		return false
	}
	_, ok := a.Excluded[id]
	return ok
}

// Query is one alternate lookup.
type Query struct {
	Hint media.SourceHint
	Text string
}

func (q Query) String() string {
	if q.Hint == media.HintDefault {
		return q.Text
	}
	return string(q.Hint) + ":" + q.Text
}

// BuildQueries lists the alternate lookups for it, in order: title and
// artist on both backends, then the identifier alone on both, then the ISRC.
// Duplicate (hint, text) pairs are dropped.
func BuildQueries(it media.Item, primary, secondary media.SourceHint) []Query {
	var out []Query
	seen := make(map[Query]bool)
	add := func(hint media.SourceHint, text string) {
		text = strings.TrimSpace(text)
		q := Query{Hint: hint, Text: text}
		if text == "" || seen[q] {
			return
		}
		seen[q] = true
		out = append(out, q)
	}

	titleArtist := it.Title
	if it.Artist != "" {
		titleArtist = it.Title + " " + it.Artist
	}
	add(primary, titleArtist)
	add(secondary, titleArtist)
	add(primary, it.ExternalID)
	add(secondary, it.ExternalID)
	add(media.HintISRC, it.ISRC)
	return out
}

// Config tunes the resolver.
type Config struct {
	MaxAttempts int
	Primary     media.SourceHint
	Secondary   media.SourceHint
}

// hinter is implemented by backends that know which hints they serve.
type hinter interface {
	Has(hint media.SourceHint) bool
}

// Resolver looks up replacements through a media backend.
type Resolver struct {
	backend media.Backend
	cfg     Config
}

// New creates a resolver.
func New(b media.Backend, cfg Config) *Resolver {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.Secondary == cfg.Primary {
		cfg.Secondary = media.HintSpotify
	}
	return &Resolver{backend: b, cfg: cfg}
}

// MaxAttempts returns the configured cap.
func (r *Resolver) MaxAttempts() int {
	return r.cfg.MaxAttempts
}

// Resolve returns a replacement for a.Original whose id differs from every
// id that already failed. Requester and autoplay flags carry over.
// It returns ErrExhausted when the cap is reached or nothing was found.
func (r *Resolver) Resolve(ctx context.Context, a Attempt) (media.Item, error) {
	log := logging.With("fallback")
	label := a.Original.Label()

	if a.Number > r.cfg.MaxAttempts {
		metrics.FallbackAttempts.WithLabelValues("exhausted").Inc()
		return media.Item{}, fmt.Errorf("%w: %s after %d attempts", ErrExhausted, label, r.cfg.MaxAttempts)
	}

	log.Info().Str("item", label).Msgf("%s fallback attempt", humanize.Ordinal(a.Number))

	hints, _ := r.backend.(hinter)
	for _, q := range BuildQueries(a.Original, r.cfg.Primary, r.cfg.Secondary) {
		if err := ctx.Err(); err != nil {
			return media.Item{}, err
		}
		if hints != nil && !hints.Has(q.Hint) {
			continue
		}

		results, err := r.backend.Search(ctx, q.Text, q.Hint)
		if err != nil {
			log.Debug().Err(err).Str("query", q.String()).Msg("fallback query failed")
			continue
		}
		for i := range results {
			it := &results[i]
			if it.ExternalID == "" || a.IsExcluded(it.ExternalID) {
				continue
			}
			replacement := it.Clone()
			replacement.RequestedBy = a.Original.RequestedBy
			replacement.Autoplay = a.Original.Autoplay
			metrics.FallbackAttempts.WithLabelValues("replaced").Inc()
			log.Info().Str("item", label).Str("replacement", replacement.Label()).
				Str("query", q.String()).Msg("fallback found replacement")
			return replacement, nil
		}
	}

	metrics.FallbackAttempts.WithLabelValues("exhausted").Inc()
	return media.Item{}, fmt.Errorf("%w: no replacement for %s", ErrExhausted, label)
}
