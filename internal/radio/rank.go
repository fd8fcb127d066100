package radio

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"slices"

	"github.com/llehouerou/autoplay/internal/logging"
	"github.com/llehouerou/autoplay/internal/media"
)

// ErrNoRecommendation is returned when no top-ranked candidate both resolves
// and reaches the minimum score.
var ErrNoRecommendation = errors.New("no recommendation")

// Jitter is the randomness source used to break near-ties.
// *rand.Rand satisfies it.
type Jitter interface {
	Float64() float64
}

type noJitter struct{}

func (noJitter) Float64() float64 { return 0 }

// globalJitter draws from the process-wide generator, which is safe for
// concurrent use by sessions sharing one engine.
type globalJitter struct{}

func (globalJitter) Float64() float64 { return rand.Float64() } //nolint:gosec // not security-sensitive

// NoJitter disables tie breaking, making ranking fully deterministic.
var NoJitter Jitter = noJitter{}

// Ranker orders scored candidates.
type Ranker struct {
	NearTie   float64 // candidates within this many points of the top are jittered
	MaxJitter float64
	Rand      Jitter
}

// NewRanker creates a ranker. A nil source means the process-wide generator.
// A *rand.Rand source must not be shared between goroutines.
func NewRanker(nearTie, maxJitter float64, src Jitter) *Ranker {
	if src == nil {
		src = globalJitter{}
	}
	return &Ranker{NearTie: nearTie, MaxJitter: maxJitter, Rand: src}
}

// Rank sorts candidates by descending score, then adds a bounded jitter to
// the near-tie set at the top and sorts again. Vetoed (zero) candidates are
// never jittered. The slice is sorted in place and returned.
func (r *Ranker) Rank(cands []Candidate) []Candidate {
	sortByScore(cands)
	if len(cands) < 2 || cands[0].Score <= 0 || r.MaxJitter <= 0 {
		return cands
	}

	floor := cands[0].Score - r.NearTie
	for i := range cands {
		c := &cands[i]
		if c.Score < floor || c.Score <= 0 {
			break
		}
		j := r.Rand.Float64() * r.MaxJitter
		if j <= 0 {
			continue
		}
		c.Score += j
		c.Jitter += j
		c.Trace = append(c.Trace, fmt.Sprintf("%+.1f near-tie jitter", j))
	}
	sortByScore(cands)
	return cands
}

// sortByScore sorts descending, keeping source priority order on equal scores.
func sortByScore(cands []Candidate) {
	slices.SortStableFunc(cands, func(a, b Candidate) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return cmp.Compare(a.Source.Priority(), b.Source.Priority())
	})
}

// Resolver turns a candidate into a concretely playable item.
type Resolver interface {
	Resolve(ctx context.Context, c *Candidate) (media.Item, error)
}

// Select walks the first topN ranked candidates and returns the first one
// that resolves and scores at least minScore. Jitter only reorders
// candidates: the threshold applies to the score before jitter.
func Select(ctx context.Context, ranked []Candidate, res Resolver, topN int, minScore float64) (Candidate, media.Item, error) {
	log := logging.With("radio")
	for i := range ranked {
		if i >= topN {
			break
		}
		c := &ranked[i]
		if c.BaseScore() < minScore {
			continue
		}
		if err := ctx.Err(); err != nil {
			return Candidate{}, media.Item{}, err
		}
		it, err := res.Resolve(ctx, c)
		if err != nil {
			log.Debug().Err(err).Str("candidate", c.Item.Label()).Msg("candidate did not resolve")
			continue
		}
		return *c, it, nil
	}
	return Candidate{}, media.Item{}, ErrNoRecommendation
}
