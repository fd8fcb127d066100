// Package radio picks the next item for an unattended session: it profiles
// the session history, collects candidates from ranked sources, scores them
// and selects the first playable one.
package radio

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/llehouerou/autoplay/internal/logging"
	"github.com/llehouerou/autoplay/internal/media"
)

// ErrNoCandidates is returned when every source failed or returned nothing.
// It is informational: the session simply goes idle.
var ErrNoCandidates = errors.New("no candidates")

// Config tunes ranking and selection.
type Config struct {
	Aggregator AggregatorConfig
	TopN       int     // candidates tried by the selection loop
	MinScore   float64 // lowest acceptable score
	NearTie    float64
	MaxJitter  float64
}

// DefaultConfig returns the stock tuning.
func DefaultConfig() Config {
	return Config{
		Aggregator: AggregatorConfig{
			MinCandidates: DefaultMinCandidates,
			Timeout:       DefaultAdapterTimeout,
		},
		TopN:      5,
		MinScore:  10,
		NearTie:   10,
		MaxJitter: 5,
	}
}

// Request is the input of one recommendation cycle.
type Request struct {
	History   []media.Item // oldest first
	Reference *media.Item  // item just played or playing, may be nil
	Skips     SkipPatterns
	Exclude   []media.Item // never recommended, e.g. items that proved unplayable
	Now       time.Time
}

// Result is the outcome of a successful cycle.
type Result struct {
	Item      media.Item // playable, marked Autoplay
	Candidate Candidate
	Ranked    int // number of candidates considered
}

// Engine runs recommendation cycles. It holds no per-session state and may
// be shared by every session.
type Engine struct {
	cfg      Config
	agg      *Aggregator
	ranker   *Ranker
	resolver Resolver
}

// NewEngine wires an engine. A nil jitter source means a seeded generator.
func NewEngine(cfg Config, resolver Resolver, jitter Jitter, adapters ...Adapter) *Engine {
	def := DefaultConfig()
	if cfg.TopN <= 0 {
		cfg.TopN = def.TopN
	}
	if cfg.MinScore <= 0 {
		cfg.MinScore = def.MinScore
	}
	return &Engine{
		cfg:      cfg,
		agg:      NewAggregator(cfg.Aggregator, adapters...),
		ranker:   NewRanker(cfg.NearTie, cfg.MaxJitter, jitter),
		resolver: resolver,
	}
}

// Recommend runs one cycle: profile, collect, score, rank and select.
// It returns ErrNoCandidates or ErrNoRecommendation when nothing qualifies.
func (e *Engine) Recommend(ctx context.Context, req Request) (Result, error) {
	ref := req.Reference
	if ref == nil && len(req.History) > 0 {
		ref = &req.History[len(req.History)-1]
	}
	if ref == nil {
		return Result{}, fmt.Errorf("%w: nothing to seed from", ErrNoCandidates)
	}

	profile := BuildProfile(req.History, ref)
	for i := range req.Exclude {
		profile.addRecent(&req.Exclude[i])
	}
	cands := e.agg.Collect(ctx, *ref, &profile)
	if len(cands) == 0 {
		return Result{}, ErrNoCandidates
	}

	now := req.Now
	if now.IsZero() {
		now = time.Now()
	}
	ScoreAll(cands, &profile, req.Skips, TimeOfDayAt(now))
	ranked := e.ranker.Rank(cands)

	c, it, err := Select(ctx, ranked, e.resolver, e.cfg.TopN, e.cfg.MinScore)
	if err != nil {
		return Result{}, err
	}

	logging.Debug().
		Str("item", it.Label()).
		Str("source", string(c.Source)).
		Float64("score", c.Score).
		Strs("trace", c.Trace).
		Int("candidates", len(ranked)).
		Msg("recommendation selected")

	return Result{Item: it, Candidate: c, Ranked: len(ranked)}, nil
}
