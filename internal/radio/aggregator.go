package radio

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"

	"github.com/llehouerou/autoplay/internal/logging"
	"github.com/llehouerou/autoplay/internal/media"
	"github.com/llehouerou/autoplay/internal/metrics"
)

// ErrAdapterUnavailable marks a source that failed, timed out or is tripped
// for the current cycle.
var ErrAdapterUnavailable = errors.New("adapter unavailable")

const (
	DefaultMinCandidates  = 5
	DefaultAdapterTimeout = 4 * time.Second

	breakerFailures = 5
	breakerCooldown = time.Minute
)

// AggregatorConfig tunes candidate collection.
type AggregatorConfig struct {
	MinCandidates int           // later adapters are skipped once reached
	Timeout       time.Duration // per adapter call
}

type source struct {
	adapter Adapter
	breaker *gobreaker.CircuitBreaker[[]Candidate]
}

// Aggregator queries adapters sequentially in priority order.
type Aggregator struct {
	cfg     AggregatorConfig
	sources []source
	log     zerolog.Logger
}

// NewAggregator creates an aggregator over adapters, each guarded by its own
// circuit breaker so that a failing backend is not called every cycle.
func NewAggregator(cfg AggregatorConfig, adapters ...Adapter) *Aggregator {
	if cfg.MinCandidates <= 0 {
		cfg.MinCandidates = DefaultMinCandidates
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultAdapterTimeout
	}

	sorted := slices.Clone(adapters)
	slices.SortStableFunc(sorted, func(a, b Adapter) int {
		return cmp.Compare(a.Source().Priority(), b.Source().Priority())
	})

	a := &Aggregator{cfg: cfg, log: logging.With("aggregator")}
	for _, ad := range sorted {
		name := string(ad.Source())
		metrics.AdapterBreakerState.WithLabelValues(name).Set(0)
		a.sources = append(a.sources, source{
			adapter: ad,
			breaker: gobreaker.NewCircuitBreaker[[]Candidate](gobreaker.Settings{
				Name:        name,
				MaxRequests: 1,
				Timeout:     breakerCooldown,
				ReadyToTrip: func(counts gobreaker.Counts) bool {
					return counts.ConsecutiveFailures >= breakerFailures
				},
				OnStateChange: func(name string, from, to gobreaker.State) {
					a.log.Warn().Str("adapter", name).Str("from", from.String()).Str("to", to.String()).
						Msg("adapter breaker state changed")
					metrics.AdapterBreakerState.WithLabelValues(name).Set(breakerGauge(to))
				},
			}),
		})
	}
	return a
}

func breakerGauge(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}

// Collect gathers candidates for ref. Adapters run strictly in priority
// order; once MinCandidates are collected the remaining ones are skipped,
// except those whose source must always run. Duplicates keep the first,
// higher priority occurrence. Adapter failures are logged and skipped.
func (a *Aggregator) Collect(ctx context.Context, ref media.Item, p *Profile) []Candidate {
	var out []Candidate
	seen := make(map[string]bool)

	for _, src := range a.sources {
		tag := src.adapter.Source()
		if len(out) >= a.cfg.MinCandidates && !tag.AlwaysRun() {
			metrics.AdapterFetches.WithLabelValues(string(tag), "skipped").Inc()
			continue
		}
		if ctx.Err() != nil {
			break
		}

		cands, err := a.fetch(ctx, src, ref, p)
		if err != nil {
			a.log.Warn().Err(err).Str("adapter", string(tag)).Msg("adapter failed")
			continue
		}
		for i := range cands {
			c := cands[i]
			c.Source = tag
			key := c.Key()
			if key == "" || seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, c)
		}
	}
	return out
}

func (a *Aggregator) fetch(ctx context.Context, src source, ref media.Item, p *Profile) ([]Candidate, error) {
	name := string(src.adapter.Source())
	start := time.Now()

	cands, err := src.breaker.Execute(func() ([]Candidate, error) {
		return callWithTimeout(ctx, a.cfg.Timeout, src.adapter, ref, p)
	})
	metrics.AdapterDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())

	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		metrics.AdapterFetches.WithLabelValues(name, "unavailable").Inc()
		return nil, fmt.Errorf("%w: %s: %w", ErrAdapterUnavailable, name, err)
	case err != nil:
		metrics.AdapterFetches.WithLabelValues(name, "error").Inc()
		if errors.Is(err, ErrAdapterUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s: %w", ErrAdapterUnavailable, name, err)
	case len(cands) == 0:
		metrics.AdapterFetches.WithLabelValues(name, "empty").Inc()
	default:
		metrics.AdapterFetches.WithLabelValues(name, "ok").Inc()
	}
	return cands, nil
}

// callWithTimeout bounds an adapter call. A call that outlives the timeout is
// abandoned; its context is cancelled and its result discarded.
func callWithTimeout(ctx context.Context, timeout time.Duration, ad Adapter, ref media.Item, p *Profile) ([]Candidate, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		cands []Candidate
		err   error
	}
	ch := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- result{err: fmt.Errorf("%w: %s panicked: %v", ErrAdapterUnavailable, ad.Source(), r)}
			}
		}()
		cands, err := ad.Fetch(ctx, ref, p)
		ch <- result{cands: cands, err: err}
	}()

	select {
	case r := <-ch:
		return r.cands, r.err
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %s: %w", ErrAdapterUnavailable, ad.Source(), ctx.Err())
	}
}
