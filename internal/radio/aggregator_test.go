package radio

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"testing/synctest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/llehouerou/autoplay/internal/media"
)

type fakeAdapter struct {
	tag   SourceTag
	items []media.Item
	err   error
	panic bool
	block bool // wait for context cancellation

	mu    sync.Mutex
	calls int
}

func (f *fakeAdapter) Source() SourceTag { return f.tag }

func (f *fakeAdapter) Fetch(ctx context.Context, _ media.Item, _ *Profile) ([]Candidate, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	if f.panic {
		panic("boom")
	}
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.err != nil {
		return nil, f.err
	}
	return wrap(f.items, f.tag), nil
}

func (f *fakeAdapter) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func items(prefix string, n int) []media.Item {
	out := make([]media.Item, n)
	for i := range out {
		out[i] = media.Item{
			Title:      fmt.Sprintf("%s song %d", prefix, i),
			Artist:     prefix,
			ExternalID: fmt.Sprintf("%s:%d", prefix, i),
		}
	}
	return out
}

var refItem = media.Item{Title: "Seed", Artist: "Seed Artist", ExternalID: "library:seed"}

func TestAggregator_ShortCircuitKeepsSecondary(t *testing.T) {
	similar := &fakeAdapter{tag: SourceSimilar, items: items("sim", 6)}
	recommend := &fakeAdapter{tag: SourceRecommend, items: items("rec", 2)}
	mix := &fakeAdapter{tag: SourceMix, items: items("mix", 2)}
	search := &fakeAdapter{tag: SourceSearch, items: items("search", 2)}
	top := &fakeAdapter{tag: SourceTopArtist, items: items("top", 2)}

	// registration order does not matter
	agg := NewAggregator(AggregatorConfig{}, top, search, mix, recommend, similar)
	got := agg.Collect(context.Background(), refItem, emptyProfile())

	assert.Len(t, got, 8)
	assert.Equal(t, 1, similar.Calls())
	assert.Equal(t, 1, recommend.Calls(), "secondary recommender always runs")
	assert.Zero(t, mix.Calls())
	assert.Zero(t, search.Calls())
	assert.Zero(t, top.Calls())
}

func TestAggregator_ContinuesUntilThreshold(t *testing.T) {
	similar := &fakeAdapter{tag: SourceSimilar, items: items("sim", 1)}
	recommend := &fakeAdapter{tag: SourceRecommend, items: items("rec", 1)}
	mix := &fakeAdapter{tag: SourceMix, items: items("mix", 3)}
	search := &fakeAdapter{tag: SourceSearch, items: items("search", 3)}

	agg := NewAggregator(AggregatorConfig{MinCandidates: 5}, similar, recommend, mix, search)
	got := agg.Collect(context.Background(), refItem, emptyProfile())

	assert.Len(t, got, 5)
	assert.Zero(t, search.Calls())
}

func TestAggregator_DedupKeepsHigherPriority(t *testing.T) {
	shared := media.Item{Title: "Same", Artist: "Band", ExternalID: "spotify:track:1"}
	similar := &fakeAdapter{tag: SourceSimilar, items: []media.Item{shared}}
	recommend := &fakeAdapter{tag: SourceRecommend, items: []media.Item{shared, items("rec", 1)[0]}}

	agg := NewAggregator(AggregatorConfig{}, recommend, similar)
	got := agg.Collect(context.Background(), refItem, emptyProfile())

	require.Len(t, got, 2)
	assert.Equal(t, SourceSimilar, got[0].Source)
	assert.Equal(t, "spotify:track:1", got[0].Item.ExternalID)
	assert.Equal(t, SourceRecommend, got[1].Source)
}

func TestAggregator_DedupWithoutIDs(t *testing.T) {
	a := &fakeAdapter{tag: SourceSimilar, items: []media.Item{{Title: "Song", Artist: "Band"}}}
	b := &fakeAdapter{tag: SourceSearch, items: []media.Item{{Title: "song", Artist: "BAND", ExternalID: "library:9"}}}

	got := NewAggregator(AggregatorConfig{}, a, b).Collect(context.Background(), refItem, emptyProfile())

	// different keys: an id-less item is keyed by artist and title
	assert.Len(t, got, 2)
}

func TestAggregator_FailuresAreSwallowed(t *testing.T) {
	similar := &fakeAdapter{tag: SourceSimilar, err: errors.New("lastfm down")}
	recommend := &fakeAdapter{tag: SourceRecommend, panic: true}
	search := &fakeAdapter{tag: SourceSearch, items: items("search", 3)}

	agg := NewAggregator(AggregatorConfig{}, similar, recommend, search)
	got := agg.Collect(context.Background(), refItem, emptyProfile())

	assert.Len(t, got, 3)
	assert.Equal(t, 1, recommend.Calls())
}

func TestAggregator_AllFail(t *testing.T) {
	a := &fakeAdapter{tag: SourceSimilar, err: errors.New("down")}
	b := &fakeAdapter{tag: SourceSearch}

	got := NewAggregator(AggregatorConfig{}, a, b).Collect(context.Background(), refItem, emptyProfile())
	assert.Empty(t, got)
}

func TestAggregator_SlowAdapterTimesOut(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		slow := &fakeAdapter{tag: SourceSimilar, block: true}
		search := &fakeAdapter{tag: SourceSearch, items: items("search", 2)}

		agg := NewAggregator(AggregatorConfig{Timeout: 2 * time.Second}, slow, search)

		start := time.Now()
		got := agg.Collect(context.Background(), refItem, emptyProfile())

		assert.Len(t, got, 2)
		assert.Equal(t, 2*time.Second, time.Since(start))
		synctest.Wait()
	})
}

func TestAggregator_BreakerOpensAfterRepeatedFailures(t *testing.T) {
	failing := &fakeAdapter{tag: SourceSimilar, err: errors.New("down")}
	search := &fakeAdapter{tag: SourceSearch, items: items("search", 1)}
	agg := NewAggregator(AggregatorConfig{}, failing, search)

	for range breakerFailures + 3 {
		got := agg.Collect(context.Background(), refItem, emptyProfile())
		assert.Len(t, got, 1)
	}

	assert.Equal(t, breakerFailures, failing.Calls())
	assert.Equal(t, breakerFailures+3, search.Calls())
}

func TestAggregator_EmptyProfileOneAdapter(t *testing.T) {
	only := &fakeAdapter{tag: SourceMix, items: items("mix", 3)}

	got := NewAggregator(AggregatorConfig{}, only).Collect(context.Background(), refItem, emptyProfile())

	require.Len(t, got, 3)
	ScoreAll(got, emptyProfile(), noSkips(), Afternoon)
	for _, c := range got {
		assert.InDelta(t, 85.0, c.Score, 1e-9)
	}
}

func TestCallWithTimeout_WrapsUnavailable(t *testing.T) {
	ad := &fakeAdapter{tag: SourceMix, panic: true}
	_, err := callWithTimeout(context.Background(), time.Second, ad, refItem, nil)
	assert.ErrorIs(t, err, ErrAdapterUnavailable)
}
