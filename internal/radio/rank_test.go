package radio

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/llehouerou/autoplay/internal/media"
)

// seqJitter returns the given values in order, then zeros.
type seqJitter struct {
	values []float64
	calls  int
}

func (s *seqJitter) Float64() float64 {
	s.calls++
	if len(s.values) == 0 {
		return 0
	}
	v := s.values[0]
	s.values = s.values[1:]
	return v
}

func scored(id string, score float64) Candidate {
	c := NewCandidate(media.Item{Title: id, Artist: id, ExternalID: id}, SourceSearch)
	c.Score = score
	return c
}

func TestRanker_SortsDescending(t *testing.T) {
	cands := []Candidate{scored("a", 20), scored("b", 90), scored("c", 55)}

	ranked := NewRanker(10, 5, NoJitter).Rank(cands)

	assert.Equal(t, "b", ranked[0].Item.ExternalID)
	assert.Equal(t, "c", ranked[1].Item.ExternalID)
	assert.Equal(t, "a", ranked[2].Item.ExternalID)
}

func TestRanker_JittersOnlyNearTies(t *testing.T) {
	src := &seqJitter{values: []float64{0, 1}}
	cands := []Candidate{scored("top", 80), scored("close", 78), scored("far", 60)}

	ranked := NewRanker(10, 5, src).Rank(cands)

	// close gets +5 and overtakes top, far is outside the window
	require.Len(t, ranked, 3)
	assert.Equal(t, "close", ranked[0].Item.ExternalID)
	assert.InDelta(t, 83.0, ranked[0].Score, 1e-9)
	assert.Equal(t, "top", ranked[1].Item.ExternalID)
	assert.InDelta(t, 80.0, ranked[1].Score, 1e-9)
	assert.InDelta(t, 60.0, ranked[2].Score, 1e-9)
	assert.Equal(t, 2, src.calls)
	assert.Contains(t, ranked[0].Trace[len(ranked[0].Trace)-1], "near-tie jitter")
}

func TestRanker_JitterIsBounded(t *testing.T) {
	src := &seqJitter{values: []float64{0.999, 0.999}}
	cands := []Candidate{scored("a", 50), scored("b", 45)}

	ranked := NewRanker(10, 5, src).Rank(cands)

	for _, c := range ranked {
		assert.LessOrEqual(t, c.Score, 55.0)
	}
}

func TestRanker_NeverJittersVetoed(t *testing.T) {
	src := &seqJitter{values: []float64{1, 1, 1}}
	cands := []Candidate{scored("a", 0), scored("b", 0)}

	ranked := NewRanker(10, 5, src).Rank(cands)

	assert.Zero(t, ranked[0].Score)
	assert.Zero(t, ranked[1].Score)
	assert.Zero(t, src.calls)
}

func TestRanker_VetoedInsideWindowStaysZero(t *testing.T) {
	src := &seqJitter{values: []float64{1, 1, 1}}
	cands := []Candidate{scored("a", 6), scored("b", 0)}

	ranked := NewRanker(10, 5, src).Rank(cands)

	assert.Equal(t, "a", ranked[0].Item.ExternalID)
	assert.Zero(t, ranked[1].Score)
	assert.Equal(t, 1, src.calls)
}

func TestRanker_DeterministicWithSameSequence(t *testing.T) {
	build := func() []Candidate {
		return []Candidate{scored("a", 70), scored("b", 68), scored("c", 66)}
	}
	r1 := NewRanker(10, 5, &seqJitter{values: []float64{0.1, 0.9, 0.5}}).Rank(build())
	r2 := NewRanker(10, 5, &seqJitter{values: []float64{0.1, 0.9, 0.5}}).Rank(build())

	assert.Equal(t, r1, r2)
}

type fakeResolver struct {
	fail  map[string]bool
	calls []string
}

func (f *fakeResolver) Resolve(_ context.Context, c *Candidate) (media.Item, error) {
	f.calls = append(f.calls, c.Item.ExternalID)
	if f.fail[c.Item.ExternalID] {
		return media.Item{}, ErrUnresolvable
	}
	it := c.Item
	it.URI = "/music/" + it.ExternalID + ".flac"
	return it, nil
}

func TestSelect_FirstResolvable(t *testing.T) {
	ranked := []Candidate{scored("a", 90), scored("b", 80), scored("c", 70)}
	res := &fakeResolver{fail: map[string]bool{"a": true}}

	c, it, err := Select(context.Background(), ranked, res, 5, 10)

	require.NoError(t, err)
	assert.Equal(t, "b", c.Item.ExternalID)
	assert.Equal(t, "/music/b.flac", it.URI)
	assert.Equal(t, []string{"a", "b"}, res.calls)
}

func TestSelect_RejectsLowScores(t *testing.T) {
	ranked := []Candidate{scored("a", 9.5), scored("b", 0)}
	res := &fakeResolver{}

	_, _, err := Select(context.Background(), ranked, res, 5, 10)

	assert.ErrorIs(t, err, ErrNoRecommendation)
	assert.Empty(t, res.calls)
}

func TestSelect_JitterDoesNotLiftBelowThreshold(t *testing.T) {
	src := &seqJitter{values: []float64{0, 1}}
	ranked := NewRanker(10, 5, src).Rank([]Candidate{scored("top", 12), scored("low", 8)})
	require.Equal(t, "low", ranked[0].Item.ExternalID)
	assert.InDelta(t, 13.0, ranked[0].Score, 1e-9)
	assert.InDelta(t, 5.0, ranked[0].Jitter, 1e-9)
	assert.InDelta(t, 8.0, ranked[0].BaseScore(), 1e-9)
	res := &fakeResolver{}

	c, _, err := Select(context.Background(), ranked, res, 5, 10)

	require.NoError(t, err)
	assert.Equal(t, "top", c.Item.ExternalID)
	assert.Equal(t, []string{"top"}, res.calls)
}

func TestSelect_OnlyTopN(t *testing.T) {
	var ranked []Candidate
	fail := map[string]bool{}
	for _, id := range []string{"a", "b", "c", "d", "e", "f"} {
		ranked = append(ranked, scored(id, 50))
		if id != "f" {
			fail[id] = true
		}
	}
	res := &fakeResolver{fail: fail}

	_, _, err := Select(context.Background(), ranked, res, 5, 10)

	assert.ErrorIs(t, err, ErrNoRecommendation)
	assert.Len(t, res.calls, 5)
}

func TestSelect_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := Select(ctx, []Candidate{scored("a", 50)}, &fakeResolver{}, 5, 10)
	assert.True(t, errors.Is(err, context.Canceled))
}
