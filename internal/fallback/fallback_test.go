package fallback

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/llehouerou/autoplay/internal/media"
)

type call struct {
	hint  media.SourceHint
	query string
}

type fakeBackend struct {
	results map[call][]media.Item
	errs    map[media.SourceHint]error
	calls   []call
}

func (f *fakeBackend) Search(_ context.Context, query string, hint media.SourceHint) ([]media.Item, error) {
	c := call{hint, query}
	f.calls = append(f.calls, c)
	if err := f.errs[hint]; err != nil {
		return nil, err
	}
	return f.results[c], nil
}

func (f *fakeBackend) ResolveByID(context.Context, string) (*media.Item, error) {
	return nil, nil
}

var original = media.Item{
	Title:       "Teardrop",
	Artist:      "Massive Attack",
	ExternalID:  "spotify:track:abc",
	ISRC:        "GBAAA9800001",
	RequestedBy: "alice",
	Autoplay:    true,
}

func TestBuildQueries_Order(t *testing.T) {
	got := BuildQueries(original, media.HintLibrary, media.HintSpotify)

	want := []Query{
		{media.HintLibrary, "Teardrop Massive Attack"},
		{media.HintSpotify, "Teardrop Massive Attack"},
		{media.HintLibrary, "spotify:track:abc"},
		{media.HintSpotify, "spotify:track:abc"},
		{media.HintISRC, "GBAAA9800001"},
	}
	assert.Equal(t, want, got)
}

func TestBuildQueries_DedupAndMissingFields(t *testing.T) {
	it := media.Item{Title: "Only Title"}
	got := BuildQueries(it, media.HintLibrary, media.HintLibrary)

	assert.Equal(t, []Query{{media.HintLibrary, "Only Title"}}, got)
}

func TestResolve_SkipsExcludedAndCarriesFlags(t *testing.T) {
	b := &fakeBackend{results: map[call][]media.Item{
		{media.HintLibrary, "Teardrop Massive Attack"}: {
			{Title: "Teardrop", Artist: "Massive Attack", ExternalID: "spotify:track:abc"},
			{Title: "Teardrop", Artist: "Massive Attack", ExternalID: "library:12", URI: "/m/t.flac"},
		},
	}}
	r := New(b, Config{Primary: media.HintLibrary, Secondary: media.HintSpotify})

	got, err := r.Resolve(context.Background(), NewAttempt(original))

	require.NoError(t, err)
	assert.Equal(t, "library:12", got.ExternalID)
	assert.Equal(t, "alice", got.RequestedBy)
	assert.True(t, got.Autoplay)
	assert.Len(t, b.calls, 1)
}

func TestResolve_FallsThroughQueries(t *testing.T) {
	b := &fakeBackend{
		errs: map[media.SourceHint]error{media.HintSpotify: errors.New("rate limited")},
		results: map[call][]media.Item{
			{media.HintISRC, "GBAAA9800001"}: {{Title: "Teardrop (Remastered)", ExternalID: "library:99"}},
		},
	}
	r := New(b, Config{Primary: media.HintLibrary, Secondary: media.HintSpotify})

	got, err := r.Resolve(context.Background(), NewAttempt(original))

	require.NoError(t, err)
	assert.Equal(t, "library:99", got.ExternalID)
	assert.Len(t, b.calls, 5)
}

func TestResolve_ExcludesEarlierReplacements(t *testing.T) {
	replacement := media.Item{Title: "Teardrop", Artist: "Massive Attack", ExternalID: "library:12"}
	b := &fakeBackend{results: map[call][]media.Item{
		{media.HintLibrary, "Teardrop Massive Attack"}: {replacement},
	}}
	r := New(b, Config{Primary: media.HintLibrary, Secondary: media.HintSpotify})

	a := NewAttempt(original).Next(replacement)
	assert.Equal(t, 2, a.Number)
	assert.True(t, a.IsExcluded("spotify:track:abc"))
	assert.True(t, a.IsExcluded("library:12"))

	_, err := r.Resolve(context.Background(), a)
	assert.ErrorIs(t, err, ErrExhausted)
}

func TestResolve_CapIsEnforcedWithoutQuerying(t *testing.T) {
	b := &fakeBackend{}
	r := New(b, Config{MaxAttempts: 2, Primary: media.HintLibrary})

	a := NewAttempt(original).Next(media.Item{}).Next(media.Item{})
	_, err := r.Resolve(context.Background(), a)

	assert.ErrorIs(t, err, ErrExhausted)
	assert.Empty(t, b.calls)
	assert.Equal(t, 2, r.MaxAttempts())
}

func TestResolve_SkipsUnservedHints(t *testing.T) {
	lib := &fakeBackend{}
	router := media.NewRouter()
	router.Register(media.HintLibrary, "library", lib)

	r := New(router, Config{Primary: media.HintLibrary, Secondary: media.HintSpotify})
	_, err := r.Resolve(context.Background(), NewAttempt(original))

	assert.ErrorIs(t, err, ErrExhausted)
	// spotify and isrc are not registered
	assert.Equal(t, []call{
		{media.HintLibrary, "Teardrop Massive Attack"},
		{media.HintLibrary, "spotify:track:abc"},
	}, lib.calls)
}

func TestResolve_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(&fakeBackend{}, Config{}).Resolve(ctx, NewAttempt(original))
	assert.ErrorIs(t, err, context.Canceled)
}
