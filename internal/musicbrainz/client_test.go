//nolint:bodyclose // Test file uses http.NoBody which doesn't require closing
package musicbrainz

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"testing/synctest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/llehouerou/autoplay/internal/media"
)

func TestClient_LimiterEnforcesRateLimit(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		c := &Client{limiter: newLimiter()}
		ctx := context.Background()

		start := time.Now()
		require.NoError(t, c.limiter.Wait(ctx))
		assert.Zero(t, time.Since(start), "first request should not wait")

		for range 4 {
			require.NoError(t, c.limiter.Wait(ctx))
		}
		assert.GreaterOrEqual(t, time.Since(start), 4*time.Second)
	})
}

func TestClient_LimiterHonoursContext(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		c := &Client{limiter: newLimiter()}
		require.NoError(t, c.limiter.Wait(context.Background()))

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		assert.Error(t, c.limiter.Wait(ctx))
	})
}

// mockTransport is a mock http.RoundTripper for testing.
type mockTransport struct {
	responses []*http.Response
	errors    []error
	callCount int
}

func (m *mockTransport) RoundTrip(*http.Request) (*http.Response, error) {
	idx := m.callCount
	m.callCount++

	if idx < len(m.errors) && m.errors[idx] != nil {
		return nil, m.errors[idx]
	}
	if idx < len(m.responses) {
		return m.responses[idx], nil
	}
	return nil, errors.New("no more responses configured")
}

func newMockResponse(statusCode int) *http.Response {
	return &http.Response{
		StatusCode: statusCode,
		Body:       http.NoBody,
	}
}

func TestClient_DoRequestWithRetry_Success(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		mock := &mockTransport{
			responses: []*http.Response{newMockResponse(http.StatusOK)},
		}
		c := &Client{
			httpClient: &http.Client{Transport: mock},
			limiter:    newLimiter(),
		}

		req, _ := http.NewRequest(http.MethodGet, "http://example.com", http.NoBody)
		resp, err := c.doRequestWithRetry(req)

		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("StatusCode = %d, want %d", resp.StatusCode, http.StatusOK)
		}
		if mock.callCount != 1 {
			t.Errorf("callCount = %d, want 1", mock.callCount)
		}
	})
}

func TestClient_DoRequestWithRetry_RetriesOn500(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		mock := &mockTransport{
			responses: []*http.Response{
				newMockResponse(http.StatusInternalServerError),
				newMockResponse(http.StatusInternalServerError),
				newMockResponse(http.StatusOK), // Success on 3rd attempt
			},
		}
		c := &Client{
			httpClient: &http.Client{Transport: mock},
			limiter:    newLimiter(),
		}

		start := time.Now()
		req, _ := http.NewRequest(http.MethodGet, "http://example.com", http.NoBody)
		resp, err := c.doRequestWithRetry(req)
		elapsed := time.Since(start)

		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("StatusCode = %d, want %d", resp.StatusCode, http.StatusOK)
		}
		if mock.callCount != 3 {
			t.Errorf("callCount = %d, want 3", mock.callCount)
		}

		// Should have waited: 2s (first retry) + 4s (second retry) = 6s minimum
		// Plus rate limit waits after each retry
		if elapsed < 6*time.Second {
			t.Errorf("elapsed = %v, expected at least 6s for backoff", elapsed)
		}
	})
}

func TestClient_DoRequestWithRetry_ExhaustsRetries(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		mock := &mockTransport{
			responses: []*http.Response{
				newMockResponse(http.StatusInternalServerError),
				newMockResponse(http.StatusInternalServerError),
				newMockResponse(http.StatusInternalServerError),
				newMockResponse(http.StatusInternalServerError), // All 4 attempts fail
			},
		}
		c := &Client{
			httpClient: &http.Client{Transport: mock},
			limiter:    newLimiter(),
		}

		req, _ := http.NewRequest(http.MethodGet, "http://example.com", http.NoBody)
		resp, err := c.doRequestWithRetry(req)

		if err == nil {
			t.Fatal("expected error after exhausting retries")
		}
		if resp != nil {
			t.Error("expected nil response after exhausting retries")
		}
		if mock.callCount != 4 {
			t.Errorf("callCount = %d, want 4 (initial + 3 retries)", mock.callCount)
		}
	})
}

func TestClient_DoRequestWithRetry_NoRetryOn4xx(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		mock := &mockTransport{
			responses: []*http.Response{newMockResponse(http.StatusNotFound)},
		}
		c := &Client{
			httpClient: &http.Client{Transport: mock},
			limiter:    newLimiter(),
		}

		req, _ := http.NewRequest(http.MethodGet, "http://example.com", http.NoBody)
		resp, err := c.doRequestWithRetry(req)

		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusNotFound {
			t.Errorf("StatusCode = %d, want %d", resp.StatusCode, http.StatusNotFound)
		}
		if mock.callCount != 1 {
			t.Errorf("callCount = %d, want 1 (no retry on 4xx)", mock.callCount)
		}
	})
}

func TestClient_DoRequestWithRetry_RetriesOnNetworkError(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		mock := &mockTransport{
			errors: []error{
				errors.New("connection refused"),
				errors.New("timeout"),
				nil, // Success on 3rd
			},
			responses: []*http.Response{
				nil,
				nil,
				newMockResponse(http.StatusOK),
			},
		}
		c := &Client{
			httpClient: &http.Client{Transport: mock},
			limiter:    newLimiter(),
		}

		req, _ := http.NewRequest(http.MethodGet, "http://example.com", http.NoBody)
		resp, err := c.doRequestWithRetry(req)

		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("StatusCode = %d, want %d", resp.StatusCode, http.StatusOK)
		}
		if mock.callCount != 3 {
			t.Errorf("callCount = %d, want 3", mock.callCount)
		}
	})
}

func TestClient_DoRequestWithRetry_BackoffTiming(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		var callTimes []time.Time
		mock := &mockTransport{
			responses: []*http.Response{
				newMockResponse(http.StatusInternalServerError),
				newMockResponse(http.StatusInternalServerError),
				newMockResponse(http.StatusInternalServerError),
				newMockResponse(http.StatusInternalServerError),
			},
		}

		// Wrap to record call times
		originalTransport := mock
		c := &Client{
			httpClient: &http.Client{
				Transport: roundTripFunc(func(req *http.Request) (*http.Response, error) {
					callTimes = append(callTimes, time.Now())
					return originalTransport.RoundTrip(req)
				}),
			},
			limiter: newLimiter(),
		}

		req, _ := http.NewRequest(http.MethodGet, "http://example.com", http.NoBody)
		_, _ = c.doRequestWithRetry(req)

		if len(callTimes) != 4 {
			t.Fatalf("expected 4 calls, got %d", len(callTimes))
		}

		// Check delays between calls (should be ~2s, ~4s, ~8s + rate limit)
		// First retry: 2s delay
		delay1 := callTimes[1].Sub(callTimes[0])
		if delay1 < 2*time.Second {
			t.Errorf("first retry delay = %v, want >= 2s", delay1)
		}

		// Second retry: 4s delay
		delay2 := callTimes[2].Sub(callTimes[1])
		if delay2 < 4*time.Second {
			t.Errorf("second retry delay = %v, want >= 4s", delay2)
		}

		// Third retry: 8s delay
		delay3 := callTimes[3].Sub(callTimes[2])
		if delay3 < 8*time.Second {
			t.Errorf("third retry delay = %v, want >= 8s", delay3)
		}
	})
}


func TestClient_DoRequestWithRetry_StopsOnCancel(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		mock := &mockTransport{
			responses: []*http.Response{newMockResponse(http.StatusInternalServerError)},
		}
		c := &Client{
			httpClient: &http.Client{Transport: mock},
			limiter:    newLimiter(),
		}

		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		req, _ := http.NewRequestWithContext(ctx, http.MethodGet, "http://example.com", http.NoBody)
		_, err := c.doRequestWithRetry(req)

		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Equal(t, 1, mock.callCount)
	})
}

const isrcFixture = `{
	"isrc": "GBAYE0601498",
	"recordings": [
		{
			"id": "rec-1",
			"title": "Yellow Submarine",
			"length": 160000,
			"artist-credit": [{"name": "The Beatles", "joinphrase": "", "artist": {"id": "a1", "name": "The Beatles"}}],
			"releases": [{"id": "rel-1", "title": "Revolver"}]
		}
	]
}`

func TestClient_LookupISRC(t *testing.T) {
	var gotPath, gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath, gotUA = r.URL.Path, r.Header.Get("User-Agent")
		if r.URL.Path != "/isrc/GBAYE0601498" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(isrcFixture))
	}))
	defer srv.Close()

	c := NewClient()
	c.baseURL = srv.URL
	c.limiter = rate.NewLimiter(rate.Inf, 1)

	recs, err := c.LookupISRC(context.Background(), "gb-aye-06-01498")
	require.NoError(t, err)
	assert.Equal(t, "/isrc/GBAYE0601498", gotPath)
	assert.Equal(t, userAgent, gotUA)
	require.Len(t, recs, 1)
	assert.Equal(t, "Yellow Submarine", recs[0].Title)
	assert.Equal(t, "The Beatles", recs[0].Artist)
	assert.Equal(t, 160*time.Second, recs[0].Length)
	assert.Equal(t, []string{"Revolver"}, recs[0].Releases)
	assert.Equal(t, "Yellow Submarine The Beatles", recs[0].SearchQuery())

	_, err = c.LookupISRC(context.Background(), "GBAYE0609999")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = c.LookupISRC(context.Background(), "nope")
	assert.Error(t, err)
}

func TestValidISRC(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"USRC17607839", true},
		{"GBAYE0601498", true},
		{"usrc17607839", false},
		{"USRC1760783", false},
		{"1SRC17607839", false},
		{"USRC1760783X", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ValidISRC(tt.in), tt.in)
	}
	assert.Equal(t, "USRC17607839", NormalizeISRC(" us-rc1-76-07839 "))
}

type fakeLookup struct {
	recs  []Recording
	err   error
	calls int
}

func (f *fakeLookup) LookupISRC(context.Context, string) ([]Recording, error) {
	f.calls++
	return f.recs, f.err
}

type fakeTarget struct {
	mu      sync.Mutex
	byISRC  map[string][]media.Item
	byQuery map[string][]media.Item
	queries []string
}

func (f *fakeTarget) Search(_ context.Context, q string, hint media.SourceHint) ([]media.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, string(hint)+":"+q)
	if hint == media.HintISRC {
		return f.byISRC[q], nil
	}
	return f.byQuery[q], nil
}

func (f *fakeTarget) ResolveByID(context.Context, string) (*media.Item, error) {
	return nil, nil //nolint:nilnil // not used
}

func TestISRCBackend_DirectHitSkipsLookup(t *testing.T) {
	lookup := &fakeLookup{}
	target := &fakeTarget{byISRC: map[string][]media.Item{
		"USRC17607839": {{Title: "Local", ExternalID: "library:1"}},
	}}
	b := NewISRCBackend(lookup, target)

	items, err := b.Search(context.Background(), "us-rc1-76-07839", media.HintISRC)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "library:1", items[0].ExternalID)
	assert.Zero(t, lookup.calls)
}

func TestISRCBackend_SearchesRecordings(t *testing.T) {
	lookup := &fakeLookup{recs: []Recording{
		{ID: "r1", Title: "Yellow Submarine", Artist: "The Beatles"},
		{ID: "r2", Title: "Yellow Submarine", Artist: "Beatles"},
	}}
	hit := media.Item{Title: "Yellow Submarine", ExternalID: "library:7"}
	target := &fakeTarget{byQuery: map[string][]media.Item{
		"Yellow Submarine The Beatles": {hit},
		"Yellow Submarine Beatles":     {hit},
	}}
	b := NewISRCBackend(lookup, target)

	items, err := b.Search(context.Background(), "GBAYE0601498", media.HintISRC)
	require.NoError(t, err)
	require.Len(t, items, 1, "duplicates across recordings are merged")
	assert.Equal(t, "GBAYE0601498", items[0].ISRC)
}

func TestISRCBackend_UnknownOrInvalid(t *testing.T) {
	b := NewISRCBackend(&fakeLookup{err: ErrNotFound}, &fakeTarget{})

	items, err := b.Search(context.Background(), "GBAYE0601498", media.HintISRC)
	require.NoError(t, err)
	assert.Empty(t, items)

	items, err = b.Search(context.Background(), "Yellow Submarine", media.HintISRC)
	require.NoError(t, err)
	assert.Empty(t, items)

	b = NewISRCBackend(&fakeLookup{err: errors.New("boom")}, &fakeTarget{})
	_, err = b.Search(context.Background(), "GBAYE0601498", media.HintISRC)
	assert.Error(t, err)
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}
