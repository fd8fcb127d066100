// Package musicbrainz looks up recordings by ISRC on the MusicBrainz web
// service, within its one request per second policy.
package musicbrainz

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultBaseURL = "https://musicbrainz.org/ws/2"
	userAgent      = "autoplay/0.1 (https://github.com/llehouerou/autoplay)"
	rateLimitDur   = time.Second // MusicBrainz requires 1 request per second

	// Retry configuration
	maxRetries   = 3
	initialDelay = 2 * time.Second
	maxDelay     = 30 * time.Second
)

// ErrNotFound is returned when MusicBrainz knows nothing about the ISRC.
var ErrNotFound = errors.New("musicbrainz: not found")

// Client provides access to the MusicBrainz API.
type Client struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	baseURL    string
}

// NewClient creates a new MusicBrainz API client.
func NewClient() *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		limiter:    newLimiter(),
		baseURL:    defaultBaseURL,
	}
}

func newLimiter() *rate.Limiter {
	return rate.NewLimiter(rate.Every(rateLimitDur), 1)
}

// LookupISRC returns the recordings carrying isrc.
func (c *Client) LookupISRC(ctx context.Context, isrc string) ([]Recording, error) {
	isrc = NormalizeISRC(isrc)
	if !ValidISRC(isrc) {
		return nil, fmt.Errorf("invalid ISRC %q", isrc)
	}

	params := url.Values{}
	params.Set("fmt", "json")
	params.Set("inc", "artist-credits+releases")

	var result isrcResponse
	if err := c.get(ctx, "isrc/"+isrc, params, &result); err != nil {
		return nil, err
	}
	return convertRecordings(result.Recordings), nil
}

// get performs a rate limited GET of path and decodes the JSON body into v.
func (c *Client) get(ctx context.Context, path string, params url.Values, v any) error {
	reqURL := fmt.Sprintf("%s/%s?%s", c.baseURL, path, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, http.NoBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.doRequestWithRetry(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("API status %d: %s", resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// doRequestWithRetry executes an HTTP request with exponential backoff retry.
// Retries on 5xx errors and network errors. Every attempt waits for the limiter.
func (c *Client) doRequestWithRetry(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	var lastErr error
	delay := initialDelay

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			if err := sleep(ctx, delay); err != nil {
				return nil, err
			}
			delay = min(delay*2, maxDelay)
		}
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
			continue
		}

		// Success or client error (4xx) - don't retry
		if resp.StatusCode < 500 {
			return resp, nil
		}

		resp.Body.Close()
		lastErr = fmt.Errorf("server returned status %d", resp.StatusCode)
	}

	return nil, fmt.Errorf("request failed after %d retries: %w", maxRetries+1, lastErr)
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func convertRecordings(results []recordingResult) []Recording {
	recordings := make([]Recording, 0, len(results))
	for i := range results {
		r := &results[i]
		rec := Recording{
			ID:     r.ID,
			Title:  r.Title,
			Artist: extractArtist(r.ArtistCredit),
			Length: time.Duration(r.Length) * time.Millisecond,
		}
		for _, rel := range r.Releases {
			if rel.Title != "" {
				rec.Releases = append(rec.Releases, rel.Title)
			}
		}
		recordings = append(recordings, rec)
	}
	return recordings
}

// extractArtist extracts the artist name from artist credits.
func extractArtist(credits []artistCredit) string {
	if len(credits) == 0 {
		return ""
	}

	parts := make([]string, 0, len(credits))
	for _, c := range credits {
		name := c.Name
		if name == "" {
			name = c.Artist.Name
		}
		parts = append(parts, name+c.JoinPhrase)
	}
	return strings.Join(parts, "")
}

// NormalizeISRC strips separators and upper-cases an ISRC.
func NormalizeISRC(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	return strings.NewReplacer("-", "", " ", "").Replace(s)
}

// ValidISRC reports whether s is a normalised ISRC: CC-XXX-YY-NNNNN.
func ValidISRC(s string) bool {
	if len(s) != 12 {
		return false
	}
	for i, r := range s {
		switch {
		case i < 2:
			if r < 'A' || r > 'Z' {
				return false
			}
		case i < 5:
			if (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
				return false
			}
		default:
			if r < '0' || r > '9' {
				return false
			}
		}
	}
	return true
}
