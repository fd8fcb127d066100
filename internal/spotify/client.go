// Package spotify wraps the Spotify Web API as a recommender (seeded
// recommendations enriched with audio features, genres and popularity) and
// as a media backend for search, ISRC lookup and id resolution.
package spotify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/llehouerou/autoplay/internal/logging"
	"github.com/llehouerou/autoplay/internal/media"
)

// IDPrefix qualifies Spotify ids ("spotify:track:<id>").
const IDPrefix = "spotify"

const (
	maxSeeds          = 5
	maxRecommendation = 100
	maxSearchResults  = 20
	tracksPerRequest  = 50
	artistsPerRequest = 50
	featuresBatch     = 100
	releaseYearLength = 4
)

// ErrNotConfigured is returned when no client credentials are set.
var ErrNotConfigured = errors.New("spotify: client credentials not configured")

// Config holds the application credentials used for the client-credentials flow.
type Config struct {
	ClientID     string
	ClientSecret string
	Market       string
}

type Client struct {
	api    *spotify.Client
	market string
	log    zerolog.Logger
}

// Verify Client implements media.Backend at compile time.
var _ media.Backend = (*Client)(nil)

// New creates a client authenticated with the client-credentials flow.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, ErrNotConfigured
	}
	creds := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     spotifyauth.TokenURL,
	}
	return newClient(creds.Client(ctx), cfg.Market), nil
}

func newClient(httpClient *http.Client, market string, opts ...spotify.ClientOption) *Client {
	return &Client{
		api:    spotify.New(httpClient, opts...),
		market: market,
		log:    logging.With("spotify"),
	}
}

// Recommend returns up to limit tracks seeded by seed and genres, steered
// towards target when set. Results carry genres, features and popularity.
func (c *Client) Recommend(ctx context.Context, seed media.Item, genres []string, target *media.AudioFeatures, limit int) ([]media.Item, error) {
	seeds := spotify.Seeds{}
	id, err := c.seedTrack(ctx, seed)
	if err != nil {
		return nil, err
	}
	if id != "" {
		seeds.Tracks = append(seeds.Tracks, id)
	}
	for _, g := range genres {
		if len(seeds.Tracks)+len(seeds.Genres) == maxSeeds {
			break
		}
		if g = genreSeed(g); g != "" {
			seeds.Genres = append(seeds.Genres, g)
		}
	}
	if len(seeds.Tracks)+len(seeds.Genres) == 0 {
		return nil, nil
	}

	var attrs *spotify.TrackAttributes
	if target != nil {
		attrs = spotify.NewTrackAttributes().
			TargetEnergy(target.Energy).
			TargetValence(target.Valence).
			TargetDanceability(target.Danceability)
		if target.TempoBPM > 0 {
			attrs = attrs.TargetTempo(target.TempoBPM)
		}
	}

	limit = min(max(limit, 1), maxRecommendation)
	recs, err := c.api.GetRecommendations(ctx, seeds, attrs, c.options(spotify.Limit(limit))...)
	if err != nil {
		return nil, fmt.Errorf("recommendations: %w", err)
	}

	ids := make([]spotify.ID, 0, len(recs.Tracks))
	for i := range recs.Tracks {
		ids = append(ids, recs.Tracks[i].ID)
	}
	tracks, err := c.fullTracks(ctx, ids)
	if err != nil {
		return nil, err
	}
	return c.enrich(ctx, tracks), nil
}

// seedTrack returns the Spotify id of seed, searching for it when it comes
// from another backend. Empty when no match exists.
func (c *Client) seedTrack(ctx context.Context, seed media.Item) (spotify.ID, error) {
	if id, ok := parseID(seed.ExternalID); ok {
		return id, nil
	}
	q := seed.SearchQuery()
	if q == "" {
		return "", nil
	}
	res, err := c.api.Search(ctx, q, spotify.SearchTypeTrack, c.options(spotify.Limit(1))...)
	if err != nil {
		return "", fmt.Errorf("search seed %q: %w", q, err)
	}
	if res.Tracks == nil || len(res.Tracks.Tracks) == 0 {
		return "", nil
	}
	return res.Tracks.Tracks[0].ID, nil
}

// fullTracks fetches full track objects (album, popularity, ISRC) in batches.
func (c *Client) fullTracks(ctx context.Context, ids []spotify.ID) ([]spotify.FullTrack, error) {
	out := make([]spotify.FullTrack, 0, len(ids))
	for start := 0; start < len(ids); start += tracksPerRequest {
		end := min(start+tracksPerRequest, len(ids))
		batch, err := c.api.GetTracks(ctx, ids[start:end], c.options()...)
		if err != nil {
			return nil, fmt.Errorf("tracks: %w", err)
		}
		for _, t := range batch {
			if t != nil {
				out = append(out, *t)
			}
		}
	}
	return out, nil
}

// enrich converts tracks to items with audio features and artist genres.
// Enrichment failures are logged and leave the metadata unknown.
func (c *Client) enrich(ctx context.Context, tracks []spotify.FullTrack) []media.Item {
	items := make([]media.Item, 0, len(tracks))
	for i := range tracks {
		items = append(items, toItem(&tracks[i]))
	}

	features, err := c.audioFeatures(ctx, tracks)
	if err != nil {
		c.log.Warn().Err(err).Msg("audio features unavailable")
	}
	genres, err := c.artistGenres(ctx, tracks)
	if err != nil {
		c.log.Warn().Err(err).Msg("artist genres unavailable")
	}

	for i := range tracks {
		if f, ok := features[tracks[i].ID]; ok {
			items[i].Features = f
		}
		if len(tracks[i].Artists) > 0 {
			items[i].Genres = genres[tracks[i].Artists[0].ID]
		}
	}
	return items
}

func (c *Client) audioFeatures(ctx context.Context, tracks []spotify.FullTrack) (map[spotify.ID]*media.AudioFeatures, error) {
	out := make(map[spotify.ID]*media.AudioFeatures, len(tracks))
	for start := 0; start < len(tracks); start += featuresBatch {
		end := min(start+featuresBatch, len(tracks))
		ids := make([]spotify.ID, 0, end-start)
		for i := start; i < end; i++ {
			ids = append(ids, tracks[i].ID)
		}
		batch, err := c.api.GetAudioFeatures(ctx, ids...)
		if err != nil {
			return out, err
		}
		for _, f := range batch {
			if f == nil {
				continue
			}
			out[f.ID] = &media.AudioFeatures{
				Energy:       float64(f.Energy),
				Valence:      float64(f.Valence),
				Danceability: float64(f.Danceability),
				TempoBPM:     float64(f.Tempo),
			}
		}
	}
	return out, nil
}

func (c *Client) artistGenres(ctx context.Context, tracks []spotify.FullTrack) (map[spotify.ID][]string, error) {
	seen := make(map[spotify.ID]bool)
	var ids []spotify.ID
	for i := range tracks {
		if len(tracks[i].Artists) == 0 {
			continue
		}
		id := tracks[i].Artists[0].ID
		if id != "" && !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}

	out := make(map[spotify.ID][]string, len(ids))
	for start := 0; start < len(ids); start += artistsPerRequest {
		end := min(start+artistsPerRequest, len(ids))
		batch, err := c.api.GetArtists(ctx, ids[start:end]...)
		if err != nil {
			return out, err
		}
		for _, a := range batch {
			if a != nil {
				out[a.ID] = a.Genres
			}
		}
	}
	return out, nil
}

func (c *Client) options(opts ...spotify.RequestOption) []spotify.RequestOption {
	if c.market != "" {
		opts = append(opts, spotify.Market(c.market))
	}
	return opts
}

func toItem(t *spotify.FullTrack) media.Item {
	artists := make([]string, 0, len(t.Artists))
	for _, a := range t.Artists {
		artists = append(artists, a.Name)
	}

	var year int
	if len(t.Album.ReleaseDate) >= releaseYearLength {
		if _, err := fmt.Sscanf(t.Album.ReleaseDate[:releaseYearLength], "%d", &year); err != nil {
			year = 0
		}
	}

	return media.Item{
		Title:      t.Name,
		Artist:     strings.Join(artists, ", "),
		Album:      t.Album.Name,
		ExternalID: trackID(t.ID),
		URI:        string(t.URI),
		Duration:   time.Duration(t.Duration) * time.Millisecond,
		Source:     IDPrefix,
		Year:       year,
		ISRC:       strings.ToUpper(t.ExternalIDs["isrc"]),
		Popularity: int(t.Popularity),
	}
}

func trackID(id spotify.ID) string {
	return IDPrefix + ":track:" + string(id)
}

// parseID extracts the track id of "spotify:track:<id>".
func parseID(id string) (spotify.ID, bool) {
	rest, ok := strings.CutPrefix(id, IDPrefix+":track:")
	if !ok || rest == "" {
		return "", false
	}
	return spotify.ID(rest), true
}

// genreSeed converts a tag into Spotify's genre seed form ("Hip Hop" -> "hip-hop").
func genreSeed(g string) string {
	return strings.Join(strings.Fields(strings.ToLower(g)), "-")
}
