package radio

import (
	"context"
	"fmt"

	"github.com/llehouerou/autoplay/internal/lastfm"
	"github.com/llehouerou/autoplay/internal/logging"
	"github.com/llehouerou/autoplay/internal/media"
)

// Adapter fetches candidates for a reference item from one external source.
// Priority and quality bonus follow from the source tag.
type Adapter interface {
	Source() SourceTag
	Fetch(ctx context.Context, ref media.Item, p *Profile) ([]Candidate, error)
}

const (
	similarLimit     = 50
	tagArtistsLimit  = 10
	tagsPerCandidate = 3
	minTagWeight     = 10
	recommendLimit   = 20
	topArtistQueries = 3
)

// SimilarSource is the part of the Last.fm client the similar adapter uses.
type SimilarSource interface {
	SimilarTracks(artist, track string, limit int) ([]lastfm.SimilarTrack, error)
	ArtistTopTags(artist string) ([]lastfm.Tag, error)
}

// SimilarAdapter is the primary recommender: Last.fm track.getSimilar, with
// artist tags as genres. Responses go through the SQLite cache when set.
type SimilarAdapter struct {
	api   SimilarSource
	cache *Cache
}

// NewSimilarAdapter creates the Last.fm adapter. cache may be nil.
func NewSimilarAdapter(api SimilarSource, cache *Cache) *SimilarAdapter {
	return &SimilarAdapter{api: api, cache: cache}
}

func (a *SimilarAdapter) Source() SourceTag { return SourceSimilar }

func (a *SimilarAdapter) Fetch(ctx context.Context, ref media.Item, _ *Profile) ([]Candidate, error) {
	if ref.Artist == "" || ref.Title == "" {
		return nil, nil
	}
	similar, err := a.similarTracks(ref.Artist, ref.Title)
	if err != nil {
		return nil, err
	}

	tags := make(map[string][]string)
	out := make([]Candidate, 0, len(similar))
	for _, s := range similar {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		key := normalizeString(s.Artist)
		genres, ok := tags[key]
		if !ok && len(tags) < tagArtistsLimit {
			genres = a.artistGenres(s.Artist)
			tags[key] = genres
		}

		it := media.Item{
			Title:    s.Name,
			Artist:   s.Artist,
			Duration: s.Duration,
			Source:   "lastfm",
			Genres:   genres,
		}
		if s.MBID != "" {
			it.ExternalID = "mbid:" + s.MBID
		}
		out = append(out, NewCandidate(it, SourceSimilar))
	}
	return out, nil
}

func (a *SimilarAdapter) similarTracks(artist, title string) ([]lastfm.SimilarTrack, error) {
	if a.cache != nil {
		if cached, err := a.cache.GetSimilarTracks(artist, title); err == nil && cached != nil {
			return cached, nil
		}
	}

	similar, err := a.api.SimilarTracks(artist, title, similarLimit)
	if err != nil {
		return nil, err
	}

	if a.cache != nil && len(similar) > 0 {
		if err := a.cache.SetSimilarTracks(artist, title, similar); err != nil {
			logging.Debug().Err(err).Msg("cache similar tracks")
		}
	}
	return similar, nil
}

// artistGenres returns the strongest tags of an artist. Failures yield no genres.
func (a *SimilarAdapter) artistGenres(artist string) []string {
	var tags []lastfm.Tag
	cached := false
	if a.cache != nil {
		if t, err := a.cache.GetArtistTags(artist); err == nil && t != nil {
			tags, cached = t, true
		}
	}
	if !cached {
		t, err := a.api.ArtistTopTags(artist)
		if err != nil {
			logging.Debug().Err(err).Str("artist", artist).Msg("artist tags unavailable")
			return nil
		}
		tags = t
		if a.cache != nil {
			if err := a.cache.SetArtistTags(artist, tags); err != nil {
				logging.Debug().Err(err).Msg("cache artist tags")
			}
		}
	}

	var genres []string
	for _, t := range tags {
		if len(genres) == tagsPerCandidate {
			break
		}
		if t.Count >= minTagWeight && t.Name != "" {
			genres = append(genres, t.Name)
		}
	}
	return genres
}

// Recommender is a genre and audio feature aware recommendation service.
type Recommender interface {
	Recommend(ctx context.Context, seed media.Item, genres []string, target *media.AudioFeatures, limit int) ([]media.Item, error)
}

// RecommendAdapter is the secondary recommender. It is the source of genre
// and audio feature metadata and therefore always runs.
type RecommendAdapter struct {
	rec Recommender
}

// NewRecommendAdapter creates the secondary recommender adapter.
func NewRecommendAdapter(rec Recommender) *RecommendAdapter {
	return &RecommendAdapter{rec: rec}
}

func (a *RecommendAdapter) Source() SourceTag { return SourceRecommend }

func (a *RecommendAdapter) Fetch(ctx context.Context, ref media.Item, p *Profile) ([]Candidate, error) {
	var genres []string
	var target *media.AudioFeatures
	if p != nil {
		for i, g := range p.TopGenres {
			if i == 2 {
				break
			}
			genres = append(genres, g.Genre)
		}
		target = p.AvgFeatures
	}

	items, err := a.rec.Recommend(ctx, ref, genres, target, recommendLimit)
	if err != nil {
		return nil, fmt.Errorf("recommend: %w", err)
	}
	return wrap(items, SourceRecommend), nil
}

// MixAdapter expands the reference item into the backend's mix of related items.
type MixAdapter struct {
	backend media.Backend
}

// NewMixAdapter creates the mix expansion adapter.
func NewMixAdapter(b media.Backend) *MixAdapter {
	return &MixAdapter{backend: b}
}

func (a *MixAdapter) Source() SourceTag { return SourceMix }

func (a *MixAdapter) Fetch(ctx context.Context, ref media.Item, _ *Profile) ([]Candidate, error) {
	query := ref.ExternalID
	if query == "" {
		query = ref.SearchQuery()
	}
	items, err := a.backend.Search(ctx, query, media.HintMix)
	if err != nil {
		return nil, fmt.Errorf("mix %q: %w", query, err)
	}
	return wrap(items, SourceMix), nil
}

// SearchAdapter runs a free-text search for the reference artist.
type SearchAdapter struct {
	backend media.Backend
}

// NewSearchAdapter creates the free-text search adapter.
func NewSearchAdapter(b media.Backend) *SearchAdapter {
	return &SearchAdapter{backend: b}
}

func (a *SearchAdapter) Source() SourceTag { return SourceSearch }

func (a *SearchAdapter) Fetch(ctx context.Context, ref media.Item, _ *Profile) ([]Candidate, error) {
	if ref.Artist == "" {
		return nil, nil
	}
	items, err := a.backend.Search(ctx, ref.Artist, media.HintDefault)
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", ref.Artist, err)
	}
	return wrap(items, SourceSearch), nil
}

// TopArtistAdapter searches for the session's most played artists.
type TopArtistAdapter struct {
	backend media.Backend
}

// NewTopArtistAdapter creates the last resort adapter.
func NewTopArtistAdapter(b media.Backend) *TopArtistAdapter {
	return &TopArtistAdapter{backend: b}
}

func (a *TopArtistAdapter) Source() SourceTag { return SourceTopArtist }

func (a *TopArtistAdapter) Fetch(ctx context.Context, ref media.Item, p *Profile) ([]Candidate, error) {
	var artists []string
	if p != nil {
		for i, ta := range p.TopArtists {
			if i == topArtistQueries {
				break
			}
			artists = append(artists, ta.Name)
		}
	}
	if len(artists) == 0 && ref.Artist != "" {
		artists = append(artists, ref.Artist)
	}

	var out []Candidate
	var lastErr error
	for _, artist := range artists {
		items, err := a.backend.Search(ctx, artist, media.HintDefault)
		if err != nil {
			lastErr = fmt.Errorf("search %q: %w", artist, err)
			continue
		}
		out = append(out, wrap(items, SourceTopArtist)...)
	}
	if len(out) == 0 {
		return nil, lastErr
	}
	return out, nil
}

func wrap(items []media.Item, source SourceTag) []Candidate {
	out := make([]Candidate, 0, len(items))
	for i := range items {
		out = append(out, NewCandidate(items[i], source))
	}
	return out
}
