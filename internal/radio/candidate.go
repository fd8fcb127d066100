package radio

import (
	"fmt"

	"github.com/llehouerou/autoplay/internal/media"
)

// SourceTag identifies the adapter a candidate came from.
type SourceTag string

const (
	SourceSimilar   SourceTag = "lastfm-similar"
	SourceRecommend SourceTag = "spotify-recommend"
	SourceMix       SourceTag = "mix"
	SourceSearch    SourceTag = "search"
	SourceTopArtist SourceTag = "top-artist-search"
)

type sourceInfo struct {
	priority int
	bonus    float64
}

var sources = map[SourceTag]sourceInfo{
	SourceSimilar:   {priority: 1, bonus: 40},
	SourceRecommend: {priority: 2, bonus: 35},
	SourceMix:       {priority: 3, bonus: 15},
	SourceSearch:    {priority: 4, bonus: 10},
	SourceTopArtist: {priority: 5, bonus: 8},
}

// Priority returns the call order of the source, 1 first. Unknown tags sort last.
func (s SourceTag) Priority() int {
	if info, ok := sources[s]; ok {
		return info.priority
	}
	return len(sources) + 1
}

// Bonus returns the source quality points added during scoring.
func (s SourceTag) Bonus() float64 {
	return sources[s].bonus
}

// AlwaysRun reports whether the source is queried even after the aggregator
// has collected enough candidates. The secondary recommender is the only one
// that carries genre and audio feature metadata.
func (s SourceTag) AlwaysRun() bool {
	return s == SourceRecommend
}

// Candidate is an item under consideration during one ranking cycle.
type Candidate struct {
	Item       media.Item
	Source     SourceTag
	Popularity int // 0-100, 0 when unknown
	Score      float64
	Jitter     float64 // part of Score added by near-tie jitter
	Trace      []string
}

// BaseScore returns the score before near-tie jitter.
func (c *Candidate) BaseScore() float64 {
	return c.Score - c.Jitter
}

// NewCandidate wraps an item fetched by source.
func NewCandidate(it media.Item, source SourceTag) Candidate {
	return Candidate{
		Item:       it,
		Source:     source,
		Popularity: it.Popularity,
	}
}

// Key identifies the candidate for deduplication across adapters.
func (c *Candidate) Key() string {
	if c.Item.ExternalID != "" {
		return c.Item.ExternalID
	}
	return trackKey(c.Item.Artist, c.Item.Title)
}

func (c *Candidate) String() string {
	return fmt.Sprintf("%s [%s] %.1f", c.Item.Label(), c.Source, c.Score)
}
