package radio

import (
	"cmp"
	"slices"
	"time"

	"github.com/llehouerou/autoplay/internal/media"
)

const (
	// ProfileWindow is how many history entries feed the statistics.
	ProfileWindow = 14
	trendSamples  = 5
	trendMinimum  = 3
	trendDelta    = 0.1
	lastArtistsN  = 3
	topListSize   = 10
)

// Trend is the direction of an acoustic feature across recent plays.
type Trend int

const (
	TrendUnknown Trend = iota
	TrendRising
	TrendFalling
	TrendStable
)

// String returns the trend name.
func (t Trend) String() string {
	switch t {
	case TrendRising:
		return "rising"
	case TrendFalling:
		return "falling"
	case TrendStable:
		return "stable"
	default:
		return "unknown"
	}
}

// ArtistWeight is an artist's share of the sampled plays.
type ArtistWeight struct {
	Name   string // as first seen
	Key    string // normalised
	Count  int
	Weight float64
}

// GenreWeight is a genre's share of the sampled plays.
type GenreWeight struct {
	Genre  string // normalised
	Count  int
	Weight float64
}

// Profile summarises a session's recent listening. It is derived on demand
// and never stored.
type Profile struct {
	TopArtists   []ArtistWeight
	TopGenres    []GenreWeight
	AvgDuration  time.Duration
	AvgTempoBPM  float64
	AvgFeatures  *media.AudioFeatures
	EnergyTrend  Trend
	ValenceTrend Trend
	// RecentIDs holds external ids and backend-independent track keys of
	// every history item plus the reference item.
	RecentIDs   map[string]struct{}
	LastArtists []string // most recent first
	SampleSize  int

	// artistCounts covers every sampled artist, not only TopArtists.
	artistCounts map[string]int
}

// IsRecent reports whether the item was already played in this session.
func (p *Profile) IsRecent(it *media.Item) bool {
	if p == nil || p.RecentIDs == nil {
		return false
	}
	if it.ExternalID != "" {
		if _, ok := p.RecentIDs[it.ExternalID]; ok {
			return true
		}
	}
	if key := trackKey(it.Artist, it.Title); key != "" {
		if _, ok := p.RecentIDs[key]; ok {
			return true
		}
	}
	return false
}

// ArtistCount returns how often the artist appears in the sampled plays.
func (p *Profile) ArtistCount(artist string) int {
	if p == nil {
		return 0
	}
	return p.artistCounts[normalizeString(artist)]
}

// BuildProfile derives a Profile from the session history (oldest first) and
// the reference item, which is normally the one playing or just finished.
func BuildProfile(history []media.Item, reference *media.Item) Profile {
	p := Profile{RecentIDs: make(map[string]struct{})}

	for i := range history {
		p.addRecent(&history[i])
	}
	if reference != nil {
		p.addRecent(reference)
	}

	sample := history
	if len(sample) > ProfileWindow {
		sample = sample[len(sample)-ProfileWindow:]
	}
	items := make([]media.Item, 0, len(sample)+1)
	items = append(items, sample...)
	if reference != nil {
		items = append(items, *reference)
	}
	p.SampleSize = len(items)
	if p.SampleSize == 0 {
		return p
	}

	p.TopArtists, p.artistCounts = topArtists(items)
	p.TopGenres = topGenres(items)
	p.LastArtists = lastArtists(items)

	var durSum time.Duration
	durN := 0
	var energies, valences []float64
	var sum media.AudioFeatures
	tempoSum, tempoN := 0.0, 0
	for i := range items {
		it := &items[i]
		if it.Duration > 0 {
			durSum += it.Duration
			durN++
		}
		if !it.HasFeatures() {
			continue
		}
		f := it.Features
		sum.Energy += f.Energy
		sum.Valence += f.Valence
		sum.Danceability += f.Danceability
		energies = append(energies, f.Energy)
		valences = append(valences, f.Valence)
		if f.TempoBPM > 0 {
			tempoSum += f.TempoBPM
			tempoN++
		}
	}
	if durN > 0 {
		p.AvgDuration = durSum / time.Duration(durN)
	}
	if n := float64(len(energies)); n > 0 {
		p.AvgFeatures = &media.AudioFeatures{
			Energy:       sum.Energy / n,
			Valence:      sum.Valence / n,
			Danceability: sum.Danceability / n,
		}
		if tempoN > 0 {
			p.AvgTempoBPM = tempoSum / float64(tempoN)
			p.AvgFeatures.TempoBPM = p.AvgTempoBPM
		}
	}
	p.EnergyTrend = detectTrend(energies)
	p.ValenceTrend = detectTrend(valences)

	return p
}

func (p *Profile) addRecent(it *media.Item) {
	if it.ExternalID != "" {
		p.RecentIDs[it.ExternalID] = struct{}{}
	}
	if key := trackKey(it.Artist, it.Title); key != "" {
		p.RecentIDs[key] = struct{}{}
	}
}

// topArtists returns the most played artists, capped at topListSize, and
// the play count of every artist in items.
func topArtists(items []media.Item) ([]ArtistWeight, map[string]int) {
	idx := make(map[string]int)
	var out []ArtistWeight
	for i := range items {
		key := normalizeString(items[i].Artist)
		if key == "" {
			continue
		}
		if j, ok := idx[key]; ok {
			out[j].Count++
			continue
		}
		idx[key] = len(out)
		out = append(out, ArtistWeight{Name: items[i].Artist, Key: key, Count: 1})
	}
	total := float64(len(items))
	counts := make(map[string]int, len(out))
	for i := range out {
		out[i].Weight = float64(out[i].Count) / total
		counts[out[i].Key] = out[i].Count
	}
	slices.SortStableFunc(out, func(a, b ArtistWeight) int {
		return cmp.Compare(b.Count, a.Count)
	})
	if len(out) > topListSize {
		out = out[:topListSize]
	}
	return out, counts
}

func topGenres(items []media.Item) []GenreWeight {
	idx := make(map[string]int)
	var out []GenreWeight
	for i := range items {
		seen := make(map[string]bool)
		for _, g := range items[i].Genres {
			g = normalizeGenre(g)
			if g == "" || seen[g] {
				continue
			}
			seen[g] = true
			if j, ok := idx[g]; ok {
				out[j].Count++
				continue
			}
			idx[g] = len(out)
			out = append(out, GenreWeight{Genre: g, Count: 1})
		}
	}
	total := float64(len(items))
	for i := range out {
		out[i].Weight = float64(out[i].Count) / total
	}
	slices.SortStableFunc(out, func(a, b GenreWeight) int {
		return cmp.Compare(b.Count, a.Count)
	})
	if len(out) > topListSize {
		out = out[:topListSize]
	}
	return out
}

func lastArtists(items []media.Item) []string {
	out := make([]string, 0, lastArtistsN)
	for i := len(items) - 1; i >= 0 && len(out) < lastArtistsN; i-- {
		out = append(out, items[i].Artist)
	}
	return out
}

// detectTrend compares the halves of the last trendSamples values.
func detectTrend(values []float64) Trend {
	if len(values) > trendSamples {
		values = values[len(values)-trendSamples:]
	}
	if len(values) < trendMinimum {
		return TrendUnknown
	}
	half := len(values) / 2
	diff := mean(values[half:]) - mean(values[:half])
	switch {
	case diff > trendDelta:
		return TrendRising
	case diff < -trendDelta:
		return TrendFalling
	default:
		return TrendStable
	}
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	s := 0.0
	for _, v := range values {
		s += v
	}
	return s / float64(len(values))
}
