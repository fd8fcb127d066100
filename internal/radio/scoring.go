package radio

import (
	"fmt"
	"math"
	"strings"
	"time"
)

const (
	baseScore       = 50.0
	duplicateVeto   = -1000.0
	diversityWindow = 3 // top artists considered "recent favourites"
	driftMinGenres  = 3
)

// TimeOfDay is the listening time bucket used for energy fit.
type TimeOfDay int

const (
	Morning TimeOfDay = iota
	Afternoon
	Evening
	Night
)

// TimeOfDayAt buckets t by local hour: morning 05-12, afternoon 12-17,
// evening 17-22, night otherwise.
func TimeOfDayAt(t time.Time) TimeOfDay {
	switch h := t.Hour(); {
	case h >= 5 && h < 12:
		return Morning
	case h >= 12 && h < 17:
		return Afternoon
	case h >= 17 && h < 22:
		return Evening
	default:
		return Night
	}
}

// TargetEnergy returns the energy level that suits the bucket.
func (t TimeOfDay) TargetEnergy() float64 {
	switch t {
	case Morning:
		return 0.6
	case Afternoon:
		return 0.75
	case Evening:
		return 0.55
	default:
		return 0.4
	}
}

func (t TimeOfDay) String() string {
	switch t {
	case Morning:
		return "morning"
	case Afternoon:
		return "afternoon"
	case Evening:
		return "evening"
	default:
		return "night"
	}
}

// scorer accumulates points and the matching trace lines.
type scorer struct {
	total float64
	trace []string
}

func (s *scorer) add(points float64, format string, args ...any) {
	if points == 0 {
		return
	}
	s.total += points
	s.trace = append(s.trace, fmt.Sprintf("%+.1f ", points)+fmt.Sprintf(format, args...))
}

// Score rates a candidate against the session profile. The result is never
// negative and is exactly 0 for a candidate already played in the session.
// Score is pure: it reads c but does not modify it.
func Score(c *Candidate, p *Profile, skips SkipPatterns, tod TimeOfDay) (float64, []string) {
	if p == nil {
		p = &Profile{}
	}
	if p.IsRecent(&c.Item) {
		return 0, []string{fmt.Sprintf("%+.0f duplicate veto", duplicateVeto)}
	}

	s := &scorer{total: baseScore, trace: []string{fmt.Sprintf("%+.1f base", baseScore)}}
	it := &c.Item

	if n := p.ArtistCount(it.Artist); n > 0 {
		s.add(5*float64(n), "artist familiarity (%d plays)", n)
	}

	scoreDuration(s, c, p)
	s.add(c.Source.Bonus(), "source %s", c.Source)
	scoreGenres(s, c, p)
	scoreTempo(s, c, p)

	if it.HasFeatures() {
		diff := math.Abs(it.Features.Energy - tod.TargetEnergy())
		switch {
		case diff < 0.15:
			s.add(12, "%s energy fit", tod)
		case diff < 0.3:
			s.add(6, "%s energy near", tod)
		}
	}

	switch pop := c.Popularity; {
	case pop <= 0:
	case pop >= 50 && pop <= 85:
		s.add(10, "popularity %d", pop)
	case pop < 25:
		s.add(-5, "obscure (popularity %d)", pop)
	case pop > 95:
		s.add(-3, "overplayed (popularity %d)", pop)
	}

	if it.HasFeatures() && p.AvgFeatures != nil {
		s.add(trendPoints(it.Features.Valence, p.AvgFeatures.Valence, p.ValenceTrend, 12, 8), "mood %s", p.ValenceTrend)
		s.add(trendPoints(it.Features.Energy, p.AvgFeatures.Energy, p.EnergyTrend, 15, 10), "energy arc %s", p.EnergyTrend)
	}

	if p.isTopArtist(it.Artist) {
		s.add(-10, "artist among recent favourites")
	} else {
		s.add(20, "artist diversity")
	}

	if n := skips.Artists[normalizeString(it.Artist)]; n > 0 {
		s.add(-20*float64(n), "artist skipped %d times", n)
	}
	for _, g := range uniqueGenres(it.Genres) {
		if n := skips.Genres[g]; n > 0 {
			s.add(-15*float64(n), "genre %q skipped %d times", g, n)
		}
	}

	return max(0, s.total), s.trace
}

func scoreDuration(s *scorer, c *Candidate, p *Profile) {
	if p.AvgDuration <= 0 || c.Item.Duration <= 0 {
		return
	}
	dev := math.Abs(float64(c.Item.Duration-p.AvgDuration)) / float64(p.AvgDuration)
	switch {
	case dev < 0.2:
		s.add(10, "duration close to average")
	case dev < 0.4:
		s.add(5, "duration near average")
	default:
		s.add(-5, "duration off by %.0f%%", dev*100)
	}
}

func scoreGenres(s *scorer, c *Candidate, p *Profile) {
	if len(p.TopGenres) == 0 {
		return
	}
	genres := uniqueGenres(c.Item.Genres)
	if len(genres) == 0 {
		if len(p.TopGenres) >= driftMinGenres {
			s.add(-10, "no genre data")
		}
		return
	}

	matched := false
	for _, top := range p.TopGenres {
		exact, partial := false, false
		for _, g := range genres {
			if g == top.Genre {
				exact = true
				break
			}
			if strings.Contains(g, top.Genre) || strings.Contains(top.Genre, g) {
				partial = true
			}
		}
		switch {
		case exact:
			s.add(30*top.Weight, "genre %q", top.Genre)
			matched = true
		case partial:
			s.add(15*top.Weight, "genre ~%q", top.Genre)
			matched = true
		}
	}
	if !matched && len(p.TopGenres) >= driftMinGenres {
		s.add(-25, "genre drift")
	}
}

func scoreTempo(s *scorer, c *Candidate, p *Profile) {
	if p.AvgTempoBPM <= 0 || !c.Item.HasFeatures() || c.Item.Features.TempoBPM <= 0 {
		return
	}
	diff := math.Abs(c.Item.Features.TempoBPM - p.AvgTempoBPM)
	switch {
	case diff < 15:
		s.add(15, "tempo consistent")
	case diff < 30:
		s.add(8, "tempo close")
	case diff > 60:
		s.add(-5, "tempo jump %.0f bpm", diff)
	}
}

// trendPoints rewards a value that continues the trend direction, or stays
// near the average when the trend is stable.
func trendPoints(value, avg float64, trend Trend, follow, steady float64) float64 {
	switch trend {
	case TrendRising:
		if value > avg {
			return follow
		}
	case TrendFalling:
		if value < avg {
			return follow
		}
	case TrendStable:
		if math.Abs(value-avg) < 0.15 {
			return steady
		}
	}
	return 0
}

func (p *Profile) isTopArtist(artist string) bool {
	key := normalizeString(artist)
	for i, a := range p.TopArtists {
		if i >= diversityWindow {
			break
		}
		if a.Key == key {
			return true
		}
	}
	return false
}

func uniqueGenres(genres []string) []string {
	out := make([]string, 0, len(genres))
	seen := make(map[string]bool, len(genres))
	for _, g := range genres {
		g = normalizeGenre(g)
		if g == "" || seen[g] {
			continue
		}
		seen[g] = true
		out = append(out, g)
	}
	return out
}

// ScoreAll scores every candidate in place.
func ScoreAll(cands []Candidate, p *Profile, skips SkipPatterns, tod TimeOfDay) {
	for i := range cands {
		cands[i].Score, cands[i].Trace = Score(&cands[i], p, skips, tod)
	}
}
