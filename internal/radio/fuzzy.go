package radio

import (
	"strings"
	"unicode"

	"github.com/llehouerou/autoplay/internal/media"
)

// normalizeString normalizes a string for comparison.
// Converts to lowercase, removes punctuation, and collapses whitespace.
func normalizeString(s string) string {
	s = strings.ToLower(s)

	// Remove common suffixes that cause mismatches between catalogs
	s = strings.TrimSuffix(s, " (remastered)")
	s = strings.TrimSuffix(s, " (remaster)")
	s = strings.TrimSuffix(s, " - remastered")
	s = strings.TrimSuffix(s, " [remastered]")
	s = strings.TrimSuffix(s, " (official video)")
	s = strings.TrimSuffix(s, " (official audio)")

	var result strings.Builder
	lastWasSpace := true // Start true to trim leading spaces

	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			result.WriteRune(r)
			lastWasSpace = false
		} else if unicode.IsSpace(r) || r == '-' || r == '_' {
			if !lastWasSpace {
				result.WriteRune(' ')
				lastWasSpace = true
			}
		}
	}

	return strings.TrimSpace(result.String())
}

// normalizeGenre lowercases a genre tag and unifies separators ("Hip-Hop" == "hip hop").
func normalizeGenre(g string) string {
	return normalizeString(g)
}

// trackKey identifies a recording independently of the backend that returned it.
func trackKey(artist, title string) string {
	a, t := normalizeString(artist), normalizeString(title)
	if a == "" && t == "" {
		return ""
	}
	return "track:" + a + "|" + t
}

// similarity calculates the similarity between two strings using Levenshtein distance.
// Returns a value between 0 and 1, where 1 means identical.
func similarity(a, b string) float64 {
	if a == b {
		return 1.0
	}

	lenA := len([]rune(a))
	lenB := len([]rune(b))

	if lenA == 0 || lenB == 0 {
		return 0.0
	}

	dist := levenshteinDistance(a, b)
	return 1.0 - float64(dist)/float64(max(lenA, lenB))
}

// levenshteinDistance calculates the edit distance between two strings.
func levenshteinDistance(a, b string) int {
	runesA := []rune(a)
	runesB := []rune(b)

	if len(runesA) == 0 {
		return len(runesB)
	}
	if len(runesB) == 0 {
		return len(runesA)
	}

	prev := make([]int, len(runesB)+1)
	curr := make([]int, len(runesB)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(runesA); i++ {
		curr[0] = i
		for j := 1; j <= len(runesB); j++ {
			cost := 1
			if runesA[i-1] == runesB[j-1] {
				cost = 0
			}
			curr[j] = min(
				prev[j]+1,      // deletion
				curr[j-1]+1,    // insertion
				prev[j-1]+cost, // substitution
			)
		}
		prev, curr = curr, prev
	}

	return prev[len(runesB)]
}

// bestMatch returns the item whose artist and title are closest to the wanted
// ones, provided both similarities reach threshold.
func bestMatch(items []media.Item, artist, title string, threshold float64) (media.Item, bool) {
	wantArtist := normalizeString(artist)
	wantTitle := normalizeString(title)

	best := -1
	bestScore := 0.0
	for i := range items {
		as := similarity(wantArtist, normalizeString(items[i].Artist))
		ts := similarity(wantTitle, normalizeString(items[i].Title))
		if as < threshold || ts < threshold {
			continue
		}
		if score := as + ts; score > bestScore {
			best, bestScore = i, score
		}
	}
	if best < 0 {
		return media.Item{}, false
	}
	return items[best], true
}
