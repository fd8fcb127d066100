package radio

import (
	"time"

	"github.com/llehouerou/autoplay/internal/media"
)

const (
	// SkipWindow is how long a skip keeps influencing scoring.
	SkipWindow = 30 * time.Minute
	// MaxSkipRecords caps the per-session skip log.
	MaxSkipRecords = 50
)

// SkipRecord is one user skip.
type SkipRecord struct {
	Artist string
	Genres []string
	Reason string
	At     time.Time
}

// SkipPatterns aggregates recent skips by normalised artist and genre.
type SkipPatterns struct {
	Artists map[string]int
	Genres  map[string]int
}

// SkipStore keeps the recent skips of one session.
// Stale records are filtered when read, never purged by a timer.
type SkipStore struct {
	records []SkipRecord
	now     func() time.Time
}

// NewSkipStore creates an empty store.
func NewSkipStore() *SkipStore {
	return &SkipStore{now: time.Now}
}

// RecordSkip logs a skip of item and trims to the last MaxSkipRecords entries.
func (s *SkipStore) RecordSkip(item media.Item, reason string) {
	s.records = append(s.records, SkipRecord{
		Artist: item.Artist,
		Genres: append([]string(nil), item.Genres...),
		Reason: reason,
		At:     s.now(),
	})
	if len(s.records) > MaxSkipRecords {
		excess := len(s.records) - MaxSkipRecords
		s.records = append(s.records[:0], s.records[excess:]...)
	}
}

// Patterns counts skips younger than SkipWindow.
func (s *SkipStore) Patterns() SkipPatterns {
	p := SkipPatterns{
		Artists: make(map[string]int),
		Genres:  make(map[string]int),
	}
	now := s.now()
	for i := range s.records {
		r := &s.records[i]
		if now.Sub(r.At) >= SkipWindow {
			continue
		}
		if r.Artist != "" {
			p.Artists[normalizeString(r.Artist)]++
		}
		for _, g := range r.Genres {
			if g = normalizeGenre(g); g != "" {
				p.Genres[g]++
			}
		}
	}
	return p
}

// Len returns the number of stored records, stale ones included.
func (s *SkipStore) Len() int {
	return len(s.records)
}

// Clear drops every record.
func (s *SkipStore) Clear() {
	s.records = nil
}
