// Package media defines the playable item shape shared by every backend and the
// autoplay core, plus the narrow backend contract the core consumes.
package media

import (
	"strings"
	"time"
)

// AudioFeatures holds the cached acoustic descriptors of an item.
// Energy, Valence and Danceability are in [0, 1].
type AudioFeatures struct {
	Energy       float64
	Valence      float64
	Danceability float64
	TempoBPM     float64
}

// Item is a playable unit, normalised from whatever backend produced it.
// It is treated as immutable once resolved.
type Item struct {
	Title      string
	Artist     string
	Album      string
	ExternalID string // backend-qualified id, e.g. "library:42", "spotify:track:..."
	URI        string // what the transport loads (file path or remote URI)
	Duration   time.Duration
	Source     string // backend or adapter that produced the item
	IsStream   bool
	Genres     []string
	Features   *AudioFeatures
	Year       int
	ISRC       string
	Popularity int // 0-100 as reported by the catalog, 0 when unknown

	// Carried across fallback replacements.
	RequestedBy string
	Autoplay    bool
}

// HasFeatures reports whether acoustic metadata is cached for the item.
func (it *Item) HasFeatures() bool {
	return it.Features != nil
}

// DurationMs returns the duration in milliseconds.
func (it *Item) DurationMs() int64 {
	return it.Duration.Milliseconds()
}

// Label returns "Artist - Title" for logs and notifications.
func (it *Item) Label() string {
	switch {
	case it.Artist == "":
		return it.Title
	case it.Title == "":
		return it.Artist
	default:
		return it.Artist + " - " + it.Title
	}
}

// SearchQuery returns the free-text query that best identifies the item.
func (it *Item) SearchQuery() string {
	return strings.TrimSpace(it.Artist + " " + it.Title)
}

// Clone returns a deep copy so that sessions never share slices or pointers.
func (it Item) Clone() Item {
	if it.Genres != nil {
		it.Genres = append([]string(nil), it.Genres...)
	}
	if it.Features != nil {
		f := *it.Features
		it.Features = &f
	}
	return it
}

// IDPrefix returns the backend prefix of an external id ("library" for "library:42").
func IDPrefix(id string) string {
	prefix, _, ok := strings.Cut(id, ":")
	if !ok {
		return ""
	}
	return prefix
}
