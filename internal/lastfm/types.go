package lastfm

import "time"

// ScrobbleTrack contains track metadata for scrobbling.
type ScrobbleTrack struct {
	Artist        string
	Track         string
	Album         string
	AlbumArtist   string
	Duration      time.Duration
	Timestamp     time.Time // When playback started
	MBRecordingID string    // Optional MusicBrainz recording ID
}

// SimilarTrack is a track Last.fm considers close to a reference track.
type SimilarTrack struct {
	Name       string
	Artist     string
	MBID       string
	MatchScore float64 // 0.0-1.0 similarity score
	Playcount  int
	Duration   time.Duration
}

// Tag is a folksonomy tag with its relative weight (0-100).
type Tag struct {
	Name  string
	Count int
}
