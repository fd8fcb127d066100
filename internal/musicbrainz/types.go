package musicbrainz

import "time"

// Recording is a MusicBrainz recording matched by ISRC.
type Recording struct {
	ID       string
	Title    string
	Artist   string
	Length   time.Duration
	Releases []string
}

// SearchQuery returns "Title Artist", the form media backends search best.
func (r Recording) SearchQuery() string {
	if r.Artist == "" {
		return r.Title
	}
	return r.Title + " " + r.Artist
}

// Internal API response types

type isrcResponse struct {
	ISRC       string            `json:"isrc"`
	Recordings []recordingResult `json:"recordings"`
}

type recordingResult struct {
	ID           string         `json:"id"`
	Title        string         `json:"title"`
	Length       int64          `json:"length"`
	ArtistCredit []artistCredit `json:"artist-credit"`
	Releases     []release      `json:"releases"`
}

type artistCredit struct {
	Name       string `json:"name"`
	JoinPhrase string `json:"joinphrase"`
	Artist     struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"artist"`
}

type release struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}
