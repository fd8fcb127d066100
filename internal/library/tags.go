package library

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dhowden/tag"

	"github.com/llehouerou/autoplay/internal/player"
)

// trackTags is the metadata read from one audio file.
type trackTags struct {
	Title       string
	Artist      string
	AlbumArtist string
	Album       string
	Genre       string
	Year        int
	Disc        int
	Track       int
	ISRC        string
	Duration    time.Duration
}

// readTrackTags reads the tags of path and probes its duration.
func readTrackTags(path string) (*trackTags, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	m, err := tag.ReadFrom(f)
	if err != nil {
		return nil, fmt.Errorf("read tags: %w", err)
	}

	t := &trackTags{
		Title:       strings.TrimSpace(m.Title()),
		Artist:      strings.TrimSpace(m.Artist()),
		AlbumArtist: strings.TrimSpace(m.AlbumArtist()),
		Album:       strings.TrimSpace(m.Album()),
		Genre:       strings.TrimSpace(m.Genre()),
		Year:        m.Year(),
		ISRC:        normalizeISRC(isrcFromRaw(m.Raw())),
	}
	t.Track, _ = m.Track()
	t.Disc, _ = m.Disc()

	if t.Title == "" {
		t.Title = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	if t.AlbumArtist == "" {
		t.AlbumArtist = t.Artist
	}

	// A file whose length cannot be probed is still indexed; the transport
	// reports the failure if it cannot play it either.
	if d, err := player.ProbeDuration(path); err == nil {
		t.Duration = d
	}
	return t, nil
}

// isrcFromRaw finds the ISRC frame: TSRC in ID3v2, ISRC in Vorbis comments
// and the iTunes freeform atom in MP4.
func isrcFromRaw(raw map[string]any) string {
	for k, v := range raw {
		key := strings.ToLower(k)
		if key != "tsrc" && key != "isrc" && !strings.HasSuffix(key, ":isrc") {
			continue
		}
		switch val := v.(type) {
		case string:
			return val
		case []string:
			if len(val) > 0 {
				return val[0]
			}
		case fmt.Stringer:
			return val.String()
		}
	}
	return ""
}
