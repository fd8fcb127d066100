package notify

import (
	"os"
	"path/filepath"
)

// coverNames lists album art filenames in priority order.
var coverNames = []string{
	"cover.jpg", "cover.png", "cover.jpeg",
	"folder.jpg", "folder.png", "folder.jpeg",
	"album.jpg", "album.png", "album.jpeg",
	"front.jpg", "front.png", "front.jpeg",
}

// FindAlbumArtPath looks for album art next to a local track.
// Returns an empty string when none is found.
func FindAlbumArtPath(trackPath string) string {
	if trackPath == "" || !filepath.IsAbs(trackPath) {
		return ""
	}
	dir := filepath.Dir(trackPath)
	for _, name := range coverNames {
		p := filepath.Join(dir, name)
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			return p
		}
	}
	return ""
}
