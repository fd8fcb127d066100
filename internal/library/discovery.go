package library

import (
	"context"
	"os"
	"path/filepath"
	"strings"
)

// musicExtensions lists the formats the local transport can decode.
var musicExtensions = map[string]bool{
	".mp3":  true,
	".flac": true,
	".wav":  true,
}

// IsMusicFile reports whether path has a playable audio extension.
func IsMusicFile(path string) bool {
	return musicExtensions[strings.ToLower(filepath.Ext(path))]
}

// discoverFiles walks the given source directories and returns all music files found,
// plus the set of discovered paths for the cleanup phase.
func discoverFiles(ctx context.Context, sources []string, progress chan<- ScanProgress) (files []fileInfo, discovered map[string]struct{}, err error) {
	for _, src := range sources {
		walkErr := filepath.WalkDir(src, func(path string, d os.DirEntry, walkErr error) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			// Unreadable entries are skipped so the rest of the tree is still scanned.
			if walkErr != nil {
				return nil //nolint:nilerr // intentionally skipping errors
			}
			if d.IsDir() || !IsMusicFile(path) {
				return nil
			}

			info, infoErr := d.Info()
			if infoErr != nil {
				return nil //nolint:nilerr // intentionally skipping errors
			}

			files = append(files, fileInfo{
				path:   path,
				mtime:  info.ModTime().Unix(),
				source: src,
			})

			if len(files)%100 == 0 {
				report(progress, ScanProgress{Phase: PhaseScanning, Current: len(files)})
			}
			return nil
		})
		if walkErr != nil {
			return nil, nil, walkErr
		}
	}

	discovered = make(map[string]struct{}, len(files))
	for _, f := range files {
		discovered[f.path] = struct{}{}
	}
	return files, discovered, nil
}

// underSource reports whether path lives in one of sources.
func underSource(path string, sources []string) bool {
	for _, src := range sources {
		rel, err := filepath.Rel(src, path)
		if err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return true
		}
	}
	return false
}
