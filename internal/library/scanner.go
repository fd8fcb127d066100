package library

import (
	"context"
	"database/sql"
	"sync"
	"sync/atomic"
	"time"

	"github.com/llehouerou/autoplay/internal/db"
	"github.com/llehouerou/autoplay/internal/logging"
)

const numWorkers = 8

// Scan phases reported on the progress channel.
const (
	PhaseScanning   = "scanning"
	PhaseProcessing = "processing"
	PhaseCleaning   = "cleaning"
	PhaseDone       = "done"
)

// ScanProgress reports the progress of a library scan.
type ScanProgress struct {
	Phase   string
	Current int
	Total   int
}

// ScanStats counts what a scan changed.
type ScanStats struct {
	Added   int
	Updated int
	Removed int
	Skipped int // unreadable or untagged files
}

// Changed reports whether the scan modified the index.
func (s ScanStats) Changed() bool {
	return s.Added+s.Updated+s.Removed > 0
}

// fileInfo holds information about a discovered music file.
type fileInfo struct {
	path   string
	mtime  int64
	source string
}

// trackResult holds the result of processing a music file.
type trackResult struct {
	file  fileInfo
	tags  *trackTags
	isNew bool
}

// Refresh performs an incremental scan of the given source directories:
// new and modified files are (re)indexed, vanished files are removed.
// progress may be nil; it is closed when Refresh returns. Updates are
// dropped when the consumer lags behind.
func (l *Library) Refresh(ctx context.Context, sources []string, progress chan<- ScanProgress) (ScanStats, error) {
	if progress != nil {
		defer close(progress)
	}
	log := logging.With("library")
	start := time.Now()
	var stats ScanStats

	// Phase 1: Scan directories for music files
	report(progress, ScanProgress{Phase: PhaseScanning})
	files, discovered, err := discoverFiles(ctx, sources, progress)
	if err != nil {
		return stats, err
	}

	// Phase 2: Filter to new or modified files
	existing, err := l.existingTracks(sources)
	if err != nil {
		return stats, err
	}
	toProcess := make([]fileInfo, 0, len(files))
	for _, f := range files {
		if mtime, ok := existing[f.path]; ok && mtime == f.mtime {
			continue
		}
		toProcess = append(toProcess, f)
	}

	// Phase 3: Read tags in parallel, write sequentially
	if len(toProcess) > 0 {
		if err := l.processFiles(ctx, toProcess, existing, &stats, progress); err != nil {
			return stats, err
		}
	}

	// Phase 4: Clean up deleted files
	report(progress, ScanProgress{Phase: PhaseCleaning})
	for path := range existing {
		if _, ok := discovered[path]; ok {
			continue
		}
		if _, err := l.db.Exec(`DELETE FROM library_tracks WHERE path = ?`, path); err != nil {
			return stats, err
		}
		stats.Removed++
	}

	if stats.Changed() {
		if err := l.RebuildFTSIndex(); err != nil {
			return stats, err
		}
	}

	log.Info().
		Int("files", len(files)).
		Int("added", stats.Added).
		Int("updated", stats.Updated).
		Int("removed", stats.Removed).
		Int("skipped", stats.Skipped).
		Dur("took", time.Since(start)).
		Msg("library refreshed")

	report(progress, ScanProgress{Phase: PhaseDone, Current: len(files), Total: len(files)})
	return stats, nil
}

// processFiles reads tags with a worker pool and upserts the results.
func (l *Library) processFiles(
	ctx context.Context,
	files []fileInfo,
	existing map[string]int64,
	stats *ScanStats,
	progress chan<- ScanProgress,
) error {
	total := len(files)
	var processed, skipped atomic.Int64

	workCh := make(chan fileInfo)
	resultCh := make(chan trackResult, numWorkers)

	var wg sync.WaitGroup
	for range numWorkers {
		wg.Go(func() {
			for f := range workCh {
				info, err := readTrackTags(f.path)
				processed.Add(1)
				if err != nil || info.Artist == "" {
					skipped.Add(1)
					continue
				}
				_, known := existing[f.path]
				resultCh <- trackResult{file: f, tags: info, isNew: !known}
			}
		})
	}

	go func() {
		defer close(workCh)
		for _, f := range files {
			select {
			case workCh <- f:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(resultCh)
	}()

	// Sequential writes; SQLite has a single writer anyway.
	var writeErr error
	for res := range resultCh {
		if writeErr != nil {
			continue
		}
		writeErr = db.WithTxContext(ctx, l.db, func(tx *sql.Tx) error {
			return upsertTrack(tx, res.file, res.tags)
		})
		if writeErr != nil {
			continue
		}
		if res.isNew {
			stats.Added++
		} else {
			stats.Updated++
		}
		report(progress, ScanProgress{Phase: PhaseProcessing, Current: int(processed.Load()), Total: total})
	}
	stats.Skipped += int(skipped.Load())

	if writeErr != nil {
		return writeErr
	}
	return ctx.Err()
}

// existingTracks returns path->mtime for indexed tracks under sources.
func (l *Library) existingTracks(sources []string) (map[string]int64, error) {
	rows, err := l.db.Query(`SELECT path, mtime FROM library_tracks`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tracks := make(map[string]int64)
	for rows.Next() {
		var path string
		var mtime int64
		if err := rows.Scan(&path, &mtime); err != nil {
			return nil, err
		}
		if underSource(path, sources) {
			tracks[path] = mtime
		}
	}
	return tracks, rows.Err()
}

// upsertTrack inserts or updates a track. added_at uses the file mtime so it
// survives copies.
func upsertTrack(ex executor, f fileInfo, t *trackTags) error {
	now := time.Now().Unix()
	_, err := ex.Exec(`
		INSERT INTO library_tracks (path, mtime, artist, album_artist, album, title,
			disc_number, track_number, year, genre, isrc, duration_ms, added_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			mtime = excluded.mtime,
			artist = excluded.artist,
			album_artist = excluded.album_artist,
			album = excluded.album,
			title = excluded.title,
			disc_number = excluded.disc_number,
			track_number = excluded.track_number,
			year = excluded.year,
			genre = excluded.genre,
			isrc = excluded.isrc,
			duration_ms = excluded.duration_ms,
			updated_at = excluded.updated_at
	`, f.path, f.mtime, t.Artist, t.AlbumArtist, t.Album, t.Title,
		t.Disc, t.Track, t.Year, t.Genre, t.ISRC, t.Duration.Milliseconds(), f.mtime, now)
	return err
}

// report sends p without blocking.
func report(progress chan<- ScanProgress, p ScanProgress) {
	if progress == nil {
		return
	}
	select {
	case progress <- p:
	default:
	}
}
