package radio

import (
	"database/sql"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/llehouerou/autoplay/internal/lastfm"
)

// setupTestDB creates an in-memory SQLite database with the cache tables.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	db.SetMaxOpenConns(1)

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS lastfm_similar_tracks (
			artist TEXT NOT NULL,
			track TEXT NOT NULL,
			similar_artist TEXT NOT NULL,
			similar_track TEXT NOT NULL,
			mbid TEXT NOT NULL DEFAULT '',
			match_score REAL NOT NULL,
			playcount INTEGER NOT NULL DEFAULT 0,
			duration_ms INTEGER NOT NULL DEFAULT 0,
			fetched_at INTEGER NOT NULL,
			PRIMARY KEY (artist, track, similar_artist, similar_track)
		);

		CREATE TABLE IF NOT EXISTS lastfm_artist_tags (
			artist TEXT NOT NULL,
			tag TEXT NOT NULL,
			weight INTEGER NOT NULL,
			fetched_at INTEGER NOT NULL,
			PRIMARY KEY (artist, tag)
		);
	`)
	if err != nil {
		db.Close()
		t.Fatalf("failed to create tables: %v", err)
	}

	return db
}

func TestCache_SimilarTracks_Empty(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	cache := NewCache(db, 7)

	result, err := cache.GetSimilarTracks("Unknown Artist", "Unknown")
	if err != nil {
		t.Fatalf("GetSimilarTracks failed: %v", err)
	}
	if result != nil {
		t.Errorf("expected nil for unknown track, got %v", result)
	}
}

func TestCache_SimilarTracks_SetAndGet(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	cache := NewCache(db, 7)

	similar := []lastfm.SimilarTrack{
		{Name: "Song B", Artist: "Band B", MatchScore: 0.75},
		{Name: "Song A", Artist: "Band A", MatchScore: 0.95, Playcount: 1200, Duration: 200 * time.Second},
	}

	if err := cache.SetSimilarTracks("Test Artist", "Test Song", similar); err != nil {
		t.Fatalf("SetSimilarTracks failed: %v", err)
	}

	// Lookups are normalised
	result, err := cache.GetSimilarTracks("test artist", "TEST SONG")
	if err != nil {
		t.Fatalf("GetSimilarTracks failed: %v", err)
	}
	if len(result) != 2 {
		t.Fatalf("expected 2 similar tracks, got %d", len(result))
	}

	// Sorted by match score descending
	got := result[0]
	if got.Name != "Song A" || got.Artist != "Band A" {
		t.Errorf("first similar = %q by %q, want Song A by Band A", got.Name, got.Artist)
	}
	if got.Playcount != 1200 {
		t.Errorf("playcount = %d, want 1200", got.Playcount)
	}
	if got.Duration != 200*time.Second {
		t.Errorf("duration = %v, want 200s", got.Duration)
	}
}

func TestCache_SimilarTracks_Replace(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	cache := NewCache(db, 7)

	_ = cache.SetSimilarTracks("Artist", "Song", []lastfm.SimilarTrack{{Name: "Old", Artist: "X", MatchScore: 0.9}})
	_ = cache.SetSimilarTracks("Artist", "Song", []lastfm.SimilarTrack{{Name: "New", Artist: "Y", MatchScore: 0.8}})

	result, _ := cache.GetSimilarTracks("Artist", "Song")
	if len(result) != 1 {
		t.Fatalf("expected 1 similar track, got %d", len(result))
	}
	if result[0].Name != "New" {
		t.Errorf("similar = %q, want %q", result[0].Name, "New")
	}
}

func TestCache_SimilarTracks_Expired(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	cache := NewCache(db, 7)

	_ = cache.SetSimilarTracks("Artist", "Song", []lastfm.SimilarTrack{{Name: "S", Artist: "X", MatchScore: 0.9}})

	oldTime := time.Now().AddDate(0, 0, -10).Unix()
	_, _ = db.Exec(`UPDATE lastfm_similar_tracks SET fetched_at = ?`, oldTime)

	result, err := cache.GetSimilarTracks("Artist", "Song")
	if err != nil {
		t.Fatalf("GetSimilarTracks failed: %v", err)
	}
	if result != nil {
		t.Errorf("expected nil for expired data, got %v", result)
	}
}

func TestCache_ArtistTags_SetAndGet(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	cache := NewCache(db, 7)

	tags := []lastfm.Tag{
		{Name: "shoegaze", Count: 60},
		{Name: "dream pop", Count: 100},
	}
	if err := cache.SetArtistTags("Slowdive", tags); err != nil {
		t.Fatalf("SetArtistTags failed: %v", err)
	}

	result, err := cache.GetArtistTags("Slowdive")
	if err != nil {
		t.Fatalf("GetArtistTags failed: %v", err)
	}
	if len(result) != 2 {
		t.Fatalf("expected 2 tags, got %d", len(result))
	}
	if result[0].Name != "dream pop" {
		t.Errorf("first tag = %q, want %q", result[0].Name, "dream pop")
	}
}

func TestCache_ArtistTags_EmptyIsCached(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	cache := NewCache(db, 7)

	if err := cache.SetArtistTags("Nobody", nil); err != nil {
		t.Fatalf("SetArtistTags failed: %v", err)
	}

	result, err := cache.GetArtistTags("Nobody")
	if err != nil {
		t.Fatalf("GetArtistTags failed: %v", err)
	}
	if result == nil {
		t.Fatal("expected cached empty list, got nil")
	}
	if len(result) != 0 {
		t.Errorf("expected no tags, got %v", result)
	}
}

func TestCache_CleanExpired(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	cache := NewCache(db, 7)

	_ = cache.SetSimilarTracks("Old", "Song", []lastfm.SimilarTrack{{Name: "S", Artist: "X", MatchScore: 0.9}})
	_ = cache.SetSimilarTracks("Recent", "Song", []lastfm.SimilarTrack{{Name: "S", Artist: "X", MatchScore: 0.9}})
	_ = cache.SetArtistTags("Old", []lastfm.Tag{{Name: "rock", Count: 100}})

	oldTime := time.Now().AddDate(0, 0, -10).Unix()
	_, _ = db.Exec(`UPDATE lastfm_similar_tracks SET fetched_at = ? WHERE artist = 'old'`, oldTime)
	_, _ = db.Exec(`UPDATE lastfm_artist_tags SET fetched_at = ?`, oldTime)

	if err := cache.CleanExpired(); err != nil {
		t.Fatalf("CleanExpired failed: %v", err)
	}

	var count int
	_ = db.QueryRow(`SELECT COUNT(*) FROM lastfm_similar_tracks WHERE artist = 'old'`).Scan(&count)
	if count != 0 {
		t.Errorf("expected old similar tracks to be cleaned, got %d", count)
	}
	_ = db.QueryRow(`SELECT COUNT(*) FROM lastfm_artist_tags`).Scan(&count)
	if count != 0 {
		t.Errorf("expected 0 tags after clean, got %d", count)
	}

	if result, _ := cache.GetSimilarTracks("Recent", "Song"); result == nil {
		t.Error("recent data should be kept")
	}
}

func TestCache_IsExpired(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	cache := NewCache(db, 7)

	if cache.isExpired(time.Now().Unix()) {
		t.Error("recent timestamp should not be expired")
	}
	if !cache.isExpired(time.Now().AddDate(0, 0, -10).Unix()) {
		t.Error("10 days old timestamp should be expired with 7 day TTL")
	}
	// Exactly at TTL boundary - uses strict < comparison
	if cache.isExpired(time.Now().AddDate(0, 0, -7).Unix()) {
		t.Error("timestamp exactly at TTL boundary should not be expired")
	}
}
