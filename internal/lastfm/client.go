package lastfm

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shkh/lastfm-go/lastfm"
)

// ErrNotAuthenticated is returned when an operation requires authentication.
var ErrNotAuthenticated = errors.New("not authenticated")

// Client wraps the Last.fm API for scrobbling and similarity lookups.
type Client struct {
	api        *lastfm.Api
	apiKey     string
	apiSecret  string
	sessionKey string
}

// New creates a new Last.fm client with the given API credentials.
func New(apiKey, apiSecret string) *Client {
	return &Client{
		api:       lastfm.New(apiKey, apiSecret),
		apiKey:    apiKey,
		apiSecret: apiSecret,
	}
}

// SetSessionKey sets the authenticated session key.
func (c *Client) SetSessionKey(key string) {
	c.sessionKey = key
	c.api.SetSession(key)
}

// SessionKey returns the current session key.
func (c *Client) SessionKey() string {
	return c.sessionKey
}

// IsAuthenticated returns true if a session key is set.
func (c *Client) IsAuthenticated() bool {
	return c.sessionKey != ""
}

// GetToken requests an authentication token from Last.fm.
func (c *Client) GetToken() (string, error) {
	result, err := c.api.GetToken()
	if err != nil {
		return "", fmt.Errorf("get token: %w", err)
	}
	return result, nil
}

// GetAuthURL returns the URL for user authorization (desktop auth flow).
// The user authorizes on Last.fm, then confirms on the terminal.
func (c *Client) GetAuthURL(token string) string {
	return fmt.Sprintf("https://www.last.fm/api/auth/?api_key=%s&token=%s", c.apiKey, token)
}

// GetSession exchanges an authorized token for a session key.
func (c *Client) GetSession(token string) (username, sessionKey string, err error) {
	err = c.api.LoginWithToken(token)
	if err != nil {
		return "", "", fmt.Errorf("get session: %w", err)
	}

	// Get the session key from the API
	sessionKey = c.api.GetSessionKey()
	c.sessionKey = sessionKey

	// Get the username by calling user.getInfo
	userInfo, err := c.api.User.GetInfo(nil)
	if err != nil {
		// Session is valid but couldn't get username - still return session
		// This can happen if Last.fm API is temporarily unavailable
		return "unknown", sessionKey, nil //nolint:nilerr // username is optional
	}

	return userInfo.Name, sessionKey, nil
}

// UpdateNowPlaying sends a "now playing" notification to Last.fm.
func (c *Client) UpdateNowPlaying(track ScrobbleTrack) error {
	if !c.IsAuthenticated() {
		return ErrNotAuthenticated
	}

	params := lastfm.P{
		"artist": track.Artist,
		"track":  track.Track,
	}

	if track.Album != "" {
		params["album"] = track.Album
	}
	if track.AlbumArtist != "" && track.AlbumArtist != track.Artist {
		params["albumArtist"] = track.AlbumArtist
	}
	if track.Duration > 0 {
		params["duration"] = int(track.Duration.Seconds())
	}
	if track.MBRecordingID != "" {
		params["mbid"] = track.MBRecordingID
	}

	_, err := c.api.Track.UpdateNowPlaying(params)
	if err != nil {
		return fmt.Errorf("update now playing: %w", err)
	}
	return nil
}

// Scrobble submits a track play to Last.fm.
func (c *Client) Scrobble(track ScrobbleTrack) error {
	if !c.IsAuthenticated() {
		return ErrNotAuthenticated
	}

	params := lastfm.P{
		"artist":    track.Artist,
		"track":     track.Track,
		"timestamp": track.Timestamp.Unix(),
	}

	if track.Album != "" {
		params["album"] = track.Album
	}
	if track.AlbumArtist != "" && track.AlbumArtist != track.Artist {
		params["albumArtist"] = track.AlbumArtist
	}
	if track.Duration > 0 {
		params["duration"] = int(track.Duration.Seconds())
	}
	if track.MBRecordingID != "" {
		params["mbid"] = track.MBRecordingID
	}

	_, err := c.api.Track.Scrobble(params)
	if err != nil {
		return fmt.Errorf("scrobble: %w", err)
	}
	return nil
}

// SimilarTracks fetches tracks similar to artist - track.
func (c *Client) SimilarTracks(artist, track string, limit int) ([]SimilarTrack, error) {
	params := lastfm.P{
		"artist":      artist,
		"track":       track,
		"limit":       limit,
		"autocorrect": 1,
	}

	result, err := c.api.Track.GetSimilar(params)
	if err != nil {
		return nil, fmt.Errorf("get similar tracks: %w", err)
	}

	tracks := make([]SimilarTrack, 0, len(result.Tracks))
	for _, t := range result.Tracks {
		if t.Name == "" || t.Artist.Name == "" {
			continue
		}
		tracks = append(tracks, SimilarTrack{
			Name:       t.Name,
			Artist:     t.Artist.Name,
			MBID:       t.Mbid,
			MatchScore: parseFloat(t.Match),
			Playcount:  int(parseFloat(t.PlayCount)),
			Duration:   time.Duration(parseFloat(t.Duration)) * time.Second,
		})
	}

	return tracks, nil
}

// ArtistTopTags fetches the most used tags for an artist.
func (c *Client) ArtistTopTags(artist string) ([]Tag, error) {
	result, err := c.api.Artist.GetTopTags(lastfm.P{"artist": artist, "autocorrect": 1})
	if err != nil {
		return nil, fmt.Errorf("get artist top tags: %w", err)
	}

	tags := make([]Tag, 0, len(result.Tags))
	for _, t := range result.Tags {
		tags = append(tags, Tag{Name: t.Name, Count: int(parseFloat(t.Count))})
	}
	return tags, nil
}

// TrackTopTags fetches the most used tags for a track.
func (c *Client) TrackTopTags(artist, track string) ([]Tag, error) {
	result, err := c.api.Track.GetTopTags(lastfm.P{"artist": artist, "track": track, "autocorrect": 1})
	if err != nil {
		return nil, fmt.Errorf("get track top tags: %w", err)
	}

	tags := make([]Tag, 0, len(result.Tags))
	for _, t := range result.Tags {
		tags = append(tags, Tag{Name: t.Name, Count: int(parseFloat(t.Count))})
	}
	return tags, nil
}

// parseFloat reads a numeric API field. lastfm-go exposes most of them as
// strings; a parse failure yields 0.
func parseFloat(v any) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(fmt.Sprint(v)), 64)
	if err != nil {
		return 0
	}
	return f
}
