// Package config loads the daemon configuration: built-in defaults, then
// TOML files, then AUTOPLAY_ environment variables.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	appName   = "autoplay"
	envPrefix = "AUTOPLAY_"

	// DefaultContext is the playback context used by the local daemon.
	DefaultContext = "local"
)

type Config struct {
	// Context is the playback context id the local player reports under.
	Context string `koanf:"context"`

	Log      LogConfig      `koanf:"log"`
	Library  LibraryConfig  `koanf:"library"`
	Lastfm   LastfmConfig   `koanf:"lastfm"`
	Spotify  SpotifyConfig  `koanf:"spotify"`
	Autoplay AutoplayConfig `koanf:"autoplay"`
	Notify   NotifyConfig   `koanf:"notify"`
	Metrics  MetricsConfig  `koanf:"metrics"`
	Player   PlayerConfig   `koanf:"player"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `koanf:"level"`  // trace, debug, info, warn, error (default: info)
	Format string `koanf:"format"` // console or json (default: console)
}

// LibraryConfig holds the local library settings.
type LibraryConfig struct {
	Sources     []string `koanf:"sources"`       // paths to scan for music
	DBPath      string   `koanf:"db_path"`       // empty means the XDG data dir
	ScanOnStart *bool    `koanf:"scan_on_start"` // default: true
}

// LastfmConfig holds Last.fm API credentials.
type LastfmConfig struct {
	APIKey    string `koanf:"api_key"`
	APISecret string `koanf:"api_secret"`
}

// SpotifyConfig holds Spotify client credentials.
type SpotifyConfig struct {
	ClientID     string `koanf:"client_id"`
	ClientSecret string `koanf:"client_secret"`
	Market       string `koanf:"market"` // ISO 3166-1 alpha-2, optional
}

// AutoplayConfig tunes sessions, the recommendation engine and fallback.
type AutoplayConfig struct {
	Enabled             *bool         `koanf:"enabled"`               // default: true
	HistorySize         int           `koanf:"history_size"`          // 1-500, default: 50
	MinCandidates       int           `koanf:"min_candidates"`        // default: 5
	AdapterTimeout      time.Duration `koanf:"adapter_timeout"`       // default: 4s
	SelectTopN          int           `koanf:"select_top_n"`          // default: 5
	MinScore            float64       `koanf:"min_score"`             // default: 10
	NearTieWindow       float64       `koanf:"near_tie_window"`       // default: 10
	MaxJitter           float64       `koanf:"max_jitter"`            // negative disables, default: 5
	MaxFallbackAttempts int           `koanf:"max_fallback_attempts"` // 1-10, default: 3
	InactivityTimeout   time.Duration `koanf:"inactivity_timeout"`    // default: 5m
	ProgressInterval    time.Duration `koanf:"progress_interval"`     // default: 1s
	CacheTTLDays        int           `koanf:"cache_ttl_days"`        // default: 7
	FallbackPrimary     string        `koanf:"fallback_primary"`      // default: "library"
	FallbackSecondary   string        `koanf:"fallback_secondary"`    // default: "spotify"
}

// NotifyConfig selects desktop notifications.
type NotifyConfig struct {
	NowPlaying *bool `koanf:"now_playing"` // default: true
	UpNext     bool  `koanf:"up_next"`
}

// MetricsConfig holds the Prometheus endpoint settings.
type MetricsConfig struct {
	Addr string `koanf:"addr"` // empty disables the endpoint
}

// PlayerConfig holds local output settings.
type PlayerConfig struct {
	Volume *float64 `koanf:"volume"` // 0.0-1.0, default: 1.0
}

// Load reads the default config files and the environment.
func Load() (*Config, error) {
	return LoadFrom(getConfigPaths()...)
}

// LoadFrom reads the given TOML files in order (last wins), skipping the
// ones that do not exist, then applies AUTOPLAY_ environment variables.
func LoadFrom(paths ...string) (*Config, error) {
	k := koanf.New(".")

	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
				return nil, err
			}
		}
	}

	// AUTOPLAY_SPOTIFY__CLIENT_ID -> spotify.client_id
	if err := k.Load(env.Provider(envPrefix, ".", envKey), nil); err != nil {
		return nil, err
	}

	cfg := &Config{Context: DefaultContext}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, err
	}

	for i, src := range cfg.Library.Sources {
		cfg.Library.Sources[i] = expandPath(src)
	}
	cfg.Library.DBPath = expandPath(cfg.Library.DBPath)
	cfg.Context = strings.TrimSpace(cfg.Context)
	if cfg.Context == "" {
		cfg.Context = DefaultContext
	}

	return cfg, nil
}

func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, envPrefix))
	return strings.ReplaceAll(s, "__", ".")
}

func getConfigPaths() []string {
	return []string{
		// 1. $XDG_CONFIG_HOME/autoplay/config.toml
		filepath.Join(xdg.ConfigHome, appName, "config.toml"),
		// 2. ./config.toml (pwd, highest priority)
		"config.toml",
	}
}

func expandPath(path string) string {
	if path != "" && path[0] == '~' {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[1:])
		}
	}
	return path
}

// HasLastfmConfig returns true if Last.fm is configured.
func (c *Config) HasLastfmConfig() bool {
	return c.Lastfm.APIKey != "" && c.Lastfm.APISecret != ""
}

// HasSpotifyConfig returns true if Spotify client credentials are set.
func (c *Config) HasSpotifyConfig() bool {
	return c.Spotify.ClientID != "" && c.Spotify.ClientSecret != ""
}

// ScanOnStart reports whether the library is refreshed at startup.
func (c *Config) ScanOnStart() bool {
	return c.Library.ScanOnStart == nil || *c.Library.ScanOnStart
}

// NotifyNowPlaying reports whether started items raise a notification.
func (c *Config) NotifyNowPlaying() bool {
	return c.Notify.NowPlaying == nil || *c.Notify.NowPlaying
}

// AutoplayEnabled reports whether sessions recommend when the queue drains.
func (c *Config) AutoplayEnabled() bool {
	return c.Autoplay.Enabled == nil || *c.Autoplay.Enabled
}

// PlayerVolume returns the output volume clamped to 0.0-1.0.
func (c *Config) PlayerVolume() float64 {
	if c.Player.Volume == nil {
		return 1
	}
	return min(max(*c.Player.Volume, 0), 1)
}

// GetAutoplayConfig returns the autoplay configuration with defaults applied.
func (c *Config) GetAutoplayConfig() AutoplayConfig {
	cfg := c.Autoplay

	// Apply defaults
	if cfg.HistorySize <= 0 || cfg.HistorySize > 500 {
		cfg.HistorySize = 50
	}
	if cfg.MinCandidates <= 0 {
		cfg.MinCandidates = 5
	}
	if cfg.AdapterTimeout <= 0 {
		cfg.AdapterTimeout = 4 * time.Second
	}
	if cfg.SelectTopN <= 0 {
		cfg.SelectTopN = 5
	}
	if cfg.MinScore <= 0 {
		cfg.MinScore = 10
	}
	if cfg.NearTieWindow <= 0 {
		cfg.NearTieWindow = 10
	}
	switch {
	case cfg.MaxJitter < 0:
		cfg.MaxJitter = 0
	case cfg.MaxJitter == 0:
		cfg.MaxJitter = 5
	}
	if cfg.MaxFallbackAttempts <= 0 || cfg.MaxFallbackAttempts > 10 {
		cfg.MaxFallbackAttempts = 3
	}
	if cfg.InactivityTimeout <= 0 {
		cfg.InactivityTimeout = 5 * time.Minute
	}
	if cfg.ProgressInterval <= 0 {
		cfg.ProgressInterval = time.Second
	}
	if cfg.CacheTTLDays <= 0 {
		cfg.CacheTTLDays = 7
	}
	if cfg.FallbackPrimary == "" {
		cfg.FallbackPrimary = "library"
	}
	if cfg.FallbackSecondary == "" {
		cfg.FallbackSecondary = "spotify"
	}

	return cfg
}
