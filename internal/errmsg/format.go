// Package errmsg provides consistent formatting for user-facing messages:
// operation failures and the informational outcomes a session reports.
package errmsg

import (
	"errors"
	"fmt"

	"github.com/dustin/go-humanize/english"

	"github.com/llehouerou/autoplay/internal/fallback"
	"github.com/llehouerou/autoplay/internal/playback"
)

// Op represents an operation that can fail.
type Op string

// Operation constants - grouped by domain.
const (
	// Library operations
	OpLibraryScan    Op = "scan library"
	OpLibraryLoad    Op = "load library"
	OpLibraryRebuild Op = "rebuild library index"

	// External services
	OpLastfmAuth    Op = "authenticate with Last.fm"
	OpLastfmConnect Op = "connect to Last.fm"
	OpSpotifyLogin  Op = "connect to Spotify"

	// Playback operations
	OpPlaybackStart Op = "start playback"
	OpPlaybackSkip  Op = "skip"
	OpPlaybackStop  Op = "stop playback"

	// Settings
	OpSettingsSave Op = "save settings"

	// Initialization
	OpInitialize Op = "initialize application"
	OpConfigLoad Op = "load configuration"
	OpStateOpen  Op = "open state database"
)

// Format creates a user-friendly error message.
func Format(op Op, err error) string {
	if err == nil {
		return ""
	}
	return fmt.Sprintf("Failed to %s: %v", op, err)
}

// FormatWith creates an error message with additional context.
func FormatWith(op Op, context string, err error) string {
	if err == nil {
		return ""
	}
	if context == "" {
		return Format(op, err)
	}
	return fmt.Sprintf("Failed to %s '%s': %v", op, context, err)
}

// Idle describes why a session stopped playing. It returns an empty string
// for reasons that need no message.
func Idle(reason playback.IdleReason) string {
	switch reason {
	case playback.IdleNoCandidates:
		return "Autoplay found nothing similar to play next"
	case playback.IdleNoRecommendation:
		return "Autoplay found no track good enough to play next"
	case playback.IdleCycleFailed:
		return "Autoplay could not pick a next track"
	case playback.IdleQueueEmpty, playback.IdleRestarted:
		return ""
	default:
		return ""
	}
}

// Unplayable describes an item fallback gave up on.
func Unplayable(e playback.ItemUnplayable) string {
	msg := fmt.Sprintf("Could not play '%s' after %s",
		e.Item.Label(), english.Plural(e.Attempts, "attempt", ""))
	if errors.Is(e.Err, fallback.ErrExhausted) || e.Err == nil {
		return msg
	}
	return fmt.Sprintf("%s: %v", msg, e.Err)
}
