package playback

import (
	"github.com/llehouerou/autoplay/internal/fallback"
	"github.com/llehouerou/autoplay/internal/media"
	"github.com/llehouerou/autoplay/internal/radio"
)

// event is anything a session actor processes from its inbox.
type event interface {
	name() string
}

// command is an event whose sender waits for the outcome.
type command interface {
	event
	respond(err error)
}

type reply chan error

func newReply() reply { return make(reply, 1) }

func (r reply) respond(err error) { r <- err }

type enqueueCmd struct {
	items []media.Item
	reply
}

type skipCmd struct {
	by string
	reply
}

type pauseCmd struct{ reply }

type resumeCmd struct{ reply }

type stopCmd struct{ reply }

type trackStarted struct{ id string }

type trackEnded struct{ id string }

type trackFailed struct {
	id  string
	err error
}

type drainDone struct {
	gen uint64
	res radio.Result
	err error
}

type fallbackDone struct {
	gen     uint64
	attempt fallback.Attempt
	item    media.Item
	err     error
}

func (enqueueCmd) name() string   { return "enqueue" }
func (skipCmd) name() string      { return "skip" }
func (pauseCmd) name() string     { return "pause" }
func (resumeCmd) name() string    { return "resume" }
func (stopCmd) name() string      { return "stop" }
func (trackStarted) name() string { return "track-started" }
func (trackEnded) name() string   { return "track-ended" }
func (trackFailed) name() string  { return "track-failed" }
func (drainDone) name() string    { return "drain-done" }
func (fallbackDone) name() string { return "fallback-done" }
