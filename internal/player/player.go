// Package player is the local audio transport: it decodes files with beep,
// plays them on the default output and reports started, ended and failed
// items back to the session registry.
package player

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/effects"
	"github.com/gopxl/beep/v2/speaker"
	"github.com/rs/zerolog"

	"github.com/llehouerou/autoplay/internal/logging"
	"github.com/llehouerou/autoplay/internal/media"
	"github.com/llehouerou/autoplay/internal/playback"
)

// ErrNotLocal is returned for items that are not local files.
var ErrNotLocal = errors.New("item is not a local file")

var (
	_ playback.Transport  = (*Player)(nil)
	_ playback.Positioner = (*Player)(nil)
)

// Output is the audio sink. The default is beep's speaker.
type Output interface {
	Init(sampleRate beep.SampleRate, bufferSize int) error
	Play(s ...beep.Streamer)
	Clear()
	Lock()
	Unlock()
}

type speakerOutput struct{}

func (speakerOutput) Init(sr beep.SampleRate, n int) error { return speaker.Init(sr, n) }
func (speakerOutput) Play(s ...beep.Streamer) { speaker.Play(s...) }
func (speakerOutput) Clear() { speaker.Clear() }
func (speakerOutput) Lock() { speaker.Lock() }
func (speakerOutput) Unlock() { speaker.Unlock() }

// track is the item currently loaded on the output.
type track struct {
	token     uint64
	contextID string
	itemID    string
	file      *os.File
	streamer  beep.StreamSeekCloser
	format    beep.Format
	ctrl      *beep.Ctrl
}

// Player plays one item at a time on a single output.
type Player struct {
	out      Output
	reporter playback.Reporter
	log      zerolog.Logger

	mu          sync.Mutex
	state       State
	initialized bool
	sampleRate  beep.SampleRate
	cur         *track
	token       uint64
	volume      *effects.Volume
	volumeLevel float64
	muted       bool
}

// New creates a player on the default speaker.
func New(reporter playback.Reporter) *Player {
	return NewWithOutput(speakerOutput{}, reporter)
}

// NewWithOutput creates a player on out.
func NewWithOutput(out Output, reporter playback.Reporter) *Player {
	return &Player{
		out:         out,
		reporter:    reporter,
		log:         logging.With("player"),
		state:       Stopped,
		volumeLevel: 1,
	}
}

// Load implements playback.Transport. It replaces whatever is playing and
// reports TrackStarted once the item is on the output.
func (p *Player) Load(ctx context.Context, contextID string, it media.Item) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if it.IsStream || !filepath.IsAbs(it.URI) {
		return fmt.Errorf("%w: %s", ErrNotLocal, it.Label())
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopLocked()

	f, err := os.Open(it.URI)
	if err != nil {
		return err
	}
	streamer, format, err := decode(f)
	if err != nil {
		f.Close()
		return err
	}

	if !p.initialized {
		p.sampleRate = format.SampleRate
		if err := p.out.Init(p.sampleRate, p.sampleRate.N(time.Second/10)); err != nil {
			streamer.Close()
			f.Close()
			return fmt.Errorf("init output: %w", err)
		}
		p.initialized = true
	}

	// Resample if the track's sample rate differs from the output's
	var s beep.Streamer = streamer
	if format.SampleRate != p.sampleRate {
		s = beep.Resample(4, format.SampleRate, p.sampleRate, streamer)
	}

	p.token++
	t := &track{
		token:     p.token,
		contextID: contextID,
		itemID:    playback.ItemID(it),
		file:      f,
		streamer:  streamer,
		format:    format,
		ctrl:      &beep.Ctrl{Streamer: s},
	}
	p.volume = &effects.Volume{
		Streamer: t.ctrl,
		Base:     2,
		Volume:   levelToVolume(p.volumeLevel),
		Silent:   p.muted,
	}
	p.cur = t
	p.state = Playing

	token := t.token
	p.out.Play(beep.Seq(p.volume, beep.Callback(func() {
		// runs on the output goroutine with its lock held
		go p.finished(token)
	})))

	p.log.Debug().
		Str("context", contextID).
		Str("item", t.itemID).
		Dur("duration", format.SampleRate.D(streamer.Len())).
		Msg("loaded")
	go p.reporter.TrackStarted(contextID, t.itemID)
	return nil
}

// finished reports the end of the track identified by token, unless it was
// replaced or stopped in the meantime.
func (p *Player) finished(token uint64) {
	p.mu.Lock()
	t := p.cur
	if t == nil || t.token != token {
		p.mu.Unlock()
		return
	}
	err := t.streamer.Err()
	p.releaseLocked()
	p.mu.Unlock()

	if err != nil {
		p.reporter.TrackFailed(t.contextID, t.itemID, err)
		return
	}
	p.reporter.TrackEnded(t.contextID, t.itemID)
}

// Pause implements playback.Transport.
func (p *Player) Pause(contextID string) error {
	return p.setPaused(contextID, true)
}

// Resume implements playback.Transport.
func (p *Player) Resume(contextID string) error {
	return p.setPaused(contextID, false)
}

func (p *Player) setPaused(contextID string, paused bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	t := p.cur
	if t == nil || t.contextID != contextID {
		return fmt.Errorf("nothing loaded for %s", contextID)
	}
	p.out.Lock()
	t.ctrl.Paused = paused
	p.out.Unlock()
	if paused {
		p.state = Paused
	} else {
		p.state = Playing
	}
	return nil
}

// Stop implements playback.Transport. Stopping an idle context is a no-op.
func (p *Player) Stop(contextID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cur == nil || p.cur.contextID != contextID {
		return nil
	}
	p.stopLocked()
	return nil
}

// Position implements playback.Positioner.
func (p *Player) Position(contextID string) (time.Duration, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	t := p.cur
	if t == nil || t.contextID != contextID {
		return 0, false
	}
	p.out.Lock()
	pos := t.format.SampleRate.D(t.streamer.Position())
	p.out.Unlock()
	return pos, true
}

// State returns the output state.
func (p *Player) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *Player) stopLocked() {
	if p.cur == nil {
		return
	}
	p.out.Clear()
	p.releaseLocked()
}

func (p *Player) releaseLocked() {
	if p.cur.streamer != nil {
		p.cur.streamer.Close()
	}
	if p.cur.file != nil {
		p.cur.file.Close()
	}
	p.cur = nil
	p.volume = nil
	p.state = Stopped
}
