package player

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/llehouerou/autoplay/internal/media"
)

type fakeOutput struct {
	mu        sync.Mutex
	inits     []beep.SampleRate
	streamers []beep.Streamer
	cleared   int
}

func (o *fakeOutput) Init(sr beep.SampleRate, _ int) error {
	o.inits = append(o.inits, sr)
	return nil
}

func (o *fakeOutput) Play(s ...beep.Streamer) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.streamers = append(o.streamers, s...)
}

func (o *fakeOutput) Clear() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.streamers = nil
	o.cleared++
}

func (o *fakeOutput) Lock() { o.mu.Lock() }
func (o *fakeOutput) Unlock() { o.mu.Unlock() }

// drain plays every queued streamer to its end.
func (o *fakeOutput) drain() {
	o.mu.Lock()
	queued := o.streamers
	o.streamers = nil
	o.mu.Unlock()

	buf := make([][2]float64, 512)
	for _, s := range queued {
		for {
			if _, ok := s.Stream(buf); !ok {
				break
			}
		}
	}
}

type report struct {
	kind, contextID, itemID string
}

type fakeReporter struct {
	ch chan report
}

func newFakeReporter() *fakeReporter {
	return &fakeReporter{ch: make(chan report, 8)}
}

func (r *fakeReporter) TrackStarted(c, id string) { r.ch <- report{"started", c, id} }
func (r *fakeReporter) TrackEnded(c, id string) { r.ch <- report{"ended", c, id} }
func (r *fakeReporter) TrackFailed(c, id string, _ error) { r.ch <- report{"failed", c, id} }

func (r *fakeReporter) next(t *testing.T) report {
	t.Helper()
	select {
	case rep := <-r.ch:
		return rep
	case <-time.After(2 * time.Second):
		t.Fatal("no report")
		return report{}
	}
}

func writeWAV(t *testing.T, d time.Duration) string {
	t.Helper()

	format := beep.Format{SampleRate: 8000, NumChannels: 1, Precision: 2}
	path := filepath.Join(t.TempDir(), "tone.wav")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, wav.Encode(f, beep.Silence(format.SampleRate.N(d)), format))
	return path
}

func localItem(path string) media.Item {
	return media.Item{Title: "Tone", Artist: "Test", ExternalID: "library:1", URI: path}
}

func TestProbeDuration(t *testing.T) {
	path := writeWAV(t, 2*time.Second)

	d, err := ProbeDuration(path)
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, d)

	_, err = ProbeDuration(filepath.Join(t.TempDir(), "missing.mp3"))
	assert.Error(t, err)
}

func TestPlayer_LoadReportsStartedThenEnded(t *testing.T) {
	out := &fakeOutput{}
	rep := newFakeReporter()
	p := NewWithOutput(out, rep)

	require.NoError(t, p.Load(context.Background(), "desk", localItem(writeWAV(t, time.Second))))
	assert.Equal(t, report{"started", "desk", "library:1"}, rep.next(t))
	assert.Equal(t, Playing, p.State())
	assert.Equal(t, []beep.SampleRate{8000}, out.inits)

	pos, ok := p.Position("desk")
	assert.True(t, ok)
	assert.Zero(t, pos)

	out.drain()
	assert.Equal(t, report{"ended", "desk", "library:1"}, rep.next(t))
	assert.Eventually(t, func() bool { return p.State() == Stopped }, time.Second, 5*time.Millisecond)

	_, ok = p.Position("desk")
	assert.False(t, ok)
}

func TestPlayer_PauseResume(t *testing.T) {
	out := &fakeOutput{}
	rep := newFakeReporter()
	p := NewWithOutput(out, rep)

	require.NoError(t, p.Load(context.Background(), "desk", localItem(writeWAV(t, time.Second))))
	rep.next(t)

	require.NoError(t, p.Pause("desk"))
	assert.Equal(t, Paused, p.State())
	require.NoError(t, p.Resume("desk"))
	assert.Equal(t, Playing, p.State())

	assert.Error(t, p.Pause("other"))
}

func TestPlayer_StopSuppressesEnded(t *testing.T) {
	out := &fakeOutput{}
	rep := newFakeReporter()
	p := NewWithOutput(out, rep)

	require.NoError(t, p.Load(context.Background(), "desk", localItem(writeWAV(t, time.Second))))
	rep.next(t)

	require.NoError(t, p.Stop("other"), "stopping another context is a no-op")
	assert.Equal(t, Playing, p.State())

	require.NoError(t, p.Stop("desk"))
	assert.Equal(t, Stopped, p.State())
	assert.Equal(t, 1, out.cleared)

	out.drain()
	select {
	case r := <-rep.ch:
		t.Fatalf("unexpected report %+v", r)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPlayer_LoadRejectsNonLocalItems(t *testing.T) {
	p := NewWithOutput(&fakeOutput{}, newFakeReporter())

	tests := []media.Item{
		{Title: "remote", URI: "spotify:track:abc"},
		{Title: "stream", URI: "/radio.mp3", IsStream: true},
		{Title: "relative", URI: "music/a.mp3"},
	}
	for _, it := range tests {
		t.Run(it.Title, func(t *testing.T) {
			assert.ErrorIs(t, p.Load(context.Background(), "desk", it), ErrNotLocal)
		})
	}
}

func TestPlayer_LoadUndecodableFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.flac")
	require.NoError(t, os.WriteFile(path, []byte("not audio at all"), 0o600))

	p := NewWithOutput(&fakeOutput{}, newFakeReporter())
	assert.Error(t, p.Load(context.Background(), "desk", localItem(path)))
	assert.Equal(t, Stopped, p.State())
}

func TestLevelToVolume(t *testing.T) {
	assert.InDelta(t, 0.0, levelToVolume(1), 1e-9)
	assert.InDelta(t, -1.0, levelToVolume(0.5), 1e-9)
	assert.InDelta(t, -10.0, levelToVolume(0), 1e-9)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "Stopped", Stopped.String())
	assert.Equal(t, "Playing", Playing.String())
	assert.Equal(t, "Paused", Paused.String())
	assert.Equal(t, "Unknown", State(9).String())
}
