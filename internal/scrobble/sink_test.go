package scrobble

import (
	"context"
	"sync"
	"testing"
	"testing/synctest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/llehouerou/autoplay/internal/media"
	"github.com/llehouerou/autoplay/internal/playback"
)

// instantTransport confirms every load right away.
type instantTransport struct {
	reporter playback.Reporter
}

func (t *instantTransport) Load(_ context.Context, contextID string, it media.Item) error {
	go t.reporter.TrackStarted(contextID, playback.ItemID(it))
	return nil
}

func (t *instantTransport) Pause(string) error  { return nil }
func (t *instantTransport) Resume(string) error { return nil }
func (t *instantTransport) Stop(string) error   { return nil }

type ended struct {
	item   media.Item
	played time.Duration
}

type fakeScrobbler struct {
	mu      sync.Mutex
	playing []media.Item
	ended   []ended
}

func (f *fakeScrobbler) NowPlaying(it media.Item) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.playing = append(f.playing, it)
}

func (f *fakeScrobbler) Ended(it media.Item, played time.Duration) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ended = append(f.ended, ended{it, played})
	return true
}

func (f *fakeScrobbler) snapshot() ([]media.Item, []ended) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]media.Item(nil), f.playing...), append([]ended(nil), f.ended...)
}

func song(id string) media.Item {
	return media.Item{
		Title:      "Song " + id,
		Artist:     "Artist",
		ExternalID: "library:" + id,
		URI:        "/music/" + id + ".mp3",
		Duration:   3 * time.Minute,
	}
}

func TestSink_ForwardsFinishedItems(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		tr := &instantTransport{}
		reg := playback.NewRegistry(playback.Config{}, playback.Deps{Transport: tr})
		tr.reporter = reg

		ctx, cancel := context.WithCancel(context.Background())
		var wg sync.WaitGroup
		wg.Go(func() { _ = reg.Serve(ctx) })
		fake := &fakeScrobbler{}
		sink := NewSink(fake, reg.Subscribe())
		wg.Go(func() { _ = sink.Serve(ctx) })

		a, b := song("a"), song("b")
		_, err := reg.StartSession("desk", a, b)
		require.NoError(t, err)
		synctest.Wait()

		time.Sleep(2 * time.Minute)
		reg.TrackEnded("desk", playback.ItemID(a))
		synctest.Wait()

		time.Sleep(10 * time.Second)
		require.NoError(t, reg.Skip("desk", "user"))
		synctest.Wait()

		playing, done := fake.snapshot()
		require.Len(t, playing, 2)
		assert.Equal(t, "library:a", playing[0].ExternalID)
		assert.Equal(t, "library:b", playing[1].ExternalID)

		require.Len(t, done, 1, "skipped items are not scrobbled")
		assert.Equal(t, "library:a", done[0].item.ExternalID)
		assert.Equal(t, 2*time.Minute, done[0].played)

		cancel()
		wg.Wait()
	})
}

func TestSink_StopsWhenSubscriptionCloses(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		reg := playback.NewRegistry(playback.Config{}, playback.Deps{Transport: &instantTransport{}})
		ctx, cancel := context.WithCancel(context.Background())
		sub := reg.Subscribe()
		done := make(chan struct{})
		go func() {
			_ = reg.Serve(ctx)
			close(done)
		}()
		cancel()
		<-done

		err := NewSink(&fakeScrobbler{}, sub).Serve(context.Background())
		assert.Error(t, err)
	})
}
