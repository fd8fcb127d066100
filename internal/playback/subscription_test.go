package playback

import (
	"testing"
	"testing/synctest"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/llehouerou/autoplay/internal/media"
)

func TestNewSubscription_ChannelsReadable(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		sub := newSubscription()
		it := media.Item{Title: "Song", ExternalID: "library:1"}

		sub.deliver(StateChange{Previous: StateIdle, Current: StateLoading})
		sub.deliver(ItemStarted{ContextID: "ctx", Item: it})
		sub.deliver(ItemEnded{Item: it, Reason: EndSkipped})
		sub.deliver(RecommendationAdded{Item: it, Source: "mix"})
		sub.deliver(SessionIdle{Reason: IdleNoCandidates})
		sub.deliver(SessionDisconnected{Reason: DisconnectInactive})
		sub.deliver(ItemUnplayable{Item: it, Attempts: 3})
		sub.deliver(PositionChange{Position: 30 * time.Second})

		assert.Equal(t, StateLoading, (<-sub.StateChanged).Current)
		assert.Equal(t, "ctx", (<-sub.ItemStarted).ContextID)
		assert.Equal(t, EndSkipped, (<-sub.ItemEnded).Reason)
		assert.Equal(t, "mix", (<-sub.RecommendationAdded).Source)
		assert.Equal(t, IdleNoCandidates, (<-sub.SessionIdle).Reason)
		assert.Equal(t, DisconnectInactive, (<-sub.SessionDisconnected).Reason)
		assert.Equal(t, 3, (<-sub.ItemUnplayable).Attempts)
		assert.Equal(t, 30*time.Second, (<-sub.PositionChanged).Position)
	})
}

func TestSubscription_Close_SignalsDone(t *testing.T) {
	synctest.Test(t, func(_ *testing.T) {
		sub := newSubscription()
		sub.close()
		<-sub.Done
	})
}

func TestSubscription_NonBlocking_DropsWhenFull(t *testing.T) {
	sub := newSubscription()

	for range eventBufferSize + 5 {
		sub.deliver(StateChange{})
	}

	count := 0
	for {
		select {
		case <-sub.StateChanged:
			count++
		default:
			assert.Equal(t, eventBufferSize, count)
			return
		}
	}
}

func TestHub_PublishAndClose(t *testing.T) {
	var h hub
	a, b := h.subscribe(), h.subscribe()

	h.publish(SessionIdle{ContextID: "x"})
	assert.Equal(t, "x", (<-a.SessionIdle).ContextID)
	assert.Equal(t, "x", (<-b.SessionIdle).ContextID)

	h.close()
	h.close()
	<-a.Done
	<-b.Done

	late := h.subscribe()
	<-late.Done
}
