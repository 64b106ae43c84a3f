package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBusDeliversToAllSubscribers(t *testing.T) {
	b := NewBus()
	id1, ch1 := b.Subscribe()
	id2, ch2 := b.Subscribe()
	defer b.Unsubscribe(id1)
	defer b.Unsubscribe(id2)

	b.Publish(Event{Type: EventChallengeStarted, ChallengeID: "ch-a"})

	ev1 := <-ch1
	ev2 := <-ch2
	assert.Equal(t, EventChallengeStarted, ev1.Type)
	assert.Equal(t, "ch-a", ev2.ChallengeID)
	assert.NotZero(t, ev1.At)
}

func TestBusDropsWhenSubscriberFull(t *testing.T) {
	b := NewBus()
	id, ch := b.Subscribe()
	defer b.Unsubscribe(id)

	for i := 0; i < subscriberBuffer+10; i++ {
		b.Publish(Event{Type: EventWorkerSolved})
	}
	// The buffer holds exactly its capacity; the overflow was dropped and
	// Publish never blocked.
	assert.Len(t, ch, subscriberBuffer)
}

func TestBusUnsubscribeClosesChannel(t *testing.T) {
	b := NewBus()
	id, ch := b.Subscribe()
	require.Equal(t, 1, b.SubscriberCount())

	b.Unsubscribe(id)
	_, open := <-ch
	assert.False(t, open)
	assert.Equal(t, 0, b.SubscriberCount())

	b.Unsubscribe(id) // second call is a no-op
}
