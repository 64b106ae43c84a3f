package orchestrator

import (
	"sync"
	"time"

	"github.com/mineworks/scavengerd/internal/domain"
)

const subscriberBuffer = 64

// EventType names the orchestrator-level event variants.
type EventType string

const (
	EventWorkerSolved       EventType = "worker-solved"
	EventChallengeStarted   EventType = "challenge-started"
	EventChallengeCompleted EventType = "challenge-completed"
	EventStatsSnapshot      EventType = "stats-snapshot"
	EventError              EventType = "error"
)

// Event is one orchestrator-level event. Fields beyond Type and At are set
// per variant: Address/Nonce/Fee for solved events, Stats for snapshots,
// Message for errors.
type Event struct {
	Type        EventType           `json:"type"`
	ChallengeID string              `json:"challenge_id,omitempty"`
	Address     string              `json:"address,omitempty"`
	Nonce       string              `json:"nonce,omitempty"`
	Fee         bool                `json:"fee,omitempty"`
	SolvedCount int                 `json:"solved_count,omitempty"`
	Stats       *domain.EngineStats `json:"stats,omitempty"`
	Message     string              `json:"message,omitempty"`
	At          int64               `json:"at"`
}

// Bus is a typed publish/subscribe channel for orchestrator events.
// Publishing never blocks: a subscriber that falls behind loses events
// rather than stalling the worker slots.
type Bus struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]chan Event
}

// NewBus creates an empty event bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[int]chan Event)}
}

// Subscribe registers a new subscriber and returns its id and channel.
// The channel is closed on Unsubscribe.
func (b *Bus) Subscribe() (int, <-chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	ch := make(chan Event, subscriberBuffer)
	b.subs[id] = ch
	return id, ch
}

// Unsubscribe removes a subscriber and closes its channel. Unknown ids are
// ignored so shutdown paths can call it unconditionally.
func (b *Bus) Unsubscribe(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch, ok := b.subs[id]
	if !ok {
		return
	}
	delete(b.subs, id)
	close(ch)
}

// Publish delivers the event to every subscriber that has buffer room.
func (b *Bus) Publish(ev Event) {
	if ev.At == 0 {
		ev.At = time.Now().Unix()
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// SubscriberCount returns the number of active subscribers.
func (b *Bus) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
