package sync

import (
	"sync"
	"time"

	"github.com/openbursar/feesync/internal/models"
)

// EventKind identifies a sync lifecycle event.
type EventKind string

const (
	EventPassStarted   EventKind = "pass_started"
	EventPassCompleted EventKind = "pass_completed"
	EventItemSynced    EventKind = "item_synced"
	EventItemFailed    EventKind = "item_failed"
	EventConflict      EventKind = "conflict_detected"
)

// Event is a sync lifecycle notification delivered to subscribers. UI
// surfaces use these to show per-record badges and the sync health panel.
type Event struct {
	Kind       EventKind         `json:"kind"`
	EntityType models.EntityType `json:"entity_type,omitempty"`
	EntityID   models.UUID       `json:"entity_id,omitempty"`
	ItemID     models.UUID       `json:"item_id,omitempty"`
	Error      string            `json:"error,omitempty"`
	Pending    int               `json:"pending,omitempty"`
	Time       int64             `json:"time"`
}

// eventBus fans events out to subscriber channels. Slow subscribers drop
// events rather than block the sync pass.
type eventBus struct {
	mu   sync.Mutex
	subs []chan Event
}

// Subscribe returns a buffered channel of sync events. The channel is
// never closed; callers stop reading when done.
func (b *eventBus) Subscribe() <-chan Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan Event, 32)
	b.subs = append(b.subs, ch)
	return ch
}

func (b *eventBus) publish(ev Event) {
	if ev.Time == 0 {
		ev.Time = time.Now().Unix()
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
