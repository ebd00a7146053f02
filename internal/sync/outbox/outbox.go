// Package outbox manages the persisted queue of not-yet-acknowledged local
// mutations: readiness, retry backoff and the per-status bookkeeping the
// engine and the operator tooling need.
package outbox

import (
	"time"

	"github.com/openbursar/feesync/internal/db"
	"github.com/openbursar/feesync/internal/logging"
	"github.com/openbursar/feesync/internal/models"
)

// Backoff parameters. Delay is 2^attempts * baseDelay, capped.
const (
	baseDelay = 30 * time.Second
	maxDelay  = 30 * time.Minute
)

// Manager is the queue state machine over the persisted sync_queue table.
type Manager struct {
	store *db.Store
}

// NewManager creates a queue manager over the store.
func NewManager(store *db.Store) *Manager {
	return &Manager{store: store}
}

// NextReady returns items eligible to send right now, in FIFO order.
func (m *Manager) NextReady(limit int) ([]*models.QueueItem, error) {
	return m.store.NextReady(time.Now().Unix(), limit)
}

// Begin marks an item as in flight.
func (m *Manager) Begin(item *models.QueueItem) error {
	item.Status = models.QueueStatusSyncing
	return m.store.MarkSyncing(item.ID)
}

// Complete records the remote acknowledgement of an item.
func (m *Manager) Complete(item *models.QueueItem) error {
	now := time.Now().Unix()
	item.Status = models.QueueStatusSynced
	item.UpdatedAt = now
	return m.store.MarkSynced(item.ID, now)
}

// Fail records a failed attempt and schedules the retry with exponential
// backoff. Permanent failures freeze attempts at the cap. Returns true when
// the retry budget is exhausted and the item needs operator attention.
func (m *Manager) Fail(item *models.QueueItem, cause error, permanent bool) (bool, error) {
	item.Status = models.QueueStatusFailed
	item.LastError = cause.Error()

	if permanent {
		item.Attempts = item.MaxAttempts
	} else {
		item.Attempts++
	}
	item.NextRetryAt = time.Now().Add(backoffDelay(item.Attempts)).Unix()

	if err := m.store.MarkFailed(item.ID, item.LastError, item.NextRetryAt, permanent); err != nil {
		return false, err
	}

	exhausted := item.Exhausted()
	if exhausted {
		logging.Warn("Queue item out of retries, needs operator attention",
			map[string]interface{}{
				"item_id":     item.ID,
				"entity_type": item.EntityType,
				"attempts":    item.Attempts,
				"last_error":  item.LastError,
			})
	}
	return exhausted, nil
}

// Park marks an item as conflicted, attaching the server's version.
func (m *Manager) Park(item *models.QueueItem, serverData []byte) error {
	item.Status = models.QueueStatusConflict
	item.ConflictData = serverData
	return m.store.MarkConflict(item.ID, serverData)
}

// Requeue resets a parked or exhausted item for another attempt, typically
// after the operator edited the payload or resolved the conflict.
func (m *Manager) Requeue(id models.UUID) error {
	return m.store.RequeueItem(id)
}

// UpdatePayload swaps in a replacement payload for a parked item before it
// is requeued with merged data.
func (m *Manager) UpdatePayload(id models.UUID, payload []byte) error {
	return m.store.UpdateQueuePayload(id, payload)
}

// Discard drops an item. This is the operator escape hatch for conflicted
// or permanently failed rows.
func (m *Manager) Discard(id models.UUID) error {
	return m.store.DiscardItem(id)
}

// PurgeSynced removes acknowledged items older than the grace window.
func (m *Manager) PurgeSynced(grace time.Duration) (int64, error) {
	return m.store.PurgeSynced(time.Now().Add(-grace).Unix())
}

// RecoverInFlight reverts items stranded in syncing by a crash or shutdown.
// Call once at startup, before the first pass.
func (m *Manager) RecoverInFlight() (int64, error) {
	n, err := m.store.RevertInFlight()
	if err != nil {
		return 0, err
	}
	if n > 0 {
		logging.Info("Reverted in-flight queue items from previous run",
			map[string]interface{}{"count": n})
	}
	return n, nil
}

// RetryAllFailed resets every failed item (including exhausted ones) so the
// next pass retries them from scratch.
func (m *Manager) RetryAllFailed() (int, error) {
	items, err := m.store.ListQueueItems(models.QueueStatusFailed)
	if err != nil {
		return 0, err
	}
	for _, item := range items {
		if err := m.store.RequeueItem(item.ID); err != nil {
			return 0, err
		}
	}
	if len(items) > 0 {
		logging.Info("Reset failed queue items for retry",
			map[string]interface{}{"count": len(items)})
	}
	return len(items), nil
}

// List returns queue items, optionally filtered by status.
func (m *Manager) List(status string) ([]*models.QueueItem, error) {
	return m.store.ListQueueItems(status)
}

// PendingCount returns the number of unacknowledged items.
func (m *Manager) PendingCount() (int, error) {
	return m.store.PendingCount()
}

// Stats returns the per-status breakdown of the outbox.
func (m *Manager) Stats() (map[string]int, error) {
	return m.store.QueueStats()
}

// backoffDelay computes the exponential backoff for the given attempt
// count, capped at maxDelay.
func backoffDelay(attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	delay := baseDelay << uint(attempts-1)
	if delay > maxDelay || delay <= 0 {
		delay = maxDelay
	}
	return delay
}
