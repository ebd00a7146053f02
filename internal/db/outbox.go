// Package db provides CRUD and outbox operations over the local store.
package db

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/openbursar/feesync/internal/models"
)

func insertQueueItem(e execer, item *models.QueueItem) error {
	query := `
	INSERT INTO sync_queue (id, entity_type, entity_id, operation, payload,
		status, attempts, max_attempts, next_retry_at, enqueued_at, updated_at,
		last_error, conflict_data)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := e.Exec(query, item.ID, item.EntityType, item.EntityID,
		item.Operation, string(item.Payload), item.Status, item.Attempts,
		item.MaxAttempts, item.NextRetryAt, item.EnqueuedAt, item.UpdatedAt,
		item.LastError, nullableJSON(item.ConflictData))
	return err
}

func nullableJSON(raw json.RawMessage) interface{} {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

const queueColumns = `seq, id, entity_type, entity_id, operation, payload,
	status, attempts, max_attempts, next_retry_at, enqueued_at, updated_at,
	last_error, conflict_data`

func scanQueueItem(row interface{ Scan(...interface{}) error }) (*models.QueueItem, error) {
	var item models.QueueItem
	var payload string
	var conflictData sql.NullString
	err := row.Scan(
		&item.Seq, &item.ID, &item.EntityType, &item.EntityID, &item.Operation,
		&payload, &item.Status, &item.Attempts, &item.MaxAttempts,
		&item.NextRetryAt, &item.EnqueuedAt, &item.UpdatedAt,
		&item.LastError, &conflictData,
	)
	if err != nil {
		return nil, err
	}
	item.Payload = json.RawMessage(payload)
	if conflictData.Valid {
		item.ConflictData = json.RawMessage(conflictData.String)
	}
	return &item, nil
}

// NextReady returns queue items eligible for a sync pass: pending or
// retry-due failed items with retry budget left, in enqueue order. An item
// is held back while any earlier unacknowledged item exists for the same
// entity id, so a later delete can never race ahead of an earlier create.
func (s *Store) NextReady(now int64, limit int) ([]*models.QueueItem, error) {
	query := `
	SELECT ` + queueColumns + `
	FROM sync_queue i
	WHERE i.status IN ('pending', 'failed')
	  AND i.next_retry_at <= ?
	  AND i.attempts < i.max_attempts
	  AND NOT EXISTS (
		SELECT 1 FROM sync_queue j
		WHERE j.entity_id = i.entity_id AND j.seq < i.seq AND j.status != 'synced'
	  )
	ORDER BY i.seq
	LIMIT ?
	`
	rows, err := s.db.Query(query, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*models.QueueItem
	for rows.Next() {
		item, err := scanQueueItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// GetQueueItem retrieves one queue item by id.
func (s *Store) GetQueueItem(id string) (*models.QueueItem, error) {
	query := `SELECT ` + queueColumns + ` FROM sync_queue WHERE id = ?`
	return scanQueueItem(s.db.QueryRow(query, id))
}

// ListQueueItems returns queue items, optionally filtered by status.
func (s *Store) ListQueueItems(status string) ([]*models.QueueItem, error) {
	query := `SELECT ` + queueColumns + ` FROM sync_queue`
	var args []interface{}
	if status != "" {
		query += " WHERE status = ?"
		args = append(args, status)
	}
	query += " ORDER BY seq"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*models.QueueItem
	for rows.Next() {
		item, err := scanQueueItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// MarkSyncing flips a queue item to syncing before its remote call.
func (s *Store) MarkSyncing(id models.UUID) error {
	_, err := s.db.Exec(
		"UPDATE sync_queue SET status = ?, updated_at = ? WHERE id = ?",
		models.QueueStatusSyncing, time.Now().Unix(), id)
	return err
}

// MarkSynced records the remote acknowledgement. The row is kept until the
// grace window passes so the UI can show a just-synced affordance.
func (s *Store) MarkSynced(id models.UUID, now int64) error {
	_, err := s.db.Exec(
		"UPDATE sync_queue SET status = ?, updated_at = ?, last_error = '' WHERE id = ?",
		models.QueueStatusSynced, now, id)
	return err
}

// MarkFailed records a failed attempt and schedules the retry. Permanent
// failures (remote validation rejections) freeze attempts at the cap so the
// item is never retried automatically.
func (s *Store) MarkFailed(id models.UUID, lastErr string, nextRetryAt int64, permanent bool) error {
	now := time.Now().Unix()
	if permanent {
		_, err := s.db.Exec(`
			UPDATE sync_queue
			SET status = ?, attempts = max_attempts, last_error = ?, next_retry_at = ?, updated_at = ?
			WHERE id = ?`,
			models.QueueStatusFailed, lastErr, nextRetryAt, now, id)
		return err
	}
	_, err := s.db.Exec(`
		UPDATE sync_queue
		SET status = ?, attempts = attempts + 1, last_error = ?, next_retry_at = ?, updated_at = ?
		WHERE id = ?`,
		models.QueueStatusFailed, lastErr, nextRetryAt, now, id)
	return err
}

// MarkConflict parks a queue item with the server's version attached.
func (s *Store) MarkConflict(id models.UUID, conflictData json.RawMessage) error {
	_, err := s.db.Exec(
		"UPDATE sync_queue SET status = ?, conflict_data = ?, updated_at = ? WHERE id = ?",
		models.QueueStatusConflict, string(conflictData), time.Now().Unix(), id)
	return err
}

// RequeueItem puts a conflict or exhausted item back on the pending path.
func (s *Store) RequeueItem(id models.UUID) error {
	now := time.Now().Unix()
	_, err := s.db.Exec(`
		UPDATE sync_queue
		SET status = ?, attempts = 0, next_retry_at = ?, last_error = '', conflict_data = NULL, updated_at = ?
		WHERE id = ?`,
		models.QueueStatusPending, now, now, id)
	return err
}

// UpdateQueuePayload replaces an item's payload. Used when a merge
// resolution produces a corrective write that supersedes the original one.
func (s *Store) UpdateQueuePayload(id models.UUID, payload json.RawMessage) error {
	_, err := s.db.Exec(
		"UPDATE sync_queue SET payload = ?, updated_at = ? WHERE id = ?",
		string(payload), time.Now().Unix(), id)
	return err
}

// DiscardItem removes a queue item. Used by the operator for conflict or
// exhausted failed rows, and by the purge of acknowledged rows.
func (s *Store) DiscardItem(id models.UUID) error {
	_, err := s.db.Exec("DELETE FROM sync_queue WHERE id = ?", id)
	return err
}

// PurgeSynced removes acknowledged rows older than the cutoff.
func (s *Store) PurgeSynced(cutoff int64) (int64, error) {
	res, err := s.db.Exec(
		"DELETE FROM sync_queue WHERE status = ? AND updated_at <= ?",
		models.QueueStatusSynced, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// RevertInFlight flips rows abandoned mid-request back to failed. Called at
// startup: a crash or shutdown during a pass leaves rows in syncing, and
// those must never silently disappear. Attempts are left untouched.
func (s *Store) RevertInFlight() (int64, error) {
	res, err := s.db.Exec(
		"UPDATE sync_queue SET status = ?, updated_at = ? WHERE status = ?",
		models.QueueStatusFailed, time.Now().Unix(), models.QueueStatusSyncing)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// PendingCount returns the number of unacknowledged queue items.
func (s *Store) PendingCount() (int, error) {
	var count int
	err := s.db.QueryRow(
		"SELECT COUNT(*) FROM sync_queue WHERE status != ?",
		models.QueueStatusSynced).Scan(&count)
	return count, err
}

// QueueStats returns a per-status breakdown of the outbox.
func (s *Store) QueueStats() (map[string]int, error) {
	rows, err := s.db.Query("SELECT status, COUNT(*) FROM sync_queue GROUP BY status")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := map[string]int{
		models.QueueStatusPending:  0,
		models.QueueStatusSyncing:  0,
		models.QueueStatusSynced:   0,
		models.QueueStatusFailed:   0,
		models.QueueStatusConflict: 0,
	}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}
