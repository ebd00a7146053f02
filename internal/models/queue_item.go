// Package models provides data model definitions for the feesync core.
package models

import (
	"encoding/json"
	"time"
)

// Queue item status values. A row leaves the outbox only once it is synced
// and past the grace window, or when the operator discards it.
const (
	QueueStatusPending  = "pending"
	QueueStatusSyncing  = "syncing"
	QueueStatusSynced   = "synced"
	QueueStatusFailed   = "failed"
	QueueStatusConflict = "conflict"
)

// Queue item operations.
const (
	OpCreate = "create"
	OpUpdate = "update"
	OpDelete = "delete"
)

// QueueItem is one pending mutation in the outbox. Seq is assigned by the
// store on insert and fixes the FIFO order within an entity id.
type QueueItem struct {
	ID           UUID            `db:"id" json:"id"`
	Seq          int64           `db:"seq" json:"seq"`
	EntityType   EntityType      `db:"entity_type" json:"entity_type"`
	EntityID     UUID            `db:"entity_id" json:"entity_id"`
	Operation    string          `db:"operation" json:"operation"`
	Payload      json.RawMessage `db:"payload" json:"payload"`
	Status       string          `db:"status" json:"status"`
	Attempts     int             `db:"attempts" json:"attempts"`
	MaxAttempts  int             `db:"max_attempts" json:"max_attempts"`
	NextRetryAt  int64           `db:"next_retry_at" json:"next_retry_at"`
	EnqueuedAt   int64           `db:"enqueued_at" json:"enqueued_at"`
	UpdatedAt    int64           `db:"updated_at" json:"updated_at"`
	LastError    string          `db:"last_error" json:"last_error,omitempty"`
	ConflictData json.RawMessage `db:"conflict_data" json:"conflict_data,omitempty"`
}

// TableName returns the table name for QueueItem.
func (QueueItem) TableName() string {
	return "sync_queue"
}

// EnqueuedAtTime returns EnqueuedAt as time.Time.
func (q *QueueItem) EnqueuedAtTime() time.Time {
	return time.Unix(q.EnqueuedAt, 0)
}

// Exhausted reports whether the retry budget is used up.
func (q *QueueItem) Exhausted() bool {
	return q.Attempts >= q.MaxAttempts
}

// ConflictRecord captures a version-mismatch rejection from the remote. It
// lives until the operator (or the default policy) picks a resolution.
type ConflictRecord struct {
	ID              UUID            `db:"id" json:"id"`
	QueueItemID     UUID            `db:"queue_item_id" json:"queue_item_id"`
	EntityType      EntityType      `db:"entity_type" json:"entity_type"`
	EntityID        UUID            `db:"entity_id" json:"entity_id"`
	LocalData       json.RawMessage `db:"local_data" json:"local_data"`
	ServerData      json.RawMessage `db:"server_data" json:"server_data"`
	LocalTimestamp  int64           `db:"local_timestamp" json:"local_timestamp"`
	ServerTimestamp int64           `db:"server_timestamp" json:"server_timestamp"`
	Resolution      string          `db:"resolution" json:"resolution,omitempty"` // keep-local, keep-server, merge
	DetectedAt      int64           `db:"detected_at" json:"detected_at"`
	ResolvedAt      int64           `db:"resolved_at" json:"resolved_at,omitempty"`
}

// TableName returns the table name for ConflictRecord.
func (ConflictRecord) TableName() string {
	return "conflict_records"
}

// Resolved reports whether a resolution has been applied.
func (c *ConflictRecord) Resolved() bool {
	return c.Resolution != ""
}

// Resolution values for ConflictRecord.
const (
	ResolutionKeepLocal  = "keep-local"
	ResolutionKeepServer = "keep-server"
	ResolutionMerge      = "merge"
)
