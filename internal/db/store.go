// Package db provides CRUD and outbox operations over the local store.
package db

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	apperrors "github.com/openbursar/feesync/internal/errors"
	"github.com/openbursar/feesync/internal/models"
	"github.com/openbursar/feesync/internal/uuid"
)

// Store provides transactional access to entity tables and the outbox. All
// UI writes go through Put/Delete so that the entity row and its queue item
// are committed together.
type Store struct {
	db *sql.DB

	// Prepared statement cache for hot read paths.
	stmtCache sync.Map // map[string]*sql.Stmt
}

// NewStore creates a Store over an open database.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// PrepareStmt gets or creates a prepared statement from the cache.
func (s *Store) PrepareStmt(query string) (*sql.Stmt, error) {
	if stmt, ok := s.stmtCache.Load(query); ok {
		return stmt.(*sql.Stmt), nil
	}

	stmt, err := s.db.Prepare(query)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare statement: %w", err)
	}

	actual, loaded := s.stmtCache.LoadOrStore(query, stmt)
	if loaded {
		stmt.Close()
		return actual.(*sql.Stmt), nil
	}
	return stmt, nil
}

// Close closes all cached prepared statements.
func (s *Store) Close() error {
	var firstErr error
	s.stmtCache.Range(func(key, value interface{}) bool {
		if err := value.(*sql.Stmt).Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		return true
	})
	return firstErr
}

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	Exec(query string, args ...interface{}) (sql.Result, error)
	QueryRow(query string, args ...interface{}) *sql.Row
}

// =====================================================
// Write path: entity + outbox in one transaction
// =====================================================

// Put writes an entity and enqueues the mutation atomically. The payload is
// the full JSON encoding of the entity; op is create or update. Either both
// the row and the queue item land, or neither does.
func (s *Store) Put(t models.EntityType, op string, payload json.RawMessage, maxAttempts int) (*models.QueueItem, error) {
	return s.putWithQueue(t, op, payload, maxAttempts)
}

// Delete soft-deletes an entity and enqueues the delete atomically.
func (s *Store) Delete(t models.EntityType, id models.UUID, maxAttempts int) (*models.QueueItem, error) {
	payload, err := json.Marshal(map[string]string{"id": string(id)})
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInvalid, "failed to encode delete payload", err)
	}
	return s.putWithQueue(t, models.OpDelete, payload, maxAttempts)
}

func (s *Store) putWithQueue(t models.EntityType, op string, payload json.RawMessage, maxAttempts int) (*models.QueueItem, error) {
	if !models.IsValidEntityType(t) {
		return nil, apperrors.New(apperrors.ErrInvalid, fmt.Sprintf("unknown entity type %q", t))
	}

	entityID, err := entityIDOf(payload)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInvalid, "payload has no id", err)
	}
	if err := uuid.Validate(string(entityID)); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInvalid, "entity id is not a UUID", err)
	}

	now := time.Now().Unix()
	item := &models.QueueItem{
		ID:          models.UUID(uuid.New()),
		EntityType:  t,
		EntityID:    entityID,
		Operation:   op,
		Payload:     payload,
		Status:      models.QueueStatusPending,
		MaxAttempts: maxAttempts,
		NextRetryAt: now,
		EnqueuedAt:  now,
		UpdatedAt:   now,
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to begin transaction", err)
	}

	if err := applyEntity(tx, t, op, payload, models.SyncStatusPending, 0); err != nil {
		tx.Rollback()
		return nil, apperrors.Wrap(apperrors.ErrStorage, "entity write failed", err)
	}
	if err := insertQueueItem(tx, item); err != nil {
		tx.Rollback()
		return nil, apperrors.Wrap(apperrors.ErrStorage, "outbox write failed", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorage, "commit failed", err)
	}

	// Read back the autoincrement sequence assigned on insert.
	if err := s.db.QueryRow("SELECT seq FROM sync_queue WHERE id = ?", item.ID).Scan(&item.Seq); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to read queue sequence", err)
	}

	return item, nil
}

// ApplyServerData overwrites the local entity with the server's version and
// marks it synced. Used when a conflict resolves as keep-server.
func (s *Store) ApplyServerData(t models.EntityType, payload json.RawMessage) error {
	now := time.Now().Unix()
	if err := applyEntity(s.db, t, models.OpUpdate, payload, models.SyncStatusSynced, now); err != nil {
		return apperrors.Wrap(apperrors.ErrStorage, "failed to apply server data", err)
	}
	return nil
}

// ApplyPendingData overwrites the local entity with a version that still
// awaits remote acknowledgement. Used when a merge resolution produces a
// corrective write.
func (s *Store) ApplyPendingData(t models.EntityType, payload json.RawMessage) error {
	if err := applyEntity(s.db, t, models.OpUpdate, payload, models.SyncStatusPending, 0); err != nil {
		return apperrors.Wrap(apperrors.ErrStorage, "failed to apply merged data", err)
	}
	return nil
}

// MarkEntityPending flips an entity row back to pending, clearing a
// conflict flag once its corrective write is on the queue.
func (s *Store) MarkEntityPending(t models.EntityType, id models.UUID) error {
	if !models.IsValidEntityType(t) {
		return apperrors.New(apperrors.ErrInvalid, fmt.Sprintf("unknown entity type %q", t))
	}
	query := fmt.Sprintf("UPDATE %s SET sync_status = ? WHERE id = ?", string(t))
	_, err := s.db.Exec(query, models.SyncStatusPending, id)
	return err
}

// MarkEntitySynced flips an entity row to synced with the given timestamp.
func (s *Store) MarkEntitySynced(t models.EntityType, id models.UUID, syncedAt int64) error {
	if !models.IsValidEntityType(t) {
		return apperrors.New(apperrors.ErrInvalid, fmt.Sprintf("unknown entity type %q", t))
	}
	query := fmt.Sprintf("UPDATE %s SET sync_status = ?, synced_at = ? WHERE id = ?", string(t))
	_, err := s.db.Exec(query, models.SyncStatusSynced, syncedAt, id)
	return err
}

// MarkEntityConflict flips an entity row to conflict so the UI can flag it.
func (s *Store) MarkEntityConflict(t models.EntityType, id models.UUID) error {
	if !models.IsValidEntityType(t) {
		return apperrors.New(apperrors.ErrInvalid, fmt.Sprintf("unknown entity type %q", t))
	}
	query := fmt.Sprintf("UPDATE %s SET sync_status = ? WHERE id = ?", string(t))
	_, err := s.db.Exec(query, models.SyncStatusConflict, id)
	return err
}

// entityIDOf extracts the id field from an entity payload.
func entityIDOf(payload json.RawMessage) (models.UUID, error) {
	var head struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(payload, &head); err != nil {
		return "", err
	}
	if head.ID == "" {
		return "", fmt.Errorf("empty id")
	}
	return models.UUID(head.ID), nil
}

// applyEntity writes one entity payload to its table. Delete is a soft
// delete everywhere except audit_logs, which are append-only locally.
func applyEntity(e execer, t models.EntityType, op string, payload json.RawMessage, status models.SyncStatus, syncedAt int64) error {
	if op == models.OpDelete {
		id, err := entityIDOf(payload)
		if err != nil {
			return err
		}
		if t == models.EntityAuditLogs {
			_, err := e.Exec("DELETE FROM audit_logs WHERE id = ?", id)
			return err
		}
		query := fmt.Sprintf("UPDATE %s SET is_deleted = 1, updated_at = ?, sync_status = ?, synced_at = ? WHERE id = ?", string(t))
		_, err = e.Exec(query, time.Now().Unix(), status, syncedAt, id)
		return err
	}

	switch t {
	case models.EntityStudents:
		var m models.Student
		if err := json.Unmarshal(payload, &m); err != nil {
			return err
		}
		m.SyncStatus = status
		m.SyncedAt = syncedAt
		return upsertStudent(e, &m)
	case models.EntityPayments:
		var m models.Payment
		if err := json.Unmarshal(payload, &m); err != nil {
			return err
		}
		m.SyncStatus = status
		m.SyncedAt = syncedAt
		return upsertPayment(e, &m)
	case models.EntityFeeStructures:
		var m models.FeeStructure
		if err := json.Unmarshal(payload, &m); err != nil {
			return err
		}
		m.SyncStatus = status
		m.SyncedAt = syncedAt
		return upsertFeeStructure(e, &m)
	case models.EntityInstallmentRule:
		var m models.InstallmentRule
		if err := json.Unmarshal(payload, &m); err != nil {
			return err
		}
		m.SyncStatus = status
		m.SyncedAt = syncedAt
		return upsertInstallmentRule(e, &m)
	case models.EntitySchools:
		var m models.School
		if err := json.Unmarshal(payload, &m); err != nil {
			return err
		}
		m.SyncStatus = status
		m.SyncedAt = syncedAt
		return upsertSchool(e, &m)
	case models.EntityUsers:
		var m models.User
		if err := json.Unmarshal(payload, &m); err != nil {
			return err
		}
		m.SyncStatus = status
		m.SyncedAt = syncedAt
		return upsertUser(e, &m)
	case models.EntityAuditLogs:
		var m models.AuditLog
		if err := json.Unmarshal(payload, &m); err != nil {
			return err
		}
		m.SyncStatus = status
		m.SyncedAt = syncedAt
		return upsertAuditLog(e, &m)
	}
	return fmt.Errorf("unknown entity type %q", t)
}
