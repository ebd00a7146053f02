// Package db provides CRUD and outbox operations over the local store.
package db

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/openbursar/feesync/internal/models"
	"github.com/openbursar/feesync/internal/uuid"
)

// CreateConflict records a version-mismatch rejection from the remote.
func (s *Store) CreateConflict(rec *models.ConflictRecord) error {
	if rec.ID == "" {
		rec.ID = models.UUID(uuid.New())
	}
	if rec.DetectedAt == 0 {
		rec.DetectedAt = time.Now().Unix()
	}

	query := `
	INSERT INTO conflict_records (id, queue_item_id, entity_type, entity_id,
		local_data, server_data, local_timestamp, server_timestamp,
		resolution, detected_at, resolved_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.Exec(query, rec.ID, rec.QueueItemID, rec.EntityType,
		rec.EntityID, string(rec.LocalData), string(rec.ServerData),
		rec.LocalTimestamp, rec.ServerTimestamp, rec.Resolution,
		rec.DetectedAt, rec.ResolvedAt)
	return err
}

const conflictColumns = `id, queue_item_id, entity_type, entity_id,
	local_data, server_data, local_timestamp, server_timestamp,
	resolution, detected_at, resolved_at`

func scanConflict(row interface{ Scan(...interface{}) error }) (*models.ConflictRecord, error) {
	var rec models.ConflictRecord
	var localData, serverData string
	err := row.Scan(
		&rec.ID, &rec.QueueItemID, &rec.EntityType, &rec.EntityID,
		&localData, &serverData, &rec.LocalTimestamp, &rec.ServerTimestamp,
		&rec.Resolution, &rec.DetectedAt, &rec.ResolvedAt,
	)
	if err != nil {
		return nil, err
	}
	rec.LocalData = json.RawMessage(localData)
	rec.ServerData = json.RawMessage(serverData)
	return &rec, nil
}

// GetConflict retrieves a conflict record by id.
func (s *Store) GetConflict(id string) (*models.ConflictRecord, error) {
	query := `SELECT ` + conflictColumns + ` FROM conflict_records WHERE id = ?`
	return scanConflict(s.db.QueryRow(query, id))
}

// GetConflictByQueueItem retrieves the unresolved conflict for a queue item.
func (s *Store) GetConflictByQueueItem(queueItemID models.UUID) (*models.ConflictRecord, error) {
	query := `SELECT ` + conflictColumns + `
		FROM conflict_records WHERE queue_item_id = ? AND resolution = ''`
	return scanConflict(s.db.QueryRow(query, queueItemID))
}

// ListUnresolvedConflicts returns conflicts awaiting a resolution, oldest
// first. This feeds the operator-facing conflict list.
func (s *Store) ListUnresolvedConflicts() ([]*models.ConflictRecord, error) {
	query := `SELECT ` + conflictColumns + `
		FROM conflict_records WHERE resolution = '' ORDER BY detected_at`
	rows, err := s.db.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*models.ConflictRecord
	for rows.Next() {
		rec, err := scanConflict(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// MarkConflictResolved stamps the chosen resolution onto the record. The
// record is kept as an audit trail of how the divergence was settled.
func (s *Store) MarkConflictResolved(id models.UUID, resolution string, resolvedAt int64) error {
	res, err := s.db.Exec(
		"UPDATE conflict_records SET resolution = ?, resolved_at = ? WHERE id = ? AND resolution = ''",
		resolution, resolvedAt, id)
	if err != nil {
		return err
	}
	rows, _ := res.RowsAffected()
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// UnresolvedConflictCount returns the number of conflicts awaiting input.
func (s *Store) UnresolvedConflictCount() (int, error) {
	var count int
	err := s.db.QueryRow(
		"SELECT COUNT(*) FROM conflict_records WHERE resolution = ''").Scan(&count)
	return count, err
}
