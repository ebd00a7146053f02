// Package db provides CRUD and outbox operations over the local store.
package db

import (
	"time"

	"github.com/openbursar/feesync/internal/models"
)

// DashboardTotals are the headline numbers the dashboard renders. They are
// computed from the current snapshot only, so the UI can recompute them
// after any local mutation without waiting on the network.
type DashboardTotals struct {
	CollectedToday int64 `json:"collected_today"`
	CollectedTotal int64 `json:"collected_total"`
	PaymentsToday  int   `json:"payments_today"`
	ArrearsTotal   int64 `json:"arrears_total"`
	ActiveStudents int   `json:"active_students"`
	PendingSync    int   `json:"pending_sync"`
	Conflicts      int   `json:"conflicts"`
}

// Dashboard computes the dashboard totals from the local snapshot.
func (s *Store) Dashboard(now time.Time) (*DashboardTotals, error) {
	totals := &DashboardTotals{}
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location()).Unix()

	err := s.db.QueryRow(`
		SELECT COALESCE(SUM(amount), 0), COUNT(*)
		FROM payments WHERE is_deleted = 0 AND paid_at >= ?`,
		midnight).Scan(&totals.CollectedToday, &totals.PaymentsToday)
	if err != nil {
		return nil, err
	}

	err = s.db.QueryRow(`
		SELECT COALESCE(SUM(amount), 0) FROM payments WHERE is_deleted = 0`).
		Scan(&totals.CollectedTotal)
	if err != nil {
		return nil, err
	}

	err = s.db.QueryRow(`
		SELECT COUNT(*), COALESCE(SUM(CASE WHEN balance > 0 THEN balance ELSE 0 END), 0)
		FROM students WHERE is_deleted = 0 AND is_active = 1`).
		Scan(&totals.ActiveStudents, &totals.ArrearsTotal)
	if err != nil {
		return nil, err
	}

	if totals.PendingSync, err = s.PendingCount(); err != nil {
		return nil, err
	}
	if totals.Conflicts, err = s.UnresolvedConflictCount(); err != nil {
		return nil, err
	}

	return totals, nil
}

// ClassArrears summarizes outstanding balances for one class.
type ClassArrears struct {
	ClassID      string `json:"class_id"`
	StudentCount int    `json:"student_count"`
	OwingCount   int    `json:"owing_count"`
	ArrearsTotal int64  `json:"arrears_total"`
}

// ArrearsByClass lists outstanding balances grouped by class, worst first.
func (s *Store) ArrearsByClass() ([]*ClassArrears, error) {
	query := `
	SELECT class_id,
		   COUNT(*),
		   SUM(CASE WHEN balance > 0 THEN 1 ELSE 0 END),
		   COALESCE(SUM(CASE WHEN balance > 0 THEN balance ELSE 0 END), 0)
	FROM students
	WHERE is_deleted = 0 AND is_active = 1
	GROUP BY class_id
	ORDER BY 4 DESC
	`
	rows, err := s.db.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*ClassArrears
	for rows.Next() {
		var a ClassArrears
		if err := rows.Scan(&a.ClassID, &a.StudentCount, &a.OwingCount, &a.ArrearsTotal); err != nil {
			return nil, err
		}
		result = append(result, &a)
	}
	return result, rows.Err()
}

// SearchStudents matches active students by name or admission number.
func (s *Store) SearchStudents(term string, limit int) ([]*models.Student, error) {
	pattern := "%" + term + "%"
	query := `
	SELECT id, first_name, last_name, admission_no, class_id, guardian_name,
		   guardian_phone, balance, is_active, is_deleted, created_at,
		   updated_at, sync_status, synced_at
	FROM students
	WHERE is_deleted = 0
	  AND (first_name LIKE ? OR last_name LIKE ? OR admission_no LIKE ?)
	ORDER BY last_name, first_name
	LIMIT ?
	`
	rows, err := s.db.Query(query, pattern, pattern, pattern, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var students []*models.Student
	for rows.Next() {
		var m models.Student
		if err := rows.Scan(
			&m.ID, &m.FirstName, &m.LastName, &m.AdmissionNo, &m.ClassID,
			&m.GuardianName, &m.GuardianPhone, &m.Balance, &m.IsActive,
			&m.IsDeleted, &m.CreatedAt, &m.UpdatedAt, &m.SyncStatus, &m.SyncedAt,
		); err != nil {
			return nil, err
		}
		students = append(students, &m)
	}
	return students, rows.Err()
}
