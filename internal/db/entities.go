// Package db provides CRUD and outbox operations over the local store.
package db

import (
	"database/sql"

	"github.com/openbursar/feesync/internal/models"
)

// =====================================================
// Upserts (put semantics: insert or replace by id)
// =====================================================

func upsertStudent(e execer, m *models.Student) error {
	query := `
	INSERT INTO students (id, first_name, last_name, admission_no, class_id,
		guardian_name, guardian_phone, balance, is_active, is_deleted,
		created_at, updated_at, sync_status, synced_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		first_name = excluded.first_name,
		last_name = excluded.last_name,
		admission_no = excluded.admission_no,
		class_id = excluded.class_id,
		guardian_name = excluded.guardian_name,
		guardian_phone = excluded.guardian_phone,
		balance = excluded.balance,
		is_active = excluded.is_active,
		is_deleted = excluded.is_deleted,
		updated_at = excluded.updated_at,
		sync_status = excluded.sync_status,
		synced_at = excluded.synced_at
	`
	_, err := e.Exec(query, m.ID, m.FirstName, m.LastName, m.AdmissionNo, m.ClassID,
		m.GuardianName, m.GuardianPhone, m.Balance, m.IsActive, m.IsDeleted,
		m.CreatedAt, m.UpdatedAt, m.SyncStatus, m.SyncedAt)
	return err
}

func upsertPayment(e execer, m *models.Payment) error {
	query := `
	INSERT INTO payments (id, student_id, amount, currency, method, reference,
		recorded_by, paid_at, note, is_deleted, created_at, updated_at,
		sync_status, synced_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		student_id = excluded.student_id,
		amount = excluded.amount,
		currency = excluded.currency,
		method = excluded.method,
		reference = excluded.reference,
		recorded_by = excluded.recorded_by,
		paid_at = excluded.paid_at,
		note = excluded.note,
		is_deleted = excluded.is_deleted,
		updated_at = excluded.updated_at,
		sync_status = excluded.sync_status,
		synced_at = excluded.synced_at
	`
	_, err := e.Exec(query, m.ID, m.StudentID, m.Amount, m.Currency, m.Method,
		m.Reference, m.RecordedBy, m.PaidAt, m.Note, m.IsDeleted,
		m.CreatedAt, m.UpdatedAt, m.SyncStatus, m.SyncedAt)
	return err
}

func upsertFeeStructure(e execer, m *models.FeeStructure) error {
	query := `
	INSERT INTO fee_structures (id, name, code, class_id, term, amount,
		frequency, is_active, is_deleted, created_at, updated_at,
		sync_status, synced_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		name = excluded.name,
		code = excluded.code,
		class_id = excluded.class_id,
		term = excluded.term,
		amount = excluded.amount,
		frequency = excluded.frequency,
		is_active = excluded.is_active,
		is_deleted = excluded.is_deleted,
		updated_at = excluded.updated_at,
		sync_status = excluded.sync_status,
		synced_at = excluded.synced_at
	`
	_, err := e.Exec(query, m.ID, m.Name, m.Code, m.ClassID, m.Term, m.Amount,
		m.Frequency, m.IsActive, m.IsDeleted, m.CreatedAt, m.UpdatedAt,
		m.SyncStatus, m.SyncedAt)
	return err
}

func upsertInstallmentRule(e execer, m *models.InstallmentRule) error {
	query := `
	INSERT INTO installment_rules (id, fee_structure_id, sequence, amount,
		due_date, grace_days, is_deleted, created_at, updated_at,
		sync_status, synced_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		fee_structure_id = excluded.fee_structure_id,
		sequence = excluded.sequence,
		amount = excluded.amount,
		due_date = excluded.due_date,
		grace_days = excluded.grace_days,
		is_deleted = excluded.is_deleted,
		updated_at = excluded.updated_at,
		sync_status = excluded.sync_status,
		synced_at = excluded.synced_at
	`
	_, err := e.Exec(query, m.ID, m.FeeStructureID, m.Sequence, m.Amount,
		m.DueDate, m.GraceDays, m.IsDeleted, m.CreatedAt, m.UpdatedAt,
		m.SyncStatus, m.SyncedAt)
	return err
}

func upsertSchool(e execer, m *models.School) error {
	query := `
	INSERT INTO schools (id, name, address, phone, current_term, currency,
		is_deleted, created_at, updated_at, sync_status, synced_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		name = excluded.name,
		address = excluded.address,
		phone = excluded.phone,
		current_term = excluded.current_term,
		currency = excluded.currency,
		is_deleted = excluded.is_deleted,
		updated_at = excluded.updated_at,
		sync_status = excluded.sync_status,
		synced_at = excluded.synced_at
	`
	_, err := e.Exec(query, m.ID, m.Name, m.Address, m.Phone, m.CurrentTerm,
		m.Currency, m.IsDeleted, m.CreatedAt, m.UpdatedAt, m.SyncStatus, m.SyncedAt)
	return err
}

func upsertUser(e execer, m *models.User) error {
	query := `
	INSERT INTO users (id, name, phone, role, is_active, is_deleted,
		created_at, updated_at, sync_status, synced_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		name = excluded.name,
		phone = excluded.phone,
		role = excluded.role,
		is_active = excluded.is_active,
		is_deleted = excluded.is_deleted,
		updated_at = excluded.updated_at,
		sync_status = excluded.sync_status,
		synced_at = excluded.synced_at
	`
	_, err := e.Exec(query, m.ID, m.Name, m.Phone, m.Role, m.IsActive,
		m.IsDeleted, m.CreatedAt, m.UpdatedAt, m.SyncStatus, m.SyncedAt)
	return err
}

func upsertAuditLog(e execer, m *models.AuditLog) error {
	query := `
	INSERT INTO audit_logs (id, actor, action, entity_type, entity_id, detail,
		timestamp, sync_status, synced_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		sync_status = excluded.sync_status,
		synced_at = excluded.synced_at
	`
	_, err := e.Exec(query, m.ID, m.Actor, m.Action, m.EntityType, m.EntityID,
		m.Detail, m.Timestamp, m.SyncStatus, m.SyncedAt)
	return err
}

// =====================================================
// Reads
// =====================================================

// GetStudent retrieves a student by id. Soft-deleted rows are not returned.
func (s *Store) GetStudent(id string) (*models.Student, error) {
	query := `
	SELECT id, first_name, last_name, admission_no, class_id, guardian_name,
		   guardian_phone, balance, is_active, is_deleted, created_at,
		   updated_at, sync_status, synced_at
	FROM students WHERE id = ? AND is_deleted = 0
	`
	stmt, err := s.PrepareStmt(query)
	if err != nil {
		return nil, err
	}

	var m models.Student
	err = stmt.QueryRow(id).Scan(
		&m.ID, &m.FirstName, &m.LastName, &m.AdmissionNo, &m.ClassID,
		&m.GuardianName, &m.GuardianPhone, &m.Balance, &m.IsActive,
		&m.IsDeleted, &m.CreatedAt, &m.UpdatedAt, &m.SyncStatus, &m.SyncedAt,
	)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// ListStudents returns active students, optionally filtered by class.
func (s *Store) ListStudents(classID string, limit, offset int) ([]*models.Student, error) {
	baseQuery := `
	SELECT id, first_name, last_name, admission_no, class_id, guardian_name,
		   guardian_phone, balance, is_active, is_deleted, created_at,
		   updated_at, sync_status, synced_at
	FROM students WHERE is_deleted = 0
	`
	orderLimit := " ORDER BY last_name, first_name LIMIT ? OFFSET ?"

	var query string
	var args []interface{}
	if classID != "" {
		query = baseQuery + " AND class_id = ?" + orderLimit
		args = []interface{}{classID, limit, offset}
	} else {
		query = baseQuery + orderLimit
		args = []interface{}{limit, offset}
	}

	stmt, err := s.PrepareStmt(query)
	if err != nil {
		return nil, err
	}
	rows, err := stmt.Query(args...)
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

// GetPayment retrieves a payment by id.
func (s *Store) GetPayment(id string) (*models.Payment, error) {
	query := `
	SELECT id, student_id, amount, currency, method, reference, recorded_by,
		   paid_at, note, is_deleted, created_at, updated_at, sync_status, synced_at
	FROM payments WHERE id = ? AND is_deleted = 0
	`
	stmt, err := s.PrepareStmt(query)
	if err != nil {
		return nil, err
	}

	var m models.Payment
	err = stmt.QueryRow(id).Scan(
		&m.ID, &m.StudentID, &m.Amount, &m.Currency, &m.Method, &m.Reference,
		&m.RecordedBy, &m.PaidAt, &m.Note, &m.IsDeleted, &m.CreatedAt,
		&m.UpdatedAt, &m.SyncStatus, &m.SyncedAt,
	)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// ListPaymentsByStudent returns a student's payments, newest first.
func (s *Store) ListPaymentsByStudent(studentID string) ([]*models.Payment, error) {
	query := `
	SELECT id, student_id, amount, currency, method, reference, recorded_by,
		   paid_at, note, is_deleted, created_at, updated_at, sync_status, synced_at
	FROM payments WHERE student_id = ? AND is_deleted = 0 ORDER BY paid_at DESC
	`
	stmt, err := s.PrepareStmt(query)
	if err != nil {
		return nil, err
	}
	rows, err := stmt.Query(studentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var payments []*models.Payment
	for rows.Next() {
		var m models.Payment
		if err := rows.Scan(
			&m.ID, &m.StudentID, &m.Amount, &m.Currency, &m.Method, &m.Reference,
			&m.RecordedBy, &m.PaidAt, &m.Note, &m.IsDeleted, &m.CreatedAt,
			&m.UpdatedAt, &m.SyncStatus, &m.SyncedAt,
		); err != nil {
			return nil, err
		}
		payments = append(payments, &m)
	}
	return payments, rows.Err()
}

// GetFeeStructure retrieves a fee structure by id.
func (s *Store) GetFeeStructure(id string) (*models.FeeStructure, error) {
	query := `
	SELECT id, name, code, class_id, term, amount, frequency, is_active,
		   is_deleted, created_at, updated_at, sync_status, synced_at
	FROM fee_structures WHERE id = ? AND is_deleted = 0
	`
	var m models.FeeStructure
	err := s.db.QueryRow(query, id).Scan(
		&m.ID, &m.Name, &m.Code, &m.ClassID, &m.Term, &m.Amount, &m.Frequency,
		&m.IsActive, &m.IsDeleted, &m.CreatedAt, &m.UpdatedAt, &m.SyncStatus, &m.SyncedAt,
	)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// ListFeeStructures returns active fee structures for a class and term.
func (s *Store) ListFeeStructures(classID, term string) ([]*models.FeeStructure, error) {
	query := `
	SELECT id, name, code, class_id, term, amount, frequency, is_active,
		   is_deleted, created_at, updated_at, sync_status, synced_at
	FROM fee_structures
	WHERE is_deleted = 0 AND is_active = 1 AND class_id = ? AND term = ?
	ORDER BY name
	`
	rows, err := s.db.Query(query, classID, term)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var fees []*models.FeeStructure
	for rows.Next() {
		var m models.FeeStructure
		if err := rows.Scan(
			&m.ID, &m.Name, &m.Code, &m.ClassID, &m.Term, &m.Amount, &m.Frequency,
			&m.IsActive, &m.IsDeleted, &m.CreatedAt, &m.UpdatedAt, &m.SyncStatus, &m.SyncedAt,
		); err != nil {
			return nil, err
		}
		fees = append(fees, &m)
	}
	return fees, rows.Err()
}

// GetSchool retrieves the school settings row.
func (s *Store) GetSchool(id string) (*models.School, error) {
	query := `
	SELECT id, name, address, phone, current_term, currency, is_deleted,
		   created_at, updated_at, sync_status, synced_at
	FROM schools WHERE id = ? AND is_deleted = 0
	`
	var m models.School
	err := s.db.QueryRow(query, id).Scan(
		&m.ID, &m.Name, &m.Address, &m.Phone, &m.CurrentTerm, &m.Currency,
		&m.IsDeleted, &m.CreatedAt, &m.UpdatedAt, &m.SyncStatus, &m.SyncedAt,
	)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// GetUser retrieves a user by id.
func (s *Store) GetUser(id string) (*models.User, error) {
	query := `
	SELECT id, name, phone, role, is_active, is_deleted, created_at,
		   updated_at, sync_status, synced_at
	FROM users WHERE id = ? AND is_deleted = 0
	`
	var m models.User
	err := s.db.QueryRow(query, id).Scan(
		&m.ID, &m.Name, &m.Phone, &m.Role, &m.IsActive, &m.IsDeleted,
		&m.CreatedAt, &m.UpdatedAt, &m.SyncStatus, &m.SyncedAt,
	)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// ListAuditLogs returns recent audit entries for an entity.
func (s *Store) ListAuditLogs(entityType, entityID string, limit int) ([]*models.AuditLog, error) {
	query := `
	SELECT id, actor, action, entity_type, entity_id, detail, timestamp,
		   sync_status, synced_at
	FROM audit_logs WHERE entity_type = ? AND entity_id = ?
	ORDER BY timestamp DESC LIMIT ?
	`
	rows, err := s.db.Query(query, entityType, entityID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []*models.AuditLog
	for rows.Next() {
		var m models.AuditLog
		if err := rows.Scan(
			&m.ID, &m.Actor, &m.Action, &m.EntityType, &m.EntityID, &m.Detail,
			&m.Timestamp, &m.SyncStatus, &m.SyncedAt,
		); err != nil {
			return nil, err
		}
		logs = append(logs, &m)
	}
	return logs, rows.Err()
}

// ErrNoRows is re-exported so callers don't import database/sql just for it.
var ErrNoRows = sql.ErrNoRows
