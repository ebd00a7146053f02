// Package db provides database schema migration management.
package db

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"
)

// Migration is one applied schema migration.
type Migration struct {
	Version     int
	AppliedAt   time.Time
	Description string
	Checksum    string
}

// migration pairs a version with its embedded DDL.
type migration struct {
	version     int
	description string
	sql         string
}

// migrations holds the full schema history, in order. Never edit an entry
// after it has shipped; add a new version instead.
var migrations = []migration{
	{1, "entity tables with sync metadata", schemaV1},
	{2, "outbox and conflict records", schemaV2},
	{3, "aggregate indexes", schemaV3},
}

const schemaV1 = `
CREATE TABLE students (
	id TEXT PRIMARY KEY,
	first_name TEXT NOT NULL,
	last_name TEXT NOT NULL,
	admission_no TEXT NOT NULL,
	class_id TEXT NOT NULL DEFAULT '',
	guardian_name TEXT DEFAULT '',
	guardian_phone TEXT DEFAULT '',
	balance INTEGER NOT NULL DEFAULT 0,
	is_active INTEGER NOT NULL DEFAULT 1,
	is_deleted INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	sync_status TEXT NOT NULL DEFAULT 'pending',
	synced_at INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE payments (
	id TEXT PRIMARY KEY,
	student_id TEXT NOT NULL,
	amount INTEGER NOT NULL,
	currency TEXT NOT NULL DEFAULT 'UGX',
	method TEXT NOT NULL DEFAULT 'cash',
	reference TEXT DEFAULT '',
	recorded_by TEXT NOT NULL DEFAULT '',
	paid_at INTEGER NOT NULL,
	note TEXT DEFAULT '',
	is_deleted INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	sync_status TEXT NOT NULL DEFAULT 'pending',
	synced_at INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE fee_structures (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	code TEXT NOT NULL,
	class_id TEXT NOT NULL DEFAULT '',
	term TEXT NOT NULL DEFAULT '',
	amount INTEGER NOT NULL,
	frequency TEXT NOT NULL DEFAULT 'per_term',
	is_active INTEGER NOT NULL DEFAULT 1,
	is_deleted INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	sync_status TEXT NOT NULL DEFAULT 'pending',
	synced_at INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE installment_rules (
	id TEXT PRIMARY KEY,
	fee_structure_id TEXT NOT NULL,
	sequence INTEGER NOT NULL,
	amount INTEGER NOT NULL,
	due_date INTEGER NOT NULL,
	grace_days INTEGER NOT NULL DEFAULT 0,
	is_deleted INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	sync_status TEXT NOT NULL DEFAULT 'pending',
	synced_at INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE schools (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	address TEXT DEFAULT '',
	phone TEXT DEFAULT '',
	current_term TEXT NOT NULL DEFAULT '',
	currency TEXT NOT NULL DEFAULT 'UGX',
	is_deleted INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	sync_status TEXT NOT NULL DEFAULT 'pending',
	synced_at INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE users (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	phone TEXT DEFAULT '',
	role TEXT NOT NULL DEFAULT 'bursar',
	is_active INTEGER NOT NULL DEFAULT 1,
	is_deleted INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	sync_status TEXT NOT NULL DEFAULT 'pending',
	synced_at INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE audit_logs (
	id TEXT PRIMARY KEY,
	actor TEXT NOT NULL,
	action TEXT NOT NULL,
	entity_type TEXT NOT NULL,
	entity_id TEXT NOT NULL,
	detail TEXT DEFAULT '',
	timestamp INTEGER NOT NULL,
	sync_status TEXT NOT NULL DEFAULT 'pending',
	synced_at INTEGER NOT NULL DEFAULT 0
);
`

const schemaV2 = `
CREATE TABLE sync_queue (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	id TEXT NOT NULL UNIQUE,
	entity_type TEXT NOT NULL,
	entity_id TEXT NOT NULL,
	operation TEXT NOT NULL CHECK(operation IN ('create','update','delete')),
	payload TEXT NOT NULL,
	status TEXT NOT NULL DEFAULT 'pending'
		CHECK(status IN ('pending','syncing','synced','failed','conflict')),
	attempts INTEGER NOT NULL DEFAULT 0,
	max_attempts INTEGER NOT NULL DEFAULT 5,
	next_retry_at INTEGER NOT NULL DEFAULT 0,
	enqueued_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	last_error TEXT DEFAULT '',
	conflict_data TEXT
);

CREATE INDEX idx_sync_queue_entity ON sync_queue(entity_id, seq);
CREATE INDEX idx_sync_queue_status ON sync_queue(status, next_retry_at);

CREATE TABLE conflict_records (
	id TEXT PRIMARY KEY,
	queue_item_id TEXT NOT NULL,
	entity_type TEXT NOT NULL,
	entity_id TEXT NOT NULL,
	local_data TEXT NOT NULL,
	server_data TEXT NOT NULL,
	local_timestamp INTEGER NOT NULL DEFAULT 0,
	server_timestamp INTEGER NOT NULL DEFAULT 0,
	resolution TEXT NOT NULL DEFAULT '',
	detected_at INTEGER NOT NULL,
	resolved_at INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX idx_conflicts_unresolved ON conflict_records(resolution, detected_at);
`

const schemaV3 = `
CREATE INDEX idx_students_class ON students(class_id, is_deleted);
CREATE INDEX idx_students_sync ON students(sync_status);
CREATE INDEX idx_payments_student ON payments(student_id, is_deleted);
CREATE INDEX idx_payments_date ON payments(paid_at);
CREATE INDEX idx_payments_sync ON payments(sync_status);
CREATE INDEX idx_fee_structures_class ON fee_structures(class_id, term);
CREATE INDEX idx_installments_fee ON installment_rules(fee_structure_id, sequence);
CREATE INDEX idx_audit_logs_entity ON audit_logs(entity_type, entity_id);
`

// Migrator applies embedded schema migrations.
type Migrator struct {
	db *sql.DB
}

// NewMigrator creates a new Migrator.
func NewMigrator(db *sql.DB) *Migrator {
	return &Migrator{db: db}
}

// Initialize creates the schema_migrations table if it doesn't exist.
func (m *Migrator) Initialize() error {
	query := `
	CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY CHECK(version > 0),
		applied_at INTEGER NOT NULL,
		description TEXT NOT NULL,
		checksum TEXT NOT NULL CHECK(length(checksum) = 64)
	);`
	_, err := m.db.Exec(query)
	return err
}

// CurrentVersion returns the highest applied schema version.
func (m *Migrator) CurrentVersion() (int, error) {
	var version int
	err := m.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&version)
	return version, err
}

// AppliedMigrations returns all applied migrations in version order.
func (m *Migrator) AppliedMigrations() ([]Migration, error) {
	rows, err := m.db.Query("SELECT version, applied_at, description, checksum FROM schema_migrations ORDER BY version")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var applied []Migration
	for rows.Next() {
		var mig Migration
		var appliedAt int64
		if err := rows.Scan(&mig.Version, &appliedAt, &mig.Description, &mig.Checksum); err != nil {
			return nil, err
		}
		mig.AppliedAt = time.Unix(appliedAt, 0)
		applied = append(applied, mig)
	}
	return applied, rows.Err()
}

// Up applies all pending migrations. Each migration runs in its own
// transaction; a checksum mismatch on an already-applied version aborts.
func (m *Migrator) Up() error {
	if err := m.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize migrations table: %w", err)
	}

	applied, err := m.AppliedMigrations()
	if err != nil {
		return fmt.Errorf("failed to read applied migrations: %w", err)
	}
	appliedByVersion := make(map[int]Migration, len(applied))
	for _, mig := range applied {
		appliedByVersion[mig.Version] = mig
	}

	for _, mig := range migrations {
		sum := checksum(mig.sql)

		if prev, ok := appliedByVersion[mig.version]; ok {
			if prev.Checksum != sum {
				return fmt.Errorf("migration %d checksum mismatch: applied %s, embedded %s",
					mig.version, prev.Checksum, sum)
			}
			continue
		}

		tx, err := m.db.Begin()
		if err != nil {
			return err
		}
		if _, err := tx.Exec(mig.sql); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d (%s) failed: %w", mig.version, mig.description, err)
		}
		if _, err := tx.Exec(
			"INSERT INTO schema_migrations (version, applied_at, description, checksum) VALUES (?, ?, ?, ?)",
			mig.version, time.Now().Unix(), mig.description, sum,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", mig.version, err)
		}
		if err := tx.Commit(); err != nil {
			return err
		}
	}

	return nil
}

func checksum(sql string) string {
	sum := sha256.Sum256([]byte(sql))
	return hex.EncodeToString(sum[:])
}
