// Package models provides data model definitions for the feesync core.
package models

// School holds school-level settings. A single deployment normally has one
// row but multi-campus installs may carry several.
type School struct {
	ID          UUID       `db:"id" json:"id"`
	Name        string     `db:"name" json:"name"`
	Address     string     `db:"address" json:"address,omitempty"`
	Phone       string     `db:"phone" json:"phone,omitempty"`
	CurrentTerm string     `db:"current_term" json:"current_term"`
	Currency    string     `db:"currency" json:"currency"`
	IsDeleted   bool       `db:"is_deleted" json:"is_deleted"`
	CreatedAt   int64      `db:"created_at" json:"created_at"`
	UpdatedAt   int64      `db:"updated_at" json:"updated_at"`
	SyncStatus  SyncStatus `db:"sync_status" json:"sync_status"`
	SyncedAt    int64      `db:"synced_at" json:"synced_at,omitempty"`
}

// TableName returns the table name for School.
func (School) TableName() string {
	return "schools"
}

// User represents an operator of the dashboard (bursar, head teacher).
type User struct {
	ID         UUID       `db:"id" json:"id"`
	Name       string     `db:"name" json:"name"`
	Phone      string     `db:"phone" json:"phone,omitempty"`
	Role       string     `db:"role" json:"role"` // bursar, admin, head_teacher
	IsActive   bool       `db:"is_active" json:"is_active"`
	IsDeleted  bool       `db:"is_deleted" json:"is_deleted"`
	CreatedAt  int64      `db:"created_at" json:"created_at"`
	UpdatedAt  int64      `db:"updated_at" json:"updated_at"`
	SyncStatus SyncStatus `db:"sync_status" json:"sync_status"`
	SyncedAt   int64      `db:"synced_at" json:"synced_at,omitempty"`
}

// TableName returns the table name for User.
func (User) TableName() string {
	return "users"
}

// AuditLog records who did what for later review. Audit rows sync like any
// other entity but are append-only locally.
type AuditLog struct {
	ID         UUID       `db:"id" json:"id"`
	Actor      UUID       `db:"actor" json:"actor"`
	Action     string     `db:"action" json:"action"`
	EntityType string     `db:"entity_type" json:"entity_type"`
	EntityID   string     `db:"entity_id" json:"entity_id"`
	Detail     string     `db:"detail" json:"detail,omitempty"`
	Timestamp  int64      `db:"timestamp" json:"timestamp"`
	SyncStatus SyncStatus `db:"sync_status" json:"sync_status"`
	SyncedAt   int64      `db:"synced_at" json:"synced_at,omitempty"`
}

// TableName returns the table name for AuditLog.
func (AuditLog) TableName() string {
	return "audit_logs"
}
