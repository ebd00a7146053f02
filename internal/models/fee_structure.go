// Package models provides data model definitions for the feesync core.
package models

// FeeStructure represents a billable fee assigned to a class for a term.
type FeeStructure struct {
	ID         UUID       `db:"id" json:"id"`
	Name       string     `db:"name" json:"name"`
	Code       string     `db:"code" json:"code"`
	ClassID    string     `db:"class_id" json:"class_id"`
	Term       string     `db:"term" json:"term"`
	Amount     int64      `db:"amount" json:"amount"`
	Frequency  string     `db:"frequency" json:"frequency"` // once, per_term, per_year
	IsActive   bool       `db:"is_active" json:"is_active"`
	IsDeleted  bool       `db:"is_deleted" json:"is_deleted"`
	CreatedAt  int64      `db:"created_at" json:"created_at"`
	UpdatedAt  int64      `db:"updated_at" json:"updated_at"`
	SyncStatus SyncStatus `db:"sync_status" json:"sync_status"`
	SyncedAt   int64      `db:"synced_at" json:"synced_at,omitempty"`
}

// TableName returns the table name for FeeStructure.
func (FeeStructure) TableName() string {
	return "fee_structures"
}

// InstallmentRule splits a fee structure into scheduled installments.
type InstallmentRule struct {
	ID             UUID       `db:"id" json:"id"`
	FeeStructureID UUID       `db:"fee_structure_id" json:"fee_structure_id"`
	Sequence       int        `db:"sequence" json:"sequence"`
	Amount         int64      `db:"amount" json:"amount"`
	DueDate        int64      `db:"due_date" json:"due_date"`
	GraceDays      int        `db:"grace_days" json:"grace_days"`
	IsDeleted      bool       `db:"is_deleted" json:"is_deleted"`
	CreatedAt      int64      `db:"created_at" json:"created_at"`
	UpdatedAt      int64      `db:"updated_at" json:"updated_at"`
	SyncStatus     SyncStatus `db:"sync_status" json:"sync_status"`
	SyncedAt       int64      `db:"synced_at" json:"synced_at,omitempty"`
}

// TableName returns the table name for InstallmentRule.
func (InstallmentRule) TableName() string {
	return "installment_rules"
}
