// Package models provides data model definitions for the feesync core.
package models

import "time"

// Payment represents money received against a student's fees. Amount is in
// minor currency units. Payments are financial records: conflicts on them
// are never auto-resolved.
type Payment struct {
	ID         UUID       `db:"id" json:"id"`
	StudentID  UUID       `db:"student_id" json:"student_id"`
	Amount     int64      `db:"amount" json:"amount"`
	Currency   string     `db:"currency" json:"currency"`
	Method     string     `db:"method" json:"method"` // cash, mobile_money, bank
	Reference  string     `db:"reference" json:"reference,omitempty"`
	RecordedBy UUID       `db:"recorded_by" json:"recorded_by"`
	PaidAt     int64      `db:"paid_at" json:"paid_at"`
	Note       string     `db:"note" json:"note,omitempty"`
	IsDeleted  bool       `db:"is_deleted" json:"is_deleted"`
	CreatedAt  int64      `db:"created_at" json:"created_at"`
	UpdatedAt  int64      `db:"updated_at" json:"updated_at"`
	SyncStatus SyncStatus `db:"sync_status" json:"sync_status"`
	SyncedAt   int64      `db:"synced_at" json:"synced_at,omitempty"`
}

// TableName returns the table name for Payment.
func (Payment) TableName() string {
	return "payments"
}

// PaidAtTime returns PaidAt as time.Time.
func (p *Payment) PaidAtTime() time.Time {
	return time.Unix(p.PaidAt, 0)
}

// Touch updates the UpdatedAt timestamp and marks the row pending sync.
func (p *Payment) Touch() {
	p.UpdatedAt = time.Now().Unix()
	p.SyncStatus = SyncStatusPending
}
