// Package models provides data model definitions for the feesync core.
package models

import "time"

// Student represents an enrolled student and their running fee balance.
// Balance is kept in minor currency units (cents) to avoid float drift.
type Student struct {
	ID            UUID       `db:"id" json:"id"`
	FirstName     string     `db:"first_name" json:"first_name"`
	LastName      string     `db:"last_name" json:"last_name"`
	AdmissionNo   string     `db:"admission_no" json:"admission_no"`
	ClassID       string     `db:"class_id" json:"class_id"`
	GuardianName  string     `db:"guardian_name" json:"guardian_name,omitempty"`
	GuardianPhone string     `db:"guardian_phone" json:"guardian_phone,omitempty"`
	Balance       int64      `db:"balance" json:"balance"`
	IsActive      bool       `db:"is_active" json:"is_active"`
	IsDeleted     bool       `db:"is_deleted" json:"is_deleted"`
	CreatedAt     int64      `db:"created_at" json:"created_at"`
	UpdatedAt     int64      `db:"updated_at" json:"updated_at"`
	SyncStatus    SyncStatus `db:"sync_status" json:"sync_status"`
	SyncedAt      int64      `db:"synced_at" json:"synced_at,omitempty"`
}

// TableName returns the table name for Student.
func (Student) TableName() string {
	return "students"
}

// FullName returns the display name for the student.
func (s *Student) FullName() string {
	return s.FirstName + " " + s.LastName
}

// Touch updates the UpdatedAt timestamp and marks the row pending sync.
func (s *Student) Touch() {
	s.UpdatedAt = time.Now().Unix()
	s.SyncStatus = SyncStatusPending
}
