// Package models provides data model definitions for the feesync core.
package models

import "database/sql/driver"

// UUID is a wrapper around string for UUID v4 type safety.
type UUID string

// Value implements driver.Valuer for UUID.
func (u UUID) Value() (driver.Value, error) {
	return string(u), nil
}

// Scan implements sql.Scanner for UUID.
func (u *UUID) Scan(value interface{}) error {
	if value == nil {
		*u = ""
		return nil
	}
	switch v := value.(type) {
	case []byte:
		*u = UUID(v)
	case string:
		*u = UUID(v)
	}
	return nil
}

// String returns the string representation of the UUID.
func (u UUID) String() string {
	return string(u)
}

// SyncStatus tags every entity row with its reconciliation state.
type SyncStatus string

const (
	SyncStatusSynced   SyncStatus = "synced"
	SyncStatusPending  SyncStatus = "pending"
	SyncStatusConflict SyncStatus = "conflict"
)

// EntityType identifies a syncable entity collection. The values double as
// local table names and remote endpoint segments.
type EntityType string

const (
	EntityStudents        EntityType = "students"
	EntityPayments        EntityType = "payments"
	EntityFeeStructures   EntityType = "fee_structures"
	EntityInstallmentRule EntityType = "installment_rules"
	EntitySchools         EntityType = "schools"
	EntityUsers           EntityType = "users"
	EntityAuditLogs       EntityType = "audit_logs"
)

// EntityTypes lists every syncable collection in a stable order.
func EntityTypes() []EntityType {
	return []EntityType{
		EntityStudents, EntityPayments, EntityFeeStructures,
		EntityInstallmentRule, EntitySchools, EntityUsers, EntityAuditLogs,
	}
}

// IsValidEntityType reports whether t names a known collection.
func IsValidEntityType(t EntityType) bool {
	for _, known := range EntityTypes() {
		if t == known {
			return true
		}
	}
	return false
}
