// Package models provides data model definitions for the feesync core.
package models

import "encoding/json"

// BundleVersion is the current export bundle format version.
const BundleVersion = 1

// Bundle is a versioned snapshot of every entity table, used for backup and
// restore. The outbox is deliberately excluded: pending mutations belong to
// the device that recorded them.
type Bundle struct {
	Version    int                        `json:"version"`
	ExportedAt int64                      `json:"exported_at"`
	Checksum   string                     `json:"checksum"`
	Tables     map[string]json.RawMessage `json:"tables"`
}
