// Package db provides CRUD and outbox operations over the local store.
package db

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	apperrors "github.com/openbursar/feesync/internal/errors"
	"github.com/openbursar/feesync/internal/models"
)

// identRe guards column names round-tripped through a bundle.
var identRe = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// ExportBundle serializes every entity table into a versioned, checksummed
// bundle. The outbox is excluded: pending mutations belong to the device
// that recorded them and must not be replayed elsewhere.
func (s *Store) ExportBundle() (*models.Bundle, error) {
	bundle := &models.Bundle{
		Version:    models.BundleVersion,
		ExportedAt: time.Now().Unix(),
		Tables:     make(map[string]json.RawMessage),
	}

	for _, t := range models.EntityTypes() {
		rows, err := s.dumpTable(string(t))
		if err != nil {
			return nil, apperrors.Wrap(apperrors.ErrExportFailed,
				fmt.Sprintf("failed to dump %s", t), err)
		}
		data, err := json.Marshal(rows)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.ErrExportFailed,
				fmt.Sprintf("failed to encode %s", t), err)
		}
		bundle.Tables[string(t)] = data
	}

	sum, err := bundleChecksum(bundle.Tables)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrExportFailed, "failed to checksum bundle", err)
	}
	bundle.Checksum = sum

	return bundle, nil
}

// ImportBundle restores a snapshot, replacing the contents of every entity
// table. The outbox and conflict records are untouched.
func (s *Store) ImportBundle(bundle *models.Bundle) error {
	if bundle.Version != models.BundleVersion {
		return apperrors.New(apperrors.ErrBundleVersion,
			fmt.Sprintf("bundle version %d, supported %d", bundle.Version, models.BundleVersion))
	}

	sum, err := bundleChecksum(bundle.Tables)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrImportFailed, "failed to checksum bundle", err)
	}
	if sum != bundle.Checksum {
		return apperrors.New(apperrors.ErrBundleCorrupted, "bundle checksum mismatch")
	}

	tx, err := s.db.Begin()
	if err != nil {
		return apperrors.Wrap(apperrors.ErrStorage, "failed to begin transaction", err)
	}

	for _, t := range models.EntityTypes() {
		raw, ok := bundle.Tables[string(t)]
		if !ok {
			continue
		}

		var tableRows []map[string]interface{}
		if err := json.Unmarshal(raw, &tableRows); err != nil {
			tx.Rollback()
			return apperrors.Wrap(apperrors.ErrImportFailed,
				fmt.Sprintf("failed to decode %s", t), err)
		}

		if _, err := tx.Exec(fmt.Sprintf("DELETE FROM %s", string(t))); err != nil {
			tx.Rollback()
			return apperrors.Wrap(apperrors.ErrImportFailed,
				fmt.Sprintf("failed to clear %s", t), err)
		}

		for _, r := range tableRows {
			if err := insertRow(tx, string(t), r); err != nil {
				tx.Rollback()
				return apperrors.Wrap(apperrors.ErrImportFailed,
					fmt.Sprintf("failed to restore %s row", t), err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return apperrors.Wrap(apperrors.ErrStorage, "commit failed", err)
	}
	return nil
}

// dumpTable reads all rows of a table as column→value maps. Column names
// equal the models' json tags, so bundles stay readable.
func (s *Store) dumpTable(table string) ([]map[string]interface{}, error) {
	rows, err := s.db.Query(fmt.Sprintf("SELECT * FROM %s ORDER BY rowid", table))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	result := make([]map[string]interface{}, 0)
	for rows.Next() {
		values := make([]interface{}, len(cols))
		ptrs := make([]interface{}, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}

		row := make(map[string]interface{}, len(cols))
		for i, col := range cols {
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
			} else {
				row[col] = values[i]
			}
		}
		result = append(result, row)
	}
	return result, rows.Err()
}

func insertRow(e execer, table string, row map[string]interface{}) error {
	cols := make([]string, 0, len(row))
	for col := range row {
		if !identRe.MatchString(col) {
			return fmt.Errorf("invalid column name %q", col)
		}
		cols = append(cols, col)
	}
	sort.Strings(cols)

	placeholders := make([]string, len(cols))
	args := make([]interface{}, len(cols))
	for i, col := range cols {
		placeholders[i] = "?"
		args[i] = row[col]
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		table, strings.Join(cols, ", "), strings.Join(placeholders, ", "))
	_, err := e.Exec(query, args...)
	return err
}

// bundleChecksum hashes the table payloads in name order.
func bundleChecksum(tables map[string]json.RawMessage) (string, error) {
	names := make([]string, 0, len(tables))
	for name := range tables {
		names = append(names, name)
	}
	sort.Strings(names)

	h := sha256.New()
	for _, name := range names {
		if _, err := h.Write([]byte(name)); err != nil {
			return "", err
		}
		if _, err := h.Write(tables[name]); err != nil {
			return "", err
		}
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
