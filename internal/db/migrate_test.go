package db

import (
	"database/sql"
	"testing"

	_ "modernc.org/sqlite"
)

func TestMigratorAppliesFullHistory(t *testing.T) {
	testDB, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	defer testDB.Close()

	migrator := NewMigrator(testDB)
	if err := migrator.Up(); err != nil {
		t.Fatalf("Up failed: %v", err)
	}

	version, err := migrator.CurrentVersion()
	if err != nil {
		t.Fatalf("CurrentVersion failed: %v", err)
	}
	if version != len(migrations) {
		t.Errorf("Expected version %d, got %d", len(migrations), version)
	}

	for _, table := range []string{"students", "payments", "sync_queue", "conflict_records"} {
		var name string
		err := testDB.QueryRow(
			"SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?", table).Scan(&name)
		if err != nil {
			t.Errorf("Expected table %s to exist: %v", table, err)
		}
	}
}

func TestMigratorIsIdempotent(t *testing.T) {
	testDB, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	defer testDB.Close()

	migrator := NewMigrator(testDB)
	if err := migrator.Up(); err != nil {
		t.Fatalf("First Up failed: %v", err)
	}
	if err := migrator.Up(); err != nil {
		t.Fatalf("Second Up failed: %v", err)
	}

	applied, err := migrator.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations failed: %v", err)
	}
	if len(applied) != len(migrations) {
		t.Errorf("Expected %d applied migrations, got %d", len(migrations), len(applied))
	}
}

func TestMigratorDetectsChecksumDrift(t *testing.T) {
	testDB, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	defer testDB.Close()

	migrator := NewMigrator(testDB)
	if err := migrator.Up(); err != nil {
		t.Fatalf("Up failed: %v", err)
	}

	// Simulate an edited historical migration by corrupting its record.
	if _, err := testDB.Exec(
		"UPDATE schema_migrations SET checksum = ? WHERE version = 1",
		checksum("tampered")); err != nil {
		t.Fatalf("Failed to corrupt checksum: %v", err)
	}

	if err := migrator.Up(); err == nil {
		t.Error("Expected checksum mismatch error")
	}
}
