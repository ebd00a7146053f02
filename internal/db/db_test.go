package db

import (
	"os"
	"path/filepath"
	"testing"
)

func TestOpenCreatesDataDirAndFile(t *testing.T) {
	dataDir := filepath.Join(t.TempDir(), "nested", "data")

	database, err := Open(dataDir)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer database.Close()

	if _, err := database.Exec("CREATE TABLE smoke (id INTEGER)"); err != nil {
		t.Fatalf("Expected a writable database: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dataDir, "feesync.db")); err != nil {
		t.Errorf("Expected database file on disk: %v", err)
	}
}

func TestOpenFailsWhenDataDirIsAFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "not-a-dir")
	if err := os.WriteFile(path, []byte("x"), 0o600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	if _, err := Open(path); err == nil {
		t.Error("Expected error when the data dir path is a file")
	}
}
