package db

import (
	"encoding/json"
	"testing"
	"time"

	apperrors "github.com/openbursar/feesync/internal/errors"
	"github.com/openbursar/feesync/internal/models"
	"github.com/openbursar/feesync/internal/uuid"
)

func TestExportImportRoundTrip(t *testing.T) {
	source := setupStore(t)

	studentID := seedStudent(t, source, "p5", 25_000)
	seedPayment(t, source, studentID, 10_000, time.Now().Unix())
	// Pending mutations must not travel with the bundle.
	if _, err := source.Put(models.EntityStudents, models.OpCreate,
		studentPayload(t, uuid.New(), "Pending"), 5); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	bundle, err := source.ExportBundle()
	if err != nil {
		t.Fatalf("ExportBundle failed: %v", err)
	}
	if bundle.Checksum == "" {
		t.Fatal("Expected bundle checksum")
	}
	if _, ok := bundle.Tables["sync_queue"]; ok {
		t.Error("Outbox must not be exported")
	}

	target := setupStore(t)
	if err := target.ImportBundle(bundle); err != nil {
		t.Fatalf("ImportBundle failed: %v", err)
	}

	student, err := target.GetStudent(studentID)
	if err != nil {
		t.Fatalf("GetStudent after import failed: %v", err)
	}
	if student.Balance != 25_000 {
		t.Errorf("Expected balance 25000, got %d", student.Balance)
	}

	payments, err := target.ListPaymentsByStudent(studentID)
	if err != nil {
		t.Fatalf("ListPaymentsByStudent failed: %v", err)
	}
	if len(payments) != 1 || payments[0].Amount != 10_000 {
		t.Errorf("Expected 1 payment of 10000, got %d payments", len(payments))
	}

	// The target's outbox stays empty: the bundle carries data, not intent.
	pending, _ := target.PendingCount()
	if pending != 0 {
		t.Errorf("Expected empty outbox after import, got %d items", pending)
	}
}

func TestImportReplacesExistingData(t *testing.T) {
	source := setupStore(t)
	keep := seedStudent(t, source, "p5", 0)
	bundle, err := source.ExportBundle()
	if err != nil {
		t.Fatalf("ExportBundle failed: %v", err)
	}

	target := setupStore(t)
	stale := seedStudent(t, target, "p9", 99_999)

	if err := target.ImportBundle(bundle); err != nil {
		t.Fatalf("ImportBundle failed: %v", err)
	}
	if _, err := target.GetStudent(keep); err != nil {
		t.Errorf("Expected imported student present, got %v", err)
	}
	if _, err := target.GetStudent(stale); err == nil {
		t.Error("Expected pre-import data to be replaced")
	}
}

func TestImportRejectsTamperedBundle(t *testing.T) {
	source := setupStore(t)
	seedStudent(t, source, "p5", 25_000)
	bundle, err := source.ExportBundle()
	if err != nil {
		t.Fatalf("ExportBundle failed: %v", err)
	}

	var tableRows []map[string]interface{}
	if err := json.Unmarshal(bundle.Tables["students"], &tableRows); err != nil {
		t.Fatalf("Failed to decode students: %v", err)
	}
	tableRows[0]["balance"] = 0
	tampered, _ := json.Marshal(tableRows)
	bundle.Tables["students"] = tampered

	target := setupStore(t)
	err = target.ImportBundle(bundle)
	if !apperrors.Is(err, apperrors.ErrBundleCorrupted) {
		t.Errorf("Expected BUNDLE_CORRUPTED, got %v", err)
	}
}

func TestImportRejectsUnsupportedVersion(t *testing.T) {
	source := setupStore(t)
	bundle, err := source.ExportBundle()
	if err != nil {
		t.Fatalf("ExportBundle failed: %v", err)
	}
	bundle.Version = models.BundleVersion + 1

	target := setupStore(t)
	err = target.ImportBundle(bundle)
	if !apperrors.Is(err, apperrors.ErrBundleVersion) {
		t.Errorf("Expected BUNDLE_VERSION_UNSUPPORTED, got %v", err)
	}
}
