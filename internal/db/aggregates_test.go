package db

import (
	"testing"
	"time"

	"github.com/openbursar/feesync/internal/models"
	"github.com/openbursar/feesync/internal/uuid"
)

func seedStudent(t *testing.T, store *Store, classID string, balance int64) string {
	t.Helper()
	id := uuid.New()
	now := time.Now().Unix()
	_, err := store.db.Exec(`
		INSERT INTO students (id, first_name, last_name, admission_no, class_id,
			balance, is_active, created_at, updated_at, sync_status)
		VALUES (?, 'Test', 'Student', ?, ?, ?, 1, ?, ?, 'synced')`,
		id, "ADM-"+id[:8], classID, balance, now, now)
	if err != nil {
		t.Fatalf("Failed to seed student: %v", err)
	}
	return id
}

func seedPayment(t *testing.T, store *Store, studentID string, amount int64, paidAt int64) {
	t.Helper()
	id := uuid.New()
	now := time.Now().Unix()
	_, err := store.db.Exec(`
		INSERT INTO payments (id, student_id, amount, paid_at, created_at, updated_at, sync_status)
		VALUES (?, ?, ?, ?, ?, ?, 'synced')`,
		id, studentID, amount, paidAt, now, now)
	if err != nil {
		t.Fatalf("Failed to seed payment: %v", err)
	}
}

func TestDashboardTotals(t *testing.T) {
	store := setupStore(t)
	now := time.Now()

	owing := seedStudent(t, store, "p5", 50_000)
	paid := seedStudent(t, store, "p6", 0)
	credit := seedStudent(t, store, "p6", -10_000)

	seedPayment(t, store, owing, 20_000, now.Unix())
	seedPayment(t, store, paid, 30_000, now.Unix())
	seedPayment(t, store, credit, 40_000, now.AddDate(0, 0, -3).Unix())

	totals, err := store.Dashboard(now)
	if err != nil {
		t.Fatalf("Dashboard failed: %v", err)
	}

	if totals.CollectedToday != 50_000 {
		t.Errorf("CollectedToday: expected 50000, got %d", totals.CollectedToday)
	}
	if totals.PaymentsToday != 2 {
		t.Errorf("PaymentsToday: expected 2, got %d", totals.PaymentsToday)
	}
	if totals.CollectedTotal != 90_000 {
		t.Errorf("CollectedTotal: expected 90000, got %d", totals.CollectedTotal)
	}
	// Credit balances must not offset arrears.
	if totals.ArrearsTotal != 50_000 {
		t.Errorf("ArrearsTotal: expected 50000, got %d", totals.ArrearsTotal)
	}
	if totals.ActiveStudents != 3 {
		t.Errorf("ActiveStudents: expected 3, got %d", totals.ActiveStudents)
	}
}

func TestDashboardCountsPendingAndConflicts(t *testing.T) {
	store := setupStore(t)

	if _, err := store.Put(models.EntityStudents, models.OpCreate,
		studentPayload(t, uuid.New(), "Grace"), 5); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := store.CreateConflict(&models.ConflictRecord{
		QueueItemID: models.UUID(uuid.New()),
		EntityType:  models.EntityPayments,
		EntityID:    models.UUID(uuid.New()),
		LocalData:   []byte(`{}`),
		ServerData:  []byte(`{}`),
	}); err != nil {
		t.Fatalf("CreateConflict failed: %v", err)
	}

	totals, err := store.Dashboard(time.Now())
	if err != nil {
		t.Fatalf("Dashboard failed: %v", err)
	}
	if totals.PendingSync != 1 {
		t.Errorf("PendingSync: expected 1, got %d", totals.PendingSync)
	}
	if totals.Conflicts != 1 {
		t.Errorf("Conflicts: expected 1, got %d", totals.Conflicts)
	}
}

func TestArrearsByClassOrdersWorstFirst(t *testing.T) {
	store := setupStore(t)

	seedStudent(t, store, "p5", 10_000)
	seedStudent(t, store, "p6", 80_000)
	seedStudent(t, store, "p6", 0)

	rows, err := store.ArrearsByClass()
	if err != nil {
		t.Fatalf("ArrearsByClass failed: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("Expected 2 classes, got %d", len(rows))
	}
	if rows[0].ClassID != "p6" || rows[0].ArrearsTotal != 80_000 {
		t.Errorf("Expected p6 first with 80000, got %s with %d", rows[0].ClassID, rows[0].ArrearsTotal)
	}
	if rows[0].OwingCount != 1 || rows[0].StudentCount != 2 {
		t.Errorf("Expected 1 owing of 2 students in p6, got %d of %d", rows[0].OwingCount, rows[0].StudentCount)
	}
}

func TestSearchStudentsMatchesNameAndAdmission(t *testing.T) {
	store := setupStore(t)

	id := seedStudent(t, store, "p5", 0)
	if _, err := store.db.Exec(
		"UPDATE students SET first_name = 'Naki', admission_no = 'ADM-2024-001' WHERE id = ?", id); err != nil {
		t.Fatalf("Failed to update seed: %v", err)
	}
	seedStudent(t, store, "p5", 0)

	byName, err := store.SearchStudents("naki", 10)
	if err != nil {
		t.Fatalf("SearchStudents failed: %v", err)
	}
	if len(byName) != 1 {
		t.Errorf("Expected 1 match by name, got %d", len(byName))
	}

	byAdmission, err := store.SearchStudents("2024-001", 10)
	if err != nil {
		t.Fatalf("SearchStudents failed: %v", err)
	}
	if len(byAdmission) != 1 {
		t.Errorf("Expected 1 match by admission number, got %d", len(byAdmission))
	}
}
