package models

import "testing"

func TestQueueItemExhausted(t *testing.T) {
	item := &QueueItem{Attempts: 4, MaxAttempts: 5}
	if item.Exhausted() {
		t.Error("Expected budget remaining at 4/5")
	}
	item.Attempts = 5
	if !item.Exhausted() {
		t.Error("Expected exhausted at 5/5")
	}
}

func TestIsValidEntityType(t *testing.T) {
	for _, et := range EntityTypes() {
		if !IsValidEntityType(et) {
			t.Errorf("Expected %s to be valid", et)
		}
	}
	if IsValidEntityType("invoices") {
		t.Error("Expected unknown collection to be invalid")
	}
}

func TestUUIDScan(t *testing.T) {
	var u UUID
	if err := u.Scan([]byte("abc-123")); err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if u.String() != "abc-123" {
		t.Errorf("Expected abc-123, got %s", u)
	}
	if err := u.Scan(nil); err != nil {
		t.Fatalf("Scan nil failed: %v", err)
	}
	if u != "" {
		t.Errorf("Expected empty UUID after nil scan, got %s", u)
	}
}

func TestConflictRecordResolved(t *testing.T) {
	rec := &ConflictRecord{}
	if rec.Resolved() {
		t.Error("Expected unresolved without a resolution")
	}
	rec.Resolution = ResolutionMerge
	if !rec.Resolved() {
		t.Error("Expected resolved after resolution set")
	}
}
