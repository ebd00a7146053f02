package anchor

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/openbursar/feesync/internal/models"
)

func testPayment() *models.Payment {
	return &models.Payment{
		ID:        "pay-1",
		StudentID: "stu-1",
		Amount:    50_000,
		Currency:  "UGX",
		Method:    "cash",
		PaidAt:    1700000000,
	}
}

func TestNotifierDisabledWithoutURL(t *testing.T) {
	if n := NewNotifier("", time.Second); n != nil {
		t.Error("Expected nil notifier for empty URL")
	}
}

func TestPaymentSyncedPostsDigest(t *testing.T) {
	var mu sync.Mutex
	var got anchorRequest
	received := make(chan struct{}, 1)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("Failed to decode anchor request: %v", err)
		}
		w.WriteHeader(http.StatusAccepted)
		received <- struct{}{}
	}))
	defer server.Close()

	notifier := NewNotifier(server.URL, time.Second)
	payment := testPayment()
	notifier.PaymentSynced(payment)

	select {
	case <-received:
	case <-time.After(2 * time.Second):
		t.Fatal("Expected the digest to be posted")
	}

	mu.Lock()
	defer mu.Unlock()
	if got.PaymentID != "pay-1" {
		t.Errorf("Expected payment id pay-1, got %s", got.PaymentID)
	}
	if got.Digest != digest(payment) {
		t.Errorf("Digest mismatch: %s", got.Digest)
	}
	if got.AnchoredAt == 0 {
		t.Error("Expected anchored_at timestamp")
	}
}

func TestDigestIsStableOverFinancialIdentity(t *testing.T) {
	a := testPayment()
	b := testPayment()
	b.Note = "cosmetic edit"
	b.UpdatedAt = 1700009999

	if digest(a) != digest(b) {
		t.Error("Digest must not change with non-financial fields")
	}

	b.Amount = 49_999
	if digest(a) == digest(b) {
		t.Error("Digest must change with the amount")
	}
}

func TestAnchorFailureIsSwallowed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	notifier := NewNotifier(server.URL, time.Second)
	// Must not panic or block; anchoring is best-effort.
	notifier.PaymentSynced(testPayment())
	time.Sleep(50 * time.Millisecond)
}
