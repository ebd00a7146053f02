package sync

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	stdsync "sync"
	"testing"
	"time"

	"github.com/openbursar/feesync/internal/connectivity"
	"github.com/openbursar/feesync/internal/db"
	apperrors "github.com/openbursar/feesync/internal/errors"
	"github.com/openbursar/feesync/internal/models"
	"github.com/openbursar/feesync/internal/sync/conflict"
	"github.com/openbursar/feesync/internal/sync/outbox"
	"github.com/openbursar/feesync/internal/uuid"
	_ "modernc.org/sqlite"
)

// fakeRemote answers reconciliation requests from a canned script keyed by
// entity id. It blocks on release when set, for concurrency tests.
type fakeRemote struct {
	mu        stdsync.Mutex
	calls     int
	byEntity  map[models.UUID]*RemoteResponse
	fallback  *RemoteResponse
	sendErr   error
	started   chan struct{}
	release   chan struct{}
}

func (f *fakeRemote) Send(ctx context.Context, item *models.QueueItem) (*RemoteResponse, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.release != nil {
		<-f.release
	}
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	if resp, ok := f.byEntity[item.EntityID]; ok {
		return resp, nil
	}
	if f.fallback != nil {
		return f.fallback, nil
	}
	return &RemoteResponse{Outcome: OutcomeOK, StatusCode: 200}, nil
}

func (f *fakeRemote) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func setupEngine(t *testing.T, remote RemoteClient) (*Engine, *db.Store) {
	t.Helper()

	testDB, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	testDB.SetMaxOpenConns(1)
	t.Cleanup(func() { testDB.Close() })

	if err := db.NewMigrator(testDB).Up(); err != nil {
		t.Fatalf("Failed to migrate test database: %v", err)
	}

	store := db.NewStore(testDB)
	queue := outbox.NewManager(store)
	resolver := conflict.NewResolver(store, queue)
	monitor := connectivity.NewMonitor(time.Millisecond)
	engine := NewEngine(store, queue, remote, resolver, monitor, nil,
		Options{GraceWindow: time.Minute, BatchLimit: 50})
	return engine, store
}

func enqueueStudent(t *testing.T, store *db.Store, name string, updatedAt int64) *models.QueueItem {
	t.Helper()
	id := uuid.New()
	payload, _ := json.Marshal(map[string]interface{}{
		"id": id, "first_name": name, "last_name": "Kintu",
		"admission_no": "ADM-" + id[:8], "class_id": "p5",
		"created_at": updatedAt, "updated_at": updatedAt,
	})
	item, err := store.Put(models.EntityStudents, models.OpCreate, payload, 5)
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	return item
}

func enqueuePayment(t *testing.T, store *db.Store, amount int64) *models.QueueItem {
	t.Helper()
	id := uuid.New()
	now := time.Now().Unix()
	payload, _ := json.Marshal(map[string]interface{}{
		"id": id, "student_id": uuid.New(), "amount": amount,
		"currency": "UGX", "method": "cash", "paid_at": now,
		"created_at": now, "updated_at": now,
	})
	item, err := store.Put(models.EntityPayments, models.OpCreate, payload, 5)
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	return item
}

func TestSyncAcknowledgesReadyItems(t *testing.T) {
	remote := &fakeRemote{}
	engine, store := setupEngine(t, remote)

	studentItem := enqueueStudent(t, store, "Grace", time.Now().Unix())
	enqueuePayment(t, store, 50_000)

	events := engine.Subscribe()

	res, err := engine.Sync(context.Background())
	if err != nil {
		t.Fatalf("Sync failed: %v", err)
	}
	if res.Synced != 2 || res.Failed != 0 {
		t.Fatalf("Expected 2 synced, got %+v", res)
	}
	if remote.callCount() != 2 {
		t.Errorf("Expected 2 remote calls, got %d", remote.callCount())
	}

	got, err := store.GetQueueItem(studentItem.ID.String())
	if err != nil {
		t.Fatalf("GetQueueItem failed: %v", err)
	}
	if got.Status != models.QueueStatusSynced {
		t.Errorf("Expected synced item, got %s", got.Status)
	}

	student, err := store.GetStudent(studentItem.EntityID.String())
	if err != nil {
		t.Fatalf("GetStudent failed: %v", err)
	}
	if student.SyncStatus != models.SyncStatusSynced {
		t.Errorf("Expected synced entity, got %s", student.SyncStatus)
	}

	sawSynced := false
	for done := false; !done; {
		select {
		case ev := <-events:
			if ev.Kind == EventItemSynced {
				sawSynced = true
			}
			if ev.Kind == EventPassCompleted {
				done = true
			}
		case <-time.After(time.Second):
			done = true
		}
	}
	if !sawSynced {
		t.Error("Expected an item_synced event")
	}
}

func TestSyncWithDrainedQueueMakesNoCalls(t *testing.T) {
	remote := &fakeRemote{}
	engine, store := setupEngine(t, remote)

	enqueueStudent(t, store, "Grace", time.Now().Unix())
	if _, err := engine.Sync(context.Background()); err != nil {
		t.Fatalf("First sync failed: %v", err)
	}
	callsAfterFirst := remote.callCount()

	res, err := engine.Sync(context.Background())
	if err != nil {
		t.Fatalf("Second sync failed: %v", err)
	}
	if res.Synced != 0 || res.Failed != 0 {
		t.Errorf("Expected empty pass, got %+v", res)
	}
	if remote.callCount() != callsAfterFirst {
		t.Errorf("Expected no further remote calls, got %d extra",
			remote.callCount()-callsAfterFirst)
	}
}

func TestSyncTransientFailureBurnsOneAttempt(t *testing.T) {
	remote := &fakeRemote{sendErr: errors.New("connection refused")}
	engine, store := setupEngine(t, remote)

	item := enqueueStudent(t, store, "Grace", time.Now().Unix())

	res, err := engine.Sync(context.Background())
	if err != nil {
		t.Fatalf("Sync failed: %v", err)
	}
	if res.Failed != 1 {
		t.Fatalf("Expected 1 failure, got %+v", res)
	}

	got, _ := store.GetQueueItem(item.ID.String())
	if got.Attempts != 1 {
		t.Errorf("Expected exactly 1 attempt, got %d", got.Attempts)
	}
	if got.Status != models.QueueStatusFailed {
		t.Errorf("Expected failed, got %s", got.Status)
	}

	// Immediate retry is gated by backoff: no further calls this soon.
	if _, err := engine.Sync(context.Background()); err != nil {
		t.Fatalf("Second sync failed: %v", err)
	}
	if remote.callCount() != 1 {
		t.Errorf("Expected backoff to hold the item, got %d calls", remote.callCount())
	}
}

func TestSyncServerErrorLeavesMonitorOnline(t *testing.T) {
	remote := &fakeRemote{fallback: &RemoteResponse{
		Outcome:    OutcomeTransient,
		StatusCode: 500,
		Err:        errors.New("remote failure: status 500"),
	}}
	engine, store := setupEngine(t, remote)

	item := enqueueStudent(t, store, "Grace", time.Now().Unix())

	res, err := engine.Sync(context.Background())
	if err != nil {
		t.Fatalf("Sync failed: %v", err)
	}
	if res.Failed != 1 {
		t.Fatalf("Expected 1 failure, got %+v", res)
	}

	// The server answered, so the scheduler must stay eligible to run the
	// backoff retry.
	if !engine.monitor.IsOnline() {
		t.Error("Expected monitor online after a 5xx response")
	}
	got, _ := store.GetQueueItem(item.ID.String())
	if got.Attempts != 1 {
		t.Errorf("Expected 1 attempt, got %d", got.Attempts)
	}
}

func TestSyncTransportFailureHoldsRemainingItems(t *testing.T) {
	remote := &fakeRemote{sendErr: errors.New("dial tcp: network is unreachable")}
	engine, store := setupEngine(t, remote)

	first := enqueueStudent(t, store, "First", time.Now().Unix())
	second := enqueueStudent(t, store, "Second", time.Now().Unix())
	third := enqueueStudent(t, store, "Third", time.Now().Unix())

	res, err := engine.Sync(context.Background())
	if err != nil {
		t.Fatalf("Sync failed: %v", err)
	}

	// One attempt proves the network is down; the rest must not pay for it.
	if remote.callCount() != 1 {
		t.Errorf("Expected 1 remote call against a dead network, got %d", remote.callCount())
	}
	if res.Failed != 1 || res.Skipped != 2 {
		t.Errorf("Expected 1 failed and 2 skipped, got %+v", res)
	}
	if engine.monitor.IsOnline() {
		t.Error("Expected monitor offline after a transport failure")
	}

	gotFirst, _ := store.GetQueueItem(first.ID.String())
	if gotFirst.Attempts != 1 {
		t.Errorf("Expected first item to burn 1 attempt, got %d", gotFirst.Attempts)
	}
	for _, item := range []*models.QueueItem{second, third} {
		got, _ := store.GetQueueItem(item.ID.String())
		if got.Status != models.QueueStatusPending || got.Attempts != 0 {
			t.Errorf("Expected held item untouched, got %s with %d attempts",
				got.Status, got.Attempts)
		}
	}
}

func TestSyncRejectionIsPermanent(t *testing.T) {
	remote := &fakeRemote{fallback: &RemoteResponse{
		Outcome:    OutcomeRejected,
		StatusCode: 422,
		Err:        errors.New("remote rejected payload: status 422"),
	}}
	engine, store := setupEngine(t, remote)

	item := enqueueStudent(t, store, "Grace", time.Now().Unix())

	if _, err := engine.Sync(context.Background()); err != nil {
		t.Fatalf("Sync failed: %v", err)
	}

	got, _ := store.GetQueueItem(item.ID.String())
	if !got.Exhausted() {
		t.Error("Expected rejection to exhaust the retry budget")
	}
}

func TestSyncPartialFailureIsolation(t *testing.T) {
	remote := &fakeRemote{byEntity: map[models.UUID]*RemoteResponse{}}
	engine, store := setupEngine(t, remote)

	bad := enqueueStudent(t, store, "Failing", time.Now().Unix())
	good := enqueueStudent(t, store, "Passing", time.Now().Unix())
	remote.byEntity[bad.EntityID] = &RemoteResponse{
		Outcome:    OutcomeTransient,
		StatusCode: 503,
		Err:        errors.New("remote failure: status 503"),
	}

	res, err := engine.Sync(context.Background())
	if err != nil {
		t.Fatalf("Sync failed: %v", err)
	}
	if res.Synced != 1 || res.Failed != 1 {
		t.Fatalf("Expected 1 synced and 1 failed, got %+v", res)
	}

	badItem, _ := store.GetQueueItem(bad.ID.String())
	if badItem.Status != models.QueueStatusFailed || badItem.Attempts != 1 {
		t.Errorf("Expected failed with 1 attempt, got %s/%d", badItem.Status, badItem.Attempts)
	}
	goodItem, _ := store.GetQueueItem(good.ID.String())
	if goodItem.Status != models.QueueStatusSynced {
		t.Errorf("Expected unrelated item synced, got %s", goodItem.Status)
	}
}

func TestSyncPaymentConflictIsParkedNotResolved(t *testing.T) {
	remote := &fakeRemote{byEntity: map[models.UUID]*RemoteResponse{}}
	engine, store := setupEngine(t, remote)

	item := enqueuePayment(t, store, 50_000)
	serverData, _ := json.Marshal(map[string]interface{}{
		"id": item.EntityID, "student_id": uuid.New(), "amount": 45_000,
		"currency": "UGX", "method": "cash",
		"paid_at": time.Now().Unix(), "created_at": time.Now().Unix(),
		"updated_at": time.Now().Unix() + 100,
	})
	remote.byEntity[item.EntityID] = &RemoteResponse{
		Outcome:    OutcomeConflict,
		StatusCode: 409,
		ServerData: serverData,
	}

	res, err := engine.Sync(context.Background())
	if err != nil {
		t.Fatalf("Sync failed: %v", err)
	}
	if res.Conflicts != 1 {
		t.Fatalf("Expected 1 conflict, got %+v", res)
	}

	got, _ := store.GetQueueItem(item.ID.String())
	if got.Status != models.QueueStatusConflict {
		t.Errorf("Expected parked item, got %s", got.Status)
	}
	if got.Attempts != 0 {
		t.Errorf("Expected conflict to leave attempts alone, got %d", got.Attempts)
	}

	records, err := store.ListUnresolvedConflicts()
	if err != nil {
		t.Fatalf("ListUnresolvedConflicts failed: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("Expected 1 unresolved conflict, got %d", len(records))
	}

	payment, err := store.GetPayment(item.EntityID.String())
	if err != nil {
		t.Fatalf("GetPayment failed: %v", err)
	}
	// The local amount must survive untouched until the operator decides.
	if payment.Amount != 50_000 {
		t.Errorf("Expected local amount preserved, got %d", payment.Amount)
	}
	if payment.SyncStatus != models.SyncStatusConflict {
		t.Errorf("Expected conflict flag on entity, got %s", payment.SyncStatus)
	}
}

func TestSyncStudentConflictAutoResolvesToNewerVersion(t *testing.T) {
	remote := &fakeRemote{byEntity: map[models.UUID]*RemoteResponse{}}
	engine, store := setupEngine(t, remote)

	localTS := time.Now().Unix()
	item := enqueueStudent(t, store, "Local", localTS)
	serverData, _ := json.Marshal(map[string]interface{}{
		"id": item.EntityID, "first_name": "Server", "last_name": "Kintu",
		"admission_no": "ADM-X", "class_id": "p5",
		"created_at": localTS, "updated_at": localTS + 600,
	})
	remote.byEntity[item.EntityID] = &RemoteResponse{
		Outcome:    OutcomeConflict,
		StatusCode: 409,
		ServerData: serverData,
	}

	res, err := engine.Sync(context.Background())
	if err != nil {
		t.Fatalf("Sync failed: %v", err)
	}
	if res.Conflicts != 1 {
		t.Fatalf("Expected 1 conflict, got %+v", res)
	}

	student, err := store.GetStudent(item.EntityID.String())
	if err != nil {
		t.Fatalf("GetStudent failed: %v", err)
	}
	if student.FirstName != "Server" {
		t.Errorf("Expected server version adopted, got %s", student.FirstName)
	}
	if student.SyncStatus != models.SyncStatusSynced {
		t.Errorf("Expected synced after keep-server, got %s", student.SyncStatus)
	}

	// The stale mutation is dropped, nothing left to send.
	if _, err := store.GetQueueItem(item.ID.String()); err != sql.ErrNoRows {
		t.Errorf("Expected queue item discarded, got %v", err)
	}
	unresolved, _ := store.ListUnresolvedConflicts()
	if len(unresolved) != 0 {
		t.Errorf("Expected no unresolved conflicts, got %d", len(unresolved))
	}
}

func TestSyncSingleFlight(t *testing.T) {
	remote := &fakeRemote{
		started: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	engine, store := setupEngine(t, remote)
	enqueueStudent(t, store, "Grace", time.Now().Unix())

	done := make(chan error, 1)
	go func() {
		_, err := engine.Sync(context.Background())
		done <- err
	}()

	<-remote.started
	if _, err := engine.Sync(context.Background()); !apperrors.Is(err, apperrors.ErrSyncInProgress) {
		t.Errorf("Expected SYNC_IN_PROGRESS, got %v", err)
	}
	if !engine.Syncing() {
		t.Error("Expected Syncing to report true mid-pass")
	}

	close(remote.release)
	if err := <-done; err != nil {
		t.Fatalf("First sync failed: %v", err)
	}
	if engine.Syncing() {
		t.Error("Expected guard released after the pass")
	}
}

func TestSyncReportsCursor(t *testing.T) {
	remote := &fakeRemote{}
	engine, store := setupEngine(t, remote)
	enqueueStudent(t, store, "Grace", time.Now().Unix())

	cursor, err := engine.Status()
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if cursor.Status != CursorIdle || cursor.Pending != 1 {
		t.Errorf("Expected idle cursor with 1 pending, got %+v", cursor)
	}

	if _, err := engine.Sync(context.Background()); err != nil {
		t.Fatalf("Sync failed: %v", err)
	}

	cursor, err = engine.Status()
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if cursor.Status != CursorSuccess {
		t.Errorf("Expected success cursor, got %s", cursor.Status)
	}
	if cursor.LastSyncTime == 0 {
		t.Error("Expected last sync time recorded")
	}
}

func TestRecoverRevertsInFlightItems(t *testing.T) {
	remote := &fakeRemote{}
	engine, store := setupEngine(t, remote)

	item := enqueueStudent(t, store, "Grace", time.Now().Unix())
	if err := store.MarkSyncing(item.ID); err != nil {
		t.Fatalf("MarkSyncing failed: %v", err)
	}

	if err := engine.Recover(); err != nil {
		t.Fatalf("Recover failed: %v", err)
	}

	got, _ := store.GetQueueItem(item.ID.String())
	if got.Status != models.QueueStatusFailed {
		t.Errorf("Expected failed after recovery, got %s", got.Status)
	}
}
