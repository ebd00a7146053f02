package sync

import (
	"context"
	stdsync "sync"
	"sync/atomic"
	"time"

	"github.com/openbursar/feesync/internal/connectivity"
	"github.com/openbursar/feesync/internal/db"
	apperrors "github.com/openbursar/feesync/internal/errors"
	"github.com/openbursar/feesync/internal/logging"
	"github.com/openbursar/feesync/internal/metrics"
	"github.com/openbursar/feesync/internal/models"
	"github.com/openbursar/feesync/internal/sync/conflict"
	"github.com/openbursar/feesync/internal/sync/outbox"
)

// CursorStatus is the engine's coarse state for the sync health panel.
type CursorStatus string

const (
	CursorIdle    CursorStatus = "idle"
	CursorSyncing CursorStatus = "syncing"
	CursorSuccess CursorStatus = "success"
	CursorError   CursorStatus = "error"
)

// Cursor summarizes the last pass for UI display.
type Cursor struct {
	Status       CursorStatus `json:"status"`
	LastSyncTime int64        `json:"last_sync_time,omitempty"`
	LastError    string       `json:"last_error,omitempty"`
	Pending      int          `json:"pending"`
	Conflicts    int          `json:"conflicts"`
}

// Result reports the outcome of one sync pass.
type Result struct {
	Synced    int           `json:"synced"`
	Failed    int           `json:"failed"`
	Conflicts int           `json:"conflicts"`
	Skipped   int           `json:"skipped"`
	Duration  time.Duration `json:"duration"`
}

func (r *Result) total() int {
	return r.Synced + r.Failed + r.Conflicts + r.Skipped
}

// AnchorNotifier receives acknowledged payments for remote audit anchoring.
// Implementations must not block the sync pass.
type AnchorNotifier interface {
	PaymentSynced(p *models.Payment)
}

// Options configures an Engine.
type Options struct {
	GraceWindow time.Duration // how long acknowledged queue rows linger
	BatchLimit  int           // max items drained per pass
}

// Engine drains the outbox against the remote. At most one pass runs at a
// time; overlapping calls return ErrSyncInProgress rather than queue up.
type Engine struct {
	store    *db.Store
	queue    *outbox.Manager
	remote   RemoteClient
	resolver *conflict.Resolver
	monitor  *connectivity.Monitor
	anchor   AnchorNotifier
	log      *logging.Logger

	grace      time.Duration
	batchLimit int

	inFlight atomic.Bool

	mu       stdsync.RWMutex
	status   CursorStatus
	lastSync int64
	lastErr  string

	bus eventBus
}

// NewEngine wires an Engine over its collaborators. anchor may be nil.
func NewEngine(store *db.Store, queue *outbox.Manager, remote RemoteClient,
	resolver *conflict.Resolver, monitor *connectivity.Monitor,
	anchor AnchorNotifier, opts Options) *Engine {
	if opts.BatchLimit <= 0 {
		opts.BatchLimit = 100
	}
	if opts.GraceWindow <= 0 {
		opts.GraceWindow = time.Minute
	}
	return &Engine{
		store:      store,
		queue:      queue,
		remote:     remote,
		resolver:   resolver,
		monitor:    monitor,
		anchor:     anchor,
		log:        logging.Get(),
		grace:      opts.GraceWindow,
		batchLimit: opts.BatchLimit,
		status:     CursorIdle,
	}
}

// Subscribe returns a channel of sync lifecycle events.
func (e *Engine) Subscribe() <-chan Event {
	return e.bus.Subscribe()
}

// Recover reverts items left in-flight by a crash or hard shutdown. Call
// once at startup before the first pass.
func (e *Engine) Recover() error {
	n, err := e.queue.RecoverInFlight()
	if err != nil {
		return err
	}
	if n > 0 {
		e.log.Warn("recovered in-flight queue items", map[string]interface{}{"count": n})
	}
	return nil
}

// Sync runs one pass over the outbox. It returns ErrSyncInProgress when a
// pass is already running. A pass with nothing to send makes no network
// calls and reports success.
func (e *Engine) Sync(ctx context.Context) (*Result, error) {
	if !e.inFlight.CompareAndSwap(false, true) {
		return nil, apperrors.New(apperrors.ErrSyncInProgress, "a sync pass is already running")
	}
	defer e.inFlight.Store(false)

	start := time.Now()
	e.setStatus(CursorSyncing, "")
	e.bus.publish(Event{Kind: EventPassStarted})

	res, err := e.pass(ctx)

	res.Duration = time.Since(start)
	metrics.SyncPassDuration.Observe(res.Duration.Seconds())
	e.updateBacklogGauge()

	if err != nil {
		metrics.SyncPasses.WithLabelValues("error").Inc()
		e.setStatus(CursorError, err.Error())
	} else {
		label := "success"
		if res.Failed > 0 {
			label = "partial"
		}
		metrics.SyncPasses.WithLabelValues(label).Inc()
		e.mu.Lock()
		e.status = CursorSuccess
		e.lastSync = time.Now().Unix()
		e.lastErr = ""
		e.mu.Unlock()
	}

	pending, _ := e.queue.PendingCount()
	e.bus.publish(Event{Kind: EventPassCompleted, Pending: pending})
	e.log.Info("sync pass finished", map[string]interface{}{
		"synced":    res.Synced,
		"failed":    res.Failed,
		"conflicts": res.Conflicts,
		"skipped":   res.Skipped,
		"pending":   pending,
		"duration":  res.Duration.String(),
	})
	return res, err
}

// pass drains ready items in enqueue order. A failure on one entity blocks
// the rest of that entity's items for the pass but not other entities.
func (e *Engine) pass(ctx context.Context) (*Result, error) {
	res := &Result{}

	if _, err := e.queue.PurgeSynced(e.grace); err != nil {
		return res, apperrors.Wrap(apperrors.ErrStorage, "failed to purge acknowledged items", err)
	}

	items, err := e.queue.NextReady(e.batchLimit)
	if err != nil {
		return res, apperrors.Wrap(apperrors.ErrStorage, "failed to read outbox", err)
	}
	if len(items) == 0 {
		return res, nil
	}

	blocked := make(map[models.UUID]bool)
	attempted := false
	for _, item := range items {
		if ctx.Err() != nil {
			// Remaining items were never started; they stay eligible.
			res.Skipped += len(items) - res.total()
			return res, apperrors.Wrap(apperrors.ErrSyncTimeout, "sync pass cancelled", ctx.Err())
		}
		if attempted && !e.monitor.IsOnline() {
			// The network died mid-pass. Sending the rest would burn one
			// retry attempt per entity against a connection known to be
			// down; they stay eligible for the next pass instead. The
			// first send always goes out so a manual pass can double as a
			// connectivity check.
			res.Skipped += len(items) - res.total()
			e.log.Warn("connectivity lost mid-pass, remaining items held", map[string]interface{}{
				"skipped": res.Skipped,
			})
			break
		}
		if blocked[item.EntityID] {
			res.Skipped++
			continue
		}
		attempted = true
		e.processItem(ctx, item, blocked, res)
	}
	return res, nil
}

func (e *Engine) processItem(ctx context.Context, item *models.QueueItem, blocked map[models.UUID]bool, res *Result) {
	if err := e.queue.Begin(item); err != nil {
		e.log.Error("failed to mark item syncing", err, map[string]interface{}{"item_id": item.ID.String()})
		blocked[item.EntityID] = true
		res.Failed++
		return
	}

	resp, err := e.remote.Send(ctx, item)
	if err != nil {
		// Transport never reached a conclusive answer. One attempt burned.
		e.monitor.ReportOutcome(false)
		e.failItem(item, err.Error(), false, res)
		blocked[item.EntityID] = true
		return
	}

	switch resp.Outcome {
	case OutcomeOK:
		e.monitor.ReportOutcome(true)
		e.completeItem(item, res)

	case OutcomeConflict:
		// The request reached the server; connectivity is fine.
		e.monitor.ReportOutcome(true)
		metrics.ConflictsDetected.WithLabelValues(string(item.EntityType)).Inc()
		_, resolution, cerr := e.resolver.HandleRemoteConflict(item, resp.ServerData)
		if cerr != nil {
			e.log.Error("conflict handling failed", cerr, map[string]interface{}{"item_id": item.ID.String()})
			e.failItem(item, cerr.Error(), false, res)
			blocked[item.EntityID] = true
			return
		}
		res.Conflicts++
		blocked[item.EntityID] = true
		e.bus.publish(Event{
			Kind:       EventConflict,
			EntityType: item.EntityType,
			EntityID:   item.EntityID,
			ItemID:     item.ID,
			Error:      resolution,
		})

	case OutcomeRejected:
		e.monitor.ReportOutcome(true)
		e.failItem(item, resp.Err.Error(), true, res)
		blocked[item.EntityID] = true

	default: // OutcomeTransient
		// A 5xx still proves the server is reachable. Only transport
		// errors, where no response arrived, say anything about the network.
		e.monitor.ReportOutcome(true)
		msg := "remote transient failure"
		if resp.Err != nil {
			msg = resp.Err.Error()
		}
		e.failItem(item, msg, false, res)
		blocked[item.EntityID] = true
	}
}

func (e *Engine) completeItem(item *models.QueueItem, res *Result) {
	now := time.Now().Unix()
	if err := e.queue.Complete(item); err != nil {
		e.log.Error("failed to mark item synced", err, map[string]interface{}{"item_id": item.ID.String()})
		res.Failed++
		return
	}
	if err := e.store.MarkEntitySynced(item.EntityType, item.EntityID, now); err != nil {
		e.log.Error("failed to mark entity synced", err, map[string]interface{}{"entity_id": item.EntityID.String()})
	}

	metrics.ItemsSynced.WithLabelValues(string(item.EntityType)).Inc()
	res.Synced++
	e.bus.publish(Event{
		Kind:       EventItemSynced,
		EntityType: item.EntityType,
		EntityID:   item.EntityID,
		ItemID:     item.ID,
	})

	if e.anchor != nil && item.EntityType == models.EntityPayments && item.Operation != models.OpDelete {
		if p, err := e.store.GetPayment(item.EntityID.String()); err == nil {
			e.anchor.PaymentSynced(p)
		}
	}
}

func (e *Engine) failItem(item *models.QueueItem, cause string, permanent bool, res *Result) {
	kind := "transient"
	code := apperrors.ErrSyncTransient
	if permanent {
		kind = "permanent"
		code = apperrors.ErrSyncRejected
	}
	exhausted, err := e.queue.Fail(item, apperrors.New(code, cause), permanent)
	if err != nil {
		e.log.Error("failed to record item failure", err, map[string]interface{}{"item_id": item.ID.String()})
	}
	if exhausted {
		e.log.ErrorWithCode("queue item exhausted its retry budget",
			string(apperrors.ErrSyncExhausted), nil, map[string]interface{}{
				"item_id":     item.ID.String(),
				"entity_type": string(item.EntityType),
				"last_error":  cause,
			})
	}

	metrics.ItemsFailed.WithLabelValues(string(item.EntityType), kind).Inc()
	res.Failed++
	e.bus.publish(Event{
		Kind:       EventItemFailed,
		EntityType: item.EntityType,
		EntityID:   item.EntityID,
		ItemID:     item.ID,
		Error:      cause,
	})
}

func (e *Engine) setStatus(status CursorStatus, errMsg string) {
	e.mu.Lock()
	e.status = status
	e.lastErr = errMsg
	e.mu.Unlock()
}

func (e *Engine) updateBacklogGauge() {
	if n, err := e.queue.PendingCount(); err == nil {
		metrics.OutboxBacklog.Set(float64(n))
	}
}

// Status reports the engine cursor for the sync health panel.
func (e *Engine) Status() (*Cursor, error) {
	pending, err := e.queue.PendingCount()
	if err != nil {
		return nil, err
	}
	conflicts, err := e.store.UnresolvedConflictCount()
	if err != nil {
		return nil, err
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	return &Cursor{
		Status:       e.status,
		LastSyncTime: e.lastSync,
		LastError:    e.lastErr,
		Pending:      pending,
		Conflicts:    conflicts,
	}, nil
}

// Syncing reports whether a pass is currently running.
func (e *Engine) Syncing() bool {
	return e.inFlight.Load()
}

// Resolver exposes the conflict resolver for operator-driven resolutions.
func (e *Engine) Resolver() *conflict.Resolver {
	return e.resolver
}
