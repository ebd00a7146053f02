// Package conflict decides what happens when the remote rejects a local
// mutation because its copy of the record has diverged.
package conflict

import (
	"encoding/json"
	"time"

	"github.com/openbursar/feesync/internal/db"
	apperrors "github.com/openbursar/feesync/internal/errors"
	"github.com/openbursar/feesync/internal/logging"
	"github.com/openbursar/feesync/internal/models"
	"github.com/openbursar/feesync/internal/sync/outbox"
)

// OperatorHook is notified when a conflict needs a human decision. The
// desktop shell uses it to raise the resolution dialog.
type OperatorHook interface {
	OnConflict(rec *models.ConflictRecord)
}

// Resolver implements the conflict policy: newest timestamp wins for
// descriptive records, while payments and any ambiguous case are escalated
// to the operator. Money is never auto-resolved.
type Resolver struct {
	store *db.Store
	queue *outbox.Manager
	hook  OperatorHook
	log   *logging.Logger
}

// NewResolver creates a Resolver over the store and outbox.
func NewResolver(store *db.Store, queue *outbox.Manager) *Resolver {
	return &Resolver{store: store, queue: queue, log: logging.Get()}
}

// SetHook registers the operator notification hook.
func (r *Resolver) SetHook(h OperatorHook) {
	r.hook = h
}

// buildRecord assembles a conflict record from the rejected item and the
// server's current version. Timestamps come from the payloads' updated_at
// fields; a missing local one falls back to the enqueue time.
func buildRecord(item *models.QueueItem, serverData json.RawMessage) *models.ConflictRecord {
	localTS := payloadTimestamp(item.Payload)
	if localTS == 0 {
		localTS = item.EnqueuedAt
	}
	return &models.ConflictRecord{
		QueueItemID:     item.ID,
		EntityType:      item.EntityType,
		EntityID:        item.EntityID,
		LocalData:       item.Payload,
		ServerData:      serverData,
		LocalTimestamp:  localTS,
		ServerTimestamp: payloadTimestamp(serverData),
		DetectedAt:      time.Now().Unix(),
	}
}

func payloadTimestamp(payload json.RawMessage) int64 {
	var head struct {
		UpdatedAt int64 `json:"updated_at"`
	}
	if err := json.Unmarshal(payload, &head); err != nil {
		return 0
	}
	return head.UpdatedAt
}

// amountFields are the money-bearing payload fields that block automatic
// resolution outside of payments.
var amountFields = []string{"amount", "amount_paid", "total_amount", "balance"}

// decide picks an automatic resolution, or returns escalate=true when the
// record must wait for the operator.
func (r *Resolver) decide(rec *models.ConflictRecord) (string, bool) {
	// Payments carry money; a wrong automatic pick here corrupts the books.
	if rec.EntityType == models.EntityPayments {
		return "", true
	}
	if rec.LocalTimestamp == 0 || rec.ServerTimestamp == 0 ||
		rec.LocalTimestamp == rec.ServerTimestamp {
		return "", true
	}
	if amountsDiffer(rec.LocalData, rec.ServerData) {
		return "", true
	}
	if rec.LocalTimestamp > rec.ServerTimestamp {
		return models.ResolutionKeepLocal, false
	}
	return models.ResolutionKeepServer, false
}

func amountsDiffer(local, server json.RawMessage) bool {
	var l, s map[string]json.RawMessage
	if json.Unmarshal(local, &l) != nil || json.Unmarshal(server, &s) != nil {
		return true
	}
	for _, field := range amountFields {
		lv, lok := l[field]
		sv, sok := s[field]
		if lok != sok {
			return true
		}
		if lok && string(lv) != string(sv) {
			return true
		}
	}
	return false
}

// HandleRemoteConflict runs the policy against a rejected queue item. It
// returns the persisted record and the resolution that was applied, or an
// empty resolution when the conflict was escalated and parked.
func (r *Resolver) HandleRemoteConflict(item *models.QueueItem, serverData json.RawMessage) (*models.ConflictRecord, string, error) {
	rec := buildRecord(item, serverData)

	resolution, escalate := r.decide(rec)
	if escalate {
		if err := r.store.CreateConflict(rec); err != nil {
			return nil, "", apperrors.Wrap(apperrors.ErrStorage, "failed to record conflict", err)
		}
		if err := r.queue.Park(item, serverData); err != nil {
			return nil, "", err
		}
		if err := r.store.MarkEntityConflict(rec.EntityType, rec.EntityID); err != nil {
			return nil, "", err
		}
		r.log.Warn("conflict escalated to operator", map[string]interface{}{
			"conflict_id": rec.ID.String(),
			"entity_type": string(rec.EntityType),
			"entity_id":   rec.EntityID.String(),
		})
		if r.hook != nil {
			r.hook.OnConflict(rec)
		}
		return rec, "", nil
	}

	// Auto-resolved conflicts keep the record for the audit trail.
	rec.Resolution = resolution
	rec.ResolvedAt = time.Now().Unix()
	if err := r.store.CreateConflict(rec); err != nil {
		return nil, "", apperrors.Wrap(apperrors.ErrStorage, "failed to record conflict", err)
	}
	if err := r.apply(rec, item, resolution, nil); err != nil {
		return nil, "", err
	}
	r.log.Info("conflict auto-resolved", map[string]interface{}{
		"conflict_id": rec.ID.String(),
		"entity_type": string(rec.EntityType),
		"resolution":  resolution,
	})
	return rec, resolution, nil
}

// Resolve applies an operator-chosen resolution to a parked conflict.
// merged is required for ResolutionMerge and ignored otherwise.
func (r *Resolver) Resolve(conflictID string, resolution string, merged json.RawMessage) error {
	rec, err := r.store.GetConflict(conflictID)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrNotFound, "conflict not found", err)
	}
	if rec.Resolved() {
		return apperrors.New(apperrors.ErrInvalid, "conflict already resolved")
	}

	item, err := r.store.GetQueueItem(rec.QueueItemID.String())
	if err != nil {
		return apperrors.Wrap(apperrors.ErrStorage, "queue item for conflict not found", err)
	}
	if err := r.apply(rec, item, resolution, merged); err != nil {
		return err
	}
	if err := r.store.MarkConflictResolved(rec.ID, resolution, time.Now().Unix()); err != nil {
		return apperrors.Wrap(apperrors.ErrStorage, "failed to mark conflict resolved", err)
	}
	r.log.Info("conflict resolved", map[string]interface{}{
		"conflict_id": rec.ID.String(),
		"resolution":  resolution,
	})
	return nil
}

// apply carries out a resolution:
//
//	keep-server  adopt the server version locally, drop the stale item
//	keep-local   requeue the original mutation as a corrective write
//	merge        swap the merged payload in locally and on the item, requeue
func (r *Resolver) apply(rec *models.ConflictRecord, item *models.QueueItem, resolution string, merged json.RawMessage) error {
	switch resolution {
	case models.ResolutionKeepServer:
		if err := r.store.ApplyServerData(rec.EntityType, rec.ServerData); err != nil {
			return err
		}
		return r.queue.Discard(item.ID)

	case models.ResolutionKeepLocal:
		if err := r.store.MarkEntityPending(rec.EntityType, rec.EntityID); err != nil {
			return err
		}
		return r.queue.Requeue(item.ID)

	case models.ResolutionMerge:
		if len(merged) == 0 {
			return apperrors.New(apperrors.ErrInvalid, "merge resolution requires a merged payload")
		}
		if err := r.store.ApplyPendingData(rec.EntityType, merged); err != nil {
			return err
		}
		if err := r.queue.UpdatePayload(item.ID, merged); err != nil {
			return err
		}
		return r.queue.Requeue(item.ID)

	default:
		return apperrors.New(apperrors.ErrInvalid, "unknown resolution "+resolution)
	}
}

// Unresolved returns conflicts awaiting operator input, oldest first.
func (r *Resolver) Unresolved() ([]*models.ConflictRecord, error) {
	return r.store.ListUnresolvedConflicts()
}
