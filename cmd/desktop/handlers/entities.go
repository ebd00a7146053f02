package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/openbursar/feesync/internal/db"
	apperrors "github.com/openbursar/feesync/internal/errors"
	"github.com/openbursar/feesync/internal/models"
	"github.com/openbursar/feesync/internal/sync/scheduler"
)

// EntityHandler exposes the local write path and dashboard reads. Every
// mutation lands in the store and the outbox atomically, then nudges the
// scheduler so the change goes out as soon as connectivity allows.
type EntityHandler struct {
	store       *db.Store
	scheduler   *scheduler.Scheduler
	maxAttempts int
}

// NewEntityHandler creates an EntityHandler.
func NewEntityHandler(store *db.Store, sched *scheduler.Scheduler, maxAttempts int) *EntityHandler {
	return &EntityHandler{store: store, scheduler: sched, maxAttempts: maxAttempts}
}

// Put handles POST /entities/{type}. The body is the full entity JSON; an
// existing id makes it an update.
func (h *EntityHandler) Put(w http.ResponseWriter, r *http.Request) {
	t := models.EntityType(r.PathValue("type"))
	if !models.IsValidEntityType(t) {
		writeError(w, http.StatusBadRequest, apperrors.New(apperrors.ErrInvalid, "unknown entity type"))
		return
	}

	payload, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		writeError(w, http.StatusBadRequest, apperrors.Wrap(apperrors.ErrInvalid, "failed to read body", err))
		return
	}

	op := models.OpUpdate
	if r.URL.Query().Get("op") == models.OpCreate {
		op = models.OpCreate
	}

	item, err := h.store.Put(t, op, json.RawMessage(payload), h.maxAttempts)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrInvalid) {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	h.scheduler.Wake()
	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"queued":    true,
		"queue_seq": item.Seq,
		"entity_id": item.EntityID,
	})
}

// Delete handles DELETE /entities/{type}/{id}.
func (h *EntityHandler) Delete(w http.ResponseWriter, r *http.Request) {
	t := models.EntityType(r.PathValue("type"))
	if !models.IsValidEntityType(t) {
		writeError(w, http.StatusBadRequest, apperrors.New(apperrors.ErrInvalid, "unknown entity type"))
		return
	}

	item, err := h.store.Delete(t, models.UUID(r.PathValue("id")), h.maxAttempts)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	h.scheduler.Wake()
	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"queued":    true,
		"queue_seq": item.Seq,
	})
}

// Dashboard handles GET /dashboard. All figures come from local reads, so
// the page renders whether or not the network is up.
func (h *EntityHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	totals, err := h.store.Dashboard(time.Now())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, totals)
}

// Arrears handles GET /dashboard/arrears.
func (h *EntityHandler) Arrears(w http.ResponseWriter, r *http.Request) {
	rows, err := h.store.ArrearsByClass()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"classes": rows})
}

// Students handles GET /students with optional ?class_id=, ?q=, ?limit=,
// ?offset= parameters. A search term switches to name/admission lookup.
func (h *EntityHandler) Students(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := intParam(q.Get("limit"), 50)
	if term := q.Get("q"); term != "" {
		students, err := h.store.SearchStudents(term, limit)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"students": students})
		return
	}

	students, err := h.store.ListStudents(q.Get("class_id"), limit, intParam(q.Get("offset"), 0))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"students": students})
}

// FeeStructures handles GET /fees with optional ?class_id= and ?term=.
func (h *EntityHandler) FeeStructures(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	fees, err := h.store.ListFeeStructures(q.Get("class_id"), q.Get("term"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"fee_structures": fees})
}

// FeeStructure handles GET /fees/{id}.
func (h *EntityHandler) FeeStructure(w http.ResponseWriter, r *http.Request) {
	fee, err := h.store.GetFeeStructure(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusNotFound, apperrors.Wrap(apperrors.ErrNotFound, "fee structure not found", err))
		return
	}
	writeJSON(w, http.StatusOK, fee)
}

// School handles GET /schools/{id}.
func (h *EntityHandler) School(w http.ResponseWriter, r *http.Request) {
	school, err := h.store.GetSchool(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusNotFound, apperrors.Wrap(apperrors.ErrNotFound, "school not found", err))
		return
	}
	writeJSON(w, http.StatusOK, school)
}

// User handles GET /users/{id}.
func (h *EntityHandler) User(w http.ResponseWriter, r *http.Request) {
	user, err := h.store.GetUser(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusNotFound, apperrors.Wrap(apperrors.ErrNotFound, "user not found", err))
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// AuditLogs handles GET /audit with ?entity_type=, ?entity_id= and ?limit=.
func (h *EntityHandler) AuditLogs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	logs, err := h.store.ListAuditLogs(q.Get("entity_type"), q.Get("entity_id"), intParam(q.Get("limit"), 100))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"audit_logs": logs})
}

// StudentPayments handles GET /students/{id}/payments.
func (h *EntityHandler) StudentPayments(w http.ResponseWriter, r *http.Request) {
	payments, err := h.store.ListPaymentsByStudent(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"payments": payments})
}

func intParam(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}
