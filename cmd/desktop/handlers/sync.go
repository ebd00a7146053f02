// Package handlers provides the REST surface of the local desktop server.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/openbursar/feesync/internal/connectivity"
	apperrors "github.com/openbursar/feesync/internal/errors"
	syncengine "github.com/openbursar/feesync/internal/sync"
	"github.com/openbursar/feesync/internal/sync/outbox"
	"github.com/openbursar/feesync/internal/sync/scheduler"
)

// SyncHandler exposes sync status, manual triggers and conflict resolution.
type SyncHandler struct {
	engine    *syncengine.Engine
	scheduler *scheduler.Scheduler
	queue     *outbox.Manager
	monitor   *connectivity.Monitor
}

// NewSyncHandler creates a SyncHandler.
func NewSyncHandler(engine *syncengine.Engine, sched *scheduler.Scheduler,
	queue *outbox.Manager, monitor *connectivity.Monitor) *SyncHandler {
	return &SyncHandler{engine: engine, scheduler: sched, queue: queue, monitor: monitor}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]interface{}{
		"error": err.Error(),
		"code":  string(apperrors.CodeOf(err)),
	})
}

// Status handles GET /sync/status. Returns the engine cursor plus the
// connectivity state for the sync health panel.
func (h *SyncHandler) Status(w http.ResponseWriter, r *http.Request) {
	cursor, err := h.engine.Status()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	stats, err := h.queue.Stats()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"cursor": cursor,
		"queue":  stats,
		"online": h.monitor.IsOnline(),
	})
}

// SyncNow handles POST /sync/now. Runs a pass immediately; a pass already
// in flight is reported as 409.
func (h *SyncHandler) SyncNow(w http.ResponseWriter, r *http.Request) {
	res, err := h.engine.Sync(r.Context())
	if err != nil {
		if apperrors.Is(err, apperrors.ErrSyncInProgress) {
			writeError(w, http.StatusConflict, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Queue handles GET /sync/queue. Optional ?status= filters by queue state.
func (h *SyncHandler) Queue(w http.ResponseWriter, r *http.Request) {
	items, err := h.queue.List(r.URL.Query().Get("status"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"items": items})
}

// Retry handles POST /sync/retry. Resets exhausted failed items and wakes
// the scheduler.
func (h *SyncHandler) Retry(w http.ResponseWriter, r *http.Request) {
	n, err := h.queue.RetryAllFailed()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	h.scheduler.Wake()
	writeJSON(w, http.StatusOK, map[string]interface{}{"requeued": n})
}

// Conflicts handles GET /sync/conflicts.
func (h *SyncHandler) Conflicts(w http.ResponseWriter, r *http.Request) {
	records, err := h.engine.Resolver().Unresolved()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"conflicts": records})
}

// Resolve handles POST /sync/conflicts/{id}/resolve with a body of
// {"resolution": "...", "merged": {...}}.
func (h *SyncHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Resolution string          `json:"resolution"`
		Merged     json.RawMessage `json:"merged,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, apperrors.Wrap(apperrors.ErrInvalid, "invalid request body", err))
		return
	}

	err := h.engine.Resolver().Resolve(r.PathValue("id"), req.Resolution, req.Merged)
	if err != nil {
		switch apperrors.CodeOf(err) {
		case apperrors.ErrNotFound:
			writeError(w, http.StatusNotFound, err)
		case apperrors.ErrInvalid:
			writeError(w, http.StatusBadRequest, err)
		default:
			writeError(w, http.StatusInternalServerError, err)
		}
		return
	}
	h.scheduler.Wake()
	writeJSON(w, http.StatusOK, map[string]interface{}{"resolved": true})
}

// Connectivity handles POST /sync/connectivity with {"online": bool}. The
// shell forwards OS network change notifications here.
func (h *SyncHandler) Connectivity(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Online bool `json:"online"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, apperrors.Wrap(apperrors.ErrInvalid, "invalid request body", err))
		return
	}
	h.monitor.SetNetworkState(req.Online)
	writeJSON(w, http.StatusOK, map[string]interface{}{"online": h.monitor.IsOnline()})
}
