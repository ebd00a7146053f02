package handlers

import (
	"encoding/json"
	"net/http"
	"os"

	"github.com/openbursar/feesync/internal/db"
	apperrors "github.com/openbursar/feesync/internal/errors"
	"github.com/openbursar/feesync/internal/models"
)

// ExportHandler moves full data bundles in and out of the local store for
// migration between machines.
type ExportHandler struct {
	store *db.Store
}

// NewExportHandler creates an ExportHandler.
func NewExportHandler(store *db.Store) *ExportHandler {
	return &ExportHandler{store: store}
}

// Export handles POST /export with {"path": "..."}. Writes a checksummed
// bundle of all entity tables; the outbox is deliberately not included.
func (h *ExportHandler) Export(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Path string `json:"path"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Path == "" {
		writeError(w, http.StatusBadRequest, apperrors.New(apperrors.ErrInvalid, "path is required"))
		return
	}

	bundle, err := h.store.ExportBundle()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	data, err := json.MarshalIndent(bundle, "", "  ")
	if err != nil {
		writeError(w, http.StatusInternalServerError, apperrors.Wrap(apperrors.ErrExportFailed, "failed to encode bundle", err))
		return
	}
	if err := os.WriteFile(req.Path, data, 0o600); err != nil {
		writeError(w, http.StatusInternalServerError, apperrors.Wrap(apperrors.ErrExportFailed, "failed to write bundle", err))
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"path":     req.Path,
		"version":  bundle.Version,
		"checksum": bundle.Checksum,
		"tables":   len(bundle.Tables),
	})
}

// Import handles POST /import with {"path": "..."}. The bundle replaces
// all local entity data after its checksum verifies.
func (h *ExportHandler) Import(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Path string `json:"path"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Path == "" {
		writeError(w, http.StatusBadRequest, apperrors.New(apperrors.ErrInvalid, "path is required"))
		return
	}

	data, err := os.ReadFile(req.Path)
	if err != nil {
		writeError(w, http.StatusBadRequest, apperrors.Wrap(apperrors.ErrImportFailed, "failed to read bundle", err))
		return
	}

	var bundle models.Bundle
	if err := json.Unmarshal(data, &bundle); err != nil {
		writeError(w, http.StatusBadRequest, apperrors.Wrap(apperrors.ErrBundleCorrupted, "bundle is not valid JSON", err))
		return
	}

	if err := h.store.ImportBundle(&bundle); err != nil {
		switch apperrors.CodeOf(err) {
		case apperrors.ErrBundleVersion, apperrors.ErrBundleCorrupted:
			writeError(w, http.StatusBadRequest, err)
		default:
			writeError(w, http.StatusInternalServerError, err)
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"imported": true,
		"tables":   len(bundle.Tables),
	})
}
