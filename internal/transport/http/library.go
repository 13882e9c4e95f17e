package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"worksafe/internal/library"
	id "worksafe/pkg/domain"
	"worksafe/pkg/requestcontext"
)

func (h *Handler) listLibrary(w http.ResponseWriter, r *http.Request) {
	kind, err := library.ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		writeError(w, err)
		return
	}
	rows, err := h.library.ListForTenant(r.Context(), requestcontext.TenantID(r.Context()), kind)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

type libraryRowRequest struct {
	Kind       string         `json:"kind"`
	Name       string         `json:"name"`
	Category   string         `json:"category,omitempty"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

func (h *Handler) createLibraryRow(w http.ResponseWriter, r *http.Request) {
	var req libraryRowRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	kind, err := library.ParseKind(req.Kind)
	if err != nil {
		writeError(w, err)
		return
	}
	row, err := h.library.CreateRow(r.Context(), kind, req.Name, req.Category, req.Attributes)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, row)
}

func (h *Handler) archiveLibraryRow(w http.ResponseWriter, r *http.Request) {
	rowID, err := id.ParseLibraryRowID(chi.URLParam(r, "rowID"))
	if err != nil {
		writeError(w, err)
		return
	}
	row, err := h.library.ArchiveRow(r.Context(), rowID, time.Now().UTC())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, row)
}

type librarySettingRequest struct {
	Enabled bool `json:"enabled"`
}

func (h *Handler) setLibrarySetting(w http.ResponseWriter, r *http.Request) {
	rowID, err := id.ParseLibraryRowID(chi.URLParam(r, "rowID"))
	if err != nil {
		writeError(w, err)
		return
	}
	var req librarySettingRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	tenantID := requestcontext.TenantID(r.Context())
	if err := h.library.EnableForTenant(r.Context(), tenantID, rowID, req.Enabled); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
