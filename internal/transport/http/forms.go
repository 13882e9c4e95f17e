package http

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"worksafe/internal/forms/models"
	id "worksafe/pkg/domain"
)

func formType(r *http.Request) (models.FormType, error) {
	return models.ParseFormType(chi.URLParam(r, "formType"))
}

type formCreateRequest struct {
	LocationID string          `json:"location_id"`
	DateFor    id.Date         `json:"date_for"`
	Contents   json.RawMessage `json:"contents,omitempty"`
}

func (h *Handler) createForm(w http.ResponseWriter, r *http.Request) {
	ft, err := formType(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req formCreateRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	locID, err := id.ParseLocationID(req.LocationID)
	if err != nil {
		writeError(w, err)
		return
	}
	form, err := h.forms.Create(r.Context(), ft, locID, req.DateFor, req.Contents)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, form)
}

func (h *Handler) getForm(w http.ResponseWriter, r *http.Request) {
	ft, err := formType(r)
	if err != nil {
		writeError(w, err)
		return
	}
	formID, err := id.ParseFormID(chi.URLParam(r, "formID"))
	if err != nil {
		writeError(w, err)
		return
	}
	form, err := h.forms.Get(r.Context(), ft, formID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, form)
}

func (h *Handler) listFormsForLocation(w http.ResponseWriter, r *http.Request) {
	ft, err := formType(r)
	if err != nil {
		writeError(w, err)
		return
	}
	locID, err := id.ParseLocationID(chi.URLParam(r, "locationID"))
	if err != nil {
		writeError(w, err)
		return
	}
	forms, err := h.forms.ListForLocation(r.Context(), ft, locID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, forms)
}

type formContentsRequest struct {
	Contents json.RawMessage `json:"contents"`
}

func (h *Handler) updateFormContents(w http.ResponseWriter, r *http.Request) {
	ft, err := formType(r)
	if err != nil {
		writeError(w, err)
		return
	}
	formID, err := id.ParseFormID(chi.URLParam(r, "formID"))
	if err != nil {
		writeError(w, err)
		return
	}
	var req formContentsRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	form, err := h.forms.UpdateContents(r.Context(), ft, formID, req.Contents)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, form)
}

func (h *Handler) completeForm(w http.ResponseWriter, r *http.Request) {
	h.formTransition(w, r, h.forms.Complete)
}

func (h *Handler) reopenForm(w http.ResponseWriter, r *http.Request) {
	h.formTransition(w, r, h.forms.Reopen)
}

func (h *Handler) archiveForm(w http.ResponseWriter, r *http.Request) {
	h.formTransition(w, r, h.forms.Archive)
}

func (h *Handler) formTransition(w http.ResponseWriter, r *http.Request,
	fn func(ctx context.Context, ft models.FormType, formID id.FormID) (*models.Form, error)) {
	ft, err := formType(r)
	if err != nil {
		writeError(w, err)
		return
	}
	formID, err := id.ParseFormID(chi.URLParam(r, "formID"))
	if err != nil {
		writeError(w, err)
		return
	}
	form, err := fn(r.Context(), ft, formID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, form)
}
