package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"worksafe/internal/audit"
	"worksafe/internal/entity"
	"worksafe/internal/worksite/models"
	worksite "worksafe/internal/worksite/service"
	id "worksafe/pkg/domain"
	dErrors "worksafe/pkg/domainerr"
)

type workPackageRequest struct {
	Name         string   `json:"name"`
	StartDate    id.Date  `json:"start_date"`
	EndDate      id.Date  `json:"end_date"`
	Region       string   `json:"region,omitempty"`
	Division     string   `json:"division,omitempty"`
	ContractorID string   `json:"contractor_id,omitempty"`
	ManagerID    string   `json:"manager_id,omitempty"`
	SupervisorID string   `json:"supervisor_id,omitempty"`
	WorkTypes    []string `json:"work_types,omitempty"`
}

func (h *Handler) createWorkPackage(w http.ResponseWriter, r *http.Request) {
	var req workPackageRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	in := worksite.CreateWorkPackageInput{
		Name:      req.Name,
		StartDate: req.StartDate,
		EndDate:   req.EndDate,
	}
	var err error
	if req.Region != "" {
		if in.Region, err = id.ParseLibraryRowID(req.Region); err != nil {
			writeError(w, err)
			return
		}
	}
	if req.Division != "" {
		if in.Division, err = id.ParseLibraryRowID(req.Division); err != nil {
			writeError(w, err)
			return
		}
	}
	if req.ContractorID != "" {
		if in.ContractorID, err = id.ParseContractorID(req.ContractorID); err != nil {
			writeError(w, err)
			return
		}
	}
	if req.ManagerID != "" {
		if in.ManagerID, err = id.ParseUserID(req.ManagerID); err != nil {
			writeError(w, err)
			return
		}
	}
	if req.SupervisorID != "" {
		if in.SupervisorID, err = id.ParseSupervisorID(req.SupervisorID); err != nil {
			writeError(w, err)
			return
		}
	}
	for _, raw := range req.WorkTypes {
		wt, err := id.ParseLibraryRowID(raw)
		if err != nil {
			writeError(w, err)
			return
		}
		in.WorkTypes = append(in.WorkTypes, wt)
	}
	wp, err := h.worksite.CreateWorkPackage(r.Context(), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, wp)
}

func (h *Handler) getWorkPackage(w http.ResponseWriter, r *http.Request) {
	wpID, err := id.ParseWorkPackageID(chi.URLParam(r, "workPackageID"))
	if err != nil {
		writeError(w, err)
		return
	}
	wp, err := h.worksite.GetWorkPackage(r.Context(), wpID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, wp)
}

func (h *Handler) listWorkPackages(w http.ResponseWriter, r *http.Request) {
	var after id.WorkPackageID
	if raw := r.URL.Query().Get("after"); raw != "" {
		var err error
		if after, err = id.ParseWorkPackageID(raw); err != nil {
			writeError(w, err)
			return
		}
	}
	wps, err := h.worksite.ListWorkPackages(r.Context(), after, queryLimit(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, wps)
}

type workPackageUpdateRequest struct {
	Name         *string  `json:"name,omitempty"`
	Status       *string  `json:"status,omitempty"`
	StartDate    *id.Date `json:"start_date,omitempty"`
	EndDate      *id.Date `json:"end_date,omitempty"`
	Region       *string  `json:"region,omitempty"`
	Division     *string  `json:"division,omitempty"`
	ContractorID *string  `json:"contractor_id,omitempty"`
	ManagerID    *string  `json:"manager_id,omitempty"`
	SupervisorID *string  `json:"supervisor_id,omitempty"`
	WorkTypes    []string `json:"work_types,omitempty"`
}

func (r workPackageUpdateRequest) toInput() (worksite.UpdateWorkPackageInput, error) {
	in := worksite.UpdateWorkPackageInput{
		Name:      r.Name,
		StartDate: r.StartDate,
		EndDate:   r.EndDate,
	}
	if r.Status != nil {
		status, err := models.ParseWorkPackageStatus(*r.Status)
		if err != nil {
			return in, err
		}
		in.Status = &status
	}
	if r.Region != nil {
		rID, err := id.ParseLibraryRowID(*r.Region)
		if err != nil {
			return in, err
		}
		in.Region = &rID
	}
	if r.Division != nil {
		dID, err := id.ParseLibraryRowID(*r.Division)
		if err != nil {
			return in, err
		}
		in.Division = &dID
	}
	if r.ContractorID != nil {
		cID, err := id.ParseContractorID(*r.ContractorID)
		if err != nil {
			return in, err
		}
		in.ContractorID = &cID
	}
	if r.ManagerID != nil {
		mID, err := id.ParseUserID(*r.ManagerID)
		if err != nil {
			return in, err
		}
		in.ManagerID = &mID
	}
	if r.SupervisorID != nil {
		sID, err := id.ParseSupervisorID(*r.SupervisorID)
		if err != nil {
			return in, err
		}
		in.SupervisorID = &sID
	}
	for _, raw := range r.WorkTypes {
		wt, err := id.ParseLibraryRowID(raw)
		if err != nil {
			return in, err
		}
		in.WorkTypes = append(in.WorkTypes, wt)
	}
	return in, nil
}

func (h *Handler) updateWorkPackage(w http.ResponseWriter, r *http.Request) {
	wpID, err := id.ParseWorkPackageID(chi.URLParam(r, "workPackageID"))
	if err != nil {
		writeError(w, err)
		return
	}
	var req workPackageUpdateRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	in, err := req.toInput()
	if err != nil {
		writeError(w, err)
		return
	}
	wp, err := h.worksite.UpdateWorkPackage(r.Context(), wpID, in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, wp)
}

type locationEditRequest struct {
	ID        *string `json:"id,omitempty"`
	Name      string  `json:"name"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type workPackageEditRequest struct {
	workPackageUpdateRequest
	Locations []locationEditRequest `json:"locations"`
}

// editWorkPackage is the nested save: attribute changes plus the location
// reconciliation, one audit event for the lot.
func (h *Handler) editWorkPackage(w http.ResponseWriter, r *http.Request) {
	wpID, err := id.ParseWorkPackageID(chi.URLParam(r, "workPackageID"))
	if err != nil {
		writeError(w, err)
		return
	}
	var req workPackageEditRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	in, err := req.toInput()
	if err != nil {
		writeError(w, err)
		return
	}
	edits := make([]worksite.LocationEdit, 0, len(req.Locations))
	for _, l := range req.Locations {
		edit := worksite.LocationEdit{
			Name:      l.Name,
			Latitude:  l.Latitude,
			Longitude: l.Longitude,
		}
		if l.ID != nil {
			locID, err := id.ParseLocationID(*l.ID)
			if err != nil {
				writeError(w, err)
				return
			}
			edit.ID = &locID
		}
		edits = append(edits, edit)
	}
	wp, err := h.worksite.EditWorkPackageWithLocations(r.Context(), wpID, in, edits)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, wp)
}

func (h *Handler) archiveWorkPackage(w http.ResponseWriter, r *http.Request) {
	wpID, err := id.ParseWorkPackageID(chi.URLParam(r, "workPackageID"))
	if err != nil {
		writeError(w, err)
		return
	}
	wp, err := h.worksite.ArchiveWorkPackage(r.Context(), wpID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, wp)
}

func (h *Handler) projectAuditTrail(w http.ResponseWriter, r *http.Request) {
	wpID, err := id.ParseWorkPackageID(chi.URLParam(r, "workPackageID"))
	if err != nil {
		writeError(w, err)
		return
	}
	events, err := h.worksite.ProjectAuditTrail(r.Context(), wpID, auditQuery(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

func (h *Handler) objectAuditTrail(w http.ResponseWriter, r *http.Request) {
	objType := entity.Type(chi.URLParam(r, "objectType"))
	objID, err := uuid.Parse(chi.URLParam(r, "objectID"))
	if err != nil {
		writeError(w, dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid object id"))
		return
	}
	events, err := h.worksite.ObjectAuditTrail(r.Context(), objType, objID, auditQuery(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

// auditQuery reads the shared trail filters. Evaluated noise stays hidden
// unless explicitly requested.
func auditQuery(r *http.Request) audit.ListQuery {
	q := audit.ListQuery{Limit: queryLimit(r)}
	if r.URL.Query().Get("include_evaluated") == "true" {
		q.IncludeEvaluated = true
	}
	if raw := r.URL.Query().Get("since"); raw != "" {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			q.Since = t
		}
	}
	return q
}

func queryLimit(r *http.Request) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0
	}
	return n
}
