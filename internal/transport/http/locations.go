package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"worksafe/internal/worksite/models"
	worksite "worksafe/internal/worksite/service"
	id "worksafe/pkg/domain"
)

type locationRequest struct {
	Name      string  `json:"name"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

func (h *Handler) createLocation(w http.ResponseWriter, r *http.Request) {
	wpID, err := id.ParseWorkPackageID(chi.URLParam(r, "workPackageID"))
	if err != nil {
		writeError(w, err)
		return
	}
	var req locationRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	loc, err := h.worksite.CreateLocation(r.Context(), wpID, req.Name, req.Latitude, req.Longitude)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, loc)
}

func (h *Handler) getLocation(w http.ResponseWriter, r *http.Request) {
	locID, err := id.ParseLocationID(chi.URLParam(r, "locationID"))
	if err != nil {
		writeError(w, err)
		return
	}
	loc, err := h.worksite.GetLocation(r.Context(), locID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, loc)
}

func (h *Handler) listLocations(w http.ResponseWriter, r *http.Request) {
	wpID, err := id.ParseWorkPackageID(chi.URLParam(r, "workPackageID"))
	if err != nil {
		writeError(w, err)
		return
	}
	locs, err := h.worksite.ListLocations(r.Context(), wpID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, locs)
}

type locationUpdateRequest struct {
	Name      *string  `json:"name,omitempty"`
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
}

func (h *Handler) updateLocation(w http.ResponseWriter, r *http.Request) {
	locID, err := id.ParseLocationID(chi.URLParam(r, "locationID"))
	if err != nil {
		writeError(w, err)
		return
	}
	var req locationUpdateRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	loc, err := h.worksite.UpdateLocation(r.Context(), locID, worksite.UpdateLocationInput{
		Name:      req.Name,
		Latitude:  req.Latitude,
		Longitude: req.Longitude,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, loc)
}

func (h *Handler) archiveLocation(w http.ResponseWriter, r *http.Request) {
	locID, err := id.ParseLocationID(chi.URLParam(r, "locationID"))
	if err != nil {
		writeError(w, err)
		return
	}
	loc, err := h.worksite.ArchiveLocation(r.Context(), locID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, loc)
}

type activityRequest struct {
	Name          string  `json:"name"`
	StartDate     id.Date `json:"start_date"`
	EndDate       id.Date `json:"end_date"`
	CrewID        string  `json:"crew_id,omitempty"`
	LibraryTypeID string  `json:"library_activity_type_id,omitempty"`
}

func (h *Handler) createActivity(w http.ResponseWriter, r *http.Request) {
	locID, err := id.ParseLocationID(chi.URLParam(r, "locationID"))
	if err != nil {
		writeError(w, err)
		return
	}
	var req activityRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	in := worksite.CreateActivityInput{
		LocationID: locID,
		Name:       req.Name,
		StartDate:  req.StartDate,
		EndDate:    req.EndDate,
	}
	if req.CrewID != "" {
		if in.CrewID, err = id.ParseCrewID(req.CrewID); err != nil {
			writeError(w, err)
			return
		}
	}
	if req.LibraryTypeID != "" {
		if in.LibraryTypeID, err = id.ParseLibraryRowID(req.LibraryTypeID); err != nil {
			writeError(w, err)
			return
		}
	}
	act, err := h.worksite.CreateActivity(r.Context(), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, act)
}

func (h *Handler) listActivities(w http.ResponseWriter, r *http.Request) {
	locID, err := id.ParseLocationID(chi.URLParam(r, "locationID"))
	if err != nil {
		writeError(w, err)
		return
	}
	acts, err := h.worksite.ListActivities(r.Context(), locID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, acts)
}

type activityUpdateRequest struct {
	Name      *string  `json:"name,omitempty"`
	Status    *string  `json:"status,omitempty"`
	StartDate *id.Date `json:"start_date,omitempty"`
	EndDate   *id.Date `json:"end_date,omitempty"`
	CrewID    *string  `json:"crew_id,omitempty"`
}

func (h *Handler) updateActivity(w http.ResponseWriter, r *http.Request) {
	actID, err := id.ParseActivityID(chi.URLParam(r, "activityID"))
	if err != nil {
		writeError(w, err)
		return
	}
	var req activityUpdateRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	in := worksite.UpdateActivityInput{
		Name:      req.Name,
		StartDate: req.StartDate,
		EndDate:   req.EndDate,
	}
	if req.Status != nil {
		status, err := models.ParseActivityStatus(*req.Status)
		if err != nil {
			writeError(w, err)
			return
		}
		in.Status = &status
	}
	if req.CrewID != nil {
		crewID, err := id.ParseCrewID(*req.CrewID)
		if err != nil {
			writeError(w, err)
			return
		}
		in.CrewID = &crewID
	}
	act, err := h.worksite.UpdateActivity(r.Context(), actID, in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, act)
}

func (h *Handler) archiveActivity(w http.ResponseWriter, r *http.Request) {
	actID, err := id.ParseActivityID(chi.URLParam(r, "activityID"))
	if err != nil {
		writeError(w, err)
		return
	}
	act, err := h.worksite.ArchiveActivity(r.Context(), actID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, act)
}
