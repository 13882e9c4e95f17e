package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"worksafe/internal/worksite/models"
	id "worksafe/pkg/domain"
)

type contractorRequest struct {
	Name         string  `json:"name"`
	SafetyRating float64 `json:"safety_rating"`
}

func (h *Handler) createContractor(w http.ResponseWriter, r *http.Request) {
	var req contractorRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	c, err := h.worksite.CreateContractor(r.Context(), req.Name, req.SafetyRating)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (h *Handler) getContractor(w http.ResponseWriter, r *http.Request) {
	cID, err := id.ParseContractorID(chi.URLParam(r, "contractorID"))
	if err != nil {
		writeError(w, err)
		return
	}
	c, err := h.worksite.GetContractor(r.Context(), cID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *Handler) listContractors(w http.ResponseWriter, r *http.Request) {
	var after id.ContractorID
	if raw := r.URL.Query().Get("after"); raw != "" {
		var err error
		if after, err = id.ParseContractorID(raw); err != nil {
			writeError(w, err)
			return
		}
	}
	cs, err := h.worksite.ListContractors(r.Context(), after, queryLimit(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cs)
}

type ratingRequest struct {
	SafetyRating float64 `json:"safety_rating"`
}

func (h *Handler) updateContractorRating(w http.ResponseWriter, r *http.Request) {
	cID, err := id.ParseContractorID(chi.URLParam(r, "contractorID"))
	if err != nil {
		writeError(w, err)
		return
	}
	var req ratingRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	c, err := h.worksite.UpdateContractorRating(r.Context(), cID, req.SafetyRating)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

type nameRequest struct {
	Name string `json:"name"`
}

func (h *Handler) createSupervisor(w http.ResponseWriter, r *http.Request) {
	var req nameRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	s, err := h.worksite.CreateSupervisor(r.Context(), req.Name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, s)
}

func (h *Handler) listSupervisors(w http.ResponseWriter, r *http.Request) {
	var after id.SupervisorID
	if raw := r.URL.Query().Get("after"); raw != "" {
		var err error
		if after, err = id.ParseSupervisorID(raw); err != nil {
			writeError(w, err)
			return
		}
	}
	ss, err := h.worksite.ListSupervisors(r.Context(), after, queryLimit(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ss)
}

func (h *Handler) createCrew(w http.ResponseWriter, r *http.Request) {
	var req nameRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	c, err := h.worksite.CreateCrew(r.Context(), req.Name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

type incidentRequest struct {
	ContractorID string    `json:"contractor_id"`
	SupervisorID string    `json:"supervisor_id,omitempty"`
	CrewID       string    `json:"crew_id,omitempty"`
	Severity     string    `json:"severity"`
	OccurredAt   time.Time `json:"occurred_at"`
}

func (h *Handler) recordIncident(w http.ResponseWriter, r *http.Request) {
	var req incidentRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	cID, err := id.ParseContractorID(req.ContractorID)
	if err != nil {
		writeError(w, err)
		return
	}
	var supervisorID id.SupervisorID
	if req.SupervisorID != "" {
		if supervisorID, err = id.ParseSupervisorID(req.SupervisorID); err != nil {
			writeError(w, err)
			return
		}
	}
	var crewID id.CrewID
	if req.CrewID != "" {
		if crewID, err = id.ParseCrewID(req.CrewID); err != nil {
			writeError(w, err)
			return
		}
	}
	inc, err := h.worksite.RecordIncident(r.Context(), cID, supervisorID, crewID,
		models.IncidentSeverity(req.Severity), req.OccurredAt)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, inc)
}

func (h *Handler) listIncidents(w http.ResponseWriter, r *http.Request) {
	cID, err := id.ParseContractorID(chi.URLParam(r, "contractorID"))
	if err != nil {
		writeError(w, err)
		return
	}
	incs, err := h.worksite.ListIncidents(r.Context(), cID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, incs)
}
