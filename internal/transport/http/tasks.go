package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	worksite "worksafe/internal/worksite/service"
	id "worksafe/pkg/domain"
)

type hazardRequest struct {
	LibraryID  string           `json:"library_hazard_id"`
	Applicable bool             `json:"is_applicable"`
	Controls   []controlRequest `json:"controls,omitempty"`
}

type controlRequest struct {
	LibraryID  string `json:"library_control_id"`
	Applicable bool   `json:"is_applicable"`
}

func hazardInputs(reqs []hazardRequest) ([]worksite.HazardInput, error) {
	out := make([]worksite.HazardInput, 0, len(reqs))
	for _, hr := range reqs {
		libID, err := id.ParseLibraryRowID(hr.LibraryID)
		if err != nil {
			return nil, err
		}
		in := worksite.HazardInput{LibraryID: libID, Applicable: hr.Applicable}
		for _, cr := range hr.Controls {
			cLibID, err := id.ParseLibraryRowID(cr.LibraryID)
			if err != nil {
				return nil, err
			}
			in.Controls = append(in.Controls, worksite.ControlInput{
				LibraryID:  cLibID,
				Applicable: cr.Applicable,
			})
		}
		out = append(out, in)
	}
	return out, nil
}

type taskRequest struct {
	LibraryTaskID string          `json:"library_task_id"`
	Hazards       []hazardRequest `json:"hazards,omitempty"`
}

func (h *Handler) createTask(w http.ResponseWriter, r *http.Request) {
	actID, err := id.ParseActivityID(chi.URLParam(r, "activityID"))
	if err != nil {
		writeError(w, err)
		return
	}
	var req taskRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	libID, err := id.ParseLibraryRowID(req.LibraryTaskID)
	if err != nil {
		writeError(w, err)
		return
	}
	hazards, err := hazardInputs(req.Hazards)
	if err != nil {
		writeError(w, err)
		return
	}
	task, err := h.worksite.CreateTask(r.Context(), actID, libID, hazards)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, task)
}

func (h *Handler) getTask(w http.ResponseWriter, r *http.Request) {
	taskID, err := id.ParseTaskID(chi.URLParam(r, "taskID"))
	if err != nil {
		writeError(w, err)
		return
	}
	task, err := h.worksite.GetTask(r.Context(), taskID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (h *Handler) listTasks(w http.ResponseWriter, r *http.Request) {
	locID, err := id.ParseLocationID(chi.URLParam(r, "locationID"))
	if err != nil {
		writeError(w, err)
		return
	}
	tasks, err := h.worksite.ListTasks(r.Context(), locID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tasks)
}

type taskHazardsResponse struct {
	Hazards []hazardWithControls `json:"hazards"`
}

type hazardWithControls struct {
	Hazard   any `json:"hazard"`
	Controls any `json:"controls"`
}

func (h *Handler) listTaskHazards(w http.ResponseWriter, r *http.Request) {
	taskID, err := id.ParseTaskID(chi.URLParam(r, "taskID"))
	if err != nil {
		writeError(w, err)
		return
	}
	hazards, controls, err := h.worksite.ListTaskHazards(r.Context(), taskID)
	if err != nil {
		writeError(w, err)
		return
	}
	out := taskHazardsResponse{Hazards: make([]hazardWithControls, 0, len(hazards))}
	for _, hz := range hazards {
		out.Hazards = append(out.Hazards, hazardWithControls{
			Hazard:   hz,
			Controls: controls[hz.ID],
		})
	}
	writeJSON(w, http.StatusOK, out)
}

type applicabilityRequest struct {
	Applicable bool `json:"is_applicable"`
}

func (h *Handler) setHazardApplicability(w http.ResponseWriter, r *http.Request) {
	hazardID, err := id.ParseHazardID(chi.URLParam(r, "hazardID"))
	if err != nil {
		writeError(w, err)
		return
	}
	var req applicabilityRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	hz, err := h.worksite.SetHazardApplicability(r.Context(), hazardID, req.Applicable)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, hz)
}

func (h *Handler) archiveTask(w http.ResponseWriter, r *http.Request) {
	taskID, err := id.ParseTaskID(chi.URLParam(r, "taskID"))
	if err != nil {
		writeError(w, err)
		return
	}
	task, err := h.worksite.ArchiveTask(r.Context(), taskID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (h *Handler) deleteTask(w http.ResponseWriter, r *http.Request) {
	taskID, err := id.ParseTaskID(chi.URLParam(r, "taskID"))
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.worksite.DeleteTask(r.Context(), taskID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type siteConditionRequest struct {
	LibraryID string          `json:"library_site_condition_id"`
	Hazards   []hazardRequest `json:"hazards,omitempty"`
}

func (h *Handler) createSiteCondition(w http.ResponseWriter, r *http.Request) {
	locID, err := id.ParseLocationID(chi.URLParam(r, "locationID"))
	if err != nil {
		writeError(w, err)
		return
	}
	var req siteConditionRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	libID, err := id.ParseLibraryRowID(req.LibraryID)
	if err != nil {
		writeError(w, err)
		return
	}
	hazards, err := hazardInputs(req.Hazards)
	if err != nil {
		writeError(w, err)
		return
	}
	sc, err := h.worksite.CreateSiteCondition(r.Context(), locID, libID, hazards)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sc)
}

func (h *Handler) listSiteConditions(w http.ResponseWriter, r *http.Request) {
	locID, err := id.ParseLocationID(chi.URLParam(r, "locationID"))
	if err != nil {
		writeError(w, err)
		return
	}
	scs, err := h.worksite.ListSiteConditions(r.Context(), locID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, scs)
}

type evaluatedSiteConditionRequest struct {
	LibraryID string  `json:"library_site_condition_id"`
	Score     float64 `json:"score"`
}

func (h *Handler) recordEvaluatedSiteCondition(w http.ResponseWriter, r *http.Request) {
	locID, err := id.ParseLocationID(chi.URLParam(r, "locationID"))
	if err != nil {
		writeError(w, err)
		return
	}
	var req evaluatedSiteConditionRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	libID, err := id.ParseLibraryRowID(req.LibraryID)
	if err != nil {
		writeError(w, err)
		return
	}
	sc, err := h.worksite.RecordEvaluatedSiteCondition(r.Context(), locID, libID, req.Score)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sc)
}

type scoreRequest struct {
	Score float64 `json:"score"`
}

func (h *Handler) updateEvaluatedScore(w http.ResponseWriter, r *http.Request) {
	scID, err := id.ParseSiteConditionID(chi.URLParam(r, "siteConditionID"))
	if err != nil {
		writeError(w, err)
		return
	}
	var req scoreRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	sc, err := h.worksite.UpdateEvaluatedScore(r.Context(), scID, req.Score)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sc)
}

func (h *Handler) archiveSiteCondition(w http.ResponseWriter, r *http.Request) {
	scID, err := id.ParseSiteConditionID(chi.URLParam(r, "siteConditionID"))
	if err != nil {
		writeError(w, err)
		return
	}
	sc, err := h.worksite.ArchiveSiteCondition(r.Context(), scID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sc)
}
