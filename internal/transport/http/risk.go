package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	dErrors "worksafe/pkg/domainerr"
	"worksafe/pkg/requestcontext"
)

// explainMetric answers "why is this number what it is": the stored row for
// a metric at an instant, optionally with its full dependency tree.
func (h *Handler) explainMetric(w http.ResponseWriter, r *http.Request) {
	metric := chi.URLParam(r, "metric")
	entityID, err := uuid.Parse(chi.URLParam(r, "entityID"))
	if err != nil {
		writeError(w, dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid entity id"))
		return
	}

	asOf := requestcontext.Now(r.Context())
	if raw := r.URL.Query().Get("as_of"); raw != "" {
		if asOf, err = time.Parse(time.RFC3339, raw); err != nil {
			writeError(w, dErrors.Wrap(err, dErrors.CodeInvalidInput, "as_of must be RFC 3339"))
			return
		}
	}
	verbose := r.URL.Query().Get("verbose") == "true"

	out, err := h.explain.Explain(r.Context(), metric, entityID, asOf, verbose)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}
