package http

import (
	"encoding/json"
	"errors"
	"net/http"

	dErrors "worksafe/pkg/domainerr"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Meta    map[string]string `json:"meta,omitempty"`
}

// writeError maps coded domain errors onto statuses. Uncoded errors are
// internal by definition and never leak their message.
func writeError(w http.ResponseWriter, err error) {
	var de *dErrors.Error
	if !errors.As(err, &de) {
		writeJSON(w, http.StatusInternalServerError,
			errorBody{Code: string(dErrors.CodeInternal), Message: "internal error"})
		return
	}
	writeJSON(w, statusOf(de.Code), errorBody{
		Code:    string(de.Code),
		Message: de.Message,
		Meta:    de.Meta,
	})
}

func statusOf(code dErrors.Code) int {
	switch code {
	case dErrors.CodeNotFound:
		return http.StatusNotFound
	case dErrors.CodeValidation, dErrors.CodeInvalidInput:
		return http.StatusBadRequest
	case dErrors.CodeConflict, dErrors.CodeInvariantViolation, dErrors.CodeLeakedDiffs:
		return http.StatusConflict
	case dErrors.CodeUnauthorized, dErrors.CodeTenantMismatch:
		return http.StatusForbidden
	case dErrors.CodeDependencyMissing, dErrors.CodeNotAvailable:
		return http.StatusUnprocessableEntity
	case dErrors.CodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func decodeBody(r *http.Request, target any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(target); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInvalidInput, "malformed request body")
	}
	return nil
}
