package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"exam-service/internal/domain"
	"exam-service/internal/logger"
)

type errorBody struct {
	Message string   `json:"message"`
	Field   string   `json:"field,omitempty"`
	Missing []string `json:"missing,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps domain errors to status codes. Unknown errors are logged
// and reported as 500 without their text.
func writeError(w http.ResponseWriter, log *logger.Logger, err error) {
	var (
		verr       *domain.ValidationError
		incomplete *domain.IncompleteSubmissionError
		upErr      *domain.UpstreamError
	)
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, errorBody{Message: err.Error(), Field: verr.Field})
	case errors.As(err, &incomplete):
		writeJSON(w, http.StatusBadRequest, errorBody{Message: err.Error(), Missing: incomplete.Missing})
	case errors.Is(err, domain.ErrIncomplete):
		writeJSON(w, http.StatusBadRequest, errorBody{Message: err.Error()})
	case errors.Is(err, domain.ErrExamNotFound), errors.Is(err, domain.ErrResultNotFound):
		writeJSON(w, http.StatusNotFound, errorBody{Message: err.Error()})
	case errors.Is(err, domain.ErrInvalidCredentials), errors.Is(err, domain.ErrUnauthorized):
		writeJSON(w, http.StatusUnauthorized, errorBody{Message: err.Error()})
	case errors.Is(err, domain.ErrForbidden):
		writeJSON(w, http.StatusForbidden, errorBody{Message: err.Error()})
	case errors.Is(err, domain.ErrDuplicateSubmission), errors.Is(err, domain.ErrExamInactive):
		writeJSON(w, http.StatusConflict, errorBody{Message: err.Error()})
	case errors.Is(err, domain.ErrUnsupported):
		writeJSON(w, http.StatusNotImplemented, errorBody{Message: err.Error()})
	case errors.As(err, &upErr), errors.Is(err, domain.ErrUpstream):
		log.Warn("upstream failure", "error", err)
		writeJSON(w, http.StatusBadGateway, errorBody{Message: err.Error()})
	default:
		log.Error("request failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Message: "internal error"})
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	if err := dec.Decode(v); err != nil {
		return &domain.ValidationError{Field: "body", Reason: "invalid json: " + err.Error()}
	}
	return nil
}
