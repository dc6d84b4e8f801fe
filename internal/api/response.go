package api

import (
	"encoding/json"
	"net/http"
	"time"

	"taskpilot/pkg/errors"
	"taskpilot/pkg/logger"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Get().Warnw("Failed to encode response", "error", err)
	}
}

// writeError maps domain errors onto HTTP status codes. Messages are
// passed through; callers keep internals out of error text.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError

	switch {
	case errors.Is(err, errors.ErrInvalidInput), errors.Is(err, errors.ErrInvalidOutcome):
		status = http.StatusBadRequest
	case errors.Is(err, errors.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, errors.ErrDuplicateName), errors.Is(err, errors.ErrAlreadyExists):
		status = http.StatusConflict
	case errors.Is(err, errors.ErrInsufficientData):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, errors.ErrRateLimited):
		status = http.StatusTooManyRequests
	}

	if status == http.StatusInternalServerError {
		logger.Get().Errorf("request failed: %v", err)
		writeJSON(w, status, errorResponse{Error: "internal error"})
		return
	}

	writeJSON(w, status, errorResponse{Error: err.Error()})
}

// writeJSONLines encodes each item on its own line.
func writeJSONLines[T any](w http.ResponseWriter, items []T) {
	enc := json.NewEncoder(w)
	for _, item := range items {
		if err := enc.Encode(item); err != nil {
			logger.Get().Warnw("Failed to encode export line", "error", err)
			return
		}
	}
}

func decodeBody(r *http.Request, dst interface{}) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return errors.Wrapf(errors.ErrInvalidInput, "invalid request body: %v", err)
	}
	return nil
}

// parseTimeParam parses an optional RFC3339 query parameter.
func parseTimeParam(r *http.Request, name string) (*time.Time, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrInvalidInput, "%s must be RFC3339", name)
	}
	return &t, nil
}
