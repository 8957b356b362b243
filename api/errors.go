package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/conducthq/conduct"
)

// ErrorResponse is the wire form of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErrorMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

// writeError maps engine sentinel errors to HTTP status codes.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, conduct.ErrJobNotFound):
		writeErrorMessage(w, http.StatusNotFound, "job not found")
	case errors.Is(err, conduct.ErrValidation),
		errors.Is(err, conduct.ErrUnknownCommand):
		writeErrorMessage(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, conduct.ErrQuotaExceeded),
		errors.Is(err, conduct.ErrRateLimited):
		writeErrorMessage(w, http.StatusTooManyRequests, err.Error())
	case errors.Is(err, conduct.ErrConflict):
		writeErrorMessage(w, http.StatusConflict, err.Error())
	case errors.Is(err, conduct.ErrNotStarted):
		writeErrorMessage(w, http.StatusServiceUnavailable, err.Error())
	default:
		writeErrorMessage(w, http.StatusInternalServerError, "internal error")
	}
}
