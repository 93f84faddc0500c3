// Package handler provides the collector's HTTP handlers.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/penshort/beacon/internal/collector"
)

// Handler serves the router fallbacks.
type Handler struct{}

// New creates a new Handler instance.
func New() *Handler {
	return &Handler{}
}

// NotFound handles 404 responses.
func (h *Handler) NotFound(w http.ResponseWriter, r *http.Request) {
	writeResult(w, http.StatusNotFound, "resource not found")
}

// MethodNotAllowed handles 405 responses.
func (h *Handler) MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeResult(w, http.StatusMethodNotAllowed, "method not allowed")
}

// resultResponse is the envelope SDKs read acknowledgements from.
type resultResponse struct {
	Result string `json:"result"`
}

func writeResult(w http.ResponseWriter, status int, result string) {
	writeJSON(w, status, resultResponse{Result: result})
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// parseParams merges the query string and a form body. A body over the
// configured limit answers 413.
func parseParams(w http.ResponseWriter, r *http.Request) bool {
	if err := r.ParseForm(); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeResult(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		writeResult(w, http.StatusBadRequest, "malformed request")
		return false
	}
	return true
}

// verifyStatus maps a verification error to a status code and result.
func verifyStatus(err error) (int, string) {
	switch {
	case errors.Is(err, collector.ErrMissingAppKey):
		return http.StatusBadRequest, `missing parameter "app_key"`
	case errors.Is(err, collector.ErrMissingDeviceID):
		return http.StatusBadRequest, `missing parameter "device_id"`
	case errors.Is(err, collector.ErrChecksumMismatch):
		return http.StatusBadRequest, "request does not match checksum"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}
