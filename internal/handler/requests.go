package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/penshort/beacon/internal/collector"
)

// RequestsHandler lists stored requests for inspection.
type RequestsHandler struct {
	repo   collector.Repository
	logger *slog.Logger
}

// NewRequestsHandler creates a RequestsHandler.
func NewRequestsHandler(repo collector.Repository, logger *slog.Logger) *RequestsHandler {
	return &RequestsHandler{repo: repo, logger: logger.With("component", "handler.requests")}
}

// RequestsResponse is the list payload.
type RequestsResponse struct {
	Requests []collector.Record `json:"requests"`
}

// List returns stored requests filtered by app_key, device_id and kind.
//
// GET /requests
func (h *RequestsHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := collector.Filter{
		AppKey:   q.Get("app_key"),
		DeviceID: q.Get("device_id"),
		Kind:     q.Get("kind"),
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 || limit > 1000 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be between 1 and 1000"})
			return
		}
		f.Limit = limit
	}

	records, err := h.repo.List(r.Context(), f)
	if err != nil {
		h.logger.Error("failed to list requests", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}
	if records == nil {
		records = []collector.Record{}
	}
	writeJSON(w, http.StatusOK, RequestsResponse{Requests: records})
}
