package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/penshort/beacon/internal/collector"
	"github.com/penshort/beacon/internal/metrics"
)

// IngestHandler accepts requests delivered by SDKs.
type IngestHandler struct {
	repo    collector.Repository
	salt    string
	metrics metrics.Recorder
	logger  *slog.Logger
	now     func() time.Time
}

// NewIngestHandler creates an IngestHandler. An empty salt accepts
// unsigned requests.
func NewIngestHandler(repo collector.Repository, salt string, recorder metrics.Recorder, logger *slog.Logger) *IngestHandler {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &IngestHandler{
		repo:    repo,
		salt:    salt,
		metrics: recorder,
		logger:  logger.With("component", "handler.ingest"),
		now:     time.Now,
	}
}

// Ingest stores one SDK request and acknowledges it.
//
// GET|POST /i
func (h *IngestHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	if !parseParams(w, r) {
		h.metrics.IncIngest("rejected")
		return
	}

	record, err := collector.NewRecord(r.Form, h.salt, h.now())
	if err != nil {
		h.metrics.IncIngest("rejected")
		status, result := verifyStatus(err)
		h.logger.Debug("request rejected", "error", err)
		writeResult(w, status, result)
		return
	}

	if err := h.repo.Save(r.Context(), record); err != nil {
		h.metrics.IncIngest("error")
		h.logger.Error("failed to store request", "error", err, "kind", string(record.Kind))
		writeResult(w, http.StatusInternalServerError, "internal error")
		return
	}

	h.metrics.IncIngest("accepted")
	h.logger.Debug("request stored",
		"id", record.ID,
		"kind", string(record.Kind),
		"device_id", record.DeviceID,
	)
	writeResult(w, http.StatusOK, "Success")
}
