package handler

import (
	"fmt"
	"net/http"
	"sort"

	"github.com/penshort/beacon/internal/metrics"
)

// MetricsHandler exposes in-memory metrics.
type MetricsHandler struct {
	snapshotter metrics.Snapshotter
}

// NewMetricsHandler creates a new MetricsHandler.
func NewMetricsHandler(snapshotter metrics.Snapshotter) *MetricsHandler {
	return &MetricsHandler{snapshotter: snapshotter}
}

// Metrics returns metrics in Prometheus exposition format.
//
// GET /metrics
func (h *MetricsHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	if h.snapshotter == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}

	snap := h.snapshotter.Snapshot()

	w.Header().Set("Content-Type", "text/plain; version=0.0.4")

	writeLabeled(w, "beacon_ingested_requests_total", "status", snap.Ingested)

	writeLabeled(w, "beacon_events_recorded_total", "status", snap.EventsRecorded)
	writeMetric(w, "beacon_flush_batches_total %d\n", snap.FlushBatches)
	writeMetric(w, "beacon_flushed_events_total %d\n", snap.FlushedEvents)

	writeLabeled(w, "beacon_requests_enqueued_total", "kind", snap.RequestsEnqueued)
	writeLabeled(w, "beacon_deliveries_total", "outcome", snap.Deliveries)
	writeMetric(w, "beacon_delivery_duration_seconds_count %d\n", snap.DeliveryDurationCount)
	writeMetric(w, "beacon_delivery_duration_seconds_sum %.6f\n", float64(snap.DeliveryDurationTotalNs)/1e9)
	writeMetric(w, "beacon_request_queue_depth %d\n", snap.RequestQueueDepth)

	writeLabeled(w, "beacon_content_fetches_total", "outcome", snap.ContentFetches)
}

// writeLabeled writes one sample per label value, sorted for stable output.
func writeLabeled(w http.ResponseWriter, name, label string, counts map[string]uint64) {
	values := make([]string, 0, len(counts))
	for v := range counts {
		values = append(values, v)
	}
	sort.Strings(values)
	for _, v := range values {
		writeMetric(w, "%s{%s=%q} %d\n", name, label, v, counts[v])
	}
}

func writeMetric(w http.ResponseWriter, format string, args ...any) {
	_, _ = fmt.Fprintf(w, format, args...)
}
