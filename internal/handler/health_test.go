package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/penshort/beacon/internal/metrics"
)

// mockHealthChecker is a mock implementation of HealthChecker for testing.
type mockHealthChecker struct {
	err error
}

func (m *mockHealthChecker) Ping(ctx context.Context) error {
	return m.err
}

func TestHealthHandler_Healthz(t *testing.T) {
	h := NewHealthHandler(map[string]HealthChecker{"repository": &mockHealthChecker{err: errors.New("down")}})

	rec := httptest.NewRecorder()
	h.Healthz(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rec.Code)
	}
}

func TestHealthHandler_Readyz(t *testing.T) {
	tests := []struct {
		name       string
		checks     map[string]HealthChecker
		wantStatus int
		wantChecks map[string]string
	}{
		{
			name:       "healthy",
			checks:     map[string]HealthChecker{"repository": &mockHealthChecker{}},
			wantStatus: http.StatusOK,
			wantChecks: map[string]string{"repository": "ok"},
		},
		{
			name:       "unhealthy",
			checks:     map[string]HealthChecker{"repository": &mockHealthChecker{err: errors.New("connection refused")}},
			wantStatus: http.StatusServiceUnavailable,
			wantChecks: map[string]string{"repository": "error: connection refused"},
		},
		{
			name:       "not configured",
			checks:     map[string]HealthChecker{"postgres": nil},
			wantStatus: http.StatusOK,
			wantChecks: map[string]string{"postgres": "not configured"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			NewHealthHandler(tt.checks).Readyz(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			var resp HealthResponse
			if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}
			for name, want := range tt.wantChecks {
				if resp.Checks[name] != want {
					t.Errorf("check %s = %q, want %q", name, resp.Checks[name], want)
				}
			}
		})
	}
}

func TestMetricsHandler(t *testing.T) {
	recorder := metrics.NewInMemory()
	recorder.IncIngest("accepted")
	recorder.IncIngest("accepted")
	recorder.IncIngest("rejected")
	recorder.IncDelivery("success")
	recorder.SetRequestQueueDepth(3)

	rec := httptest.NewRecorder()
	NewMetricsHandler(recorder).Metrics(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	body := rec.Body.String()
	for _, want := range []string{
		`beacon_ingested_requests_total{status="accepted"} 2`,
		`beacon_ingested_requests_total{status="rejected"} 1`,
		`beacon_deliveries_total{outcome="success"} 1`,
		`beacon_request_queue_depth 3`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q:\n%s", want, body)
		}
	}

	rec = httptest.NewRecorder()
	NewMetricsHandler(nil).Metrics(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("nil snapshotter status = %d, want 503", rec.Code)
	}
}
