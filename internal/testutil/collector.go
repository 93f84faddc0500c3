package testutil

import (
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
)

// MockCollector simulates the ingest and content endpoints.
type MockCollector struct {
	Server *httptest.Server

	mu           sync.Mutex
	failCount    int
	ingestBody   string
	contentBody  []string
	ingested     []url.Values
	contentCalls int
}

// NewMockCollector starts a collector that acknowledges every request with
// {"result":"Success"} and answers content fetches with {}.
func NewMockCollector() *MockCollector {
	mc := &MockCollector{ingestBody: `{"result":"Success"}`}
	mux := http.NewServeMux()
	mux.HandleFunc("/i", mc.handleIngest)
	mux.HandleFunc("/o/sdk/content", mc.handleContent)
	mc.Server = httptest.NewServer(mux)
	return mc
}

// URL returns the collector base URL.
func (mc *MockCollector) URL() string { return mc.Server.URL }

// Close stops the server.
func (mc *MockCollector) Close() { mc.Server.Close() }

// SetFailCount makes the next n ingest calls answer 503.
func (mc *MockCollector) SetFailCount(n int) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.failCount = n
}

// SetIngestBody overrides the ingest acknowledgement body.
func (mc *MockCollector) SetIngestBody(body string) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.ingestBody = body
}

// SetContentBodies queues bodies returned by successive content fetches.
// Once exhausted the last body repeats.
func (mc *MockCollector) SetContentBodies(bodies ...string) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.contentBody = bodies
}

// Ingested returns the params of every accepted ingest request.
func (mc *MockCollector) Ingested() []url.Values {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	return append([]url.Values(nil), mc.ingested...)
}

// ContentCalls returns how many content fetches were received.
func (mc *MockCollector) ContentCalls() int {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	return mc.contentCalls
}

func (mc *MockCollector) handleIngest(w http.ResponseWriter, r *http.Request) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	if mc.failCount > 0 {
		mc.failCount--
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	params, err := url.ParseQuery(string(body))
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	for k, v := range r.URL.Query() {
		params[k] = v
	}
	mc.ingested = append(mc.ingested, params)

	w.Header().Set("Content-Type", "application/json")
	_, _ = io.WriteString(w, mc.ingestBody)
}

func (mc *MockCollector) handleContent(w http.ResponseWriter, _ *http.Request) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	body := "{}"
	if n := len(mc.contentBody); n > 0 {
		i := mc.contentCalls
		if i >= n {
			i = n - 1
		}
		body = mc.contentBody[i]
	}
	mc.contentCalls++

	w.Header().Set("Content-Type", "application/json")
	_, _ = io.WriteString(w, body)
}
