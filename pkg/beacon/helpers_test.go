package beacon

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/penshort/beacon/internal/clock"
	"github.com/penshort/beacon/internal/delivery"
	"github.com/penshort/beacon/internal/model"
	"github.com/penshort/beacon/internal/storage"
)

var testEpoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

const validContent = `{"html":"<p>offer</p>"}`

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeCollector answers ingest, content and settings calls in process.
type fakeCollector struct {
	mu            sync.Mutex
	ingestFail    int
	contentBodies []string
	settingsBody  string
	ingested      []url.Values
	contentCalls  int
}

func (f *fakeCollector) Send(_ context.Context, req delivery.Prepared) (*delivery.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch req.Path {
	case delivery.PathIngest:
		if f.ingestFail > 0 {
			f.ingestFail--
			return &delivery.Response{Status: 503}, nil
		}
		f.ingested = append(f.ingested, req.Params)
		return &delivery.Response{Status: 200, Body: `{"result":"Success"}`}, nil
	case delivery.PathContent:
		body := "{}"
		if n := len(f.contentBodies); n > 0 {
			idx := f.contentCalls
			if idx >= n {
				idx = n - 1
			}
			body = f.contentBodies[idx]
		}
		f.contentCalls++
		return &delivery.Response{Status: 200, Body: body}, nil
	case delivery.PathSettings:
		body := f.settingsBody
		if body == "" {
			body = "{}"
		}
		return &delivery.Response{Status: 200, Body: body}, nil
	}
	return &delivery.Response{Status: 404}, nil
}

func (f *fakeCollector) Ingested() []url.Values {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]url.Values(nil), f.ingested...)
}

func (f *fakeCollector) ContentCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.contentCalls
}

func testConfig() *Config {
	cfg := DefaultConfig()
	cfg.AppKey = "app"
	cfg.URL = "http://collector.test"
	cfg.HeartbeatInterval = 0
	cfg.FailTimeout = time.Second
	cfg.MaxBackoff = time.Minute
	return cfg
}

type harness struct {
	inst      *Instance
	clock     *clock.FakeClock
	collector *fakeCollector
	store     *storage.Memory
}

func newHarness(t *testing.T, tune func(*Config), displayer Displayer) *harness {
	t.Helper()
	cfg := testConfig()
	if tune != nil {
		tune(cfg)
	}
	h := &harness{
		clock:     clock.Fake(testEpoch),
		collector: &fakeCollector{},
		store:     storage.NewMemory(),
	}
	inst, err := New(context.Background(), cfg, Options{
		Store:     h.store,
		Transport: h.collector,
		Clock:     h.clock,
		Logger:    discardLogger(),
		Displayer: displayer,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	h.inst = inst
	t.Cleanup(func() { inst.Close(context.Background()) })
	return h
}

func (h *harness) requests() []model.Request {
	return h.inst.LocalQueues().Requests
}

func kinds(reqs []model.Request) []model.RequestKind {
	out := make([]model.RequestKind, len(reqs))
	for n, r := range reqs {
		out[n] = r.Kind
	}
	return out
}

func decodeEvents(t *testing.T, raw string) []model.Event {
	t.Helper()
	var events []model.Event
	if err := json.Unmarshal([]byte(raw), &events); err != nil {
		t.Fatalf("decode events %q: %v", raw, err)
	}
	return events
}

func eventKeys(events []model.Event) []string {
	out := make([]string, len(events))
	for n, e := range events {
		out[n] = e.Key
	}
	return out
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for n := range a {
		if a[n] != b[n] {
			return false
		}
	}
	return true
}
