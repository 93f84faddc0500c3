package beacon

import (
	"context"
	"testing"
	"time"

	"github.com/penshort/beacon/internal/delivery"
	"github.com/penshort/beacon/internal/model"
	"github.com/penshort/beacon/internal/storage"
	"github.com/penshort/beacon/internal/testutil"
)

// holdingDisplayer keeps content on screen until release is called.
type holdingDisplayer struct {
	shown   int
	release func()
}

func (d *holdingDisplayer) Display(_ Content, resolve func()) {
	d.shown++
	d.release = resolve
}

func journeyConfig(c *Config) {
	c.Behavior.JourneyTriggerEvents = []string{"purchase"}
}

func TestJourneyTrigger_IsolatedRequestThenContent(t *testing.T) {
	d := &holdingDisplayer{}
	h := newHarness(t, journeyConfig, d)
	h.collector.contentBodies = []string{validContent}

	h.inst.AddEvent(Event{Key: "browse"})
	h.inst.AddEvent(Event{Key: "purchase"})

	ingested := h.collector.Ingested()
	if len(ingested) != 2 {
		t.Fatalf("ingested %d requests, want 2", len(ingested))
	}
	first := decodeEvents(t, ingested[0].Get(model.ParamEvents))
	second := decodeEvents(t, ingested[1].Get(model.ParamEvents))
	if !equalStrings(eventKeys(first), []string{"browse"}) || !equalStrings(eventKeys(second), []string{"purchase"}) {
		t.Fatalf("requests carried %v then %v", eventKeys(first), eventKeys(second))
	}
	if h.collector.ContentCalls() != 1 || d.shown != 1 {
		t.Fatalf("content calls = %d, shown = %d", h.collector.ContentCalls(), d.shown)
	}
}

func TestJourneyTrigger_ContentRetriedUntilValid(t *testing.T) {
	h := newHarness(t, journeyConfig, &holdingDisplayer{})
	h.collector.contentBodies = []string{"{}", validContent}

	h.inst.AddEvent(Event{Key: "purchase"})
	if h.collector.ContentCalls() != 1 {
		t.Fatalf("content calls = %d, want 1", h.collector.ContentCalls())
	}
	h.clock.Advance(time.Second)
	h.clock.Advance(10 * time.Second)
	if h.collector.ContentCalls() != 2 {
		t.Fatalf("content calls = %d, want 2", h.collector.ContentCalls())
	}
}

func TestJourneyTrigger_ContentGivesUpAfterThree(t *testing.T) {
	h := newHarness(t, journeyConfig, nil)

	h.inst.AddEvent(Event{Key: "purchase"})
	h.clock.Advance(time.Minute)
	if h.collector.ContentCalls() != 3 {
		t.Fatalf("content calls = %d, want 3", h.collector.ContentCalls())
	}
}

func TestJourneyTrigger_IgnoredWhileDisplaying(t *testing.T) {
	d := &holdingDisplayer{}
	h := newHarness(t, journeyConfig, d)
	h.collector.contentBodies = []string{validContent}

	h.inst.AddEvent(Event{Key: "purchase"})
	h.inst.AddEvent(Event{Key: "purchase"})
	if len(h.collector.Ingested()) != 2 {
		t.Fatal("second trigger event not delivered")
	}
	if h.collector.ContentCalls() != 1 {
		t.Fatalf("content calls = %d, want 1", h.collector.ContentCalls())
	}

	d.release()
	h.inst.AddEvent(Event{Key: "purchase"})
	if h.collector.ContentCalls() != 2 {
		t.Fatalf("content calls after resolve = %d, want 2", h.collector.ContentCalls())
	}
}

func TestJourneyTrigger_FailedSendFetchesNothing(t *testing.T) {
	h := newHarness(t, journeyConfig, nil)
	h.collector.ingestFail = 1
	h.collector.contentBodies = []string{validContent}

	h.inst.AddEvent(Event{Key: "purchase"})
	h.clock.Advance(time.Minute)
	if n, err := h.inst.ProcessQueue(context.Background()); n != 1 || err != nil {
		t.Fatalf("retry ProcessQueue = %d, %v", n, err)
	}
	if h.collector.ContentCalls() != 0 {
		t.Fatalf("content calls = %d, want 0", h.collector.ContentCalls())
	}
}

func TestOfflineMode(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.OfflineMode = true }, nil)

	h.inst.AddEvent(Event{Key: "a"})
	h.inst.Flush(context.Background())
	h.inst.BeginSession()
	if n, err := h.inst.ProcessQueue(context.Background()); n != 0 || err != nil {
		t.Fatalf("offline ProcessQueue = %d, %v", n, err)
	}
	for _, r := range h.requests() {
		if _, ok := r.Params[model.ParamRemaining]; ok {
			t.Fatal("rr assigned while offline")
		}
	}

	h.inst.DisableOfflineMode()
	ingested := h.collector.Ingested()
	if len(ingested) != 2 {
		t.Fatalf("ingested %d after going online", len(ingested))
	}
	if ingested[0].Get(model.ParamRemaining) != "2" || ingested[1].Get(model.ParamRemaining) != "1" {
		t.Fatalf("rr = %s, %s", ingested[0].Get(model.ParamRemaining), ingested[1].Get(model.ParamRemaining))
	}
}

func TestHeartbeat_FlushesAndDelivers(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.HeartbeatInterval = 500 * time.Millisecond }, nil)

	h.inst.AddEvent(Event{Key: "a"})
	h.clock.Advance(500 * time.Millisecond)
	if len(h.collector.Ingested()) != 1 {
		t.Fatalf("ingested %d, want 1", len(h.collector.Ingested()))
	}

	h.inst.Close(context.Background())
	h.inst.AddEvent(Event{Key: "late"})
	h.clock.Advance(10 * time.Second)
	if len(h.collector.Ingested()) != 1 {
		t.Fatal("delivery continued after Close")
	}
	if h.clock.Pending() != 0 {
		t.Fatalf("%d timers pending after Close", h.clock.Pending())
	}
}

func TestHeartbeat_RetriesAfterBackoff(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.HeartbeatInterval = 500 * time.Millisecond }, nil)
	h.collector.ingestFail = 1

	h.inst.AddEvent(Event{Key: "a"})
	h.clock.Advance(500 * time.Millisecond)
	if len(h.collector.Ingested()) != 0 {
		t.Fatal("failed request counted as ingested")
	}
	h.clock.Advance(5 * time.Second)
	if len(h.collector.Ingested()) != 1 {
		t.Fatalf("ingested %d after back-off", len(h.collector.Ingested()))
	}
	history := h.inst.RequestHistory()
	if len(history) != 2 || history[0].Outcome != delivery.OutcomeRetry || history[1].Outcome != delivery.OutcomeDelivered {
		t.Fatalf("history = %+v", history)
	}
}

func TestPersistence_SurvivesRestart(t *testing.T) {
	store := storage.NewMemory()
	cfg := testConfig()
	cfg.OfflineMode = true
	ctx := context.Background()

	first, err := New(ctx, cfg, Options{Store: store, Transport: &fakeCollector{}, Logger: discardLogger()})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	first.AddEvent(Event{Key: "a"})
	first.Flush(ctx)
	first.AddEvent(Event{Key: "b"})
	deviceID := first.DeviceID()
	if err := first.Close(ctx); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	second, err := New(ctx, cfg, Options{Store: store, Transport: &fakeCollector{}, Logger: discardLogger()})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer second.Close(ctx)

	if second.DeviceID() != deviceID {
		t.Fatalf("device id = %q, want %q", second.DeviceID(), deviceID)
	}
	if n := len(second.LocalQueues().Requests); n != 2 {
		t.Fatalf("restored %d requests, want 2", n)
	}
}

func TestPersistence_EmptyBehaviorListSurvivesRestart(t *testing.T) {
	store := storage.NewMemory()
	cfg := testConfig()
	cfg.OfflineMode = true
	ctx := context.Background()

	first, err := New(ctx, cfg, Options{Store: store, Transport: &fakeCollector{}, Logger: discardLogger()})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	first.SetBehaviorSettings(BehaviorSettings{EventWhitelist: []string{}})
	first.AddEvent(Event{Key: "click"})
	if n := len(first.LocalQueues().Events); n != 0 {
		t.Fatalf("queued %d events under an empty whitelist", n)
	}
	if err := first.Close(ctx); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	second, err := New(ctx, cfg, Options{Store: store, Transport: &fakeCollector{}, Logger: discardLogger()})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer second.Close(ctx)

	if ew := second.BehaviorSettings().EventWhitelist; ew == nil || len(ew) != 0 {
		t.Fatalf("restored whitelist = %#v, want empty and configured", ew)
	}
	second.AddEvent(Event{Key: "click2"})
	if n := len(second.LocalQueues().Events); n != 0 {
		t.Fatalf("queued %d events after restart, want 0", n)
	}
}

func TestNamespaces_AreIsolated(t *testing.T) {
	store := storage.NewMemory()
	ctx := context.Background()
	open := func(key string) *Instance {
		cfg := testConfig()
		cfg.AppKey = key
		inst, err := New(ctx, cfg, Options{Store: store, Transport: &fakeCollector{}, Logger: discardLogger()})
		if err != nil {
			t.Fatalf("New(%s) error = %v", key, err)
		}
		t.Cleanup(func() { inst.Close(ctx) })
		return inst
	}
	a, b := open("app-a"), open("app-b")

	a.AddEvent(Event{Key: "only-a"})
	if len(b.LocalQueues().Events) != 0 {
		t.Fatal("event leaked across namespaces")
	}
	if a.DeviceID() == b.DeviceID() {
		t.Fatal("instances share a device id")
	}
}

func TestEndToEnd_HTTPCollector(t *testing.T) {
	mc := testutil.NewMockCollector()
	defer mc.Close()

	cfg := testConfig()
	cfg.URL = mc.URL()
	cfg.Salt = "pepper"
	ctx := context.Background()

	inst, err := New(ctx, cfg, Options{Store: storage.NewMemory(), Logger: discardLogger()})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer inst.Close(ctx)

	inst.AddEvent(Event{Key: "checkout", Segmentation: NewSegmentation("items", 3)})
	n, err := inst.Drain(ctx)
	if err != nil || n != 1 {
		t.Fatalf("Drain() = %d, %v", n, err)
	}

	got := mc.Ingested()
	if len(got) != 1 {
		t.Fatalf("collector received %d requests", len(got))
	}
	if err := delivery.VerifyChecksum(got[0], "pepper"); err != nil {
		t.Fatalf("checksum: %v", err)
	}
	if got[0].Get(model.ParamAppKey) != "app" || got[0].Get(model.ParamDeviceID) != inst.DeviceID() {
		t.Fatalf("identity params = %v", got[0])
	}
	events := decodeEvents(t, got[0].Get(model.ParamEvents))
	if v, _ := events[0].Segmentation.Get("items"); v != int64(3) {
		t.Fatalf("segmentation items = %#v", v)
	}
}
