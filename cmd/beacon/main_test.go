package main

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/penshort/beacon/internal/model"
	"github.com/penshort/beacon/internal/testutil"
	"github.com/penshort/beacon/pkg/beacon"
)

func setEnv(t *testing.T, url string) {
	t.Helper()
	t.Setenv("BEACON_APP_KEY", "cli-app")
	t.Setenv("BEACON_URL", url)
	t.Setenv("BEACON_STORAGE", "memory")
	t.Setenv("LOG_LEVEL", "error")
}

func runCLI(t *testing.T, args ...string) (int, beacon.Queues, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), args, &stdout, &stderr)
	var q beacon.Queues
	if stdout.Len() > 0 {
		if err := json.Unmarshal(stdout.Bytes(), &q); err != nil {
			t.Fatalf("decode queues: %v\n%s", err, stdout.String())
		}
	}
	return code, q, stderr.String()
}

func TestRun_EventIsDelivered(t *testing.T) {
	mc := testutil.NewMockCollector()
	defer mc.Close()
	setEnv(t, mc.URL())

	code, q, stderr := runCLI(t, "--device-id", "dev-1", "event", "signup", "--count", "2", "--seg", "plan=pro", "--seg", "seats=3")
	if code != exitOK {
		t.Fatalf("exit %d: %s", code, stderr)
	}
	if len(q.Requests) != 0 || len(q.Events) != 0 {
		t.Fatalf("queues not empty after drain: %+v", q)
	}

	ingested := mc.Ingested()
	if len(ingested) != 1 {
		t.Fatalf("collector received %d requests, want 1", len(ingested))
	}
	if ingested[0].Get("device_id") != "dev-1" {
		t.Fatalf("device_id = %q", ingested[0].Get("device_id"))
	}
	var events []model.Event
	if err := json.Unmarshal([]byte(ingested[0].Get("events")), &events); err != nil {
		t.Fatalf("decode events: %v", err)
	}
	if len(events) != 1 || events[0].Key != "signup" || events[0].Count != 2 {
		t.Fatalf("events = %+v", events)
	}
	if v, _ := events[0].Segmentation.Get("seats"); v != int64(3) {
		t.Fatalf("seats = %#v, want int64 3", v)
	}
}

func TestRun_OfflineKeepsRequests(t *testing.T) {
	mc := testutil.NewMockCollector()
	defer mc.Close()
	setEnv(t, mc.URL())

	code, q, stderr := runCLI(t, "--offline", "user", "--name", "Ada", "--custom", "tier=gold")
	if code != exitOK {
		t.Fatalf("exit %d: %s", code, stderr)
	}
	if len(q.Requests) != 1 || q.Requests[0].Kind != model.KindUserDetails {
		t.Fatalf("requests = %+v", q.Requests)
	}
	if _, stamped := q.Requests[0].Params["rr"]; stamped {
		t.Fatal("offline request carries rr")
	}
	if len(mc.Ingested()) != 0 {
		t.Fatal("offline run reached the collector")
	}
}

func TestRun_DeliveryFailureExitsNonZero(t *testing.T) {
	mc := testutil.NewMockCollector()
	defer mc.Close()
	mc.SetFailCount(1)
	setEnv(t, mc.URL())

	code, q, _ := runCLI(t, "session", "begin")
	if code != exitError {
		t.Fatalf("exit %d, want %d", code, exitError)
	}
	if len(q.Requests) != 1 || q.Requests[0].RetryAt == 0 {
		t.Fatalf("failed request not kept with back-off: %+v", q.Requests)
	}
}

func TestRun_Usage(t *testing.T) {
	setEnv(t, "http://127.0.0.1:1")

	tests := [][]string{
		{},
		{"bogus"},
		{"event"},
		{"event", "a", "--seg", "novalue"},
		{"session", "pause"},
		{"consent", "add"},
		{"user"},
	}
	for _, args := range tests {
		code, _, _ := runCLI(t, args...)
		if code != exitUsage {
			t.Errorf("run(%s) = %d, want %d", strings.Join(args, " "), code, exitUsage)
		}
	}
}

func TestParseScalar(t *testing.T) {
	tests := []struct {
		in   string
		want any
	}{
		{"42", int64(42)},
		{"1.5", 1.5},
		{"true", true},
		{"pro", "pro"},
	}
	for _, tt := range tests {
		if got := parseScalar(tt.in); got != tt.want {
			t.Errorf("parseScalar(%q) = %#v, want %#v", tt.in, got, tt.want)
		}
	}
}
