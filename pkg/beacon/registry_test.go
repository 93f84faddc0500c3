package beacon

import (
	"context"
	"errors"
	"testing"

	"github.com/penshort/beacon/internal/clock"
	"github.com/penshort/beacon/internal/storage"
)

func registryOptions() Options {
	return Options{
		Store:     storage.NewMemory(),
		Transport: &fakeCollector{},
		Clock:     clock.Fake(testEpoch),
	}
}

func TestRegistry_ReplaysCommandsInOrder(t *testing.T) {
	r := NewRegistry(discardLogger())
	ctx := context.Background()

	r.Enqueue(Command{Kind: CmdAddEvent, Event: Event{Key: "first"}})
	r.Enqueue(Command{Kind: CmdUnknown, Name: "bogus"})
	r.Enqueue(Command{Kind: CmdAddEvent, Event: Event{Key: "second"}})
	r.Enqueue(Command{Kind: CmdUserDataOp, Op: "explode", Key: "k"})
	r.Enqueue(Command{Kind: CmdStartEvent, Key: "timed"})
	if r.Pending() != 5 {
		t.Fatalf("Pending() = %d, want 5", r.Pending())
	}

	inst, err := r.Init(ctx, testConfig(), registryOptions())
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	defer r.CloseAll(ctx)

	if r.Pending() != 0 {
		t.Fatalf("Pending() after init = %d", r.Pending())
	}
	if got := eventKeys(inst.LocalQueues().Events); !equalStrings(got, []string{"first", "second"}) {
		t.Fatalf("events = %v", got)
	}
	if !inst.CancelEvent("timed") {
		t.Fatal("start_event after failing commands was not replayed")
	}

	r.Enqueue(Command{Kind: CmdAddEvent, Event: Event{Key: "live"}})
	if n := len(inst.LocalQueues().Events); n != 3 {
		t.Fatalf("command after init not applied: %d events", n)
	}
}

func TestRegistry_TargetsNamedInstances(t *testing.T) {
	r := NewRegistry(discardLogger())
	ctx := context.Background()
	defer r.CloseAll(ctx)

	main, err := r.Init(ctx, testConfig(), registryOptions())
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	r.Enqueue(Command{Kind: CmdAddEvent, Target: "second", Event: Event{Key: "for-second"}})
	if r.Pending() != 1 {
		t.Fatal("command for missing instance not kept")
	}

	cfg := testConfig()
	cfg.AppKey = "second"
	second, err := r.Init(ctx, cfg, registryOptions())
	if err != nil {
		t.Fatalf("Init(second) error = %v", err)
	}
	if len(second.LocalQueues().Events) != 1 || len(main.LocalQueues().Events) != 0 {
		t.Fatal("targeted command reached the wrong instance")
	}

	if def, _ := r.Default(); def != main {
		t.Fatal("Default() is not the first instance")
	}
	if got, ok := r.Get("second"); !ok || got != second {
		t.Fatal("Get(second) failed")
	}
}

func TestRegistry_DuplicateInit(t *testing.T) {
	r := NewRegistry(discardLogger())
	ctx := context.Background()
	defer r.CloseAll(ctx)

	if _, err := r.Init(ctx, testConfig(), registryOptions()); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	if _, err := r.Init(ctx, testConfig(), registryOptions()); !errors.Is(err, ErrInstanceExists) {
		t.Fatalf("second Init() error = %v, want ErrInstanceExists", err)
	}
}

func TestRegistry_CloseAll(t *testing.T) {
	r := NewRegistry(discardLogger())
	ctx := context.Background()
	inst, _ := r.Init(ctx, testConfig(), registryOptions())

	if err := r.CloseAll(ctx); err != nil {
		t.Fatalf("CloseAll() error = %v", err)
	}
	if _, ok := r.Default(); ok {
		t.Fatal("registry not emptied")
	}
	if err := (Command{Kind: CmdBeginSession}).Apply(inst); !errors.Is(err, ErrInstanceClosed) {
		t.Fatalf("Apply on closed instance = %v", err)
	}
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		name    string
		args    []any
		want    CommandKind
		target  string
		wantErr bool
	}{
		{"event string", []any{"add_event", "click"}, CmdAddEvent, "", false},
		{"event map", []any{"add_event", map[string]any{"key": "buy", "count": 2.0, "sum": 9.5}}, CmdAddEvent, "", false},
		{"targeted", []any{"app-2", "begin_session"}, CmdBeginSession, "app-2", false},
		{"user data", []any{"userData.increment_by", "score", 3}, CmdUserDataOp, "", false},
		{"change id", []any{"change_id", "u1", true}, CmdChangeID, "", false},
		{"consent list", []any{"add_consent", []any{"views", "events"}}, CmdAddConsent, "", false},
		{"unknown", []any{"launch_rockets"}, CmdUnknown, "", true},
		{"empty", nil, CmdUnknown, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, err := ParseCommand(tt.args)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseCommand() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrUnknownCommand) {
				t.Fatalf("error %v is not ErrUnknownCommand", err)
			}
			if cmd.Kind != tt.want || cmd.Target != tt.target {
				t.Fatalf("ParseCommand() = %s/%q, want %s/%q", cmd.Kind, cmd.Target, tt.want, tt.target)
			}
		})
	}
}

func TestParseCommand_Fields(t *testing.T) {
	cmd, _ := ParseCommand([]any{"add_event", map[string]any{
		"key": "buy", "count": 2.0, "sum": 9.5,
		"segmentation": map[string]any{"sku": "A1"},
	}})
	if cmd.Event.Key != "buy" || cmd.Event.Count != 2 || *cmd.Event.Sum != 9.5 {
		t.Fatalf("event = %+v", cmd.Event)
	}
	if v, _ := cmd.Event.Segmentation.Get("sku"); v != "A1" {
		t.Fatalf("segmentation sku = %v", v)
	}

	cmd, _ = ParseCommand([]any{"add_consent", "views", []string{"events", "views"}})
	if !equalStrings(cmd.Features, []string{"events", "views"}) {
		t.Fatalf("features = %v", cmd.Features)
	}

	cmd, _ = ParseCommand([]any{"user_details", map[string]any{"name": "Ada", "byear": 1815.0}})
	if cmd.User.Name != "Ada" || cmd.User.BirthYear != 1815 {
		t.Fatalf("user = %+v", cmd.User)
	}
}
