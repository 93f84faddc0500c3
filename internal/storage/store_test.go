package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/penshort/beacon/internal/config"
	"github.com/penshort/beacon/internal/testutil"
)

// exerciseStore runs the shared Store contract against s.
func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	if _, ok, err := s.Get(ctx, "missing"); err != nil || ok {
		t.Fatalf("Get(missing) = ok=%v err=%v, want absent", ok, err)
	}

	if err := s.Set(ctx, "k", "v1"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := s.Set(ctx, "k", "v2"); err != nil {
		t.Fatalf("Set overwrite: %v", err)
	}
	v, ok, err := s.Get(ctx, "k")
	if err != nil || !ok || v != "v2" {
		t.Fatalf("Get(k) = %q ok=%v err=%v, want v2", v, ok, err)
	}

	if err := s.Remove(ctx, "k"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, ok, _ := s.Get(ctx, "k"); ok {
		t.Fatal("key still present after Remove")
	}
	if err := s.Remove(ctx, "k"); err != nil {
		t.Fatalf("Remove of absent key: %v", err)
	}
}

func TestMemory_Contract(t *testing.T) {
	exerciseStore(t, NewMemory())
}

func TestMemory_Closed(t *testing.T) {
	m := NewMemory()
	m.Close()
	if err := m.Set(context.Background(), "k", "v"); !errors.Is(err, ErrClosed) {
		t.Fatalf("Set after Close = %v, want ErrClosed", err)
	}
}

func TestSQLite_Contract(t *testing.T) {
	s, err := NewSQLite(context.Background(), filepath.Join(t.TempDir(), "kv.db"))
	if err != nil {
		t.Fatalf("NewSQLite: %v", err)
	}
	defer s.Close()
	exerciseStore(t, s)
}

func TestSQLite_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "kv.db")

	s, err := NewSQLite(ctx, path)
	if err != nil {
		t.Fatalf("NewSQLite: %v", err)
	}
	if err := s.Set(ctx, "app/cly_queue", `[{"id":"1"}]`); err != nil {
		t.Fatalf("Set: %v", err)
	}
	s.Close()

	s, err = NewSQLite(ctx, path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()
	v, ok, err := s.Get(ctx, "app/cly_queue")
	if err != nil || !ok || v != `[{"id":"1"}]` {
		t.Fatalf("Get after reopen = %q ok=%v err=%v", v, ok, err)
	}
}

func TestRedis_Contract(t *testing.T) {
	url := testutil.RequireEnv(t, "REDIS_URL")
	r, err := NewRedis(context.Background(), url)
	if err != nil {
		t.Fatalf("NewRedis: %v", err)
	}
	defer r.Close()
	exerciseStore(t, WithNamespace(r, "beacon-test-"+t.Name()))
}

func TestNamespaced_IsolatesInstances(t *testing.T) {
	ctx := context.Background()
	base := NewMemory()
	a := WithNamespace(base, "app-a")
	b := WithNamespace(base, "app-b")

	if err := a.Set(ctx, KeyRequestQueue, "a-queue"); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := b.Get(ctx, KeyRequestQueue); ok {
		t.Fatal("namespace b sees namespace a's queue")
	}
	if v, ok, _ := base.Get(ctx, "app-a/cly_queue"); !ok || v != "a-queue" {
		t.Fatalf("physical key = %q ok=%v, want app-a/cly_queue", v, ok)
	}
}

func TestOpen_SelectsBackend(t *testing.T) {
	ctx := context.Background()

	cfg := config.Defaults()
	s, err := Open(ctx, cfg)
	if err != nil {
		t.Fatalf("Open memory: %v", err)
	}
	if _, ok := s.(*Memory); !ok {
		t.Fatalf("Open memory returned %T", s)
	}

	cfg.Storage = config.StorageSQLite
	cfg.SQLitePath = filepath.Join(t.TempDir(), "beacon.db")
	s, err = Open(ctx, cfg)
	if err != nil {
		t.Fatalf("Open sqlite: %v", err)
	}
	defer s.Close()
	if _, ok := s.(*SQLite); !ok {
		t.Fatalf("Open sqlite returned %T", s)
	}

	cfg.Storage = "bogus"
	if _, err := Open(ctx, cfg); err == nil {
		t.Fatal("expected error for unknown backend")
	}
}
