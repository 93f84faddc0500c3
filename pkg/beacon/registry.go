package beacon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// Registry holds named instances and the commands issued before their
// instance existed. The first instance initialized becomes the default.
type Registry struct {
	mu        sync.Mutex
	instances map[string]*Instance
	def       string
	pending   []Command
	base      *slog.Logger
	logger    *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		instances: make(map[string]*Instance),
		base:      logger,
		logger:    logger.With("component", "sdk.registry"),
	}
}

// Init creates the instance for cfg, registers it under its storage
// namespace and replays pending commands addressed to it.
func (r *Registry) Init(ctx context.Context, cfg *Config, opts Options) (*Instance, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	key := cfg.StoragePrefix()

	r.mu.Lock()
	if _, ok := r.instances[key]; ok {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrInstanceExists, key)
	}
	r.mu.Unlock()

	if opts.Logger == nil {
		opts.Logger = r.base
	}
	inst, err := New(ctx, cfg, opts)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	if _, ok := r.instances[key]; ok {
		r.mu.Unlock()
		inst.Close(ctx)
		return nil, fmt.Errorf("%w: %s", ErrInstanceExists, key)
	}
	r.instances[key] = inst
	if r.def == "" {
		r.def = key
	}
	r.mu.Unlock()

	r.Replay(key)
	return inst, nil
}

// Get returns the instance registered under key.
func (r *Registry) Get(key string) (*Instance, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inst, ok := r.instances[key]
	return inst, ok
}

// Default returns the first initialized instance.
func (r *Registry) Default() (*Instance, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.def == "" {
		return nil, false
	}
	inst, ok := r.instances[r.def]
	return inst, ok
}

// Enqueue applies cmd now when its target exists, otherwise keeps it until
// that instance is initialized.
func (r *Registry) Enqueue(cmd Command) {
	r.mu.Lock()
	inst, ok := r.resolveLocked(cmd.Target)
	if !ok {
		r.pending = append(r.pending, cmd)
		r.mu.Unlock()
		return
	}
	r.mu.Unlock()
	r.apply(inst, cmd)
}

// Replay applies the pending commands addressed to key, in the order they
// were enqueued, and returns how many ran. A failing command is logged and
// the rest continue.
func (r *Registry) Replay(key string) int {
	r.mu.Lock()
	inst, ok := r.instances[key]
	if !ok {
		r.mu.Unlock()
		return 0
	}
	var run, keep []Command
	for _, cmd := range r.pending {
		target := cmd.Target
		if target == "" {
			target = r.def
		}
		if target == key {
			run = append(run, cmd)
		} else {
			keep = append(keep, cmd)
		}
	}
	r.pending = keep
	r.mu.Unlock()

	for _, cmd := range run {
		r.apply(inst, cmd)
	}
	if len(run) > 0 {
		r.logger.Debug("replayed queued commands", "namespace", key, "count", len(run))
	}
	return len(run)
}

// Pending returns the number of commands waiting for an instance.
func (r *Registry) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

// CloseAll closes every instance and empties the registry.
func (r *Registry) CloseAll(ctx context.Context) error {
	r.mu.Lock()
	instances := r.instances
	r.instances = make(map[string]*Instance)
	r.def = ""
	r.mu.Unlock()

	var errs []error
	for key, inst := range instances {
		if err := inst.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", key, err))
		}
	}
	return errors.Join(errs...)
}

func (r *Registry) resolveLocked(target string) (*Instance, bool) {
	if target == "" {
		target = r.def
	}
	if target == "" {
		return nil, false
	}
	inst, ok := r.instances[target]
	return inst, ok
}

// apply runs cmd and contains any failure, panics included.
func (r *Registry) apply(inst *Instance, cmd Command) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("queued command panicked", "command", cmd.Kind.String(), "panic", rec)
		}
	}()
	if err := cmd.Apply(inst); err != nil {
		r.logger.Warn("queued command failed", "command", cmd.Kind.String(), "error", err)
	}
}
