// Package queue holds the persisted event and request queues of one
// SDK instance. Every mutation is written through to the key/value store
// under a single key, so a restarted process resumes where it stopped.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/penshort/beacon/internal/storage"
)

// ErrCorrupt marks a persisted queue that could not be decoded.
var ErrCorrupt = errors.New("corrupt persisted queue")

// load decodes the list stored under key into dst. A missing key leaves
// dst untouched.
func load(ctx context.Context, kv storage.KV, key string, dst any) error {
	raw, ok, err := kv.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("load %s: %w", key, err)
	}
	if !ok || raw == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrCorrupt, key, err)
	}
	return nil
}

// save writes items under key, removing the key when the list is empty.
func save[T any](ctx context.Context, kv storage.KV, key string, items []T, logger *slog.Logger) {
	if len(items) == 0 {
		if err := kv.Remove(ctx, key); err != nil {
			logger.Warn("failed to clear persisted queue", "key", key, "error", err)
		}
		return
	}
	data, err := json.Marshal(items)
	if err != nil {
		logger.Warn("failed to encode queue", "key", key, "error", err)
		return
	}
	if err := kv.Set(ctx, key, string(data)); err != nil {
		logger.Warn("failed to persist queue", "key", key, "error", err)
	}
}
