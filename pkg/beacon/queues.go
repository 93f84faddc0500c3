package beacon

import (
	"context"
	"time"

	"github.com/penshort/beacon/internal/delivery"
)

// ProcessQueue runs one delivery pass and returns how many requests were
// acknowledged. A pass already running is not an error.
func (i *Instance) ProcessQueue(ctx context.Context) (int, error) {
	if i.isClosed() {
		return 0, ErrInstanceClosed
	}
	n, err := i.loop.ProcessQueue(ctx)
	if err != nil && delivery.IsBusy(err) {
		return n, nil
	}
	return n, err
}

// drainPoll is how often Drain re-checks a pass already in flight.
const drainPoll = 10 * time.Millisecond

// Drain flushes queued events and runs a delivery pass. A pass already in
// flight, such as one started by the heartbeat, is waited out first.
func (i *Instance) Drain(ctx context.Context) (int, error) {
	if i.isClosed() {
		return 0, ErrInstanceClosed
	}
	i.Flush(ctx)
	for {
		n, err := i.loop.ProcessQueue(ctx)
		if !delivery.IsBusy(err) {
			return n, err
		}
		select {
		case <-ctx.Done():
			return n, ctx.Err()
		case <-time.After(drainPoll):
		}
	}
}

// EnableOfflineMode holds delivery. Requests keep accumulating.
func (i *Instance) EnableOfflineMode() {
	i.loop.SetOffline(true)
	i.logger.Info("offline mode enabled")
}

// DisableOfflineMode resumes delivery.
func (i *Instance) DisableOfflineMode() {
	i.loop.SetOffline(false)
	i.logger.Info("offline mode disabled", "queued_requests", i.requests.Len())
	i.kick()
}

// Offline reports whether delivery is held.
func (i *Instance) Offline() bool {
	return i.loop.Offline()
}

// LocalQueues returns copies of both queues.
func (i *Instance) LocalQueues() Queues {
	return Queues{
		Events:   i.events.Snapshot(),
		Requests: i.requests.Snapshot(),
	}
}

// RequestHistory returns recent delivery attempts, oldest first.
func (i *Instance) RequestHistory() []Attempt {
	return i.loop.History()
}
