// Package delivery drains the request queue to the collector.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync/atomic"

	"github.com/penshort/beacon/internal/clock"
	"github.com/penshort/beacon/internal/metrics"
	"github.com/penshort/beacon/internal/model"
	"github.com/penshort/beacon/internal/queue"
)

// Outcome classifies the result of looking at the queue head.
type Outcome string

const (
	OutcomeIdle      Outcome = "idle"      // queue empty
	OutcomeWaiting   Outcome = "waiting"   // head is backing off
	OutcomeOffline   Outcome = "offline"   // offline mode holds delivery
	OutcomeDelivered Outcome = "success"   // acknowledged and removed
	OutcomeDiscarded Outcome = "discarded" // 2xx with a malformed acknowledgement, removed
	OutcomeRetry     Outcome = "retry"     // failed, head marked for back-off
	OutcomeExhausted Outcome = "exhausted" // failed too often, removed
)

// Options tune a Loop.
type Options struct {
	Salt        string
	Backoff     Backoff
	MaxAttempts int
	HistorySize int
	Offline     bool
}

// Loop delivers the request queue head by head. At most one attempt is in
// flight at any time.
type Loop struct {
	queue       *queue.RequestQueue
	transport   Transport
	clock       clock.Clock
	logger      *slog.Logger
	metrics     metrics.Recorder
	salt        string
	backoff     Backoff
	maxAttempts int
	history     *history
	onDelivered func(model.Request)

	inFlight atomic.Bool
	rerun    atomic.Bool
	offline  atomic.Bool
	closed   atomic.Bool
}

// NewLoop creates a delivery loop over q.
func NewLoop(q *queue.RequestQueue, transport Transport, clk clock.Clock, opts Options, logger *slog.Logger, recorder metrics.Recorder) *Loop {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	if clk == nil {
		clk = clock.Real()
	}
	l := &Loop{
		queue:       q,
		transport:   transport,
		clock:       clk,
		logger:      logger.With("component", "delivery.loop"),
		metrics:     recorder,
		salt:        opts.Salt,
		backoff:     opts.Backoff,
		maxAttempts: opts.MaxAttempts,
		history:     newHistory(opts.HistorySize),
	}
	l.offline.Store(opts.Offline)
	return l
}

// OnDelivered registers fn to run after a journey-trigger request has been
// acknowledged. It runs on the delivering goroutine.
func (l *Loop) OnDelivered(fn func(model.Request)) {
	l.onDelivered = fn
}

// SetOffline holds or releases delivery.
func (l *Loop) SetOffline(offline bool) {
	l.offline.Store(offline)
}

// Offline reports whether delivery is held.
func (l *Loop) Offline() bool {
	return l.offline.Load()
}

// InFlight reports whether an attempt is outstanding.
func (l *Loop) InFlight() bool {
	return l.inFlight.Load()
}

// History returns recent attempts, oldest first.
func (l *Loop) History() []Attempt {
	return l.history.list()
}

// Close stops further deliveries. An attempt already in flight completes.
func (l *Loop) Close() {
	l.closed.Store(true)
}

// ProcessQueue delivers requests from the head until the queue is empty,
// the head is backing off, or an attempt fails. It returns the number of
// requests acknowledged. ErrInFlight means another pass is running; that
// pass runs once more before it releases the loop.
func (l *Loop) ProcessQueue(ctx context.Context) (int, error) {
	if l.closed.Load() {
		return 0, ErrClosed
	}
	l.rerun.Store(true)
	if !l.inFlight.CompareAndSwap(false, true) {
		return 0, ErrInFlight
	}

	delivered := 0
	var firstErr error
	for {
		l.rerun.Store(false)
		n, err := l.pass(ctx)
		delivered += n
		if firstErr == nil {
			firstErr = err
		}
		l.inFlight.Store(false)

		if errors.Is(err, ErrClosed) || ctx.Err() != nil {
			return delivered, firstErr
		}
		// A caller turned away during the pass set rerun before its
		// CompareAndSwap failed, so it is visible here.
		if !l.rerun.Load() || !l.inFlight.CompareAndSwap(false, true) {
			return delivered, firstErr
		}
	}
}

// pass must be called with inFlight held.
func (l *Loop) pass(ctx context.Context) (int, error) {
	delivered := 0
	for {
		if l.closed.Load() {
			return delivered, ErrClosed
		}
		if err := ctx.Err(); err != nil {
			return delivered, err
		}

		outcome, err := l.attempt(ctx)
		switch outcome {
		case OutcomeDelivered:
			delivered++
		case OutcomeDiscarded, OutcomeExhausted:
		default:
			return delivered, err
		}
	}
}

// ProcessOnce makes at most one attempt on the head. If a ProcessQueue
// call was turned away meanwhile, a full pass follows.
func (l *Loop) ProcessOnce(ctx context.Context) (Outcome, error) {
	if l.closed.Load() {
		return OutcomeIdle, ErrClosed
	}
	if !l.inFlight.CompareAndSwap(false, true) {
		return OutcomeIdle, ErrInFlight
	}
	outcome, err := l.attempt(ctx)
	l.inFlight.Store(false)
	if l.rerun.Load() {
		l.ProcessQueue(ctx)
	}
	return outcome, err
}

// attempt must be called with inFlight held.
func (l *Loop) attempt(ctx context.Context) (Outcome, error) {
	if l.offline.Load() {
		return OutcomeOffline, nil
	}
	head, ok := l.queue.Peek()
	if !ok {
		return OutcomeIdle, nil
	}
	now := l.clock.Now()
	if head.BackingOff(now.UnixMilli()) {
		return OutcomeWaiting, nil
	}

	// rr is stamped once, on the first real attempt.
	if head.Params == nil {
		head.Params = make(map[string]string)
	}
	if _, stamped := head.Params[model.ParamRemaining]; !stamped {
		head.Params[model.ParamRemaining] = strconv.Itoa(l.queue.Len())
		l.queue.UpdateHead(ctx, head)
	}

	req := Prepared{
		Method: http.MethodPost,
		Path:   PathIngest,
		Params: Sign(head.Values(), l.salt),
	}
	resp, err := l.transport.Send(ctx, req)
	duration := l.clock.Now().Sub(now)
	l.metrics.ObserveDeliveryDuration(duration)

	record := Attempt{
		RequestID: head.ID,
		Kind:      head.Kind,
		Attempt:   head.Attempts + 1,
		At:        now,
		Duration:  duration,
	}

	if err != nil {
		if ctx.Err() != nil {
			// Cancelled by the caller; the head is left untouched.
			return OutcomeIdle, ctx.Err()
		}
		record.Error = err.Error()
		return l.fail(ctx, head, record, err)
	}
	record.Status = resp.Status

	if !is2xx(resp.Status) {
		return l.fail(ctx, head, record, fmt.Errorf("collector returned HTTP %d", resp.Status))
	}

	l.queue.RemoveHead(ctx, head.ID)
	l.metrics.SetRequestQueueDepth(int64(l.queue.Len()))

	if !IsValidStrict(resp.Status, resp.Body) {
		record.Outcome = OutcomeDiscarded
		l.history.add(record)
		l.metrics.IncDelivery(string(OutcomeDiscarded))
		l.logger.Warn("collector acknowledgement malformed, request dropped",
			"request_id", head.ID,
			"kind", head.Kind,
			"http_status", resp.Status,
		)
		return OutcomeDiscarded, ErrInvalidResponse
	}

	record.Outcome = OutcomeDelivered
	l.history.add(record)
	l.metrics.IncDelivery(string(OutcomeDelivered))
	l.logger.Debug("request delivered",
		"request_id", head.ID,
		"kind", head.Kind,
		"http_status", resp.Status,
		"duration_ms", duration.Milliseconds(),
	)

	if head.Trigger && l.onDelivered != nil {
		l.onDelivered(head)
	}
	return OutcomeDelivered, nil
}

// fail marks the head for back-off or drops it once exhausted.
func (l *Loop) fail(ctx context.Context, head model.Request, record Attempt, cause error) (Outcome, error) {
	head.Attempts++
	// A trigger whose first send failed never fetches content.
	head.Trigger = false

	if IsExhausted(head.Attempts, l.maxAttempts) {
		l.queue.RemoveHead(ctx, head.ID)
		l.metrics.SetRequestQueueDepth(int64(l.queue.Len()))
		record.Outcome = OutcomeExhausted
		l.history.add(record)
		l.metrics.IncDelivery(string(OutcomeExhausted))
		l.logger.Warn("request dropped after repeated failures",
			"request_id", head.ID,
			"kind", head.Kind,
			"attempt", head.Attempts,
			"error", cause,
		)
		return OutcomeExhausted, cause
	}

	delay := l.backoff.Delay(head.Attempts)
	retryAt := l.clock.Now().Add(delay)
	head.RetryAt = retryAt.UnixMilli()
	l.queue.UpdateHead(ctx, head)

	record.Outcome = OutcomeRetry
	l.history.add(record)
	l.metrics.IncDelivery(string(OutcomeRetry))
	l.logger.Warn("delivery failed",
		"request_id", head.ID,
		"kind", head.Kind,
		"attempt", head.Attempts,
		"retry_at", retryAt,
		"error", cause,
	)
	return OutcomeRetry, cause
}

// IsBusy reports whether err only means another pass was already running.
func IsBusy(err error) bool {
	return errors.Is(err, ErrInFlight)
}
