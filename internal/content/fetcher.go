// Package content fetches the content block that follows an acknowledged
// journey-trigger request.
//
// A Fetcher is either idle, pending (attempts in progress) or displaying.
// Only an idle Fetcher accepts a trigger. Attempts that come back without
// displayable content are retried after a fixed delay up to a maximum
// number of attempts, after which the Fetcher silently returns to idle.
package content

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/penshort/beacon/internal/clock"
	"github.com/penshort/beacon/internal/delivery"
	"github.com/penshort/beacon/internal/metrics"
	"github.com/penshort/beacon/internal/model"
)

// State of the fetch lifecycle.
type State int

const (
	StateIdle State = iota
	StatePending
	StateDisplaying
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateDisplaying:
		return "displaying"
	default:
		return "idle"
	}
}

// Defaults used when Options leave a field zero.
const (
	DefaultRetryDelay  = time.Second
	DefaultMaxAttempts = 3
)

// Displayer hands fetched content to the host. resolve must be called once
// the content is dismissed; until then new triggers are ignored.
type Displayer interface {
	Display(c model.Content, resolve func())
}

// DisplayerFunc adapts a function to Displayer.
type DisplayerFunc func(c model.Content, resolve func())

// Display calls f.
func (f DisplayerFunc) Display(c model.Content, resolve func()) { f(c, resolve) }

// Options tune a Fetcher.
type Options struct {
	RetryDelay  time.Duration
	MaxAttempts int
	Salt        string
	// Params returns the identity params sent with each fetch.
	Params func() url.Values
}

// Fetcher runs the content fetch state machine.
type Fetcher struct {
	transport delivery.Transport
	clock     clock.Clock
	display   Displayer
	logger    *slog.Logger
	metrics   metrics.Recorder
	opts      Options

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	state  State
	timer  *clock.Timer
	gen    uint64
	closed bool
}

// NewFetcher creates an idle Fetcher. A nil display resolves content as
// soon as it arrives.
func NewFetcher(transport delivery.Transport, clk clock.Clock, opts Options, display Displayer, logger *slog.Logger, recorder metrics.Recorder) *Fetcher {
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = DefaultRetryDelay
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.Params == nil {
		opts.Params = func() url.Values { return url.Values{} }
	}
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Fetcher{
		transport: transport,
		clock:     clk,
		display:   display,
		logger:    logger.With("component", "content.fetcher"),
		metrics:   recorder,
		opts:      opts,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// State returns the current lifecycle state.
func (f *Fetcher) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Trigger starts a fetch. It reports false and does nothing unless the
// Fetcher is idle.
func (f *Fetcher) Trigger() bool {
	f.mu.Lock()
	if f.closed || f.state != StateIdle {
		state := f.state
		f.mu.Unlock()
		f.logger.Debug("content trigger ignored", "state", state.String())
		return false
	}
	f.state = StatePending
	f.gen++
	gen := f.gen
	f.mu.Unlock()

	f.schedule(gen, 0, 1)
	return true
}

// Resolve ends the display phase and returns the Fetcher to idle.
func (f *Fetcher) Resolve() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state == StateDisplaying {
		f.state = StateIdle
	}
}

// Close stops any pending retry. In-flight fetches are cancelled.
func (f *Fetcher) Close() {
	f.mu.Lock()
	f.closed = true
	f.state = StateIdle
	timer := f.timer
	f.timer = nil
	f.mu.Unlock()

	timer.Stop()
	f.cancel()
}

func (f *Fetcher) schedule(gen uint64, delay time.Duration, attempt int) {
	t := f.clock.AfterFunc(delay, func() { f.attempt(gen, attempt) })
	if delay <= 0 {
		// Immediate attempts are cancelled through ctx, not the timer.
		return
	}
	f.mu.Lock()
	if f.gen == gen && !f.closed && f.state == StatePending {
		f.timer = t
	}
	f.mu.Unlock()
}

func (f *Fetcher) current(gen uint64) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.closed && f.gen == gen && f.state == StatePending
}

func (f *Fetcher) attempt(gen uint64, n int) {
	if !f.current(gen) {
		return
	}

	content, err := f.fetch()
	if err == nil {
		f.mu.Lock()
		if f.closed || f.gen != gen {
			f.mu.Unlock()
			return
		}
		f.state = StateDisplaying
		f.timer = nil
		f.mu.Unlock()

		f.metrics.IncContentFetch("success")
		f.logger.Debug("content received", "attempt", n)
		if f.display == nil {
			f.Resolve()
			return
		}
		f.display.Display(content, f.Resolve)
		return
	}

	if n >= f.opts.MaxAttempts {
		f.mu.Lock()
		if f.gen == gen && f.state == StatePending {
			f.state = StateIdle
			f.timer = nil
		}
		f.mu.Unlock()
		f.metrics.IncContentFetch("exhausted")
		f.logger.Debug("content fetch gave up", "attempts", n, "error", err)
		return
	}

	f.metrics.IncContentFetch("retry")
	f.logger.Debug("content fetch retrying", "attempt", n, "error", err)
	f.schedule(gen, f.opts.RetryDelay, n+1)
}

func (f *Fetcher) fetch() (model.Content, error) {
	resp, err := f.transport.Send(f.ctx, delivery.Prepared{
		Method: http.MethodGet,
		Path:   delivery.PathContent,
		Params: delivery.Sign(f.opts.Params(), f.opts.Salt),
	})
	if err != nil {
		return model.Content{}, err
	}
	return Parse(resp.Status, resp.Body)
}

// Parse extracts displayable content from a content endpoint response.
func Parse(status int, body string) (model.Content, error) {
	if !delivery.IsValidBroad(status, body) {
		return model.Content{}, delivery.ErrInvalidResponse
	}
	var c model.Content
	if err := json.Unmarshal([]byte(body), &c); err != nil {
		return model.Content{}, ErrNoContent
	}
	if !c.Valid() {
		return model.Content{}, ErrNoContent
	}
	return c, nil
}
