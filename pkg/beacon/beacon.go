// Package beacon is the client-side telemetry SDK.
//
// An Instance records events, sessions, user details and error reports
// into a persisted Event Queue. A heartbeat flushes that queue into
// self-contained requests on the Request Queue, and a Delivery Loop sends
// them to the collector strictly in order with one attempt in flight.
// Recording calls never return errors; anything rejected is logged and
// dropped.
package beacon

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	"github.com/penshort/beacon/internal/clock"
	"github.com/penshort/beacon/internal/config"
	"github.com/penshort/beacon/internal/content"
	"github.com/penshort/beacon/internal/delivery"
	"github.com/penshort/beacon/internal/filter"
	"github.com/penshort/beacon/internal/limits"
	"github.com/penshort/beacon/internal/metrics"
	"github.com/penshort/beacon/internal/model"
	"github.com/penshort/beacon/internal/queue"
	"github.com/penshort/beacon/internal/storage"
)

// Options supplies collaborators. Every field is optional.
type Options struct {
	// Store backs the queues. When nil one is opened from Config.Storage
	// and closed by Instance.Close.
	Store Store
	// Transport reaches the collector. Defaults to HTTP against Config.URL.
	Transport Transport
	Clock     Clock
	Logger    *slog.Logger
	Metrics   Recorder
	// Displayer receives journey content. Without one, content resolves
	// as soon as it arrives.
	Displayer Displayer
}

// Instance is one SDK instance bound to one app key and namespace.
type Instance struct {
	cfg       *config.SDK
	store     storage.Store
	ownsStore bool
	kv        *storage.Namespaced
	clock     clock.Clock
	logger    *slog.Logger
	metrics   metrics.Recorder
	limits    limits.Limits
	transport delivery.Transport

	events   *queue.EventQueue
	requests *queue.RequestQueue
	consent  *filter.Consent
	behavior *filter.Behavior
	filter   *filter.Filter
	loop     *delivery.Loop
	content  *content.Fetcher
	crumbs   *limits.Breadcrumbs
	userData *UserData

	ctx    context.Context
	cancel context.CancelFunc

	// flushMu serializes every drain of the event queue.
	flushMu sync.Mutex

	mu        sync.Mutex
	deviceID  string
	lastTS    int64
	startedAt time.Time
	timed     map[string]int64
	session   sessionState
	view      viewState
	heartbeat *clock.Timer
	closed    bool
}

// New creates an Instance, restores its persisted state and starts the
// heartbeat.
func New(ctx context.Context, cfg *Config, opts Options) (*Instance, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "sdk.instance", "namespace", cfg.StoragePrefix())

	clk := opts.Clock
	if clk == nil {
		clk = clock.Real()
	}
	recorder := opts.Metrics
	if recorder == nil {
		recorder = metrics.NewNoop()
	}

	store := opts.Store
	ownsStore := false
	if store == nil {
		s, err := storage.Open(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("open storage: %w", err)
		}
		store = s
		ownsStore = true
	}

	transport := opts.Transport
	if transport == nil {
		t, err := delivery.NewHTTPTransport(cfg.URL, cfg.RequestTimeout)
		if err != nil {
			if ownsStore {
				store.Close()
			}
			return nil, err
		}
		transport = t
	}

	kv := storage.WithNamespace(store, cfg.StoragePrefix())
	baseCtx, cancel := context.WithCancel(context.Background())

	i := &Instance{
		cfg:       cfg,
		store:     store,
		ownsStore: ownsStore,
		kv:        kv,
		clock:     clk,
		logger:    logger,
		metrics:   recorder,
		limits:    limits.FromConfig(cfg),
		transport: transport,
		events:    queue.NewEventQueue(ctx, kv, cfg.EventQueueSize, logger),
		requests:  queue.NewRequestQueue(ctx, kv, cfg.QueueSize, logger),
		consent:   filter.NewConsent(ctx, kv, cfg.RequireConsent, logger),
		crumbs:    limits.NewBreadcrumbs(cfg.MaxBreadcrumbCount),
		ctx:       baseCtx,
		cancel:    cancel,
		startedAt: clk.Now(),
		timed:     make(map[string]int64),
	}
	i.userData = &UserData{inst: i, custom: make(map[string]any)}

	i.behavior = filter.NewBehavior(cfg.Behavior)
	i.restoreBehavior(ctx)
	i.filter = filter.New(i.consent, i.behavior)

	i.loop = delivery.NewLoop(i.requests, transport, clk, delivery.Options{
		Salt: cfg.Salt,
		Backoff: delivery.Backoff{
			Base:   cfg.FailTimeout,
			Max:    cfg.MaxBackoff,
			Jitter: delivery.JitterFactor,
		},
		MaxAttempts: cfg.MaxAttempts,
		HistorySize: cfg.HistorySize,
		Offline:     cfg.OfflineMode,
	}, logger, recorder)

	i.content = content.NewFetcher(transport, clk, content.Options{
		RetryDelay:  cfg.ContentRetryDelay,
		MaxAttempts: cfg.ContentMaxAttempts,
		Salt:        cfg.Salt,
		Params:      i.identityParams,
	}, opts.Displayer, logger, recorder)
	i.loop.OnDelivered(i.onTriggerDelivered)

	if err := i.restoreDeviceID(ctx); err != nil {
		i.cancel()
		if ownsStore {
			store.Close()
		}
		return nil, err
	}
	i.restoreSession(ctx)
	i.metrics.SetRequestQueueDepth(int64(i.requests.Len()))

	if cfg.HeartbeatInterval > 0 {
		i.mu.Lock()
		i.heartbeat = clk.AfterFunc(cfg.HeartbeatInterval, i.tick)
		i.mu.Unlock()
	}

	logger.Info("sdk instance started",
		"storage", cfg.Storage,
		"collector", delivery.ExtractHost(cfg.URL),
		"queued_requests", i.requests.Len(),
		"queued_events", i.events.Len(),
	)
	return i, nil
}

// Config returns the configuration the instance was created with.
func (i *Instance) Config() *Config {
	return i.cfg
}

// Close stops the heartbeat and any pending retries, flushes queued events
// into the request queue and releases the store if the instance opened it.
func (i *Instance) Close(ctx context.Context) error {
	i.mu.Lock()
	if i.closed {
		i.mu.Unlock()
		return ErrInstanceClosed
	}
	i.closed = true
	hb := i.heartbeat
	i.heartbeat = nil
	i.mu.Unlock()

	hb.Stop()
	i.content.Close()
	i.loop.Close()
	i.flush(ctx)
	i.cancel()

	i.logger.Info("sdk instance closed", "queued_requests", i.requests.Len())
	if i.ownsStore {
		if err := i.store.Close(); err != nil {
			return fmt.Errorf("close store: %w", err)
		}
	}
	return nil
}

func (i *Instance) isClosed() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.closed
}

// tick is the heartbeat: flush, report session time when due, deliver.
func (i *Instance) tick() {
	if i.isClosed() {
		return
	}
	i.flush(i.ctx)

	i.mu.Lock()
	due := i.session.active && i.cfg.SessionUpdate > 0 &&
		i.clock.Now().UnixMilli()-i.session.lastUpdate >= i.cfg.SessionUpdate.Milliseconds()
	i.mu.Unlock()
	if due {
		i.SessionDuration()
	}

	i.processQueue(i.ctx)

	i.mu.Lock()
	if !i.closed {
		i.heartbeat = i.clock.AfterFunc(i.cfg.HeartbeatInterval, i.tick)
	}
	i.mu.Unlock()
}

// kick schedules an immediate delivery pass.
func (i *Instance) kick() {
	if i.isClosed() {
		return
	}
	i.clock.AfterFunc(0, func() { i.processQueue(i.ctx) })
}

func (i *Instance) processQueue(ctx context.Context) {
	if _, err := i.loop.ProcessQueue(ctx); err != nil && !delivery.IsBusy(err) {
		i.logger.Debug("delivery pass ended", "error", err)
	}
}

func (i *Instance) onTriggerDelivered(r model.Request) {
	if !i.consent.Has(model.FeatureContent) {
		return
	}
	if i.content.Trigger() {
		i.logger.Debug("journey trigger acknowledged, fetching content", "request_id", r.ID)
	}
}

// nextTimestamp returns a unix ms timestamp strictly greater than the
// previous one. Caller must hold i.mu.
func (i *Instance) nextTimestampLocked() int64 {
	now := i.clock.Now().UnixMilli()
	if now <= i.lastTS {
		now = i.lastTS + 1
	}
	i.lastTS = now
	return now
}

func (i *Instance) newID(t time.Time) string {
	return ulid.MustNew(ulid.Timestamp(t), ulid.DefaultEntropy()).String()
}

// identityParams are sent with every collector call.
func (i *Instance) identityParams() url.Values {
	now := i.clock.Now()
	i.mu.Lock()
	deviceID := i.deviceID
	i.mu.Unlock()
	return url.Values{
		model.ParamAppKey:     {i.cfg.AppKey},
		model.ParamDeviceID:   {deviceID},
		model.ParamTimestamp:  {strconv.FormatInt(now.UnixMilli(), 10)},
		model.ParamHour:       {strconv.Itoa(now.Hour())},
		model.ParamDOW:        {strconv.Itoa(int(now.Weekday()))},
		model.ParamSDKName:    {delivery.SDKName},
		model.ParamSDKVersion: {delivery.SDKVersion},
	}
}

// newRequest builds a request carrying the identity params plus extra.
func (i *Instance) newRequest(kind model.RequestKind, extra map[string]string) model.Request {
	now := i.clock.Now()
	params := make(map[string]string, 8+len(extra))
	for k, v := range i.identityParams() {
		params[k] = v[0]
	}
	for k, v := range extra {
		params[k] = v
	}
	return model.Request{
		ID:        i.newID(now),
		Kind:      kind,
		Params:    params,
		CreatedAt: now.UnixMilli(),
	}
}

func (i *Instance) enqueue(ctx context.Context, r model.Request) {
	if dropped := i.requests.Append(ctx, r); dropped > 0 {
		i.metrics.IncDelivery("evicted")
	}
	i.metrics.IncRequestEnqueued(string(r.Kind))
	i.metrics.SetRequestQueueDepth(int64(i.requests.Len()))
	i.logger.Debug("request queued", "request_id", r.ID, "kind", r.Kind)
}

func (i *Instance) restoreDeviceID(ctx context.Context) error {
	id := i.cfg.DeviceID
	if id == "" {
		stored, ok, err := i.kv.Get(ctx, storage.KeyDeviceID)
		if err != nil {
			i.logger.Warn("failed to load device id", "error", err)
		}
		if ok && stored != "" {
			id = stored
		}
	}
	if id == "" {
		id = uuid.NewString()
	}
	if err := i.kv.Set(ctx, storage.KeyDeviceID, id); err != nil {
		return fmt.Errorf("persist device id: %w", err)
	}
	i.mu.Lock()
	i.deviceID = id
	i.mu.Unlock()
	return nil
}

func (i *Instance) restoreBehavior(ctx context.Context) {
	raw, ok, err := i.kv.Get(ctx, storage.KeyBehavior)
	if err != nil {
		i.logger.Warn("failed to load behavior settings", "error", err)
		return
	}
	if !ok {
		return
	}
	var remote model.BehaviorSettings
	if err := json.Unmarshal([]byte(raw), &remote); err != nil {
		i.logger.Warn("discarding corrupt behavior settings", "error", err)
		return
	}
	i.behavior.Update(filter.Merge(i.cfg.Behavior, remote))
}
