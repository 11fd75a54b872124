package backbone

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	"github.com/lojix/backbone/catalog"
	"github.com/lojix/backbone/delivery"
	"github.com/lojix/backbone/dlq"
	"github.com/lojix/backbone/event"
	"github.com/lojix/backbone/observability"
	"github.com/lojix/backbone/store"
	"github.com/lojix/backbone/store/memory"
	"github.com/lojix/backbone/webhook"
)

const aggregateStripes = 64

// Backbone is the composition root. Construct it with New, register
// subscriptions and webhooks, then Start it to run the delivery engine.
type Backbone struct {
	config Config
	logger *slog.Logger

	store     store.Store
	catalog   *catalog.Registry
	extraDefs []catalog.Definition
	validator *catalog.Validator

	webhooks *webhook.Service
	fanout   *delivery.Fanout
	engine   *delivery.Engine
	deadQ    *dlq.Service

	metrics *observability.Metrics
	tracer  *observability.Tracer

	engineDisabled bool

	// Subscription registry. Exact patterns index directly; wildcard
	// patterns are scanned on dispatch.
	subMu    sync.RWMutex
	exact    map[string][]*Subscription
	wildcard []*Subscription
	byID     map[string]*Subscription
	subSeq   uint64
	closed   bool

	// Per-aggregate stripes serialize publishes for the same aggregate.
	stripes [aggregateStripes]sync.Mutex

	// Process-monotonic publish clock.
	clockMu sync.Mutex
	lastTs  time.Time

	started bool
	startMu sync.Mutex
}

// New creates a Backbone. With no options it uses the in-memory store,
// the built-in retail taxonomy and default timings.
func New(opts ...Option) (*Backbone, error) {
	b := &Backbone{
		config: DefaultConfig(),
		logger: slog.Default(),
		exact:  make(map[string][]*Subscription),
		byID:   make(map[string]*Subscription),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.config = b.config.withDefaults()

	if b.store == nil {
		b.store = memory.New()
	}
	if b.catalog == nil {
		b.catalog = catalog.NewRegistry()
		for _, def := range catalog.Builtin() {
			b.catalog.MustRegister(def)
		}
	}
	for _, def := range b.extraDefs {
		if _, err := b.catalog.Register(def); err != nil {
			return nil, fmt.Errorf("register definition %q: %w", def.Name, err)
		}
	}
	b.validator = catalog.NewValidator()

	if b.config.Metrics {
		m, err := observability.NewMetrics()
		if err != nil {
			return nil, fmt.Errorf("init metrics: %w", err)
		}
		b.metrics = m
	}
	if b.config.Tracing {
		b.tracer = observability.NewTracer()
	}

	if err := b.wireServices(); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *Backbone) wireServices() error {
	b.webhooks = webhook.NewService(b.store, b.logger)
	b.deadQ = dlq.NewService(b.store, b.logger)

	b.fanout = delivery.NewFanout(b.store, delivery.FanoutConfig{
		MaxAttempts: b.config.MaxAttempts,
		CacheTTL:    b.config.ResolveCacheTTL,
		Metrics:     b.metrics,
	}, b.logger)

	b.engine = delivery.NewEngine(b.store, delivery.EngineConfig{
		Concurrency:    b.config.DeliveryConcurrency,
		PollInterval:   b.config.PollInterval,
		BatchSize:      b.config.BatchSize,
		RequestTimeout: b.config.RequestTimeout,
		ClaimLease:     b.config.ClaimLease,
		RetryBase:      b.config.RetryBase,
		RetryCap:       b.config.RetryCap,
		RetryJitter:    b.config.RetryJitter,
		Metrics:        b.metrics,
		Tracer:         b.tracer,
	}, b.logger)

	// Webhook fan-out observes every event synchronously so delivery rows
	// exist before Publish returns.
	_, err := b.Subscribe("*", func(ctx context.Context, evt *event.Event) error {
		return b.fanout.Handle(ctx, evt)
	}, WithName("webhook-fanout"), WithPriority(100))
	return err
}

// Start launches the delivery engine. It is a no-op when the engine is
// disabled or already running.
func (b *Backbone) Start(ctx context.Context) error {
	b.startMu.Lock()
	defer b.startMu.Unlock()
	if b.started || b.engineDisabled {
		return nil
	}
	if err := b.store.Ping(ctx); err != nil {
		return fmt.Errorf("store ping: %w", err)
	}
	b.engine.Start(ctx)
	b.started = true
	b.logger.InfoContext(ctx, "backbone started",
		"concurrency", b.config.DeliveryConcurrency,
		"poll_interval", b.config.PollInterval)
	return nil
}

// Stop shuts down the backbone: it stops accepting publishes, drains
// async subscription queues, stops the delivery engine and closes the
// store.
func (b *Backbone) Stop(ctx context.Context) error {
	b.subMu.Lock()
	if b.closed {
		b.subMu.Unlock()
		return nil
	}
	b.closed = true
	subs := make([]*Subscription, 0, len(b.byID))
	for _, sub := range b.byID {
		subs = append(subs, sub)
	}
	b.subMu.Unlock()

	for _, sub := range subs {
		sub.stop()
	}

	b.startMu.Lock()
	if b.started {
		b.engine.Stop(ctx)
		b.started = false
	}
	b.startMu.Unlock()

	err := b.store.Close(ctx)
	b.logger.InfoContext(ctx, "backbone stopped")
	return err
}

// Webhooks exposes webhook registration and management.
func (b *Backbone) Webhooks() *webhook.Service { return b.webhooks }

// DLQ exposes dead letter review and replay.
func (b *Backbone) DLQ() *dlq.Service { return b.deadQ }

// Catalog exposes the event type taxonomy.
func (b *Backbone) Catalog() *catalog.Registry { return b.catalog }

// GetEvent returns a stored event by ID string.
func (b *Backbone) GetEvent(ctx context.Context, eventID string) (*event.Event, error) {
	evtID, err := b.parseEventID(eventID)
	if err != nil {
		return nil, err
	}
	return b.store.GetEvent(ctx, evtID)
}

// EventsByAggregate returns the ordered event history of one aggregate.
func (b *Backbone) EventsByAggregate(ctx context.Context, aggregateType, aggregateID string, opts event.PageOpts) ([]*event.StoredEvent, error) {
	return b.store.ByAggregate(ctx, aggregateType, aggregateID, opts)
}

// EventsByType returns events of one type, newest first by default.
func (b *Backbone) EventsByType(ctx context.Context, eventType string, opts event.QueryOpts) ([]*event.StoredEvent, error) {
	return b.store.ByType(ctx, eventType, opts)
}

// EventStats returns per-type event counts inside the window.
func (b *Backbone) EventStats(ctx context.Context, window time.Duration) (map[string]int64, error) {
	return b.store.Stats(ctx, window)
}

// stripeFor maps an aggregate identity onto one of the publish stripes.
func (b *Backbone) stripeFor(aggregateType, aggregateID string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(aggregateType))
	h.Write([]byte{0})
	h.Write([]byte(aggregateID))
	return &b.stripes[h.Sum32()%aggregateStripes]
}

// nextTimestamp returns a UTC timestamp strictly after every timestamp
// previously handed out by this process.
func (b *Backbone) nextTimestamp() time.Time {
	b.clockMu.Lock()
	defer b.clockMu.Unlock()
	now := time.Now().UTC()
	if !now.After(b.lastTs) {
		now = b.lastTs.Add(time.Nanosecond)
	}
	b.lastTs = now
	return now
}
