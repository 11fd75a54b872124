package delivery

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/lojix/backbone/event"
	"github.com/lojix/backbone/observability"
	"github.com/lojix/backbone/webhook"
)

// FanoutStore is the slice of persistence the fan-out step needs.
type FanoutStore interface {
	Resolve(ctx context.Context, orgID, eventType string) ([]*webhook.Webhook, error)
	EnqueueBatch(ctx context.Context, ds []*Delivery) error
}

// FanoutConfig configures the fan-out subscriber.
type FanoutConfig struct {
	// MaxAttempts is the retry budget stamped on each new delivery.
	MaxAttempts int

	// CacheTTL bounds how stale the webhook resolution cache may be.
	// 0 disables caching.
	CacheTTL time.Duration

	// Metrics is optional.
	Metrics *observability.Metrics
}

// Fanout is the bus subscriber registered on "*". For every published
// event it creates one pending delivery per matching webhook. The HTTP
// work itself happens later on the engine's workers.
type Fanout struct {
	store  FanoutStore
	config FanoutConfig
	logger *slog.Logger

	mu    sync.RWMutex
	cache map[string]fanoutCacheEntry
}

type fanoutCacheEntry struct {
	webhooks []*webhook.Webhook
	expires  time.Time
}

// NewFanout creates the fan-out subscriber.
func NewFanout(store FanoutStore, cfg FanoutConfig, logger *slog.Logger) *Fanout {
	if logger == nil {
		logger = slog.Default()
	}
	return &Fanout{
		store:  store,
		config: cfg,
		logger: logger,
		cache:  make(map[string]fanoutCacheEntry),
	}
}

// Handle is the bus handler. It runs on the publisher's call stack; a
// failure here is logged by the bus and never aborts the publish.
func (f *Fanout) Handle(ctx context.Context, evt *event.Event) error {
	webhooks, err := f.resolve(ctx, evt.OrgID, evt.Type)
	if err != nil {
		return fmt.Errorf("resolve webhooks: %w", err)
	}

	if len(webhooks) == 0 {
		return nil
	}

	now := time.Now().UTC()
	ds := make([]*Delivery, 0, len(webhooks))
	for _, wh := range webhooks {
		d := New(wh.ID, evt.ID, f.config.MaxAttempts)
		d.NextRetryAt = now
		ds = append(ds, d)
	}

	if err := f.store.EnqueueBatch(ctx, ds); err != nil {
		return fmt.Errorf("enqueue deliveries: %w", err)
	}

	if f.config.Metrics != nil {
		f.config.Metrics.AddPending(ctx, int64(len(ds)))
	}

	f.logger.DebugContext(ctx, "deliveries enqueued",
		"event_id", evt.ID, "type", evt.Type, "webhooks", len(ds))

	return nil
}

// resolve returns the active webhooks matching (orgID, eventType),
// serving from the short-TTL cache when fresh.
func (f *Fanout) resolve(ctx context.Context, orgID, eventType string) ([]*webhook.Webhook, error) {
	key := orgID + "\x00" + eventType

	if f.config.CacheTTL > 0 {
		f.mu.RLock()
		entry, ok := f.cache[key]
		f.mu.RUnlock()
		if ok && time.Now().Before(entry.expires) {
			return entry.webhooks, nil
		}
	}

	webhooks, err := f.store.Resolve(ctx, orgID, eventType)
	if err != nil {
		return nil, err
	}

	if f.config.CacheTTL > 0 {
		f.mu.Lock()
		f.cache[key] = fanoutCacheEntry{
			webhooks: webhooks,
			expires:  time.Now().Add(f.config.CacheTTL),
		}
		f.mu.Unlock()
	}

	return webhooks, nil
}

// InvalidateCache clears the resolution cache, forcing fresh store reads.
func (f *Fanout) InvalidateCache() {
	f.mu.Lock()
	f.cache = make(map[string]fanoutCacheEntry)
	f.mu.Unlock()
}
