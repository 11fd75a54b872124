package delivery

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/lojix/backbone/event"
	"github.com/lojix/backbone/id"
	"github.com/lojix/backbone/observability"
	"github.com/lojix/backbone/ratelimit"
	"github.com/lojix/backbone/webhook"
)

// EngineStore is the slice of persistence the retry worker needs.
type EngineStore interface {
	ClaimDue(ctx context.Context, limit int, lease time.Duration) ([]*Delivery, error)
	UpdateDelivery(ctx context.Context, d *Delivery) error
	GetWebhook(ctx context.Context, whID id.ID) (*webhook.Webhook, error)
	GetEvent(ctx context.Context, evtID id.ID) (*event.Event, error)
	SetActive(ctx context.Context, whID id.ID, active bool) error
}

// EngineConfig holds engine configuration.
type EngineConfig struct {
	Concurrency    int
	PollInterval   time.Duration
	BatchSize      int
	RequestTimeout time.Duration
	ClaimLease     time.Duration
	RetryBase      time.Duration
	RetryCap       time.Duration
	RetryJitter    float64
	Metrics        *observability.Metrics
	Tracer         *observability.Tracer
}

// Engine is the retry-driven worker loop. It polls the store for due
// pending deliveries, claims them, performs the signed HTTP attempt and
// applies the retrier's decision. Multiple engine instances may run
// against the same store; the claim lease prevents double delivery.
type Engine struct {
	store   EngineStore
	sender  *Sender
	retrier *Retrier
	limiter *ratelimit.Limiter
	config  EngineConfig
	logger  *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewEngine creates a delivery engine.
func NewEngine(store EngineStore, cfg EngineConfig, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:   store,
		sender:  NewSender(cfg.RequestTimeout),
		retrier: NewRetrier(cfg.RetryBase, cfg.RetryCap, cfg.RetryJitter),
		limiter: ratelimit.New(),
		config:  cfg,
		logger:  logger,
	}
}

// Start begins the poll loop.
func (e *Engine) Start(ctx context.Context) {
	ctx, e.cancel = context.WithCancel(ctx)

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.pollLoop(ctx)
	}()
}

// Stop cancels the poll loop and waits for in-flight attempts to finish.
func (e *Engine) Stop(_ context.Context) {
	if e.cancel != nil {
		e.cancel()
	}
	e.wg.Wait()
}

// pollLoop periodically claims due deliveries and hands them to workers.
func (e *Engine) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(e.config.PollInterval)
	defer ticker.Stop()

	sem := make(chan struct{}, e.config.Concurrency)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			batch, err := e.store.ClaimDue(ctx, e.config.BatchSize, e.config.ClaimLease)
			if err != nil {
				e.logger.ErrorContext(ctx, "claim due deliveries failed", "error", err)
				continue
			}

			for _, d := range batch {
				select {
				case <-ctx.Done():
					return
				case sem <- struct{}{}:
				}

				e.wg.Add(1)
				go func(del *Delivery) {
					defer e.wg.Done()
					defer func() { <-sem }()
					e.process(ctx, del)
				}(d)
			}
		}
	}
}

// process handles one claimed delivery: load webhook + event, attempt,
// decide, persist the outcome.
func (e *Engine) process(ctx context.Context, d *Delivery) {
	wh, err := e.store.GetWebhook(ctx, d.WebhookID)
	if err != nil {
		e.logger.ErrorContext(ctx, "get webhook failed",
			"delivery_id", d.ID, "webhook_id", d.WebhookID, "error", err)
		e.finish(ctx, d, StatusFailed, "webhook not found")
		return
	}

	// The webhook may have been deactivated after fan-out.
	if !wh.Active {
		e.finish(ctx, d, StatusFailed, "webhook deactivated")
		return
	}

	// Respect the per-webhook rate limit without consuming an attempt.
	if !e.limiter.Allow(wh.ID.String(), wh.RateLimit) {
		d.NextRetryAt = time.Now().UTC().Add(time.Second)
		if err := e.store.UpdateDelivery(ctx, d); err != nil {
			e.logger.ErrorContext(ctx, "reschedule rate-limited delivery failed",
				"delivery_id", d.ID, "error", err)
		}
		return
	}

	evt, err := e.store.GetEvent(ctx, d.EventID)
	if err != nil {
		e.logger.ErrorContext(ctx, "get event failed",
			"delivery_id", d.ID, "event_id", d.EventID, "error", err)
		e.finish(ctx, d, StatusFailed, "event not found")
		return
	}

	var span trace.Span
	if e.config.Tracer != nil {
		ctx, span = e.config.Tracer.StartDeliverySpan(ctx, d.ID.String(), wh.ID.String(), evt.ID.String())
	}

	now := time.Now().UTC()
	d.AttemptCount++
	d.LastAttemptAt = &now

	result := e.sender.Send(ctx, wh, evt, d)

	d.LastError = result.Error
	d.LastResponseCode = result.StatusCode
	d.LastLatencyMs = result.LatencyMs

	latencySeconds := float64(result.LatencyMs) / 1000.0
	decision := e.retrier.Decide(result, d)

	switch decision {
	case Delivered:
		e.complete(d, StatusDelivered)
		if e.config.Metrics != nil {
			e.config.Metrics.RecordDelivery(ctx, "delivered", latencySeconds)
			e.config.Metrics.AddPending(ctx, -1)
		}
		e.logger.DebugContext(ctx, "delivered",
			"delivery_id", d.ID, "status", result.StatusCode, "latency_ms", result.LatencyMs)

	case Retry:
		d.NextRetryAt = e.retrier.NextRetryAt(d.AttemptCount)
		if e.config.Metrics != nil {
			e.config.Metrics.RecordDelivery(ctx, "retried", latencySeconds)
		}
		e.logger.DebugContext(ctx, "retry scheduled",
			"delivery_id", d.ID, "attempt", d.AttemptCount, "next_at", d.NextRetryAt)

	case Fail:
		e.complete(d, StatusFailed)
		if e.config.Metrics != nil {
			e.config.Metrics.RecordDelivery(ctx, "failed", latencySeconds)
			e.config.Metrics.AddPending(ctx, -1)
		}
		e.logger.WarnContext(ctx, "delivery failed permanently",
			"delivery_id", d.ID, "status", result.StatusCode, "error", result.Error)

	case DeadLetter:
		e.complete(d, StatusDeadLetter)
		if e.config.Metrics != nil {
			e.config.Metrics.RecordDelivery(ctx, "dead_letter", latencySeconds)
			e.config.Metrics.AddPending(ctx, -1)
			e.config.Metrics.RecordDeadLetter(ctx)
		}
		e.logger.WarnContext(ctx, "delivery dead-lettered",
			"delivery_id", d.ID, "attempts", d.AttemptCount, "status", result.StatusCode, "error", result.Error)

	case Deactivate:
		e.complete(d, StatusDeadLetter)
		if err := e.store.SetActive(ctx, wh.ID, false); err != nil {
			e.logger.ErrorContext(ctx, "deactivate webhook failed",
				"webhook_id", wh.ID, "error", err)
		}
		e.limiter.Forget(wh.ID.String())
		if e.config.Metrics != nil {
			e.config.Metrics.RecordDelivery(ctx, "dead_letter", latencySeconds)
			e.config.Metrics.AddPending(ctx, -1)
			e.config.Metrics.RecordDeadLetter(ctx)
		}
		e.logger.WarnContext(ctx, "webhook deactivated (410 Gone)",
			"webhook_id", wh.ID, "delivery_id", d.ID)
	}

	if span != nil {
		e.config.Tracer.EndDeliverySpan(span, d.LastResponseCode, d.LastLatencyMs, d.LastError)
	}

	if err := e.store.UpdateDelivery(ctx, d); err != nil {
		e.logger.ErrorContext(ctx, "update delivery failed",
			"delivery_id", d.ID, "error", err)
	}
}

// complete stamps a terminal status on the delivery.
func (e *Engine) complete(d *Delivery, st Status) {
	now := time.Now().UTC()
	d.Status = st
	d.CompletedAt = &now
}

// finish persists a terminal outcome that happened before any HTTP attempt.
func (e *Engine) finish(ctx context.Context, d *Delivery, st Status, reason string) {
	d.LastError = reason
	e.complete(d, st)
	if e.config.Metrics != nil {
		e.config.Metrics.AddPending(ctx, -1)
	}
	if err := e.store.UpdateDelivery(ctx, d); err != nil {
		e.logger.ErrorContext(ctx, "update delivery failed",
			"delivery_id", d.ID, "error", err)
	}
}
