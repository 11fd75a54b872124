// Package observability wires backbone into OpenTelemetry metrics and traces.
package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/lojix/backbone"

// Metrics holds the metric instruments recorded by the bus and the
// delivery pipeline. Instruments use the global OTel meter provider;
// configure it before calling NewMetrics.
type Metrics struct {
	eventsPublished   metric.Int64Counter
	deliveries        metric.Int64Counter
	deliveryLatency   metric.Float64Histogram
	pendingDeliveries metric.Int64UpDownCounter
	deadLetters       metric.Int64Counter
}

// NewMetrics creates the backbone metric instruments.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)

	eventsPublished, err := meter.Int64Counter("backbone.events.published",
		metric.WithDescription("Number of events published to the bus"),
	)
	if err != nil {
		return nil, err
	}

	deliveries, err := meter.Int64Counter("backbone.deliveries.attempts",
		metric.WithDescription("Number of webhook delivery attempts by resolution"),
	)
	if err != nil {
		return nil, err
	}

	deliveryLatency, err := meter.Float64Histogram("backbone.deliveries.latency",
		metric.WithDescription("Webhook delivery latency in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	pendingDeliveries, err := meter.Int64UpDownCounter("backbone.deliveries.pending",
		metric.WithDescription("Deliveries currently awaiting an attempt"),
	)
	if err != nil {
		return nil, err
	}

	deadLetters, err := meter.Int64Counter("backbone.deliveries.dead_letters",
		metric.WithDescription("Deliveries that exhausted their retry budget"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		eventsPublished:   eventsPublished,
		deliveries:        deliveries,
		deliveryLatency:   deliveryLatency,
		pendingDeliveries: pendingDeliveries,
		deadLetters:       deadLetters,
	}, nil
}

// RecordPublish counts one published event.
func (m *Metrics) RecordPublish(ctx context.Context, eventType string) {
	m.eventsPublished.Add(ctx, 1,
		metric.WithAttributes(attribute.String("event.type", eventType)))
}

// RecordDelivery counts one delivery attempt resolution and its latency.
func (m *Metrics) RecordDelivery(ctx context.Context, status string, latencySeconds float64) {
	m.deliveries.Add(ctx, 1,
		metric.WithAttributes(attribute.String("status", status)))
	m.deliveryLatency.Record(ctx, latencySeconds)
}

// AddPending adjusts the pending deliveries gauge by n (may be negative).
func (m *Metrics) AddPending(ctx context.Context, n int64) {
	m.pendingDeliveries.Add(ctx, n)
}

// RecordDeadLetter counts one dead-lettered delivery.
func (m *Metrics) RecordDeadLetter(ctx context.Context) {
	m.deadLetters.Add(ctx, 1)
}
