package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/lojix/backbone"

// Tracer provides OpenTelemetry tracing for delivery attempts.
type Tracer struct {
	tracer trace.Tracer
}

// NewTracer creates a backbone tracer on the global tracer provider.
func NewTracer() *Tracer {
	return &Tracer{
		tracer: otel.Tracer(tracerName),
	}
}

// StartDeliverySpan starts a span for one webhook delivery attempt.
func (t *Tracer) StartDeliverySpan(ctx context.Context, deliveryID, webhookID, eventID string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "backbone.delivery",
		trace.WithAttributes(
			attribute.String("backbone.delivery_id", deliveryID),
			attribute.String("backbone.webhook_id", webhookID),
			attribute.String("backbone.event_id", eventID),
		),
	)
}

// EndDeliverySpan ends a delivery span with the attempt result.
func (t *Tracer) EndDeliverySpan(span trace.Span, statusCode, latencyMs int, errMsg string) {
	span.SetAttributes(
		attribute.Int("http.status_code", statusCode),
		attribute.Int("backbone.latency_ms", latencyMs),
	)
	if errMsg != "" {
		span.SetAttributes(attribute.String("backbone.error", errMsg))
	}
	span.End()
}
