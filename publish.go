package backbone

import (
	"context"
	"fmt"

	"github.com/lojix/backbone/event"
	"github.com/lojix/backbone/id"
	"github.com/lojix/backbone/scope"
	"github.com/lojix/backbone/webhook"
)

// Publish validates the payload against the event type's schema,
// appends the event durably and then dispatches it to matching
// subscribers. It returns the stamped event; when it returns an error
// no subscriber has observed the event.
//
// The aggregate identity is derived from the type's definition, so two
// concurrent publishes about the same aggregate are serialized and
// observed in timestamp order.
func (b *Backbone) Publish(ctx context.Context, eventType string, payload map[string]any) (*event.Event, error) {
	b.subMu.RLock()
	closed := b.closed
	b.subMu.RUnlock()
	if closed {
		return nil, ErrClosed
	}

	def, err := b.catalog.Get(eventType)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEventType, eventType)
	}
	if def.Deprecated {
		return nil, fmt.Errorf("%w: %q", ErrEventTypeDeprecated, eventType)
	}
	if err := b.validator.Validate(def.Schema, payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	aggregateType := def.Aggregate
	aggregateID := aggregateIDFrom(payload, def.AggregateKey)
	orgID, userID, correlationID := scope.Capture(ctx)

	// Publishes for one aggregate are serialized so their timestamps and
	// log sequence agree with real-world order.
	stripe := b.stripeFor(aggregateType, aggregateID)
	stripe.Lock()
	defer stripe.Unlock()

	evt := &event.Event{
		ID:            id.NewEventID(),
		Type:          eventType,
		Payload:       payload,
		Timestamp:     b.nextTimestamp(),
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		OrgID:         orgID,
		UserID:        userID,
		CorrelationID: correlationID,
	}

	if err := b.store.Append(ctx, evt); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEventPersistence, err)
	}
	if b.metrics != nil {
		b.metrics.RecordPublish(ctx, eventType)
	}

	b.dispatch(ctx, evt)
	return evt, nil
}

// RegisterWebhook registers a webhook endpoint scoped to the calling
// organization and invalidates the fan-out resolution cache.
func (b *Backbone) RegisterWebhook(ctx context.Context, in webhook.Input) (*webhook.Webhook, error) {
	wh, err := b.webhooks.Register(ctx, in)
	if err != nil {
		return nil, err
	}
	b.fanout.InvalidateCache()
	return wh, nil
}

// aggregateIDFrom pulls the aggregate identifier out of the payload.
// Numeric identifiers are normalized to their decimal form.
func aggregateIDFrom(payload map[string]any, key string) string {
	if key == "" {
		return ""
	}
	v, ok := payload[key]
	if !ok {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprintf("%v", t)
	}
}

func (b *Backbone) parseEventID(raw string) (id.ID, error) {
	evtID, err := id.ParseWithPrefix(raw, id.PrefixEvent)
	if err != nil {
		return id.Nil, fmt.Errorf("%w: %q", ErrEventNotFound, raw)
	}
	return evtID, nil
}
