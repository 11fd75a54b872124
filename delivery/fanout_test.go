package delivery_test

import (
	"context"
	"testing"
	"time"

	"github.com/lojix/backbone/delivery"
	"github.com/lojix/backbone/event"
	"github.com/lojix/backbone/id"
	"github.com/lojix/backbone/internal/entity"
	"github.com/lojix/backbone/store/memory"
	"github.com/lojix/backbone/webhook"
)

func newWebhook(orgID string, patterns ...string) *webhook.Webhook {
	return &webhook.Webhook{
		Entity:     entity.New(),
		ID:         id.NewWebhookID(),
		OrgID:      orgID,
		URL:        "http://example.test/hook",
		Secret:     "whsec_test",
		EventTypes: patterns,
		Active:     true,
	}
}

func newEvent(orgID, eventType string) *event.Event {
	return &event.Event{
		ID:            id.NewEventID(),
		Type:          eventType,
		Payload:       map[string]any{"ean": "789"},
		Timestamp:     time.Now().UTC(),
		AggregateType: "product",
		AggregateID:   "789",
		OrgID:         orgID,
	}
}

func TestFanoutEnqueuesMatching(t *testing.T) {
	ctx := context.Background()
	st := memory.New()

	matching := newWebhook("org_1", "product.*")
	exact := newWebhook("org_1", "product.created")
	otherType := newWebhook("org_1", "user.*")
	otherOrg := newWebhook("org_2", "product.*")
	inactive := newWebhook("org_1", "*")
	inactive.Active = false

	for _, wh := range []*webhook.Webhook{matching, exact, otherType, otherOrg, inactive} {
		if err := st.CreateWebhook(ctx, wh); err != nil {
			t.Fatalf("CreateWebhook: %v", err)
		}
	}

	f := delivery.NewFanout(st, delivery.FanoutConfig{MaxAttempts: 6}, nil)
	if err := f.Handle(ctx, newEvent("org_1", "product.created")); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	pending := delivery.StatusPending
	ds, err := st.ListDeliveries(ctx, delivery.ListOpts{Status: &pending})
	if err != nil {
		t.Fatalf("ListDeliveries: %v", err)
	}
	if len(ds) != 2 {
		t.Fatalf("enqueued %d deliveries, want 2", len(ds))
	}
	for _, d := range ds {
		if d.MaxAttempts != 6 {
			t.Errorf("MaxAttempts = %d, want 6", d.MaxAttempts)
		}
		if d.WebhookID == otherOrg.ID || d.WebhookID == otherType.ID || d.WebhookID == inactive.ID {
			t.Errorf("delivery enqueued for non-matching webhook %s", d.WebhookID)
		}
	}
}

func TestFanoutNoMatchesIsNoop(t *testing.T) {
	ctx := context.Background()
	st := memory.New()

	f := delivery.NewFanout(st, delivery.FanoutConfig{MaxAttempts: 6}, nil)
	if err := f.Handle(ctx, newEvent("org_1", "product.created")); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	ds, err := st.ListDeliveries(ctx, delivery.ListOpts{})
	if err != nil {
		t.Fatalf("ListDeliveries: %v", err)
	}
	if len(ds) != 0 {
		t.Fatalf("enqueued %d deliveries, want 0", len(ds))
	}
}

func TestFanoutCacheInvalidation(t *testing.T) {
	ctx := context.Background()
	st := memory.New()

	f := delivery.NewFanout(st, delivery.FanoutConfig{
		MaxAttempts: 6,
		CacheTTL:    time.Minute,
	}, nil)

	// First resolve caches the empty result.
	if err := f.Handle(ctx, newEvent("org_1", "product.created")); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	wh := newWebhook("org_1", "product.*")
	if err := st.CreateWebhook(ctx, wh); err != nil {
		t.Fatalf("CreateWebhook: %v", err)
	}

	// Still served from cache: no delivery yet.
	if err := f.Handle(ctx, newEvent("org_1", "product.created")); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	ds, _ := st.ListDeliveries(ctx, delivery.ListOpts{})
	if len(ds) != 0 {
		t.Fatalf("cached resolve produced %d deliveries, want 0", len(ds))
	}

	f.InvalidateCache()
	if err := f.Handle(ctx, newEvent("org_1", "product.created")); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	ds, _ = st.ListDeliveries(ctx, delivery.ListOpts{})
	if len(ds) != 1 {
		t.Fatalf("after invalidation got %d deliveries, want 1", len(ds))
	}
}
