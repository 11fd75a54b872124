package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/lojix/backbone/delivery"
	"github.com/lojix/backbone/event"
	"github.com/lojix/backbone/id"
	"github.com/lojix/backbone/internal/entity"
	"github.com/lojix/backbone/store"
	"github.com/lojix/backbone/webhook"
)

func evt(eventType, aggregateType, aggregateID string) *event.Event {
	return &event.Event{
		ID:            id.NewEventID(),
		Type:          eventType,
		Payload:       map[string]any{"k": "v"},
		Timestamp:     time.Now().UTC(),
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
	}
}

func TestAppendIdempotent(t *testing.T) {
	ctx := context.Background()
	s := New()

	e := evt("product.created", "product", "789")
	if err := s.Append(ctx, e); err != nil {
		t.Fatalf("Append: %v", err)
	}
	// Same ID again: silent no-op.
	if err := s.Append(ctx, e); err != nil {
		t.Fatalf("duplicate Append: %v", err)
	}

	history, err := s.ByAggregate(ctx, "product", "789", event.PageOpts{})
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 1 {
		t.Errorf("history length = %d, want 1", len(history))
	}
}

func TestPerAggregateSequences(t *testing.T) {
	ctx := context.Background()
	s := New()

	for i := 0; i < 3; i++ {
		if err := s.Append(ctx, evt("product.updated", "product", "a")); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.Append(ctx, evt("product.updated", "product", "b")); err != nil {
		t.Fatal(err)
	}

	aHist, err := s.ByAggregate(ctx, "product", "a", event.PageOpts{})
	if err != nil {
		t.Fatal(err)
	}
	for i, stored := range aHist {
		if stored.Sequence != int64(i+1) {
			t.Errorf("aggregate a sequence[%d] = %d, want %d", i, stored.Sequence, i+1)
		}
	}

	bHist, err := s.ByAggregate(ctx, "product", "b", event.PageOpts{})
	if err != nil {
		t.Fatal(err)
	}
	if len(bHist) != 1 || bHist[0].Sequence != 1 {
		t.Errorf("aggregate b starts at sequence %d, want 1", bHist[0].Sequence)
	}
}

func TestByAggregatePaging(t *testing.T) {
	ctx := context.Background()
	s := New()

	for i := 0; i < 5; i++ {
		if err := s.Append(ctx, evt("user.updated", "user", "u1")); err != nil {
			t.Fatal(err)
		}
	}

	page, err := s.ByAggregate(ctx, "user", "u1", event.PageOpts{AfterSequence: 2, Limit: 2})
	if err != nil {
		t.Fatal(err)
	}
	if len(page) != 2 || page[0].Sequence != 3 || page[1].Sequence != 4 {
		t.Errorf("page = %v events starting at %d", len(page), page[0].Sequence)
	}
}

func TestByType(t *testing.T) {
	ctx := context.Background()
	s := New()

	for i := 0; i < 3; i++ {
		e := evt("user.login", "user", "u1")
		e.Timestamp = time.Now().UTC().Add(time.Duration(i) * time.Second)
		if err := s.Append(ctx, e); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.Append(ctx, evt("user.logout", "user", "u1")); err != nil {
		t.Fatal(err)
	}

	desc, err := s.ByType(ctx, "user.login", event.QueryOpts{})
	if err != nil {
		t.Fatal(err)
	}
	if len(desc) != 3 {
		t.Fatalf("ByType returned %d, want 3", len(desc))
	}
	if desc[0].Timestamp.Before(desc[1].Timestamp) {
		t.Error("default order is not timestamp descending")
	}

	asc, err := s.ByType(ctx, "user.login", event.QueryOpts{Ascending: true, Limit: 2})
	if err != nil {
		t.Fatal(err)
	}
	if len(asc) != 2 || asc[1].Timestamp.Before(asc[0].Timestamp) {
		t.Error("ascending query wrong order or limit")
	}
}

func TestStats(t *testing.T) {
	ctx := context.Background()
	s := New()

	old := evt("user.login", "user", "u1")
	old.Timestamp = time.Now().UTC().Add(-2 * time.Hour)
	if err := s.Append(ctx, old); err != nil {
		t.Fatal(err)
	}
	if err := s.Append(ctx, evt("user.login", "user", "u1")); err != nil {
		t.Fatal(err)
	}
	if err := s.Append(ctx, evt("product.created", "product", "p1")); err != nil {
		t.Fatal(err)
	}

	stats, err := s.Stats(ctx, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if stats["user.login"] != 1 {
		t.Errorf("user.login count = %d, want 1 (old event outside window)", stats["user.login"])
	}
	if stats["product.created"] != 1 {
		t.Errorf("product.created count = %d, want 1", stats["product.created"])
	}
}

func TestClaimDueLease(t *testing.T) {
	ctx := context.Background()
	s := New()

	d := delivery.New(id.NewWebhookID(), id.NewEventID(), 6)
	if err := s.Enqueue(ctx, d); err != nil {
		t.Fatal(err)
	}

	first, err := s.ClaimDue(ctx, 10, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if len(first) != 1 {
		t.Fatalf("first claim got %d, want 1", len(first))
	}

	// Claimed row is invisible until the lease expires or is released.
	second, err := s.ClaimDue(ctx, 10, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if len(second) != 0 {
		t.Fatalf("second claim got %d, want 0", len(second))
	}

	// UpdateDelivery releases the claim; a still-pending row is claimable.
	first[0].NextRetryAt = time.Now().UTC().Add(-time.Second)
	if err := s.UpdateDelivery(ctx, first[0]); err != nil {
		t.Fatal(err)
	}
	third, err := s.ClaimDue(ctx, 10, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if len(third) != 1 {
		t.Fatalf("claim after release got %d, want 1", len(third))
	}
}

func TestClaimDueSkipsFutureAndTerminal(t *testing.T) {
	ctx := context.Background()
	s := New()

	future := delivery.New(id.NewWebhookID(), id.NewEventID(), 6)
	future.NextRetryAt = time.Now().UTC().Add(time.Hour)

	done := delivery.New(id.NewWebhookID(), id.NewEventID(), 6)
	done.Status = delivery.StatusDelivered

	due := delivery.New(id.NewWebhookID(), id.NewEventID(), 6)

	if err := s.EnqueueBatch(ctx, []*delivery.Delivery{future, done, due}); err != nil {
		t.Fatal(err)
	}

	claimed, err := s.ClaimDue(ctx, 10, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if len(claimed) != 1 || claimed[0].ID != due.ID {
		t.Fatalf("claimed %d deliveries, want only the due one", len(claimed))
	}
}

func TestWebhookResolve(t *testing.T) {
	ctx := context.Background()
	s := New()

	wh := &webhook.Webhook{
		Entity:     entity.New(),
		ID:         id.NewWebhookID(),
		OrgID:      "org_1",
		URL:        "http://example.test",
		Secret:     "whsec_x",
		EventTypes: []string{"product.*"},
		Active:     true,
	}
	if err := s.CreateWebhook(ctx, wh); err != nil {
		t.Fatal(err)
	}

	got, err := s.Resolve(ctx, "org_1", "product.created")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("Resolve returned %d, want 1", len(got))
	}

	if err := s.SetActive(ctx, wh.ID, false); err != nil {
		t.Fatal(err)
	}
	got, err = s.Resolve(ctx, "org_1", "product.created")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Errorf("Resolve returned %d after deactivation, want 0", len(got))
	}
}

func TestStoreIsolation(t *testing.T) {
	ctx := context.Background()
	s := New()

	wh := &webhook.Webhook{
		Entity: entity.New(),
		ID:     id.NewWebhookID(),
		OrgID:  "org_1",
		URL:    "http://example.test",
		Active: true,
	}
	if err := s.CreateWebhook(ctx, wh); err != nil {
		t.Fatal(err)
	}

	// Mutating a returned copy must not affect the stored row.
	got, err := s.GetWebhook(ctx, wh.ID)
	if err != nil {
		t.Fatal(err)
	}
	got.URL = "http://mutated.test"

	again, err := s.GetWebhook(ctx, wh.ID)
	if err != nil {
		t.Fatal(err)
	}
	if again.URL != "http://example.test" {
		t.Error("stored webhook mutated through a returned copy")
	}
}

func TestClosedStore(t *testing.T) {
	ctx := context.Background()
	s := New()
	if err := s.Close(ctx); err != nil {
		t.Fatal(err)
	}

	if err := s.Append(ctx, evt("user.login", "user", "u1")); !errors.Is(err, store.ErrClosed) {
		t.Errorf("Append after close = %v, want ErrClosed", err)
	}
	if err := s.Ping(ctx); !errors.Is(err, store.ErrClosed) {
		t.Errorf("Ping after close = %v, want ErrClosed", err)
	}
}
