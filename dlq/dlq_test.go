package dlq_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/lojix/backbone/delivery"
	"github.com/lojix/backbone/dlq"
	"github.com/lojix/backbone/id"
	"github.com/lojix/backbone/store/memory"
)

func deadLetter(t *testing.T, st *memory.Store) *delivery.Delivery {
	t.Helper()
	d := delivery.New(id.NewWebhookID(), id.NewEventID(), 6)
	d.Status = delivery.StatusDeadLetter
	d.AttemptCount = 6
	d.LastError = "503 after 6 attempts"
	now := time.Now().UTC()
	d.CompletedAt = &now
	if err := st.Enqueue(context.Background(), d); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	return d
}

func TestReplayCreatesFreshDelivery(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	svc := dlq.NewService(st, nil)

	orig := deadLetter(t, st)

	fresh, err := svc.Replay(ctx, orig.ID)
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}

	if fresh.ID == orig.ID {
		t.Error("replay reused the original delivery ID")
	}
	if fresh.Status != delivery.StatusPending {
		t.Errorf("fresh status = %q, want pending", fresh.Status)
	}
	if fresh.AttemptCount != 0 {
		t.Errorf("fresh AttemptCount = %d, want 0", fresh.AttemptCount)
	}
	if fresh.WebhookID != orig.WebhookID || fresh.EventID != orig.EventID {
		t.Error("replay does not target the original webhook and event")
	}

	// Original keeps its status but records the replay.
	stored, err := st.GetDelivery(ctx, orig.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.Status != delivery.StatusDeadLetter {
		t.Errorf("original status = %q, want dead_letter", stored.Status)
	}
	if stored.ReplayedAt == nil {
		t.Error("original ReplayedAt not set")
	}
}

func TestReplayRejectsNonDeadLetter(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	svc := dlq.NewService(st, nil)

	d := delivery.New(id.NewWebhookID(), id.NewEventID(), 6)
	if err := st.Enqueue(ctx, d); err != nil {
		t.Fatal(err)
	}

	if _, err := svc.Replay(ctx, d.ID); !errors.Is(err, delivery.ErrNotDeadLettered) {
		t.Errorf("Replay error = %v, want ErrNotDeadLettered", err)
	}
}

func TestReplayRangeSkipsAlreadyReplayed(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	svc := dlq.NewService(st, nil)

	first := deadLetter(t, st)
	deadLetter(t, st)

	if _, err := svc.Replay(ctx, first.ID); err != nil {
		t.Fatal(err)
	}

	replayed, err := svc.ReplayRange(ctx, id.Nil, 0)
	if err != nil {
		t.Fatalf("ReplayRange: %v", err)
	}
	if len(replayed) != 1 {
		t.Errorf("ReplayRange replayed %d, want 1 (first already replayed)", len(replayed))
	}
}

func TestListAndCount(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	svc := dlq.NewService(st, nil)

	deadLetter(t, st)
	deadLetter(t, st)
	// A pending delivery must not show up.
	if err := st.Enqueue(ctx, delivery.New(id.NewWebhookID(), id.NewEventID(), 6)); err != nil {
		t.Fatal(err)
	}

	dead, err := svc.List(ctx, delivery.ListOpts{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(dead) != 2 {
		t.Errorf("List returned %d, want 2", len(dead))
	}

	n, err := svc.Count(ctx)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 2 {
		t.Errorf("Count = %d, want 2", n)
	}
}

func TestPurge(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	svc := dlq.NewService(st, nil)

	d := deadLetter(t, st)
	if err := svc.Purge(ctx, d.ID); err != nil {
		t.Fatalf("Purge: %v", err)
	}
	if _, err := st.GetDelivery(ctx, d.ID); !errors.Is(err, delivery.ErrNotFound) {
		t.Errorf("GetDelivery after purge = %v, want ErrNotFound", err)
	}
}
