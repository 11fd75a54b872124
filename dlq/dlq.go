// Package dlq exposes review and replay operations over dead-lettered
// deliveries. A dead letter keeps its full attempt history; a replay
// enqueues a fresh pending delivery for the same webhook and event so
// the retry budget starts over.
package dlq

import (
	"context"
	"log/slog"
	"time"

	"github.com/lojix/backbone/delivery"
	"github.com/lojix/backbone/id"
)

// Store is the slice of persistence the DLQ service needs.
type Store interface {
	GetDelivery(ctx context.Context, dID id.ID) (*delivery.Delivery, error)
	ListDeliveries(ctx context.Context, opts delivery.ListOpts) ([]*delivery.Delivery, error)
	UpdateDelivery(ctx context.Context, d *delivery.Delivery) error
	Enqueue(ctx context.Context, d *delivery.Delivery) error
	CountByStatus(ctx context.Context, st delivery.Status) (int64, error)
	DeleteDelivery(ctx context.Context, dID id.ID) error
}

// Service provides dead-letter inspection and replay.
type Service struct {
	store  Store
	logger *slog.Logger
}

// NewService creates a DLQ service.
func NewService(store Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, logger: logger}
}

// List returns dead-lettered deliveries, newest filters applied via opts.
func (s *Service) List(ctx context.Context, opts delivery.ListOpts) ([]*delivery.Delivery, error) {
	st := delivery.StatusDeadLetter
	opts.Status = &st
	return s.store.ListDeliveries(ctx, opts)
}

// Get loads a single dead-lettered delivery with its attempt history.
func (s *Service) Get(ctx context.Context, dID id.ID) (*delivery.Delivery, error) {
	d, err := s.store.GetDelivery(ctx, dID)
	if err != nil {
		return nil, err
	}
	if d.Status != delivery.StatusDeadLetter {
		return nil, delivery.ErrNotDeadLettered
	}
	return d, nil
}

// Replay enqueues a fresh delivery for the dead letter's webhook and
// event. The original keeps its status and records the replay time; the
// new delivery starts with a zero attempt count.
func (s *Service) Replay(ctx context.Context, dID id.ID) (*delivery.Delivery, error) {
	orig, err := s.Get(ctx, dID)
	if err != nil {
		return nil, err
	}

	fresh := delivery.New(orig.WebhookID, orig.EventID, orig.MaxAttempts)
	if err := s.store.Enqueue(ctx, fresh); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	orig.ReplayedAt = &now
	orig.Touch()
	if err := s.store.UpdateDelivery(ctx, orig); err != nil {
		s.logger.WarnContext(ctx, "mark replay on dead letter failed",
			"delivery_id", orig.ID, "error", err)
	}

	s.logger.InfoContext(ctx, "dead letter replayed",
		"original_id", orig.ID, "replay_id", fresh.ID)
	return fresh, nil
}

// ReplayRange replays every dead letter for the given webhook, or for
// all webhooks when whID is the zero id. It returns the fresh
// deliveries it managed to enqueue; the first enqueue error stops the
// sweep.
func (s *Service) ReplayRange(ctx context.Context, whID id.ID, limit int) ([]*delivery.Delivery, error) {
	st := delivery.StatusDeadLetter
	opts := delivery.ListOpts{Status: &st, Limit: limit}
	if !whID.IsNil() {
		opts.WebhookID = &whID
	}
	dead, err := s.store.ListDeliveries(ctx, opts)
	if err != nil {
		return nil, err
	}

	replayed := make([]*delivery.Delivery, 0, len(dead))
	for _, d := range dead {
		if d.ReplayedAt != nil {
			continue
		}
		fresh, err := s.Replay(ctx, d.ID)
		if err != nil {
			return replayed, err
		}
		replayed = append(replayed, fresh)
	}
	return replayed, nil
}

// Purge deletes a dead letter permanently.
func (s *Service) Purge(ctx context.Context, dID id.ID) error {
	if _, err := s.Get(ctx, dID); err != nil {
		return err
	}
	return s.store.DeleteDelivery(ctx, dID)
}

// Count returns the number of dead-lettered deliveries.
func (s *Service) Count(ctx context.Context) (int64, error) {
	return s.store.CountByStatus(ctx, delivery.StatusDeadLetter)
}
