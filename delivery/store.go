package delivery

import (
	"context"
	"errors"
	"time"

	"github.com/lojix/backbone/id"
)

// ErrNotFound is returned when a delivery ID does not exist.
var ErrNotFound = errors.New("backbone: delivery not found")

// Store defines the persistence contract for webhook deliveries.
type Store interface {
	// Enqueue creates a pending delivery.
	Enqueue(ctx context.Context, d *Delivery) error

	// EnqueueBatch creates multiple deliveries at once (event fan-out).
	EnqueueBatch(ctx context.Context, ds []*Delivery) error

	// ClaimDue fetches pending deliveries whose NextRetryAt has passed and
	// leases them for the given duration, so concurrent workers never pick
	// up the same row. A claim that is not resolved by UpdateDelivery
	// before the lease expires becomes claimable again (at-least-once).
	ClaimDue(ctx context.Context, limit int, lease time.Duration) ([]*Delivery, error)

	// UpdateDelivery records the outcome of an attempt and releases the claim.
	UpdateDelivery(ctx context.Context, d *Delivery) error

	// GetDelivery returns a delivery by ID.
	GetDelivery(ctx context.Context, delID id.ID) (*Delivery, error)

	// ListDeliveries returns deliveries matching the options, newest first.
	ListDeliveries(ctx context.Context, opts ListOpts) ([]*Delivery, error)

	// CountByStatus returns the number of deliveries in the given status.
	CountByStatus(ctx context.Context, st Status) (int64, error)

	// DeleteDelivery removes a delivery permanently (DLQ purge).
	DeleteDelivery(ctx context.Context, delID id.ID) error
}
