package event

import (
	"context"
	"errors"
	"time"

	"github.com/lojix/backbone/id"
)

// ErrNotFound is returned when an event ID does not exist in the log.
var ErrNotFound = errors.New("backbone: event not found")

// Store is the append-only event log.
type Store interface {
	// Append durably records an event. It is idempotent on the event ID:
	// re-appending an already-seen ID is a no-op, not an error. The store
	// assigns the per-aggregate sequence number.
	Append(ctx context.Context, evt *Event) error

	// GetEvent returns an event by ID.
	GetEvent(ctx context.Context, evtID id.ID) (*Event, error)

	// ByAggregate returns the history of one aggregate ordered by sequence
	// number, restartable via PageOpts for replay.
	ByAggregate(ctx context.Context, aggregateType, aggregateID string, opts PageOpts) ([]*StoredEvent, error)

	// ByType returns events of one type, timestamp-descending unless
	// QueryOpts says otherwise. Used for analytics backfills.
	ByType(ctx context.Context, eventType string, opts QueryOpts) ([]*StoredEvent, error)

	// Stats returns event counts per type within the trailing window.
	Stats(ctx context.Context, window time.Duration) (map[string]int64, error)
}
