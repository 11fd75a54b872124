// Package delivery implements the webhook delivery pipeline: fan-out of
// published events into delivery rows, and the retry-driven worker loop
// that performs the signed HTTP callbacks.
package delivery

import (
	"errors"
	"time"

	"github.com/lojix/backbone/id"
	"github.com/lojix/backbone/internal/entity"
)

// ErrNotDeadLettered is returned by DLQ operations that target a
// delivery which is not in the dead_letter status.
var ErrNotDeadLettered = errors.New("backbone: delivery is not dead-lettered")

// Status is the lifecycle state of a delivery.
type Status string

const (
	// StatusPending means the delivery is awaiting an attempt (first or retry).
	StatusPending Status = "pending"

	// StatusDelivered means the endpoint acknowledged with a 2xx. Terminal.
	StatusDelivered Status = "delivered"

	// StatusFailed means the delivery hit a non-retryable client error
	// (or the webhook disappeared). Terminal, reviewable via the DLQ.
	StatusFailed Status = "failed"

	// StatusDeadLetter means the delivery exhausted its retry budget.
	// Terminal, never auto-retried; only a manual replay re-enqueues it.
	StatusDeadLetter Status = "dead_letter"
)

// Terminal reports whether a status admits no further automatic attempts.
func (s Status) Terminal() bool {
	return s == StatusDelivered || s == StatusFailed || s == StatusDeadLetter
}

// Delivery tracks one event being delivered to one webhook. It is the only
// mutable record in the pipeline; every attempt updates it.
type Delivery struct {
	entity.Entity

	// ID is the unique TypeID for this delivery.
	ID id.ID `json:"id"`

	// WebhookID references the target webhook.
	WebhookID id.ID `json:"webhook_id"`

	// EventID references the event being delivered.
	EventID id.ID `json:"event_id"`

	// Status is the current lifecycle state.
	Status Status `json:"status"`

	// AttemptCount is the number of attempts made so far.
	AttemptCount int `json:"attempt_count"`

	// MaxAttempts is the retry budget before dead-lettering.
	MaxAttempts int `json:"max_attempts"`

	// NextRetryAt is when the next attempt is due. The retry worker polls
	// pending rows where NextRetryAt <= now.
	NextRetryAt time.Time `json:"next_retry_at"`

	// LastAttemptAt is when the most recent attempt started.
	LastAttemptAt *time.Time `json:"last_attempt_at,omitempty"`

	// LastResponseCode is the HTTP status of the most recent attempt.
	LastResponseCode int `json:"last_response_code,omitempty"`

	// LastError is the error message from the most recent failed attempt.
	LastError string `json:"last_error,omitempty"`

	// LastLatencyMs is the latency of the most recent attempt.
	LastLatencyMs int `json:"last_latency_ms,omitempty"`

	// CompletedAt is when the delivery reached a terminal status.
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// ReplayedAt is set on a terminal delivery once an operator replays it.
	ReplayedAt *time.Time `json:"replayed_at,omitempty"`
}

// New creates a pending delivery for the given webhook and event, due
// immediately.
func New(whID, evtID id.ID, maxAttempts int) *Delivery {
	return &Delivery{
		Entity:      entity.New(),
		ID:          id.NewDeliveryID(),
		WebhookID:   whID,
		EventID:     evtID,
		Status:      StatusPending,
		MaxAttempts: maxAttempts,
		NextRetryAt: time.Now().UTC(),
	}
}

// ListOpts configures filtering and pagination for delivery listing.
type ListOpts struct {
	Offset    int
	Limit     int
	Status    *Status
	WebhookID *id.ID
	EventID   *id.ID
}
