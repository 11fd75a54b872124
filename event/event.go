// Package event defines the event envelope shared by every backbone
// component, and the persistence contract of the append-only event log.
package event

import (
	"time"

	"github.com/lojix/backbone/id"
)

// Event is the immutable envelope of something that happened. Once created
// it is never mutated or deleted; corrections are modeled as new events.
type Event struct {
	// ID is the globally unique event ID, the idempotency key downstream.
	ID id.ID `json:"id"`

	// Type is the dot-namespaced event type ("solicitacao.created").
	Type string `json:"type"`

	// Payload is the type-specific body, validated against the taxonomy
	// schema before publish.
	Payload map[string]any `json:"payload"`

	// Timestamp is the creation time, monotonic per process.
	Timestamp time.Time `json:"timestamp"`

	// AggregateType and AggregateID name the entity the event is about.
	// Delivery order is guaranteed only within one aggregate.
	AggregateType string `json:"aggregateType"`
	AggregateID   string `json:"aggregateId"`

	// OrgID and UserID carry tenancy and actor context; empty for
	// system-generated events.
	OrgID  string `json:"orgId,omitempty"`
	UserID string `json:"userId,omitempty"`

	// CorrelationID links a causal chain of events across components.
	CorrelationID string `json:"correlationId,omitempty"`
}

// StoredEvent is the persisted form of an Event: the envelope plus storage
// metadata assigned on append.
type StoredEvent struct {
	Event

	// Sequence is the per-aggregate sequence number, starting at 1.
	Sequence int64 `json:"sequence"`

	// InsertedAt is when the row was appended.
	InsertedAt time.Time `json:"insertedAt"`
}

// PageOpts pages through a per-aggregate history.
type PageOpts struct {
	// AfterSequence resumes after the given sequence number (exclusive).
	AfterSequence int64

	// Limit caps the number of returned events; 0 means no cap.
	Limit int
}

// QueryOpts filters a by-type query.
type QueryOpts struct {
	// Since restricts results to events at or after the given time.
	Since *time.Time

	// Limit caps the number of returned events; 0 means no cap.
	Limit int

	// Ascending orders oldest-first. Default is timestamp descending.
	Ascending bool
}
