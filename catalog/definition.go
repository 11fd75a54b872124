// Package catalog holds the closed, versioned event taxonomy: the set of
// event types producers are allowed to emit, each with its payload schema
// and the aggregate it belongs to.
package catalog

import (
	"encoding/json"
	"time"
)

// Definition is the canonical description of an event type.
type Definition struct {
	// Name is the dot-separated event type, "<domain>.<verb>".
	// Example: "solicitacao.created".
	Name string `json:"name"`

	// Description explains when the event fires.
	Description string `json:"description"`

	// Aggregate is the aggregate type the event is about. Defaults to the
	// domain segment of Name when empty.
	Aggregate string `json:"aggregate,omitempty"`

	// AggregateKey names the payload field holding the aggregate ID.
	// Publish extracts it to stamp the envelope; may be empty for events
	// that are not tied to a specific entity instance.
	AggregateKey string `json:"aggregate_key,omitempty"`

	// Schema is an optional JSON Schema (draft-07) describing the payload.
	// When set, Publish validates the payload against it.
	Schema json.RawMessage `json:"schema,omitempty"`

	// Version is the taxonomy version of this event type, date-based
	// ("2025-06-01"). Schema changes bump the version.
	Version string `json:"version"`

	// Example is an optional example payload for documentation and tests.
	Example json.RawMessage `json:"example,omitempty"`

	// Deprecated marks a type that can no longer be published.
	Deprecated bool `json:"deprecated,omitempty"`

	// DeprecatedAt is when the type was deprecated.
	DeprecatedAt *time.Time `json:"deprecated_at,omitempty"`
}

// Domain returns the namespace segment of the type name
// ("solicitacao" for "solicitacao.created").
func (d *Definition) Domain() string {
	for i := 0; i < len(d.Name); i++ {
		if d.Name[i] == '.' {
			return d.Name[:i]
		}
	}
	return d.Name
}
