// Package webhook manages externally registered HTTP callback endpoints.
package webhook

import (
	"github.com/lojix/backbone/catalog"
	"github.com/lojix/backbone/id"
	"github.com/lojix/backbone/internal/entity"
)

// Webhook is a callback endpoint registered by an organization admin.
// The delivery pipeline treats it as read-only.
type Webhook struct {
	entity.Entity

	// ID is the unique TypeID for this webhook.
	ID id.ID `json:"id"`

	// OrgID is the organization that owns this webhook. Deliveries only
	// fan out to webhooks of the event's organization.
	OrgID string `json:"org_id"`

	// URL is the delivery target.
	URL string `json:"url"`

	// Secret is the HMAC signing secret. Never serialized.
	Secret string `json:"-"`

	// EventTypes are the subscription patterns this endpoint wants
	// (exact types or namespace wildcards like "product.*").
	EventTypes []string `json:"event_types"`

	// Active gates delivery. Deactivated webhooks are kept for audit.
	Active bool `json:"active"`

	// RateLimit caps deliveries per second to this endpoint. 0 = unlimited.
	RateLimit int `json:"rate_limit"`
}

// Matches reports whether the webhook subscribes to the given event type.
func (w *Webhook) Matches(eventType string) bool {
	for _, pattern := range w.EventTypes {
		if catalog.Match(pattern, eventType) {
			return true
		}
	}
	return false
}

// Input is the creation payload for webhooks.
type Input struct {
	// OrgID is the owning organization.
	OrgID string `json:"org_id"`

	// URL is the delivery target.
	URL string `json:"url"`

	// Secret is the HMAC signing secret. Auto-generated if empty.
	Secret string `json:"secret"`

	// EventTypes are the subscription patterns.
	EventTypes []string `json:"event_types"`

	// RateLimit caps deliveries per second. 0 = unlimited.
	RateLimit int `json:"rate_limit"`
}

// ListOpts configures filtering and pagination for webhook listing.
type ListOpts struct {
	Offset int
	Limit  int
	Active *bool
}
