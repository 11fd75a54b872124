package webhook

import (
	"context"
	"errors"

	"github.com/lojix/backbone/id"
)

// ErrNotFound is returned when a webhook ID does not exist.
var ErrNotFound = errors.New("backbone: webhook not found")

// Store defines the persistence contract for webhook registrations.
type Store interface {
	// CreateWebhook persists a new webhook.
	CreateWebhook(ctx context.Context, wh *Webhook) error

	// GetWebhook returns a webhook by ID.
	GetWebhook(ctx context.Context, whID id.ID) (*Webhook, error)

	// UpdateWebhook modifies an existing webhook.
	UpdateWebhook(ctx context.Context, wh *Webhook) error

	// ListWebhooks returns the webhooks of an organization.
	ListWebhooks(ctx context.Context, orgID string, opts ListOpts) ([]*Webhook, error)

	// Resolve finds the active webhooks of an organization whose patterns
	// match an event type. Hot path: called on every published event.
	Resolve(ctx context.Context, orgID, eventType string) ([]*Webhook, error)

	// SetActive activates or deactivates a webhook without deleting it.
	SetActive(ctx context.Context, whID id.ID, active bool) error
}
