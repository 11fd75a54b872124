package backbone

import (
	"errors"

	"github.com/lojix/backbone/delivery"
	"github.com/lojix/backbone/event"
	"github.com/lojix/backbone/store"
	"github.com/lojix/backbone/webhook"
)

// Sentinel errors returned by backbone operations. Callers should match
// them with errors.Is; most wrap additional context about the failing
// event or subscription.
var (
	// ErrNoStore is returned by New when no store is configured and the
	// default memory store has been disabled.
	ErrNoStore = errors.New("backbone: no store configured")

	// ErrClosed is returned by operations on a backbone that has been
	// shut down.
	ErrClosed = errors.New("backbone: closed")

	// ErrUnknownEventType is returned by Publish when the event type is
	// not part of the registered taxonomy.
	ErrUnknownEventType = errors.New("backbone: unknown event type")

	// ErrEventTypeDeprecated is returned by Publish when the event type
	// has been deprecated in the taxonomy.
	ErrEventTypeDeprecated = errors.New("backbone: event type deprecated")

	// ErrInvalidPayload is returned by Publish when the payload fails
	// schema validation for its event type.
	ErrInvalidPayload = errors.New("backbone: invalid payload")

	// ErrEventPersistence is returned by Publish when the event could not
	// be appended to the store. No handler runs for such an event.
	ErrEventPersistence = errors.New("backbone: event persistence failed")

	// ErrInvalidPattern is returned by Subscribe when the subscription
	// pattern is malformed.
	ErrInvalidPattern = errors.New("backbone: invalid subscription pattern")

	// ErrSubscriptionNotFound is returned by Unsubscribe for an unknown
	// subscription ID.
	ErrSubscriptionNotFound = errors.New("backbone: subscription not found")
)

// Store-level sentinels re-exported for callers that only import the
// root package.
var (
	// ErrEventNotFound is returned when an event ID does not exist.
	ErrEventNotFound = event.ErrNotFound

	// ErrWebhookNotFound is returned when a webhook ID does not exist.
	ErrWebhookNotFound = webhook.ErrNotFound

	// ErrDeliveryNotFound is returned when a delivery ID does not exist.
	ErrDeliveryNotFound = delivery.ErrNotFound

	// ErrStoreClosed is returned by store operations after Close.
	ErrStoreClosed = store.ErrClosed
)
