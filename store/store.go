// Package store defines the composite persistence contract for the
// backbone and hosts its backends. The memory backend is the default
// and suits tests and single-process deployments; the postgres backend
// provides durable multi-process persistence.
package store

import (
	"context"
	"errors"

	"github.com/lojix/backbone/delivery"
	"github.com/lojix/backbone/event"
	"github.com/lojix/backbone/webhook"
)

// ErrClosed is returned by store operations after Close.
var ErrClosed = errors.New("backbone: store closed")

// Store is the full persistence surface: the append-only event log,
// webhook registrations and the delivery queue behind one connection.
type Store interface {
	event.Store
	webhook.Store
	delivery.Store

	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases the backend's resources. The store must not be used
	// after Close returns.
	Close(ctx context.Context) error
}
