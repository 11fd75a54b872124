// Package handlers ships the built-in subscribers of the retail
// console: push notifications, cache invalidation and usage analytics.
// Each handler is constructed with the external collaborators it needs
// and registered on the bus with RegisterAll.
package handlers

import (
	"context"
	"log/slog"

	"github.com/lojix/backbone"
)

// PushSender delivers a push notification to a set of users.
type PushSender interface {
	SendPush(ctx context.Context, userIDs []string, title, body string) error
}

// Directory resolves who should be notified about an event.
type Directory interface {
	// StoreManagers returns the user IDs managing a store.
	StoreManagers(ctx context.Context, storeID string) ([]string, error)

	// Admins returns the platform administrator user IDs.
	Admins(ctx context.Context) ([]string, error)
}

// CacheEvictor invalidates cached reads that an event made stale.
type CacheEvictor interface {
	// Evict removes exact cache keys.
	Evict(ctx context.Context, keys ...string) error

	// EvictPrefix removes every key under a prefix.
	EvictPrefix(ctx context.Context, prefix string) error
}

// CounterSink accumulates daily analytics counters.
type CounterSink interface {
	// Incr adds delta to the named counter inside the given day bucket
	// (formatted 2006-01-02).
	Incr(ctx context.Context, day, counter string, delta int64) error
}

// Collaborators bundles the external services the built-in handlers
// depend on. Nil fields disable the corresponding handler.
type Collaborators struct {
	Push      PushSender
	Directory Directory
	Cache     CacheEvictor
	Counters  CounterSink
}

// RegisterAll wires the built-in handlers onto the bus. Notification
// and cache invalidation run async so slow collaborators never stall a
// publish; analytics also runs async and observes every event.
func RegisterAll(b *backbone.Backbone, c Collaborators, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	if c.Push != nil && c.Directory != nil {
		n := NewNotification(c.Push, c.Directory, logger)
		for _, pattern := range n.Patterns() {
			if _, err := b.Subscribe(pattern, n.Handle,
				backbone.WithMode(backbone.Async),
				backbone.WithName("notification")); err != nil {
				return err
			}
		}
	}

	if c.Cache != nil {
		inv := NewCacheInvalidation(c.Cache, logger)
		for _, pattern := range inv.Patterns() {
			if _, err := b.Subscribe(pattern, inv.Handle,
				backbone.WithMode(backbone.Async),
				backbone.WithName("cache-invalidation"),
				backbone.WithPriority(-10)); err != nil {
				return err
			}
		}
	}

	if c.Counters != nil {
		an := NewAnalytics(c.Counters, logger)
		if _, err := b.Subscribe("*", an.Handle,
			backbone.WithMode(backbone.Async),
			backbone.WithName("analytics")); err != nil {
			return err
		}
	}

	return nil
}
