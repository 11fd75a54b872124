package handlers

import (
	"context"
	"log/slog"

	"github.com/lojix/backbone/event"
)

// CacheInvalidation evicts cached reads made stale by domain events.
// Key layout follows the console's read caches: one key per entity plus
// list keys per store or collection.
type CacheInvalidation struct {
	cache  CacheEvictor
	logger *slog.Logger
}

// NewCacheInvalidation creates the cache invalidation handler.
func NewCacheInvalidation(cache CacheEvictor, logger *slog.Logger) *CacheInvalidation {
	return &CacheInvalidation{cache: cache, logger: logger}
}

// Patterns returns the namespaces whose events touch cached data.
func (c *CacheInvalidation) Patterns() []string {
	return []string{
		"product.*",
		"solicitacao.*",
		"inventory.*",
		"user.updated",
		"store.updated",
	}
}

// Handle maps the event onto the cache keys it invalidates.
func (c *CacheInvalidation) Handle(ctx context.Context, evt *event.Event) error {
	switch evt.AggregateType {
	case "product":
		ean := str(evt.Payload, "ean")
		if err := c.cache.Evict(ctx, "product:"+ean); err != nil {
			return err
		}
		return c.cache.EvictPrefix(ctx, "product:list:")

	case "solicitacao":
		keys := []string{"solicitacao:" + str(evt.Payload, "solicitacaoId")}
		if storeID := str(evt.Payload, "storeId"); storeID != "" {
			keys = append(keys, "solicitacao:store:"+storeID)
		}
		return c.cache.Evict(ctx, keys...)

	case "inventory":
		if storeID := str(evt.Payload, "storeId"); storeID != "" {
			return c.cache.EvictPrefix(ctx, "inventory:store:"+storeID+":")
		}
		return nil

	case "user":
		return c.cache.Evict(ctx, "user:"+str(evt.Payload, "userId"))

	case "store":
		storeID := str(evt.Payload, "storeId")
		if err := c.cache.Evict(ctx, "store:"+storeID); err != nil {
			return err
		}
		return c.cache.EvictPrefix(ctx, "store:"+storeID+":")
	}
	return nil
}
