package backbone

import (
	"log/slog"

	"github.com/lojix/backbone/catalog"
	"github.com/lojix/backbone/store"
)

// Option configures a Backbone at construction time.
type Option func(*Backbone)

// WithStore sets the persistence backend. Defaults to the in-memory
// store when unset.
func WithStore(s store.Store) Option {
	return func(b *Backbone) { b.store = s }
}

// WithLogger sets the structured logger. Defaults to slog.Default.
func WithLogger(l *slog.Logger) Option {
	return func(b *Backbone) {
		if l != nil {
			b.logger = l
		}
	}
}

// WithConfig replaces the whole configuration. Unset fields fall back
// to DefaultConfig.
func WithConfig(cfg Config) Option {
	return func(b *Backbone) { b.config = cfg }
}

// WithCatalog replaces the event type catalog. The built-in retail
// taxonomy is registered when unset.
func WithCatalog(r *catalog.Registry) Option {
	return func(b *Backbone) {
		if r != nil {
			b.catalog = r
		}
	}
}

// WithDefinitions registers extra event type definitions on top of the
// built-in taxonomy.
func WithDefinitions(defs ...catalog.Definition) Option {
	return func(b *Backbone) {
		b.extraDefs = append(b.extraDefs, defs...)
	}
}

// WithoutDeliveryEngine disables the background retry worker. Publishes
// still fan out deliveries; another process is expected to drain them.
func WithoutDeliveryEngine() Option {
	return func(b *Backbone) { b.engineDisabled = true }
}
