// Package backbone provides an event-driven backbone for retail
// operations platforms.
//
// Backbone is a library, not a service. Import it into your application
// to get a typed publish/subscribe bus over a durable event log, with
// webhook fan-out, retry-driven delivery and a dead letter queue.
//
// Key features:
//   - Closed event taxonomy with JSON Schema payload validation
//   - Durable append before any subscriber observes an event
//   - Per-aggregate publish ordering with monotonic timestamps
//   - Sync and async subscriptions with wildcard patterns
//   - HMAC-SHA256 signed webhook deliveries with exponential backoff,
//     per-endpoint rate limiting and a replayable dead letter queue
//   - Memory and PostgreSQL storage backends
//
// Quick start:
//
//	b, err := backbone.New()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	b.Start(ctx)
//
//	b.Subscribe("solicitacao.*", func(ctx context.Context, evt *event.Event) error {
//	    log.Printf("observed %s", evt.Type)
//	    return nil
//	})
//
//	b.Publish(ctx, "solicitacao.created", map[string]any{
//	    "solicitacaoId": "sol_1001",
//	    "storeId":       "store_07",
//	    "ean":           "7891000100103",
//	    "quantity":      12,
//	})
package backbone
