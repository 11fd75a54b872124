package handlers

import (
	"context"
	"log/slog"
	"math"

	"github.com/lojix/backbone/event"
)

// significantPriceDelta is the relative change above which a price move
// is counted as significant.
const significantPriceDelta = 0.10

// Analytics accumulates daily usage counters from the event stream. It
// observes every event; price changes additionally feed direction and
// significance counters.
type Analytics struct {
	counters CounterSink
	logger   *slog.Logger
}

// NewAnalytics creates the analytics handler.
func NewAnalytics(counters CounterSink, logger *slog.Logger) *Analytics {
	return &Analytics{counters: counters, logger: logger}
}

// Handle records the event in the day bucket of its timestamp.
func (a *Analytics) Handle(ctx context.Context, evt *event.Event) error {
	day := evt.Timestamp.UTC().Format("2006-01-02")

	if err := a.counters.Incr(ctx, day, "events:"+evt.Type, 1); err != nil {
		return err
	}
	if evt.OrgID != "" {
		if err := a.counters.Incr(ctx, day, "org:"+evt.OrgID, 1); err != nil {
			return err
		}
	}

	if evt.Type == "product.price_changed" {
		return a.priceChanged(ctx, day, evt)
	}
	return nil
}

func (a *Analytics) priceChanged(ctx context.Context, day string, evt *event.Event) error {
	oldPrice, okOld := num(evt.Payload, "oldPrice")
	newPrice, okNew := num(evt.Payload, "newPrice")
	if !okOld || !okNew {
		return nil
	}

	counter := "price:increases"
	if newPrice < oldPrice {
		counter = "price:decreases"
	}
	if err := a.counters.Incr(ctx, day, counter, 1); err != nil {
		return err
	}

	if oldPrice > 0 && math.Abs(newPrice-oldPrice)/oldPrice > significantPriceDelta {
		return a.counters.Incr(ctx, day, "price:significant", 1)
	}
	return nil
}

// num reads a payload field as a float, accepting the numeric types a
// JSON round trip or a native publish can produce.
func num(payload map[string]any, key string) (float64, bool) {
	switch v := payload[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}
