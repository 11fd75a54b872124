package backbone

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync/atomic"

	"github.com/lojix/backbone/catalog"
	"github.com/lojix/backbone/event"
	"github.com/lojix/backbone/scope"
)

// Handler processes a published event. A sync handler runs inline with
// Publish; its error is reported to the publisher's log but never stops
// other handlers. An async handler runs on the subscription's own
// goroutine.
type Handler func(ctx context.Context, evt *event.Event) error

// DispatchMode selects how a subscription's handler is invoked.
type DispatchMode int

const (
	// Sync runs the handler inline with Publish, after the event is
	// durable. Publish does not return until the handler has.
	Sync DispatchMode = iota

	// Async enqueues the event onto the subscription's buffered queue and
	// returns immediately. Events for one subscription are processed in
	// order; a full queue drops the event with a warning.
	Async
)

// Subscription is a registered handler with its matching pattern.
type Subscription struct {
	ID       string
	Pattern  string
	Name     string
	Mode     DispatchMode
	Priority int

	seq     uint64
	handler Handler
	logger  logSink

	// Async state.
	queue    chan *queued
	quit     chan struct{}
	done     chan struct{}
	stopOnce atomic.Bool
}

type queued struct {
	evt  *event.Event
	org  string
	user string
	corr string
}

type logSink interface {
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// SubscribeOption customizes a subscription.
type SubscribeOption func(*Subscription)

// WithMode sets the dispatch mode. Defaults to Sync.
func WithMode(m DispatchMode) SubscribeOption {
	return func(s *Subscription) { s.Mode = m }
}

// WithPriority orders handlers for the same event; lower runs first.
// Handlers with equal priority run in registration order. Defaults to 0.
func WithPriority(p int) SubscribeOption {
	return func(s *Subscription) { s.Priority = p }
}

// WithName labels the subscription in logs. Defaults to the pattern.
func WithName(name string) SubscribeOption {
	return func(s *Subscription) { s.Name = name }
}

// Subscribe registers a handler for every event whose type matches the
// pattern. The pattern is an exact event type, a wildcard segment form
// like "solicitacao.*", or "*" for all events.
func (b *Backbone) Subscribe(pattern string, h Handler, opts ...SubscribeOption) (*Subscription, error) {
	if h == nil {
		return nil, fmt.Errorf("%w: nil handler", ErrInvalidPattern)
	}
	if !catalog.ValidPattern(pattern) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPattern, pattern)
	}

	b.subMu.Lock()
	defer b.subMu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}

	b.subSeq++
	sub := &Subscription{
		ID:      "sub_" + strconv.FormatUint(b.subSeq, 10),
		Pattern: pattern,
		seq:     b.subSeq,
		handler: h,
		logger:  b.logger,
	}
	for _, opt := range opts {
		opt(sub)
	}
	if sub.Name == "" {
		sub.Name = pattern
	}

	if sub.Mode == Async {
		sub.queue = make(chan *queued, b.config.AsyncQueueSize)
		sub.quit = make(chan struct{})
		sub.done = make(chan struct{})
		go sub.run()
	}

	if isWildcard(pattern) {
		b.wildcard = insertOrdered(b.wildcard, sub)
	} else {
		b.exact[pattern] = insertOrdered(b.exact[pattern], sub)
	}
	b.byID[sub.ID] = sub
	return sub, nil
}

// Unsubscribe removes a subscription. An async subscription finishes
// its queued events before Unsubscribe returns.
func (b *Backbone) Unsubscribe(subscriptionID string) error {
	b.subMu.Lock()
	sub, ok := b.byID[subscriptionID]
	if !ok {
		b.subMu.Unlock()
		return fmt.Errorf("%w: %s", ErrSubscriptionNotFound, subscriptionID)
	}
	delete(b.byID, subscriptionID)
	if isWildcard(sub.Pattern) {
		b.wildcard = removeSub(b.wildcard, sub)
	} else {
		b.exact[sub.Pattern] = removeSub(b.exact[sub.Pattern], sub)
		if len(b.exact[sub.Pattern]) == 0 {
			delete(b.exact, sub.Pattern)
		}
	}
	b.subMu.Unlock()

	sub.stop()
	return nil
}

// Subscriptions returns a snapshot of the registered subscriptions.
func (b *Backbone) Subscriptions() []*Subscription {
	b.subMu.RLock()
	defer b.subMu.RUnlock()
	out := make([]*Subscription, 0, len(b.byID))
	for _, sub := range b.byID {
		out = append(out, sub)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	return out
}

// matching returns the subscriptions interested in eventType, exact
// matches before wildcard matches, each group ordered by priority then
// registration.
func (b *Backbone) matching(eventType string) []*Subscription {
	b.subMu.RLock()
	defer b.subMu.RUnlock()

	exact := b.exact[eventType]
	out := make([]*Subscription, 0, len(exact)+len(b.wildcard))
	out = append(out, exact...)
	for _, sub := range b.wildcard {
		if catalog.Match(sub.Pattern, eventType) {
			out = append(out, sub)
		}
	}
	return out
}

// dispatch runs the event through every matching subscription. Sync
// handlers run inline with panic recovery; async handlers get the event
// enqueued. Subscriber failures never propagate to the publisher.
func (b *Backbone) dispatch(ctx context.Context, evt *event.Event) {
	for _, sub := range b.matching(evt.Type) {
		if sub.Mode == Sync {
			sub.invoke(ctx, evt)
			continue
		}
		sub.enqueue(evt)
	}
}

// invoke runs the handler, recovering panics so one subscriber cannot
// take down the publisher or its peers.
func (s *Subscription) invoke(ctx context.Context, evt *event.Event) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("subscriber panicked",
				"subscription", s.Name, "event_type", evt.Type, "panic", r)
		}
	}()
	if err := s.handler(ctx, evt); err != nil {
		s.logger.Warn("subscriber failed",
			"subscription", s.Name, "event_type", evt.Type, "event_id", evt.ID, "error", err)
	}
}

// enqueue hands the event to the async worker, capturing the publish
// scope so the worker can restore it. A full queue drops the event.
func (s *Subscription) enqueue(evt *event.Event) {
	q := &queued{evt: evt, org: evt.OrgID, user: evt.UserID, corr: evt.CorrelationID}
	select {
	case <-s.quit:
	case s.queue <- q:
	default:
		s.logger.Warn("async queue full, dropping event",
			"subscription", s.Name, "event_type", evt.Type, "event_id", evt.ID)
	}
}

// run is the async worker loop. It drains the queue on stop so already
// accepted events are still processed.
func (s *Subscription) run() {
	defer close(s.done)
	for {
		select {
		case q := <-s.queue:
			ctx := scope.Restore(context.Background(), q.org, q.user, q.corr)
			s.invoke(ctx, q.evt)
		case <-s.quit:
			for {
				select {
				case q := <-s.queue:
					ctx := scope.Restore(context.Background(), q.org, q.user, q.corr)
					s.invoke(ctx, q.evt)
				default:
					return
				}
			}
		}
	}
}

// stop terminates the async worker and waits for it to drain.
func (s *Subscription) stop() {
	if s.Mode != Async {
		return
	}
	if s.stopOnce.CompareAndSwap(false, true) {
		close(s.quit)
	}
	<-s.done
}

func isWildcard(pattern string) bool {
	if pattern == "*" {
		return true
	}
	for i := 0; i < len(pattern); i++ {
		if pattern[i] == '*' {
			return true
		}
	}
	return false
}

func insertOrdered(subs []*Subscription, sub *Subscription) []*Subscription {
	i := sort.Search(len(subs), func(i int) bool {
		if subs[i].Priority != sub.Priority {
			return subs[i].Priority > sub.Priority
		}
		return subs[i].seq > sub.seq
	})
	subs = append(subs, nil)
	copy(subs[i+1:], subs[i:])
	subs[i] = sub
	return subs
}

func removeSub(subs []*Subscription, sub *Subscription) []*Subscription {
	for i, s := range subs {
		if s == sub {
			return append(subs[:i], subs[i+1:]...)
		}
	}
	return subs
}
