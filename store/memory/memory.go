// Package memory implements the store contract with in-process maps.
// It is the default backend: zero setup, full semantics (idempotent
// append, per-aggregate sequences, delivery claims with leases), but no
// durability across restarts.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/lojix/backbone/delivery"
	"github.com/lojix/backbone/event"
	"github.com/lojix/backbone/id"
	"github.com/lojix/backbone/store"
	"github.com/lojix/backbone/webhook"
)

// Store is the in-memory backend. Safe for concurrent use.
type Store struct {
	mu     sync.RWMutex
	closed bool

	events   map[id.ID]*event.StoredEvent
	eventLog []*event.StoredEvent
	aggSeq   map[string]int64

	webhooks map[id.ID]*webhook.Webhook

	deliveries map[id.ID]*delivery.Delivery
	claims     map[id.ID]time.Time
}

var _ store.Store = (*Store)(nil)

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		events:     make(map[id.ID]*event.StoredEvent),
		aggSeq:     make(map[string]int64),
		webhooks:   make(map[id.ID]*webhook.Webhook),
		deliveries: make(map[id.ID]*delivery.Delivery),
		claims:     make(map[id.ID]time.Time),
	}
}

// Ping reports whether the store is usable.
func (s *Store) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return store.ErrClosed
	}
	return nil
}

// Close marks the store unusable.
func (s *Store) Close(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func aggKey(aggregateType, aggregateID string) string {
	return aggregateType + "\x00" + aggregateID
}

// Append records the event, assigning the next per-aggregate sequence.
// A duplicate event ID is a silent no-op.
func (s *Store) Append(_ context.Context, evt *event.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return store.ErrClosed
	}
	if _, ok := s.events[evt.ID]; ok {
		return nil
	}

	key := aggKey(evt.AggregateType, evt.AggregateID)
	s.aggSeq[key]++
	stored := &event.StoredEvent{
		Event:      *evt,
		Sequence:   s.aggSeq[key],
		InsertedAt: time.Now().UTC(),
	}
	s.events[evt.ID] = stored
	s.eventLog = append(s.eventLog, stored)
	return nil
}

// GetEvent returns an event by ID.
func (s *Store) GetEvent(_ context.Context, evtID id.ID) (*event.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, store.ErrClosed
	}
	stored, ok := s.events[evtID]
	if !ok {
		return nil, event.ErrNotFound
	}
	evt := stored.Event
	return &evt, nil
}

// ByAggregate returns one aggregate's history in sequence order.
func (s *Store) ByAggregate(_ context.Context, aggregateType, aggregateID string, opts event.PageOpts) ([]*event.StoredEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, store.ErrClosed
	}

	var out []*event.StoredEvent
	for _, stored := range s.eventLog {
		if stored.AggregateType != aggregateType || stored.AggregateID != aggregateID {
			continue
		}
		if stored.Sequence <= opts.AfterSequence {
			continue
		}
		cp := *stored
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Sequence < out[j].Sequence })
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

// ByType returns events of one type, timestamp descending by default.
func (s *Store) ByType(_ context.Context, eventType string, opts event.QueryOpts) ([]*event.StoredEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, store.ErrClosed
	}

	var out []*event.StoredEvent
	for _, stored := range s.eventLog {
		if stored.Type != eventType {
			continue
		}
		if opts.Since != nil && stored.Timestamp.Before(*opts.Since) {
			continue
		}
		cp := *stored
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if opts.Ascending {
			return out[i].Timestamp.Before(out[j].Timestamp)
		}
		return out[j].Timestamp.Before(out[i].Timestamp)
	})
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

// Stats counts events per type inside the trailing window.
func (s *Store) Stats(_ context.Context, window time.Duration) (map[string]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, store.ErrClosed
	}

	cutoff := time.Now().UTC().Add(-window)
	out := make(map[string]int64)
	for _, stored := range s.eventLog {
		if window > 0 && stored.Timestamp.Before(cutoff) {
			continue
		}
		out[stored.Type]++
	}
	return out, nil
}

// CreateWebhook persists a webhook.
func (s *Store) CreateWebhook(_ context.Context, wh *webhook.Webhook) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return store.ErrClosed
	}
	cp := cloneWebhook(wh)
	s.webhooks[wh.ID] = cp
	return nil
}

// GetWebhook returns a webhook by ID.
func (s *Store) GetWebhook(_ context.Context, whID id.ID) (*webhook.Webhook, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, store.ErrClosed
	}
	wh, ok := s.webhooks[whID]
	if !ok {
		return nil, webhook.ErrNotFound
	}
	return cloneWebhook(wh), nil
}

// UpdateWebhook replaces a stored webhook.
func (s *Store) UpdateWebhook(_ context.Context, wh *webhook.Webhook) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return store.ErrClosed
	}
	if _, ok := s.webhooks[wh.ID]; !ok {
		return webhook.ErrNotFound
	}
	s.webhooks[wh.ID] = cloneWebhook(wh)
	return nil
}

// ListWebhooks returns an organization's webhooks, oldest first.
func (s *Store) ListWebhooks(_ context.Context, orgID string, opts webhook.ListOpts) ([]*webhook.Webhook, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, store.ErrClosed
	}

	var out []*webhook.Webhook
	for _, wh := range s.webhooks {
		if wh.OrgID != orgID {
			continue
		}
		if opts.Active != nil && wh.Active != *opts.Active {
			continue
		}
		out = append(out, cloneWebhook(wh))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return strings.Compare(out[i].ID.String(), out[j].ID.String()) < 0
	})
	return paginate(out, opts.Offset, opts.Limit), nil
}

// Resolve returns the active webhooks of orgID that match eventType.
func (s *Store) Resolve(_ context.Context, orgID, eventType string) ([]*webhook.Webhook, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, store.ErrClosed
	}

	var out []*webhook.Webhook
	for _, wh := range s.webhooks {
		if wh.OrgID != orgID || !wh.Active {
			continue
		}
		if wh.Matches(eventType) {
			out = append(out, cloneWebhook(wh))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return strings.Compare(out[i].ID.String(), out[j].ID.String()) < 0
	})
	return out, nil
}

// SetActive toggles a webhook without deleting it.
func (s *Store) SetActive(_ context.Context, whID id.ID, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return store.ErrClosed
	}
	wh, ok := s.webhooks[whID]
	if !ok {
		return webhook.ErrNotFound
	}
	wh.Active = active
	wh.Touch()
	return nil
}

// Enqueue creates a pending delivery.
func (s *Store) Enqueue(_ context.Context, d *delivery.Delivery) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return store.ErrClosed
	}
	s.deliveries[d.ID] = cloneDelivery(d)
	return nil
}

// EnqueueBatch creates multiple pending deliveries.
func (s *Store) EnqueueBatch(_ context.Context, ds []*delivery.Delivery) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return store.ErrClosed
	}
	for _, d := range ds {
		s.deliveries[d.ID] = cloneDelivery(d)
	}
	return nil
}

// ClaimDue leases due pending deliveries. A lease that expires without
// an UpdateDelivery makes the row claimable again.
func (s *Store) ClaimDue(_ context.Context, limit int, lease time.Duration) ([]*delivery.Delivery, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, store.ErrClosed
	}

	now := time.Now().UTC()
	var due []*delivery.Delivery
	for _, d := range s.deliveries {
		if d.Status != delivery.StatusPending || d.NextRetryAt.After(now) {
			continue
		}
		if expiry, claimed := s.claims[d.ID]; claimed && expiry.After(now) {
			continue
		}
		due = append(due, d)
	}
	// Oldest due first so starvation cannot happen under load.
	sort.Slice(due, func(i, j int) bool { return due[i].NextRetryAt.Before(due[j].NextRetryAt) })
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}

	out := make([]*delivery.Delivery, 0, len(due))
	for _, d := range due {
		s.claims[d.ID] = now.Add(lease)
		out = append(out, cloneDelivery(d))
	}
	return out, nil
}

// UpdateDelivery stores the attempt outcome and releases the claim.
func (s *Store) UpdateDelivery(_ context.Context, d *delivery.Delivery) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return store.ErrClosed
	}
	if _, ok := s.deliveries[d.ID]; !ok {
		return delivery.ErrNotFound
	}
	s.deliveries[d.ID] = cloneDelivery(d)
	delete(s.claims, d.ID)
	return nil
}

// GetDelivery returns a delivery by ID.
func (s *Store) GetDelivery(_ context.Context, delID id.ID) (*delivery.Delivery, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, store.ErrClosed
	}
	d, ok := s.deliveries[delID]
	if !ok {
		return nil, delivery.ErrNotFound
	}
	return cloneDelivery(d), nil
}

// ListDeliveries returns deliveries matching opts, newest first.
func (s *Store) ListDeliveries(_ context.Context, opts delivery.ListOpts) ([]*delivery.Delivery, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, store.ErrClosed
	}

	var out []*delivery.Delivery
	for _, d := range s.deliveries {
		if opts.Status != nil && d.Status != *opts.Status {
			continue
		}
		if opts.WebhookID != nil && d.WebhookID != *opts.WebhookID {
			continue
		}
		if opts.EventID != nil && d.EventID != *opts.EventID {
			continue
		}
		out = append(out, cloneDelivery(d))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[j].CreatedAt.Before(out[i].CreatedAt)
		}
		return strings.Compare(out[i].ID.String(), out[j].ID.String()) < 0
	})
	return paginate(out, opts.Offset, opts.Limit), nil
}

// CountByStatus returns the number of deliveries in one status.
func (s *Store) CountByStatus(_ context.Context, st delivery.Status) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, store.ErrClosed
	}
	var n int64
	for _, d := range s.deliveries {
		if d.Status == st {
			n++
		}
	}
	return n, nil
}

// DeleteDelivery removes a delivery permanently.
func (s *Store) DeleteDelivery(_ context.Context, delID id.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return store.ErrClosed
	}
	if _, ok := s.deliveries[delID]; !ok {
		return delivery.ErrNotFound
	}
	delete(s.deliveries, delID)
	delete(s.claims, delID)
	return nil
}

func cloneWebhook(wh *webhook.Webhook) *webhook.Webhook {
	cp := *wh
	cp.EventTypes = append([]string(nil), wh.EventTypes...)
	return &cp
}

func cloneDelivery(d *delivery.Delivery) *delivery.Delivery {
	cp := *d
	return &cp
}

func paginate[T any](items []T, offset, limit int) []T {
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}
