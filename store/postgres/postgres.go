// Package postgres implements the store contract on PostgreSQL via
// pgx. Delivery claiming uses FOR UPDATE SKIP LOCKED so any number of
// engine instances can drain one queue without double delivery.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lojix/backbone/delivery"
	"github.com/lojix/backbone/event"
	"github.com/lojix/backbone/id"
	"github.com/lojix/backbone/store"
	"github.com/lojix/backbone/webhook"
)

const uniqueViolation = "23505"

// Store is the PostgreSQL backend.
type Store struct {
	pool *pgxpool.Pool
}

var _ store.Store = (*Store)(nil)

// New connects to PostgreSQL and creates the schema if missing.
func New(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	s := &Store{pool: pool}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate schema: %w", err)
	}
	return s, nil
}

// Ping verifies the connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the connection pool.
func (s *Store) Close(_ context.Context) error {
	s.pool.Close()
	return nil
}

// Append inserts the event with the next per-aggregate sequence. A
// duplicate ID is a no-op. Concurrent appends to the same aggregate
// from different processes can collide on the sequence unique index, so
// the insert retries a few times on that conflict.
func (s *Store) Append(ctx context.Context, evt *event.Event) error {
	payload, err := json.Marshal(evt.Payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	const q = `
		INSERT INTO backbone_events
			(id, type, payload, ts, aggregate_type, aggregate_id,
			 org_id, user_id, correlation_id, sequence)
		VALUES ($1, $2, $3::jsonb, $4, $5, $6, $7, $8, $9,
			(SELECT COALESCE(MAX(sequence), 0) + 1
			 FROM backbone_events
			 WHERE aggregate_type = $5 AND aggregate_id = $6))
		ON CONFLICT (id) DO NOTHING`

	for attempt := 0; ; attempt++ {
		_, err := s.pool.Exec(ctx, q,
			evt.ID.String(), evt.Type, payload, evt.Timestamp,
			evt.AggregateType, evt.AggregateID,
			evt.OrgID, evt.UserID, evt.CorrelationID)
		if err == nil {
			return nil
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation && attempt < 3 {
			continue
		}
		return fmt.Errorf("append event: %w", err)
	}
}

const eventColumns = `id, type, payload, ts, aggregate_type, aggregate_id,
	org_id, user_id, correlation_id, sequence, inserted_at`

func scanStoredEvent(row pgx.Row) (*event.StoredEvent, error) {
	var (
		stored  event.StoredEvent
		rawID   string
		payload []byte
	)
	err := row.Scan(&rawID, &stored.Type, &payload, &stored.Timestamp,
		&stored.AggregateType, &stored.AggregateID,
		&stored.OrgID, &stored.UserID, &stored.CorrelationID,
		&stored.Sequence, &stored.InsertedAt)
	if err != nil {
		return nil, err
	}
	if stored.ID, err = id.Parse(rawID); err != nil {
		return nil, fmt.Errorf("parse event id: %w", err)
	}
	if err := json.Unmarshal(payload, &stored.Payload); err != nil {
		return nil, fmt.Errorf("unmarshal payload: %w", err)
	}
	return &stored, nil
}

// GetEvent returns an event by ID.
func (s *Store) GetEvent(ctx context.Context, evtID id.ID) (*event.Event, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+eventColumns+` FROM backbone_events WHERE id = $1`,
		evtID.String())
	stored, err := scanStoredEvent(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, event.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get event: %w", err)
	}
	evt := stored.Event
	return &evt, nil
}

func (s *Store) queryEvents(ctx context.Context, q string, args ...any) ([]*event.StoredEvent, error) {
	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*event.StoredEvent
	for rows.Next() {
		stored, err := scanStoredEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, stored)
	}
	return out, rows.Err()
}

// ByAggregate returns one aggregate's history in sequence order.
func (s *Store) ByAggregate(ctx context.Context, aggregateType, aggregateID string, opts event.PageOpts) ([]*event.StoredEvent, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = -1
	}
	out, err := s.queryEvents(ctx, `
		SELECT `+eventColumns+` FROM backbone_events
		WHERE aggregate_type = $1 AND aggregate_id = $2 AND sequence > $3
		ORDER BY sequence
		LIMIT NULLIF($4, -1)`,
		aggregateType, aggregateID, opts.AfterSequence, limit)
	if err != nil {
		return nil, fmt.Errorf("events by aggregate: %w", err)
	}
	return out, nil
}

// ByType returns events of one type.
func (s *Store) ByType(ctx context.Context, eventType string, opts event.QueryOpts) ([]*event.StoredEvent, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = -1
	}
	order := "DESC"
	if opts.Ascending {
		order = "ASC"
	}
	var since time.Time
	if opts.Since != nil {
		since = *opts.Since
	}
	out, err := s.queryEvents(ctx, `
		SELECT `+eventColumns+` FROM backbone_events
		WHERE type = $1 AND ($2::timestamptz IS NULL OR ts >= $2)
		ORDER BY ts `+order+`
		LIMIT NULLIF($3, -1)`,
		eventType, nullTime(since), limit)
	if err != nil {
		return nil, fmt.Errorf("events by type: %w", err)
	}
	return out, nil
}

// Stats counts events per type inside the trailing window.
func (s *Store) Stats(ctx context.Context, window time.Duration) (map[string]int64, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT type, COUNT(*) FROM backbone_events
		WHERE $1 <= 0 OR ts >= now() - ($1 * interval '1 second')
		GROUP BY type`,
		window.Seconds())
	if err != nil {
		return nil, fmt.Errorf("event stats: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int64)
	for rows.Next() {
		var (
			typ string
			n   int64
		)
		if err := rows.Scan(&typ, &n); err != nil {
			return nil, err
		}
		out[typ] = n
	}
	return out, rows.Err()
}

// CreateWebhook persists a webhook.
func (s *Store) CreateWebhook(ctx context.Context, wh *webhook.Webhook) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO backbone_webhooks
			(id, org_id, url, secret, event_types, active, rate_limit, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		wh.ID.String(), wh.OrgID, wh.URL, wh.Secret, wh.EventTypes,
		wh.Active, wh.RateLimit, wh.CreatedAt, wh.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create webhook: %w", err)
	}
	return nil
}

const webhookColumns = `id, org_id, url, secret, event_types, active, rate_limit, created_at, updated_at`

func scanWebhook(row pgx.Row) (*webhook.Webhook, error) {
	var (
		wh    webhook.Webhook
		rawID string
	)
	err := row.Scan(&rawID, &wh.OrgID, &wh.URL, &wh.Secret, &wh.EventTypes,
		&wh.Active, &wh.RateLimit, &wh.CreatedAt, &wh.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if wh.ID, err = id.Parse(rawID); err != nil {
		return nil, fmt.Errorf("parse webhook id: %w", err)
	}
	return &wh, nil
}

// GetWebhook returns a webhook by ID.
func (s *Store) GetWebhook(ctx context.Context, whID id.ID) (*webhook.Webhook, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+webhookColumns+` FROM backbone_webhooks WHERE id = $1`,
		whID.String())
	wh, err := scanWebhook(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, webhook.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get webhook: %w", err)
	}
	return wh, nil
}

// UpdateWebhook replaces a stored webhook.
func (s *Store) UpdateWebhook(ctx context.Context, wh *webhook.Webhook) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE backbone_webhooks
		SET url = $2, secret = $3, event_types = $4, active = $5,
		    rate_limit = $6, updated_at = $7
		WHERE id = $1`,
		wh.ID.String(), wh.URL, wh.Secret, wh.EventTypes,
		wh.Active, wh.RateLimit, wh.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update webhook: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return webhook.ErrNotFound
	}
	return nil
}

// ListWebhooks returns an organization's webhooks, oldest first.
func (s *Store) ListWebhooks(ctx context.Context, orgID string, opts webhook.ListOpts) ([]*webhook.Webhook, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+webhookColumns+` FROM backbone_webhooks
		WHERE org_id = $1 AND ($2::boolean IS NULL OR active = $2)
		ORDER BY created_at, id
		OFFSET $3 LIMIT NULLIF($4, -1)`,
		orgID, opts.Active, opts.Offset, limit)
	if err != nil {
		return nil, fmt.Errorf("list webhooks: %w", err)
	}
	defer rows.Close()

	var out []*webhook.Webhook
	for rows.Next() {
		wh, err := scanWebhook(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, wh)
	}
	return out, rows.Err()
}

// Resolve returns the active webhooks of orgID matching eventType.
// Pattern matching happens in Go; the query narrows to active rows of
// the organization.
func (s *Store) Resolve(ctx context.Context, orgID, eventType string) ([]*webhook.Webhook, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+webhookColumns+` FROM backbone_webhooks
		WHERE org_id = $1 AND active
		ORDER BY id`,
		orgID)
	if err != nil {
		return nil, fmt.Errorf("resolve webhooks: %w", err)
	}
	defer rows.Close()

	var out []*webhook.Webhook
	for rows.Next() {
		wh, err := scanWebhook(rows)
		if err != nil {
			return nil, err
		}
		if wh.Matches(eventType) {
			out = append(out, wh)
		}
	}
	return out, rows.Err()
}

// SetActive toggles a webhook.
func (s *Store) SetActive(ctx context.Context, whID id.ID, active bool) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE backbone_webhooks SET active = $2, updated_at = now() WHERE id = $1`,
		whID.String(), active)
	if err != nil {
		return fmt.Errorf("set webhook active: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return webhook.ErrNotFound
	}
	return nil
}

// Enqueue creates a pending delivery.
func (s *Store) Enqueue(ctx context.Context, d *delivery.Delivery) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO backbone_deliveries
			(id, webhook_id, event_id, status, attempt_count, max_attempts,
			 next_retry_at, last_attempt_at, last_response_code, last_error,
			 last_latency_ms, completed_at, replayed_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		d.ID.String(), d.WebhookID.String(), d.EventID.String(), string(d.Status),
		d.AttemptCount, d.MaxAttempts, d.NextRetryAt, d.LastAttemptAt,
		d.LastResponseCode, d.LastError, d.LastLatencyMs,
		d.CompletedAt, d.ReplayedAt, d.CreatedAt, d.UpdatedAt)
	if err != nil {
		return fmt.Errorf("enqueue delivery: %w", err)
	}
	return nil
}

// EnqueueBatch creates multiple pending deliveries in one round trip.
func (s *Store) EnqueueBatch(ctx context.Context, ds []*delivery.Delivery) error {
	if len(ds) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, d := range ds {
		batch.Queue(`
			INSERT INTO backbone_deliveries
				(id, webhook_id, event_id, status, attempt_count, max_attempts,
				 next_retry_at, last_attempt_at, last_response_code, last_error,
				 last_latency_ms, completed_at, replayed_at, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
			d.ID.String(), d.WebhookID.String(), d.EventID.String(), string(d.Status),
			d.AttemptCount, d.MaxAttempts, d.NextRetryAt, d.LastAttemptAt,
			d.LastResponseCode, d.LastError, d.LastLatencyMs,
			d.CompletedAt, d.ReplayedAt, d.CreatedAt, d.UpdatedAt)
	}
	if err := s.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("enqueue delivery batch: %w", err)
	}
	return nil
}

const deliveryColumns = `id, webhook_id, event_id, status, attempt_count, max_attempts,
	next_retry_at, last_attempt_at, last_response_code, last_error,
	last_latency_ms, completed_at, replayed_at, created_at, updated_at`

func scanDelivery(row pgx.Row) (*delivery.Delivery, error) {
	var (
		d           delivery.Delivery
		rawID       string
		rawWebhook  string
		rawEvent    string
		rawStatus   string
	)
	err := row.Scan(&rawID, &rawWebhook, &rawEvent, &rawStatus,
		&d.AttemptCount, &d.MaxAttempts, &d.NextRetryAt, &d.LastAttemptAt,
		&d.LastResponseCode, &d.LastError, &d.LastLatencyMs,
		&d.CompletedAt, &d.ReplayedAt, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if d.ID, err = id.Parse(rawID); err != nil {
		return nil, fmt.Errorf("parse delivery id: %w", err)
	}
	if d.WebhookID, err = id.Parse(rawWebhook); err != nil {
		return nil, fmt.Errorf("parse webhook id: %w", err)
	}
	if d.EventID, err = id.Parse(rawEvent); err != nil {
		return nil, fmt.Errorf("parse event id: %w", err)
	}
	d.Status = delivery.Status(rawStatus)
	return &d, nil
}

// ClaimDue leases due pending deliveries. SKIP LOCKED keeps concurrent
// workers from claiming the same rows; the claimed_until column makes a
// crashed worker's claim expire.
func (s *Store) ClaimDue(ctx context.Context, limit int, lease time.Duration) ([]*delivery.Delivery, error) {
	rows, err := s.pool.Query(ctx, `
		WITH due AS (
			SELECT id FROM backbone_deliveries
			WHERE status = 'pending'
			  AND next_retry_at <= now()
			  AND (claimed_until IS NULL OR claimed_until <= now())
			ORDER BY next_retry_at
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		UPDATE backbone_deliveries d
		SET claimed_until = now() + ($2 * interval '1 second')
		FROM due
		WHERE d.id = due.id
		RETURNING d.id, d.webhook_id, d.event_id, d.status, d.attempt_count,
			d.max_attempts, d.next_retry_at, d.last_attempt_at,
			d.last_response_code, d.last_error, d.last_latency_ms,
			d.completed_at, d.replayed_at, d.created_at, d.updated_at`,
		limit, lease.Seconds())
	if err != nil {
		return nil, fmt.Errorf("claim due deliveries: %w", err)
	}
	defer rows.Close()

	var out []*delivery.Delivery
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// UpdateDelivery stores the attempt outcome and releases the claim.
func (s *Store) UpdateDelivery(ctx context.Context, d *delivery.Delivery) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE backbone_deliveries
		SET status = $2, attempt_count = $3, next_retry_at = $4,
		    last_attempt_at = $5, last_response_code = $6, last_error = $7,
		    last_latency_ms = $8, completed_at = $9, replayed_at = $10,
		    claimed_until = NULL, updated_at = now()
		WHERE id = $1`,
		d.ID.String(), string(d.Status), d.AttemptCount, d.NextRetryAt,
		d.LastAttemptAt, d.LastResponseCode, d.LastError,
		d.LastLatencyMs, d.CompletedAt, d.ReplayedAt)
	if err != nil {
		return fmt.Errorf("update delivery: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return delivery.ErrNotFound
	}
	return nil
}

// GetDelivery returns a delivery by ID.
func (s *Store) GetDelivery(ctx context.Context, delID id.ID) (*delivery.Delivery, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+deliveryColumns+` FROM backbone_deliveries WHERE id = $1`,
		delID.String())
	d, err := scanDelivery(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, delivery.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get delivery: %w", err)
	}
	return d, nil
}

// ListDeliveries returns deliveries matching opts, newest first.
func (s *Store) ListDeliveries(ctx context.Context, opts delivery.ListOpts) ([]*delivery.Delivery, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = -1
	}
	var (
		status    *string
		webhookID *string
		eventID   *string
	)
	if opts.Status != nil {
		st := string(*opts.Status)
		status = &st
	}
	if opts.WebhookID != nil {
		v := opts.WebhookID.String()
		webhookID = &v
	}
	if opts.EventID != nil {
		v := opts.EventID.String()
		eventID = &v
	}

	rows, err := s.pool.Query(ctx, `
		SELECT `+deliveryColumns+` FROM backbone_deliveries
		WHERE ($1::text IS NULL OR status = $1)
		  AND ($2::text IS NULL OR webhook_id = $2)
		  AND ($3::text IS NULL OR event_id = $3)
		ORDER BY created_at DESC, id
		OFFSET $4 LIMIT NULLIF($5, -1)`,
		status, webhookID, eventID, opts.Offset, limit)
	if err != nil {
		return nil, fmt.Errorf("list deliveries: %w", err)
	}
	defer rows.Close()

	var out []*delivery.Delivery
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// CountByStatus returns the number of deliveries in one status.
func (s *Store) CountByStatus(ctx context.Context, st delivery.Status) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM backbone_deliveries WHERE status = $1`,
		string(st)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count deliveries: %w", err)
	}
	return n, nil
}

// DeleteDelivery removes a delivery permanently.
func (s *Store) DeleteDelivery(ctx context.Context, delID id.ID) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM backbone_deliveries WHERE id = $1`, delID.String())
	if err != nil {
		return fmt.Errorf("delete delivery: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return delivery.ErrNotFound
	}
	return nil
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
