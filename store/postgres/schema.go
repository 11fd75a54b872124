package postgres

import "context"

var ddl = []string{
	`CREATE TABLE IF NOT EXISTS backbone_events (
		id             TEXT PRIMARY KEY,
		type           TEXT NOT NULL,
		payload        JSONB NOT NULL,
		ts             TIMESTAMPTZ NOT NULL,
		aggregate_type TEXT NOT NULL,
		aggregate_id   TEXT NOT NULL,
		org_id         TEXT NOT NULL DEFAULT '',
		user_id        TEXT NOT NULL DEFAULT '',
		correlation_id TEXT NOT NULL DEFAULT '',
		sequence       BIGINT NOT NULL,
		inserted_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
		UNIQUE (aggregate_type, aggregate_id, sequence)
	)`,
	`CREATE INDEX IF NOT EXISTS backbone_events_type_ts
		ON backbone_events (type, ts DESC)`,
	`CREATE INDEX IF NOT EXISTS backbone_events_aggregate
		ON backbone_events (aggregate_type, aggregate_id, sequence)`,

	`CREATE TABLE IF NOT EXISTS backbone_webhooks (
		id          TEXT PRIMARY KEY,
		org_id      TEXT NOT NULL,
		url         TEXT NOT NULL,
		secret      TEXT NOT NULL,
		event_types TEXT[] NOT NULL,
		active      BOOLEAN NOT NULL DEFAULT true,
		rate_limit  INT NOT NULL DEFAULT 0,
		created_at  TIMESTAMPTZ NOT NULL,
		updated_at  TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS backbone_webhooks_org
		ON backbone_webhooks (org_id, active)`,

	`CREATE TABLE IF NOT EXISTS backbone_deliveries (
		id                 TEXT PRIMARY KEY,
		webhook_id         TEXT NOT NULL REFERENCES backbone_webhooks (id),
		event_id           TEXT NOT NULL REFERENCES backbone_events (id),
		status             TEXT NOT NULL,
		attempt_count      INT NOT NULL DEFAULT 0,
		max_attempts       INT NOT NULL,
		next_retry_at      TIMESTAMPTZ NOT NULL,
		claimed_until      TIMESTAMPTZ,
		last_attempt_at    TIMESTAMPTZ,
		last_response_code INT NOT NULL DEFAULT 0,
		last_error         TEXT NOT NULL DEFAULT '',
		last_latency_ms    INT NOT NULL DEFAULT 0,
		completed_at       TIMESTAMPTZ,
		replayed_at        TIMESTAMPTZ,
		created_at         TIMESTAMPTZ NOT NULL,
		updated_at         TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS backbone_deliveries_due
		ON backbone_deliveries (next_retry_at)
		WHERE status = 'pending'`,
	`CREATE INDEX IF NOT EXISTS backbone_deliveries_status
		ON backbone_deliveries (status)`,
}

// migrate creates the schema. All statements are idempotent.
func (s *Store) migrate(ctx context.Context) error {
	for _, stmt := range ddl {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
