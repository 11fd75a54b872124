package backbone

import "time"

// Config holds backbone configuration. Zero fields are filled in from
// DefaultConfig by New.
type Config struct {
	// DeliveryConcurrency is the number of concurrent webhook attempts.
	DeliveryConcurrency int

	// PollInterval is how often the delivery engine checks for due work.
	PollInterval time.Duration

	// BatchSize is the maximum deliveries claimed per poll.
	BatchSize int

	// RequestTimeout bounds a single webhook HTTP attempt.
	RequestTimeout time.Duration

	// ClaimLease is how long a claimed delivery stays invisible to other
	// workers before it becomes claimable again.
	ClaimLease time.Duration

	// MaxAttempts is the per-delivery retry budget before dead-lettering.
	MaxAttempts int

	// RetryBase is the backoff before the first retry. Subsequent retries
	// double it up to RetryCap.
	RetryBase time.Duration

	// RetryCap bounds the backoff between attempts.
	RetryCap time.Duration

	// RetryJitter is the fraction of random spread applied to each
	// backoff, e.g. 0.2 for plus or minus twenty percent.
	RetryJitter float64

	// AsyncQueueSize is the buffered queue depth of each async
	// subscription. A full queue drops new events for that subscriber.
	AsyncQueueSize int

	// ResolveCacheTTL bounds how long webhook fan-out resolution results
	// are cached.
	ResolveCacheTTL time.Duration

	// Tracing enables OpenTelemetry spans around delivery attempts.
	Tracing bool

	// Metrics enables OpenTelemetry instruments for publishes and
	// deliveries.
	Metrics bool
}

// DefaultConfig returns the configuration used when options leave a
// field unset.
func DefaultConfig() Config {
	return Config{
		DeliveryConcurrency: 10,
		PollInterval:        time.Second,
		BatchSize:           50,
		RequestTimeout:      10 * time.Second,
		ClaimLease:          time.Minute,
		MaxAttempts:         6,
		RetryBase:           30 * time.Second,
		RetryCap:            time.Hour,
		RetryJitter:         0.2,
		AsyncQueueSize:      256,
		ResolveCacheTTL:     30 * time.Second,
		Tracing:             true,
		Metrics:             true,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.DeliveryConcurrency <= 0 {
		c.DeliveryConcurrency = def.DeliveryConcurrency
	}
	if c.PollInterval <= 0 {
		c.PollInterval = def.PollInterval
	}
	if c.BatchSize <= 0 {
		c.BatchSize = def.BatchSize
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = def.RequestTimeout
	}
	if c.ClaimLease <= 0 {
		c.ClaimLease = def.ClaimLease
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = def.MaxAttempts
	}
	if c.RetryBase <= 0 {
		c.RetryBase = def.RetryBase
	}
	if c.RetryCap <= 0 {
		c.RetryCap = def.RetryCap
	}
	if c.RetryJitter <= 0 {
		c.RetryJitter = def.RetryJitter
	}
	if c.AsyncQueueSize <= 0 {
		c.AsyncQueueSize = def.AsyncQueueSize
	}
	if c.ResolveCacheTTL <= 0 {
		c.ResolveCacheTTL = def.ResolveCacheTTL
	}
	return c
}
