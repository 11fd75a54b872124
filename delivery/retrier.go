package delivery

import (
	"math/rand/v2"
	"time"
)

// Decision is the outcome of evaluating a delivery attempt.
type Decision int

const (
	// Delivered means the attempt succeeded (2xx).
	Delivered Decision = iota

	// Retry means another attempt should be scheduled with backoff.
	Retry

	// Fail means the attempt hit a non-retryable client error; the
	// delivery is terminal without consuming the remaining retry budget.
	Fail

	// DeadLetter means the retry budget is exhausted; the delivery is
	// terminal and awaits manual review.
	DeadLetter

	// Deactivate means the endpoint asked to be forgotten (410 Gone); the
	// webhook is deactivated and the delivery dead-lettered.
	Deactivate
)

// Result holds the outcome of a single HTTP delivery attempt.
type Result struct {
	StatusCode int
	Error      string
	LatencyMs  int
}

// Retrier owns the retry policy: the decision matrix applied after each
// attempt, and the exponential backoff schedule with jitter.
type Retrier struct {
	base   time.Duration
	cap    time.Duration
	jitter float64
}

// NewRetrier creates a retrier. Backoff for attempt n is base*2^(n-1),
// capped, with a random factor of ±jitter applied (e.g. 0.2 for ±20%).
func NewRetrier(base, capDelay time.Duration, jitter float64) *Retrier {
	if base <= 0 {
		base = 30 * time.Second
	}
	if capDelay < base {
		capDelay = base
	}
	return &Retrier{base: base, cap: capDelay, jitter: jitter}
}

// Decide determines what to do with a delivery after an attempt.
//
// Decision matrix:
//   - 2xx → Delivered
//   - 410 → Deactivate (endpoint is gone for good)
//   - 429 → Retry while budget remains, then DeadLetter
//   - other 400–499 → Fail (a client error will not self-correct)
//   - 500–599 or 0 (timeout/connection error) → Retry while budget
//     remains, then DeadLetter
func (r *Retrier) Decide(res Result, d *Delivery) Decision {
	code := res.StatusCode

	if code >= 200 && code < 300 {
		return Delivered
	}

	if code == 410 {
		return Deactivate
	}

	if code == 429 {
		return r.retryOrDead(d)
	}

	if code >= 400 && code < 500 {
		return Fail
	}

	return r.retryOrDead(d)
}

func (r *Retrier) retryOrDead(d *Delivery) Decision {
	if d.AttemptCount < d.MaxAttempts {
		return Retry
	}
	return DeadLetter
}

// NextRetryAt returns when the attempt after attemptCount should run.
func (r *Retrier) NextRetryAt(attemptCount int) time.Time {
	return time.Now().UTC().Add(r.backoff(attemptCount))
}

// backoff computes the delay after the given attempt, jittered so that a
// burst of failures against one endpoint does not retry in lockstep.
func (r *Retrier) backoff(attemptCount int) time.Duration {
	if attemptCount < 1 {
		attemptCount = 1
	}

	delay := r.base
	for i := 1; i < attemptCount; i++ {
		delay *= 2
		if delay >= r.cap {
			delay = r.cap
			break
		}
	}

	if r.jitter > 0 {
		factor := 1 + r.jitter*(2*rand.Float64()-1)
		delay = time.Duration(float64(delay) * factor)
	}

	return delay
}
