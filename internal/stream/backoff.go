package stream

import "time"

// Default backoff configuration values.
const (
	DefaultBackoffInitial = 500 * time.Millisecond
	DefaultBackoffMax     = 30 * time.Second
	DefaultMaxAttempts    = 10
)

// Backoff produces exponentially increasing delays: the delay doubles per
// consecutive failure up to a duration cap, and the attempt count is capped.
// Counters are per instance, never shared, so concurrent streams cannot
// interfere with one another's retry state.
type Backoff struct {
	initial     time.Duration
	max         time.Duration
	maxAttempts int
	current     time.Duration
	attempts    int
}

// NewBackoff creates a backoff with the given initial delay, delay cap and
// attempt cap.
func NewBackoff(initial, max time.Duration, maxAttempts int) *Backoff {
	return &Backoff{
		initial:     initial,
		max:         max,
		maxAttempts: maxAttempts,
		current:     initial,
	}
}

// Next records a failure and returns the delay to wait before the next
// attempt. ok is false once the attempt cap is exhausted; the caller then
// surfaces one terminal error and stops retrying.
func (b *Backoff) Next() (delay time.Duration, ok bool) {
	b.attempts++
	if b.attempts >= b.maxAttempts {
		return 0, false
	}

	delay = b.current
	b.current *= 2
	if b.current > b.max {
		b.current = b.max
	}
	return delay, true
}

// Reset clears the failure streak. Called on every successful transition
// into Connected.
func (b *Backoff) Reset() {
	b.current = b.initial
	b.attempts = 0
}

// Attempts returns the number of consecutive failures recorded.
func (b *Backoff) Attempts() int { return b.attempts }
