package connection

import "time"

// Backoff is the reconnect delay policy. The zero value is not useful; use DefaultBackoff.
type Backoff struct {
	Base        time.Duration // Delay before the first retry
	Max         time.Duration // Upper bound on any delay
	MaxAttempts int           // Retries allowed before giving up
}

// DefaultBackoff returns 1s doubling to 30s with 10 retries.
func DefaultBackoff() Backoff {
	return Backoff{
		Base:        time.Second,
		Max:         30 * time.Second,
		MaxAttempts: 10,
	}
}

// DelayFor returns min(Base * 2^attempt, Max), where attempt is the number of
// consecutive failures before this retry (0 for the first retry).
func (b Backoff) DelayFor(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	delay := b.Base
	for i := 0; i < attempt; i++ {
		if delay >= b.Max || delay > b.Max/2 {
			return b.Max
		}
		delay *= 2
	}
	if delay > b.Max {
		return b.Max
	}
	return delay
}

// Exhausted reports whether no retry may follow attempt consecutive failures.
func (b Backoff) Exhausted(attempt int) bool {
	return attempt >= b.MaxAttempts
}
