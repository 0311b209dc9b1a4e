package backoff

import "time"

// Default policy bounds.
const (
	DefaultInitial    = 1 * time.Second
	DefaultMax        = 30 * time.Second
	DefaultMaxRetries = 10
)

// Policy computes the delay before each reconnection attempt.
type Policy struct {
	Initial    time.Duration // delay before the first retry
	Max        time.Duration // cap on the doubled delay
	MaxRetries int           // attempts allowed before giving up
}

// Default returns the standard 1s/30s policy with 10 retries.
func Default() Policy {
	return Policy{
		Initial:    DefaultInitial,
		Max:        DefaultMax,
		MaxRetries: DefaultMaxRetries,
	}
}

// Next returns the delay before retry number attempt (zero-based). ok is
// false once the attempt budget is exhausted; the caller must stop retrying.
func (p Policy) Next(attempt int) (delay time.Duration, ok bool) {
	if attempt >= p.MaxRetries {
		return 0, false
	}

	delay = p.Initial
	for i := 0; i < attempt && delay < p.Max; i++ {
		delay *= 2
	}
	if delay > p.Max {
		delay = p.Max
	}
	return delay, true
}
