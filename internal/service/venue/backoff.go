package venue

import "time"

// Backoff is a linear reconnect schedule: base × min(attempt, capSteps).
type Backoff struct {
	Base        time.Duration
	CapSteps    int
	MaxAttempts int
}

func DefaultBackoff() Backoff {
	return Backoff{Base: 2 * time.Second, CapSteps: 5, MaxAttempts: 10}
}

// Delay returns the wait before the given 1-based attempt.
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if b.CapSteps > 0 && attempt > b.CapSteps {
		attempt = b.CapSteps
	}
	return b.Base * time.Duration(attempt)
}

// Exhausted reports whether attempt is past the limit.
func (b Backoff) Exhausted(attempt int) bool {
	return b.MaxAttempts > 0 && attempt > b.MaxAttempts
}
