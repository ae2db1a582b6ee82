package core

import "fmt"

// CycleLimiter counts the model calls of one turn. It is owned by the
// goroutine running the turn and is not safe for concurrent use.
type CycleLimiter struct {
	max   int
	count int
}

// NewCycleLimiter returns a limiter allowing max cycles; zero or less means
// unlimited.
func NewCycleLimiter(max int) *CycleLimiter {
	return &CycleLimiter{max: max}
}

// Increment starts the next cycle. Starting cycle max+1 fails with an error
// wrapping ErrCycleLimitExceeded; the cycle still counts.
func (l *CycleLimiter) Increment() error {
	l.count++
	if l.max > 0 && l.count > l.max {
		return fmt.Errorf("%w: max %d", ErrCycleLimitExceeded, l.max)
	}
	return nil
}

// Count is the number of cycles started so far.
func (l *CycleLimiter) Count() int { return l.count }

// Remaining is the number of cycles that may still start, or -1 when
// unlimited.
func (l *CycleLimiter) Remaining() int {
	if l.max <= 0 {
		return -1
	}
	return max(l.max-l.count, 0)
}
