package capability

import (
	"errors"
	"fmt"
)

// ErrMaxTurnsExceeded is returned when a managed agent keeps requesting tools
// past its turn budget.
var ErrMaxTurnsExceeded = errors.New("exceeded max model turns")

// turnLimiter counts model calls within one Run. A max of 0 means unlimited.
type turnLimiter struct {
	max   int
	count int
}

func newTurnLimiter(max int) *turnLimiter {
	return &turnLimiter{max: max}
}

// Increment records a model call and fails once the budget is exhausted.
func (l *turnLimiter) Increment() error {
	l.count++
	if l.max > 0 && l.count > l.max {
		return fmt.Errorf("%w: %d", ErrMaxTurnsExceeded, l.max)
	}
	return nil
}

// Remaining returns how many calls are left, -1 when unlimited.
func (l *turnLimiter) Remaining() int {
	if l.max == 0 {
		return -1
	}
	return l.max - l.count
}
