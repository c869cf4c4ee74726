package hal

import (
	"errors"
	"runtime"
	"time"
)

// ErrTimeout is returned by a bounded Waiter.
var ErrTimeout = errors.New("wait timeout")

// Waiter busy-waits for a condition.
type Waiter interface {
	// Until polls ready until it reports true or fails.
	Until(ready func() (bool, error)) error
}

// Spin is the polling Waiter. The zero value waits forever, which is what
// the hardware does; Timeout and Limit bound the wait for host use and
// tests.
type Spin struct {
	// Timeout bounds the wall-clock duration of a wait.
	Timeout time.Duration
	// Limit bounds the number of polls.
	Limit int
	// Yield runs between polls, runtime.Gosched when nil.
	Yield func()
}

// Until implements Waiter.
func (s Spin) Until(ready func() (bool, error)) error {
	var deadline time.Time
	if s.Timeout > 0 {
		deadline = time.Now().Add(s.Timeout)
	}
	yield := s.Yield
	if yield == nil {
		yield = runtime.Gosched
	}
	for polls := 1; ; polls++ {
		ok, err := ready()
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		if s.Limit > 0 && polls >= s.Limit {
			return ErrTimeout
		}
		if !deadline.IsZero() && time.Now().After(deadline) {
			return ErrTimeout
		}
		yield()
	}
}
