package framework

import (
	"context"
	"runtime"

	"github.com/golang/glog"
)

// Loop is the cooperative super-loop. Each iteration polls every registered
// Poller in priority order, then calls Idle. There is no scheduler: a Poller
// which blocks stalls the whole loop.
type Loop struct {
	// Idle is called at the end of every iteration. On the target this
	// enters the CPU sleep mode until the next interrupt; on a host the
	// default yields the processor.
	Idle func()

	pollers [PriorityLevels][]Poller
	iter    uint64
}

// NewLoop creates a Loop.
func NewLoop() *Loop {
	return &Loop{Idle: runtime.Gosched}
}

// Add registers pollers at the given priority level.
func (l *Loop) Add(priorityLevel int, pollers ...Poller) *Loop {
	l.pollers[priorityLevel] = append(l.pollers[priorityLevel], pollers...)
	return l
}

// AddFunc registers a PollFunc at the given priority level.
func (l *Loop) AddFunc(priorityLevel int, fn func(context.Context) error) *Loop {
	return l.Add(priorityLevel, PollFunc(fn))
}

// Iterations returns the number of completed iterations.
func (l *Loop) Iterations() uint64 {
	return l.iter
}

// Run implements Runnable. It returns nil when a Poller returns ErrStop.
func (l *Loop) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err := l.RunIteration(ctx); err != nil {
			if err == ErrStop {
				glog.V(4).Infof("loop stopped after %d iterations", l.iter)
				return nil
			}
			return err
		}
		if l.Idle != nil {
			l.Idle()
		}
	}
}

// RunIteration polls every Poller once.
func (l *Loop) RunIteration(ctx context.Context) error {
	for i := 0; i < PriorityLevels; i++ {
		for _, p := range l.pollers[i] {
			if err := p.Poll(ctx); err != nil {
				return err
			}
		}
	}
	l.iter++
	return nil
}
