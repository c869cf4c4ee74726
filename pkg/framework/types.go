package framework

import (
	"context"
	"errors"
)

// Named is an abstraction for things with a name.
type Named interface {
	Name() string
}

// Runnable defines a generic interface for background runners.
type Runnable interface {
	Run(context.Context) error
}

// RunFunc is the func form of Runnable.
type RunFunc func(context.Context) error

// Run implements Runnable.
func (f RunFunc) Run(ctx context.Context) error {
	return f(ctx)
}

// Poller is one step of the cooperative main loop. Poll must return
// promptly; anything long running belongs to a Runnable.
type Poller interface {
	Poll(context.Context) error
}

// PollFunc is the func form of Poller.
type PollFunc func(context.Context) error

// Poll implements Poller.
func (f PollFunc) Poll(ctx context.Context) error {
	return f(ctx)
}

// ErrStop is returned by a Poller to leave the loop without error.
var ErrStop = errors.New("stop")

// PriorityLevels is the total levels of priorities.
const PriorityLevels int = 4

// Predefine priority levels. Pollers at lower levels are polled first in
// every iteration.
const (
	PrLvTop    int = 0
	PrLvNormal int = 1
	PrLvLow    int = 2
	PrLvIdle   int = PriorityLevels - 1
)
