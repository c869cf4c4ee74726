package framework

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/golang/glog"
)

// ErrForcedExit is returned by Wait when a second stop signal arrives
// before all runners returned.
var ErrForcedExit = errors.New("forced exit")

type namedRunnable struct {
	Runnable
	name string
}

func (r *namedRunnable) Name() string {
	return r.name
}

// NamedRun attaches a name to a Runnable, used in logs.
func NamedRun(name string, runnable Runnable) Runnable {
	return &namedRunnable{Runnable: runnable, name: name}
}

type result struct {
	name string
	err  error
}

// Runner starts Runnables on their own goroutines and collects their
// errors when they return.
type Runner struct {
	ctx     context.Context
	started int
	results chan result
	forced  chan struct{}
}

// NewRunner creates a Runner on the background context.
func NewRunner() *Runner {
	return NewRunnerWith(context.Background())
}

// NewRunnerWith creates a Runner whose Runnables receive ctx.
func NewRunnerWith(ctx context.Context) *Runner {
	return &Runner{
		ctx:     ctx,
		results: make(chan result),
		forced:  make(chan struct{}),
	}
}

// HandleSignals cancels the Runnables on SIGINT or SIGTERM. A second
// signal makes Wait give up with ErrForcedExit.
func (r *Runner) HandleSignals() *Runner {
	ctx, cancel := context.WithCancel(r.ctx)
	r.ctx = ctx
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		glog.Infof("%v: stopping", sig)
		cancel()
		sig = <-sigCh
		glog.Errorf("%v: forced exit", sig)
		close(r.forced)
	}()
	return r
}

// Go starts Runnables with the Runner's context.
func (r *Runner) Go(runnables ...Runnable) *Runner {
	return r.GoWith(r.ctx, runnables...)
}

// GoWith starts Runnables with ctx.
func (r *Runner) GoWith(ctx context.Context, runnables ...Runnable) *Runner {
	for _, runnable := range runnables {
		name := fmt.Sprintf("#%d", r.started)
		if named, ok := runnable.(Named); ok {
			name = named.Name()
		}
		r.started++
		go func(runnable Runnable, name string) {
			glog.V(4).Infof("runner %s: start", name)
			err := runnable.Run(ctx)
			glog.V(4).Infof("runner %s: exit %v", name, err)
			r.results <- result{name: name, err: err}
		}(runnable, name)
	}
	return r
}

// Wait blocks until every started Runnable returned. Cancellation is not
// an error; other errors are aggregated.
func (r *Runner) Wait() error {
	var errs AggregatedError
	for n := 0; n < r.started; n++ {
		select {
		case res := <-r.results:
			if res.err != nil && !errors.Is(res.err, context.Canceled) {
				glog.V(2).Infof("runner %s failed: %v", res.name, res.err)
				errs.Add(res.err)
			}
		case <-r.forced:
			return ErrForcedExit
		}
	}
	return errs.Aggregate()
}

// Run starts runnables and waits for them, stopping on signals.
func Run(ctx context.Context, runnables ...Runnable) error {
	return NewRunnerWith(ctx).HandleSignals().Go(runnables...).Wait()
}

// RunWithContextCancel adapts a blocking fn without context support.
// onCancel, if set, must make fn return; it is only called when ctx is
// done first, in which case context.Canceled is returned.
func RunWithContextCancel(ctx context.Context, onCancel func(), fn func() error) error {
	done := make(chan error, 1)
	go func() { done <- fn() }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
	}
	if onCancel != nil {
		onCancel()
	}
	<-done
	return context.Canceled
}

// RunWithContext is RunWithContextCancel without a cancel hook.
func RunWithContext(ctx context.Context, fn func() error) error {
	return RunWithContextCancel(ctx, nil, fn)
}

// RunWithContextCloser runs fn and closes closer exactly once, either to
// interrupt fn on cancel or after fn returned.
func RunWithContextCloser(ctx context.Context, closer io.Closer, fn func() error) error {
	var once sync.Once
	closeOnce := func() { once.Do(func() { closer.Close() }) }
	defer closeOnce()
	return RunWithContextCancel(ctx, closeOnce, fn)
}
