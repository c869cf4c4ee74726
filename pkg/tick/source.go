package tick

import (
	"context"
	"time"

	"github.com/golang/glog"
	"github.com/robotalks/disconnect/pkg/irq"
)

// Source raises the clock interrupt from a host ticker.
type Source struct {
	Clock  *Clock
	Raiser irq.Raiser
}

// Name implements framework.Named.
func (s *Source) Name() string {
	return "tick"
}

// Run implements framework.Runnable.
func (s *Source) Run(ctx context.Context) error {
	period := time.Second / time.Duration(s.Clock.HZ)
	glog.V(4).Infof("tick source started, period %v", period)
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.Raiser.Raise(s.Clock.Interrupt)
		}
	}
}
