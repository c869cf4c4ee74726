package firmware

import (
	"context"
	"io"

	"github.com/golang/glog"

	"github.com/robotalks/disconnect/pkg/framework"
	"github.com/robotalks/disconnect/pkg/hal"
	"github.com/robotalks/disconnect/pkg/irq"
	"github.com/robotalks/disconnect/pkg/tick"
	"github.com/robotalks/disconnect/pkg/uart"
)

// Host runs a Board on a host byte stream. The stream stands in for the
// serial port, a host ticker raises the tick interrupt and all interrupts
// are delivered through an irq.Gate.
type Host struct {
	Gate  *irq.Gate
	Ring  *uart.Ring
	Board *Board

	stream io.ReadWriteCloser
}

// NewHost creates a Host.
func NewHost(stream io.ReadWriteCloser, bus hal.SPI, cs hal.Pin, conf Config) *Host {
	h := &Host{Gate: irq.NewGate(), stream: stream}
	h.Ring = uart.NewRing(h.Gate, uart.NewWriterTx(stream))
	h.Board = NewBoard(h.Gate, bus, cs, h.Ring, conf)
	return h
}

// Run implements framework.Runnable. It returns when the stream ends or
// ctx is done; the error is only reported when the board halted.
func (h *Host) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	session := func(name string, r framework.Runnable) framework.Runnable {
		return framework.NamedRun(name, framework.RunFunc(func(ctx context.Context) error {
			defer cancel()
			return r.Run(ctx)
		}))
	}
	var boardErr error
	err := framework.NewRunnerWith(ctx).Go(
		session("tick", &tick.Source{Clock: h.Board.Clock, Raiser: h.Gate}),
		session("uart-rx", &uart.Pump{Reader: h.stream, Raiser: h.Gate, Ring: h.Ring}),
		session("board", framework.RunFunc(func(ctx context.Context) error {
			boardErr = h.Board.Run(ctx)
			return boardErr
		})),
	).Wait()
	if h.Board.Mode() == ModeHalted {
		return boardErr
	}
	if err != nil {
		glog.V(2).Infof("host: session ended: %v", err)
	}
	return nil
}
