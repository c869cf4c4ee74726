// Package firmware assembles the device: the tick clock, software timers,
// flash and serial transport, and the serial loader in front of normal
// operation.
package firmware

import (
	"context"
	"fmt"
	"io"
	"runtime"

	"github.com/golang/glog"

	"github.com/robotalks/disconnect/pkg/flash"
	"github.com/robotalks/disconnect/pkg/framework"
	"github.com/robotalks/disconnect/pkg/hal"
	"github.com/robotalks/disconnect/pkg/irq"
	"github.com/robotalks/disconnect/pkg/loader"
	"github.com/robotalks/disconnect/pkg/tick"
	"github.com/robotalks/disconnect/pkg/timer"
	"github.com/robotalks/disconnect/pkg/uart"
)

// Timer slots owned by the board.
const (
	TimerIdle timer.ID = iota
	TimerHeartbeat
	TimerHalt
)

// HeartbeatLine is sent once per heartbeat in normal mode.
const HeartbeatLine = "ticksr"

// Mode is the board operating mode.
type Mode uint8

// Board modes.
const (
	ModeBoot Mode = iota
	ModeLoader
	ModeNormal
	ModeHalted
)

func (m Mode) String() string {
	switch m {
	case ModeBoot:
		return "boot"
	case ModeLoader:
		return "loader"
	case ModeNormal:
		return "normal"
	case ModeHalted:
		return "halted"
	}
	return fmt.Sprintf("mode(%d)", uint8(m))
}

// Status is a snapshot reported with every heartbeat.
type Status struct {
	Mode     Mode
	Uptime   uint16
	Commands uint32
	Errors   uint32
	Dropped  uint32
}

// Config configures a Board.
type Config struct {
	// HZ is the tick rate, tick.DefaultHZ when zero.
	HZ uint16
	// Heartbeat is the normal mode heartbeat period, one second when zero.
	Heartbeat tick.Tick
	// IdleTimeout and Wait are passed to the loader.
	IdleTimeout tick.Tick
	Wait        hal.Waiter
	Flash       flash.Options
	// Observer also receives loader events.
	Observer loader.Observer
	// OnHeartbeat is called from the main loop with every heartbeat.
	OnHeartbeat func(Status)
	// Idle runs between main loop iterations.
	Idle func()
}

// Board is the assembled device. Its methods run on the main loop.
type Board struct {
	IRQ    irq.Controller
	Clock  *tick.Clock
	Timers *timer.Multiplexer
	Flash  *flash.Device
	Port   uart.Port
	Loader *loader.Loader

	conf     Config
	mode     Mode
	commands uint32
	errors   uint32
}

type dropCounter interface {
	Dropped() uint32
}

// NewBoard wires a Board on the given hardware.
func NewBoard(c irq.Controller, bus hal.SPI, cs hal.Pin, port uart.Port, conf Config) *Board {
	b := &Board{IRQ: c, Port: port, conf: conf}
	b.Clock = tick.NewClock(c, conf.HZ)
	if b.conf.Heartbeat == 0 {
		b.conf.Heartbeat = tick.Tick(b.Clock.HZ)
	}
	if b.conf.IdleTimeout == 0 {
		b.conf.IdleTimeout = tick.Tick(b.Clock.HZ / 2)
	}
	if b.conf.Idle == nil {
		b.conf.Idle = runtime.Gosched
	}
	b.Timers = timer.New(c, b.Clock)
	b.Flash = flash.New(bus, cs, conf.Flash)
	b.Loader = loader.New(port, b.Flash, b.Timers, loader.Config{
		IdleTimer:   TimerIdle,
		IdleTimeout: b.conf.IdleTimeout,
		Wait:        conf.Wait,
		Observer:    loader.ObserverFunc(b.commandServed),
	})
	b.Loader.HandleFunc("uptime", b.serveUptime)
	b.Loader.HandleFunc("flash", b.serveFlash)
	return b
}

// Mode returns the current mode.
func (b *Board) Mode() Mode {
	return b.mode
}

// Status returns a snapshot of the counters.
func (b *Board) Status() Status {
	st := Status{
		Mode:     b.mode,
		Uptime:   b.Clock.Seconds(),
		Commands: b.commands,
		Errors:   b.errors,
	}
	if d, ok := b.Port.(dropCounter); ok {
		st.Dropped = d.Dropped()
	}
	return st
}

// Boot brings up the flash. Failure is fatal for the board.
func (b *Board) Boot() error {
	b.mode = ModeBoot
	b.Clock.Reset()
	b.Timers.StopAll()
	if err := b.Flash.Init(); err != nil {
		glog.Errorf("boot: flash: %v", err)
		return fmt.Errorf("flash: %w", err)
	}
	glog.Infof("boot: flash %s", b.Flash.Part())
	return nil
}

// Run boots, serves the loader until the host sends go, then stays in
// normal mode until ctx is done. A failed boot ends in Halt.
func (b *Board) Run(ctx context.Context) error {
	if err := b.Boot(); err != nil {
		return b.Halt(ctx, err)
	}
	b.mode = ModeLoader
	loop := framework.NewLoop().Add(framework.PrLvNormal, b.Loader)
	loop.Idle = b.conf.Idle
	if err := loop.Run(ctx); err != nil {
		return err
	}
	return b.normal(ctx)
}

func (b *Board) normal(ctx context.Context) error {
	b.mode = ModeNormal
	glog.Info("entering normal mode")
	if err := b.Timers.StartPeriodic(TimerHeartbeat, b.conf.Heartbeat); err != nil {
		return err
	}
	loop := framework.NewLoop().
		AddFunc(framework.PrLvTop, b.pollHeartbeat).
		AddFunc(framework.PrLvIdle, b.drain)
	loop.Idle = b.conf.Idle
	return loop.Run(ctx)
}

func (b *Board) pollHeartbeat(ctx context.Context) error {
	if !b.Timers.ReadEvent(TimerHeartbeat) {
		return nil
	}
	if err := uart.Puts(b.Port, HeartbeatLine+loader.EOL); err != nil {
		return err
	}
	if err := uart.Flush(b.Port); err != nil {
		return err
	}
	if b.conf.OnHeartbeat != nil {
		b.conf.OnHeartbeat(b.Status())
	}
	return nil
}

// drain discards input, nothing listens in normal mode.
func (b *Board) drain(ctx context.Context) error {
	for {
		if _, ok := b.Port.Receive(); !ok {
			return nil
		}
	}
}

// Halt is the terminal state after a fatal error: err is reported on the
// serial port once per second until ctx is done. It returns err.
func (b *Board) Halt(ctx context.Context, err error) error {
	b.mode = ModeHalted
	glog.Errorf("halted: %v", err)
	b.Timers.StopAll()
	report := func(context.Context) error {
		e := uart.Printf(b.Port, "HALT: %v"+loader.EOL, err)
		if e == nil {
			e = uart.Flush(b.Port)
		}
		if e != nil {
			glog.Warningf("halted: report: %v", e)
		}
		return nil
	}
	report(ctx)
	if e := b.Timers.StartPeriodic(TimerHalt, tick.Tick(b.Clock.HZ)); e != nil {
		return e
	}
	loop := framework.NewLoop().AddFunc(framework.PrLvTop, func(ctx context.Context) error {
		if b.Timers.ReadEvent(TimerHalt) {
			return report(ctx)
		}
		return nil
	})
	loop.Idle = b.conf.Idle
	loop.Run(ctx)
	return err
}

func (b *Board) commandServed(ev loader.Event) {
	b.commands++
	if ev.Err != nil {
		b.errors++
	}
	if b.conf.Observer != nil {
		b.conf.Observer.CommandServed(ev)
	}
}

func (b *Board) serveUptime(w io.Writer, args string) error {
	_, err := fmt.Fprintf(w, "uptime %d"+loader.EOL, b.Clock.Seconds())
	return err
}

func (b *Board) serveFlash(w io.Writer, args string) error {
	status, err := b.Flash.Status()
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "flash %s status %02x"+loader.EOL, b.Flash.Part(), status)
	return err
}
