// Package loader implements the line oriented serial loader which reads
// and programs flash pages with CRC16 verification, and the host client
// talking to it.
package loader

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/golang/glog"

	"github.com/robotalks/disconnect/pkg/crc16"
	"github.com/robotalks/disconnect/pkg/framework"
	"github.com/robotalks/disconnect/pkg/hal"
	"github.com/robotalks/disconnect/pkg/tick"
	"github.com/robotalks/disconnect/pkg/timer"
	"github.com/robotalks/disconnect/pkg/uart"
)

// Version is the reply to hi.
const Version = "disconnect v2"

// Protocol replies.
const (
	ReplyOK     = "ok"
	ReplyGo     = "entering normal mode"
	ErrorPrefix = "ERROR: "
	EOL         = "\r\n"
)

// Flash is the page store served by the loader.
type Flash interface {
	PageSize() int
	Pages() int
	ReadStart(page int) error
	ReadByte() (byte, error)
	ReadStop() error
	WritePageStart(page int) error
	WriteByte(b byte) error
	WritePageStop() error
}

// Timers provides the idle timer.
type Timers interface {
	StartOneShot(id timer.ID, ival tick.Tick) error
	ReadEvent(id timer.ID) bool
	Stop(id timer.ID)
}

// Handler serves an auxiliary command. The reply is written to w; a
// returned error is reported as an ERROR line instead.
type Handler interface {
	ServeCommand(w io.Writer, args string) error
}

// HandlerFunc is the func form of Handler.
type HandlerFunc func(w io.Writer, args string) error

// ServeCommand implements Handler.
func (f HandlerFunc) ServeCommand(w io.Writer, args string) error {
	return f(w, args)
}

// Event describes a served command.
type Event struct {
	Command string
	Page    int
	Length  int
	CRC     uint16
	Err     error
}

// Observer is notified after every command.
type Observer interface {
	CommandServed(Event)
}

// ObserverFunc is the func form of Observer.
type ObserverFunc func(Event)

// CommandServed implements Observer.
func (f ObserverFunc) CommandServed(ev Event) {
	f(ev)
}

// Config configures a Loader.
type Config struct {
	// IdleTimer is the timer slot used to discard partial lines.
	IdleTimer timer.ID
	// IdleTimeout is the silence after which a partial line is dropped,
	// half a second by default.
	IdleTimeout tick.Tick
	// Wait waits for write payload bytes. nil waits forever.
	Wait hal.Waiter
	// Observer receives command events.
	Observer Observer
}

// Loader is the protocol engine. It is a framework.Poller; Poll handles
// at most one received byte and returns framework.ErrStop once the host
// sends go.
type Loader struct {
	port     uart.Port
	flash    Flash
	timers   Timers
	conf     Config
	line     Line
	out      replier
	handlers map[string]Handler
	done     bool
}

// New creates a Loader.
func New(port uart.Port, fl Flash, timers Timers, conf Config) *Loader {
	if conf.IdleTimeout == 0 {
		conf.IdleTimeout = tick.DefaultHZ / 2
	}
	if conf.Wait == nil {
		conf.Wait = hal.Spin{}
	}
	return &Loader{
		port:     port,
		flash:    fl,
		timers:   timers,
		conf:     conf,
		out:      replier{port: port},
		handlers: make(map[string]Handler),
	}
}

// Handle registers an auxiliary command.
func (l *Loader) Handle(name string, h Handler) {
	l.handlers[name] = h
}

// HandleFunc registers an auxiliary command func.
func (l *Loader) HandleFunc(name string, fn func(w io.Writer, args string) error) {
	l.Handle(name, HandlerFunc(fn))
}

// Done reports whether go has been received.
func (l *Loader) Done() bool {
	return l.done
}

// Run polls until go is received.
func (l *Loader) Run(ctx context.Context) error {
	return framework.NewLoop().Add(framework.PrLvNormal, l).Run(ctx)
}

// Poll implements framework.Poller.
func (l *Loader) Poll(ctx context.Context) error {
	if l.done {
		return framework.ErrStop
	}
	if l.timers.ReadEvent(l.conf.IdleTimer) && l.line.Len() > 0 {
		glog.V(2).Infof("loader: discard %d bytes of partial command", l.line.Len())
		l.line.Reset()
	}
	b, ok := l.port.Receive()
	if !ok {
		return nil
	}
	if err := l.timers.StartOneShot(l.conf.IdleTimer, l.conf.IdleTimeout); err != nil {
		return err
	}
	cmd, ok := l.line.Feed(b)
	if !ok {
		return nil
	}
	l.timers.Stop(l.conf.IdleTimer)
	ev := l.dispatch(ctx, cmd)
	if err := l.out.flush(); err != nil {
		return err
	}
	if l.conf.Observer != nil {
		l.conf.Observer.CommandServed(ev)
	}
	if l.done {
		return framework.ErrStop
	}
	return nil
}

func (l *Loader) dispatch(ctx context.Context, cmd string) Event {
	ev := Event{Command: cmd, Page: -1}
	glog.V(2).Infof("loader: %q", cmd)
	switch cmd {
	case "hi":
		l.out.line(Version)
		return ev
	case "go":
		l.out.line(ReplyGo)
		l.done = true
		return ev
	}
	name, args := cmd, ""
	if n := strings.IndexAny(cmd, " \t"); n >= 0 {
		name, args = cmd[:n], cmd[n:]
	}
	switch name {
	case "read":
		ev.Command = name
		ev.Err = l.read(args, &ev)
	case "write":
		ev.Command = name
		ev.Err = l.write(ctx, args, &ev)
	default:
		h, ok := l.handlers[name]
		if !ok {
			ev.Err = l.errorf("unknown command: '%s'", cmd)
			return ev
		}
		ev.Command = name
		if err := h.ServeCommand(&l.out, strings.TrimLeft(args, " \t")); err != nil {
			ev.Err = l.errorf("%s: %v", name, err)
		}
	}
	return ev
}

func (l *Loader) read(args string, ev *Event) error {
	page, pos, err := ParseHex(args, 0)
	if err == nil {
		err = expectEnd(args, pos)
	}
	if err != nil {
		return l.errorf("usage: read <page>")
	}
	ev.Page = int(page)
	if ev.Page >= l.flash.Pages() {
		return l.errorf("invalid page %04x", page)
	}
	if err := l.flash.ReadStart(ev.Page); err != nil {
		return l.errorf("flash: %v", err)
	}
	l.out.line(ReplyOK)
	var sum crc16.Hash
	for n := 0; n < l.flash.PageSize(); n++ {
		b, err := l.flash.ReadByte()
		if err != nil {
			l.flash.ReadStop()
			glog.Errorf("loader: read page %d: %v", ev.Page, err)
			return l.errorf("flash: %v", err)
		}
		sum.WriteByte(b)
		l.out.WriteByte(b)
	}
	if err := l.flash.ReadStop(); err != nil {
		return l.errorf("flash: %v", err)
	}
	ev.Length, ev.CRC = l.flash.PageSize(), sum.Sum16()
	l.out.printf("%04x"+EOL, ev.CRC)
	return nil
}

func (l *Loader) write(ctx context.Context, args string, ev *Event) error {
	page, pos, err := ParseHex(args, 0)
	var length, declared uint16
	if err == nil {
		length, pos, err = ParseHex(args, pos)
	}
	if err == nil {
		declared, pos, err = ParseHex(args, pos)
	}
	if err == nil {
		err = expectEnd(args, pos)
	}
	if err != nil {
		return l.errorf("usage: write <page> <length> <crc16>")
	}
	ev.Page, ev.Length = int(page), int(length)
	if ev.Page >= l.flash.Pages() {
		return l.errorf("invalid page %04x", page)
	}
	if ev.Length > l.flash.PageSize() {
		return l.errorf("usage: length %x exceeds page size %x", length, l.flash.PageSize())
	}
	if err := l.flash.WritePageStart(ev.Page); err != nil {
		return l.errorf("flash: %v", err)
	}

	var sum crc16.Hash
	var flashErr error
	lf := l.line.TakeCR()
	for n := 0; n < ev.Length; n++ {
		b, err := l.receive(ctx)
		if err == nil && lf && b == '\n' {
			b, err = l.receive(ctx)
		}
		lf = false
		if err != nil {
			l.flash.WritePageStop()
			glog.Warningf("loader: write page %d: %d of %d bytes received: %v", ev.Page, n, ev.Length, err)
			return l.errorf("receive: %v", err)
		}
		sum.WriteByte(b)
		if flashErr == nil {
			flashErr = l.flash.WriteByte(b)
		}
	}
	if err := l.flash.WritePageStop(); flashErr == nil {
		flashErr = err
	}
	ev.CRC = sum.Sum16()
	if flashErr != nil {
		glog.Errorf("loader: write page %d: %v", ev.Page, flashErr)
		return l.errorf("flash: %v", flashErr)
	}
	if ev.CRC != declared {
		return l.errorf("crc16 error: computed %04x, declared %04x", ev.CRC, declared)
	}
	l.out.line(ReplyOK)
	return nil
}

// receive waits for one payload byte.
func (l *Loader) receive(ctx context.Context) (b byte, err error) {
	err = l.conf.Wait.Until(func() (ok bool, err error) {
		if err = ctx.Err(); err == nil {
			b, ok = l.port.Receive()
		}
		return
	})
	return
}

func (l *Loader) errorf(format string, args ...interface{}) error {
	err := &RemoteError{Message: fmt.Sprintf(format, args...)}
	l.out.line(ErrorPrefix + err.Message)
	return err
}

// replier transmits replies and keeps the first transport error.
type replier struct {
	port uart.Port
	err  error
}

func (r *replier) WriteByte(b byte) error {
	if r.err == nil {
		r.err = r.port.Transmit(b)
	}
	return r.err
}

func (r *replier) Write(p []byte) (int, error) {
	for _, b := range p {
		r.WriteByte(b)
	}
	if r.err != nil {
		return 0, r.err
	}
	return len(p), nil
}

func (r *replier) line(s string) {
	io.WriteString(r, s+EOL)
}

func (r *replier) printf(format string, args ...interface{}) {
	fmt.Fprintf(r, format, args...)
}

func (r *replier) flush() error {
	if r.err == nil {
		r.err = uart.Flush(r.port)
	}
	return r.err
}
