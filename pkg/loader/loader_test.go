package loader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/disconnect/pkg/crc16"
	"github.com/robotalks/disconnect/pkg/flash"
	"github.com/robotalks/disconnect/pkg/flash/sim"
	"github.com/robotalks/disconnect/pkg/framework"
	"github.com/robotalks/disconnect/pkg/hal"
	"github.com/robotalks/disconnect/pkg/irq"
	"github.com/robotalks/disconnect/pkg/tick"
	"github.com/robotalks/disconnect/pkg/timer"
)

var smallPart = flash.Part{Name: "small", Signature: 0x3c, PageSize: 16, Pages: 4, PageShift: 5}

type testPort struct {
	rx      []byte
	tx      bytes.Buffer
	flushes int
}

func (p *testPort) Receive() (byte, bool) {
	if len(p.rx) == 0 {
		return 0, false
	}
	b := p.rx[0]
	p.rx = p.rx[1:]
	return b, true
}

func (p *testPort) Transmit(b byte) error {
	return p.tx.WriteByte(b)
}

func (p *testPort) Flush() error {
	p.flushes++
	return nil
}

type testClock struct {
	now tick.Tick
}

func (c *testClock) Now() tick.Tick {
	return c.now
}

type testRig struct {
	port   *testPort
	chip   *sim.Chip
	dev    *flash.Device
	clock  *testClock
	loader *Loader
	events []Event
}

func newTestRig(t *testing.T, part flash.Part, conf Config) *testRig {
	r := &testRig{port: &testPort{}, clock: &testClock{}}
	r.chip = sim.New(part, sim.Options{BusyPolls: 2})
	r.dev = flash.New(r.chip, r.chip, flash.Options{Parts: []flash.Part{part}})
	require.NoError(t, r.dev.Init())
	if conf.Observer == nil {
		conf.Observer = ObserverFunc(func(ev Event) { r.events = append(r.events, ev) })
	}
	if conf.Wait == nil {
		conf.Wait = hal.Spin{Limit: 1000}
	}
	g := irq.NewGate()
	r.loader = New(r.port, r.dev, timer.New(g, r.clock), conf)
	return r
}

// send feeds input and polls until it is consumed, returning the output.
func (r *testRig) send(t *testing.T, in string) string {
	r.port.rx = append(r.port.rx, in...)
	for len(r.port.rx) > 0 {
		err := r.loader.Poll(context.Background())
		if err == framework.ErrStop {
			break
		}
		require.NoError(t, err)
	}
	out := r.port.tx.String()
	r.port.tx.Reset()
	return out
}

func TestHiAndGo(t *testing.T) {
	r := newTestRig(t, smallPart, Config{})
	require.Equal(t, "disconnect v2\r\n", r.send(t, "hi\r\n"))
	require.Equal(t, "disconnect v2\r\n", r.send(t, "hi\n"))
	require.Equal(t, "", r.send(t, "\r\n\r\n"))
	require.False(t, r.loader.Done())
	require.Equal(t, "entering normal mode\r\n", r.send(t, "go\r"))
	require.True(t, r.loader.Done())
	require.Equal(t, framework.ErrStop, r.loader.Poll(context.Background()))
	require.True(t, r.port.flushes >= 3)
}

func TestUnknownCommand(t *testing.T) {
	r := newTestRig(t, smallPart, Config{})
	require.Equal(t, "ERROR: unknown command: 'foo'\r\n", r.send(t, "foo\r\n"))
	require.Equal(t, "ERROR: unknown command: 'hi there'\r\n", r.send(t, "hi there\r\n"))
	require.Equal(t, "ERROR: unknown command: 'readx'\r\n", r.send(t, "readx\r\n"))
	require.Len(t, r.events, 3)
	var remote *RemoteError
	require.True(t, errors.As(r.events[0].Err, &remote))
}

func TestReadPage(t *testing.T) {
	r := newTestRig(t, flash.Parts[0], Config{})
	page := make([]byte, 1056)
	for n := range page {
		page[n] = byte(n * 7)
	}
	r.chip.SetPage(5, page)
	out := r.send(t, "read 5\r\n")
	expect := "ok\r\n" + string(page) + fmt.Sprintf("%04x\r\n", crc16.Checksum(page))
	require.Equal(t, expect, out)
	require.Equal(t, Event{Command: "read", Page: 5, Length: 1056, CRC: crc16.Checksum(page)}, r.events[0])
}

func TestReadErasedPage(t *testing.T) {
	r := newTestRig(t, smallPart, Config{})
	out := r.send(t, "read 3\r\n")
	erased := bytes.Repeat([]byte{0xff}, 16)
	require.Equal(t, "ok\r\n"+string(erased)+fmt.Sprintf("%04x\r\n", crc16.Checksum(erased)), out)
}

func TestReadErrors(t *testing.T) {
	r := newTestRig(t, smallPart, Config{})
	before := r.chip.Stats()
	tests := []struct {
		in     string
		expect string
	}{
		{"read\r\n", "ERROR: usage: read <page>\r\n"},
		{"read zz\r\n", "ERROR: usage: read <page>\r\n"},
		{"read 12345\r\n", "ERROR: usage: read <page>\r\n"},
		{"read 1 2\r\n", "ERROR: usage: read <page>\r\n"},
		{"read 4\r\n", "ERROR: invalid page 0004\r\n"},
		{"read ffff\r\n", "ERROR: invalid page ffff\r\n"},
	}
	for _, test := range tests {
		require.Equalf(t, test.expect, r.send(t, test.in), "reply to %q mismatch", test.in)
	}
	require.Equal(t, before, r.chip.Stats(), "no bus activity expected")
}

func TestWritePage(t *testing.T) {
	r := newTestRig(t, flash.Parts[0], Config{})
	payload := []byte{1, 2, 3}
	out := r.send(t, fmt.Sprintf("write 5 3 %x\r\n", crc16.Checksum(payload))+string(payload))
	require.Equal(t, "ok\r\n", out)
	require.Equal(t, payload, r.chip.Page(5)[:3])
	require.Equal(t, byte(0xff), r.chip.Page(5)[3])
	require.Equal(t, Event{Command: "write", Page: 5, Length: 3, CRC: crc16.Checksum(payload)}, r.events[0])

	full := bytes.Repeat([]byte{0xa5}, 1056)
	out = r.send(t, fmt.Sprintf("write 1fff 420 %x\r\n", crc16.Checksum(full))+string(full))
	require.Equal(t, "ok\r\n", out)
	require.Equal(t, full, r.chip.Page(0x1fff))
}

func TestWriteTerminators(t *testing.T) {
	payload := []byte("abc")
	for _, eol := range []string{"\r\n", "\n", "\r"} {
		r := newTestRig(t, smallPart, Config{})
		out := r.send(t, fmt.Sprintf("write 2 3 %x", crc16.Checksum(payload))+eol+string(payload))
		require.Equalf(t, "ok\r\n", out, "terminator %q", eol)
		require.Equal(t, payload, r.chip.Page(2)[:3])
		require.Equal(t, "disconnect v2\r\n", r.send(t, "hi\r\n"))
	}

	// the line feed of a CRLF is dropped once, payload line feeds are kept.
	r := newTestRig(t, smallPart, Config{})
	payload = []byte("\n\r\n")
	out := r.send(t, fmt.Sprintf("write 1 3 %x\r\n", crc16.Checksum(payload))+string(payload))
	require.Equal(t, "ok\r\n", out)
	require.Equal(t, payload, r.chip.Page(1)[:3])
}

func TestWriteCRCMismatchStillProgrammed(t *testing.T) {
	r := newTestRig(t, smallPart, Config{})
	out := r.send(t, "write 2 4 0000\r\nabcd")
	sum := crc16.Checksum([]byte("abcd"))
	require.Equal(t, fmt.Sprintf("ERROR: crc16 error: computed %04x, declared 0000\r\n", sum), out)
	require.Equal(t, []byte("abcd"), r.chip.Page(2)[:4])
	require.Equal(t, "disconnect v2\r\n", r.send(t, "hi\r\n"))
}

func TestWriteErrors(t *testing.T) {
	r := newTestRig(t, smallPart, Config{})
	before := r.chip.Stats()
	usage := "ERROR: usage: write <page> <length> <crc16>\r\n"
	tests := []struct {
		in     string
		expect string
	}{
		{"write\r\n", usage},
		{"write 1\r\n", usage},
		{"write 1 2\r\n", usage},
		{"write 1 2 x\r\n", usage},
		{"write 1 2 3 4\r\n", usage},
		{"write 4 1 0\r\n", "ERROR: invalid page 0004\r\n"},
		{"write 0 11 0\r\n", "ERROR: usage: length 11 exceeds page size 10\r\n"},
	}
	for _, test := range tests {
		require.Equalf(t, test.expect, r.send(t, test.in), "reply to %q mismatch", test.in)
	}
	require.Equal(t, before, r.chip.Stats(), "no bus activity expected")
}

func TestWriteStalledSender(t *testing.T) {
	r := newTestRig(t, smallPart, Config{Wait: hal.Spin{Limit: 5}})
	out := r.send(t, "write 1 8 0\r\nabc")
	require.Equal(t, "ERROR: receive: wait timeout\r\n", out)
	require.Equal(t, []byte("abc"), r.chip.Page(1)[:3])
}

func TestWriteCanceled(t *testing.T) {
	r := newTestRig(t, smallPart, Config{Wait: hal.Spin{}})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r.port.rx = []byte("write 1 8 0\r\n")
	for len(r.port.rx) > 0 {
		require.NoError(t, r.loader.Poll(ctx))
	}
	require.Equal(t, "ERROR: receive: context canceled\r\n", r.port.tx.String())
}

func TestIdleTimeoutDiscardsPartialLine(t *testing.T) {
	r := newTestRig(t, smallPart, Config{IdleTimeout: 10})
	require.Equal(t, "", r.send(t, "he"))
	r.clock.now += 9
	require.Equal(t, "", r.send(t, "l"))
	r.clock.now += 9
	require.Equal(t, "ERROR: unknown command: 'helhi'\r\n", r.send(t, "hi\r\n"))

	require.Equal(t, "", r.send(t, "junk"))
	r.clock.now += 10
	require.NoError(t, r.loader.Poll(context.Background()))
	require.Equal(t, "disconnect v2\r\n", r.send(t, "hi\r\n"))
}

func TestOverflowWraps(t *testing.T) {
	r := newTestRig(t, smallPart, Config{})
	out := r.send(t, string(bytes.Repeat([]byte{'x'}, CommandSize))+"hi\r\n")
	require.Equal(t, "disconnect v2\r\n", out)
}

func TestHandlers(t *testing.T) {
	r := newTestRig(t, smallPart, Config{})
	var got string
	r.loader.HandleFunc("ring", func(w io.Writer, args string) error {
		got = args
		_, err := io.WriteString(w, "ok\r\n")
		return err
	})
	r.loader.HandleFunc("busy", func(w io.Writer, args string) error {
		return errors.New("speaker off")
	})
	require.Equal(t, "ok\r\n", r.send(t, "ring  3\r\n"))
	require.Equal(t, "3", got)
	require.Equal(t, "ERROR: busy: speaker off\r\n", r.send(t, "busy\r\n"))
	require.Equal(t, "ring", r.events[0].Command)
	require.Error(t, r.events[1].Err)
}

type failingPort struct {
	testPort
}

func (p *failingPort) Transmit(b byte) error {
	return io.ErrClosedPipe
}

func TestTransportError(t *testing.T) {
	chip := sim.New(smallPart, sim.Options{})
	dev := flash.New(chip, chip, flash.Options{Parts: []flash.Part{smallPart}})
	require.NoError(t, dev.Init())
	port := &failingPort{testPort{rx: []byte("hi\r\n")}}
	l := New(port, dev, timer.New(irq.NewGate(), &testClock{}), Config{})
	var err error
	for err == nil && len(port.rx) > 0 {
		err = l.Poll(context.Background())
	}
	require.Equal(t, io.ErrClosedPipe, err)
}
