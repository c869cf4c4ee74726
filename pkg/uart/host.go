package uart

import (
	"bufio"
	"context"
	"io"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/disconnect/pkg/framework"
	"github.com/robotalks/disconnect/pkg/irq"
)

// WriterTx transmits into a buffered host writer.
type WriterTx struct {
	w *bufio.Writer
}

// NewWriterTx creates a WriterTx.
func NewWriterTx(w io.Writer) *WriterTx {
	return &WriterTx{w: bufio.NewWriter(w)}
}

// Transmit implements Transmitter.
func (t *WriterTx) Transmit(b byte) error {
	return t.w.WriteByte(b)
}

// Flush implements Flusher.
func (t *WriterTx) Flush() error {
	return t.w.Flush()
}

// Pump reads a host stream and raises the receive interrupt for every
// byte. Unless Lossy is set it holds bytes back while the ring is full,
// which is what hardware flow control does for a real port.
type Pump struct {
	Reader io.ReadCloser
	Raiser irq.Raiser
	Ring   *Ring
	Lossy  bool
}

const pumpBackoff = 100 * time.Microsecond

// Name implements framework.Named.
func (p *Pump) Name() string {
	return "uart-rx"
}

// Run implements framework.Runnable.
func (p *Pump) Run(ctx context.Context) error {
	return framework.RunWithContextCloser(ctx, p.Reader, func() error {
		buf := make([]byte, RingSize)
		for {
			n, err := p.Reader.Read(buf)
			for _, b := range buf[:n] {
				if !p.deliver(ctx, b) {
					return ctx.Err()
				}
			}
			if err != nil {
				if err == io.EOF {
					glog.V(2).Info("uart-rx: end of stream")
					return nil
				}
				return err
			}
		}
	})
}

func (p *Pump) deliver(ctx context.Context, b byte) bool {
	for {
		var held bool
		p.Raiser.Raise(func() {
			if held = !p.Lossy && p.Ring.Full(); !held {
				p.Ring.Interrupt(b)
			}
		})
		if !held {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(pumpBackoff):
		}
	}
}
