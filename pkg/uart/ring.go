package uart

import "github.com/robotalks/disconnect/pkg/irq"

// RingSize is the capacity of the receive ring, a power of two.
const RingSize = 64

const ringMask = RingSize - 1

// Transmitter sends single bytes.
type Transmitter interface {
	Transmit(b byte) error
}

// Ring is an interrupt fed receive buffer. Interrupt is the receive
// handler; when the ring is full it keeps accepting bytes and the oldest
// unread byte is lost.
type Ring struct {
	irq     irq.Controller
	tx      Transmitter
	buf     [RingSize]byte
	head    uint16
	tail    uint16
	dropped uint32
}

// NewRing creates a Ring transmitting through tx.
func NewRing(c irq.Controller, tx Transmitter) *Ring {
	return &Ring{irq: c, tx: tx}
}

// Interrupt stores a received byte.
func (r *Ring) Interrupt(b byte) {
	r.buf[r.head&ringMask] = b
	r.head++
	if r.head-r.tail > RingSize {
		r.tail = r.head - RingSize
		r.dropped++
	}
}

// Full reports whether the next Interrupt drops a byte. Like Interrupt it
// must run inside a handler.
func (r *Ring) Full() bool {
	return r.head-r.tail >= RingSize
}

// Receive implements Port.
func (r *Ring) Receive() (b byte, ok bool) {
	s := r.irq.Save()
	if r.head != r.tail {
		b, ok = r.buf[r.tail&ringMask], true
		r.tail++
	}
	r.irq.Restore(s)
	return
}

// Len returns the number of unread bytes.
func (r *Ring) Len() (n int) {
	s := r.irq.Save()
	n = int(r.head - r.tail)
	r.irq.Restore(s)
	return
}

// Dropped returns the number of bytes lost to overflow.
func (r *Ring) Dropped() (n uint32) {
	s := r.irq.Save()
	n = r.dropped
	r.irq.Restore(s)
	return
}

// Transmit implements Port.
func (r *Ring) Transmit(b byte) error {
	return r.tx.Transmit(b)
}

// Flush implements Flusher.
func (r *Ring) Flush() error {
	if f, ok := r.tx.(Flusher); ok {
		return f.Flush()
	}
	return nil
}
