// Package uart provides the byte transport between the loader and the
// host: a polled port over the UART registers and an interrupt fed ring.
package uart

import (
	"fmt"
	"io"
)

// Port is a byte transport.
type Port interface {
	// Receive returns the next received byte without blocking.
	Receive() (byte, bool)
	// Transmit sends b, waiting for the transmitter when needed.
	Transmit(b byte) error
}

// Flusher is implemented by ports buffering transmitted bytes.
type Flusher interface {
	Flush() error
}

// Flush flushes p if it buffers.
func Flush(p Port) error {
	if f, ok := p.(Flusher); ok {
		return f.Flush()
	}
	return nil
}

// Puts transmits s.
func Puts(p Port, s string) error {
	for n := 0; n < len(s); n++ {
		if err := p.Transmit(s[n]); err != nil {
			return err
		}
	}
	return nil
}

// Printf formats and transmits.
func Printf(p Port, format string, args ...interface{}) error {
	return Puts(p, fmt.Sprintf(format, args...))
}

type writer struct {
	port Port
}

// Writer adapts p to io.Writer.
func Writer(p Port) io.Writer {
	return &writer{port: p}
}

func (w *writer) Write(data []byte) (int, error) {
	for n, b := range data {
		if err := w.port.Transmit(b); err != nil {
			return n, err
		}
	}
	return len(data), nil
}
