// Package hal defines the hardware port the firmware core is written
// against. Target bindings, periph.io and the simulators implement it.
package hal

// SPI is a byte oriented SPI master, MSB first.
type SPI interface {
	// Configure enables the peripheral as bus master.
	Configure() error
	// Transfer shifts b out and returns the byte shifted in.
	Transfer(b byte) (byte, error)
	// Disable releases the bus.
	Disable() error
}

// Level is a digital output level.
type Level bool

// Output levels.
const (
	Low  Level = false
	High Level = true
)

func (l Level) String() string {
	if l {
		return "high"
	}
	return "low"
}

// Pin is a digital output line.
type Pin interface {
	Set(Level) error
}

// UART is the register level view of a serial port.
type UART interface {
	// RxReady reports a received byte is pending.
	RxReady() bool
	// Read takes the pending received byte.
	Read() byte
	// TxReady reports the transmit register can accept a byte.
	TxReady() bool
	// Write loads the transmit register.
	Write(b byte)
}
