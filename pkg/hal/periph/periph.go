// Package periph binds the hal port to periph.io so a Linux host with an
// SPI bus can drive a real flash chip.
package periph

import (
	"fmt"

	"github.com/golang/glog"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"

	"github.com/robotalks/disconnect/pkg/hal"
)

// Config selects the bus and chip-select line.
type Config struct {
	// Port is the SPI port name, empty for the first one found.
	Port string
	// ChipSelect is the GPIO name driven as chip select. The native
	// chip select of the port toggles per transaction and cannot frame
	// the byte-wise flash commands.
	ChipSelect string
	// Speed is the bus clock.
	Speed physic.Frequency
}

// Bus is an SPI port plus chip-select line. It implements hal.SPI and
// hal.Pin.
type Bus struct {
	port spi.PortCloser
	conn spi.Conn
	cs   gpio.PinOut
	conf Config
}

// Open initializes periph.io and opens the bus.
func Open(conf Config) (*Bus, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("periph init: %w", err)
	}
	if conf.Speed == 0 {
		conf.Speed = 4 * physic.MegaHertz
	}
	b := &Bus{conf: conf}
	if conf.ChipSelect == "" {
		return nil, fmt.Errorf("chip select gpio required")
	}
	pin := gpioreg.ByName(conf.ChipSelect)
	if pin == nil {
		return nil, fmt.Errorf("unknown gpio %q", conf.ChipSelect)
	}
	b.cs = pin
	p, err := spireg.Open(conf.Port)
	if err != nil {
		return nil, fmt.Errorf("open spi %q: %w", conf.Port, err)
	}
	b.port = p
	glog.V(2).Infof("spi %v opened, cs=%q", p, conf.ChipSelect)
	return b, nil
}

// Close releases the port.
func (b *Bus) Close() error {
	return b.port.Close()
}

// Configure implements hal.SPI.
func (b *Bus) Configure() (err error) {
	if b.conn != nil {
		return nil
	}
	b.conn, err = b.port.Connect(b.conf.Speed, spi.Mode0|spi.NoCS, 8)
	return
}

// Transfer implements hal.SPI.
func (b *Bus) Transfer(v byte) (byte, error) {
	if b.conn == nil {
		return 0, fmt.Errorf("spi not configured")
	}
	var r [1]byte
	err := b.conn.Tx([]byte{v}, r[:])
	return r[0], err
}

// Disable implements hal.SPI.
func (b *Bus) Disable() error {
	return nil
}

// Set implements hal.Pin.
func (b *Bus) Set(l hal.Level) error {
	return b.cs.Out(gpio.Level(l))
}
