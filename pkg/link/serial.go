package link

import (
	"github.com/goburrow/serial"
)

// OpenSerial opens a serial port as 8N2, the framing the loader expects.
func OpenSerial(address string, opts Options) (serial.Port, error) {
	baud := opts.Baud
	if baud <= 0 {
		baud = DefaultBaud
	}
	port, err := serial.Open(&serial.Config{
		Address:  address,
		BaudRate: baud,
		DataBits: 8,
		StopBits: 2,
		Parity:   "N",
		Timeout:  opts.Timeout,
	})
	if err != nil {
		return nil, err
	}
	return port, nil
}
