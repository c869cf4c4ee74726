// Package flash drives AT45 DataFlash chips over SPI as a page oriented
// store with streaming reads and buffered page programming.
package flash

import (
	"fmt"

	"github.com/golang/glog"

	"github.com/robotalks/disconnect/pkg/hal"
)

// Command opcodes.
const (
	OpStatusRead        byte = 0xd7
	OpContinuousRead    byte = 0xe8
	OpContinuousReadLow byte = 0x03
	OpProgramViaBuffer1 byte = 0x82
	OpProgramViaBuffer2 byte = 0x85
)

// StatusReady is the ready bit of the status register.
const StatusReady byte = 0x80

const continuousReadDummy = 4

// ReadMode selects the continuous array read command.
type ReadMode uint8

// Read modes.
const (
	// ReadLegacy is opcode 0xE8 followed by four don't-care bytes.
	ReadLegacy ReadMode = iota
	// ReadLowVoltage is opcode 0x03 without don't-care bytes, for low
	// voltage parts and bus clocks up to 33 MHz.
	ReadLowVoltage
)

// Options tune the command set to the chip revision.
type Options struct {
	ReadMode ReadMode
	// Buffer is the SRAM buffer used for programming, 1 or 2.
	Buffer int
	// ProgramPad sends one don't-care byte after the program address.
	ProgramPad bool
	// Wait polls the ready bit. nil waits forever.
	Wait hal.Waiter
	// Parts is the table identifying the chip, Parts by default.
	Parts []Part
}

type streamState uint8

const (
	stateIdle streamState = iota
	stateReading
	stateWriting
)

func (s streamState) String() string {
	switch s {
	case stateReading:
		return "reading"
	case stateWriting:
		return "writing"
	}
	return "idle"
}

// Device is an AT45 chip on an SPI bus.
type Device struct {
	bus   hal.SPI
	cs    hal.Pin
	opts  Options
	part  Part
	ready bool
	state streamState
}

// New creates a Device. Init must be called before use.
func New(bus hal.SPI, cs hal.Pin, opts Options) *Device {
	if opts.Wait == nil {
		opts.Wait = hal.Spin{}
	}
	if opts.Buffer == 0 {
		opts.Buffer = 1
	}
	if opts.Parts == nil {
		opts.Parts = Parts
	}
	return &Device{bus: bus, cs: cs, opts: opts}
}

// Init configures the bus, deselects the chip and identifies the part from
// its status register.
func (d *Device) Init() error {
	d.ready, d.state = false, stateIdle
	if d.opts.Buffer != 1 && d.opts.Buffer != 2 {
		return fmt.Errorf("invalid buffer %d", d.opts.Buffer)
	}
	if err := d.bus.Configure(); err != nil {
		return fmt.Errorf("spi configure: %w", err)
	}
	if err := d.cs.Set(hal.High); err != nil {
		return err
	}
	status, err := d.readStatus()
	if err != nil {
		return err
	}
	part, ok := findPart(d.opts.Parts, status)
	if !ok {
		return &UnsupportedPartError{Status: status}
	}
	d.part, d.ready = part, true
	glog.V(2).Infof("flash: %s, status %02x", part, status)
	return nil
}

// Part returns the identified part.
func (d *Device) Part() Part {
	return d.part
}

// PageSize returns the page size in bytes, zero before Init.
func (d *Device) PageSize() int {
	return d.part.PageSize
}

// Pages returns the page count, zero before Init.
func (d *Device) Pages() int {
	return d.part.Pages
}

// Status reads the status register.
func (d *Device) Status() (byte, error) {
	if d.state != stateIdle {
		return 0, ErrBusy
	}
	return d.readStatus()
}

// WaitReady polls the status register until the ready bit is set.
func (d *Device) WaitReady() error {
	if d.state != stateIdle {
		return ErrBusy
	}
	return d.waitReady()
}

// Transfer exchanges one raw byte on the bus without touching chip select.
func (d *Device) Transfer(b byte) (byte, error) {
	return d.bus.Transfer(b)
}

// ReadStart opens a continuous read at the first byte of page.
func (d *Device) ReadStart(page int) error {
	if err := d.checkStart(page); err != nil {
		return err
	}
	op, dummy := OpContinuousRead, continuousReadDummy
	if d.opts.ReadMode == ReadLowVoltage {
		op, dummy = OpContinuousReadLow, 0
	}
	if err := d.command(op, page, dummy); err != nil {
		return err
	}
	d.state = stateReading
	return nil
}

// ReadByte returns the next byte of the open read stream. Reads continue
// across page boundaries.
func (d *Device) ReadByte() (byte, error) {
	if d.state != stateReading {
		return 0, ErrNotStreaming
	}
	return d.bus.Transfer(0)
}

// ReadStop closes the read stream.
func (d *Device) ReadStop() error {
	if d.state != stateReading {
		return ErrNotStreaming
	}
	d.state = stateIdle
	return d.cs.Set(hal.High)
}

// ReadPage reads len(buf) bytes from the start of page.
func (d *Device) ReadPage(page int, buf []byte) error {
	if len(buf) > d.part.PageSize {
		return ErrInvalidLength
	}
	if err := d.ReadStart(page); err != nil {
		return err
	}
	for n := range buf {
		b, err := d.ReadByte()
		if err != nil {
			d.Abort()
			return err
		}
		buf[n] = b
	}
	return d.ReadStop()
}

// WritePageStart opens a program-through-buffer stream for page. Bytes
// fill the buffer from offset 0; the page is erased and programmed from
// the whole buffer when the stream stops.
func (d *Device) WritePageStart(page int) error {
	if err := d.checkStart(page); err != nil {
		return err
	}
	op, dummy := OpProgramViaBuffer1, 0
	if d.opts.Buffer == 2 {
		op = OpProgramViaBuffer2
	}
	if d.opts.ProgramPad {
		dummy = 1
	}
	if err := d.command(op, page, dummy); err != nil {
		return err
	}
	d.state = stateWriting
	return nil
}

// WriteByte appends b to the open write stream.
func (d *Device) WriteByte(b byte) error {
	if d.state != stateWriting {
		return ErrNotStreaming
	}
	_, err := d.bus.Transfer(b)
	return err
}

// WritePageStop deselects the chip to start programming and waits until
// it completes.
func (d *Device) WritePageStop() error {
	if d.state != stateWriting {
		return ErrNotStreaming
	}
	d.state = stateIdle
	if err := d.cs.Set(hal.High); err != nil {
		return err
	}
	return d.waitReady()
}

// WritePage programs a full page.
func (d *Device) WritePage(page int, data []byte) error {
	if d.ready && len(data) != d.part.PageSize {
		return ErrInvalidLength
	}
	if err := d.WritePageStart(page); err != nil {
		return err
	}
	for _, b := range data {
		if err := d.WriteByte(b); err != nil {
			d.Abort()
			return err
		}
	}
	return d.WritePageStop()
}

// Abort abandons any open stream and deselects the chip. An abandoned
// write stream still programs the page.
func (d *Device) Abort() error {
	if d.state != stateIdle {
		glog.Warningf("flash: abandon %s stream", d.state)
	}
	d.state = stateIdle
	return d.cs.Set(hal.High)
}

// Reset prepares the chip for power-down: it aborts any stream, then
// disables the SPI transport so the bus outputs are tri-stated. Init must
// be called again before further use.
func (d *Device) Reset() error {
	err := d.Abort()
	d.ready = false
	if derr := d.bus.Disable(); err == nil {
		err = derr
	}
	return err
}

// Close implements io.Closer, it is Reset.
func (d *Device) Close() error {
	return d.Reset()
}

func (d *Device) checkStart(page int) error {
	if !d.ready {
		return ErrNotInitialized
	}
	if page < 0 || page >= d.part.Pages {
		return fmt.Errorf("page %d: %w", page, ErrInvalidPage)
	}
	if d.state != stateIdle {
		return ErrBusy
	}
	return nil
}

func (d *Device) command(op byte, page, dummy int) error {
	addr := d.part.Address(page, 0)
	if err := d.cs.Set(hal.Low); err != nil {
		return err
	}
	seq := []byte{op, byte(addr >> 16), byte(addr >> 8), byte(addr)}
	for i := 0; i < dummy; i++ {
		seq = append(seq, 0)
	}
	for _, b := range seq {
		if _, err := d.bus.Transfer(b); err != nil {
			d.cs.Set(hal.High)
			return err
		}
	}
	return nil
}

func (d *Device) readStatus() (status byte, err error) {
	if err = d.cs.Set(hal.Low); err != nil {
		return
	}
	if _, err = d.bus.Transfer(OpStatusRead); err == nil {
		status, err = d.bus.Transfer(0)
	}
	if e := d.cs.Set(hal.High); err == nil {
		err = e
	}
	return
}

func (d *Device) waitReady() error {
	return d.opts.Wait.Until(func() (bool, error) {
		status, err := d.readStatus()
		return status&StatusReady != 0, err
	})
}
