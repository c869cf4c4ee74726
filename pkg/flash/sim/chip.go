// Package sim models an AT45 DataFlash chip at the SPI byte level. The chip
// implements hal.SPI and, as its chip-select line, hal.Pin.
package sim

import (
	"errors"
	"io"
	"sync"

	"github.com/golang/glog"

	"github.com/robotalks/disconnect/pkg/flash"
	"github.com/robotalks/disconnect/pkg/hal"
)

// ErrNotConfigured is returned by Transfer before Configure.
var ErrNotConfigured = errors.New("spi not configured")

// Options configures the model.
type Options struct {
	// BusyPolls is the number of status reads reporting busy after each
	// page program.
	BusyPolls int
	// ProgramPad expects a don't-care byte after the program address.
	ProgramPad bool
}

// Stats counts bus activity.
type Stats struct {
	Selects   int
	Transfers int
	Programs  int
}

// Chip is the simulated chip. Unprogrammed pages read as 0xff.
type Chip struct {
	part flash.Part
	opts Options

	lock       sync.Mutex
	pages      map[int][]byte
	buffers    [2][]byte
	signature  byte
	stalled    bool
	configured bool
	selected   bool
	busy       int
	stats      Stats

	cmd    []byte
	header int
	page   int
	offset int
}

// New creates a blank chip.
func New(part flash.Part, opts Options) *Chip {
	c := &Chip{
		part:      part,
		opts:      opts,
		pages:     make(map[int][]byte),
		signature: part.Signature,
	}
	for n := range c.buffers {
		c.buffers[n] = erased(part.PageSize)
	}
	return c
}

func erased(size int) []byte {
	p := make([]byte, size)
	for n := range p {
		p[n] = 0xff
	}
	return p
}

// Part returns the simulated part.
func (c *Chip) Part() flash.Part {
	return c.part
}

// SetSignature overrides the density code reported in the status register.
func (c *Chip) SetSignature(sig byte) {
	c.lock.Lock()
	c.signature = sig
	c.lock.Unlock()
}

// SetStalled makes the chip report busy forever.
func (c *Chip) SetStalled(stalled bool) {
	c.lock.Lock()
	c.stalled = stalled
	c.lock.Unlock()
}

// Stats returns the activity counters.
func (c *Chip) Stats() Stats {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.stats
}

// Page returns a copy of page n.
func (c *Chip) Page(n int) []byte {
	c.lock.Lock()
	defer c.lock.Unlock()
	p := erased(c.part.PageSize)
	copy(p, c.pages[n])
	return p
}

// SetPage stores data into page n directly, padding with 0xff.
func (c *Chip) SetPage(n int, data []byte) {
	p := erased(c.part.PageSize)
	copy(p, data)
	c.lock.Lock()
	c.pages[n] = p
	c.lock.Unlock()
}

// Configure implements hal.SPI.
func (c *Chip) Configure() error {
	c.lock.Lock()
	c.configured = true
	c.lock.Unlock()
	return nil
}

// Disable implements hal.SPI.
func (c *Chip) Disable() error {
	c.lock.Lock()
	c.configured = false
	c.lock.Unlock()
	return nil
}

// Set implements hal.Pin as the active low chip select.
func (c *Chip) Set(l hal.Level) error {
	c.lock.Lock()
	defer c.lock.Unlock()
	switch {
	case l == hal.Low && !c.selected:
		c.selected = true
		c.cmd = c.cmd[:0]
		c.stats.Selects++
	case l == hal.High && c.selected:
		c.selected = false
		c.deselected()
	}
	return nil
}

// Transfer implements hal.SPI.
func (c *Chip) Transfer(b byte) (byte, error) {
	c.lock.Lock()
	defer c.lock.Unlock()
	if !c.configured {
		return 0, ErrNotConfigured
	}
	c.stats.Transfers++
	if !c.selected {
		return 0xff, nil
	}
	if len(c.cmd) == 0 {
		c.cmd = append(c.cmd, b)
		c.header = c.headerLen(b)
		return 0xff, nil
	}
	if len(c.cmd) < c.header {
		c.cmd = append(c.cmd, b)
		if len(c.cmd) == c.header {
			c.addressed()
		}
		return 0xff, nil
	}
	switch c.cmd[0] {
	case flash.OpStatusRead:
		return c.status(), nil
	case flash.OpContinuousRead, flash.OpContinuousReadLow:
		return c.readNext(), nil
	case flash.OpProgramViaBuffer1, flash.OpProgramViaBuffer2:
		buf := c.buffers[c.bufferIndex()]
		buf[c.offset%len(buf)] = b
		c.offset++
	}
	return 0xff, nil
}

func (c *Chip) headerLen(op byte) int {
	switch op {
	case flash.OpContinuousRead:
		return 8
	case flash.OpContinuousReadLow:
		return 4
	case flash.OpProgramViaBuffer1, flash.OpProgramViaBuffer2:
		if c.opts.ProgramPad {
			return 5
		}
		return 4
	}
	return 1
}

func (c *Chip) addressed() {
	addr := uint32(c.cmd[1])<<16 | uint32(c.cmd[2])<<8 | uint32(c.cmd[3])
	c.page = int(addr >> c.part.PageShift)
	c.offset = int(addr & (1<<c.part.PageShift - 1))
	if c.page >= c.part.Pages {
		c.page %= c.part.Pages
	}
}

func (c *Chip) bufferIndex() int {
	if c.cmd[0] == flash.OpProgramViaBuffer2 {
		return 1
	}
	return 0
}

func (c *Chip) status() byte {
	s := c.signature
	if c.stalled {
		return s
	}
	if c.busy > 0 {
		c.busy--
		return s
	}
	return s | flash.StatusReady
}

func (c *Chip) readNext() byte {
	if c.offset >= c.part.PageSize {
		c.offset = 0
		c.page = (c.page + 1) % c.part.Pages
	}
	b := byte(0xff)
	if p, ok := c.pages[c.page]; ok {
		b = p[c.offset]
	}
	c.offset++
	return b
}

func (c *Chip) deselected() {
	if len(c.cmd) == 0 || len(c.cmd) < c.header {
		return
	}
	switch c.cmd[0] {
	case flash.OpProgramViaBuffer1, flash.OpProgramViaBuffer2:
		p := make([]byte, c.part.PageSize)
		copy(p, c.buffers[c.bufferIndex()])
		c.pages[c.page] = p
		c.busy = c.opts.BusyPolls
		c.stats.Programs++
		glog.V(4).Infof("sim: programmed page %d", c.page)
	}
}

// WriteTo implements io.WriterTo and dumps the whole array.
func (c *Chip) WriteTo(w io.Writer) (int64, error) {
	var total int64
	for n := 0; n < c.part.Pages; n++ {
		written, err := w.Write(c.Page(n))
		total += int64(written)
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// ReadFrom implements io.ReaderFrom and loads an array dump. A short dump
// leaves the remaining pages erased.
func (c *Chip) ReadFrom(r io.Reader) (int64, error) {
	var total int64
	for n := 0; n < c.part.Pages; n++ {
		p := erased(c.part.PageSize)
		read, err := io.ReadFull(r, p)
		total += int64(read)
		if read > 0 {
			c.SetPage(n, p[:read])
		}
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return total, nil
		}
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
