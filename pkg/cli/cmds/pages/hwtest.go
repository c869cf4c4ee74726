package pages

import (
	"bytes"
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/disconnect/pkg/loader"
)

// DefaultPages is the page count of the AT45DB642 fitted to the board.
const DefaultPages = 8192

// ErrDataMismatch is reported when a page reads back differently.
var ErrDataMismatch = errors.New("data mismatch")

// Geometry asks the device for its flash geometry through the flash
// diagnostic command, falling back to the board defaults.
func Geometry(c *loader.Client) (pages, pageSize int) {
	line, err := c.Command("flash")
	if err == nil {
		var name string
		var status int
		if _, err = fmt.Sscanf(line, "flash %s (%dx%d) status %x", &name, &pages, &pageSize, &status); err == nil {
			return
		}
	}
	glog.V(2).Infof("flash geometry unknown: %v", err)
	return DefaultPages, loader.DefaultPageSize
}

// Tone commands exercised by the hardware test with their reply timeouts.
var Tones = []struct {
	Command string
	Timeout time.Duration
}{
	{"saw", 5 * time.Second},
	{"zoom", 5 * time.Second},
	{"busy", 5 * time.Second},
	{"ring", 8 * time.Second},
}

// HardwareTest writes random data to the last page, reads it back and
// plays every tone. step is called before each stage.
func HardwareTest(c *loader.Client, pages int, step func(string)) error {
	if step == nil {
		step = func(string) {}
	}
	data := make([]byte, c.PageSize)
	if _, err := rand.Read(data); err != nil {
		return err
	}
	last := pages - 1
	step("writing to flash")
	if err := c.WritePage(last, data); err != nil {
		return err
	}
	step("reading from flash")
	got, err := c.ReadPage(last)
	if err != nil {
		return err
	}
	if !bytes.Equal(data, got) {
		return fmt.Errorf("page %x: %w", last, ErrDataMismatch)
	}
	timeout := c.Timeout
	defer func() { c.Timeout = timeout }()
	for _, tone := range Tones {
		step("testing " + tone.Command)
		c.Timeout = tone.Timeout
		if err := c.Custom(tone.Command); err != nil {
			return fmt.Errorf("%s: %w", tone.Command, err)
		}
	}
	return nil
}
