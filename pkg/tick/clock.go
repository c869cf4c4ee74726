package tick

import "github.com/robotalks/disconnect/pkg/irq"

// Clock counts ticks and whole seconds. Interrupt is its only writer.
type Clock struct {
	HZ uint16

	irq     irq.Controller
	ticks   Tick
	sub     uint16
	seconds uint16
}

// NewClock creates a Clock. hz of zero selects DefaultHZ.
func NewClock(c irq.Controller, hz uint16) *Clock {
	if hz == 0 {
		hz = DefaultHZ
	}
	return &Clock{HZ: hz, irq: c}
}

// Interrupt is the periodic tick handler.
func (c *Clock) Interrupt() {
	c.ticks++
	c.sub++
	if c.sub >= c.HZ {
		c.sub = 0
		c.seconds++
	}
}

// Now returns the current tick.
func (c *Clock) Now() (t Tick) {
	s := c.irq.Save()
	t = c.ticks
	c.irq.Restore(s)
	return
}

// Seconds returns the number of whole seconds since the last Reset.
func (c *Clock) Seconds() (sec uint16) {
	s := c.irq.Save()
	sec = c.seconds
	c.irq.Restore(s)
	return
}

// Reset zeroes all counters.
func (c *Clock) Reset() {
	s := c.irq.Save()
	c.ticks, c.sub, c.seconds = 0, 0, 0
	c.irq.Restore(s)
}

// Ticks converts milliseconds to ticks, rounding up.
func (c *Clock) Ticks(ms uint) Tick {
	return Tick((ms*uint(c.HZ) + 999) / 1000)
}
