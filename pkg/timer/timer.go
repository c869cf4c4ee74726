// Package timer multiplexes a fixed set of software timers on the tick
// clock. Expiry is evaluated lazily: a timer only notices it has fired
// when its owner asks through ReadEvent.
package timer

import (
	"errors"
	"fmt"

	"github.com/robotalks/disconnect/pkg/irq"
	"github.com/robotalks/disconnect/pkg/tick"
)

// Mode is the operating mode of a timer slot.
type Mode uint8

// Timer modes.
const (
	ModeDisabled Mode = iota
	ModeOneShot
	ModePeriodic
)

func (m Mode) String() string {
	switch m {
	case ModeDisabled:
		return "disabled"
	case ModeOneShot:
		return "one-shot"
	case ModePeriodic:
		return "periodic"
	}
	return fmt.Sprintf("mode(%d)", uint8(m))
}

// ID identifies a timer slot.
type ID uint8

const (
	// MaxTimers is the number of timer slots.
	MaxTimers = 8
	// MaxInterval is the longest interval the wrapping comparison handles.
	MaxInterval tick.Tick = 0x7fff
)

var (
	// ErrInvalidID indicates the slot index is out of range.
	ErrInvalidID = errors.New("invalid timer id")
	// ErrInvalidInterval indicates an interval of zero or beyond MaxInterval.
	ErrInvalidInterval = errors.New("invalid timer interval")
	// ErrInvalidMode indicates an unknown mode.
	ErrInvalidMode = errors.New("invalid timer mode")
)

// Clock provides the current tick.
type Clock interface {
	Now() tick.Tick
}

type slot struct {
	mode   Mode
	expire tick.Tick
	reload tick.Tick
}

// Multiplexer holds the timer slots. All slot state is accessed inside
// atomic regions.
type Multiplexer struct {
	irq   irq.Controller
	clock Clock
	slots [MaxTimers]slot
}

// New creates a Multiplexer with all slots disabled.
func New(c irq.Controller, clock Clock) *Multiplexer {
	return &Multiplexer{irq: c, clock: clock}
}

// Start arms timer id to fire ival ticks from now. Starting
// ModeDisabled is the same as Stop.
func (m *Multiplexer) Start(id ID, mode Mode, ival tick.Tick) error {
	if id >= MaxTimers {
		return ErrInvalidID
	}
	switch mode {
	case ModeDisabled:
		m.Stop(id)
		return nil
	case ModeOneShot, ModePeriodic:
	default:
		return ErrInvalidMode
	}
	if ival < 1 || ival > MaxInterval {
		return ErrInvalidInterval
	}
	s := m.irq.Save()
	m.slots[id] = slot{
		mode:   mode,
		expire: m.clock.Now() + ival,
		reload: ival,
	}
	m.irq.Restore(s)
	return nil
}

// StartOneShot arms a one-shot timer.
func (m *Multiplexer) StartOneShot(id ID, ival tick.Tick) error {
	return m.Start(id, ModeOneShot, ival)
}

// StartPeriodic arms a periodic timer.
func (m *Multiplexer) StartPeriodic(id ID, ival tick.Tick) error {
	return m.Start(id, ModePeriodic, ival)
}

// Stop disables timer id. Unknown ids are ignored.
func (m *Multiplexer) Stop(id ID) {
	if id >= MaxTimers {
		return
	}
	s := m.irq.Save()
	m.slots[id].mode = ModeDisabled
	m.irq.Restore(s)
}

// StopAll disables every timer.
func (m *Multiplexer) StopAll() {
	s := m.irq.Save()
	for i := range m.slots {
		m.slots[i].mode = ModeDisabled
	}
	m.irq.Restore(s)
}

// Mode returns the current mode of timer id.
func (m *Multiplexer) Mode(id ID) (mode Mode) {
	if id >= MaxTimers {
		return ModeDisabled
	}
	s := m.irq.Save()
	mode = m.slots[id].mode
	m.irq.Restore(s)
	return
}

// ReadEvent reports whether timer id has fired since it was started or
// last reported. A one-shot timer disables itself when it reports. A
// periodic timer advances by one interval; if it is still behind it
// restarts from now and the missed periods are dropped.
func (m *Multiplexer) ReadEvent(id ID) (fired bool) {
	if id >= MaxTimers {
		return false
	}
	s := m.irq.Save()
	t := &m.slots[id]
	if t.mode != ModeDisabled {
		now := m.clock.Now()
		if tick.Due(now, t.expire) {
			fired = true
			if t.mode == ModePeriodic {
				t.expire += t.reload
				if tick.Due(now, t.expire) {
					t.expire = now + t.reload
				}
			} else {
				t.mode = ModeDisabled
			}
		}
	}
	m.irq.Restore(s)
	return
}
