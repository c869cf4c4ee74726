package timer

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/disconnect/pkg/irq"
	"github.com/robotalks/disconnect/pkg/tick"
)

type fakeClock struct {
	now tick.Tick
}

func (c *fakeClock) Now() tick.Tick {
	return c.now
}

func newTestMux(now tick.Tick) (*Multiplexer, *fakeClock, *irq.Gate) {
	c := &fakeClock{now: now}
	g := irq.NewGate()
	return New(g, c), c, g
}

func TestOneShot(t *testing.T) {
	m, c, g := newTestMux(100)
	require.NoError(t, m.StartOneShot(0, 5))
	require.Equal(t, ModeOneShot, m.Mode(0))
	for c.now = 100; c.now < 105; c.now++ {
		require.Falsef(t, m.ReadEvent(0), "early event at %d", c.now)
	}
	require.True(t, m.ReadEvent(0))
	require.Equal(t, ModeDisabled, m.Mode(0))
	require.False(t, m.ReadEvent(0))
	c.now += 1000
	require.False(t, m.ReadEvent(0))
	require.False(t, g.Masked())
}

func TestOneShotLateRead(t *testing.T) {
	m, c, _ := newTestMux(0)
	require.NoError(t, m.StartOneShot(1, 3))
	c.now = 50
	require.True(t, m.ReadEvent(1))
	require.False(t, m.ReadEvent(1))
}

func TestPeriodic(t *testing.T) {
	m, c, _ := newTestMux(0)
	require.NoError(t, m.StartPeriodic(2, 4))
	var events []tick.Tick
	for c.now = 0; c.now <= 20; c.now++ {
		if m.ReadEvent(2) {
			events = append(events, c.now)
		}
	}
	require.Equal(t, []tick.Tick{4, 8, 12, 16, 20}, events)
	require.Equal(t, ModePeriodic, m.Mode(2))
}

func TestPeriodicDropsMissedPeriods(t *testing.T) {
	m, c, _ := newTestMux(0)
	require.NoError(t, m.StartPeriodic(3, 10))
	c.now = 55
	require.True(t, m.ReadEvent(3))
	require.False(t, m.ReadEvent(3), "missed periods must not be replayed")
	c.now = 64
	require.False(t, m.ReadEvent(3))
	c.now = 65
	require.True(t, m.ReadEvent(3))
}

func TestPeriodicExactlyOneBehind(t *testing.T) {
	m, c, _ := newTestMux(0)
	require.NoError(t, m.StartPeriodic(0, 10))
	c.now = 20
	require.True(t, m.ReadEvent(0))
	require.False(t, m.ReadEvent(0))
	c.now = 30
	require.True(t, m.ReadEvent(0))
}

func TestWraparound(t *testing.T) {
	m, c, _ := newTestMux(0xfffa)
	require.NoError(t, m.StartOneShot(4, 10))
	c.now = 0xffff
	require.False(t, m.ReadEvent(4))
	c.now = 0x0003
	require.False(t, m.ReadEvent(4))
	c.now = 0x0004
	require.True(t, m.ReadEvent(4))

	require.NoError(t, m.StartPeriodic(5, 3))
	c.now = 0x0007
	require.True(t, m.ReadEvent(5))
}

func TestStartErrors(t *testing.T) {
	m, _, _ := newTestMux(0)
	require.Equal(t, ErrInvalidID, m.Start(MaxTimers, ModeOneShot, 1))
	require.Equal(t, ErrInvalidInterval, m.Start(0, ModeOneShot, 0))
	require.Equal(t, ErrInvalidInterval, m.Start(0, ModePeriodic, MaxInterval+1))
	require.Equal(t, ErrInvalidMode, m.Start(0, Mode(7), 1))
	require.NoError(t, m.Start(0, ModePeriodic, MaxInterval))
	require.NoError(t, m.Start(0, ModeDisabled, 0))
	require.Equal(t, ModeDisabled, m.Mode(0))
	require.False(t, m.ReadEvent(MaxTimers))
	require.Equal(t, ModeDisabled, m.Mode(MaxTimers))
}

func TestStopIdempotent(t *testing.T) {
	m, c, _ := newTestMux(0)
	for id := ID(0); id < MaxTimers; id++ {
		require.NoError(t, m.StartPeriodic(id, 1))
	}
	m.Stop(1)
	m.Stop(1)
	m.Stop(MaxTimers)
	c.now = 5
	require.False(t, m.ReadEvent(1))
	require.True(t, m.ReadEvent(0))
	m.StopAll()
	m.StopAll()
	c.now = 100
	for id := ID(0); id < MaxTimers; id++ {
		require.Falsef(t, m.ReadEvent(id), "timer %d fired after StopAll", id)
	}
}

func TestRestartReplacesSlot(t *testing.T) {
	m, c, _ := newTestMux(0)
	require.NoError(t, m.StartOneShot(0, 5))
	c.now = 4
	require.NoError(t, m.StartOneShot(0, 5))
	c.now = 5
	require.False(t, m.ReadEvent(0))
	c.now = 9
	require.True(t, m.ReadEvent(0))
}

func TestWithTickClock(t *testing.T) {
	g := irq.NewGate()
	clock := tick.NewClock(g, tick.DefaultHZ)
	m := New(g, clock)
	require.NoError(t, m.StartOneShot(0, tick.DefaultHZ/2))
	for i := 0; i < tick.DefaultHZ/2-1; i++ {
		g.Raise(clock.Interrupt)
		require.False(t, m.ReadEvent(0))
	}
	g.Raise(clock.Interrupt)
	require.True(t, m.ReadEvent(0))
	require.False(t, g.Masked())
}
