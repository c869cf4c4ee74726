package irq

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestGateNesting(t *testing.T) {
	g := NewGate()
	require.False(t, g.Masked())
	outer := g.Save()
	require.True(t, g.Masked())
	inner := g.Save()
	require.True(t, g.Masked())
	g.Restore(inner)
	require.True(t, g.Masked(), "inner restore must keep interrupts masked")
	g.Restore(outer)
	require.False(t, g.Masked())
}

func TestGateAtomic(t *testing.T) {
	g := NewGate()
	var ran bool
	Atomic(g, func() {
		require.True(t, g.Masked())
		Atomic(g, func() { ran = true })
		require.True(t, g.Masked())
	})
	require.True(t, ran)
	require.False(t, g.Masked())
}

func TestGateDefersRaise(t *testing.T) {
	g := NewGate()
	var value int
	delivered := make(chan struct{})

	s := g.Save()
	go func() {
		g.Raise(func() { value++ })
		close(delivered)
	}()
	select {
	case <-delivered:
		t.Fatal("handler delivered inside atomic region")
	case <-time.After(20 * time.Millisecond):
	}
	require.Equal(t, 0, value)
	g.Restore(s)
	<-delivered
	s = g.Save()
	require.Equal(t, 1, value)
	g.Restore(s)
}

func TestGateConsistentSnapshot(t *testing.T) {
	g := NewGate()
	var a, b uint32
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 10000; i++ {
			g.Raise(func() {
				a++
				b++
			})
		}
	}()
	for i := 0; i < 1000; i++ {
		Atomic(g, func() {
			require.Equal(t, a, b)
		})
	}
	wg.Wait()
	require.EqualValues(t, 10000, a)
}
