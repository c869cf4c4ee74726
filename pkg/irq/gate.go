package irq

import "sync"

const (
	stateMasked  State = 0
	stateEnabled State = 1
)

// Gate is the host side interrupt controller. Interrupt sources deliver
// handlers through Raise, which blocks while the main loop has interrupts
// masked, so a handler never interleaves with an atomic region.
//
// Save and Restore must only be called from the main loop goroutine.
// Handlers run by Raise must not call Save.
type Gate struct {
	mu     sync.Mutex
	masked bool
}

// NewGate creates a Gate with interrupts enabled.
func NewGate() *Gate {
	return &Gate{}
}

// Save implements Controller.
func (g *Gate) Save() State {
	if g.masked {
		return stateMasked
	}
	g.mu.Lock()
	g.masked = true
	return stateEnabled
}

// Restore implements Controller.
func (g *Gate) Restore(s State) {
	if s != stateEnabled || !g.masked {
		return
	}
	g.masked = false
	g.mu.Unlock()
}

// Masked reports whether the main loop currently holds the gate.
func (g *Gate) Masked() bool {
	return g.masked
}

// Raise implements Raiser.
func (g *Gate) Raise(handler func()) {
	g.mu.Lock()
	defer g.mu.Unlock()
	handler()
}
