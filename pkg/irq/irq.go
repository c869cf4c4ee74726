// Package irq provides the atomic region primitive shared by the main loop
// and interrupt handlers.
package irq

// State is the interrupt enable state captured by Save.
type State uintptr

// Controller masks and unmasks interrupt delivery.
type Controller interface {
	// Save captures the current state and disables interrupts.
	Save() State
	// Restore reinstates a state previously returned by Save.
	Restore(State)
}

// Raiser delivers an interrupt handler.
type Raiser interface {
	Raise(handler func())
}

// Atomic runs fn with interrupts disabled and restores the previous state
// afterwards. Regions nest.
func Atomic(c Controller, fn func()) {
	s := c.Save()
	fn()
	c.Restore(s)
}
