//go:build tinygo

package irq

import "runtime/interrupt"

// CPU masks interrupts on the microcontroller itself.
type CPU struct{}

// Save implements Controller.
func (CPU) Save() State {
	return State(interrupt.Disable())
}

// Restore implements Controller.
func (CPU) Restore(s State) {
	interrupt.Restore(interrupt.State(s))
}
