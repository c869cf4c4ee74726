package uart

import "github.com/robotalks/disconnect/pkg/hal"

// Polled is a Port working directly on the UART registers.
type Polled struct {
	regs hal.UART
	wait hal.Waiter
}

// NewPolled creates a Polled port. A nil waiter waits forever.
func NewPolled(regs hal.UART, wait hal.Waiter) *Polled {
	if wait == nil {
		wait = hal.Spin{}
	}
	return &Polled{regs: regs, wait: wait}
}

// Receive implements Port.
func (p *Polled) Receive() (byte, bool) {
	if !p.regs.RxReady() {
		return 0, false
	}
	return p.regs.Read(), true
}

// Transmit implements Port.
func (p *Polled) Transmit(b byte) error {
	err := p.wait.Until(func() (bool, error) {
		return p.regs.TxReady(), nil
	})
	if err != nil {
		return err
	}
	p.regs.Write(b)
	return nil
}
