package link

import (
	"errors"
	"os"
	"sync/atomic"
	"syscall"
	"time"
)

const ptyRetry = 50 * time.Millisecond

// PTY is the master side of a pseudo terminal. Reads wait while no
// process has the slave side open instead of failing.
type PTY struct {
	*os.File
	// Name is the slave device path.
	Name string

	closed int32
}

// Read implements io.Reader.
func (p *PTY) Read(b []byte) (int, error) {
	for {
		n, err := p.File.Read(b)
		if n > 0 || !errors.Is(err, syscall.EIO) || atomic.LoadInt32(&p.closed) != 0 {
			return n, err
		}
		time.Sleep(ptyRetry)
	}
}

// Close implements io.Closer.
func (p *PTY) Close() error {
	atomic.StoreInt32(&p.closed, 1)
	return p.File.Close()
}
