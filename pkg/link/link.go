// Package link opens the byte stream between the host and a device:
// a serial port, a TCP connection or a websocket, and provides the
// pseudo terminal used by the emulator.
package link

import (
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/golang/glog"
)

// DefaultBaud is the loader line speed.
const DefaultBaud = 57600

// ErrUnsupportedScheme is returned by Open for an unknown URL scheme.
var ErrUnsupportedScheme = errors.New("unsupported link scheme")

// Options configures Open.
type Options struct {
	// Baud is the serial line speed, DefaultBaud when zero.
	Baud int
	// Timeout bounds connecting and, for serial ports, every read.
	Timeout time.Duration
}

// Open opens target which is a device path or one of
//
//	serial:///dev/ttyUSB0?baud=57600
//	tcp://host:port
//	ws://host:port/path
func Open(target string, opts Options) (io.ReadWriteCloser, error) {
	if !strings.Contains(target, "://") {
		return OpenSerial(target, opts)
	}
	u, err := url.Parse(target)
	if err != nil {
		return nil, err
	}
	glog.V(2).Infof("link: open %s", u)
	switch u.Scheme {
	case "serial":
		if b := u.Query().Get("baud"); b != "" {
			if opts.Baud, err = strconv.Atoi(b); err != nil {
				return nil, fmt.Errorf("baud %q: %w", b, err)
			}
		}
		return OpenSerial(u.Host+u.Path, opts)
	case "tcp":
		return net.DialTimeout("tcp", u.Host, opts.Timeout)
	case "ws", "wss":
		conn, err := DialWebsocket(u.String())
		if err != nil {
			return nil, err
		}
		return conn, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedScheme, u.Scheme)
	}
}
