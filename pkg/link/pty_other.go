//go:build !linux

package link

import "errors"

// OpenPTY is only available on linux.
func OpenPTY() (*PTY, error) {
	return nil, errors.New("pseudo terminal not supported")
}
