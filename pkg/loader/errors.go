package loader

import (
	"errors"
	"fmt"
)

var (
	// ErrHexEmpty indicates a missing hex argument.
	ErrHexEmpty = errors.New("missing hex value")
	// ErrHexDigit indicates a character which is not a hex digit.
	ErrHexDigit = errors.New("invalid hex digit")
	// ErrHexRange indicates more than four hex digits.
	ErrHexRange = errors.New("hex value out of range")
	// ErrTrailing indicates extra arguments after the last expected one.
	ErrTrailing = errors.New("unexpected arguments")

	// ErrNotLoader indicates the peer does not speak the loader protocol.
	ErrNotLoader = errors.New("not a disconnect loader")
	// ErrUnexpectedReply indicates a reply the command does not produce.
	ErrUnexpectedReply = errors.New("unexpected reply")
)

// RemoteError is an ERROR line sent by the loader.
type RemoteError struct {
	Message string
}

// Error implements error.
func (e *RemoteError) Error() string {
	return "loader: " + e.Message
}

// CRCError reports a page received with a checksum mismatch.
type CRCError struct {
	Page     int
	Computed uint16
	Reported uint16
}

// Error implements error.
func (e *CRCError) Error() string {
	return fmt.Sprintf("page %d: crc16 %04x, reported %04x", e.Page, e.Computed, e.Reported)
}
