package flash

import (
	"errors"
	"fmt"
)

var (
	// ErrNotInitialized indicates Init has not succeeded.
	ErrNotInitialized = errors.New("flash not initialized")
	// ErrInvalidPage indicates a page index beyond the part.
	ErrInvalidPage = errors.New("invalid page")
	// ErrBusy indicates another read or write stream is open.
	ErrBusy = errors.New("flash stream in progress")
	// ErrNotStreaming indicates a byte operation outside its stream.
	ErrNotStreaming = errors.New("no flash stream")
	// ErrInvalidLength indicates data not matching the page size.
	ErrInvalidLength = errors.New("invalid page data length")
)

// UnsupportedPartError reports an unrecognized status signature.
type UnsupportedPartError struct {
	Status byte
}

// Error implements error.
func (e *UnsupportedPartError) Error() string {
	return fmt.Sprintf("unsupported flash, status %02x", e.Status)
}
