// Package tick provides the 16-bit system tick and the clock advancing it.
package tick

// Tick is the wrapping 16-bit count of clock interrupts.
type Tick uint16

// DefaultHZ is the tick rate of the reference board: 8 MHz / 256 / 252.
const DefaultHZ = 124

// Sub returns the signed distance a - b. The result is correct as long as
// the two ticks are less than half the counter range apart.
func Sub(a, b Tick) int {
	return int(int16(a - b))
}

// Due reports whether expiry has been reached at now.
func Due(now, expiry Tick) bool {
	return Sub(now, expiry) >= 0
}
