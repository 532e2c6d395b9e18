// Package checksum implements the weak, rolling checksum used as the
// first-level filter when matching blocks during delta computation. It is
// the Go analog of the rolling hash described on page 55 of Andrew
// Tridgell's rsync thesis: cheap to slide forward one byte at a time, with
// a cryptographic hash layered on top to confirm any match it proposes.
package checksum

// RollingChecksum computes the rsync-style weak checksum over a sliding
// byte window. For a window s[0..w), it tracks A = sum(s[i]) and
// B = sum((w-i)*s[i]), both wrapping modulo 2^32, and combines them into a
// single 32-bit digest. A RollingChecksum is not safe for concurrent use.
type RollingChecksum struct {
	a, b   uint32
	window uint32
}

// New creates a RollingChecksum with no window loaded. Call Update before
// Roll or Digest.
func New() *RollingChecksum {
	return &RollingChecksum{}
}

// Update initializes the checksum from a full window of bytes, discarding
// any previous state. The window size is fixed at len(data) until the next
// Update call.
func (c *RollingChecksum) Update(data []byte) {
	var a, b uint32
	w := uint32(len(data))
	for i, v := range data {
		a += uint32(v)
		b += (w - uint32(i)) * uint32(v)
	}
	c.a = a
	c.b = b
	c.window = w
}

// Roll advances the window by one byte, removing old and admitting new.
// The window size must already have been established by a call to Update.
func (c *RollingChecksum) Roll(old, new byte) {
	c.a = c.a - uint32(old) + uint32(new)
	c.b = c.b - c.window*uint32(old) + c.a
}

// Digest returns the combined 32-bit weak checksum for the current window.
func (c *RollingChecksum) Digest() uint32 {
	return (c.b&0xFFFF)<<16 | (c.a & 0xFFFF)
}
