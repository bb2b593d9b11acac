/*
Package bitint provides the small integer helpers shared by the analysis
and GPU upload paths: power-of-two sizing for FFT windows and capture
chunks, and alignment for device-resident buffers.

All helpers are allocation free and constant time so they can be called
from the audio callback and the per-frame upload path.

Usage:

	// Round a capture chunk up to a power of two
	frames := bitint.NextPowerOfTwo(1000) // 1024

	// std430 arrays are padded to 16 bytes
	size := bitint.AlignUp(10*4, 16) // 48

----------------------------------------------------------------------

NextPowerOfTwo subtracts one before taking the bit length so that exact
powers of two are preserved:

	size = 8: bits.Len(7) = 3, 1<<3 = 8
	size = 9: bits.Len(8) = 4, 1<<4 = 16

AlignUp relies on the alignment itself being a power of two, so that
(n + a - 1) &^ (a - 1) clears the low bits after rounding up.
*/
package bitint

import "math/bits"

// NextPowerOfTwo returns the smallest power of two >= size.
// Zero and negative sizes return 1.
func NextPowerOfTwo(size int) int {
	if size <= 1 {
		return 1
	}
	return 1 << bits.Len(uint(size-1))
}

// IsPowerOfTwo reports whether n is a positive power of two.
func IsPowerOfTwo(n int) bool {
	return n > 0 && (n&(n-1)) == 0
}

// AlignUp rounds n up to the next multiple of align. align must be a power
// of two; any other value returns n unchanged. Negative n is treated as 0.
func AlignUp(n, align int) int {
	if n <= 0 {
		return 0
	}
	if !IsPowerOfTwo(align) {
		return n
	}
	return (n + align - 1) &^ (align - 1)
}

// AlignUp64 is AlignUp for buffer sizes and offsets expressed as uint64.
func AlignUp64(n, align uint64) uint64 {
	if align == 0 || align&(align-1) != 0 {
		return n
	}
	return (n + align - 1) &^ (align - 1)
}
