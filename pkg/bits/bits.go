// Package bits manipulates single bytes with the 1-based bit numbering used by
// ISO/IEC 7816 (bit 1 is the least significant, bit 8 the most significant).
//
// The transfer format packs several small fields into single bytes (record
// flags, the compact number header); these helpers keep that packing readable.
package bits

// Bit returns a byte with only the n-th bit set (1 to 8).
func Bit(n uint) byte {
	if n < 1 || n > 8 {
		return 0
	}
	return 1 << (n - 1)
}

// IsSet checks if the n-th bit is set (1 to 8).
func IsSet(b byte, n uint) bool {
	return b&Bit(n) != 0
}

// Set returns b with bit n raised.
func Set(b byte, n uint) byte {
	return b | Bit(n)
}

// Clear returns b with bit n lowered.
func Clear(b byte, n uint) byte {
	return b &^ Bit(n)
}

// SetIf raises bit n when cond holds and returns b unchanged otherwise.
func SetIf(b byte, n uint, cond bool) byte {
	if !cond {
		return b
	}
	return Set(b, n)
}

// GetRange extracts the value from a range of bits (e.g., bits 4 to 3).
// Example: GetRange(0b00001100, 4, 3) returns 3 (0b11)
func GetRange(b byte, high, low uint) byte {
	if high < low || high > 8 || low < 1 {
		return 0
	}
	return (b >> (low - 1)) & rangeMask(high, low)
}

// PutRange stores v into bits high..low of b. Bits of v that do not fit the
// range are discarded; callers check the width with Fits first.
func PutRange(b byte, high, low uint, v byte) byte {
	if high < low || high > 8 || low < 1 {
		return b
	}
	mask := rangeMask(high, low)
	b &^= mask << (low - 1)
	return b | (v&mask)<<(low-1)
}

// Fits reports whether v can be stored in the range high..low.
func Fits(v int, high, low uint) bool {
	if high < low || high > 8 || low < 1 {
		return false
	}
	return v >= 0 && v <= int(rangeMask(high, low))
}

func rangeMask(high, low uint) byte {
	width := high - low + 1
	return byte((1 << width) - 1)
}
