package gas

import "errors"

// ErrMalformedLEB128 is returned when a LEB128-encoded integer runs past
// the end of its containing byte slice.
var ErrMalformedLEB128 = errors.New("gas: malformed LEB128 integer")

// readULEB128 decodes an unsigned LEB128 integer starting at offset off,
// returning the value and the offset just past it.
func readULEB128(b []byte, off int) (uint64, int, error) {
	var result uint64
	var shift uint
	for {
		if off >= len(b) {
			return 0, 0, ErrMalformedLEB128
		}
		c := b[off]
		off++
		result |= uint64(c&0x7f) << shift
		if c&0x80 == 0 {
			break
		}
		shift += 7
		if shift >= 64 {
			return 0, 0, ErrMalformedLEB128
		}
	}
	return result, off, nil
}

// readSLEB128 decodes a signed LEB128 integer starting at offset off.
func readSLEB128(b []byte, off int) (int64, int, error) {
	var result int64
	var shift uint
	var c byte
	for {
		if off >= len(b) {
			return 0, 0, ErrMalformedLEB128
		}
		c = b[off]
		off++
		result |= int64(c&0x7f) << shift
		shift += 7
		if c&0x80 == 0 {
			break
		}
	}
	if shift < 64 && (c&0x40) != 0 {
		result |= -1 << shift
	}
	return result, off, nil
}

// putULEB128 appends the unsigned LEB128 encoding of v to b.
func putULEB128(b []byte, v uint64) []byte {
	for {
		c := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			c |= 0x80
		}
		b = append(b, c)
		if v == 0 {
			return b
		}
	}
}

// putSLEB128 appends the signed LEB128 encoding of v to b.
func putSLEB128(b []byte, v int64) []byte {
	for {
		c := byte(v & 0x7f)
		v >>= 7
		signBitSet := c&0x40 != 0
		if (v == 0 && !signBitSet) || (v == -1 && signBitSet) {
			b = append(b, c)
			return b
		}
		b = append(b, c|0x80)
	}
}
