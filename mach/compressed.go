package mach

// WriteCompressed stores a 32-bit integer using compressed encoding and
// returns the number of bytes written, or 0 if b is too short.
func WriteCompressed(b []byte, n uint32) int {
	size := GetCompressedSize(n)
	if len(b) < size {
		return 0
	}
	switch size {
	case 1:
		WriteTo1(b, n)
	case 2:
		WriteTo2(b, n|0x8000)
	case 3:
		WriteTo3(b, n|0xC00000)
	case 4:
		WriteTo4(b, n|0xE0000000)
	default:
		WriteTo1(b, 0xF0)
		WriteTo4(b[1:], n)
	}
	return size
}

// GetCompressedSize returns the encoded size of a compressed integer.
func GetCompressedSize(n uint32) int {
	switch {
	case n < 0x80:
		return 1
	case n < 0x4000:
		return 2
	case n < 0x200000:
		return 3
	case n < 0x10000000:
		return 4
	default:
		return 5
	}
}

// ParseCompressed reads a compressed integer if fully contained.
func ParseCompressed(buf []byte) ([]byte, uint32, bool) {
	if len(buf) < 1 {
		return nil, 0, false
	}
	flag := ReadFrom1(buf)
	switch {
	case flag < 0x80:
		return buf[1:], flag, true
	case flag < 0xC0:
		if len(buf) < 2 {
			return nil, 0, false
		}
		return buf[2:], ReadFrom2(buf) & 0x7FFF, true
	case flag < 0xE0:
		if len(buf) < 3 {
			return nil, 0, false
		}
		return buf[3:], ReadFrom3(buf) & 0x3FFFFF, true
	case flag < 0xF0:
		if len(buf) < 4 {
			return nil, 0, false
		}
		return buf[4:], ReadFrom4(buf) & 0x1FFFFFFF, true
	default:
		if len(buf) < 5 {
			return nil, 0, false
		}
		return buf[5:], ReadFrom4(buf[1:]), true
	}
}

// WriteUllCompressed stores a 64-bit integer as a compressed high word
// followed by the 4-byte low word.
func WriteUllCompressed(b []byte, n uint64) int {
	size := UllCompressedSize(n)
	if len(b) < size {
		return 0
	}
	pos := WriteCompressed(b, uint32(n>>32))
	WriteTo4(b[pos:], uint32(n))
	return pos + 4
}

// UllCompressedSize returns the encoded size of WriteUllCompressed.
func UllCompressedSize(n uint64) int {
	return GetCompressedSize(uint32(n>>32)) + 4
}

// ParseUllCompressed reads a value written by WriteUllCompressed.
func ParseUllCompressed(buf []byte) ([]byte, uint64, bool) {
	rest, high, ok := ParseCompressed(buf)
	if !ok || len(rest) < 4 {
		return nil, 0, false
	}
	return rest[4:], uint64(high)<<32 | uint64(ReadFrom4(rest)), true
}
