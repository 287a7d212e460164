// Package mach holds the machine-independent integer codecs used by page
// frames and redo log records. All multi-byte integers are big-endian.
package mach

// WriteTo1 stores the low byte of n.
func WriteTo1(b []byte, n uint32) {
	if len(b) < 1 {
		return
	}
	b[0] = byte(n)
}

// ReadFrom1 reads one byte.
func ReadFrom1(b []byte) uint32 {
	if len(b) < 1 {
		return 0
	}
	return uint32(b[0])
}

// WriteTo2 stores a 2-byte big-endian integer.
func WriteTo2(b []byte, n uint32) {
	if len(b) < 2 {
		return
	}
	b[0] = byte(n >> 8)
	b[1] = byte(n)
}

// ReadFrom2 reads a 2-byte big-endian integer.
func ReadFrom2(b []byte) uint32 {
	if len(b) < 2 {
		return 0
	}
	return uint32(b[0])<<8 | uint32(b[1])
}

// WriteTo3 stores a 3-byte big-endian integer.
func WriteTo3(b []byte, n uint32) {
	if len(b) < 3 {
		return
	}
	b[0] = byte(n >> 16)
	b[1] = byte(n >> 8)
	b[2] = byte(n)
}

// ReadFrom3 reads a 3-byte big-endian integer.
func ReadFrom3(b []byte) uint32 {
	if len(b) < 3 {
		return 0
	}
	return uint32(b[0])<<16 | uint32(b[1])<<8 | uint32(b[2])
}

// WriteTo4 stores a 4-byte big-endian integer.
func WriteTo4(b []byte, n uint32) {
	if len(b) < 4 {
		return
	}
	b[0] = byte(n >> 24)
	b[1] = byte(n >> 16)
	b[2] = byte(n >> 8)
	b[3] = byte(n)
}

// ReadFrom4 reads a 4-byte big-endian integer.
func ReadFrom4(b []byte) uint32 {
	if len(b) < 4 {
		return 0
	}
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

// WriteTo8 stores an 8-byte big-endian integer.
func WriteTo8(b []byte, n uint64) {
	if len(b) < 8 {
		return
	}
	WriteTo4(b, uint32(n>>32))
	WriteTo4(b[4:], uint32(n))
}

// ReadFrom8 reads an 8-byte big-endian integer.
func ReadFrom8(b []byte) uint64 {
	if len(b) < 8 {
		return 0
	}
	return uint64(ReadFrom4(b))<<32 | uint64(ReadFrom4(b[4:]))
}

// WriteN stores the low width bytes of n; width is 1, 2, 4 or 8.
func WriteN(b []byte, width int, n uint64) {
	switch width {
	case 1:
		WriteTo1(b, uint32(n))
	case 2:
		WriteTo2(b, uint32(n))
	case 4:
		WriteTo4(b, uint32(n))
	case 8:
		WriteTo8(b, n)
	}
}

// ReadN reads a width-byte integer; width is 1, 2, 4 or 8.
func ReadN(b []byte, width int) uint64 {
	switch width {
	case 1:
		return uint64(ReadFrom1(b))
	case 2:
		return uint64(ReadFrom2(b))
	case 4:
		return uint64(ReadFrom4(b))
	case 8:
		return ReadFrom8(b)
	}
	return 0
}
