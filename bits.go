package modbuscore

import "encoding/binary"

// CopyBit sets or clears bit index i (0 = least significant bit of the
// first byte) of a bit-packed buffer, the in-place counterpart to the bare
// driver's modbus_copy_bit: it lets a server callback fill a single coil
// into a response buffer without going through a []bool intermediate.
func CopyBit(dst []byte, i int, value bool) {
	byteIdx, bitIdx := i/8, uint(i%8)
	if value {
		dst[byteIdx] |= 1 << bitIdx
	} else {
		dst[byteIdx] &^= 1 << bitIdx
	}
}

// CopyBits packs values into dst, least-significant-bit-first within each
// byte per Modbus convention, mirroring modbus_copy_bits. dst must be at
// least BitCountToSize(len(values)) bytes; any unused high bits of the
// final byte are left at zero.
func CopyBits(dst []byte, values []bool) {
	for i := range dst {
		dst[i] = 0
	}
	for i, v := range values {
		if v {
			CopyBit(dst, i, true)
		}
	}
}

// ReadBits unpacks up to count bits from a bit-packed buffer, the inverse
// of CopyBits.
func ReadBits(data []byte, count int) []bool {
	out := make([]bool, count)
	for i := range out {
		byteIdx, bitIdx := i/8, uint(i%8)
		out[i] = data[byteIdx]&(1<<bitIdx) != 0
	}
	return out
}

// CopyRegisters writes regs into dst as big-endian 16-bit words, the
// register-table counterpart to CopyBits (modbus_copy_regs). dst must be
// at least RegCountToSize(len(regs)) bytes.
func CopyRegisters(dst []byte, regs []uint16) {
	for i, r := range regs {
		binary.BigEndian.PutUint16(dst[i*2:], r)
	}
}

// ReadRegisters parses data as a run of big-endian 16-bit words, the
// inverse of CopyRegisters.
func ReadRegisters(data []byte) []uint16 {
	out := make([]uint16, len(data)/2)
	for i := range out {
		out[i] = binary.BigEndian.Uint16(data[i*2:])
	}
	return out
}
