package modbuscore

// BitCountToSize returns the number of bytes needed to hold count packed
// bits, rounding up.
func BitCountToSize(count uint16) int {
	return int((count + 7) / 8)
}

// RegCountToSize returns the number of bytes needed to hold count 16-bit
// registers.
func RegCountToSize(count uint16) int {
	return int(count) * 2
}

// sizeForCount returns the on-wire byte count a given function's Count
// field implies: bit-packed for the coil codes, two bytes per register
// otherwise.
func sizeForCount(f FunctionCode, count uint16) int {
	switch f {
	case ReadCoils, ReadDiscreteInputs, WriteMultipleCoils:
		return BitCountToSize(count)
	default:
		return RegCountToSize(count)
	}
}
