package modbuscore

import "github.com/rinzlerlabs/modbuscore/common"

// Validate checks a Message against the rules every exchange must satisfy
// before it touches a Transport:
//
//  1. ID must be a broadcast (0) or a unicast id in [1, 247].
//  2. Function must not carry the exception bit on input.
//  3. An exception Message (Exception != ExceptionNone) is never valid on
//     the broadcast id, and carries no further constraints.
//  4. Otherwise, Count must lie in the function's legal range, and when a
//     payload is mandatory (writes) Data must cover the implied byte
//     count. Read codes accept a nil Data (the zero-copy request case);
//     if the caller did supply a landing buffer it must still be large
//     enough to hold the eventual response.
func Validate(msg Message) error {
	if msg.ID != IDBroadcast && (msg.ID < IDMin || msg.ID > IDMax) {
		return common.ErrInvalidArgument
	}
	if msg.Function.IsException() {
		return common.ErrInvalidArgument
	}
	if msg.Exception != ExceptionNone {
		if msg.ID == IDBroadcast {
			return common.ErrInvalidArgument
		}
		return nil
	}

	switch msg.Function {
	case ReadCoils, ReadDiscreteInputs:
		return checkReadCount(msg.Function, msg.Count, 1, 2000, msg.Data)
	case ReadHoldingRegisters, ReadInputRegisters:
		return checkReadCount(msg.Function, msg.Count, 1, 125, msg.Data)
	case WriteSingleCoil:
		if len(msg.Data) < 2 {
			return common.ErrInvalidArgument
		}
		hi, lo := msg.Data[0], msg.Data[1]
		if lo != 0x00 || (hi != 0xFF && hi != 0x00) {
			return common.ErrInvalidArgument
		}
		return nil
	case WriteSingleHoldingRegister:
		if len(msg.Data) < 2 {
			return common.ErrInvalidArgument
		}
		return nil
	case WriteMultipleCoils:
		return checkWriteCount(msg.Function, msg.Count, 1, 1968, msg.Data)
	case WriteMultipleHoldingRegisters:
		return checkWriteCount(msg.Function, msg.Count, 1, 123, msg.Data)
	default:
		return common.ErrInvalidArgument
	}
}

func checkReadCount(f FunctionCode, count, lo, hi uint16, data []byte) error {
	if count < lo || count > hi {
		return common.ErrInvalidArgument
	}
	if data != nil && len(data) < sizeForCount(f, count) {
		return common.ErrInvalidArgument
	}
	return nil
}

func checkWriteCount(f FunctionCode, count, lo, hi uint16, data []byte) error {
	if count < lo || count > hi {
		return common.ErrInvalidArgument
	}
	if len(data) < sizeForCount(f, count) {
		return common.ErrInvalidArgument
	}
	return nil
}
