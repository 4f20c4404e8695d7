package modbuscore

import (
	"encoding/binary"
	"fmt"

	"github.com/rinzlerlabs/modbuscore/common"
)

// encodeClientRequest serializes an already-validated request Message as
// a PDU into s.
func encodeClientRequest(s *scratch, msg *Message) error {
	switch msg.Function {
	case ReadCoils, ReadDiscreteInputs, ReadHoldingRegisters, ReadInputRegisters:
		s.writeByte(byte(msg.Function))
		s.writeUint16(msg.Address)
		s.writeUint16(msg.Count)
	case WriteSingleCoil, WriteSingleHoldingRegister:
		s.writeByte(byte(msg.Function))
		s.writeUint16(msg.Address)
		s.write(msg.Data[:2])
	case WriteMultipleCoils, WriteMultipleHoldingRegisters:
		size := sizeForCount(msg.Function, msg.Count)
		s.writeByte(byte(msg.Function))
		s.writeUint16(msg.Address)
		s.writeUint16(msg.Count)
		s.writeByte(byte(size))
		s.write(msg.Data[:size])
	default:
		return common.ErrInvalidArgument
	}
	return nil
}

// encodeServerResponse serializes an already-validated response (or
// exception) Message as a PDU into s. For read responses, if msg.Data
// already aliases the buffer Engine.ResponseBuffer handed the callback,
// the bytes are already in place and no copy is performed.
func encodeServerResponse(s *scratch, msg *Message) error {
	if msg.Exception != ExceptionNone {
		s.writeByte(byte(msg.Function.WithException()))
		s.writeByte(byte(msg.Exception))
		return nil
	}
	switch msg.Function {
	case ReadCoils, ReadDiscreteInputs, ReadHoldingRegisters, ReadInputRegisters:
		size := sizeForCount(msg.Function, msg.Count)
		if len(msg.Data) < size {
			return common.ErrInvalidArgument
		}
		s.writeByte(byte(msg.Function))
		s.writeByte(byte(size))
		dst := s.grow(size)
		if !sameBacking(dst, msg.Data[:size]) {
			copy(dst, msg.Data[:size])
		}
	case WriteSingleCoil, WriteSingleHoldingRegister:
		s.writeByte(byte(msg.Function))
		s.writeUint16(msg.Address)
		s.write(msg.Data[:2])
	case WriteMultipleCoils, WriteMultipleHoldingRegisters:
		s.writeByte(byte(msg.Function))
		s.writeUint16(msg.Address)
		s.writeUint16(msg.Count)
	default:
		return common.ErrInvalidArgument
	}
	return nil
}

// decodeClientResponse drives the Transport's Recv state machine to read
// and validate a response to a request already sent, matching it against
// the fields of that request.
func decodeClientResponse(e *Engine, msg *Message, req Message) error {
	s := &e.scratch
	if err := e.driver.Recv(e, msg, 1, RecvStart|RecvResponse); err != nil {
		return err
	}
	if msg.ID != req.ID {
		return fmt.Errorf("modbus: response id %d, expected %d: %w", msg.ID, req.ID, common.ErrProtocolError)
	}

	function := FunctionCode(s.bytes()[0])
	if function.IsException() {
		if err := e.driver.Recv(e, msg, 1, RecvStop); err != nil {
			return err
		}
		exc := ExceptionCode(s.bytes()[1])
		if exc == ExceptionNone {
			return fmt.Errorf("modbus: exception response with no exception code: %w", common.ErrProtocolError)
		}
		msg.Function = req.Function
		msg.Address = req.Address
		msg.Count = req.Count
		msg.Exception = exc
		msg.Data = nil
		return nil
	}
	if function != req.Function {
		return fmt.Errorf("modbus: response function %s, expected %s: %w", function, req.Function, common.ErrProtocolError)
	}
	msg.Function = function
	msg.Exception = ExceptionNone

	switch function {
	case ReadCoils, ReadDiscreteInputs, ReadHoldingRegisters, ReadInputRegisters:
		if err := e.driver.Recv(e, msg, 1, RecvMore); err != nil {
			return err
		}
		size := int(s.bytes()[1])
		want := sizeForCount(function, req.Count)
		if size != want {
			return fmt.Errorf("modbus: response byte count %d, expected %d: %w", size, want, common.ErrProtocolError)
		}
		if err := e.driver.Recv(e, msg, size, RecvStop); err != nil {
			return err
		}
		payload := s.bytes()[2:]
		msg.Address = req.Address
		msg.Count = req.Count
		if req.Data == nil {
			msg.Data = payload
		} else {
			msg.Data = req.Data[:copy(req.Data, payload)]
		}
	case WriteSingleCoil, WriteSingleHoldingRegister:
		if err := e.driver.Recv(e, msg, 4, RecvStop); err != nil {
			return err
		}
		b := s.bytes()
		addr := binary.BigEndian.Uint16(b[1:3])
		if addr != req.Address {
			return fmt.Errorf("modbus: echoed address mismatch: %w", common.ErrProtocolError)
		}
		msg.Address = addr
		msg.Data = b[3:5]
	case WriteMultipleCoils, WriteMultipleHoldingRegisters:
		if err := e.driver.Recv(e, msg, 4, RecvStop); err != nil {
			return err
		}
		b := s.bytes()
		addr := binary.BigEndian.Uint16(b[1:3])
		count := binary.BigEndian.Uint16(b[3:5])
		if addr != req.Address || count != req.Count {
			return fmt.Errorf("modbus: echoed address/count mismatch: %w", common.ErrProtocolError)
		}
		msg.Address = addr
		msg.Count = count
	}
	return nil
}

// decodeServerRequest drives the Transport's Recv state machine to read
// one incoming request, blocking indefinitely for the first (id) byte.
func decodeServerRequest(e *Engine, msg *Message) error {
	s := &e.scratch
	if err := e.driver.Recv(e, msg, 1, RecvStart|RecvRequest); err != nil {
		return err
	}
	function := FunctionCode(s.bytes()[0])
	if function.IsException() {
		return fmt.Errorf("modbus: request carries exception bit: %w", common.ErrProtocolError)
	}
	msg.Function = function
	msg.Exception = ExceptionNone

	switch function {
	case ReadCoils, ReadDiscreteInputs, ReadHoldingRegisters, ReadInputRegisters:
		if err := e.driver.Recv(e, msg, 4, RecvStop); err != nil {
			return err
		}
		b := s.bytes()
		msg.Address = binary.BigEndian.Uint16(b[1:3])
		msg.Count = binary.BigEndian.Uint16(b[3:5])
		msg.Data = nil
	case WriteSingleCoil, WriteSingleHoldingRegister:
		if err := e.driver.Recv(e, msg, 4, RecvStop); err != nil {
			return err
		}
		b := s.bytes()
		msg.Address = binary.BigEndian.Uint16(b[1:3])
		msg.Count = 1
		msg.Data = b[3:5]
	case WriteMultipleCoils, WriteMultipleHoldingRegisters:
		if err := e.driver.Recv(e, msg, 4, RecvMore); err != nil {
			return err
		}
		b := s.bytes()
		msg.Address = binary.BigEndian.Uint16(b[1:3])
		msg.Count = binary.BigEndian.Uint16(b[3:5])
		if err := e.driver.Recv(e, msg, 1, RecvMore); err != nil {
			return err
		}
		size := int(s.bytes()[5])
		want := sizeForCount(function, msg.Count)
		if size != want {
			return fmt.Errorf("modbus: request byte count %d, expected %d: %w", size, want, common.ErrProtocolError)
		}
		if err := e.driver.Recv(e, msg, size, RecvStop); err != nil {
			return err
		}
		msg.Data = s.bytes()[6:]
	default:
		// An unrecognized function code is not a transport error: the
		// original's read_request leaves it to the caller as an
		// IllegalFunction exception and reads no further bytes (the CRC
		// is never checked for this case either), so dispatch/reply can
		// proceed normally.
		msg.Exception = ExceptionIllegalFunction
	}
	return nil
}
