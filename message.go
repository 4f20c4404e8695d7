// Package modbuscore implements the Modbus protocol data unit: message
// types, the function/exception code tables, the request/response
// validator, the scratch-buffer codec and the Engine that ties a Transport
// to a server registry.
package modbuscore

import "fmt"

// FunctionCode identifies the operation carried by a Message. The high bit
// (0x80) marks an exception response and is never set on a request.
type FunctionCode byte

const (
	ReadCoils                     FunctionCode = 1
	ReadDiscreteInputs            FunctionCode = 2
	ReadHoldingRegisters          FunctionCode = 3
	ReadInputRegisters            FunctionCode = 4
	WriteSingleCoil               FunctionCode = 5
	WriteSingleHoldingRegister    FunctionCode = 6
	WriteMultipleCoils            FunctionCode = 15
	WriteMultipleHoldingRegisters FunctionCode = 16

	exceptionBit FunctionCode = 0x80
)

// IsException reports whether the high bit is set.
func (f FunctionCode) IsException() bool { return f&exceptionBit != 0 }

// WithException returns f with the exception bit set.
func (f FunctionCode) WithException() FunctionCode { return f | exceptionBit }

// WithoutException returns f with the exception bit cleared.
func (f FunctionCode) WithoutException() FunctionCode { return f &^ exceptionBit }

func (f FunctionCode) String() string {
	switch f.WithoutException() {
	case ReadCoils:
		return "ReadCoils"
	case ReadDiscreteInputs:
		return "ReadDiscreteInputs"
	case ReadHoldingRegisters:
		return "ReadHoldingRegisters"
	case ReadInputRegisters:
		return "ReadInputRegisters"
	case WriteSingleCoil:
		return "WriteSingleCoil"
	case WriteSingleHoldingRegister:
		return "WriteSingleHoldingRegister"
	case WriteMultipleCoils:
		return "WriteMultipleCoils"
	case WriteMultipleHoldingRegisters:
		return "WriteMultipleHoldingRegisters"
	default:
		return fmt.Sprintf("FunctionCode(%d)", byte(f))
	}
}

// ExceptionCode is the single-byte payload of an exception response.
// ExceptionNone means the message carries no exception.
type ExceptionCode byte

const (
	ExceptionNone                ExceptionCode = 0
	ExceptionIllegalFunction     ExceptionCode = 1
	ExceptionIllegalAddress      ExceptionCode = 2
	ExceptionIllegalValue        ExceptionCode = 3
	ExceptionServerFailure       ExceptionCode = 4
	ExceptionAcknowledge         ExceptionCode = 5
	ExceptionServerBusy          ExceptionCode = 6
	ExceptionNegativeAcknowledge ExceptionCode = 7
	ExceptionMemoryParityError   ExceptionCode = 8
)

func (e ExceptionCode) String() string {
	switch e {
	case ExceptionNone:
		return "None"
	case ExceptionIllegalFunction:
		return "IllegalFunction"
	case ExceptionIllegalAddress:
		return "IllegalAddress"
	case ExceptionIllegalValue:
		return "IllegalValue"
	case ExceptionServerFailure:
		return "ServerFailure"
	case ExceptionAcknowledge:
		return "Acknowledge"
	case ExceptionServerBusy:
		return "ServerBusy"
	case ExceptionNegativeAcknowledge:
		return "NegativeAcknowledge"
	case ExceptionMemoryParityError:
		return "MemoryParityError"
	default:
		return fmt.Sprintf("ExceptionCode(%d)", byte(e))
	}
}

// Server ids, per the closed range a Modbus RTU bus allows.
const (
	IDBroadcast uint8 = 0
	IDMin       uint8 = 1
	IDMax       uint8 = 247
	IDInvalid   uint8 = 255
)

// Message spans every shape the engine moves across the wire: a client
// request, a client-visible response, and the request/response a server
// callback sees. Data aliases the engine's scratch buffer unless the
// caller supplied its own backing slice, so callers must treat it as
// valid only until the next call that touches the same Engine.
type Message struct {
	ID        uint8
	Function  FunctionCode
	Address   uint16
	Count     uint16
	Exception ExceptionCode
	Data      []byte
}
