// Package common holds the sentinel errors shared by the PDU engine, the
// RTU transport and the server registry.
package common

import "errors"

// These group into the error taxonomy every exchange can fail with. They
// are deliberately distinct from an on-wire exception response: an
// exception is a successful exchange, surfaced through message.Exception,
// not one of these.
var (
	// ErrInvalidArgument means a caller-supplied Message, count or buffer
	// violates the validator's rules before anything was sent.
	ErrInvalidArgument = errors.New("modbus: invalid argument")

	// ErrBusBusy means the transport could not acquire the bus (RTU:
	// the line never went idle) within its wait budget.
	ErrBusBusy = errors.New("modbus: bus busy")

	// ErrTimeout means a byte, frame or response did not arrive within
	// its configured window.
	ErrTimeout = errors.New("modbus: timeout")

	// ErrBadMessage means bytes were received but failed framing or
	// checksum validation (RTU: CRC mismatch).
	ErrBadMessage = errors.New("modbus: bad message")

	// ErrProtocolError means a well-framed message violated the
	// client/server exchange contract (echoed fields, function code or
	// id mismatch; an exception carrying ExceptionNone).
	ErrProtocolError = errors.New("modbus: protocol error")

	// ErrExists means a server entry with the given id is already
	// registered.
	ErrExists = errors.New("modbus: server already registered")

	// ErrNotFound means no server entry matches the requested id.
	ErrNotFound = errors.New("modbus: server not found")

	// ErrNoDevice means the underlying transport device could not be
	// opened or initialized.
	ErrNoDevice = errors.New("modbus: no such device")
)
