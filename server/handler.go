// Package server adapts a register-store implementation into a
// modbuscore.ServerCallback, following the RequestHandler split of
// server/handler.go in the teacher repo: one method per Modbus operation,
// with address-range and value errors translated into the matching
// exception code at the dispatch boundary instead of inside each store.
package server

import (
	"encoding/binary"
	"errors"
	"sync"

	core "github.com/rinzlerlabs/modbuscore"
)

var (
	// ErrIllegalAddress means a request's address/count range falls
	// outside the store's backing arrays, the modbuscore equivalent of
	// the teacher's common.ErrIllegalDataAddress.
	ErrIllegalAddress = errors.New("server: illegal data address")
	// ErrIllegalValue means a request carried a value the store rejects
	// outright (distinct from a validator failure, which never reaches
	// the store).
	ErrIllegalValue = errors.New("server: illegal data value")
)

// RequestHandler is the interface a register-store implementation
// provides. Count on a read call is always in the validator's legal range
// for that function; the handler only needs to bounds-check address+count
// against its own storage.
type RequestHandler interface {
	ReadCoils(address, count uint16) ([]bool, error)
	ReadDiscreteInputs(address, count uint16) ([]bool, error)
	ReadHoldingRegisters(address, count uint16) ([]uint16, error)
	ReadInputRegisters(address, count uint16) ([]uint16, error)
	WriteSingleCoil(address uint16, on bool) error
	WriteSingleHoldingRegister(address uint16, value uint16) error
	WriteMultipleCoils(address uint16, values []bool) error
	WriteMultipleHoldingRegisters(address uint16, values []uint16) error
}

// Callback adapts h into a modbuscore.ServerCallback suitable for
// registration via Engine.ServerAdd. It writes read responses directly into
// the Engine's scratch buffer through Engine.ResponseBuffer, so a
// zero-copy response never touches an intermediate []bool/[]uint16 slice
// beyond what h itself returns, and calls Engine.ServerReply exactly once
// per unicast request, never on broadcast.
func Callback(h RequestHandler) core.ServerCallback {
	return func(e *core.Engine, entry *core.ServerEntry, msg *core.Message) error {
		// decodeServerRequest already sets Exception (IllegalFunction) for
		// a function code it didn't recognize; dispatch has nothing to do
		// in that case and would otherwise misreport it as IllegalValue.
		if msg.Exception == core.ExceptionNone {
			switch err := dispatch(e, h, msg); {
			case err == nil:
			case errors.Is(err, ErrIllegalAddress):
				msg.Exception = core.ExceptionIllegalAddress
			case errors.Is(err, ErrIllegalValue):
				msg.Exception = core.ExceptionIllegalValue
			default:
				msg.Exception = core.ExceptionServerFailure
			}
		}

		if msg.ID == core.IDBroadcast {
			return nil
		}
		return e.ServerReply(msg)
	}
}

func dispatch(e *core.Engine, h RequestHandler, msg *core.Message) error {
	switch msg.Function {
	case core.ReadCoils, core.ReadDiscreteInputs, core.ReadHoldingRegisters, core.ReadInputRegisters:
		// A read count comes straight off the wire; hold it to the
		// validator's range before it reaches h or sizes a response buffer.
		if core.Validate(*msg) != nil {
			return ErrIllegalValue
		}
	}
	switch msg.Function {
	case core.ReadCoils:
		bits, err := h.ReadCoils(msg.Address, msg.Count)
		if err != nil {
			return err
		}
		dst := e.ResponseBuffer(core.BitCountToSize(msg.Count))
		core.CopyBits(dst, bits)
		msg.Data = dst
	case core.ReadDiscreteInputs:
		bits, err := h.ReadDiscreteInputs(msg.Address, msg.Count)
		if err != nil {
			return err
		}
		dst := e.ResponseBuffer(core.BitCountToSize(msg.Count))
		core.CopyBits(dst, bits)
		msg.Data = dst
	case core.ReadHoldingRegisters:
		regs, err := h.ReadHoldingRegisters(msg.Address, msg.Count)
		if err != nil {
			return err
		}
		dst := e.ResponseBuffer(core.RegCountToSize(msg.Count))
		core.CopyRegisters(dst, regs)
		msg.Data = dst
	case core.ReadInputRegisters:
		regs, err := h.ReadInputRegisters(msg.Address, msg.Count)
		if err != nil {
			return err
		}
		dst := e.ResponseBuffer(core.RegCountToSize(msg.Count))
		core.CopyRegisters(dst, regs)
		msg.Data = dst
	case core.WriteSingleCoil:
		return h.WriteSingleCoil(msg.Address, msg.Data[0] == 0xFF)
	case core.WriteSingleHoldingRegister:
		return h.WriteSingleHoldingRegister(msg.Address, binary.BigEndian.Uint16(msg.Data))
	case core.WriteMultipleCoils:
		return h.WriteMultipleCoils(msg.Address, core.ReadBits(msg.Data, int(msg.Count)))
	case core.WriteMultipleHoldingRegisters:
		return h.WriteMultipleHoldingRegisters(msg.Address, core.ReadRegisters(msg.Data))
	default:
		return ErrIllegalValue
	}
	return nil
}

// DefaultCoilCount and friends are the teacher's default table sizes,
// carried over unchanged (server/handler.go.DefaultCoilCount etc).
const (
	DefaultCoilCount            = 65535
	DefaultDiscreteInputCount   = 65535
	DefaultHoldingRegisterCount = 65535
	DefaultInputRegisterCount   = 65535
)

// MemoryStore is an in-memory RequestHandler, the modbuscore counterpart
// to the teacher's DefaultHandler: four slices guarded by one RWMutex, with
// reads taking the read lock and writes taking the exclusive write lock, so
// a write never runs concurrently with a read of the same tables.
type MemoryStore struct {
	mu               sync.RWMutex
	Coils            []bool
	DiscreteInputs   []bool
	HoldingRegisters []uint16
	InputRegisters   []uint16
}

// NewMemoryStore allocates a MemoryStore with the given table sizes. A
// zero count for any table substitutes the matching Default*Count.
func NewMemoryStore(coilCount, discreteInputCount, holdingRegisterCount, inputRegisterCount int) *MemoryStore {
	if coilCount == 0 {
		coilCount = DefaultCoilCount
	}
	if discreteInputCount == 0 {
		discreteInputCount = DefaultDiscreteInputCount
	}
	if holdingRegisterCount == 0 {
		holdingRegisterCount = DefaultHoldingRegisterCount
	}
	if inputRegisterCount == 0 {
		inputRegisterCount = DefaultInputRegisterCount
	}
	return &MemoryStore{
		Coils:            make([]bool, coilCount),
		DiscreteInputs:   make([]bool, discreteInputCount),
		HoldingRegisters: make([]uint16, holdingRegisterCount),
		InputRegisters:   make([]uint16, inputRegisterCount),
	}
}

func boolRange(table []bool, address, count uint16) ([]bool, error) {
	start, end := int(address), int(address)+int(count)
	if end > len(table) {
		return nil, ErrIllegalAddress
	}
	out := make([]bool, count)
	copy(out, table[start:end])
	return out, nil
}

func regRange(table []uint16, address, count uint16) ([]uint16, error) {
	start, end := int(address), int(address)+int(count)
	if end > len(table) {
		return nil, ErrIllegalAddress
	}
	out := make([]uint16, count)
	copy(out, table[start:end])
	return out, nil
}

func (s *MemoryStore) ReadCoils(address, count uint16) ([]bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return boolRange(s.Coils, address, count)
}

func (s *MemoryStore) ReadDiscreteInputs(address, count uint16) ([]bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return boolRange(s.DiscreteInputs, address, count)
}

func (s *MemoryStore) ReadHoldingRegisters(address, count uint16) ([]uint16, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return regRange(s.HoldingRegisters, address, count)
}

func (s *MemoryStore) ReadInputRegisters(address, count uint16) ([]uint16, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return regRange(s.InputRegisters, address, count)
}

func (s *MemoryStore) WriteSingleCoil(address uint16, on bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if int(address) >= len(s.Coils) {
		return ErrIllegalAddress
	}
	s.Coils[address] = on
	return nil
}

func (s *MemoryStore) WriteSingleHoldingRegister(address uint16, value uint16) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if int(address) >= len(s.HoldingRegisters) {
		return ErrIllegalAddress
	}
	s.HoldingRegisters[address] = value
	return nil
}

func (s *MemoryStore) WriteMultipleCoils(address uint16, values []bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	end := int(address) + len(values)
	if end > len(s.Coils) {
		return ErrIllegalAddress
	}
	copy(s.Coils[address:end], values)
	return nil
}

func (s *MemoryStore) WriteMultipleHoldingRegisters(address uint16, values []uint16) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	end := int(address) + len(values)
	if end > len(s.HoldingRegisters) {
		return ErrIllegalAddress
	}
	copy(s.HoldingRegisters[address:end], values)
	return nil
}
