package modbuscore

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/rinzlerlabs/modbuscore/common"
)

// Engine binds a Transport to a server registry and owns the single
// scratch buffer every exchange on this bus is built or parsed through.
// An Engine serializes its own exchanges: ClientRequest, ClientBroadcast
// and ServerListen/ServerReply all hold the same lock across their
// send/recv suspension points, matching a half-duplex bus where only one
// exchange can be in flight.
type Engine struct {
	logger *zap.Logger
	driver Transport

	mu      sync.Mutex
	scratch scratch

	serversMu sync.Mutex
	servers   *ServerEntry
}

// NewEngine initializes driver against a fresh Engine. A nil logger is
// replaced with a no-op logger.
func NewEngine(logger *zap.Logger, driver Transport) (*Engine, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{logger: logger, driver: driver}
	if err := driver.Init(e); err != nil {
		return nil, fmt.Errorf("modbus: transport init: %w", err)
	}
	return e, nil
}

// Grow extends the scratch buffer by n bytes and returns the newly
// exposed tail for a Transport to fill directly off the wire.
func (e *Engine) Grow(n int) []byte { return e.scratch.grow(n) }

// ScratchBytes returns the PDU bytes accumulated in scratch so far.
func (e *Engine) ScratchBytes() []byte { return e.scratch.bytes() }

// ResponseBuffer returns the fixed read-response data offset (2 bytes in)
// of the scratch buffer, sized for size bytes. A server callback handling
// a read request may fill this directly and assign it to
// Message.Data, letting the encoder skip a copy.
func (e *Engine) ResponseBuffer(size int) []byte { return e.scratch.tail(size) }

// Logger returns the Engine's logger, for use by a Transport or
// RequestHandler sharing its lifecycle.
func (e *Engine) Logger() *zap.Logger { return e.logger }

// ClientRequest sends msg as a unicast request and blocks for the
// matching response, overwriting msg with the response's fields.
func (e *Engine) ClientRequest(msg *Message) error {
	if msg.ID == IDBroadcast {
		return common.ErrInvalidArgument
	}
	if err := Validate(*msg); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	req := *msg
	e.scratch.reset()
	if err := encodeClientRequest(&e.scratch, msg); err != nil {
		return err
	}
	if err := e.driver.Send(e, msg, SendRequest); err != nil {
		return err
	}
	e.scratch.reset()
	return decodeClientResponse(e, msg, req)
}

// ClientBroadcast sends msg to every server on the bus; no response is
// expected or read.
func (e *Engine) ClientBroadcast(msg *Message) error {
	msg.ID = IDBroadcast
	if err := Validate(*msg); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	e.scratch.reset()
	if err := encodeClientRequest(&e.scratch, msg); err != nil {
		return err
	}
	return e.driver.Send(e, msg, SendRequest)
}

// ServerListen blocks for one incoming request, then dispatches it to
// every registered ServerEntry that accepts it, most recently registered
// first (the registry's head-first order).
// The Engine's lock is held only while the request is read; it is
// released before any callback runs, so a callback is free to call
// ServerReply or issue its own ClientRequest on the same Engine.
func (e *Engine) ServerListen() error {
	e.mu.Lock()
	e.scratch.reset()
	msg := &Message{}
	err := decodeServerRequest(e, msg)
	e.mu.Unlock()
	if err != nil {
		return err
	}

	for _, entry := range e.matchingServers(msg.ID) {
		if err := entry.Callback(e, entry, msg); err != nil {
			return err
		}
	}
	return nil
}

// ServerReply sends msg as the response to whichever request a callback
// was invoked for. It must not be called for a broadcast request.
func (e *Engine) ServerReply(msg *Message) error {
	if msg.ID == IDBroadcast {
		return common.ErrInvalidArgument
	}
	if err := Validate(*msg); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	e.scratch.reset()
	if err := encodeServerResponse(&e.scratch, msg); err != nil {
		return err
	}
	return e.driver.Send(e, msg, SendResponse)
}
