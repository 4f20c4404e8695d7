package modbuscore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/rinzlerlabs/modbuscore/common"
)

// scriptedTransport is a test double standing in for a real Transport: it
// hands back a preloaded PDU byte-by-byte the way rtu.Transport would pull
// them off the wire, and records every Send call's framed PDU so a test can
// assert on exactly what the codec wrote, mirroring the teacher's
// testSerialPort fakes in transport/serial/*/transport_test.go.
type scriptedTransport struct {
	id  uint8
	pdu []byte
	pos int

	recvErr   error
	sendCalls []sendCall
}

type sendCall struct {
	id    uint8
	flags SendFlags
	pdu   []byte
}

func (s *scriptedTransport) Init(e *Engine) error { return nil }

func (s *scriptedTransport) Send(e *Engine, msg *Message, flags SendFlags) error {
	s.sendCalls = append(s.sendCalls, sendCall{
		id:    msg.ID,
		flags: flags,
		pdu:   append([]byte(nil), e.ScratchBytes()...),
	})
	return nil
}

func (s *scriptedTransport) Recv(e *Engine, msg *Message, n int, flags RecvFlags) error {
	if s.recvErr != nil {
		err := s.recvErr
		s.recvErr = nil
		return err
	}
	if flags&RecvStart != 0 {
		msg.ID = s.id
	}
	if s.pos+n > len(s.pdu) {
		return common.ErrTimeout
	}
	dst := e.Grow(n)
	copy(dst, s.pdu[s.pos:s.pos+n])
	s.pos += n
	return nil
}

func newTestEngine(t *testing.T, transport *scriptedTransport) *Engine {
	t.Helper()
	e, err := NewEngine(zaptest.NewLogger(t), transport)
	require.NoError(t, err)
	return e
}

// TestClientRequestReadCoils covers spec §8 scenario 1: ReadCoils, count 31
// at 0x001D, server responds with 4 bytes of packed coil data.
func TestClientRequestReadCoils(t *testing.T) {
	transport := &scriptedTransport{
		id:  0x11,
		pdu: []byte{0x01, 0x04, 0xCD, 0x6B, 0xB2, 0x7F},
	}
	e := newTestEngine(t, transport)

	msg := &Message{ID: 0x11, Function: ReadCoils, Address: 0x001D, Count: 31}
	require.NoError(t, e.ClientRequest(msg))

	require.Len(t, transport.sendCalls, 1)
	assert.Equal(t, []byte{0x01, 0x00, 0x1D, 0x00, 0x1F}, transport.sendCalls[0].pdu)
	assert.Equal(t, SendRequest, transport.sendCalls[0].flags)

	assert.Equal(t, ExceptionNone, msg.Exception)
	assert.Equal(t, []byte{0xCD, 0x6B, 0xB2, 0x7F}, msg.Data)
}

// TestClientRequestReadHoldingRegisters covers scenario 2.
func TestClientRequestReadHoldingRegisters(t *testing.T) {
	transport := &scriptedTransport{
		id:  0x11,
		pdu: []byte{0x03, 0x06, 0xAE, 0x41, 0x56, 0x52, 0x43, 0x40},
	}
	e := newTestEngine(t, transport)

	msg := &Message{ID: 0x11, Function: ReadHoldingRegisters, Address: 0x006F, Count: 3}
	require.NoError(t, e.ClientRequest(msg))

	assert.Equal(t, []byte{0x03, 0x00, 0x6F, 0x00, 0x03}, transport.sendCalls[0].pdu)
	assert.Equal(t, []byte{0xAE, 0x41, 0x56, 0x52, 0x43, 0x40}, msg.Data)
}

// TestClientRequestWriteSingleCoil covers scenario 3.
func TestClientRequestWriteSingleCoil(t *testing.T) {
	transport := &scriptedTransport{
		id:  0x11,
		pdu: []byte{0x05, 0x00, 0xBF, 0xFF, 0x00},
	}
	e := newTestEngine(t, transport)

	msg := &Message{ID: 0x11, Function: WriteSingleCoil, Address: 0x00BF, Data: []byte{0xFF, 0x00}}
	require.NoError(t, e.ClientRequest(msg))

	assert.Equal(t, []byte{0x05, 0x00, 0xBF, 0xFF, 0x00}, transport.sendCalls[0].pdu)
	assert.Equal(t, []byte{0xFF, 0x00}, msg.Data)
}

// TestClientRequestWriteMultipleHoldingRegisters covers scenario 4.
func TestClientRequestWriteMultipleHoldingRegisters(t *testing.T) {
	transport := &scriptedTransport{
		id:  0x11,
		pdu: []byte{0x10, 0x00, 0x12, 0x00, 0x02},
	}
	e := newTestEngine(t, transport)

	msg := &Message{
		ID: 0x11, Function: WriteMultipleHoldingRegisters, Address: 0x0012, Count: 2,
		Data: []byte{0x0B, 0x0A, 0xC1, 0x02},
	}
	require.NoError(t, e.ClientRequest(msg))

	assert.Equal(t, []byte{0x10, 0x00, 0x12, 0x00, 0x02, 0x04, 0x0B, 0x0A, 0xC1, 0x02}, transport.sendCalls[0].pdu)
	assert.Equal(t, uint16(0x0012), msg.Address)
	assert.Equal(t, uint16(2), msg.Count)
}

// TestClientRequestExceptionResponse covers scenario 5: a ReadCoils request
// answered with an IllegalAddress exception is a successful exchange, not
// an error.
func TestClientRequestExceptionResponse(t *testing.T) {
	transport := &scriptedTransport{
		id:  0x11,
		pdu: []byte{0x81, 0x02},
	}
	e := newTestEngine(t, transport)

	msg := &Message{ID: 0x11, Function: ReadCoils, Address: 0x0100, Count: 10}
	require.NoError(t, e.ClientRequest(msg))

	assert.Equal(t, ExceptionIllegalAddress, msg.Exception)
	assert.Nil(t, msg.Data)
}

func TestClientRequestIDMismatchIsProtocolError(t *testing.T) {
	transport := &scriptedTransport{id: 0x99, pdu: []byte{0x01, 0x01, 0x00}}
	e := newTestEngine(t, transport)

	msg := &Message{ID: 0x11, Function: ReadCoils, Address: 0, Count: 1}
	err := e.ClientRequest(msg)
	assert.ErrorIs(t, err, common.ErrProtocolError)
}

func TestClientRequestFunctionMismatchIsProtocolError(t *testing.T) {
	transport := &scriptedTransport{id: 0x11, pdu: []byte{0x03, 0x02, 0x00, 0x00}}
	e := newTestEngine(t, transport)

	msg := &Message{ID: 0x11, Function: ReadCoils, Address: 0, Count: 1}
	err := e.ClientRequest(msg)
	assert.ErrorIs(t, err, common.ErrProtocolError)
}

func TestClientRequestBadSizeByteIsProtocolError(t *testing.T) {
	transport := &scriptedTransport{id: 0x11, pdu: []byte{0x01, 0x09, 0x00}}
	e := newTestEngine(t, transport)

	msg := &Message{ID: 0x11, Function: ReadCoils, Address: 0, Count: 1}
	err := e.ClientRequest(msg)
	assert.ErrorIs(t, err, common.ErrProtocolError)
}

func TestClientRequestBroadcastRejected(t *testing.T) {
	transport := &scriptedTransport{}
	e := newTestEngine(t, transport)

	msg := &Message{ID: IDBroadcast, Function: ReadCoils, Count: 1}
	assert.ErrorIs(t, e.ClientRequest(msg), common.ErrInvalidArgument)
}

func TestClientBroadcastSendsNoReceive(t *testing.T) {
	transport := &scriptedTransport{}
	e := newTestEngine(t, transport)

	msg := &Message{Function: WriteSingleCoil, Address: 1, Data: []byte{0xFF, 0x00}}
	require.NoError(t, e.ClientBroadcast(msg))

	require.Len(t, transport.sendCalls, 1)
	assert.Equal(t, uint8(IDBroadcast), transport.sendCalls[0].id)
}

// TestServerListenDispatchesAndReplies exercises the server-side path: a
// request is decoded, the matching ServerEntry's callback runs with the
// lock released, calls ServerReply itself, and the framed response is
// observed on the same scriptedTransport.
func TestServerListenDispatchesAndReplies(t *testing.T) {
	transport := &scriptedTransport{
		id:  0x5B,
		pdu: []byte{0x01, 0x00, 0x1D, 0x00, 0x1F},
	}
	e := newTestEngine(t, transport)

	var gotAddress uint16
	entry := &ServerEntry{
		ID: 0x5B,
		Callback: func(e *Engine, entry *ServerEntry, msg *Message) error {
			gotAddress = msg.Address
			msg.Data = []byte{0xCD, 0x6B, 0xB2, 0x7F}
			return e.ServerReply(msg)
		},
	}
	require.NoError(t, e.ServerAdd(entry))
	require.NoError(t, e.ServerListen())

	assert.Equal(t, uint16(0x001D), gotAddress)
	require.Len(t, transport.sendCalls, 1)
	assert.Equal(t, []byte{0x01, 0x04, 0xCD, 0x6B, 0xB2, 0x7F}, transport.sendCalls[0].pdu)
}

// TestServerListenExceptionReply checks that a callback-raised exception
// (here IllegalAddress for a known function code) still produces a correct
// two-byte exception PDU through the normal reply path.
func TestServerListenExceptionReply(t *testing.T) {
	transport := &scriptedTransport{
		id:  0x01,
		pdu: []byte{0x01, 0x00, 0x00, 0x00, 0x0A},
	}
	e := newTestEngine(t, transport)

	entry := &ServerEntry{
		ID: 0x01,
		Callback: func(e *Engine, entry *ServerEntry, msg *Message) error {
			msg.Exception = ExceptionIllegalAddress
			return e.ServerReply(msg)
		},
	}
	require.NoError(t, e.ServerAdd(entry))
	require.NoError(t, e.ServerListen())

	assert.Equal(t, []byte{0x81, 0x02}, transport.sendCalls[0].pdu)
}

// TestServerListenUnknownFunctionExceptionResponse covers spec §8 scenario
// 6: an unrecognized function code (0x2B) on the wire is not a decode
// error. decodeServerRequest sets exception = IllegalFunction itself, reads
// no further bytes, and dispatch/reply proceed normally, producing the
// two-byte exception PDU AB 01 (0x2B | 0x80, then IllegalFunction).
func TestServerListenUnknownFunctionExceptionResponse(t *testing.T) {
	transport := &scriptedTransport{
		id:  0x01,
		pdu: []byte{0x2B},
	}
	e := newTestEngine(t, transport)

	called := false
	entry := &ServerEntry{
		ID: 0x01,
		Callback: func(e *Engine, entry *ServerEntry, msg *Message) error {
			called = true
			assert.Equal(t, ExceptionIllegalFunction, msg.Exception)
			return e.ServerReply(msg)
		},
	}
	require.NoError(t, e.ServerAdd(entry))
	require.NoError(t, e.ServerListen())

	assert.True(t, called)
	require.Len(t, transport.sendCalls, 1)
	assert.Equal(t, []byte{0xAB, 0x01}, transport.sendCalls[0].pdu)
}

func TestServerListenBroadcastCallbackMustNotReply(t *testing.T) {
	transport := &scriptedTransport{
		id:  IDBroadcast,
		pdu: []byte{0x05, 0x00, 0x01, 0xFF, 0x00},
	}
	e := newTestEngine(t, transport)

	called := false
	entry := &ServerEntry{
		ID:    0x01,
		Flags: ReceiveBroadcast,
		Callback: func(e *Engine, entry *ServerEntry, msg *Message) error {
			called = true
			return nil
		},
	}
	require.NoError(t, e.ServerAdd(entry))
	require.NoError(t, e.ServerListen())

	assert.True(t, called)
	assert.Empty(t, transport.sendCalls)
}

func TestServerReplyRejectsBroadcast(t *testing.T) {
	transport := &scriptedTransport{}
	e := newTestEngine(t, transport)

	msg := &Message{ID: IDBroadcast, Function: ReadCoils, Count: 1, Exception: ExceptionIllegalFunction}
	assert.ErrorIs(t, e.ServerReply(msg), common.ErrInvalidArgument)
}

func TestZeroCopyClientResponseAliasesScratch(t *testing.T) {
	transport := &scriptedTransport{
		id:  0x01,
		pdu: []byte{0x03, 0x02, 0x00, 0x2A},
	}
	e := newTestEngine(t, transport)

	msg := &Message{ID: 0x01, Function: ReadHoldingRegisters, Address: 0, Count: 1}
	require.NoError(t, e.ClientRequest(msg))

	assert.Equal(t, e.ScratchBytes()[2:4], msg.Data)
}
