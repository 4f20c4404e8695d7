package modbuscore

// SendFlags tells a Transport which half of an exchange is being
// transmitted, for logging/framing purposes that care about the
// distinction. Bus arbitration itself does not: RTU waits for the bus to
// go idle before every send, request or response alike.
type SendFlags uint8

const (
	SendRequest SendFlags = 1 << iota
	SendResponse
)

// RecvFlags drives a Transport's receive state machine one step at a
// time, mirroring how the PDU codec discovers frame length as it parses:
// Start begins a new frame (and, combined with Request or Response,
// selects the indefinite-wait or response-timeout policy for the first
// byte); More continues reading a frame whose length is not yet fully
// known; Stop reads the final bytes of a frame and triggers whatever
// framing/checksum validation the transport performs once a frame is
// believed complete.
type RecvFlags uint8

const (
	RecvRequest RecvFlags = 1 << iota
	RecvResponse
	RecvStart
	RecvMore
	RecvStop
)

// Transport is the narrow seam between the PDU engine and a physical (or
// simulated) bus. Implementations own everything below the PDU: framing,
// addressing, checksums and bus arbitration.
//
// Send transmits the PDU currently held in the Engine's scratch buffer
// as msg's payload. Recv reads exactly n more PDU bytes into the same
// scratch buffer, appending them (Engine.Grow), and additionally
// populates msg.ID the first time RecvStart is set for a frame.
//
// A Transport implementation must serialize its own Send/Recv pairs; the
// Engine additionally holds a coarse lock across a whole exchange, so in
// practice only one exchange is ever in flight per Engine.
type Transport interface {
	Init(e *Engine) error
	Send(e *Engine, msg *Message, flags SendFlags) error
	Recv(e *Engine, msg *Message, n int, flags RecvFlags) error
}
