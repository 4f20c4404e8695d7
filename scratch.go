package modbuscore

import "encoding/binary"

// pduMaxSize is the largest PDU a Modbus ADU can carry, per the protocol's
// 253-byte ceiling (256-byte ADU minus the smallest framing overhead).
const pduMaxSize = 253

// scratch is the fixed-size buffer every exchange is built or parsed into.
// It never allocates: requests are encoded directly into it, and responses
// are read directly into it byte-by-byte by the Transport, so a caller
// that leaves Message.Data nil gets a slice aliasing scratch with no copy.
type scratch struct {
	buf [pduMaxSize]byte
	n   int
}

func (s *scratch) reset() { s.n = 0 }

func (s *scratch) len() int { return s.n }

func (s *scratch) bytes() []byte { return s.buf[:s.n] }

func (s *scratch) writeByte(b byte) { s.buf[s.n] = b; s.n++ }

func (s *scratch) writeUint16(v uint16) {
	binary.BigEndian.PutUint16(s.buf[s.n:], v)
	s.n += 2
}

func (s *scratch) write(p []byte) { s.n += copy(s.buf[s.n:], p) }

// grow extends the buffer by n bytes and returns the newly exposed tail,
// for a Transport to fill directly off the wire.
func (s *scratch) grow(n int) []byte {
	start := s.n
	s.n += n
	return s.buf[start:s.n]
}

// tail returns the size bytes starting at offset 2, the fixed header size
// of every read response (function code + byte count). A server callback
// can fill this in place via Engine.ResponseBuffer before encoding,
// avoiding the copy encodeServerResponse would otherwise perform.
func (s *scratch) tail(size int) []byte {
	return s.buf[2 : 2+size]
}

func sameBacking(a, b []byte) bool {
	if len(a) == 0 || len(b) == 0 {
		return len(a) == len(b)
	}
	return &a[0] == &b[0]
}
