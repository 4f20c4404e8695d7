package rtu

import (
	"errors"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/rinzlerlabs/modbuscore/common"
	core "github.com/rinzlerlabs/modbuscore"
)

// RTSController drives a transceiver's direction pin for half-duplex RS-485
// lines. A line wired for full duplex (e.g. a direct RS-232 link, or a
// USB-RS485 adapter with automatic direction control) uses noRTS.
type RTSController interface {
	Assert() error
	Deassert() error
}

type noRTS struct{}

func (noRTS) Assert() error   { return nil }
func (noRTS) Deassert() error { return nil }

// Settings configures a Transport. Baud drives the derived byte/frame
// timeouts unless ByteTimeout/FrameTimeout are set explicitly.
type Settings struct {
	Baud            int
	ResponseTimeout time.Duration
	ByteTimeout     time.Duration
	FrameTimeout    time.Duration
	RTS             RTSController
	// DelayRtsBeforeSend, when set, is held after asserting RTS and
	// before writing the frame, for transceivers that need time to
	// switch direction.
	DelayRtsBeforeSend time.Duration
}

// Transport implements modbuscore.Transport over an io.ReadWriteCloser
// serial stream using Modbus RTU framing: a 1-byte id, the PDU, and a
// little-endian CRC16. Per the driver this is ported from, a frame is
// considered complete as soon as its checksum has been read and found
// correct; the 3.5-character inter-frame silence is not independently
// re-verified once that happens, trading a small chance of misframing an
// out-of-sync exchange for not paying for an extra idle wait on every
// frame.
type Transport struct {
	logger   *zap.Logger
	stream   io.ReadWriteCloser
	settings Settings

	byteTimeout  time.Duration
	frameTimeout time.Duration

	ring *Ring
	idle *busIdle

	closeOnce sync.Once
	closed    chan struct{}

	crc CRC
}

// NewTransport wraps stream with RTU framing. It starts a background
// goroutine that reads stream one byte at a time into an internal ring,
// standing in for a UART receive interrupt.
func NewTransport(logger *zap.Logger, stream io.ReadWriteCloser, settings Settings) *Transport {
	if logger == nil {
		logger = zap.NewNop()
	}
	if settings.RTS == nil {
		settings.RTS = noRTS{}
	}
	if settings.ByteTimeout == 0 {
		settings.ByteTimeout = ByteTimeout(settings.Baud)
	}
	if settings.FrameTimeout == 0 {
		settings.FrameTimeout = FrameTimeout(settings.Baud)
	}
	t := &Transport{
		logger:       logger,
		stream:       stream,
		settings:     settings,
		byteTimeout:  settings.ByteTimeout,
		frameTimeout: settings.FrameTimeout,
		ring:         NewRing(256),
		idle:         newBusIdle(settings.FrameTimeout),
		closed:       make(chan struct{}),
	}
	go t.pump()
	return t
}

// pump feeds bytes from the stream into the ring, marking bus activity
// as they arrive.
func (t *Transport) pump() {
	var b [1]byte
	for {
		n, err := t.stream.Read(b[:])
		if n == 1 {
			t.idle.markActivity()
			if werr := t.ring.WriteByte(b[0]); werr != nil {
				t.logger.Warn("rtu: ring buffer overflow, dropping byte")
			}
		}
		if err != nil {
			select {
			case <-t.closed:
			default:
				t.logger.Debug("rtu: stream read stopped", zap.Error(err))
			}
			return
		}
	}
}

// Init is a no-op; the stream is already open by construction.
func (t *Transport) Init(e *core.Engine) error { return nil }

// Close stops the background reader and closes the underlying stream.
func (t *Transport) Close() error {
	t.closeOnce.Do(func() { close(t.closed) })
	return t.stream.Close()
}

// Send is the same for a request or a response; flags is unused, matching
// the driver this is ported from, which ignores its own flags parameter
// here for the same reason: the bus must be idle before any send, and a
// half-duplex line doesn't get to skip arbitration just because it's
// replying rather than initiating.
func (t *Transport) Send(e *core.Engine, msg *core.Message, flags core.SendFlags) error {
	pdu := e.ScratchBytes()

	if !t.idle.waitIdle(t.frameTimeout) {
		return common.ErrBusBusy
	}

	var crc CRC
	crc.Reset()
	crc.PushByte(msg.ID)
	crc.PushBytes(pdu)
	sum := crc.Bytes()

	if err := t.settings.RTS.Assert(); err != nil {
		return err
	}
	defer t.settings.RTS.Deassert()
	if t.settings.DelayRtsBeforeSend > 0 {
		time.Sleep(t.settings.DelayRtsBeforeSend)
	}

	frame := make([]byte, 0, 1+len(pdu)+2)
	frame = append(frame, msg.ID)
	frame = append(frame, pdu...)
	frame = append(frame, sum[:]...)

	if _, err := t.stream.Write(frame); err != nil {
		return err
	}
	t.idle.markActivity()
	return nil
}

func (t *Transport) Recv(e *core.Engine, msg *core.Message, n int, flags core.RecvFlags) error {
	if flags&core.RecvStart != 0 {
		id, err := t.readIDByte(flags)
		if err != nil {
			return err
		}
		msg.ID = id
		t.crc.Reset()
		t.crc.PushByte(id)
	}

	dst := e.Grow(n)
	for i := 0; i < n; i++ {
		b, err := t.ring.ReadByteTimeout(t.byteTimeout)
		if err != nil {
			return common.ErrTimeout
		}
		dst[i] = b
	}
	t.crc.PushBytes(dst)

	if flags&core.RecvStop != 0 {
		lowByte, err := t.ring.ReadByteTimeout(t.byteTimeout)
		if err != nil {
			return common.ErrTimeout
		}
		highByte, err := t.ring.ReadByteTimeout(t.byteTimeout)
		if err != nil {
			return common.ErrTimeout
		}
		wire := uint16(lowByte) | uint16(highByte)<<8
		if wire != t.crc.Value() {
			t.ring.Clear()
			return common.ErrBadMessage
		}
	}
	return nil
}

func (t *Transport) readIDByte(flags core.RecvFlags) (uint8, error) {
	if flags&core.RecvRequest != 0 {
		return t.ring.ReadByteBlocking(), nil
	}
	timeout := t.settings.ResponseTimeout
	if timeout <= 0 {
		timeout = t.frameTimeout
	}
	b, err := t.ring.ReadByteTimeout(timeout)
	if err != nil {
		if errors.Is(err, errReadTimeout) {
			return 0, common.ErrTimeout
		}
		return 0, err
	}
	return b, nil
}
