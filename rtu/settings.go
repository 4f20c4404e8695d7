package rtu

import (
	"errors"
	"net/url"
	"strconv"
	"time"

	sp "github.com/goburrow/serial"
)

var (
	// ErrURIIsNil is returned when an empty URI string is passed to
	// NewSettingsFromURI.
	ErrURIIsNil = errors.New("rtu: uri is empty")
	// ErrInvalidScheme is returned when a settings URI's scheme is not "rtu".
	ErrInvalidScheme = errors.New("rtu: invalid uri scheme")
	// ErrMissingValue is returned when a required query parameter is absent.
	ErrMissingValue = errors.New("rtu: missing required query parameter")
	// ErrInvalidValue is returned when a query parameter fails its own
	// validation (not just type conversion).
	ErrInvalidValue = errors.New("rtu: invalid query parameter value")
)

var validParityValues = []string{"N", "E", "O"}

// PortSettings describes the serial port underneath a Transport: the
// parameters goburrow/serial needs to open the device, independent of the
// Modbus-level Settings (timeouts, RTS) layered on top in Transport.
type PortSettings struct {
	Device   string
	Baud     int
	DataBits int
	Parity   string
	StopBits int
}

// SerialConfig returns the goburrow/serial configuration for opening this
// port.
func (p PortSettings) SerialConfig() *sp.Config {
	return &sp.Config{
		Address:  p.Device,
		BaudRate: p.Baud,
		DataBits: p.DataBits,
		Parity:   p.Parity,
		StopBits: p.StopBits,
	}
}

// URISettings is the full set of parameters a "rtu://" URI can carry,
// combining PortSettings with the response timeout and RTS delay that
// Transport.Settings needs. Its shape mirrors the teacher's
// ClientSettings/ServerSettings pair, collapsed into one struct since the
// RTU Transport here is shared by client and server roles.
type URISettings struct {
	PortSettings
	ResponseTimeout    time.Duration
	DelayRtsBeforeSend time.Duration
}

// NewSettingsFromURI parses a "rtu:///dev/ttyUSB0?baud=19200&dataBits=8&
// parity=N&stopBits=1&responseTimeout=1s" style URI, following the query
// parameter names and scheme check of the teacher's
// settings/serial/settings.go.
func NewSettingsFromURI(uri string) (*URISettings, error) {
	if uri == "" {
		return nil, ErrURIIsNil
	}
	u, err := url.Parse(uri)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "rtu" {
		return nil, ErrInvalidScheme
	}

	s := &URISettings{}
	s.Device = u.Path

	if err := parseIntField(u, "baud", &s.Baud); err != nil {
		return nil, err
	}
	if err := parseIntField(u, "dataBits", &s.DataBits); err != nil {
		return nil, err
	}
	if err := parseStringField(u, "parity", &s.Parity, validParityValues); err != nil {
		return nil, err
	}
	if err := parseIntField(u, "stopBits", &s.StopBits); err != nil {
		return nil, err
	}
	if err := parseDurationField(u, "responseTimeout", &s.ResponseTimeout, time.Second); err != nil {
		return nil, err
	}
	if value := u.Query().Get("delayRtsBeforeSend"); value != "" {
		d, err := time.ParseDuration(value)
		if err != nil {
			return nil, err
		}
		s.DelayRtsBeforeSend = d
	}
	return s, nil
}

func parseIntField(u *url.URL, field string, out *int) error {
	value := u.Query().Get(field)
	if value == "" {
		return ErrMissingValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return err
	}
	*out = n
	return nil
}

func parseStringField(u *url.URL, field string, out *string, valid []string) error {
	value := u.Query().Get(field)
	if value == "" {
		return ErrMissingValue
	}
	for _, v := range valid {
		if v == value {
			*out = value
			return nil
		}
	}
	return ErrInvalidValue
}

func parseDurationField(u *url.URL, field string, out *time.Duration, def time.Duration) error {
	value := u.Query().Get(field)
	if value == "" {
		*out = def
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return err
	}
	*out = d
	return nil
}

// Settings builds a Transport.Settings from the URI-parsed values,
// including DelayRtsBeforeSend. RTS is left for the caller to fill in if
// the line needs half-duplex direction control; a nil RTS defaults to full
// duplex.
func (s *URISettings) Settings() Settings {
	return Settings{
		Baud:               s.Baud,
		ResponseTimeout:    s.ResponseTimeout,
		DelayRtsBeforeSend: s.DelayRtsBeforeSend,
	}
}
