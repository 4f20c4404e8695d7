package rtu

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// FileConfig is the file/env-loadable shape of an RTU bus's configuration,
// following the mapstructure tagging of ffutop-modbus-gateway's
// internal/config.SerialConfig, including its RS-485 knobs. Unlike
// URISettings, this form is meant for a YAML config file or environment
// variables rather than a single connection string.
type FileConfig struct {
	Device   string `mapstructure:"device"`
	BaudRate int    `mapstructure:"baud_rate"`
	DataBits int    `mapstructure:"data_bits"`
	Parity   string `mapstructure:"parity"`
	StopBits int    `mapstructure:"stop_bits"`

	ResponseTimeout time.Duration `mapstructure:"response_timeout"`

	// RS485 gates DelayRtsBeforeSend: when false, TransportSettings leaves
	// the delay at zero. It does not choose the RTSController; see
	// TransportSettings.
	RS485              bool          `mapstructure:"rs485"`
	DelayRtsBeforeSend time.Duration `mapstructure:"delay_rts_before_send"`
}

// LoadFileConfig reads RTU settings from configFile (or, if empty, from a
// YAML file named "modbus" in the current directory or /etc/modbuscore/),
// with top-level keys overridable by MODBUS_-prefixed environment
// variables, applying the same defaults the teacher's gateway applies
// before unmarshaling. A missing config file is not an error.
func LoadFileConfig(configFile string) (*FileConfig, error) {
	v := viper.New()
	v.SetDefault("device", "/dev/ttyUSB0")
	v.SetDefault("baud_rate", 19200)
	v.SetDefault("data_bits", 8)
	v.SetDefault("parity", "N")
	v.SetDefault("stop_bits", 1)
	v.SetDefault("response_timeout", time.Second)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("modbus")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/modbuscore/")
	}
	v.SetEnvPrefix("MODBUS")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("rtu: read config: %w", err)
		}
	}

	var cfg FileConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("rtu: unmarshal config: %w", err)
	}
	cfg.Parity = strings.ToUpper(cfg.Parity)
	return &cfg, nil
}

// PortSettings extracts the goburrow/serial-facing fields.
func (c *FileConfig) PortSettings() PortSettings {
	return PortSettings{
		Device:   c.Device,
		Baud:     c.BaudRate,
		DataBits: c.DataBits,
		Parity:   c.Parity,
		StopBits: c.StopBits,
	}
}

// TransportSettings builds a Transport.Settings from the file config. rts
// is supplied by the caller since an RTSController is a GPIO binding this
// package has no way to construct generically; pass nil for full duplex
// regardless of RS485 (RS485 only controls whether DelayRtsBeforeSend is
// honored, not the controller wiring itself).
func (c *FileConfig) TransportSettings(rts RTSController) Settings {
	var delay time.Duration
	if c.RS485 {
		delay = c.DelayRtsBeforeSend
	}
	return Settings{
		Baud:               c.BaudRate,
		ResponseTimeout:    c.ResponseTimeout,
		RTS:                rts,
		DelayRtsBeforeSend: delay,
	}
}
