// SPDX-License-Identifier: MIT

// Package config loads the daemon configuration from defaults, an optional
// YAML file, and AXTL_-prefixed environment variables, in rising precedence.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/sun-lab-nbb/axtl/internal/crc"
	"github.com/sun-lab-nbb/axtl/internal/log"
)

// CRC preset names accepted by the CRCPreset field.
const (
	PresetCRC8  = "crc8"
	PresetCRC16 = "crc16"
	PresetCRC32 = "crc32"
)

var (
	// ErrUnknownCRCPreset indicates a CRCPreset outside crc8/crc16/crc32.
	ErrUnknownCRCPreset = errors.New("config: unknown crc preset")
	// ErrInvalidPayloadWindow indicates inconsistent payload size bounds.
	ErrInvalidPayloadWindow = errors.New("config: invalid payload size window")
	// ErrReservedByte indicates the start byte and delimiter collide.
	ErrReservedByte = errors.New("config: start byte and delimiter must differ")
	// ErrInvalidBaudRate indicates a non-positive baud rate.
	ErrInvalidBaudRate = errors.New("config: baud rate must be positive")
	// ErrInvalidTimeout indicates a non-positive packet timeout.
	ErrInvalidTimeout = errors.New("config: timeout must be positive")
	// ErrInvalidRateLimit indicates a non-positive API rate limit.
	ErrInvalidRateLimit = errors.New("config: rate limit must be positive")
)

// Config holds every tunable of the daemon.
type Config struct {
	// Device is the serial device path. When empty the daemon runs against
	// an in-memory loopback instead of real hardware.
	Device   string `yaml:"device"`
	BaudRate int    `yaml:"baudRate"`

	StartByte     byte          `yaml:"startByte"`
	DelimiterByte byte          `yaml:"delimiterByte"`
	Timeout       time.Duration `yaml:"timeout"`

	MinPayloadSize   int `yaml:"minPayloadSize"`
	MaxTxPayloadSize int `yaml:"maxTxPayloadSize"`
	MaxRxPayloadSize int `yaml:"maxRxPayloadSize"`

	// CRCPreset selects the postamble checksum: crc8, crc16 or crc32.
	CRCPreset            string `yaml:"crcPreset"`
	AllowStartByteErrors bool   `yaml:"allowStartByteErrors"`

	ListenAddr   string `yaml:"listenAddr"`
	RateLimitRPS int    `yaml:"rateLimitRPS"`

	LogLevel   string `yaml:"logLevel"`
	LogService string `yaml:"logService"`
}

// Default returns the configuration used when nothing is overridden.
func Default() Config {
	return Config{
		Device:           "",
		BaudRate:         115200,
		StartByte:        129,
		DelimiterByte:    0,
		Timeout:          20 * time.Millisecond,
		MinPayloadSize:   1,
		MaxTxPayloadSize: 254,
		MaxRxPayloadSize: 254,
		CRCPreset:        PresetCRC16,
		ListenAddr:       ":8080",
		RateLimitRPS:     30,
		LogLevel:         "info",
		LogService:       "axtl",
	}
}

// Load builds the effective configuration. Values come from defaults, then
// the YAML file at path (when path is non-empty), then the environment.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.applyFile(path); err != nil {
			return Config{}, err
		}
	}
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	logger := log.WithComponent("config")
	logger.Info().
		Str("event", "config.loaded").
		Str("device", cfg.Device).
		Int("baud_rate", cfg.BaudRate).
		Str("crc_preset", cfg.CRCPreset).
		Dur("timeout", cfg.Timeout).
		Str("listen_addr", cfg.ListenAddr).
		Msg("configuration loaded")
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Device = ParseString("AXTL_DEVICE", c.Device)
	c.BaudRate = ParseInt("AXTL_BAUD_RATE", c.BaudRate)
	c.StartByte = ParseByte("AXTL_START_BYTE", c.StartByte)
	c.DelimiterByte = ParseByte("AXTL_DELIMITER_BYTE", c.DelimiterByte)
	c.Timeout = ParseDuration("AXTL_TIMEOUT", c.Timeout)
	c.MinPayloadSize = ParseInt("AXTL_MIN_PAYLOAD_SIZE", c.MinPayloadSize)
	c.MaxTxPayloadSize = ParseInt("AXTL_MAX_TX_PAYLOAD_SIZE", c.MaxTxPayloadSize)
	c.MaxRxPayloadSize = ParseInt("AXTL_MAX_RX_PAYLOAD_SIZE", c.MaxRxPayloadSize)
	c.CRCPreset = ParseString("AXTL_CRC_PRESET", c.CRCPreset)
	c.AllowStartByteErrors = ParseBool("AXTL_ALLOW_START_BYTE_ERRORS", c.AllowStartByteErrors)
	c.ListenAddr = ParseString("AXTL_LISTEN_ADDR", c.ListenAddr)
	c.RateLimitRPS = ParseInt("AXTL_RATE_LIMIT_RPS", c.RateLimitRPS)
	c.LogLevel = ParseString("AXTL_LOG_LEVEL", c.LogLevel)
	c.LogService = ParseString("AXTL_LOG_SERVICE", c.LogService)
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	if c.BaudRate <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidBaudRate, c.BaudRate)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("%w: %s", ErrInvalidTimeout, c.Timeout)
	}
	if c.StartByte == c.DelimiterByte {
		return fmt.Errorf("%w: both are %d", ErrReservedByte, c.StartByte)
	}
	if c.MinPayloadSize < 1 || c.MaxTxPayloadSize > 254 || c.MaxRxPayloadSize > 254 {
		return fmt.Errorf("%w: min=%d maxTx=%d maxRx=%d",
			ErrInvalidPayloadWindow, c.MinPayloadSize, c.MaxTxPayloadSize, c.MaxRxPayloadSize)
	}
	if c.MinPayloadSize > c.MaxTxPayloadSize || c.MinPayloadSize > c.MaxRxPayloadSize {
		return fmt.Errorf("%w: min=%d maxTx=%d maxRx=%d",
			ErrInvalidPayloadWindow, c.MinPayloadSize, c.MaxTxPayloadSize, c.MaxRxPayloadSize)
	}
	if _, err := c.CRCParameters(); err != nil {
		return err
	}
	if c.RateLimitRPS <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidRateLimit, c.RateLimitRPS)
	}
	return nil
}

// CRCParameters maps the configured preset name to checksum parameters.
func (c *Config) CRCParameters() (crc.Parameters, error) {
	switch c.CRCPreset {
	case PresetCRC8:
		return crc.CRC8, nil
	case PresetCRC16:
		return crc.CRC16CCITT, nil
	case PresetCRC32:
		return crc.CRC32MPEG2, nil
	default:
		return crc.Parameters{}, fmt.Errorf("%w: %q", ErrUnknownCRCPreset, c.CRCPreset)
	}
}
