// SPDX-License-Identifier: MIT

package transport

import (
	"time"

	"github.com/sun-lab-nbb/axtl/internal/crc"
)

// Protocol defaults, matching the reference firmware configuration.
const (
	DefaultStartByte = 129
	DefaultDelimiter = 0
	DefaultTimeout   = 20 * time.Millisecond
)

type options struct {
	startByte            byte
	delimiter            byte
	timeout              time.Duration
	minPayload           int
	maxTxPayload         int
	maxRxPayload         int
	crcParams            crc.Parameters
	allowStartByteErrors bool
}

// Option configures a TransportLayer.
type Option func(*options)

// WithStartByte sets the byte value that marks the beginning of a packet.
// A value unlikely to occur as line noise improves framing reliability.
func WithStartByte(b byte) Option {
	return func(o *options) { o.startByte = b }
}

// WithDelimiter sets the byte value that terminates a packet. Zero is
// recommended: it is the only value the COBS overhead byte can never take.
func WithDelimiter(b byte) Option {
	return func(o *options) { o.delimiter = b }
}

// WithTimeout sets the maximum wait between two consecutive bytes of the
// same packet. It bounds how long a stale packet can hold up reception.
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// WithMinPayloadSize sets the smallest payload the receiver will accept.
// Raising it lets Available skip reception attempts that cannot succeed.
func WithMinPayloadSize(n int) Option {
	return func(o *options) { o.minPayload = n }
}

// WithMaxTxPayloadSize caps the staged transmission payload and sizes the
// transmission buffer accordingly.
func WithMaxTxPayloadSize(n int) Option {
	return func(o *options) { o.maxTxPayload = n }
}

// WithMaxRxPayloadSize caps accepted incoming payloads and sizes the
// reception buffer accordingly.
func WithMaxRxPayloadSize(n int) Option {
	return func(o *options) { o.maxRxPayload = n }
}

// WithCRC selects the checksum variant. Both ends of the link must agree.
func WithCRC(params crc.Parameters) Option {
	return func(o *options) { o.crcParams = params }
}

// WithStartByteErrors makes Receive report a missing start byte as
// ErrStartByteNotFound instead of the silent ErrNoBytes. Line noise makes
// missing start bytes routine, so this is off by default and intended for
// debugging.
func WithStartByteErrors(enabled bool) Option {
	return func(o *options) { o.allowStartByteErrors = enabled }
}

func defaultOptions() options {
	return options{
		startByte:    DefaultStartByte,
		delimiter:    DefaultDelimiter,
		timeout:      DefaultTimeout,
		minPayload:   1,
		maxTxPayload: 254,
		maxRxPayload: 254,
		crcParams:    crc.CRC16CCITT,
	}
}
