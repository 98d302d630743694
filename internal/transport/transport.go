// SPDX-License-Identifier: MIT

// Package transport implements the packet protocol used for serialized
// data exchange between a host and a microcontroller over a serial link.
//
// Every packet on the wire has the layout
//
//	[START] [PAYLOAD SIZE] [COBS OVERHEAD] [PAYLOAD 1..254] [DELIMITER] [CRC 1|2|4]
//
// Callers only ever touch the payload region, through Write and Read. The
// framing bytes, COBS encoding and CRC postamble are managed internally by
// Send and Receive. The engine stages outgoing and incoming packets in two
// fixed buffers whose layout the cobs package encodes and decodes in place.
package transport

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/sun-lab-nbb/axtl/internal/cobs"
	"github.com/sun-lab-nbb/axtl/internal/crc"
)

var (
	// ErrNoBytes is returned by Receive when the port does not hold enough
	// bytes to represent a complete packet.
	ErrNoBytes = errors.New("transport: no packet bytes available")
	// ErrStartByteNotFound is returned instead of ErrNoBytes when start
	// byte errors are enabled and the buffered bytes contain no start byte.
	ErrStartByteNotFound = errors.New("transport: start byte not found")
	// ErrSizeByteTimeout is returned when the payload size byte does not
	// arrive within the packet timeout.
	ErrSizeByteTimeout = errors.New("transport: timed out waiting for payload size byte")
	// ErrInvalidPayloadSize is returned when the declared payload size is
	// outside the receiver's accepted window.
	ErrInvalidPayloadSize = errors.New("transport: declared payload size out of range")
	// ErrPacketTimeout is returned when packet bytes stop arriving before
	// the delimiter is seen.
	ErrPacketTimeout = errors.New("transport: packet reception timed out")
	// ErrDelimiterNotFound is returned when the declared number of packet
	// bytes arrives without a terminating delimiter.
	ErrDelimiterNotFound = errors.New("transport: delimiter not found at end of packet")
	// ErrDelimiterTooEarly is returned when the delimiter arrives before
	// the declared end of the packet.
	ErrDelimiterTooEarly = errors.New("transport: delimiter found before end of packet")
	// ErrPostambleTimeout is returned when the CRC postamble does not
	// arrive within the packet timeout.
	ErrPostambleTimeout = errors.New("transport: timed out waiting for checksum postamble")
	// ErrChecksumMismatch is returned when the received packet fails the
	// CRC residue check.
	ErrChecksumMismatch = errors.New("transport: checksum mismatch, packet corrupted")
	// ErrWriteOverflow is returned when a Write would extend past the
	// transmission payload region.
	ErrWriteOverflow = errors.New("transport: object does not fit in payload region")
	// ErrReadOverflow is returned when a Read would extend past the
	// received payload.
	ErrReadOverflow = errors.New("transport: read exceeds received payload")
	// ErrUnsupportedType is returned when a value has no fixed binary size.
	ErrUnsupportedType = errors.New("transport: value must have a fixed binary size")
	// ErrInvalidOption is returned by New for out-of-range configuration.
	ErrInvalidOption = errors.New("transport: invalid option")
)

// pollInterval is the sleep between port polls while waiting for bytes.
const pollInterval = 50 * time.Microsecond

// TransportLayer stages, frames and validates packets over a Port.
//
// The type is not safe for concurrent use: the staged buffers are shared
// state between Write/Send and Receive/Read. Callers that need concurrent
// transmit and receive run two instances over the same full-duplex port.
type TransportLayer struct {
	port Port
	crc  *crc.Processor

	startByte            byte
	delimiter            byte
	timeout              time.Duration
	minPayload           int
	maxTxPayload         int
	maxRxPayload         int
	allowStartByteErrors bool

	// Smallest byte count that can hold a complete inbound packet; used by
	// Available to skip doomed reception attempts.
	minPacketSize int

	txBuf []byte
	rxBuf []byte
}

// New validates the configuration and returns a ready engine. The
// transmission buffer's start byte is fixed at construction.
func New(port Port, opts ...Option) (*TransportLayer, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	if o.maxTxPayload < cobs.MinPayloadSize || o.maxTxPayload > cobs.MaxPayloadSize {
		return nil, fmt.Errorf("%w: max tx payload %d outside [1, 254]", ErrInvalidOption, o.maxTxPayload)
	}
	if o.maxRxPayload < cobs.MinPayloadSize || o.maxRxPayload > cobs.MaxPayloadSize {
		return nil, fmt.Errorf("%w: max rx payload %d outside [1, 254]", ErrInvalidOption, o.maxRxPayload)
	}
	if o.minPayload < cobs.MinPayloadSize || o.minPayload > o.maxRxPayload {
		return nil, fmt.Errorf("%w: min payload %d outside [1, %d]", ErrInvalidOption, o.minPayload, o.maxRxPayload)
	}
	if o.timeout <= 0 {
		return nil, fmt.Errorf("%w: timeout must be positive", ErrInvalidOption)
	}

	processor, err := crc.New(o.crcParams)
	if err != nil {
		return nil, err
	}

	// Payload size plus preamble, overhead, delimiter and postamble bytes.
	t := &TransportLayer{
		port:                 port,
		crc:                  processor,
		startByte:            o.startByte,
		delimiter:            o.delimiter,
		timeout:              o.timeout,
		minPayload:           o.minPayload,
		maxTxPayload:         o.maxTxPayload,
		maxRxPayload:         o.maxRxPayload,
		allowStartByteErrors: o.allowStartByteErrors,
		minPacketSize:        o.minPayload + cobs.OverheadIndex + processor.Size(),
		txBuf:                make([]byte, o.maxTxPayload+cobs.OverheadIndex+2+processor.Size()),
		rxBuf:                make([]byte, o.maxRxPayload+cobs.OverheadIndex+2+processor.Size()),
	}
	t.txBuf[0] = t.startByte
	return t, nil
}

// Available reports whether the port holds enough bytes to plausibly
// contain a complete packet. It is a cheap pre-check for Receive.
func (t *TransportLayer) Available() bool {
	n, err := t.port.Available()
	return err == nil && n >= t.minPacketSize
}

// ResetTransmissionBuffer clears the staged payload tracker and the COBS
// overhead placeholder, readying the buffer for a fresh payload.
func (t *TransportLayer) ResetTransmissionBuffer() {
	t.txBuf[cobs.PayloadSizeIndex] = 0
	t.txBuf[cobs.OverheadIndex] = 0
}

// ResetReceptionBuffer clears the received payload tracker and the COBS
// overhead placeholder.
func (t *TransportLayer) ResetReceptionBuffer() {
	t.rxBuf[cobs.PayloadSizeIndex] = 0
	t.rxBuf[cobs.OverheadIndex] = 0
}

// TxPayloadSize returns the number of staged transmission payload bytes.
func (t *TransportLayer) TxPayloadSize() int {
	return int(t.txBuf[cobs.PayloadSizeIndex])
}

// RxPayloadSize returns the number of received payload bytes.
func (t *TransportLayer) RxPayloadSize() int {
	return int(t.rxBuf[cobs.PayloadSizeIndex])
}

// MaxTxPayloadSize returns the configured transmission payload cap.
func (t *TransportLayer) MaxTxPayloadSize() int {
	return t.maxTxPayload
}

// MaxRxPayloadSize returns the configured reception payload cap.
func (t *TransportLayer) MaxRxPayloadSize() int {
	return t.maxRxPayload
}

// Write serializes v, little-endian, into the transmission payload region
// starting at payload index start, and returns the payload index
// immediately after the written bytes so calls can be chained. v must have
// a fixed binary size (scalars, arrays, or structs of such).
//
// The staged payload size only ever grows: overwriting previously written
// bytes does not shrink it. Use ResetTransmissionBuffer to discard a
// staged payload.
func (t *TransportLayer) Write(v any, start int) (int, error) {
	size := binary.Size(v)
	if size < 0 {
		return 0, fmt.Errorf("%w: %T", ErrUnsupportedType, v)
	}
	if start < 0 {
		return 0, fmt.Errorf("%w: negative start index", ErrWriteOverflow)
	}
	required := start + size
	if required > t.maxTxPayload {
		return 0, fmt.Errorf("%w: %d bytes at index %d, cap %d", ErrWriteOverflow, size, start, t.maxTxPayload)
	}

	region := t.txBuf[cobs.PayloadStart+start : cobs.PayloadStart+required]
	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, v); err != nil {
		return 0, fmt.Errorf("%w: %T", ErrUnsupportedType, v)
	}
	copy(region, buf.Bytes())

	if required > int(t.txBuf[cobs.PayloadSizeIndex]) {
		t.txBuf[cobs.PayloadSizeIndex] = byte(required)
	}
	return required, nil
}

// Read deserializes bytes from the received payload region, starting at
// payload index start, into v, which must be a pointer to a fixed-size
// value. It returns the payload index immediately after the consumed bytes.
// Reading past the received payload size is refused: bytes beyond it are
// stale leftovers from earlier packets.
func (t *TransportLayer) Read(v any, start int) (int, error) {
	size := binary.Size(v)
	if size < 0 {
		return 0, fmt.Errorf("%w: %T", ErrUnsupportedType, v)
	}
	if start < 0 {
		return 0, fmt.Errorf("%w: negative start index", ErrReadOverflow)
	}
	required := start + size
	if required > int(t.rxBuf[cobs.PayloadSizeIndex]) {
		return 0, fmt.Errorf("%w: %d bytes at index %d, received %d",
			ErrReadOverflow, size, start, t.rxBuf[cobs.PayloadSizeIndex])
	}

	region := t.rxBuf[cobs.PayloadStart+start : cobs.PayloadStart+required]
	if err := binary.Read(bytes.NewReader(region), binary.LittleEndian, v); err != nil {
		return 0, fmt.Errorf("%w: %T", ErrUnsupportedType, v)
	}
	return required, nil
}

// CopyRxPayloadToTx stages the received payload for retransmission. It
// backs echo-style exchanges without deserializing the payload first.
func (t *TransportLayer) CopyRxPayloadToTx() error {
	size := t.RxPayloadSize()
	if size > t.maxTxPayload {
		return fmt.Errorf("%w: received %d bytes, transmission cap %d", ErrWriteOverflow, size, t.maxTxPayload)
	}
	copy(t.txBuf[cobs.PayloadStart:cobs.PayloadStart+size], t.rxBuf[cobs.PayloadStart:cobs.PayloadStart+size])
	if size > t.TxPayloadSize() {
		t.txBuf[cobs.PayloadSizeIndex] = byte(size)
	}
	return nil
}

// ReceivedPayload returns a copy of the received payload bytes.
func (t *TransportLayer) ReceivedPayload() []byte {
	size := t.RxPayloadSize()
	payload := make([]byte, size)
	copy(payload, t.rxBuf[cobs.PayloadStart:cobs.PayloadStart+size])
	return payload
}

// WireSize returns the on-wire byte count of a packet carrying the given
// payload size: preamble, framing, payload and checksum.
func (t *TransportLayer) WireSize(payloadSize int) int {
	return payloadSize + cobs.OverheadIndex + 2 + t.crc.Size()
}

// Send frames the staged payload and transmits it: COBS-encodes the
// payload in place, checksums the encoded packet, appends the checksum and
// writes preamble, packet and postamble to the port in one call. On
// success the transmission tracker is reset for the next payload.
func (t *TransportLayer) Send() error {
	packetSize, err := cobs.Encode(t.txBuf, t.delimiter)
	if err != nil {
		return fmt.Errorf("transport: encode: %w", err)
	}

	// The checksum covers the encoded packet only: overhead byte through
	// delimiter. The preamble stays outside so the receiver can locate the
	// packet before validating it.
	sum := t.crc.Checksum(t.txBuf[cobs.OverheadIndex : cobs.OverheadIndex+packetSize])
	combined, err := t.crc.Append(t.txBuf, cobs.OverheadIndex+packetSize, sum)
	if err != nil {
		t.ResetTransmissionBuffer()
		return fmt.Errorf("transport: append checksum: %w", err)
	}

	if _, err := t.port.Write(t.txBuf[:combined]); err != nil {
		// The buffer already holds an encoded packet at this point. Reset it
		// so the failure is confined to this packet and the next staged
		// payload starts from a clean tracker.
		t.ResetTransmissionBuffer()
		return fmt.Errorf("transport: port write: %w", err)
	}

	t.ResetTransmissionBuffer()
	return nil
}

// Receive parses one packet from the port into the reception buffer,
// verifies its checksum and COBS-decodes the payload in place. After a
// successful call the payload is readable through Read, and its size
// through RxPayloadSize.
func (t *TransportLayer) Receive() error {
	if !t.Available() {
		return ErrNoBytes
	}

	t.ResetReceptionBuffer()

	packetSize, err := t.parsePacket()
	if err != nil {
		return err
	}
	return t.validatePacket(packetSize)
}

// parsePacket scans the port for the start byte and reads the declared
// packet plus the CRC postamble into the reception buffer. It returns the
// byte count of packet plus postamble (the preamble is excluded).
func (t *TransportLayer) parsePacket() (int, error) {
	if !t.scanStartByte() {
		// Noise without a start byte is routine and reported as an absence
		// of packets unless the caller opted into explicit errors.
		if t.allowStartByteErrors {
			return 0, ErrStartByteNotFound
		}
		return 0, ErrNoBytes
	}

	sizeByte, ok := t.readByte(time.Now().Add(t.timeout))
	if !ok {
		return 0, ErrSizeByteTimeout
	}
	payloadSize := int(sizeByte)
	if payloadSize < t.minPayload || payloadSize > t.maxRxPayload {
		return 0, fmt.Errorf("%w: %d outside [%d, %d]", ErrInvalidPayloadSize, payloadSize, t.minPayload, t.maxRxPayload)
	}
	t.rxBuf[cobs.PayloadSizeIndex] = sizeByte

	// Packet bytes start at the overhead byte position. The delimiter is
	// the only legitimate way to finish this loop early.
	bytesRead := cobs.OverheadIndex
	remaining := payloadSize + cobs.OverheadIndex + 2
	delimiterFound := false
	deadline := time.Now().Add(t.timeout)
	for bytesRead < remaining {
		b, ok := t.readByte(deadline)
		if !ok {
			return 0, ErrPacketTimeout
		}
		deadline = time.Now().Add(t.timeout)
		t.rxBuf[bytesRead] = b
		bytesRead++
		if b == t.delimiter {
			delimiterFound = true
			break
		}
	}
	if !delimiterFound {
		return 0, ErrDelimiterNotFound
	}
	if bytesRead != remaining {
		return 0, ErrDelimiterTooEarly
	}

	postambleEnd := remaining + t.crc.Size()
	deadline = time.Now().Add(t.timeout)
	for bytesRead < postambleEnd {
		b, ok := t.readByte(deadline)
		if !ok {
			return 0, ErrPostambleTimeout
		}
		deadline = time.Now().Add(t.timeout)
		t.rxBuf[bytesRead] = b
		bytesRead++
	}

	return bytesRead - cobs.OverheadIndex, nil
}

// validatePacket checks the CRC residue over packet plus postamble and
// COBS-decodes the payload. packetSize counts the encoded packet and the
// appended checksum, excluding the preamble.
func (t *TransportLayer) validatePacket(packetSize int) error {
	// Checksumming data together with its own MSB-first checksum yields
	// zero for an intact packet, so no explicit comparison is needed.
	residue := t.crc.Checksum(t.rxBuf[cobs.OverheadIndex : cobs.OverheadIndex+packetSize])
	if residue != 0 {
		return ErrChecksumMismatch
	}

	if _, err := cobs.Decode(t.rxBuf, t.delimiter); err != nil {
		return fmt.Errorf("transport: decode: %w", err)
	}
	return nil
}

// scanStartByte consumes buffered bytes until the start byte is found.
// It never waits: scanning stops as soon as the port runs dry.
func (t *TransportLayer) scanStartByte() bool {
	var one [1]byte
	for {
		avail, err := t.port.Available()
		if err != nil || avail <= 0 {
			return false
		}
		if n, err := t.port.Read(one[:]); err != nil || n != 1 {
			return false
		}
		if one[0] == t.startByte {
			return true
		}
	}
}

// readByte polls the port for a single byte until the deadline passes.
func (t *TransportLayer) readByte(deadline time.Time) (byte, bool) {
	var one [1]byte
	for {
		n, err := t.port.Read(one[:])
		if err == nil && n == 1 {
			return one[0], true
		}
		if time.Now().After(deadline) {
			return 0, false
		}
		time.Sleep(pollInterval)
	}
}
