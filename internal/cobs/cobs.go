// SPDX-License-Identifier: MIT

// Package cobs implements in-place Consistent Overhead Byte Stuffing over a
// staged packet buffer.
//
// COBS guarantees that a chosen delimiter value appears exactly once in an
// encoded packet, as its final byte, which makes the delimiter a reliable
// packet boundary on a raw byte stream. See Cheshire & Baker, "Consistent
// Overhead Byte Stuffing", IEEE/ACM Transactions on Networking 7(2), 1999.
//
// Both Encode and Decode operate on a buffer with a fixed layout: the
// payload size tracker lives at index 1, the COBS overhead byte at index 2
// and the payload starts at index 3. The transport package owns that layout;
// this package only assumes it.
package cobs

import "errors"

// Buffer layout shared with the transport package.
const (
	// PayloadSizeIndex is the buffer index holding the payload size tracker.
	PayloadSizeIndex = 1
	// OverheadIndex is the buffer index holding the COBS overhead byte. It
	// doubles as the preamble size.
	OverheadIndex = 2
	// PayloadStart is the buffer index of the first payload byte.
	PayloadStart = OverheadIndex + 1
)

// Encoding limits imposed by the single-byte COBS distance pointers.
const (
	MinPayloadSize = 1
	MaxPayloadSize = 254
	MinPacketSize  = 3   // overhead + 1 payload byte + delimiter
	MaxPacketSize  = 256 // overhead + 254 payload bytes + delimiter
)

var (
	// ErrPayloadTooSmall is returned when asked to encode an empty payload.
	ErrPayloadTooSmall = errors.New("cobs: payload is empty")
	// ErrPayloadTooLarge is returned when the payload exceeds 254 bytes.
	ErrPayloadTooLarge = errors.New("cobs: payload exceeds 254 bytes")
	// ErrBufferTooSmall is returned when the buffer cannot hold the packet
	// the operation would produce or consume.
	ErrBufferTooSmall = errors.New("cobs: buffer too small for packet")
	// ErrAlreadyEncoded is returned when the overhead byte of a buffer
	// submitted for encoding is non-zero. Re-encoding corrupts data.
	ErrAlreadyEncoded = errors.New("cobs: payload already encoded")
	// ErrAlreadyDecoded is returned when the overhead byte of a buffer
	// submitted for decoding is zero. Re-decoding corrupts data.
	ErrAlreadyDecoded = errors.New("cobs: packet already decoded")
	// ErrPacketTooSmall is returned when the declared packet is below the
	// 3-byte COBS minimum.
	ErrPacketTooSmall = errors.New("cobs: packet below minimum size")
	// ErrPacketTooLarge is returned when the declared packet exceeds the
	// 256-byte COBS maximum.
	ErrPacketTooLarge = errors.New("cobs: packet exceeds maximum size")
	// ErrDelimiterTooEarly is returned when an unencoded delimiter shows up
	// before the end of the packet. The data is corrupted in a way the CRC
	// check did not catch.
	ErrDelimiterTooEarly = errors.New("cobs: delimiter found before end of packet")
	// ErrDelimiterNotFound is returned when the COBS jump chain never
	// reaches the packet delimiter.
	ErrDelimiterNotFound = errors.New("cobs: unable to reach delimiter")
)

// Encode encodes the staged payload in place and returns the encoded packet
// size (payload + overhead byte + delimiter byte).
//
// The payload size is read from buf[PayloadSizeIndex]. Every payload
// instance of delimiter is replaced with the distance to the next one, the
// overhead byte is set to the distance to the first, and an unencoded
// delimiter is appended immediately after the payload. The overhead byte of
// buf must be zero on entry; a non-zero value means the buffer already
// holds an encoded packet.
func Encode(buf []byte, delimiter byte) (int, error) {
	if len(buf) <= PayloadSizeIndex {
		return 0, ErrBufferTooSmall
	}
	payloadSize := int(buf[PayloadSizeIndex])

	switch {
	case payloadSize < MinPayloadSize:
		return 0, ErrPayloadTooSmall
	case payloadSize > MaxPayloadSize:
		return 0, ErrPayloadTooLarge
	}

	// Space for preamble, payload, overhead and delimiter bytes.
	required := payloadSize + OverheadIndex + 2
	if len(buf) < required {
		return 0, ErrBufferTooSmall
	}

	if buf[OverheadIndex] != 0 {
		return 0, ErrAlreadyEncoded
	}

	payloadEnd := payloadSize + OverheadIndex // inclusive
	delimiterIndex := payloadEnd + 1
	buf[delimiterIndex] = delimiter

	// Walk the payload backwards, turning every delimiter occurrence into a
	// distance pointer to the next one (or to the appended delimiter).
	lastDelimiter := delimiterIndex
	for i := payloadEnd; i >= PayloadStart; i-- {
		if buf[i] == delimiter {
			buf[i] = byte(lastDelimiter - i)
			lastDelimiter = i
		}
	}
	buf[OverheadIndex] = byte(lastDelimiter - OverheadIndex)

	return payloadSize + 2, nil
}

// Decode decodes the packet in place and returns the restored payload size.
//
// The payload size is read from buf[PayloadSizeIndex]. Starting from the
// overhead byte, Decode follows the chain of distance pointers, restoring
// the delimiter value at every hop, until it lands on the unencoded
// delimiter that terminates the packet. Landing on a delimiter anywhere
// else, or running off the end of the packet, reports corruption that
// slipped past the CRC check.
//
// The overhead byte is zeroed before traversal, so a packet is only ever
// decoded once; a second call returns ErrAlreadyDecoded.
func Decode(buf []byte, delimiter byte) (int, error) {
	if len(buf) <= PayloadSizeIndex {
		return 0, ErrBufferTooSmall
	}
	payloadSize := int(buf[PayloadSizeIndex])
	packetSize := payloadSize + 2
	required := payloadSize + OverheadIndex + 2
	delimiterIndex := packetSize + 1

	switch {
	case packetSize < MinPacketSize:
		return 0, ErrPacketTooSmall
	case packetSize > MaxPacketSize:
		return 0, ErrPacketTooLarge
	}
	if len(buf) < required {
		return 0, ErrBufferTooSmall
	}
	if buf[OverheadIndex] == 0 {
		return 0, ErrAlreadyDecoded
	}

	readIndex := OverheadIndex
	next := int(buf[readIndex])
	buf[readIndex] = 0 // marks the packet as decoded even if traversal fails
	readIndex += next

	for readIndex < required {
		if buf[readIndex] == delimiter {
			if readIndex == delimiterIndex {
				return payloadSize, nil
			}
			return 0, ErrDelimiterTooEarly
		}
		next = int(buf[readIndex])
		buf[readIndex] = delimiter
		readIndex += next
	}

	return 0, ErrDelimiterNotFound
}
