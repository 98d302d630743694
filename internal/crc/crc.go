// SPDX-License-Identifier: MIT

// Package crc implements a table-driven cyclic redundancy check with
// configurable width, polynomial, initial value and final XOR.
//
// Only non-reflected polynomials are supported. Checksums are serialized
// big-endian (most significant byte first), which preserves the residue
// property: running the calculation over a packet with its own checksum
// appended yields zero for an uncorrupted packet. The transport package
// relies on that property to validate incoming packets without comparing
// checksums explicitly.
package crc

import "errors"

// Width is the bit width of a CRC polynomial.
type Width uint8

const (
	Width8  Width = 8
	Width16 Width = 16
	Width32 Width = 32
)

var (
	// ErrInvalidWidth is returned for widths other than 8, 16 or 32 bits.
	ErrInvalidWidth = errors.New("crc: width must be 8, 16 or 32 bits")
	// ErrBufferTooSmall is returned when a buffer cannot hold the checksum
	// at the requested offset.
	ErrBufferTooSmall = errors.New("crc: buffer too small for checksum")
	// ErrNegativeOffset is returned for negative buffer offsets.
	ErrNegativeOffset = errors.New("crc: negative buffer offset")
)

// Parameters describe a CRC variant. Polynomial, Initial and FinalXOR are
// truncated to the configured width.
type Parameters struct {
	Width      Width
	Polynomial uint32
	Initial    uint32
	FinalXOR   uint32
}

// Presets mirroring the checksum families the protocol has been run with.
// All of them use a zero final XOR so the receiver-side residue check holds.
var (
	CRC8       = Parameters{Width: Width8, Polynomial: 0x07}
	CRC16CCITT = Parameters{Width: Width16, Polynomial: 0x1021, Initial: 0xFFFF}
	CRC32MPEG2 = Parameters{Width: Width32, Polynomial: 0x04C11DB7, Initial: 0xFFFFFFFF}
)

// Processor computes checksums for one CRC variant using a precomputed
// 256-entry lookup table. A Processor is safe for concurrent use once
// constructed.
type Processor struct {
	params Parameters
	size   int    // checksum size in bytes
	mask   uint32 // keeps intermediate values inside the configured width
	table  [256]uint32
}

// New builds the lookup table for the given parameters.
func New(params Parameters) (*Processor, error) {
	switch params.Width {
	case Width8, Width16, Width32:
	default:
		return nil, ErrInvalidWidth
	}

	p := &Processor{
		params: params,
		size:   int(params.Width) / 8,
	}
	if params.Width == Width32 {
		p.mask = 0xFFFFFFFF
	} else {
		p.mask = (1 << params.Width) - 1
	}

	topBit := uint32(1) << (params.Width - 1)
	poly := params.Polynomial & p.mask
	for i := 0; i < 256; i++ {
		entry := uint32(i) << (params.Width - 8)
		for bit := 0; bit < 8; bit++ {
			if entry&topBit != 0 {
				entry = (entry << 1) ^ poly
			} else {
				entry <<= 1
			}
		}
		p.table[i] = entry & p.mask
	}
	return p, nil
}

// MustNew is New for statically known parameters; it panics on error.
func MustNew(params Parameters) *Processor {
	p, err := New(params)
	if err != nil {
		panic(err)
	}
	return p
}

// Size returns the checksum size in bytes.
func (p *Processor) Size() int {
	return p.size
}

// Parameters returns the variant this processor was built for.
func (p *Processor) Parameters() Parameters {
	return p.params
}

// Checksum calculates the checksum of data.
func (p *Processor) Checksum(data []byte) uint32 {
	sum := p.params.Initial & p.mask
	shift := p.params.Width - 8
	for _, b := range data {
		idx := byte(sum>>shift) ^ b
		sum = ((sum << 8) ^ p.table[idx]) & p.mask
	}
	return (sum ^ p.params.FinalXOR) & p.mask
}

// Append writes sum to buf at offset, most significant byte first, and
// returns the offset immediately following the written checksum.
func (p *Processor) Append(buf []byte, offset int, sum uint32) (int, error) {
	if offset < 0 {
		return 0, ErrNegativeOffset
	}
	if offset+p.size > len(buf) {
		return 0, ErrBufferTooSmall
	}
	for i := 0; i < p.size; i++ {
		shift := uint(8 * (p.size - 1 - i))
		buf[offset+i] = byte(sum >> shift)
	}
	return offset + p.size, nil
}

// Read extracts an MSB-first checksum from buf at offset.
func (p *Processor) Read(buf []byte, offset int) (uint32, error) {
	if offset < 0 {
		return 0, ErrNegativeOffset
	}
	if offset+p.size > len(buf) {
		return 0, ErrBufferTooSmall
	}
	var sum uint32
	for i := 0; i < p.size; i++ {
		sum = sum<<8 | uint32(buf[offset+i])
	}
	return sum, nil
}
