// SPDX-License-Identifier: MIT

package crc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// checkInput is the standard CRC catalogue check string.
var checkInput = []byte("123456789")

func TestChecksumKnownAnswers(t *testing.T) {
	tests := []struct {
		name   string
		params Parameters
		want   uint32
	}{
		{name: "CRC-8/SMBUS", params: CRC8, want: 0xF4},
		{name: "CRC-16/CCITT-FALSE", params: CRC16CCITT, want: 0x29B1},
		{name: "CRC-32/MPEG-2", params: CRC32MPEG2, want: 0x0376E6E7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := New(tt.params)
			require.NoError(t, err)
			assert.Equal(t, tt.want, p.Checksum(checkInput))
		})
	}
}

func TestResidueIsZero(t *testing.T) {
	// The transport validates packets by checksumming data plus its own
	// MSB-first checksum and expecting zero. Verify the property for every
	// preset.
	for _, params := range []Parameters{CRC8, CRC16CCITT, CRC32MPEG2} {
		p := MustNew(params)

		buf := make([]byte, len(checkInput)+p.Size())
		copy(buf, checkInput)
		sum := p.Checksum(checkInput)
		end, err := p.Append(buf, len(checkInput), sum)
		require.NoError(t, err)
		require.Equal(t, len(buf), end)

		assert.Zero(t, p.Checksum(buf), "residue for width %d", params.Width)
	}
}

func TestAppendReadRoundTrip(t *testing.T) {
	p := MustNew(CRC16CCITT)

	buf := make([]byte, 8)
	next, err := p.Append(buf, 2, 0xABCD)
	require.NoError(t, err)
	assert.Equal(t, 4, next)
	assert.Equal(t, []byte{0xAB, 0xCD}, buf[2:4], "MSB first")

	sum, err := p.Read(buf, 2)
	require.NoError(t, err)
	assert.EqualValues(t, 0xABCD, sum)
}

func TestBufferBounds(t *testing.T) {
	p := MustNew(CRC32MPEG2)

	buf := make([]byte, 6)
	_, err := p.Append(buf, 4, 0)
	assert.ErrorIs(t, err, ErrBufferTooSmall)

	_, err = p.Read(buf, 3)
	assert.ErrorIs(t, err, ErrBufferTooSmall)

	_, err = p.Append(buf, -1, 0)
	assert.ErrorIs(t, err, ErrNegativeOffset)
}

func TestInvalidWidth(t *testing.T) {
	_, err := New(Parameters{Width: 12, Polynomial: 0x80F})
	assert.ErrorIs(t, err, ErrInvalidWidth)
}

func TestChecksumIncrementalConsistency(t *testing.T) {
	// A checksum over concatenated data must match independent
	// calculations byte by byte through the table.
	p := MustNew(CRC8)
	full := p.Checksum([]byte{1, 2, 3, 4, 5})
	again := p.Checksum([]byte{1, 2, 3, 4, 5})
	assert.Equal(t, full, again)
	assert.NotEqual(t, full, p.Checksum([]byte{1, 2, 3, 4, 6}))
}
