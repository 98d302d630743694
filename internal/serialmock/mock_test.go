// SPDX-License-Identifier: MIT

package serialmock

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadWriteAndLoopBack(t *testing.T) {
	m := New()

	n, err := m.Write([]byte{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, []byte{1, 2, 3}, m.Transmitted())

	avail, err := m.Available()
	require.NoError(t, err)
	assert.Zero(t, avail, "writes do not appear on the reception side")

	m.LoopBack()
	avail, err = m.Available()
	require.NoError(t, err)
	assert.Equal(t, 3, avail)
	assert.Empty(t, m.Transmitted(), "loopback drains the transmission side")

	buf := make([]byte, 2)
	n, err = m.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []byte{1, 2}, buf)

	n, err = m.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.EqualValues(t, 3, buf[0])

	// Empty reception side: non-blocking zero read.
	n, err = m.Read(buf)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestCorruptTransmitted(t *testing.T) {
	m := New()
	_, err := m.Write([]byte{0x00, 0x10})
	require.NoError(t, err)

	m.CorruptTransmitted(1)
	assert.Equal(t, []byte{0x00, 0xEF}, m.Transmitted())

	// Out-of-range indices are ignored.
	m.CorruptTransmitted(99)
	m.CorruptTransmitted(-1)
	assert.Equal(t, []byte{0x00, 0xEF}, m.Transmitted())
}

func TestResetAndClose(t *testing.T) {
	m := New()
	m.FeedReceive([]byte{9})
	_, err := m.Write([]byte{8})
	require.NoError(t, err)

	require.NoError(t, m.Close())
	avail, err := m.Available()
	require.NoError(t, err)
	assert.Zero(t, avail)
	assert.Empty(t, m.Transmitted())
}

func TestPairDeliversAcrossTheLine(t *testing.T) {
	a, b := Pair()

	_, err := a.Write([]byte{1, 2, 3})
	require.NoError(t, err)

	avail, err := b.Available()
	require.NoError(t, err)
	assert.Equal(t, 3, avail)

	buf := make([]byte, 8)
	n, err := b.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, buf[:n])

	// A's own reception side stays empty; the write went to the peer.
	avail, err = a.Available()
	require.NoError(t, err)
	assert.Zero(t, avail)

	// Both sides still record their own transmissions.
	assert.Equal(t, []byte{1, 2, 3}, a.Transmitted())
	assert.Empty(t, b.Transmitted())

	_, err = b.Write([]byte{9})
	require.NoError(t, err)
	avail, err = a.Available()
	require.NoError(t, err)
	assert.Equal(t, 1, avail)
}
