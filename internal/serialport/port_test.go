// SPDX-License-Identifier: MIT

package serialport

import (
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// pipeDevice pairs a Port with the far end of an in-memory duplex stream.
func pipeDevice(t *testing.T) (*Port, net.Conn) {
	t.Helper()
	local, remote := net.Pipe()
	p := wrap(local, DefaultBufferSize)
	t.Cleanup(func() {
		_ = p.Close()
		_ = remote.Close()
	})
	return p, remote
}

func waitAvailable(t *testing.T, p *Port, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		n, err := p.Available()
		require.NoError(t, err)
		if n >= want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d available bytes", want)
}

func TestPumpBuffersIncomingBytes(t *testing.T) {
	p, remote := pipeDevice(t)

	go func() {
		_, _ = remote.Write([]byte{1, 2, 3, 4})
	}()

	waitAvailable(t, p, 4)

	buf := make([]byte, 8)
	n, err := p.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, []byte{1, 2, 3, 4}, buf[:n])

	// Drained ring: non-blocking zero read.
	n, err = p.Read(buf)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestWriteReachesDevice(t *testing.T) {
	p, remote := pipeDevice(t)

	got := make(chan []byte, 1)
	go func() {
		buf := make([]byte, 8)
		n, _ := remote.Read(buf)
		got <- buf[:n]
	}()

	n, err := p.Write([]byte{9, 8, 7})
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	select {
	case data := <-got:
		assert.Equal(t, []byte{9, 8, 7}, data)
	case <-time.After(2 * time.Second):
		t.Fatal("device never saw the write")
	}
}

func TestRingOverrunDropsOldest(t *testing.T) {
	local, remote := net.Pipe()
	p := wrap(local, 4)
	t.Cleanup(func() {
		_ = p.Close()
		_ = remote.Close()
	})

	go func() {
		_, _ = remote.Write([]byte{1, 2, 3, 4, 5, 6})
	}()

	waitAvailable(t, p, 4)
	// The pump may deliver in chunks; give the ring a moment to settle.
	time.Sleep(20 * time.Millisecond)

	buf := make([]byte, 8)
	n, err := p.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, []byte{3, 4, 5, 6}, buf[:n])
}

func TestCloseStopsPump(t *testing.T) {
	local, remote := net.Pipe()
	p := wrap(local, DefaultBufferSize)
	defer remote.Close() //nolint:errcheck

	require.NoError(t, p.Close())
	require.NoError(t, p.Close(), "double close is a no-op")

	_, err := p.Write([]byte{1})
	assert.ErrorIs(t, err, ErrClosed)

	_, err = p.Read(make([]byte, 1))
	assert.ErrorIs(t, err, ErrClosed)

	_, err = p.Available()
	assert.ErrorIs(t, err, ErrClosed)
}

func TestDeviceFailureSurfacesAfterDrain(t *testing.T) {
	local, remote := net.Pipe()
	p := wrap(local, DefaultBufferSize)
	t.Cleanup(func() { _ = p.Close() })

	go func() {
		_, _ = remote.Write([]byte{5, 5})
		_ = remote.Close()
	}()

	waitAvailable(t, p, 2)

	buf := make([]byte, 4)
	n, err := p.Read(buf)
	require.NoError(t, err, "buffered bytes drain cleanly first")
	assert.Equal(t, 2, n)

	// Once the ring is empty the pump's device error is visible.
	deadline := time.Now().Add(2 * time.Second)
	for {
		_, err = p.Available()
		if err != nil || time.Now().After(deadline) {
			break
		}
		time.Sleep(time.Millisecond)
	}
	assert.ErrorIs(t, err, io.EOF)
}
