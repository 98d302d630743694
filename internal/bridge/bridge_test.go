// SPDX-License-Identifier: MIT

package bridge

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/sun-lab-nbb/axtl/internal/serialmock"
	"github.com/sun-lab-nbb/axtl/internal/transport"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// newLoop joins a peer transport and a bridge over a duplex pair of mock
// ports, like two devices on a crossed serial cable.
func newLoop(t *testing.T) (*Bridge, *transport.TransportLayer, *serialmock.Mock) {
	t.Helper()
	peerPort, bridgePort := serialmock.Pair()

	peer, err := transport.New(peerPort, transport.WithTimeout(25*time.Millisecond))
	require.NoError(t, err)

	engine, err := transport.New(bridgePort, transport.WithTimeout(25*time.Millisecond))
	require.NoError(t, err)

	return New(engine, WithPollInterval(time.Millisecond)), peer, bridgePort
}

// runBridge starts the exchange loop and returns a stop function that
// cancels it and waits for the goroutine to exit.
func runBridge(t *testing.T, b *Bridge) func() {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()

	var once sync.Once
	stop := func() {
		once.Do(func() {
			cancel()
			select {
			case err := <-done:
				require.NoError(t, err)
			case <-time.After(2 * time.Second):
				t.Fatal("bridge did not stop on cancel")
			}
		})
	}
	t.Cleanup(stop)
	return stop
}

func waitEchoed(t *testing.T, b *Bridge, want uint64) {
	t.Helper()
	require.Eventually(t, func() bool {
		return b.Stats().PacketsEchoed >= want
	}, 2*time.Second, time.Millisecond, "bridge never echoed %d packets", want)
}

func receiveEcho(t *testing.T, peer *transport.TransportLayer) {
	t.Helper()
	require.Eventually(t, func() bool {
		return peer.Receive() == nil
	}, 2*time.Second, time.Millisecond, "echo never arrived back at the peer")
}

func TestEchoRoundTrip(t *testing.T) {
	b, peer, _ := newLoop(t)
	runBridge(t, b)

	_, err := peer.Write([4]uint8{1, 2, 3, 4}, 0)
	require.NoError(t, err)
	require.NoError(t, peer.Send())

	waitEchoed(t, b, 1)
	receiveEcho(t, peer)
	assert.Equal(t, []byte{1, 2, 3, 4}, peer.ReceivedPayload())

	stats := b.Stats()
	assert.EqualValues(t, 1, stats.PacketsEchoed)
	assert.EqualValues(t, 4, stats.PayloadBytes)
	assert.Empty(t, stats.LastError)
	assert.False(t, stats.LastExchangeTime.IsZero())
}

func TestEchoSequence(t *testing.T) {
	b, peer, _ := newLoop(t)
	runBridge(t, b)

	for i := 1; i <= 5; i++ {
		_, err := peer.Write(uint32(i), 0)
		require.NoError(t, err)
		require.NoError(t, peer.Send())

		waitEchoed(t, b, uint64(i))
		receiveEcho(t, peer)

		var got uint32
		_, err = peer.Read(&got, 0)
		require.NoError(t, err)
		assert.EqualValues(t, i, got)
	}

	assert.EqualValues(t, 5, b.Stats().PacketsEchoed)
}

func TestCorruptPacketCountsAsFailure(t *testing.T) {
	b, peer, bridgePort := newLoop(t)

	// Build a valid frame on a detached port, flip a payload byte and
	// inject it on the bridge's reception side.
	scratch := serialmock.New()
	builder, err := transport.New(scratch, transport.WithTimeout(25*time.Millisecond))
	require.NoError(t, err)
	_, err = builder.Write([4]uint8{1, 2, 3, 4}, 0)
	require.NoError(t, err)
	require.NoError(t, builder.Send())

	frame := scratch.Transmitted()
	frame[5] ^= 0xFF
	bridgePort.FeedReceive(frame)

	runBridge(t, b)

	require.Eventually(t, func() bool {
		return b.Stats().ReceiveFailures >= 1
	}, 2*time.Second, time.Millisecond)

	stats := b.Stats()
	assert.Zero(t, stats.PacketsEchoed)
	assert.NotEmpty(t, stats.LastError)

	// The loop survives: a clean packet afterwards still gets echoed.
	_, err = peer.Write([2]uint8{7, 8}, 0)
	require.NoError(t, err)
	require.NoError(t, peer.Send())
	waitEchoed(t, b, 1)
	receiveEcho(t, peer)
	assert.Equal(t, []byte{7, 8}, peer.ReceivedPayload())
}

func TestLastExchangeCallback(t *testing.T) {
	b, peer, _ := newLoop(t)

	when, lastErr := b.LastExchange()
	assert.True(t, when.IsZero())
	assert.Empty(t, lastErr)

	runBridge(t, b)

	_, err := peer.Write(uint16(99), 0)
	require.NoError(t, err)
	require.NoError(t, peer.Send())
	waitEchoed(t, b, 1)

	when, lastErr = b.LastExchange()
	assert.False(t, when.IsZero())
	assert.Empty(t, lastErr)
}

func TestSessionIDStable(t *testing.T) {
	b, _, _ := newLoop(t)
	require.NotEmpty(t, b.SessionID())
	assert.Equal(t, b.SessionID(), b.Stats().SessionID)
}

func TestClassifyReceiveError(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{transport.ErrStartByteNotFound, "start_byte"},
		{transport.ErrSizeByteTimeout, "size_timeout"},
		{transport.ErrInvalidPayloadSize, "payload_size"},
		{transport.ErrPacketTimeout, "packet_timeout"},
		{transport.ErrDelimiterTooEarly, "delimiter"},
		{transport.ErrDelimiterNotFound, "delimiter"},
		{transport.ErrPostambleTimeout, "postamble_timeout"},
		{transport.ErrChecksumMismatch, "checksum"},
		{fmt.Errorf("wrapped: %w", transport.ErrChecksumMismatch), "checksum"},
		{errors.New("unmapped"), "other"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, classifyReceiveError(tt.err), tt.err.Error())
	}
}

// failOncePort drops the first outbound write to simulate a transient
// device hiccup.
type failOncePort struct {
	*serialmock.Mock
	failed bool
}

func (f *failOncePort) Write(p []byte) (int, error) {
	if !f.failed {
		f.failed = true
		return 0, errors.New("device busy")
	}
	return f.Mock.Write(p)
}

func TestSendFailureDoesNotWedgeLoop(t *testing.T) {
	peerPort, bridgePort := serialmock.Pair()
	flaky := &failOncePort{Mock: bridgePort}

	peer, err := transport.New(peerPort, transport.WithTimeout(25*time.Millisecond))
	require.NoError(t, err)
	engine, err := transport.New(flaky, transport.WithTimeout(25*time.Millisecond))
	require.NoError(t, err)

	b := New(engine, WithPollInterval(time.Millisecond))
	runBridge(t, b)

	// First echo attempt hits the write failure.
	_, err = peer.Write([2]uint8{1, 2}, 0)
	require.NoError(t, err)
	require.NoError(t, peer.Send())

	require.Eventually(t, func() bool {
		return b.Stats().LastError != ""
	}, 2*time.Second, time.Millisecond, "send failure never recorded")
	assert.Zero(t, b.Stats().PacketsEchoed)

	// The next packet must be echoed; a wedged transmission buffer would
	// fail every send from here on.
	_, err = peer.Write([2]uint8{3, 4}, 0)
	require.NoError(t, err)
	require.NoError(t, peer.Send())

	waitEchoed(t, b, 1)
	receiveEcho(t, peer)
	assert.Equal(t, []byte{3, 4}, peer.ReceivedPayload())
}
