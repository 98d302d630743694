// SPDX-License-Identifier: MIT

// Package bridge runs the exchange loop between a peer on the serial port
// and the daemon: every valid inbound packet is echoed back to the sender.
package bridge

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/sun-lab-nbb/axtl/internal/log"
	"github.com/sun-lab-nbb/axtl/internal/metrics"
	"github.com/sun-lab-nbb/axtl/internal/transport"
)

// DefaultPollInterval is the pause between port polls when no packet is
// pending. Short enough to stay below one byte time at 115200 baud.
const DefaultPollInterval = 500 * time.Microsecond

// Stats is a snapshot of the bridge counters for the status endpoint.
type Stats struct {
	SessionID        string    `json:"sessionId"`
	PacketsEchoed    uint64    `json:"packetsEchoed"`
	PayloadBytes     uint64    `json:"payloadBytes"`
	ReceiveFailures  uint64    `json:"receiveFailures"`
	LastExchangeTime time.Time `json:"lastExchangeTime,omitempty"`
	LastError        string    `json:"lastError,omitempty"`
}

// Bridge owns a transport engine and echoes packets until stopped.
// The transport is driven from the Run goroutine only; the stats are safe
// to read concurrently.
type Bridge struct {
	engine       *transport.TransportLayer
	pollInterval time.Duration
	sessionID    string

	mu    sync.Mutex
	stats Stats
}

// Option adjusts bridge construction.
type Option func(*Bridge)

// WithPollInterval overrides the idle poll pause.
func WithPollInterval(d time.Duration) Option {
	return func(b *Bridge) {
		if d > 0 {
			b.pollInterval = d
		}
	}
}

// New creates a bridge over the given transport engine.
func New(engine *transport.TransportLayer, opts ...Option) *Bridge {
	b := &Bridge{
		engine:       engine,
		pollInterval: DefaultPollInterval,
		sessionID:    uuid.NewString(),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.stats.SessionID = b.sessionID
	return b
}

// SessionID returns the identifier attached to this bridge run.
func (b *Bridge) SessionID() string {
	return b.sessionID
}

// Run polls the port and echoes packets until ctx is cancelled. It always
// returns nil on cancellation; per-packet failures are counted, logged and
// survived.
func (b *Bridge) Run(ctx context.Context) error {
	ctx = log.ContextWithSessionID(ctx, b.sessionID)
	logger := log.WithComponentFromContext(ctx, "bridge")
	logger.Info().Str("event", "bridge.start").Msg("exchange loop started")

	timer := time.NewTimer(b.pollInterval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info().Str("event", "bridge.stop").Msg("exchange loop stopped")
			return nil
		default:
		}

		if !b.engine.Available() {
			timer.Reset(b.pollInterval)
			select {
			case <-ctx.Done():
				logger.Info().Str("event", "bridge.stop").Msg("exchange loop stopped")
				return nil
			case <-timer.C:
			}
			continue
		}

		b.exchange(logger)
	}
}

func (b *Bridge) exchange(logger zerolog.Logger) {
	start := time.Now()

	if err := b.engine.Receive(); err != nil {
		if errors.Is(err, transport.ErrNoBytes) {
			// Available raced with another consumer draining the port.
			return
		}
		reason := classifyReceiveError(err)
		metrics.RecordReceiveFailure(reason)
		b.recordFailure(err)
		logger.Warn().
			Str("event", "bridge.receive.failed").
			Str("reason", reason).
			Err(err).
			Msg("discarding unreadable packet")
		return
	}

	payloadSize := b.engine.RxPayloadSize()
	metrics.RecordReceive(payloadSize)

	if err := b.engine.CopyRxPayloadToTx(); err != nil {
		metrics.RecordReceiveFailure("oversized_echo")
		b.recordFailure(err)
		logger.Warn().
			Str("event", "bridge.echo.failed").
			Int("payload_size", payloadSize).
			Err(err).
			Msg("received payload exceeds transmission cap")
		return
	}

	if err := b.engine.Send(); err != nil {
		b.recordFailure(err)
		logger.Error().
			Str("event", "bridge.send.failed").
			Err(err).
			Msg("echo transmission failed")
		return
	}
	metrics.RecordSend(b.engine.WireSize(payloadSize))

	elapsed := time.Since(start)
	metrics.ObserveExchange(elapsed)
	b.recordSuccess(payloadSize)

	logger.Debug().
		Str("event", "bridge.exchange").
		Int("payload_size", payloadSize).
		Dur("elapsed", elapsed).
		Msg("packet echoed")
}

func (b *Bridge) recordSuccess(payloadSize int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stats.PacketsEchoed++
	b.stats.PayloadBytes += uint64(payloadSize)
	b.stats.LastExchangeTime = time.Now()
	b.stats.LastError = ""
}

func (b *Bridge) recordFailure(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stats.ReceiveFailures++
	b.stats.LastExchangeTime = time.Now()
	b.stats.LastError = err.Error()
}

// Stats returns a snapshot of the bridge counters.
func (b *Bridge) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stats
}

// LastExchange reports the time and error of the most recent exchange,
// matching the health checker's callback contract.
func (b *Bridge) LastExchange() (time.Time, string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stats.LastExchangeTime, b.stats.LastError
}

// classifyReceiveError maps receive failures onto a bounded label set.
func classifyReceiveError(err error) string {
	switch {
	case errors.Is(err, transport.ErrStartByteNotFound):
		return "start_byte"
	case errors.Is(err, transport.ErrSizeByteTimeout):
		return "size_timeout"
	case errors.Is(err, transport.ErrInvalidPayloadSize):
		return "payload_size"
	case errors.Is(err, transport.ErrPacketTimeout):
		return "packet_timeout"
	case errors.Is(err, transport.ErrDelimiterTooEarly),
		errors.Is(err, transport.ErrDelimiterNotFound):
		return "delimiter"
	case errors.Is(err, transport.ErrPostambleTimeout):
		return "postamble_timeout"
	case errors.Is(err, transport.ErrChecksumMismatch):
		return "checksum"
	default:
		return "other"
	}
}
