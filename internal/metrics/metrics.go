// SPDX-License-Identifier: MIT

// Package metrics provides Prometheus metrics for the serial bridge.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Label cardinality is bounded: reason labels come from a fixed set of
// receive failure classes, never from payload contents or session IDs.

var (
	// PacketsSentTotal counts packets successfully written to the port.
	PacketsSentTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "axtl_packets_sent_total",
		Help: "Total number of packets encoded and written to the serial port.",
	})

	// PacketsReceivedTotal counts packets received and validated.
	PacketsReceivedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "axtl_packets_received_total",
		Help: "Total number of packets received, checksum-verified and decoded.",
	})

	// BytesSentTotal counts raw bytes written to the port, framing included.
	BytesSentTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "axtl_bytes_sent_total",
		Help: "Total bytes written to the serial port, including framing and checksum.",
	})

	// BytesReceivedTotal counts payload bytes extracted from valid packets.
	BytesReceivedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "axtl_bytes_received_total",
		Help: "Total payload bytes extracted from valid received packets.",
	})

	// ReceiveFailuresTotal counts failed receive attempts by reason.
	ReceiveFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "axtl_receive_failures_total",
		Help: "Total number of failed receive attempts, by failure reason.",
	}, []string{"reason"})

	// ExchangeDuration observes the round-trip latency of bridge exchanges.
	ExchangeDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "axtl_exchange_duration_seconds",
		Help:    "Round-trip duration of a receive-and-reply exchange.",
		Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
	})
)

// RecordSend records one transmitted packet of the given wire size.
func RecordSend(wireBytes int) {
	PacketsSentTotal.Inc()
	BytesSentTotal.Add(float64(wireBytes))
}

// RecordReceive records one valid received packet with the given payload size.
func RecordReceive(payloadBytes int) {
	PacketsReceivedTotal.Inc()
	BytesReceivedTotal.Add(float64(payloadBytes))
}

// RecordReceiveFailure records one failed receive attempt.
func RecordReceiveFailure(reason string) {
	if reason == "" {
		reason = "unknown"
	}
	ReceiveFailuresTotal.WithLabelValues(reason).Inc()
}

// ObserveExchange records the duration of one complete exchange.
func ObserveExchange(d time.Duration) {
	ExchangeDuration.Observe(d.Seconds())
}
