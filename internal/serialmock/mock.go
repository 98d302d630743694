// SPDX-License-Identifier: MIT

// Package serialmock provides an in-memory implementation of the transport
// Port contract with exposed buffers.
//
// Tests (and the daemon's loopback mode) use it to drive the protocol
// engine without hardware: bytes written by the transport land in the TX
// buffer where they can be inspected, corrupted, or fed back into the RX
// side to simulate reception.
package serialmock

import "sync"

// Mock is an in-memory serial port. All methods are safe for concurrent
// use so a single Mock can back both ends of a loopback exchange.
type Mock struct {
	mu   sync.Mutex
	rx   []byte
	tx   []byte
	peer *Mock
}

// New returns an empty mock port.
func New() *Mock {
	return &Mock{}
}

// Pair returns two linked ports forming a duplex line: bytes written on
// one side arrive on the other side's reception buffer, like two devices
// joined by a crossed cable. Each side still records its own transmissions
// for inspection.
func Pair() (*Mock, *Mock) {
	a, b := New(), New()
	a.peer = b
	b.peer = a
	return a, b
}

// Available reports the number of bytes waiting on the reception side.
func (m *Mock) Available() (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rx), nil
}

// Read consumes up to len(p) bytes from the reception side. It never
// blocks: with no data buffered it returns 0, nil, matching the polling
// contract of the transport Port interface.
func (m *Mock) Read(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := copy(p, m.rx)
	m.rx = m.rx[n:]
	return n, nil
}

// Write appends p to the transmission side. On a paired port the bytes
// are also delivered to the peer's reception side.
func (m *Mock) Write(p []byte) (int, error) {
	m.mu.Lock()
	m.tx = append(m.tx, p...)
	peer := m.peer
	m.mu.Unlock()

	if peer != nil {
		peer.FeedReceive(p)
	}
	return len(p), nil
}

// FeedReceive queues data on the reception side, as if it arrived over the
// wire.
func (m *Mock) FeedReceive(data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rx = append(m.rx, data...)
}

// Transmitted returns a copy of everything written so far.
func (m *Mock) Transmitted() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]byte, len(m.tx))
	copy(out, m.tx)
	return out
}

// LoopBack moves the transmitted bytes onto the reception side and clears
// the transmission buffer. This simulates the remote echoing a frame back
// verbatim.
func (m *Mock) LoopBack() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rx = append(m.rx, m.tx...)
	m.tx = nil
}

// CorruptTransmitted XORs the transmitted byte at index with 0xFF. Used to
// exercise checksum and framing failure paths.
func (m *Mock) CorruptTransmitted(index int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if index >= 0 && index < len(m.tx) {
		m.tx[index] ^= 0xFF
	}
}

// Reset clears both sides.
func (m *Mock) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rx = nil
	m.tx = nil
}

// Close satisfies the transport Port contract. It discards buffered data.
func (m *Mock) Close() error {
	m.Reset()
	return nil
}
