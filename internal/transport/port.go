// SPDX-License-Identifier: MIT

package transport

// Port is the byte-stream contract the protocol engine runs over.
//
// Read must not block: with no data buffered it returns 0, nil and the
// engine polls again until its per-byte timeout expires. The serialport
// package adapts real devices to this contract; serialmock implements it
// in memory for tests and loopback runs.
type Port interface {
	// Available reports how many bytes are buffered for reading.
	Available() (int, error)
	// Read consumes up to len(p) buffered bytes without blocking.
	Read(p []byte) (int, error)
	// Write transmits p.
	Write(p []byte) (int, error)
	// Close releases the underlying device.
	Close() error
}
