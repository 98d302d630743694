// SPDX-License-Identifier: MIT

// Package serialport adapts a physical serial device to the transport Port
// contract.
//
// The transport engine polls Available and expects non-blocking reads,
// mirroring how firmware drains a UART reception buffer. Serial devices
// expose blocking reads instead, so the adapter runs a pump goroutine that
// moves bytes from the device into a bounded in-memory ring the engine can
// poll. When the ring is full the oldest bytes are dropped, which is the
// same overrun behavior a hardware reception buffer exhibits.
package serialport

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"go.bug.st/serial"
)

// ErrClosed is returned for operations on a closed port.
var ErrClosed = errors.New("serialport: port closed")

// DefaultBufferSize mirrors the reception buffer of higher-end boards the
// protocol was developed against.
const DefaultBufferSize = 1024

// Port is a transport.Port backed by a serial device.
type Port struct {
	device io.ReadWriteCloser

	mu      sync.Mutex
	ring    []byte
	max     int
	readErr error
	closed  bool

	done chan struct{}
}

// Open opens the named serial device at the given baud rate and starts the
// reception pump.
func Open(device string, baudRate int) (*Port, error) {
	mode := &serial.Mode{BaudRate: baudRate}
	dev, err := serial.Open(device, mode)
	if err != nil {
		return nil, fmt.Errorf("serialport: open %s: %w", device, err)
	}
	return wrap(dev, DefaultBufferSize), nil
}

// wrap builds a Port around any byte device. Split out so tests can run the
// pump against an in-memory pipe.
func wrap(device io.ReadWriteCloser, bufferSize int) *Port {
	p := &Port{
		device: device,
		max:    bufferSize,
		done:   make(chan struct{}),
	}
	go p.pump()
	return p
}

// pump drains the device into the ring until the device read fails, which
// is how both Close and unplugged hardware present themselves.
func (p *Port) pump() {
	defer close(p.done)
	chunk := make([]byte, 256)
	for {
		n, err := p.device.Read(chunk)
		p.mu.Lock()
		if n > 0 {
			p.ring = append(p.ring, chunk[:n]...)
			if overrun := len(p.ring) - p.max; overrun > 0 {
				p.ring = p.ring[overrun:]
			}
		}
		if err != nil {
			if !p.closed {
				p.readErr = err
			}
			p.mu.Unlock()
			return
		}
		p.mu.Unlock()
	}
}

// Available reports the number of bytes waiting in the ring.
func (p *Port) Available() (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.ring) > 0 {
		return len(p.ring), nil
	}
	if p.closed {
		return 0, ErrClosed
	}
	if p.readErr != nil {
		return 0, p.readErr
	}
	return 0, nil
}

// Read consumes up to len(b) buffered bytes. It never blocks.
func (p *Port) Read(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.ring) == 0 {
		if p.closed {
			return 0, ErrClosed
		}
		return 0, p.readErr
	}
	n := copy(b, p.ring)
	p.ring = p.ring[n:]
	return n, nil
}

// Write transmits b through the device.
func (p *Port) Write(b []byte) (int, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return 0, ErrClosed
	}
	p.mu.Unlock()
	return p.device.Write(b)
}

// Close shuts the device down and waits for the pump to exit.
func (p *Port) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	err := p.device.Close()
	<-p.done
	return err
}
