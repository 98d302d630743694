// SPDX-License-Identifier: MIT

package transport

import "github.com/sun-lab-nbb/axtl/internal/cobs"

// Test-only access to the staged buffers.

// txBuffer returns a copy of the transmission buffer.
func (t *TransportLayer) txBuffer() []byte {
	out := make([]byte, len(t.txBuf))
	copy(out, t.txBuf)
	return out
}

// rxBuffer returns a copy of the reception buffer.
func (t *TransportLayer) rxBuffer() []byte {
	out := make([]byte, len(t.rxBuf))
	copy(out, t.rxBuf)
	return out
}

// copyTxPayloadToRx moves the staged transmission payload into the
// reception buffer, simulating a received packet without going through the
// wire. It reports false when the payload exceeds the reception cap.
func (t *TransportLayer) copyTxPayloadToRx() bool {
	size := int(t.txBuf[cobs.PayloadSizeIndex])
	if size > t.maxRxPayload {
		return false
	}
	copy(t.rxBuf[cobs.PayloadStart:], t.txBuf[cobs.PayloadStart:cobs.PayloadStart+size])
	t.rxBuf[cobs.PayloadSizeIndex] = byte(size)
	return true
}
