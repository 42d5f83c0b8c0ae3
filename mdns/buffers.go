// SPDX-License-Identifier: GPL-3.0-or-later

package mdns

import "errors"

// MinBufferSize is the smallest receive or send buffer capacity the
// responder accepts. It equals the minimum DNS UDP payload size; any
// smaller buffer could not hold a well-formed message.
const MinBufferSize = 512

// ErrBufferTooSmall means a caller-supplied buffer is below [MinBufferSize].
var ErrBufferTooSmall = errors.New("mdns: buffer is smaller than MinBufferSize")

// buffers holds the two fixed-capacity packet buffers used by the run
// loop: one for decoding the current inbound datagram and one for
// encoding outbound responses.
//
// Both slices are supplied by the caller, sized to the device's memory
// budget, and exclusively owned by the run loop for its whole lifetime.
// They are logically reset between iterations and never resized; when a
// response would not fit, the synthesizer truncates instead of growing.
//
// Construct using [newBuffers].
type buffers struct {
	// recv receives one inbound datagram per iteration.
	recv []byte

	// send holds one encoded outbound message at a time.
	send []byte
}

// newBuffers validates the caller-supplied buffer capacities.
func newBuffers(recv, send []byte) (*buffers, error) {
	if len(recv) < MinBufferSize || len(send) < MinBufferSize {
		return nil, ErrBufferTooSmall
	}
	return &buffers{recv: recv, send: send}, nil
}

// recvAll returns the receive buffer at full capacity, ready for the
// next inbound datagram. The previous packet's bytes are dead once the
// run loop moves to the next iteration.
func (b *buffers) recvAll() []byte {
	return b.recv
}

// sendCapacity returns the hard upper bound for one encoded response.
func (b *buffers) sendCapacity() int {
	return len(b.send)
}
