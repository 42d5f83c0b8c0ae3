// SPDX-License-Identifier: GPL-3.0-or-later

package mdns

import (
	"net/netip"
	"time"
)

// Port is the UDP port assigned to mDNS by RFC 6762.
const Port = 5353

// Multicast group endpoints defined by RFC 6762.
var (
	// MulticastAddrPortIPv4 is the IPv4 mDNS group, 224.0.0.251:5353.
	MulticastAddrPortIPv4 = netip.AddrPortFrom(netip.AddrFrom4([4]byte{224, 0, 0, 251}), Port)

	// MulticastAddrPortIPv6 is the IPv6 mDNS group, [ff02::fb]:5353.
	MulticastAddrPortIPv6 = netip.AddrPortFrom(netip.MustParseAddr("ff02::fb"), Port)
)

// PacketConn is the capability set a [*Responder] requires from its
// transport: an already-bound UDP socket whose multicast memberships
// have been configured, exposing independently usable receive and send
// halves plus read-deadline control.
//
// The read deadline is how the run loop races an expiring announce
// timer (and external cancellation) against a blocked receive: a
// deadline in the past must wake a pending [PacketConn.ReadFrom] with
// an error satisfying errors.Is(err, os.ErrDeadlineExceeded).
//
// Multicast group teardown is the implementation's responsibility on
// [PacketConn.Close]; the responder never manages memberships itself.
//
// [*UDPConn] is the production implementation.
type PacketConn interface {
	// ReadFrom receives one datagram into p and returns its length
	// and source endpoint.
	ReadFrom(p []byte) (n int, src netip.AddrPort, err error)

	// WriteTo sends one datagram to dst. Each send completes
	// buffer-to-wire atomically from the caller's perspective.
	WriteTo(p []byte, dst netip.AddrPort) (n int, err error)

	// SetReadDeadline bounds pending and future ReadFrom calls.
	// The zero time clears the deadline.
	SetReadDeadline(t time.Time) error

	// Close releases the socket and its multicast memberships.
	Close() error
}
