// SPDX-License-Identifier: GPL-3.0-or-later

package mdns

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"time"

	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"
)

// ErrInterfaceNotFound means no network interface owns the address
// configured in [UDPConnConfig.IPv4Interface].
var ErrInterfaceNotFound = errors.New("mdns: no interface owns the configured address")

// UDPConnConfig configures [NewUDPConn].
type UDPConnConfig struct {
	// BindAddr optionally overrides the listen endpoint. The zero
	// value binds the wildcard address on [Port] for both families.
	BindAddr netip.AddrPort

	// IPv4Interface optionally restricts the IPv4 multicast join to
	// the interface owning this address. The zero value joins on the
	// system-chosen interface.
	IPv4Interface netip.Addr

	// IPv6InterfaceIndex optionally restricts the IPv6 multicast
	// join to this interface index. Zero joins on the system-chosen
	// interface.
	IPv6InterfaceIndex int

	// DisableIPv6 skips joining the IPv6 multicast group.
	DisableIPv6 bool
}

// UDPConn is the production [PacketConn]: a port-sharing UDP socket
// bound to the mDNS port with the multicast group memberships the
// responder needs.
//
// Construct using [NewUDPConn].
type UDPConn struct {
	// conn is the underlying socket; its receive and send halves are
	// usable independently within the same task.
	conn *net.UDPConn

	// conn4 and conn6 manage the multicast group memberships. conn6
	// is nil when IPv6 is disabled or unavailable.
	conn4 *ipv4.PacketConn
	conn6 *ipv6.PacketConn
}

// Ensure that [*UDPConn] implements [PacketConn].
var _ PacketConn = &UDPConn{}

// NewUDPConn binds an mDNS UDP socket and joins the multicast groups.
//
// The socket sets SO_REUSEADDR (and SO_REUSEPORT where available) so
// that several mDNS programs can share port 5353 on the same machine.
// A failed IPv6 group join is tolerated unless an interface index was
// configured explicitly; IPv4-only machines are common.
func NewUDPConn(ctx context.Context, config UDPConnConfig) (*UDPConn, error) {
	// 1. bind with address and port reuse
	bind := config.BindAddr
	if !bind.IsValid() {
		bind = netip.AddrPortFrom(netip.IPv6Unspecified(), Port)
	}
	network := "udp"
	if bind.Addr().Unmap().Is4() {
		network = "udp4"
	}
	lc := &net.ListenConfig{Control: reuseAddrPort}
	pc, err := lc.ListenPacket(ctx, network, bind.String())
	if err != nil {
		return nil, fmt.Errorf("mdns: bind %s: %w", bind, err)
	}
	udp := pc.(*net.UDPConn)

	// 2. enlarge the kernel receive buffer; bursts of queries arrive
	// whenever a browser wakes up on the network
	_ = udp.SetReadBuffer(1 << 16)

	uc := &UDPConn{conn: udp}

	// 3. join the IPv4 group, optionally restricted to the interface
	// owning the configured address
	ifi4, err := interfaceForAddr(config.IPv4Interface)
	if err != nil {
		_ = udp.Close()
		return nil, err
	}
	uc.conn4 = ipv4.NewPacketConn(udp)
	group4 := &net.UDPAddr{IP: MulticastAddrPortIPv4.Addr().AsSlice()}
	if err := uc.conn4.JoinGroup(ifi4, group4); err != nil {
		_ = udp.Close()
		return nil, fmt.Errorf("mdns: join %s: %w", MulticastAddrPortIPv4, err)
	}

	// 4. join the IPv6 group when the socket can carry IPv6
	if !config.DisableIPv6 && network == "udp" {
		var ifi6 *net.Interface
		if config.IPv6InterfaceIndex > 0 {
			ifi6, err = net.InterfaceByIndex(config.IPv6InterfaceIndex)
			if err != nil {
				_ = udp.Close()
				return nil, fmt.Errorf("mdns: interface %d: %w", config.IPv6InterfaceIndex, err)
			}
		}
		conn6 := ipv6.NewPacketConn(udp)
		group6 := &net.UDPAddr{IP: MulticastAddrPortIPv6.Addr().AsSlice()}
		if err := conn6.JoinGroup(ifi6, group6); err != nil {
			if config.IPv6InterfaceIndex > 0 {
				_ = udp.Close()
				return nil, fmt.Errorf("mdns: join %s: %w", MulticastAddrPortIPv6, err)
			}
		} else {
			uc.conn6 = conn6
		}
	}

	return uc, nil
}

// ReadFrom implements [PacketConn].
func (c *UDPConn) ReadFrom(p []byte) (int, netip.AddrPort, error) {
	return c.conn.ReadFromUDPAddrPort(p)
}

// WriteTo implements [PacketConn].
func (c *UDPConn) WriteTo(p []byte, dst netip.AddrPort) (int, error) {
	return c.conn.WriteToUDPAddrPort(p, dst)
}

// SetReadDeadline implements [PacketConn].
func (c *UDPConn) SetReadDeadline(t time.Time) error {
	return c.conn.SetReadDeadline(t)
}

// Close implements [PacketConn]: it tears down the multicast group
// memberships and releases the socket.
func (c *UDPConn) Close() error {
	if c.conn4 != nil {
		group4 := &net.UDPAddr{IP: MulticastAddrPortIPv4.Addr().AsSlice()}
		_ = c.conn4.LeaveGroup(nil, group4)
	}
	if c.conn6 != nil {
		group6 := &net.UDPAddr{IP: MulticastAddrPortIPv6.Addr().AsSlice()}
		_ = c.conn6.LeaveGroup(nil, group6)
	}
	return c.conn.Close()
}

// interfaceForAddr resolves the network interface owning addr. The
// zero address resolves to nil, meaning the system-chosen interface.
func interfaceForAddr(addr netip.Addr) (*net.Interface, error) {
	if !addr.IsValid() {
		return nil, nil
	}
	want := addr.Unmap()
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("mdns: list interfaces: %w", err)
	}
	for i := range ifaces {
		addrs, err := ifaces[i].Addrs()
		if err != nil {
			continue
		}
		for _, a := range addrs {
			ipnet, ok := a.(*net.IPNet)
			if !ok {
				continue
			}
			got, ok := netip.AddrFromSlice(ipnet.IP)
			if ok && got.Unmap() == want {
				return &ifaces[i], nil
			}
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrInterfaceNotFound, addr)
}
