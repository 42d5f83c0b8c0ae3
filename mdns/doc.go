// SPDX-License-Identifier: GPL-3.0-or-later

// Package mdns contains a multicast DNS (RFC 6762) responder for
// advertising "<hostname>.local" names and service records on a local
// network without a centralized DNS server.
//
// The package is written for resource-constrained hosts: all per-packet
// work happens inside caller-supplied fixed-capacity buffers and the
// record set is immutable after startup, so the steady state performs
// no heap allocation proportional to traffic.
//
// The core high-level abstraction is the [*Responder]. It is a single
// cooperative task driven by [*Responder.Run]: it receives queries,
// matches them against the configured [Host] and [Service] records,
// synthesizes replies, and periodically multicasts unsolicited
// announcements so peer caches stay warm.
//
// DNS wire encoding and decoding is delegated to [github.com/miekg/dns];
// this package only decides which records to emit and with which TTL,
// cache-flush, and addressing policy.
//
// The network transport is abstracted by the [PacketConn] capability
// interface. [NewUDPConn] provides the production implementation: a
// reusable UDP socket bound to port 5353 and joined to the mDNS
// multicast groups (224.0.0.251 and ff02::fb). Supplying a different
// [PacketConn] is how tests (and unusual network stacks) drive the
// responder.
//
// For example, to advertise a host and an HTTP service:
//
//	conn, err := mdns.NewUDPConn(ctx, mdns.UDPConnConfig{})
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer conn.Close()
//
//	responder, err := mdns.NewResponder(mdns.Config{
//		Host: &mdns.Host{
//			Hostname: "mypc",
//			IPv4:     netip.MustParseAddr("192.168.1.10"),
//		},
//		Services: []mdns.Service{{
//			Name:    "My Web Server",
//			Service: "_http._tcp",
//			Port:    8080,
//			TXT:     []string{"path=/"},
//		}},
//		Conn:       conn,
//		RecvBuffer: make([]byte, 1500),
//		SendBuffer: make([]byte, 1500),
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//	err = responder.Run(ctx)
//
// Reconfiguring records means cancelling the run, building a new
// [*Responder], and running it again; nothing is mutable in place.
//
// This responder intentionally implements the "respond-only" subset of
// RFC 6762: it never probes for name conflicts and never contests a
// name already claimed on the network.
package mdns
