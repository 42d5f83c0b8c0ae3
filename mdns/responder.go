// SPDX-License-Identifier: GPL-3.0-or-later

package mdns

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"os"
	"slices"
	"time"

	"github.com/miekg/dns"
)

// Unsolicited announcement timing.
const (
	// DefaultAnnounceInterval is used when [Config.AnnounceInterval]
	// is left zero.
	DefaultAnnounceInterval = time.Minute

	// MinAnnounceInterval is the shortest accepted announce interval;
	// anything faster would flood the network.
	MinAnnounceInterval = time.Second
)

// Additional errors returned by [NewResponder].
var (
	// ErrHostRequired means [Config.Host] was nil.
	ErrHostRequired = errors.New("mdns: a host is required")

	// ErrConnRequired means [Config.Conn] was nil.
	ErrConnRequired = errors.New("mdns: a transport PacketConn is required")

	// ErrAnnounceIntervalTooShort means a non-zero announce interval
	// below [MinAnnounceInterval] was configured.
	ErrAnnounceIntervalTooShort = errors.New("mdns: announce interval is shorter than MinAnnounceInterval")
)

// aLongTimeAgo is a non-zero time in the distant past, used to force a
// blocked receive to wake immediately.
var aLongTimeAgo = time.Unix(1, 0)

// Config configures a [*Responder].
type Config struct {
	// Host is the MANDATORY identity to advertise.
	Host *Host

	// Services optionally lists the service instances to advertise.
	Services []Service

	// Conn is the MANDATORY transport, typically a [*UDPConn].
	Conn PacketConn

	// RecvBuffer is the MANDATORY fixed receive buffer, at least
	// [MinBufferSize] bytes, sized by the caller to the device's
	// memory budget.
	RecvBuffer []byte

	// SendBuffer is the MANDATORY fixed send buffer, at least
	// [MinBufferSize] bytes. It bounds the size of every outbound
	// response; larger answer sets are truncated or split.
	SendBuffer []byte

	// AnnounceInterval is the period of unsolicited announcements.
	// Zero selects [DefaultAnnounceInterval]; a negative value
	// disables announcements; a positive value below
	// [MinAnnounceInterval] is a configuration error.
	AnnounceInterval time.Duration

	// HostTTL optionally overrides [DefaultHostTTL] for address records.
	HostTTL uint32

	// ServiceTTL optionally overrides [DefaultServiceTTL] for
	// PTR, SRV, and TXT records.
	ServiceTTL uint32

	// ObserveQuery is an optional hook called with each raw inbound
	// packet before decoding. The slice is only valid during the call.
	ObserveQuery func(src netip.AddrPort, raw []byte)

	// ObserveResponse is an optional hook called with each raw
	// outbound message. The slice is only valid during the call.
	ObserveResponse func(dst netip.AddrPort, raw []byte)

	// ObserveDecodeError is an optional hook called when an inbound
	// packet fails to decode and is dropped.
	ObserveDecodeError func(src netip.AddrPort, err error)
}

// Responder is a single-task mDNS responder over an immutable record
// set. Construct using [NewResponder], then drive it with
// [*Responder.Run].
type Responder struct {
	// conn is the transport supplied by the caller.
	conn PacketConn

	// buffers are the fixed receive/send buffers, exclusively owned
	// by the run loop.
	buffers *buffers

	// matcher holds the immutable record model.
	matcher matcher

	// synth writes responses into the send buffer.
	synth synthesizer

	// announceEvery is the announce period, zero when disabled.
	announceEvery time.Duration

	observeQuery       func(src netip.AddrPort, raw []byte)
	observeResponse    func(dst netip.AddrPort, raw []byte)
	observeDecodeError func(src netip.AddrPort, err error)
}

// NewResponder validates the configuration and creates a [*Responder].
//
// Configuration problems (empty hostname, undersized buffers, TXT
// attributes that cannot fit the send buffer, sub-second announce
// interval) are fatal here, before the run loop ever starts; the run
// loop itself only fails on transport errors.
func NewResponder(config Config) (*Responder, error) {
	// 1. the collaborators must exist
	if config.Host == nil {
		return nil, ErrHostRequired
	}
	if config.Conn == nil {
		return nil, ErrConnRequired
	}

	// 2. the caller-supplied buffers must be usable
	bufs, err := newBuffers(config.RecvBuffer, config.SendBuffer)
	if err != nil {
		return nil, err
	}

	// 3. the record model must be coherent with the buffers
	if err := config.Host.validate(); err != nil {
		return nil, err
	}
	for i := range config.Services {
		if err := config.Services[i].validate(bufs.sendCapacity()); err != nil {
			return nil, err
		}
	}

	// 4. apply the announce interval policy
	announceEvery := config.AnnounceInterval
	switch {
	case announceEvery == 0:
		announceEvery = DefaultAnnounceInterval
	case announceEvery < 0:
		announceEvery = 0
	case announceEvery < MinAnnounceInterval:
		return nil, ErrAnnounceIntervalTooShort
	}

	// 5. apply the TTL defaults
	hostTTL := config.HostTTL
	if hostTTL == 0 {
		hostTTL = DefaultHostTTL
	}
	serviceTTL := config.ServiceTTL
	if serviceTTL == 0 {
		serviceTTL = DefaultServiceTTL
	}

	return &Responder{
		conn:    config.Conn,
		buffers: bufs,
		matcher: matcher{
			host:       *config.Host,
			services:   slices.Clone(config.Services),
			hostTTL:    hostTTL,
			serviceTTL: serviceTTL,
		},
		synth:              synthesizer{send: config.SendBuffer},
		announceEvery:      announceEvery,
		observeQuery:       config.ObserveQuery,
		observeResponse:    config.ObserveResponse,
		observeDecodeError: config.ObserveDecodeError,
	}, nil
}

// Run drives the responder until ctx is cancelled or the transport
// reports a fatal error.
//
// Each iteration receives one datagram, decodes it through the
// external codec, matches every question, and sends the synthesized
// responses. Decode failures drop the offending packet and continue.
// The announce timer is raced against the blocked receive through the
// transport's read deadline.
//
// On cancellation Run multicasts a best-effort goodbye (the owned
// record set with TTL zero) and returns ctx's error. Cancelling at any
// suspension point is safe: sends complete buffer-to-wire atomically
// and multicast teardown belongs to [PacketConn.Close].
func (r *Responder) Run(ctx context.Context) error {
	// Wake a blocked receive when the caller cancels. On return, wait
	// for the watcher and clear the deadline it set, leaving the conn
	// reusable by the caller.
	watchCtx, cancelWatch := context.WithCancel(ctx)
	watcherDone := make(chan struct{})
	go func() {
		defer close(watcherDone)
		<-watchCtx.Done()
		_ = r.conn.SetReadDeadline(aLongTimeAgo)
	}()
	defer func() {
		cancelWatch()
		<-watcherDone
		_ = r.conn.SetReadDeadline(time.Time{})
	}()

	// Announce immediately so peer caches warm up without waiting a
	// full interval, then periodically.
	var next time.Time
	if r.announceEvery > 0 {
		if err := r.announce(false); err != nil {
			return err
		}
		next = time.Now().Add(r.announceEvery)
	}

	for {
		// The ctx check MUST follow the deadline update: a cancel
		// observed here returns right away, while a cancel racing
		// past the check reinstates the past deadline through the
		// watcher goroutine and wakes the receive below.
		if err := r.conn.SetReadDeadline(next); err != nil {
			return fmt.Errorf("mdns: set read deadline: %w", err)
		}
		if ctx.Err() != nil {
			r.goodbye()
			return ctx.Err()
		}

		n, src, err := r.conn.ReadFrom(r.buffers.recvAll())
		switch {
		case err == nil:
			if err := r.handlePacket(r.buffers.recv[:n], src); err != nil {
				return err
			}
		case ctx.Err() != nil:
			r.goodbye()
			return ctx.Err()
		case errors.Is(err, os.ErrDeadlineExceeded):
			if r.announceEvery <= 0 {
				// spurious wake with announcements disabled
				next = time.Time{}
				continue
			}
			if err := r.announce(false); err != nil {
				return err
			}
			next = time.Now().Add(r.announceEvery)
		default:
			return fmt.Errorf("mdns: receive: %w", err)
		}
	}
}

// handlePacket processes one inbound datagram. Only send errors
// propagate; malformed packets and non-queries are absorbed.
func (r *Responder) handlePacket(pkt []byte, src netip.AddrPort) error {
	if r.observeQuery != nil {
		r.observeQuery(src, pkt)
	}

	// 1. decode via the external codec; malformed packets are
	// dropped and the loop keeps going
	msg := new(dns.Msg)
	if err := msg.Unpack(pkt); err != nil {
		if r.observeDecodeError != nil {
			r.observeDecodeError(src, err)
		}
		return nil
	}

	// 2. ignore responses (including our own multicast echoes) and
	// anything that is not a plain query
	if msg.Response || msg.Opcode != dns.OpcodeQuery {
		return nil
	}

	// 3. match every question in decode order, coalescing the
	// answers for one inbound message
	sets := make([]answerSet, 0, len(msg.Question))
	unicast := true
	for _, q := range msg.Question {
		set := r.matcher.match(q, msg.Answer)
		if set.empty() {
			continue
		}
		unicast = unicast && set.unicast
		sets = append(sets, set)
	}
	if len(sets) == 0 {
		// stay silent on non-matches
		return nil
	}

	// 4. addressing policy: unicast when every answered question
	// requested it, or when the packet arrived from a legacy
	// (non-5353) source port; multicast otherwise
	legacy := src.Port() != Port
	dst := multicastGroupFor(src)
	if legacy || unicast {
		dst = src
	}

	// 5. legacy queriers expect the query ID echoed; multicast
	// responses use ID zero
	var id uint16
	if legacy {
		id = msg.Id
	}

	return r.synth.synthesize(id, sets, func(pkt []byte) error {
		return r.send(pkt, dst)
	})
}

// announce multicasts the owned record set unsolicited. goodbye zeroes
// every TTL so peers flush their caches.
func (r *Responder) announce(goodbye bool) error {
	sets := []answerSet{r.matcher.owned(goodbye)}

	groups := []netip.AddrPort{MulticastAddrPortIPv4}
	if r.matcher.host.HasIPv6() {
		groups = append(groups, MulticastAddrPortIPv6)
	}
	for _, dst := range groups {
		err := r.synth.synthesize(0, sets, func(pkt []byte) error {
			return r.send(pkt, dst)
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// goodbye is the best-effort variant used during shutdown: the socket
// may already be unusable, so send errors are discarded.
func (r *Responder) goodbye() {
	_ = r.announce(true)
}

// send writes one packed message to dst; failures are transport errors
// and therefore fatal for the run loop.
func (r *Responder) send(pkt []byte, dst netip.AddrPort) error {
	if _, err := r.conn.WriteTo(pkt, dst); err != nil {
		return fmt.Errorf("mdns: send: %w", err)
	}
	if r.observeResponse != nil {
		r.observeResponse(dst, pkt)
	}
	return nil
}

// multicastGroupFor selects the multicast group matching the address
// family the query arrived on.
func multicastGroupFor(src netip.AddrPort) netip.AddrPort {
	if src.Addr().Unmap().Is4() {
		return MulticastAddrPortIPv4
	}
	return MulticastAddrPortIPv6
}
