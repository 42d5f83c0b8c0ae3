// SPDX-License-Identifier: GPL-3.0-or-later

package mdns

import (
	"errors"
	"fmt"
	"net/netip"
	"strings"

	"github.com/miekg/dns"
	"golang.org/x/net/idna"
)

// Errors returned when validating the record model at startup.
var (
	// ErrHostnameRequired means the host has an empty hostname label.
	ErrHostnameRequired = errors.New("mdns: hostname is required")

	// ErrHostnameInvalid means the hostname is not a single valid DNS label.
	ErrHostnameInvalid = errors.New("mdns: hostname is not a valid DNS label")

	// ErrAddrInvalid means the host IPv4 or IPv6 address is not usable.
	ErrAddrInvalid = errors.New("mdns: host address is invalid")

	// ErrServiceInvalid means a service descriptor is incomplete.
	ErrServiceInvalid = errors.New("mdns: service descriptor is invalid")

	// ErrTXTTooLarge means a service's encoded TXT attributes cannot
	// fit within the configured send buffer.
	ErrTXTTooLarge = errors.New("mdns: service TXT attributes exceed the send buffer")
)

// localDomain is the reserved mDNS top-level domain. It is appended
// when composing wire names and never stored in the record model.
const localDomain = "local"

// Host describes the identity of the device advertised by a [*Responder].
//
// A Host is supplied once at startup and borrowed read-only for the
// whole run; changing it requires restarting the responder.
type Host struct {
	// ID is a numeric identifier disambiguating multiple logical
	// hosts sharing one responder instance.
	ID uint16

	// Hostname is the host label without the ".local" suffix. It
	// MUST be non-empty ASCII and stable for the lifetime of a run.
	Hostname string

	// IPv4 is the MANDATORY host IPv4 address.
	IPv4 netip.Addr

	// IPv6 is the OPTIONAL host IPv6 address. Leave the zero value
	// to advertise no AAAA record.
	IPv6 netip.Addr
}

// FQDN returns the fully-qualified "<hostname>.local." name.
func (h *Host) FQDN() string {
	return dns.Fqdn(h.Hostname + "." + localDomain)
}

// HasIPv6 reports whether the host advertises an AAAA record.
func (h *Host) HasIPv6() bool {
	return h.IPv6.IsValid()
}

// validate checks the host configuration before the run loop starts.
func (h *Host) validate() error {
	// 1. the hostname label must exist
	if h.Hostname == "" {
		return ErrHostnameRequired
	}

	// 2. it must be a single ASCII label
	if strings.Contains(h.Hostname, ".") {
		return fmt.Errorf("%w: %q contains a dot", ErrHostnameInvalid, h.Hostname)
	}
	if len(h.Hostname) > 63 {
		return fmt.Errorf("%w: %q is longer than a DNS label", ErrHostnameInvalid, h.Hostname)
	}
	ascii, err := idna.Lookup.ToASCII(h.Hostname)
	if err != nil || !equalASCIIName(ascii, h.Hostname) {
		return fmt.Errorf("%w: %q", ErrHostnameInvalid, h.Hostname)
	}

	// 3. the IPv4 address is mandatory, the IPv6 one optional
	if !h.IPv4.Unmap().Is4() {
		return fmt.Errorf("%w: IPv4 address %q", ErrAddrInvalid, h.IPv4)
	}
	if h.IPv6.IsValid() && !h.IPv6.Is6() {
		return fmt.Errorf("%w: IPv6 address %q", ErrAddrInvalid, h.IPv6)
	}
	return nil
}

// Service describes one discoverable service instance advertised by a
// [*Responder] through PTR, SRV, and TXT records.
//
// Like [Host], a Service is immutable after startup.
type Service struct {
	// Name is the service instance name, e.g. "My Web Server".
	Name string

	// Service is the service type label combining protocol and
	// transport, e.g. "_http._tcp".
	Service string

	// Port is the port the service instance listens on.
	Port uint16

	// TXT contains the "key=value" attributes carried by the TXT
	// record. The total encoded length must fit within one send
	// buffer; this is checked once at startup, never at runtime.
	TXT []string
}

// TypeFQDN returns the service-type name, e.g. "_http._tcp.local.".
// PTR queries for this name enumerate the instances of the type.
func (s *Service) TypeFQDN() string {
	return dns.Fqdn(s.Service + "." + localDomain)
}

// InstanceFQDN returns the instance name the SRV and TXT records live
// at, e.g. "My Web Server._http._tcp.local.".
func (s *Service) InstanceFQDN() string {
	return dns.Fqdn(s.Name + "." + s.Service + "." + localDomain)
}

// validate checks the service descriptor against the send buffer
// capacity before the run loop starts.
func (s *Service) validate(sendCapacity int) error {
	// 1. naming and port must be complete
	if s.Name == "" {
		return fmt.Errorf("%w: missing instance name", ErrServiceInvalid)
	}
	if s.Service == "" {
		return fmt.Errorf("%w: missing service type for %q", ErrServiceInvalid, s.Name)
	}
	if s.Port == 0 {
		return fmt.Errorf("%w: missing port for %q", ErrServiceInvalid, s.Name)
	}

	// 2. each TXT attribute is length-prefixed with a single byte on
	// the wire, so it is capped at 255 octets
	encoded := 0
	for _, kv := range s.TXT {
		if len(kv) > 255 {
			return fmt.Errorf("%w: attribute %q of %q", ErrTXTTooLarge, kv, s.Name)
		}
		encoded += 1 + len(kv)
	}

	// 3. the whole attribute set must fit in one send buffer next to
	// the record header and the instance name
	if encoded+len(s.InstanceFQDN())+messageOverhead > sendCapacity {
		return fmt.Errorf("%w: %d encoded bytes for %q", ErrTXTTooLarge, encoded, s.Name)
	}
	return nil
}

// equalASCIIName compares two DNS names for equality, ignoring ASCII
// case, per the DNS label-equality rules.
func equalASCIIName(x, y string) bool {
	if len(x) != len(y) {
		return false
	}
	for i := 0; i < len(x); i++ {
		a := x[i]
		b := y[i]
		if 'A' <= a && a <= 'Z' {
			a += 0x20
		}
		if 'A' <= b && b <= 'Z' {
			b += 0x20
		}
		if a != b {
			return false
		}
	}
	return true
}
