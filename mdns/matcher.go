// SPDX-License-Identifier: GPL-3.0-or-later

package mdns

import (
	"github.com/miekg/dns"
)

// Default TTLs following the RFC 6762 §10 conventions: address records
// are short-lived because interface addresses churn, while service
// records (PTR, SRV, TXT) change rarely and may be cached longer.
const (
	// DefaultHostTTL is the default TTL for A and AAAA records.
	DefaultHostTTL uint32 = 120

	// DefaultServiceTTL is the default TTL for PTR, SRV, and TXT
	// records (75 minutes).
	DefaultServiceTTL uint32 = 4500
)

// The top bit of the class field is overloaded by RFC 6762: in a
// question it requests a unicast response (§5.4), in a resource record
// it is the cache-flush bit (§10.2).
const (
	classUnicastResponse uint16 = 1 << 15
	classCacheFlush      uint16 = 1 << 15
)

// serviceEnumerationFQDN is the RFC 6762 §9 meta-query name whose PTR
// records enumerate the service types present on the host.
const serviceEnumerationFQDN = "_services._dns-sd._udp.local."

// answer is one synthesized resource record. It is produced by the
// matcher and consumed by the synthesizer within the same iteration.
type answer struct {
	// rr is the wire-ready record, built through the external codec.
	rr dns.RR

	// additional marks records bundled into the additional section
	// rather than the answer section.
	additional bool
}

// answerSet is the matcher output for a single question: zero or more
// answers in matcher order plus the per-question addressing request.
type answerSet struct {
	// answers are appended in match order and never reordered, other
	// than the priority drop applied by the synthesizer on overflow.
	answers []answer

	// unicast reports whether the question set the unicast-response bit.
	unicast bool
}

func (s *answerSet) add(rr dns.RR, additional bool) {
	s.answers = append(s.answers, answer{rr: rr, additional: additional})
}

func (s *answerSet) empty() bool {
	return len(s.answers) == 0
}

// matcher decides which, if any, locally-owned records answer an
// inbound question. It holds only immutable configuration, so matching
// the same question twice yields identical answers.
type matcher struct {
	host       Host
	services   []Service
	hostTTL    uint32
	serviceTTL uint32
}

// match computes the answer set for one decoded question. known is the
// answer section of the inbound query, used for RFC 6762 §7.1
// known-answer suppression. Unknown names and unsupported types yield
// an empty set; mDNS responders stay silent on non-matches.
func (m *matcher) match(q dns.Question, known []dns.RR) answerSet {
	set := answerSet{unicast: q.Qclass&classUnicastResponse != 0}

	// 1. only IN-class (or ANY-class) questions concern us
	qclass := q.Qclass &^ classUnicastResponse
	if qclass != dns.ClassINET && qclass != dns.ClassANY {
		return set
	}

	// 2. questions for "<hostname>.local" yield our address records
	if equalASCIIName(q.Name, m.host.FQDN()) {
		if q.Qtype == dns.TypeA || q.Qtype == dns.TypeANY {
			set.add(m.hostA(m.hostTTL, false), false)
		}
		if (q.Qtype == dns.TypeAAAA || q.Qtype == dns.TypeANY) && m.host.HasIPv6() {
			set.add(m.hostAAAA(m.hostTTL, false), false)
		}
		return set
	}

	// 3. the service type enumeration meta-query yields one PTR per
	// distinct configured service type
	if equalASCIIName(q.Name, serviceEnumerationFQDN) &&
		(q.Qtype == dns.TypePTR || q.Qtype == dns.TypeANY) {
		for i := range m.services {
			typeName := m.services[i].TypeFQDN()
			if containsServiceType(m.services[:i], typeName) {
				continue
			}
			set.add(newPTR(serviceEnumerationFQDN, typeName, m.serviceTTL), false)
		}
		return set
	}

	// 4. a PTR question for a service type matches every instance of
	// that type, each bundling its SRV and TXT records as additionals;
	// the host address additionals appear once per response no matter
	// how many instances matched
	matchedType := false
	for i := range m.services {
		svc := &m.services[i]
		if !equalASCIIName(q.Name, svc.TypeFQDN()) {
			continue
		}
		if q.Qtype != dns.TypePTR && q.Qtype != dns.TypeANY {
			continue
		}
		if suppressedByKnownAnswer(known, svc.InstanceFQDN(), m.serviceTTL) {
			continue
		}
		set.add(newPTR(svc.TypeFQDN(), svc.InstanceFQDN(), m.serviceTTL), false)
		set.add(m.serviceSRV(svc, m.serviceTTL, false), true)
		set.add(m.serviceTXT(svc, m.serviceTTL, false), true)
		matchedType = true
	}
	if matchedType {
		set.add(m.hostA(m.hostTTL, false), true)
		if m.host.HasIPv6() {
			set.add(m.hostAAAA(m.hostTTL, false), true)
		}
	}

	// 5. SRV and TXT questions for a specific instance name match
	// that instance's records
	for i := range m.services {
		svc := &m.services[i]
		if !equalASCIIName(q.Name, svc.InstanceFQDN()) {
			continue
		}
		if q.Qtype == dns.TypeSRV || q.Qtype == dns.TypeANY {
			set.add(m.serviceSRV(svc, m.serviceTTL, false), false)
			set.add(m.hostA(m.hostTTL, false), true)
			if m.host.HasIPv6() {
				set.add(m.hostAAAA(m.hostTTL, false), true)
			}
		}
		if q.Qtype == dns.TypeTXT || q.Qtype == dns.TypeANY {
			set.add(m.serviceTXT(svc, m.serviceTTL, false), false)
		}
	}

	return set
}

// owned returns the full record set the responder is authoritative
// for, used by unsolicited announcements. Unique records carry the
// cache-flush bit. With goodbye set, every TTL is zero so peers flush
// the records immediately (RFC 6762 §10.1).
func (m *matcher) owned(goodbye bool) answerSet {
	hostTTL, serviceTTL := m.hostTTL, m.serviceTTL
	if goodbye {
		hostTTL, serviceTTL = 0, 0
	}

	var set answerSet
	set.add(m.hostA(hostTTL, true), false)
	if m.host.HasIPv6() {
		set.add(m.hostAAAA(hostTTL, true), false)
	}
	for i := range m.services {
		svc := &m.services[i]
		// PTR records are shared (many hosts may advertise the same
		// type), so they never carry the cache-flush bit.
		set.add(newPTR(svc.TypeFQDN(), svc.InstanceFQDN(), serviceTTL), false)
		set.add(m.serviceSRV(svc, serviceTTL, true), false)
		set.add(m.serviceTXT(svc, serviceTTL, true), false)
	}
	return set
}

// suppressedByKnownAnswer implements RFC 6762 §7.1: a PTR answer the
// querier already holds with at least half its TTL left is not
// repeated.
func suppressedByKnownAnswer(known []dns.RR, instance string, ttl uint32) bool {
	for _, rr := range known {
		ptr, ok := rr.(*dns.PTR)
		if !ok {
			continue
		}
		if equalASCIIName(ptr.Ptr, instance) && ptr.Hdr.Ttl >= ttl/2 {
			return true
		}
	}
	return false
}

func containsServiceType(services []Service, typeName string) bool {
	for i := range services {
		if equalASCIIName(services[i].TypeFQDN(), typeName) {
			return true
		}
	}
	return false
}

func recordClass(flush bool) uint16 {
	if flush {
		return dns.ClassINET | classCacheFlush
	}
	return dns.ClassINET
}

func (m *matcher) hostA(ttl uint32, flush bool) dns.RR {
	return &dns.A{
		Hdr: dns.RR_Header{
			Name:   m.host.FQDN(),
			Rrtype: dns.TypeA,
			Class:  recordClass(flush),
			Ttl:    ttl,
		},
		A: m.host.IPv4.Unmap().AsSlice(),
	}
}

func (m *matcher) hostAAAA(ttl uint32, flush bool) dns.RR {
	return &dns.AAAA{
		Hdr: dns.RR_Header{
			Name:   m.host.FQDN(),
			Rrtype: dns.TypeAAAA,
			Class:  recordClass(flush),
			Ttl:    ttl,
		},
		AAAA: m.host.IPv6.AsSlice(),
	}
}

func (m *matcher) serviceSRV(svc *Service, ttl uint32, flush bool) dns.RR {
	return &dns.SRV{
		Hdr: dns.RR_Header{
			Name:   svc.InstanceFQDN(),
			Rrtype: dns.TypeSRV,
			Class:  recordClass(flush),
			Ttl:    ttl,
		},
		Priority: 0,
		Weight:   0,
		Port:     svc.Port,
		Target:   m.host.FQDN(),
	}
}

func (m *matcher) serviceTXT(svc *Service, ttl uint32, flush bool) dns.RR {
	// DNS-SD requires at least one string in a TXT record, possibly
	// the empty one (RFC 6763 §6.1).
	txt := svc.TXT
	if len(txt) == 0 {
		txt = []string{""}
	}
	return &dns.TXT{
		Hdr: dns.RR_Header{
			Name:   svc.InstanceFQDN(),
			Rrtype: dns.TypeTXT,
			Class:  recordClass(flush),
			Ttl:    ttl,
		},
		Txt: txt,
	}
}

func newPTR(name, target string, ttl uint32) dns.RR {
	return &dns.PTR{
		Hdr: dns.RR_Header{
			Name:   name,
			Rrtype: dns.TypePTR,
			Class:  dns.ClassINET,
			Ttl:    ttl,
		},
		Ptr: target,
	}
}
