// SPDX-License-Identifier: GPL-3.0-or-later

package mdns

import (
	"github.com/bassosimone/runtimex"
	"github.com/miekg/dns"
)

// messageOverhead conservatively accounts for the DNS message header
// and the fixed resource-record fields next to a record's name and
// rdata. Startup validation uses it to ensure each service's TXT
// attributes can ever fit in one send buffer.
const messageOverhead = 32

// emitFunc consumes one wire-ready message. The packet slice aliases
// the send buffer and is only valid until the next emission.
type emitFunc func(pkt []byte) error

// synthesizer assembles matcher output into wire-ready DNS responses
// bounded by the fixed send buffer.
//
// Two policies keep it from ever failing on capacity:
//
//  1. answers for different questions that do not fit together are
//     spread over multiple sequential messages;
//
//  2. a single question's answer set that cannot fit alone is
//     truncated, dropping the lowest-priority records first (SRV/TXT
//     before PTR before A/AAAA).
type synthesizer struct {
	// send is the fixed-capacity send buffer owned by the run loop.
	send []byte
}

// synthesize encodes the answer sets for all questions of one inbound
// message, invoking emit for each wire-ready response. Per mDNS
// convention the question section stays empty and id is zero except
// for legacy unicast responses. Only emit errors propagate; capacity
// problems are absorbed by truncation.
func (s *synthesizer) synthesize(id uint16, sets []answerSet, emit emitFunc) error {
	cur := s.newResponse(id)
	for i := range sets {
		if sets[i].empty() {
			continue
		}

		// 1. try to coalesce this set with the answers already in
		// the current message
		numAnswer, numExtra := len(cur.Answer), len(cur.Extra)
		appendAnswers(cur, sets[i].answers)
		if s.fits(cur) {
			continue
		}
		cur.Answer, cur.Extra = cur.Answer[:numAnswer], cur.Extra[:numExtra]

		// 2. it does not fit alongside earlier answers: flush them
		// as one message and start a fresh one
		if len(cur.Answer)+len(cur.Extra) > 0 {
			if err := s.emitMessage(cur, emit); err != nil {
				return err
			}
			cur = s.newResponse(id)
		}

		// 3. if the set alone still exceeds the buffer, truncate it
		// by priority rather than failing the whole response
		answers := s.truncateToFit(id, sets[i].answers)
		appendAnswers(cur, answers)
	}
	if len(cur.Answer)+len(cur.Extra) > 0 {
		return s.emitMessage(cur, emit)
	}
	return nil
}

// newResponse creates an empty response message. Responses MUST NOT
// contain questions (RFC 6762 §6), so the question section stays nil.
func (s *synthesizer) newResponse(id uint16) *dns.Msg {
	msg := new(dns.Msg)
	msg.Id = id
	msg.Response = true
	msg.Authoritative = true
	msg.Compress = true
	return msg
}

// fits reports whether msg encodes within the send buffer.
func (s *synthesizer) fits(msg *dns.Msg) bool {
	return msg.Len() <= len(s.send)
}

// emitMessage packs msg into the send buffer and hands it to emit. If
// packing lands over capacity despite the earlier size estimate, the
// lowest-priority records are dropped until the message fits; a
// message reduced to nothing is silently skipped.
func (s *synthesizer) emitMessage(msg *dns.Msg, emit emitFunc) error {
	for len(msg.Answer)+len(msg.Extra) > 0 {
		pkt, err := msg.PackBuffer(s.send)
		if err == nil && len(pkt) <= len(s.send) {
			return emit(pkt)
		}
		dropLowestPriority(msg)
	}
	return nil
}

// truncateToFit returns the largest prefix-preserving subset of
// answers that fits in one message, dropping lowest-priority records
// first. The input slice is never mutated; the matcher may be re-run
// on the same question and must see identical output.
func (s *synthesizer) truncateToFit(id uint16, answers []answer) []answer {
	out := append([]answer(nil), answers...)
	for len(out) > 0 {
		probe := s.newResponse(id)
		appendAnswers(probe, out)
		if s.fits(probe) {
			break
		}
		out = dropOne(out)
	}
	return out
}

// dropOne removes the last record of the most expendable class
// present. Remaining answers keep their relative order.
func dropOne(answers []answer) []answer {
	worst, rank := -1, -1
	for i := range answers {
		if r := dropRank(answers[i].rr); r >= rank {
			worst, rank = i, r
		}
	}
	runtimex.Assert(worst >= 0)
	return append(answers[:worst], answers[worst+1:]...)
}

// dropLowestPriority removes one record from msg, preferring the
// additional section over the answer section at equal rank.
func dropLowestPriority(msg *dns.Msg) {
	extraWorst, extraRank := -1, -1
	for i := range msg.Extra {
		if r := dropRank(msg.Extra[i]); r >= extraRank {
			extraWorst, extraRank = i, r
		}
	}
	answerWorst, answerRank := -1, -1
	for i := range msg.Answer {
		if r := dropRank(msg.Answer[i]); r >= answerRank {
			answerWorst, answerRank = i, r
		}
	}
	switch {
	case extraWorst >= 0 && extraRank >= answerRank:
		msg.Extra = append(msg.Extra[:extraWorst], msg.Extra[extraWorst+1:]...)
	case answerWorst >= 0:
		msg.Answer = append(msg.Answer[:answerWorst], msg.Answer[answerWorst+1:]...)
	}
}

// dropRank orders records by how expendable they are under capacity
// pressure: service metadata goes first, address records last.
func dropRank(rr dns.RR) int {
	switch rr.Header().Rrtype {
	case dns.TypeA, dns.TypeAAAA:
		return 0
	case dns.TypePTR:
		return 1
	default:
		return 2
	}
}

func appendAnswers(msg *dns.Msg, answers []answer) {
	for i := range answers {
		if answers[i].additional {
			msg.Extra = append(msg.Extra, answers[i].rr)
		} else {
			msg.Answer = append(msg.Answer, answers[i].rr)
		}
	}
}
