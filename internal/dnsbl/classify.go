package dnsbl

import (
	"github.com/miekg/dns"

	"github.com/lc/rbl/internal/log"
)

// matchFunc reports whether the reply address satisfies the check.
type matchFunc func(c Check, addr string) bool

var matchers = [...]matchFunc{
	Normal: matchNormal,
	Match:  matchExact,
	Mask:   matchMask,
}

func matchNormal(Check, string) bool { return true }

func matchExact(c Check, addr string) bool { return addr == c.Data }

func matchMask(c Check, addr string) bool {
	mask, err := ParseMask(c.Data)
	if err != nil {
		log.Warn("dnsbl: ignoring mask check", "domain", c.Domain, "error", err)
		return false
	}
	v, err := ipv4ToUint32(addr)
	if err != nil {
		return false
	}
	return v&mask != 0
}

// classify evaluates the A records of one reply against the entries of its
// domain. Each unsatisfied entry is taken by the first record that matches
// it; newly satisfied entries are returned in evaluation order.
func classify(answers []dns.RR, entries []*entry) []*entry {
	var hits []*entry
	for _, rr := range answers {
		a, ok := rr.(*dns.A)
		if !ok || a.A == nil {
			continue
		}
		addr := a.A.String()
		for _, e := range entries {
			if e.hit {
				continue
			}
			if int(e.Type) >= len(matchers) || !matchers[e.Type](e.Check, addr) {
				continue
			}
			e.hit = true
			e.actualHit = addr
			hits = append(hits, e)
		}
	}
	return hits
}
