package dnsbl

import (
	"context"
	"strconv"
	"time"

	"github.com/miekg/dns"

	"github.com/lc/rbl/internal/log"
)

// minWait is the shortest single wait for replies.
const minWait = time.Second

func (c *Client) timeoutDuration() time.Duration {
	return time.Duration(c.timeout) * time.Second
}

// collect waits for replies until none are outstanding, the deadline has
// passed, a wait returns nothing, or early exit applies.
func (c *Client) collect(ctx context.Context, cyc *cycle) []Hit {
	deadline := time.Now().Add(c.timeoutDuration())
	// The budget runs from here, not from QueryIP, and follows SetTimeout.
	for q := range cyc.pending {
		_ = q.SetReadDeadline(deadline.Add(minWait))
	}
	var hits []*entry

	for !time.Now().After(deadline) && cyc.poller.Len() > 0 {
		remaining := time.Until(deadline)
		if remaining < minWait {
			remaining = minWait
		}

		ready := cyc.poller.Wait(ctx, remaining)
		if len(ready) == 0 {
			log.Debug("dnsbl: wait returned nothing", "address", cyc.address, "outstanding", cyc.poller.Len())
			break
		}

		for _, q := range ready {
			cyc.poller.Remove(q)
			domain := cyc.pending[q]

			msg, err := c.resolver.Read(q)
			if err != nil || msg == nil {
				log.Debug("dnsbl: unreadable reply", "domain", domain, "error", err)
				continue
			}
			cyc.status[domain] = rcodeName(msg.Rcode)

			if msg.Rcode == dns.RcodeServerFailure || msg.Rcode == dns.RcodeNameError {
				log.Debug("dnsbl: not listed", "domain", domain, "rcode", cyc.status[domain])
				continue
			}

			found := classify(msg.Answer, cyc.table.byZone[domain])
			for _, e := range found {
				log.Debug("dnsbl: hit", "address", cyc.address, "domain", domain, "type", e.Type, "actual", e.actualHit)
			}
			hits = append(hits, found...)
		}

		if cyc.opts.earlyExit && len(hits) > 0 {
			log.Debug("dnsbl: early exit", "address", cyc.address, "abandoned", cyc.poller.Len())
			break
		}
	}

	return cyc.results(hits)
}

// results builds the caller-facing records: the hits as collected, or every
// entry in caller order in return-all mode.
func (cyc *cycle) results(hits []*entry) []Hit {
	if cyc.opts.returnAll {
		out := make([]Hit, 0, len(cyc.table.all))
		for _, e := range cyc.table.all {
			out = append(out, e.toHit(cyc.status[e.Domain]))
		}
		return out
	}

	out := make([]Hit, 0, len(hits))
	for _, e := range hits {
		out = append(out, e.toHit(""))
	}
	return out
}

func rcodeName(rcode int) string {
	if s, ok := dns.RcodeToString[rcode]; ok {
		return s
	}
	return "RCODE" + strconv.Itoa(rcode)
}
