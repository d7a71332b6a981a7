// Package dnsbl checks an IP address against DNS-based blacklists.
//
// A lookup sends one A query per distinct blacklist zone for the reversed
// address (192.0.2.1 against zen.spamhaus.org queries
// 1.2.0.192.zen.spamhaus.org), waits a bounded time for the replies and
// classifies each A record against the caller's checks:
//
//   - Normal: any A record is a hit
//   - Match: an A record equal to Data is a hit
//   - Mask: an A record whose bits intersect Data is a hit; Data is a dotted
//     quad or a bare value n meaning 0.0.0.n
//
// # Basic Usage
//
//	c, err := dnsbl.New(10)
//	if err != nil {
//		return err
//	}
//	hits, err := c.Lookup(ctx, "192.0.2.1", []dnsbl.Check{
//		{Domain: "zen.spamhaus.org", Type: dnsbl.Mask, Data: "0.0.0.2"},
//		{Domain: "bl.spamcop.net"},
//	})
//
// Lookup is QueryIP followed by GetAnswers; the two halves can be called
// separately to do other work while the queries are in flight. Only one
// cycle may be in flight per Client.
//
// # Timeouts and partial results
//
// GetAnswers waits until every zone replied or the timeout passes. A wait
// during which no reply arrives ends the cycle early. Zones that did not
// reply, replied NXDOMAIN or SERVFAIL, or sent an unreadable reply simply
// contribute no hits. Nothing is retried.
//
// WithEarlyExit returns as soon as one batch of replies produced a hit.
// WithReturnAll returns every check with Listed and Status set instead of
// only the hits.
package dnsbl
