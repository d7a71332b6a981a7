package dnsbl

import (
	"context"
	"fmt"
	"strings"

	"github.com/miekg/dns"

	"github.com/lc/rbl/internal/dnsresolver"
	"github.com/lc/rbl/internal/log"
)

// cycle is everything one QueryIP/GetAnswers pair owns.
type cycle struct {
	address string
	opts    queryOptions
	table   *table
	poller  *dnsresolver.Poller
	pending map[*dnsresolver.Query]string // handle -> domain
	status  map[string]string             // domain -> rcode name
}

// dispatch sends one query per domain of t. If any send fails, the queries
// already sent are closed and the error is returned.
func (c *Client) dispatch(ctx context.Context, rev string, t *table) (*cycle, error) {
	cyc := &cycle{
		table:   t,
		poller:  dnsresolver.NewPoller(),
		pending: make(map[*dnsresolver.Query]string, len(t.domains)),
		status:  make(map[string]string, len(t.domains)),
	}

	for _, domain := range t.domains {
		name := rev + "." + strings.TrimSuffix(domain, ".")
		q, err := c.resolver.Send(ctx, name, dns.TypeA)
		if err != nil {
			_ = cyc.poller.Close()
			return nil, fmt.Errorf("%w: %s: %v", ErrTransport, domain, err)
		}
		cyc.pending[q] = domain
		cyc.poller.Add(q)
		log.Debug("dnsbl: query sent", "name", name, "server", q.Server())
	}
	return cyc, nil
}
