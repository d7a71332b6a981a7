package dnsbl

import (
	"context"
	"fmt"
	"strings"

	"github.com/miekg/dns"

	"github.com/lc/rbl/internal/dnsresolver"
	"github.com/lc/rbl/internal/log"
)

// Resolver sends non-blocking queries and reads their replies.
// *dnsresolver.Client satisfies it.
type Resolver interface {
	Send(ctx context.Context, name string, qtype uint16) (*dnsresolver.Query, error)
	Read(q *dnsresolver.Query) (*dns.Msg, error)
}

var _ Resolver = (*dnsresolver.Client)(nil)

type state uint8

const (
	stateIdle state = iota
	stateInFlight
	stateDraining
)

func (s state) String() string {
	switch s {
	case stateIdle:
		return "idle"
	case stateInFlight:
		return "in flight"
	case stateDraining:
		return "draining"
	}
	return "unknown"
}

// Client checks one address at a time against a set of blacklists.
//
// A lookup cycle is QueryIP followed by GetAnswers. Only one cycle may be
// outstanding; the client is not safe for concurrent use.
type Client struct {
	timeout  int
	resolver Resolver

	state state
	cycle *cycle
}

// Opt is a function option for configuring the Client.
type Opt func(c *Client)

// WithResolver sets the DNS resolver used to send queries.
func WithResolver(r Resolver) Opt {
	return func(c *Client) {
		c.resolver = r
	}
}

// New creates a Client that waits up to timeoutSeconds for replies in
// GetAnswers. Without WithResolver, a dnsresolver.Client using the system
// resolvers is created.
func New(timeoutSeconds int, opts ...Opt) (*Client, error) {
	if timeoutSeconds <= 0 {
		return nil, fmt.Errorf("%w: timeout must be a positive number of seconds, got %d", ErrConfiguration, timeoutSeconds)
	}
	c := &Client{timeout: timeoutSeconds}
	for _, o := range opts {
		o(c)
	}
	if c.resolver == nil {
		c.resolver = dnsresolver.New(c.timeoutDuration())
	}
	return c, nil
}

// Timeout returns the reply timeout in seconds.
func (c *Client) Timeout() int { return c.timeout }

// SetTimeout changes the reply timeout. Non-positive values are rejected
// and leave the current timeout in place.
func (c *Client) SetTimeout(seconds int) error {
	if seconds <= 0 {
		return fmt.Errorf("%w: timeout must be a positive number of seconds, got %d", ErrConfiguration, seconds)
	}
	c.timeout = seconds
	return nil
}

// InFlight reports whether QueryIP has been called without the matching GetAnswers.
func (c *Client) InFlight() bool { return c.state != stateIdle }

// QueryOpt configures a single lookup cycle.
type QueryOpt func(*queryOptions)

type queryOptions struct {
	earlyExit bool
	returnAll bool
}

// WithEarlyExit makes GetAnswers return as soon as any hit is found,
// abandoning replies still outstanding.
func WithEarlyExit() QueryOpt {
	return func(o *queryOptions) { o.earlyExit = true }
}

// WithEarlyExitIf is WithEarlyExit controlled by a flag.
func WithEarlyExitIf(enabled bool) QueryOpt {
	return func(o *queryOptions) { o.earlyExit = enabled }
}

// WithReturnAll makes GetAnswers return every check, satisfied or not,
// annotated with the reply status of its domain.
func WithReturnAll() QueryOpt {
	return func(o *queryOptions) { o.returnAll = true }
}

// QueryIP starts a lookup cycle: it sends one A query per distinct domain in
// checks for the reversed form of addr. Replies are collected by GetAnswers.
//
// QueryIP fails with ErrUsage if a cycle is already in flight or an argument
// is missing, with ErrInvalidAddress if addr is not an IP address, and with
// ErrTransport if any query cannot be sent. On failure no cycle is started.
func (c *Client) QueryIP(ctx context.Context, addr string, checks []Check, opts ...QueryOpt) error {
	if c.state != stateIdle {
		return fmt.Errorf("%w: a query is already in flight", ErrUsage)
	}
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return fmt.Errorf("%w: address is required", ErrUsage)
	}
	if len(checks) == 0 {
		return fmt.Errorf("%w: at least one check is required", ErrUsage)
	}

	var o queryOptions
	for _, opt := range opts {
		opt(&o)
	}

	rev, err := ReverseAddress(addr)
	if err != nil {
		return err
	}

	cyc, err := c.dispatch(ctx, rev, newTable(checks))
	if err != nil {
		return err
	}
	cyc.address = addr
	cyc.opts = o

	c.cycle = cyc
	c.state = stateInFlight
	return nil
}

// GetAnswers waits for the replies of the cycle started by QueryIP and
// returns the satisfied checks, in no particular order. It waits at most
// the client timeout, and less if every reply arrives, nothing arrives
// within one wait, or early exit applies. Whatever was collected is returned
// on a cancelled ctx together with ctx.Err().
//
// GetAnswers fails with ErrUsage if no cycle is in flight. It always ends
// the cycle.
func (c *Client) GetAnswers(ctx context.Context) ([]Hit, error) {
	if c.state != stateInFlight {
		return nil, fmt.Errorf("%w: no query in flight", ErrUsage)
	}
	cyc := c.cycle
	c.state = stateDraining
	defer func() {
		if err := cyc.poller.Close(); err != nil {
			log.Debug("dnsbl: closing abandoned queries", "address", cyc.address, "error", err)
		}
		c.cycle = nil
		c.state = stateIdle
	}()

	hits := c.collect(ctx, cyc)
	if err := ctx.Err(); err != nil {
		return hits, err
	}
	return hits, nil
}

// Lookup runs a whole cycle: QueryIP followed by GetAnswers.
func (c *Client) Lookup(ctx context.Context, addr string, checks []Check, opts ...QueryOpt) ([]Hit, error) {
	if err := c.QueryIP(ctx, addr, checks, opts...); err != nil {
		return nil, err
	}
	return c.GetAnswers(ctx)
}
