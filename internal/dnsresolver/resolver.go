package dnsresolver

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/miekg/dns"
)

var (
	// ErrEmptyMsg is returned when a query completed without a DNS message.
	ErrEmptyMsg = errors.New("empty message")
	// ErrEmptyName is returned when an empty query name is provided.
	ErrEmptyName = errors.New("empty query name")
	// ErrNotReady is returned by Read when the reply for a query has not arrived yet.
	ErrNotReady = errors.New("reply not ready")
)

var (
	_defaultResolver = "1.1.1.1:53"
	_resolvConf      = "/etc/resolv.conf"
)

// Dialer opens DNS connections. *dns.Client satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, address string) (*dns.Conn, error)
}

var _ Dialer = (*dns.Client)(nil)

// Client sends DNS queries without waiting for their replies.
// It is safe for concurrent use; every query gets its own connection.
type Client struct {
	Dialer Dialer
	// Timeout bounds dialing.
	Timeout time.Duration
	// ReadTimeout, when positive, bounds the background read of every reply
	// from the moment the query is sent. Zero leaves reads running until the
	// query is closed or given a deadline with SetReadDeadline.
	ReadTimeout time.Duration
	Resolvers   []string
}

// Opt is a function option for configuring the Client.
type Opt func(r *Client)

// New creates a new Client. timeout bounds dialing; replies are awaited
// until the query is closed. Resolvers default to the servers in /etc/resolv.conf,
// falling back to 1.1.1.1:53.
func New(timeout time.Duration, opts ...Opt) *Client {
	res := &Client{
		Dialer: &dns.Client{
			Net:     "udp",
			Timeout: timeout,
		},
		Timeout:   timeout,
		Resolvers: systemResolvers(_resolvConf),
	}

	for _, o := range opts {
		o(res)
	}

	return res
}

// WithResolvers returns an option to set custom DNS resolvers ("host:port").
func WithResolvers(resolvers []string) Opt {
	return func(r *Client) {
		if len(resolvers) > 0 {
			r.Resolvers = normalizeResolvers(resolvers)
		}
	}
}

// WithTimeout returns an option to set a custom dial timeout.
// This overrides the timeout provided to New.
func WithTimeout(timeout time.Duration) Opt {
	return func(r *Client) {
		r.Timeout = timeout
	}
}

// WithReadTimeout returns an option to give every background read a
// deadline counted from Send.
func WithReadTimeout(timeout time.Duration) Opt {
	return func(r *Client) {
		r.ReadTimeout = timeout
	}
}

// WithDialer replaces the connection dialer.
func WithDialer(d Dialer) Opt {
	return func(r *Client) {
		if d != nil {
			r.Dialer = d
		}
	}
}

// Send writes a recursive query for name/qtype to one of the configured
// resolvers and returns a handle for the pending reply. It fails only when
// the query cannot be put on the wire; in that case nothing is left open.
func (r *Client) Send(ctx context.Context, name string, qtype uint16) (*Query, error) {
	if strings.TrimSpace(name) == "" {
		return nil, ErrEmptyName
	}

	req := new(dns.Msg)
	req.SetQuestion(dns.Fqdn(name), qtype)
	req.RecursionDesired = true

	server := r.getResolver()
	conn, err := r.Dialer.DialContext(ctx, server)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", server, err)
	}
	if err := conn.WriteMsg(req); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("send %q to %s: %w", name, server, err)
	}

	q := &Query{
		name:   name,
		server: server,
		id:     req.Id,
		conn:   conn,
		done:   make(chan struct{}),
	}
	if r.ReadTimeout > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(r.ReadTimeout))
	}
	go q.read()
	return q, nil
}

// Read returns the decoded reply for q. It never blocks: ErrNotReady is
// returned while the reply is still outstanding.
func (r *Client) Read(q *Query) (*dns.Msg, error) {
	select {
	case <-q.done:
	default:
		return nil, ErrNotReady
	}
	if q.err != nil {
		return nil, q.err
	}
	if q.reply == nil {
		return nil, ErrEmptyMsg
	}
	return q.reply, nil
}

// Query is the handle of one outstanding DNS query.
type Query struct {
	name   string
	server string
	id     uint16
	conn   *dns.Conn

	done  chan struct{}
	reply *dns.Msg
	err   error

	closeOnce sync.Once
	closeErr  error
}

// Name returns the name the query was sent for, as passed to Send.
func (q *Query) Name() string { return q.name }

// Server returns the resolver address the query was sent to.
func (q *Query) Server() string { return q.server }

// Done is closed once the reply has been read or the read failed.
func (q *Query) Done() <-chan struct{} { return q.done }

// Close releases the connection. An outstanding read finishes with an error.
func (q *Query) Close() error {
	q.closeOnce.Do(func() {
		q.closeErr = q.conn.Close()
	})
	return q.closeErr
}

// SetReadDeadline moves the deadline of the outstanding read. A read that
// has already finished is not affected.
func (q *Query) SetReadDeadline(t time.Time) error {
	return q.conn.SetReadDeadline(t)
}

// read waits for the reply matching the query ID, skipping strays.
func (q *Query) read() {
	defer close(q.done)
	defer q.Close()

	for {
		m, err := q.conn.ReadMsg()
		if err != nil {
			q.err = err
			return
		}
		if m.Id != q.id {
			continue
		}
		q.reply = m
		return
	}
}

// getResolver returns a random resolver from the list of resolvers.
func (r *Client) getResolver() string {
	if len(r.Resolvers) == 0 {
		return _defaultResolver
	}

	// Use crypto/rand for secure random selection
	n, err := rand.Int(rand.Reader, big.NewInt(int64(len(r.Resolvers))))
	if err != nil {
		// Fall back to first resolver on error
		return r.Resolvers[0]
	}

	return r.Resolvers[n.Int64()]
}

// systemResolvers reads the nameservers from a resolv.conf style file.
func systemResolvers(path string) []string {
	cfg, err := dns.ClientConfigFromFile(path)
	if err != nil || len(cfg.Servers) == 0 {
		return nil
	}
	servers := make([]string, 0, len(cfg.Servers))
	for _, s := range cfg.Servers {
		servers = append(servers, net.JoinHostPort(s, cfg.Port))
	}
	return servers
}

// normalizeResolvers appends the default port to resolvers given without one.
func normalizeResolvers(resolvers []string) []string {
	out := make([]string, 0, len(resolvers))
	for _, s := range resolvers {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, _, err := net.SplitHostPort(s); err != nil {
			s = net.JoinHostPort(strings.Trim(s, "[]"), "53")
		}
		out = append(out, s)
	}
	return out
}
