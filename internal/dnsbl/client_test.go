package dnsbl

import (
	"context"
	"errors"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/lc/rbl/internal/dnsresolver"
	"github.com/lc/rbl/internal/mocks"
)

// zoneServer is a local DNS server answering per blacklist zone.
type zoneServer struct {
	addr string

	mu      sync.Mutex
	zones   map[string]dns.HandlerFunc
	queries map[string][]string // zone -> query names seen
}

func startZoneServer(t *testing.T) *zoneServer {
	t.Helper()

	z := &zoneServer{
		zones:   make(map[string]dns.HandlerFunc),
		queries: make(map[string][]string),
	}

	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err, "failed to listen")

	server := &dns.Server{PacketConn: pc, Handler: dns.HandlerFunc(z.serve)}
	started := make(chan struct{})
	server.NotifyStartedFunc = func() { close(started) }
	go func() {
		_ = server.ActivateAndServe()
	}()
	<-started

	t.Cleanup(func() { _ = server.Shutdown() })
	z.addr = pc.LocalAddr().String()
	return z
}

func (z *zoneServer) handle(zone string, h dns.HandlerFunc) {
	z.mu.Lock()
	defer z.mu.Unlock()
	z.zones[dns.Fqdn(zone)] = h
}

func (z *zoneServer) seen(zone string) []string {
	z.mu.Lock()
	defer z.mu.Unlock()
	return append([]string(nil), z.queries[dns.Fqdn(zone)]...)
}

func (z *zoneServer) serve(w dns.ResponseWriter, r *dns.Msg) {
	name := strings.ToLower(r.Question[0].Name)

	z.mu.Lock()
	var h dns.HandlerFunc
	for zone, zh := range z.zones {
		if strings.HasSuffix(name, "."+zone) {
			z.queries[zone] = append(z.queries[zone], name)
			h = zh
			break
		}
	}
	z.mu.Unlock()

	if h == nil {
		reply(dns.RcodeRefused)(w, r)
		return
	}
	h(w, r)
}

// reply answers with rcode and one A record per address.
func reply(rcode int, addrs ...string) dns.HandlerFunc {
	return func(w dns.ResponseWriter, r *dns.Msg) {
		m := new(dns.Msg)
		m.SetRcode(r, rcode)
		for _, a := range addrs {
			m.Answer = append(m.Answer, &dns.A{
				Hdr: dns.RR_Header{Name: r.Question[0].Name, Rrtype: dns.TypeA, Class: dns.ClassINET, Ttl: 60},
				A:   net.ParseIP(a),
			})
		}
		_ = w.WriteMsg(m)
	}
}

// silent never answers.
func silent(dns.ResponseWriter, *dns.Msg) {}

// delayed answers with h after d.
func delayed(d time.Duration, h dns.HandlerFunc) dns.HandlerFunc {
	return func(w dns.ResponseWriter, r *dns.Msg) {
		time.Sleep(d)
		h(w, r)
	}
}

// failingReads fails Read for every query under domain.
type failingReads struct {
	*dnsresolver.Client
	domain string
}

func (f *failingReads) Read(q *dnsresolver.Query) (*dns.Msg, error) {
	if strings.HasSuffix(q.Name(), "."+f.domain) {
		return nil, errors.New("malformed reply")
	}
	return f.Client.Read(q)
}

type ClientTestSuite struct {
	suite.Suite
	zones  *zoneServer
	client *Client
	ctx    context.Context
}

func (s *ClientTestSuite) SetupTest() {
	s.zones = startZoneServer(s.T())
	resolver := dnsresolver.New(10*time.Second, dnsresolver.WithResolvers([]string{s.zones.addr}))

	var err error
	s.client, err = New(2, WithResolver(resolver))
	s.Require().NoError(err)
	s.ctx = context.Background()
}

func (s *ClientTestSuite) TestEndToEnd() {
	s.zones.handle("d1", reply(dns.RcodeSuccess, "127.0.0.2"))

	hits, err := s.client.Lookup(s.ctx, "127.0.0.2", []Check{{Domain: "d1", Type: Normal}})
	s.Require().NoError(err)
	s.Equal([]Hit{{Domain: "d1", Type: Normal, ActualHit: "127.0.0.2", Listed: true}}, hits)
	s.Equal([]string{"2.0.0.127.d1."}, s.zones.seen("d1"))
	s.False(s.client.InFlight())
}

func (s *ClientTestSuite) TestIPv6QueryName() {
	s.zones.handle("v6.example", reply(dns.RcodeNameError))

	hits, err := s.client.Lookup(s.ctx, "::1", []Check{{Domain: "v6.example"}})
	s.Require().NoError(err)
	s.Empty(hits)
	s.Equal([]string{"1." + strings.Repeat("0.", 31) + "v6.example."}, s.zones.seen("v6.example"))
}

func (s *ClientTestSuite) TestDuplicateDomainsShareOneQuery() {
	s.zones.handle("d1", reply(dns.RcodeSuccess, "127.0.0.4"))
	checks := []Check{
		{Domain: "d1", UserData: "first"},
		{Domain: "d1", Type: Mask, Data: "4", UserData: "second"},
		{Domain: "d1", Type: Mask, Data: "8", UserData: "third"},
		{Domain: "d1", UserData: "first"},
	}

	hits, err := s.client.Lookup(s.ctx, "192.0.2.1", checks)
	s.Require().NoError(err)
	s.Len(s.zones.seen("d1"), 1, "one query per domain")
	s.ElementsMatch([]Hit{
		{Domain: "d1", UserData: "first", ActualHit: "127.0.0.4", Listed: true},
		{Domain: "d1", Type: Mask, Data: "4", UserData: "second", ActualHit: "127.0.0.4", Listed: true},
		{Domain: "d1", UserData: "first", ActualHit: "127.0.0.4", Listed: true},
	}, hits)
}

func (s *ClientTestSuite) TestMatchAndMaskAcrossDomains() {
	s.zones.handle("match.example", reply(dns.RcodeSuccess, "127.0.0.2", "127.0.0.3"))
	s.zones.handle("mask.example", reply(dns.RcodeSuccess, "127.0.0.8"))

	hits, err := s.client.Lookup(s.ctx, "192.0.2.1", []Check{
		{Domain: "match.example", Type: Match, Data: "127.0.0.3"},
		{Domain: "match.example", Type: Match, Data: "127.0.0.33"},
		{Domain: "mask.example", Type: Mask, Data: "0.0.0.8"},
		{Domain: "mask.example", Type: Mask, Data: "0.0.0.4"},
	})
	s.Require().NoError(err)
	s.ElementsMatch([]Hit{
		{Domain: "match.example", Type: Match, Data: "127.0.0.3", ActualHit: "127.0.0.3", Listed: true},
		{Domain: "mask.example", Type: Mask, Data: "0.0.0.8", ActualHit: "127.0.0.8", Listed: true},
	}, hits)
}

func (s *ClientTestSuite) TestNegativeRepliesAreNotErrors() {
	s.zones.handle("nx.example", reply(dns.RcodeNameError, "127.0.0.2"))
	s.zones.handle("fail.example", reply(dns.RcodeServerFailure, "127.0.0.2"))
	s.zones.handle("ok.example", reply(dns.RcodeSuccess))

	start := time.Now()
	hits, err := s.client.Lookup(s.ctx, "192.0.2.1", []Check{
		{Domain: "nx.example"},
		{Domain: "fail.example"},
		{Domain: "ok.example"},
	})
	s.Require().NoError(err)
	s.Empty(hits)
	s.Less(time.Since(start), time.Second, "cycle ends once no handles remain")
}

func (s *ClientTestSuite) TestEarlyExit() {
	s.zones.handle("fast.example", reply(dns.RcodeSuccess, "127.0.0.2"))
	s.zones.handle("never.example", silent)
	s.Require().NoError(s.client.SetTimeout(5))

	start := time.Now()
	hits, err := s.client.Lookup(s.ctx, "192.0.2.1", []Check{
		{Domain: "fast.example"},
		{Domain: "never.example"},
	}, WithEarlyExit())
	elapsed := time.Since(start)

	s.Require().NoError(err)
	s.Equal([]Hit{{Domain: "fast.example", ActualHit: "127.0.0.2", Listed: true}}, hits)
	s.Less(elapsed, 2*time.Second, "must not wait for the silent zone")
	s.False(s.client.InFlight())
}

func (s *ClientTestSuite) TestEmptyWaitEndsCycle() {
	s.zones.handle("fast.example", reply(dns.RcodeSuccess, "127.0.0.2"))
	s.zones.handle("never.example", silent)
	s.Require().NoError(s.client.SetTimeout(10))

	start := time.Now()
	hits, err := s.client.Lookup(s.ctx, "192.0.2.1", []Check{
		{Domain: "fast.example"},
		{Domain: "never.example"},
	})
	elapsed := time.Since(start)

	s.Require().NoError(err)
	s.Len(hits, 1)
	// The second wait lasts the whole remaining budget and returns empty.
	s.GreaterOrEqual(elapsed, 9*time.Second)
	s.Less(elapsed, 12*time.Second)
}

func (s *ClientTestSuite) TestTimeoutWithNoReplies() {
	s.zones.handle("never.example", silent)
	s.Require().NoError(s.client.SetTimeout(1))

	start := time.Now()
	hits, err := s.client.Lookup(s.ctx, "192.0.2.1", []Check{{Domain: "never.example"}})
	s.Require().NoError(err)
	s.Empty(hits)
	s.GreaterOrEqual(time.Since(start), 900*time.Millisecond)
	s.Less(time.Since(start), 3*time.Second)
}

func (s *ClientTestSuite) TestReturnAll() {
	s.zones.handle("hit.example", reply(dns.RcodeSuccess, "127.0.0.2"))
	s.zones.handle("nx.example", reply(dns.RcodeNameError))
	s.zones.handle("never.example", silent)
	s.Require().NoError(s.client.SetTimeout(1))

	hits, err := s.client.Lookup(s.ctx, "192.0.2.1", []Check{
		{Domain: "hit.example", Type: Match, Data: "127.0.0.9"},
		{Domain: "nx.example"},
		{Domain: "hit.example"},
		{Domain: "never.example"},
	}, WithReturnAll())
	s.Require().NoError(err)
	s.Equal([]Hit{
		{Domain: "hit.example", Type: Match, Data: "127.0.0.9", Status: "NOERROR"},
		{Domain: "nx.example", Status: "NXDOMAIN"},
		{Domain: "hit.example", ActualHit: "127.0.0.2", Listed: true, Status: "NOERROR"},
		{Domain: "never.example"},
	}, hits)
}

func (s *ClientTestSuite) TestUsageErrors() {
	s.zones.handle("d1", reply(dns.RcodeSuccess, "127.0.0.2"))
	checks := []Check{{Domain: "d1"}}

	_, err := s.client.GetAnswers(s.ctx)
	s.ErrorIs(err, ErrUsage, "GetAnswers without QueryIP")

	s.ErrorIs(s.client.QueryIP(s.ctx, "", checks), ErrUsage)
	s.ErrorIs(s.client.QueryIP(s.ctx, "127.0.0.2", nil), ErrUsage)
	s.ErrorIs(s.client.QueryIP(s.ctx, "not-an-ip", checks), ErrInvalidAddress)
	s.False(s.client.InFlight())

	s.Require().NoError(s.client.QueryIP(s.ctx, "127.0.0.2", checks))
	s.True(s.client.InFlight())
	s.ErrorIs(s.client.QueryIP(s.ctx, "127.0.0.2", checks), ErrUsage, "second QueryIP while in flight")

	hits, err := s.client.GetAnswers(s.ctx)
	s.Require().NoError(err)
	s.Len(hits, 1)
	s.False(s.client.InFlight())

	_, err = s.client.GetAnswers(s.ctx)
	s.ErrorIs(err, ErrUsage, "GetAnswers twice")
}

func (s *ClientTestSuite) TestCycleStateIsFresh() {
	s.zones.handle("d1", reply(dns.RcodeSuccess, "127.0.0.2"))
	checks := []Check{{Domain: "d1"}}

	first, err := s.client.Lookup(s.ctx, "127.0.0.2", checks)
	s.Require().NoError(err)
	second, err := s.client.Lookup(s.ctx, "127.0.0.2", checks)
	s.Require().NoError(err)
	s.Equal(first, second)
}

func (s *ClientTestSuite) TestTransportError() {
	dialer := new(mocks.MockDialer)
	dialer.On("DialContext", mock.Anything, "192.0.2.53:53").Return(nil, errors.New("no route to host"))
	resolver := dnsresolver.New(time.Second,
		dnsresolver.WithResolvers([]string{"192.0.2.53"}),
		dnsresolver.WithDialer(dialer))

	c, err := New(1, WithResolver(resolver))
	s.Require().NoError(err)

	err = c.QueryIP(s.ctx, "127.0.0.2", []Check{{Domain: "d1"}, {Domain: "d2"}})
	s.ErrorIs(err, ErrTransport)
	s.ErrorContains(err, "no route to host")
	s.False(c.InFlight())
	dialer.AssertNumberOfCalls(s.T(), "DialContext", 1)
}

func (s *ClientTestSuite) TestCancelledContext() {
	s.zones.handle("never.example", silent)
	s.Require().NoError(s.client.SetTimeout(10))
	s.Require().NoError(s.client.QueryIP(s.ctx, "192.0.2.1", []Check{{Domain: "never.example"}}))

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	hits, err := s.client.GetAnswers(ctx)
	s.ErrorIs(err, context.DeadlineExceeded)
	s.Empty(hits)
	s.Less(time.Since(start), 2*time.Second)
	s.False(s.client.InFlight())
}

func (s *ClientTestSuite) TestUnreadableReplyIsSkipped() {
	s.zones.handle("broken.example", reply(dns.RcodeSuccess, "127.0.0.2"))
	s.zones.handle("good.example", delayed(300*time.Millisecond, reply(dns.RcodeSuccess, "127.0.0.3")))
	resolver := &failingReads{
		Client: dnsresolver.New(time.Second, dnsresolver.WithResolvers([]string{s.zones.addr})),
		domain: "broken.example",
	}
	c, err := New(5, WithResolver(resolver))
	s.Require().NoError(err)

	start := time.Now()
	hits, err := c.Lookup(s.ctx, "192.0.2.1", []Check{
		{Domain: "broken.example"},
		{Domain: "good.example"},
	})
	s.Require().NoError(err)
	s.Equal([]Hit{{Domain: "good.example", ActualHit: "127.0.0.3", Listed: true}}, hits)
	s.Len(s.zones.seen("broken.example"), 1)
	s.Less(time.Since(start), 2*time.Second, "the failed handle is dropped, not waited on")
	s.False(c.InFlight())
}

func (s *ClientTestSuite) TestRaisedTimeoutExtendsWait() {
	s.zones.handle("slow.example", delayed(2*time.Second, reply(dns.RcodeSuccess, "127.0.0.2")))
	resolver := dnsresolver.New(time.Second, dnsresolver.WithResolvers([]string{s.zones.addr}))
	c, err := New(1, WithResolver(resolver))
	s.Require().NoError(err)
	s.Require().NoError(c.SetTimeout(4))

	start := time.Now()
	hits, err := c.Lookup(s.ctx, "192.0.2.1", []Check{{Domain: "slow.example"}})
	s.Require().NoError(err)
	s.Equal([]Hit{{Domain: "slow.example", ActualHit: "127.0.0.2", Listed: true}}, hits)
	s.GreaterOrEqual(time.Since(start), 2*time.Second)
}

func (s *ClientTestSuite) TestBudgetStartsAtGetAnswers() {
	s.zones.handle("slow.example", delayed(2500*time.Millisecond, reply(dns.RcodeSuccess, "127.0.0.2")))
	resolver := dnsresolver.New(2*time.Second, dnsresolver.WithResolvers([]string{s.zones.addr}))
	c, err := New(2, WithResolver(resolver))
	s.Require().NoError(err)

	s.Require().NoError(c.QueryIP(s.ctx, "192.0.2.1", []Check{{Domain: "slow.example"}}))
	time.Sleep(1500 * time.Millisecond)

	hits, err := c.GetAnswers(s.ctx)
	s.Require().NoError(err)
	s.Equal([]Hit{{Domain: "slow.example", ActualHit: "127.0.0.2", Listed: true}}, hits)
	s.False(c.InFlight())
}

func (s *ClientTestSuite) TestTimeoutSettings() {
	_, err := New(0)
	s.ErrorIs(err, ErrConfiguration)
	_, err = New(-5)
	s.ErrorIs(err, ErrConfiguration)

	for _, v := range []int{1, 7, 300} {
		s.Require().NoError(s.client.SetTimeout(v))
		s.Equal(v, s.client.Timeout())
	}
	s.ErrorIs(s.client.SetTimeout(0), ErrConfiguration)
	s.ErrorIs(s.client.SetTimeout(-1), ErrConfiguration)
	s.Equal(300, s.client.Timeout(), "rejected values leave the timeout untouched")
}

func (s *ClientTestSuite) TestCheckHealth() {
	s.zones.handle("healthy.example", func(w dns.ResponseWriter, r *dns.Msg) {
		if strings.HasPrefix(r.Question[0].Name, "2.0.0.127.") {
			reply(dns.RcodeSuccess, "127.0.0.2")(w, r)
			return
		}
		reply(dns.RcodeNameError)(w, r)
	})
	s.zones.handle("wildcard.example", reply(dns.RcodeSuccess, "127.0.0.2"))
	s.zones.handle("empty.example", reply(dns.RcodeNameError))

	s.NoError(CheckHealth(s.ctx, s.client, "healthy.example"))

	err := CheckHealth(s.ctx, s.client, "wildcard.example")
	s.ErrorIs(err, ErrZoneUnhealthy)
	s.ErrorContains(err, "unwanted test address 127.0.0.1")

	err = CheckHealth(s.ctx, s.client, "empty.example")
	s.ErrorIs(err, ErrZoneUnhealthy)
	s.ErrorContains(err, "required test address 127.0.0.2")
}

func TestClientSuite(t *testing.T) {
	suite.Run(t, new(ClientTestSuite))
}
