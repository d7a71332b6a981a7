package mocks

import (
	"context"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/mock"

	"github.com/lc/rbl/internal/dnsresolver"
)

var _ dnsresolver.Dialer = (*MockDialer)(nil)

// MockDialer is a mock implementation of dnsresolver.Dialer.
type MockDialer struct {
	mock.Mock
}

// DialContext mocks the DialContext method.
func (m *MockDialer) DialContext(ctx context.Context, address string) (*dns.Conn, error) {
	args := m.Called(ctx, address)
	// Need to handle potential nil pointer return
	var conn *dns.Conn
	if args.Get(0) != nil {
		conn = args.Get(0).(*dns.Conn)
	}
	return conn, args.Error(1)
}
