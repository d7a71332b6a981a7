package dnsbl

import "errors"

// Sentinel errors for the dnsbl package.
var (
	// ErrConfiguration is returned for a non-positive timeout or a missing resolver.
	ErrConfiguration = errors.New("dnsbl: invalid configuration")

	// ErrUsage is returned when the client is driven out of order or
	// called without required arguments.
	ErrUsage = errors.New("dnsbl: usage error")

	// ErrInvalidAddress is returned when an address is neither IPv4 nor IPv6.
	ErrInvalidAddress = errors.New("dnsbl: invalid address")

	// ErrTransport is returned when a query cannot be sent to the resolver.
	ErrTransport = errors.New("dnsbl: transport error")

	// ErrInvalidCheck is returned when a check specification cannot be parsed.
	ErrInvalidCheck = errors.New("dnsbl: invalid check")

	// ErrZoneUnhealthy is returned by CheckHealth when a zone fails its test entries.
	ErrZoneUnhealthy = errors.New("dnsbl: zone unhealthy")
)
