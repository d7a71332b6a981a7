package dnsbl

import (
	"context"
	"fmt"
)

// Test entries every RFC 5782 zone must answer consistently.
const (
	healthListed   = "127.0.0.2"
	healthUnlisted = "127.0.0.1"
)

// CheckHealth tests whether zone is operating: 127.0.0.2 must be listed and
// 127.0.0.1 must not. It runs two lookup cycles on c, so c must be idle.
// A zone that misbehaves yields ErrZoneUnhealthy; a failure to query it is
// returned as is.
func CheckHealth(ctx context.Context, c *Client, zone string) error {
	checks := []Check{{Domain: zone, Type: Normal}}

	hits, err := c.Lookup(ctx, healthListed, checks)
	if err != nil {
		return err
	}
	if len(hits) == 0 {
		return fmt.Errorf("%w: %s does not list required test address %s", ErrZoneUnhealthy, zone, healthListed)
	}

	hits, err = c.Lookup(ctx, healthUnlisted, checks)
	if err != nil {
		return err
	}
	if len(hits) > 0 {
		return fmt.Errorf("%w: %s lists unwanted test address %s (%s)", ErrZoneUnhealthy, zone, healthUnlisted, hits[0].ActualHit)
	}
	return nil
}
