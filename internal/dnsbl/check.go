package dnsbl

import (
	"encoding/binary"
	"fmt"
	"net/netip"
	"strconv"
	"strings"
)

// Kind selects how a reply address is compared against a check.
type Kind uint8

const (
	// Normal is satisfied by any A record.
	Normal Kind = iota
	// Match is satisfied by an A record equal to the check data.
	Match
	// Mask is satisfied by an A record sharing at least one bit with the
	// check data, given as a dotted quad or as a bare last-octet value.
	Mask
)

var kindNames = [...]string{
	Normal: "normal",
	Match:  "match",
	Mask:   "mask",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

// ParseKind parses "normal", "match" or "mask". An empty string is Normal.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "normal":
		return Normal, nil
	case "match":
		return Match, nil
	case "mask":
		return Mask, nil
	}
	return Normal, fmt.Errorf("%w: unknown type %q", ErrInvalidCheck, s)
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	if int(k) >= len(kindNames) {
		return nil, fmt.Errorf("%w: unknown type %d", ErrInvalidCheck, k)
	}
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(b []byte) error {
	v, err := ParseKind(string(b))
	if err != nil {
		return err
	}
	*k = v
	return nil
}

// Check is one caller-supplied blacklist test.
type Check struct {
	// Domain is the blacklist zone queried, e.g. "zen.spamhaus.org".
	Domain string `json:"domain" yaml:"domain"`
	// Type selects the comparison; the zero value is Normal.
	Type Kind `json:"type" yaml:"type"`
	// Data is the Match address or the Mask value. Unused for Normal.
	Data string `json:"data,omitempty" yaml:"data,omitempty"`
	// UserData is passed through to the Hit untouched.
	UserData any `json:"user_data,omitempty" yaml:"user_data,omitempty"`
}

// Hit reports a satisfied check. In return-all mode it reports every check
// and Listed tells whether it was satisfied.
type Hit struct {
	Domain    string `json:"domain"`
	Type      Kind   `json:"type"`
	Data      string `json:"data,omitempty"`
	UserData  any    `json:"user_data,omitempty"`
	ActualHit string `json:"actual_hit,omitempty"`
	Listed    bool   `json:"listed"`
	// Status is the reply code name of the domain's reply. Only filled in
	// return-all mode; empty when no reply was read.
	Status string `json:"status,omitempty"`
}

// ParseCheck parses the compact form "domain[:type[:data]]", e.g.
// "zen.spamhaus.org", "bl.example:match:127.0.0.2" or "bl.example:mask:8".
func ParseCheck(s string) (Check, error) {
	parts := strings.SplitN(strings.TrimSpace(s), ":", 3)
	c := Check{Domain: strings.TrimSpace(parts[0])}
	if c.Domain == "" {
		return Check{}, fmt.Errorf("%w: empty domain in %q", ErrInvalidCheck, s)
	}
	if len(parts) > 1 {
		k, err := ParseKind(parts[1])
		if err != nil {
			return Check{}, err
		}
		c.Type = k
	}
	if len(parts) > 2 {
		c.Data = strings.TrimSpace(parts[2])
	}
	if err := c.Validate(); err != nil {
		return Check{}, err
	}
	return c, nil
}

// Validate reports whether the check can ever be satisfied. The engine
// itself does not call it; malformed data simply never matches.
func (c Check) Validate() error {
	if strings.TrimSpace(c.Domain) == "" {
		return fmt.Errorf("%w: empty domain", ErrInvalidCheck)
	}
	switch c.Type {
	case Normal:
	case Match:
		if c.Data == "" {
			return fmt.Errorf("%w: %s: match requires data", ErrInvalidCheck, c.Domain)
		}
	case Mask:
		if _, err := ParseMask(c.Data); err != nil {
			return fmt.Errorf("%s: %w", c.Domain, err)
		}
	default:
		return fmt.Errorf("%w: %s: unknown type %d", ErrInvalidCheck, c.Domain, c.Type)
	}
	return nil
}

// ParseMask converts mask data to a 32-bit big-endian value. A bare integer
// n in 1..255 stands for 0.0.0.n.
func ParseMask(data string) (uint32, error) {
	data = strings.TrimSpace(data)
	if n, err := strconv.ParseUint(data, 10, 32); err == nil {
		if n < 1 || n > 255 {
			return 0, fmt.Errorf("%w: mask %q out of range 1-255", ErrInvalidCheck, data)
		}
		return uint32(n), nil
	}
	v, err := ipv4ToUint32(data)
	if err != nil {
		return 0, fmt.Errorf("%w: mask %q: %v", ErrInvalidCheck, data, err)
	}
	return v, nil
}

func ipv4ToUint32(s string) (uint32, error) {
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return 0, err
	}
	if !addr.Is4() {
		return 0, fmt.Errorf("not an IPv4 address")
	}
	b := addr.As4()
	return binary.BigEndian.Uint32(b[:]), nil
}
