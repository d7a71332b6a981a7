package dnsbl

import (
	"fmt"
	"regexp"
	"strings"
)

// Four decimal groups at the end of the address. The optional prefix ending
// in a colon accepts IPv4-mapped forms such as ::ffff:192.0.2.1.
var ipv4Tail = regexp.MustCompile(`^(?:.*:)?(\d{1,3})\.(\d{1,3})\.(\d{1,3})\.(\d{1,3})$`)

// ReverseAddress returns the label sequence that prefixes a DNSBL query
// name for addr: octets reversed for IPv4 and nibbles reversed for IPv6.
//
//	ReverseAddress("192.0.2.1")   // "1.2.0.192"
//	ReverseAddress("2001:db8::1") // "1.0.0.0. ... .8.b.d.0.1.0.0.2"
//
// An IPv6 address containing "::" more than once is not expanded; its
// digits are reversed as written, which yields a name no list will match.
func ReverseAddress(addr string) (string, error) {
	if m := ipv4Tail.FindStringSubmatch(addr); m != nil {
		return m[4] + "." + m[3] + "." + m[2] + "." + m[1], nil
	}

	if strings.Contains(addr, ":") {
		hex := strings.ReplaceAll(expandIPv6(strings.ToLower(addr)), ":", "")
		nibbles := make([]string, len(hex))
		for i := range hex {
			nibbles[len(hex)-1-i] = hex[i : i+1]
		}
		return strings.Join(nibbles, "."), nil
	}

	return "", fmt.Errorf("%w: %q", ErrInvalidAddress, addr)
}

// expandIPv6 writes addr as eight groups of four hex digits.
func expandIPv6(addr string) string {
	if strings.Count(addr, "::") > 1 {
		return addr
	}

	var groups []string
	if i := strings.Index(addr, "::"); i >= 0 {
		left := splitGroups(addr[:i])
		right := splitGroups(addr[i+2:])
		groups = append(groups, left...)
		for n := 8 - len(left) - len(right); n > 0; n-- {
			groups = append(groups, "0000")
		}
		groups = append(groups, right...)
	} else {
		groups = splitGroups(addr)
	}

	for i, g := range groups {
		if len(g) < 4 {
			groups[i] = strings.Repeat("0", 4-len(g)) + g
		}
	}
	return strings.Join(groups, ":")
}

func splitGroups(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ":")
}
