// Package cidr validates IPv4 addresses and CIDR ranges and evaluates
// allow-list membership for the portal IP restriction checks.
package cidr

import (
	"fmt"
	"strconv"
	"strings"

	"auditgate.io/internal/obs"
)

// Valid reports whether s is a dotted-quad IPv4 address or an
// <address>/<prefix> CIDR with prefix in [0,32]. It never panics on
// malformed input.
func Valid(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return false
	}
	addr := s
	if idx := strings.IndexByte(s, '/'); idx >= 0 {
		addr = s[:idx]
		prefix := s[idx+1:]
		n, err := strconv.Atoi(prefix)
		if err != nil || prefix != strconv.Itoa(n) || n < 0 || n > 32 {
			return false
		}
	}
	_, ok := parseIPv4(addr)
	return ok
}

// ValidateList checks every entry and returns an error naming each invalid
// one along with the expected formats.
func ValidateList(ranges []string) error {
	var invalid []string
	for _, r := range ranges {
		if !Valid(r) {
			invalid = append(invalid, r)
		}
	}
	if len(invalid) > 0 {
		return fmt.Errorf("invalid IP ranges: %s (expected formats: \"a.b.c.d\" or \"a.b.c.d/prefix\")",
			strings.Join(invalid, ", "))
	}
	return nil
}

// Contains reports whether ip falls inside the given range. A range without
// a slash matches only the identical address. Prefix /0 matches every
// address and is special-cased so the mask never shifts by 32 bits.
func Contains(ip, cidr string) bool {
	ipBits, ok := parseIPv4(strings.TrimSpace(ip))
	if !ok {
		return false
	}
	cidr = strings.TrimSpace(cidr)
	idx := strings.IndexByte(cidr, '/')
	if idx < 0 {
		netBits, ok := parseIPv4(cidr)
		return ok && ipBits == netBits
	}
	netBits, ok := parseIPv4(cidr[:idx])
	if !ok {
		return false
	}
	prefix, err := strconv.Atoi(cidr[idx+1:])
	if err != nil || prefix < 0 || prefix > 32 {
		return false
	}
	if prefix == 0 {
		return true
	}
	mask := ^uint32(0) << uint(32-prefix)
	return ipBits&mask == netBits&mask
}

// Allowed reports whether ip matches at least one of the given ranges.
// Malformed ranges are skipped rather than treated as fatal; a malformed
// ip never matches anything.
func Allowed(ip string, ranges []string) bool {
	if _, ok := parseIPv4(strings.TrimSpace(ip)); !ok {
		return false
	}
	for _, r := range ranges {
		if !Valid(r) {
			obs.Logger().Printf(`{"level":"warn","msg":"skipping malformed ip range","range":%q}`, r)
			continue
		}
		if Contains(ip, r) {
			return true
		}
	}
	return false
}

func parseIPv4(s string) (uint32, bool) {
	parts := strings.Split(s, ".")
	if len(parts) != 4 {
		return 0, false
	}
	var bits uint32
	for _, p := range parts {
		if p == "" || len(p) > 3 {
			return 0, false
		}
		n, err := strconv.Atoi(p)
		if err != nil || p != strconv.Itoa(n) || n < 0 || n > 255 {
			return 0, false
		}
		bits = bits<<8 | uint32(n)
	}
	return bits, true
}
