package scan

import (
	"errors"
	"net/netip"
	"strings"
)

// TargetType classifies a scan target.
type TargetType string

const (
	TargetDomain TargetType = "domain"
	TargetIPv4   TargetType = "ipv4"
	TargetIPv6   TargetType = "ipv6"
)

// IsIP reports whether t is an address rather than a domain.
func (t TargetType) IsIP() bool {
	return t == TargetIPv4 || t == TargetIPv6
}

// ErrInvalidTarget is returned when a target is neither an IP nor a domain.
var ErrInvalidTarget = errors.New("invalid target: must be a domain name or an IPv4/IPv6 address")

// Normalize trims and lowercases a target.
func Normalize(target string) string {
	return strings.ToLower(strings.TrimSpace(target))
}

// DetectTargetType returns ipv4 or ipv6 for address literals and domain for
// anything else. It does not validate the domain.
func DetectTargetType(target string) TargetType {
	addr, err := netip.ParseAddr(Normalize(target))
	if err != nil {
		return TargetDomain
	}
	if addr.Is4() || addr.Is4In6() {
		return TargetIPv4
	}
	return TargetIPv6
}

// ParseTarget normalizes, validates and classifies a target.
func ParseTarget(raw string) (string, TargetType, error) {
	target := Normalize(raw)
	if _, err := netip.ParseAddr(target); err == nil {
		return target, DetectTargetType(target), nil
	}
	if !IsValidDomain(target) {
		return "", "", ErrInvalidTarget
	}
	return target, TargetDomain, nil
}

// IsValidDomain reports whether s is a syntactically valid, fully qualified
// hostname: at least two labels, each 1–63 characters of letters, digits or
// inner hyphens, with an alphabetic TLD and a total length of at most 253.
func IsValidDomain(s string) bool {
	s = strings.TrimSuffix(s, ".")
	if len(s) == 0 || len(s) > 253 {
		return false
	}
	labels := strings.Split(s, ".")
	if len(labels) < 2 {
		return false
	}
	for _, l := range labels {
		if !validLabel(l) {
			return false
		}
	}
	tld := labels[len(labels)-1]
	if strings.HasPrefix(tld, "xn--") {
		return true
	}
	for _, c := range tld {
		if c < 'a' || c > 'z' {
			return false
		}
	}
	return len(tld) >= 2
}

func validLabel(l string) bool {
	if len(l) == 0 || len(l) > 63 {
		return false
	}
	if l[0] == '-' || l[len(l)-1] == '-' {
		return false
	}
	for _, c := range l {
		switch {
		case c >= 'a' && c <= 'z', c >= '0' && c <= '9', c == '-', c == '_':
		default:
			return false
		}
	}
	return true
}
