package ca

import (
	"fmt"
	"net"
	"strings"
)

// SANType classifies a subject-alternative-name entry.
type SANType string

// SAN entry types.
const (
	SANDNS   SANType = "DNS"
	SANIP    SANType = "IP"
	SANEmail SANType = "email"
)

// SANEntry is one typed subject-alternative-name entry with its per-type
// ordinal. Ordinals count from 1 in encounter order, independently per
// type.
type SANEntry struct {
	Type  SANType
	Value string
	Index int
}

// Label returns the conventional entry label, e.g. "DNS.2" or "IP.1".
func (e SANEntry) Label() string {
	return fmt.Sprintf("%s.%d", e.Type, e.Index)
}

// ParseSANs splits a free-text, comma-separated SAN list into typed
// entries. Explicit "dns:", "ip:" and "email:" prefixes (":" or "=",
// case-insensitive) win; otherwise the type is inferred: dotted-quad
// values become IPs, colon-separated hex becomes an IPv6 IP, values
// containing "@" become emails, and everything else is a DNS name.
// Blank entries, and prefixed entries whose value is blank, are dropped.
func ParseSANs(text string) []SANEntry {
	var entries []SANEntry
	counts := make(map[SANType]int)
	for _, raw := range strings.Split(text, ",") {
		entry := strings.TrimSpace(raw)
		if entry == "" {
			continue
		}
		typ, value := classifySAN(entry)
		if value == "" {
			continue
		}
		counts[typ]++
		entries = append(entries, SANEntry{Type: typ, Value: value, Index: counts[typ]})
	}
	return entries
}

func classifySAN(entry string) (SANType, string) {
	lower := strings.ToLower(entry)
	switch {
	case strings.HasPrefix(lower, "dns:") || strings.HasPrefix(lower, "dns="):
		return SANDNS, strings.TrimSpace(entry[4:])
	case strings.HasPrefix(lower, "ip:") || strings.HasPrefix(lower, "ip="):
		return SANIP, strings.TrimSpace(entry[3:])
	case strings.HasPrefix(lower, "email:") || strings.HasPrefix(lower, "email="):
		return SANEmail, strings.TrimSpace(entry[6:])
	case isDottedQuad(entry):
		return SANIP, entry
	case isHexColon(entry):
		return SANIP, entry
	case strings.Contains(entry, "@"):
		return SANEmail, entry
	default:
		return SANDNS, entry
	}
}

// isDottedQuad reports whether s has the shape of a numeric IPv4 address.
// Shape only; range checking happens when the address is parsed for the
// certificate template.
func isDottedQuad(s string) bool {
	parts := strings.Split(s, ".")
	if len(parts) != 4 {
		return false
	}
	for _, part := range parts {
		if part == "" || len(part) > 3 {
			return false
		}
		for _, r := range part {
			if r < '0' || r > '9' {
				return false
			}
		}
	}
	return true
}

// isHexColon reports whether s consists of hex digits and colons with at
// least one colon, the shape of an IPv6 address.
func isHexColon(s string) bool {
	if !strings.Contains(s, ":") {
		return false
	}
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
		case r >= 'a' && r <= 'f':
		case r >= 'A' && r <= 'F':
		case r == ':':
		default:
			return false
		}
	}
	return true
}

// sanMaterial converts typed entries into the name slices an x509
// template consumes. Entries classified as IPs must parse as addresses.
func sanMaterial(entries []SANEntry) (dns []string, ips []net.IP, emails []string, err error) {
	for _, entry := range entries {
		switch entry.Type {
		case SANIP:
			ip := net.ParseIP(entry.Value)
			if ip == nil {
				return nil, nil, nil, fmt.Errorf("%w: %s value %q is not a valid IP address", ErrGenerationFailed, entry.Label(), entry.Value)
			}
			ips = append(ips, ip)
		case SANEmail:
			emails = append(emails, entry.Value)
		default:
			dns = append(dns, entry.Value)
		}
	}
	return dns, ips, emails, nil
}
