package netutil

import (
	"crypto/sha256"
	"encoding/hex"
	"net/netip"
	"strings"
	"unicode/utf8"
)

const MaxUserAgentLength = 512

// NormalizeIP accepts a bare IP or a host:port pair ("192.0.2.4:1234",
// "[2001:db8::1]:443") and returns the IP without zone. ok is false when
// nothing parseable was found; raw is then returned trimmed.
func NormalizeIP(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}
	// X-Forwarded-For style lists: the left-most hop is the client.
	if i := strings.IndexByte(raw, ','); i >= 0 {
		raw = strings.TrimSpace(raw[:i])
	}
	if ap, err := netip.ParseAddrPort(raw); err == nil {
		return clean(ap.Addr())
	}
	if addr, err := netip.ParseAddr(raw); err == nil {
		return clean(addr)
	}
	if strings.HasPrefix(raw, "[") && strings.Contains(raw, "]") {
		if addr, err := netip.ParseAddr(raw[1:strings.LastIndex(raw, "]")]); err == nil {
			return clean(addr)
		}
	}
	if idx := strings.LastIndex(raw, ":"); idx > 0 {
		if addr, err := netip.ParseAddr(raw[:idx]); err == nil {
			return clean(addr)
		}
	}
	return raw, false
}

func clean(addr netip.Addr) (string, bool) {
	addr = addr.WithZone("").Unmap()
	if !addr.IsValid() {
		return "", false
	}
	return addr.String(), true
}

// MaskIP hides the host part of an address for display: the last IPv4 octet
// becomes "*", an IPv6 address keeps its first four groups. Unparseable
// input is masked entirely.
func MaskIP(raw string) string {
	ip, ok := NormalizeIP(raw)
	if !ok {
		if raw == "" {
			return ""
		}
		return "*"
	}
	addr, _ := netip.ParseAddr(ip)
	if addr.Is4() {
		return ip[:strings.LastIndexByte(ip, '.')+1] + "*"
	}
	groups := strings.Split(addr.StringExpanded(), ":")
	for i, g := range groups[:4] {
		groups[i] = strings.TrimLeft(g, "0")
		if groups[i] == "" {
			groups[i] = "0"
		}
	}
	return strings.Join(groups[:4], ":") + ":*"
}

// TruncateUserAgent trims overly long user agents to MaxUserAgentLength runes.
func TruncateUserAgent(ua string) string {
	if utf8.RuneCountInString(ua) <= MaxUserAgentLength {
		return ua
	}
	n := 0
	for i := range ua {
		if n == MaxUserAgentLength {
			return ua[:i]
		}
		n++
	}
	return ua
}

// Fingerprint is a stable, non-reversible identifier for a bearer token.
func Fingerprint(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:16])
}
