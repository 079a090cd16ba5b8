package middleware

import (
	"fmt"
	"net"
	"net/http"
	"strings"
)

// TrustedProxies is the set of networks allowed to report the client address
// through X-Forwarded-For or X-Real-IP.
type TrustedProxies []*net.IPNet

// ParseTrustedProxies accepts bare IPs and CIDR ranges.
func ParseTrustedProxies(entries []string) (TrustedProxies, error) {
	var out TrustedProxies
	for _, e := range entries {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		if !strings.Contains(e, "/") {
			ip := net.ParseIP(e)
			if ip == nil {
				return nil, fmt.Errorf("invalid trusted proxy %q", e)
			}
			bits := 8 * net.IPv6len
			if v4 := ip.To4(); v4 != nil {
				ip, bits = v4, 8*net.IPv4len
			}
			out = append(out, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
			continue
		}
		_, n, err := net.ParseCIDR(e)
		if err != nil {
			return nil, fmt.Errorf("invalid trusted proxy %q: %w", e, err)
		}
		out = append(out, n)
	}
	return out, nil
}

func (t TrustedProxies) trusts(ip string) bool {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return false
	}
	for _, n := range t {
		if n.Contains(parsed) {
			return true
		}
	}
	return false
}

// ClientIP resolves the client address. Forwarding headers are read only when
// the peer is a trusted proxy; X-Forwarded-For is walked from the right and
// the first hop that is not itself a trusted proxy wins.
func (t TrustedProxies) ClientIP(r *http.Request) string {
	peer := peerIP(r)
	if !t.trusts(peer) {
		return peer
	}

	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		hops := strings.Split(fwd, ",")
		for i := len(hops) - 1; i >= 0; i-- {
			ip := parseIP(hops[i])
			if ip == "" {
				break
			}
			if !t.trusts(ip) {
				return ip
			}
		}
	}
	if ip := parseIP(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	return peer
}

// ClientIP returns the peer address of r, ignoring forwarding headers.
func ClientIP(r *http.Request) string {
	return peerIP(r)
}

func peerIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	if ip := parseIP(host); ip != "" {
		return ip
	}
	return "unknown"
}

// parseIP validates and normalizes an address, returning "" when invalid.
func parseIP(s string) string {
	ip := net.ParseIP(strings.TrimSpace(s))
	if ip == nil {
		return ""
	}
	return ip.String()
}
