package ratelimit

import (
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// ClientIPs resolves the address a request came from. Forwarding headers are
// read only when the direct peer is one of the trusted proxies; any other
// peer is identified by its connection address alone.
type ClientIPs struct {
	trusted []netip.Prefix
}

// NewClientIPs builds a resolver trusting the given proxies. Entries are CIDR
// prefixes or single addresses. An empty list trusts no one.
func NewClientIPs(trustedProxies []string) (*ClientIPs, error) {
	c := &ClientIPs{}
	for _, s := range trustedProxies {
		p, err := ParseTrustedProxy(s)
		if err != nil {
			return nil, err
		}
		c.trusted = append(c.trusted, p)
	}
	return c, nil
}

// ParseTrustedProxy parses a CIDR prefix or a single address.
func ParseTrustedProxy(s string) (netip.Prefix, error) {
	s = strings.TrimSpace(s)
	if strings.Contains(s, "/") {
		p, err := netip.ParsePrefix(s)
		if err != nil {
			return netip.Prefix{}, fmt.Errorf("invalid trusted proxy %q: %w", s, err)
		}
		return p.Masked(), nil
	}
	a, err := netip.ParseAddr(s)
	if err != nil {
		return netip.Prefix{}, fmt.Errorf("invalid trusted proxy %q: %w", s, err)
	}
	a = a.Unmap()
	return netip.PrefixFrom(a, a.BitLen()), nil
}

func (c *ClientIPs) trusts(a netip.Addr) bool {
	if c == nil {
		return false
	}
	a = a.Unmap()
	for _, p := range c.trusted {
		if p.Contains(a) {
			return true
		}
	}
	return false
}

// ClientIP returns the client address of r. Behind a trusted proxy the
// X-Forwarded-For chain is walked right to left and the first untrusted hop
// wins, so entries a client prepends itself are never reached. A nil
// resolver uses the connection address only.
func (c *ClientIPs) ClientIP(r *http.Request) string {
	peer := remoteHost(r)
	addr, err := netip.ParseAddr(peer)
	if err != nil || !c.trusts(addr) {
		return peer
	}

	if values := r.Header.Values("X-Forwarded-For"); len(values) > 0 {
		hops := strings.Split(strings.Join(values, ","), ",")
		var leftmost string
		for i := len(hops) - 1; i >= 0; i-- {
			hop, err := netip.ParseAddr(strings.TrimSpace(hops[i]))
			if err != nil {
				break
			}
			hop = hop.Unmap()
			if !c.trusts(hop) {
				return hop.String()
			}
			leftmost = hop.String()
		}
		if leftmost != "" {
			return leftmost
		}
		return peer
	}

	if xri, err := netip.ParseAddr(strings.TrimSpace(r.Header.Get("X-Real-IP"))); err == nil {
		return xri.Unmap().String()
	}
	return peer
}

// ClientIP returns the connection address of r, ignoring forwarding headers.
func ClientIP(r *http.Request) string {
	return (*ClientIPs)(nil).ClientIP(r)
}

func remoteHost(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
