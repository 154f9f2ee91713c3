// Package guard keeps the relay from being pointed at internal infrastructure.
package guard

import (
	"errors"
	"fmt"
	"net"
	"net/netip"
	"net/url"
	"strings"
	"syscall"

	"cors-relay/internal/config"
)

// ErrTargetForbidden is returned when a target URL or the address it resolves
// to is not permitted.
var ErrTargetForbidden = errors.New("target not allowed")

// cgnat is the shared address space (RFC 6598); netip has no predicate for it.
var cgnat = netip.MustParsePrefix("100.64.0.0/10")

// Guard validates relay targets at two points: the URL before a request is
// built, and the resolved address when the dialer connects.
type Guard struct {
	allowPrivate bool
	allowedHosts []string
}

// New creates a Guard from the [target] config section.
func New(cfg *config.Config) *Guard {
	hosts := make([]string, 0, len(cfg.Target.AllowedHosts))
	for _, h := range cfg.Target.AllowedHosts {
		hosts = append(hosts, strings.ToLower(strings.TrimSuffix(strings.TrimSpace(h), ".")))
	}
	return &Guard{
		allowPrivate: cfg.Target.AllowPrivate,
		allowedHosts: hosts,
	}
}

// CheckURL rejects non-HTTP schemes and, when an allow-list is configured,
// hosts outside it. Unparseable URLs and URLs missing a scheme or host are
// returned as plain errors so they surface as fetch failures rather than
// policy rejections.
func (g *Guard) CheckURL(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse target url: %w", err)
	}
	if u.Scheme == "" {
		return nil, fmt.Errorf("invalid target url %q: missing scheme", raw)
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	default:
		return nil, fmt.Errorf("%w: scheme %q", ErrTargetForbidden, u.Scheme)
	}
	host := strings.ToLower(strings.TrimSuffix(u.Hostname(), "."))
	if host == "" {
		return nil, fmt.Errorf("invalid target url %q: missing host", raw)
	}
	if !g.hostAllowed(host) {
		return nil, fmt.Errorf("%w: host %q is not in the allowlist", ErrTargetForbidden, host)
	}
	return u, nil
}

func (g *Guard) hostAllowed(host string) bool {
	if len(g.allowedHosts) == 0 {
		return true
	}
	for _, h := range g.allowedHosts {
		if host == h || strings.HasSuffix(host, "."+h) {
			return true
		}
	}
	return false
}

// Control is a net.Dialer control function. It runs after DNS resolution for
// every connection attempt, redirects included, and refuses internal
// addresses unless private targets are allowed.
func (g *Guard) Control(_, address string, _ syscall.RawConn) error {
	if g.allowPrivate {
		return nil
	}
	ap, err := netip.ParseAddrPort(address)
	if err != nil {
		return fmt.Errorf("%w: unparseable dial address %q", ErrTargetForbidden, address)
	}
	if IsInternal(ap.Addr()) {
		return fmt.Errorf("%w: address %s is internal", ErrTargetForbidden, ap.Addr())
	}
	return nil
}

// Dialer returns a net.Dialer that enforces Control.
func (g *Guard) Dialer(base *net.Dialer) *net.Dialer {
	d := *base
	d.Control = g.Control
	return &d
}

// IsInternal reports whether addr is loopback, private, link-local,
// unspecified, multicast or carrier-grade NAT space.
func IsInternal(addr netip.Addr) bool {
	addr = addr.Unmap()
	return addr.IsLoopback() ||
		addr.IsPrivate() ||
		addr.IsLinkLocalUnicast() ||
		addr.IsLinkLocalMulticast() ||
		addr.IsInterfaceLocalMulticast() ||
		addr.IsMulticast() ||
		addr.IsUnspecified() ||
		cgnat.Contains(addr)
}
