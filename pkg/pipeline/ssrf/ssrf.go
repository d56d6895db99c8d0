// Package ssrf implements the URL safety rule set spec.md §4.4 and §8
// require of every URL the store client sends or receives: https-only,
// and the resolved host must not land in a loopback, link-local, or
// RFC1918/ULA private range.
//
// This generalizes pkg/runbook/url.go's ValidateRunbookURL (which only
// checked scheme + an allowed-domain list for GitHub runbook links) into
// a full SSRF guard. No third-party library in the retrieval pack
// implements IP-range classification — net.IP already exposes exactly
// the primitives needed (IsLoopback, IsLinkLocalUnicast, IsPrivate), so
// reaching for stdlib here is the idiomatic choice, not a fallback.
package ssrf

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strings"
	"sync"
	"time"
)

// maxURLLength is the hard cap on url/files property values (spec.md §4.3).
const maxURLLength = 2000

// resolveFunc resolves a hostname to its IPs; overridable in tests.
type resolveFunc func(ctx context.Context, host string) ([]net.IP, error)

// Checker validates URLs against the SSRF rule set and caches hostname
// resolutions for up to ttl, matching spec.md §5's "hostname→IP TTL cache"
// held by StoreClient. Checker is safe for concurrent use.
type Checker struct {
	resolve resolveFunc
	ttl     time.Duration

	mu    sync.Mutex
	cache map[string]cacheEntry
}

type cacheEntry struct {
	ips       []net.IP
	expiresAt time.Time
}

// New creates a Checker with the default 60s DNS cache TTL (spec.md §5).
func New() *Checker {
	return NewWithResolver(defaultResolve, 60*time.Second)
}

// NewWithResolver creates a Checker with an injectable resolver, for
// tests that need to simulate DNS responses deterministically.
func NewWithResolver(resolve resolveFunc, ttl time.Duration) *Checker {
	return &Checker{resolve: resolve, ttl: ttl, cache: make(map[string]cacheEntry)}
}

func defaultResolve(ctx context.Context, host string) ([]net.IP, error) {
	var r net.Resolver
	return r.LookupIP(ctx, "ip", host)
}

// ValidateOutbound checks a URL before it is sent: https scheme, length,
// and (after DNS resolution) the resolved host's IP range.
func (c *Checker) ValidateOutbound(ctx context.Context, rawURL string) error {
	if len(rawURL) > maxURLLength {
		return fmt.Errorf("url exceeds maximum length of %d characters", maxURLLength)
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("malformed url: %w", err)
	}
	if parsed.Scheme != "https" {
		return fmt.Errorf("invalid scheme %q: only https is allowed", parsed.Scheme)
	}
	host := parsed.Hostname()
	if host == "" {
		return fmt.Errorf("url has no host")
	}
	ips, err := c.resolveCached(ctx, host)
	if err != nil {
		return fmt.Errorf("resolve host %q: %w", host, err)
	}
	for _, ip := range ips {
		if blocked, reason := isBlocked(ip); blocked {
			return fmt.Errorf("host %q resolves to a blocked address (%s): %s", host, ip, reason)
		}
	}
	return nil
}

// ValidateReceived checks a URL that came back from the store (spec.md
// §4.4: "payloads are validated ... after receive"). Same rule set as
// outbound.
func (c *Checker) ValidateReceived(ctx context.Context, rawURL string) error {
	return c.ValidateOutbound(ctx, rawURL)
}

func (c *Checker) resolveCached(ctx context.Context, host string) ([]net.IP, error) {
	// A literal IP address needs no DNS lookup.
	if ip := net.ParseIP(host); ip != nil {
		return []net.IP{ip}, nil
	}

	c.mu.Lock()
	if entry, ok := c.cache[host]; ok && time.Now().Before(entry.expiresAt) {
		ips := entry.ips
		c.mu.Unlock()
		return ips, nil
	}
	c.mu.Unlock()

	ips, err := c.resolve(ctx, host)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.cache[host] = cacheEntry{ips: ips, expiresAt: time.Now().Add(c.ttl)}
	c.mu.Unlock()
	return ips, nil
}

// isBlocked classifies an IP against the loopback/link-local/private
// rule set.
func isBlocked(ip net.IP) (bool, string) {
	switch {
	case ip.IsLoopback():
		return true, "loopback"
	case ip.IsLinkLocalUnicast(), ip.IsLinkLocalMulticast():
		return true, "link-local"
	case ip.IsPrivate():
		return true, "RFC1918/ULA private range"
	case ip.IsUnspecified():
		return true, "unspecified address"
	default:
		return false, ""
	}
}

// ValidEmail performs the "simple RFC-5322-ish" validation spec.md §4.3
// requires for the email property kind — not a full grammar, just enough
// structure to reject obvious garbage.
func ValidEmail(s string) bool {
	at := strings.LastIndexByte(s, '@')
	if at <= 0 || at == len(s)-1 {
		return false
	}
	local, domain := s[:at], s[at+1:]
	if strings.ContainsAny(local, " \t\n") || strings.ContainsAny(domain, " \t\n") {
		return false
	}
	return strings.Contains(domain, ".") && !strings.HasPrefix(domain, ".") && !strings.HasSuffix(domain, ".")
}
