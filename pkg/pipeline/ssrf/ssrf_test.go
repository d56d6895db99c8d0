package ssrf

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resolverFor(ips ...string) resolveFunc {
	parsed := make([]net.IP, len(ips))
	for i, s := range ips {
		parsed[i] = net.ParseIP(s)
	}
	return func(ctx context.Context, host string) ([]net.IP, error) {
		return parsed, nil
	}
}

func TestValidateOutboundRejectsNonHTTPS(t *testing.T) {
	c := NewWithResolver(resolverFor("93.184.216.34"), time.Minute)
	err := c.ValidateOutbound(context.Background(), "http://example.com/page")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "only https is allowed")
}

func TestValidateOutboundAllowsPublicHost(t *testing.T) {
	c := NewWithResolver(resolverFor("93.184.216.34"), time.Minute)
	err := c.ValidateOutbound(context.Background(), "https://example.com/page")
	assert.NoError(t, err)
}

func TestValidateOutboundBlocksLoopback(t *testing.T) {
	c := NewWithResolver(resolverFor("127.0.0.1"), time.Minute)
	err := c.ValidateOutbound(context.Background(), "https://internal.example.com/page")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "loopback")
}

func TestValidateOutboundBlocksPrivateRange(t *testing.T) {
	c := NewWithResolver(resolverFor("10.0.0.5"), time.Minute)
	err := c.ValidateOutbound(context.Background(), "https://internal.example.com/page")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "private range")
}

func TestValidateOutboundBlocksLinkLocal(t *testing.T) {
	c := NewWithResolver(resolverFor("169.254.169.254"), time.Minute)
	err := c.ValidateOutbound(context.Background(), "https://metadata.internal/page")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "link-local")
}

func TestValidateOutboundAllowsLiteralPublicIP(t *testing.T) {
	c := NewWithResolver(func(ctx context.Context, host string) ([]net.IP, error) {
		t.Fatal("resolver should not be called for a literal IP")
		return nil, nil
	}, time.Minute)
	err := c.ValidateOutbound(context.Background(), "https://93.184.216.34/page")
	assert.NoError(t, err)
}

func TestValidateOutboundRejectsOversizedURL(t *testing.T) {
	c := New()
	long := "https://example.com/" + string(make([]byte, 3000))
	err := c.ValidateOutbound(context.Background(), long)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "maximum length")
}

func TestResolveCachedReusesResultWithinTTL(t *testing.T) {
	calls := 0
	resolver := func(ctx context.Context, host string) ([]net.IP, error) {
		calls++
		return []net.IP{net.ParseIP("93.184.216.34")}, nil
	}
	c := NewWithResolver(resolver, time.Minute)
	ctx := context.Background()

	require.NoError(t, c.ValidateOutbound(ctx, "https://example.com/a"))
	require.NoError(t, c.ValidateOutbound(ctx, "https://example.com/b"))
	assert.Equal(t, 1, calls, "second call should hit the cache, not re-resolve")
}

func TestValidEmail(t *testing.T) {
	assert.True(t, ValidEmail("alice@example.com"))
	assert.False(t, ValidEmail("not-an-email"))
	assert.False(t, ValidEmail("@example.com"))
	assert.False(t, ValidEmail("alice@"))
	assert.False(t, ValidEmail("alice@.com"))
	assert.False(t, ValidEmail("alice bob@example.com"))
}
