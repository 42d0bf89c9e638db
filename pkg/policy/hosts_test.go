package policy

import (
	"context"
	"errors"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatchHost(t *testing.T) {
	tests := []struct {
		pattern string
		host    string
		match   bool
	}{
		{"*", "anything", true},
		{"*.example.com", "api.example.com", true},
		{"*.example.com", "a.b.example.com", true},
		{"*.example.com", "example.com", false},
		{"*.example.com", "API.Example.COM", true},
		{"api.example.com", "api.example.com", true},
		{"api.example.com", "other.example.com", false},
		{"prefix.*", "prefix.com", true},
		{"prefix.*", "other.com", false},
		{"api-*.example.com", "api-v1.example.com", true},
		{"api-*.example.com", "other.example.com", false},
		{"*-prod.example.com", "api-dev.example.com", false},
		{"api-*-*.example.com", "api-v1-prod.example.com", true},
		{"api-v?.example.com", "api-v2.example.com", true},
		{"[", "[", false},
	}

	for _, tt := range tests {
		t.Run(tt.pattern+"_"+tt.host, func(t *testing.T) {
			assert.Equal(t, tt.match, matchHost(tt.pattern, tt.host))
		})
	}
}

func stubLookup(t *testing.T, addrs map[string][]string) {
	t.Helper()
	prev := lookupHost
	t.Cleanup(func() { lookupHost = prev })
	lookupHost = func(_ context.Context, _ string, host string) ([]netip.Addr, error) {
		raw, ok := addrs[host]
		if !ok {
			return nil, errors.New("no such host")
		}
		out := make([]netip.Addr, 0, len(raw))
		for _, s := range raw {
			out = append(out, netip.MustParseAddr(s))
		}
		return out, nil
	}
}

func TestIsPrivateIP(t *testing.T) {
	stubLookup(t, map[string][]string{
		"intranet.test": {"10.1.2.3"},
		"public.test":   {"93.184.216.34"},
		"mixed.test":    {"93.184.216.34", "192.168.0.10"},
	})

	tests := []struct {
		host    string
		private bool
	}{
		{"192.168.1.1", true},
		{"10.0.0.1", true},
		{"172.16.0.1", true},
		{"172.31.255.255", true},
		{"127.0.0.1", true},
		{"169.254.1.1", true},
		{"8.8.8.8", false},
		{"172.32.0.1", false},
		{"::1", true},
		{"fd00::1", true},
		{"fe80::1", true},
		{"::ffff:10.0.0.1", true},
		{"2606:4700:4700::1111", false},
		{"intranet.test", true},
		{"public.test", false},
		{"mixed.test", true},
		{"unknown.test", false},
	}

	for _, tt := range tests {
		t.Run(tt.host, func(t *testing.T) {
			assert.Equal(t, tt.private, isPrivateIP(tt.host))
		})
	}
}
