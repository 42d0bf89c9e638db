package policy

import (
	"context"
	"net"
	"net/netip"
	"path"
	"strings"
	"time"
)

const lookupTimeout = 2 * time.Second

// lookupHost is replaced in tests.
var lookupHost = net.DefaultResolver.LookupNetIP

// matchHost reports whether host matches a glob pattern. "*" matches any run
// of characters including dots, so "*.example.com" covers every subdomain
// but not the apex. Matching ignores case.
func matchHost(pattern, host string) bool {
	if pattern == "*" {
		return true
	}
	ok, err := path.Match(strings.ToLower(pattern), strings.ToLower(host))
	return err == nil && ok
}

func firstMatch(patterns []string, host string) (string, bool) {
	for _, p := range patterns {
		if matchHost(p, host) {
			return p, true
		}
	}
	return "", false
}

// isPrivateIP reports whether host is a loopback, link-local or private
// address. Names are resolved and count as private when any of their
// addresses is.
func isPrivateIP(host string) bool {
	if addr, err := netip.ParseAddr(host); err == nil {
		return isPrivateAddr(addr)
	}

	ctx, cancel := context.WithTimeout(context.Background(), lookupTimeout)
	defer cancel()
	addrs, err := lookupHost(ctx, "ip", host)
	if err != nil {
		return false
	}
	for _, addr := range addrs {
		if isPrivateAddr(addr) {
			return true
		}
	}
	return false
}

func isPrivateAddr(addr netip.Addr) bool {
	addr = addr.Unmap()
	return addr.IsPrivate() || addr.IsLoopback() || addr.IsLinkLocalUnicast()
}
