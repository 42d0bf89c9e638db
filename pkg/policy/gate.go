// Package policy decides whether traffic that is passed through may reach
// the real network.
package policy

import (
	"encoding/json"
	"log/slog"
	"net"
	"strings"
	"sync"

	"github.com/jingkaihe/netmock/internal/errx"
	"github.com/jingkaihe/netmock/pkg/logging"
)

// GateConfig lists the hosts passthrough traffic may reach.
type GateConfig struct {
	AllowedHosts        []string `json:"allowed_hosts,omitempty" yaml:"allowed_hosts,omitempty"`
	BlockPrivateIPs     bool     `json:"block_private_ips,omitempty" yaml:"block_private_ips,omitempty"`
	AllowedPrivateHosts []string `json:"allowed_private_hosts,omitempty" yaml:"allowed_private_hosts,omitempty"`
}

// Verdict is the outcome of checking one host.
type Verdict struct {
	Allowed bool
	Reason  string
	Pattern string
}

// HostGate is safe for concurrent use. A nil *HostGate allows every host.
type HostGate struct {
	mu     sync.RWMutex
	config GateConfig
	logger *slog.Logger
	events *logging.Emitter
}

// NewHostGate creates a gate. events may be nil.
func NewHostGate(cfg GateConfig, logger *slog.Logger, events *logging.Emitter) *HostGate {
	if logger == nil {
		logger = slog.Default()
	}
	return &HostGate{
		config: cfg,
		logger: logger.With("component", "policy"),
		events: events,
	}
}

// NewHostGateFromConfig creates a gate from a JSON config blob.
func NewHostGateFromConfig(raw json.RawMessage, logger *slog.Logger, events *logging.Emitter) (*HostGate, error) {
	var cfg GateConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, errx.Wrap(ErrInvalidConfig, err)
	}
	return NewHostGate(cfg, logger, events), nil
}

// Allow returns ErrHostBlocked when host may not be reached. host may
// carry a port.
func (g *HostGate) Allow(host string) error {
	v := g.Check(host)
	if v.Allowed {
		return nil
	}
	return errx.With(ErrHostBlocked, ": %s: %s", stripPort(host), v.Reason)
}

// Check evaluates host against the gate.
func (g *HostGate) Check(host string) *Verdict {
	if g == nil {
		return &Verdict{Allowed: true}
	}
	host = stripPort(host)
	v := g.check(host)

	if g.events != nil {
		_ = g.events.Emit(logging.EventGateDecision, gateSummary(host, v), logging.Ref{}, nil, &logging.GateDecisionData{
			Host:    host,
			Allowed: v.Allowed,
			Reason:  v.Reason,
			Pattern: v.Pattern,
		})
	}
	if !v.Allowed {
		g.logger.Debug("passthrough blocked", "host", host, "reason", v.Reason)
	}
	return v
}

func (g *HostGate) check(host string) *Verdict {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if g.config.BlockPrivateIPs && isPrivateIP(host) {
		pattern, ok := firstMatch(g.config.AllowedPrivateHosts, host)
		if !ok {
			return &Verdict{Allowed: false, Reason: "private IP blocked"}
		}
		g.logger.Debug("private IP allowed via exception", "host", host, "pattern", pattern)
	}

	if len(g.config.AllowedHosts) == 0 {
		return &Verdict{Allowed: true}
	}
	if pattern, ok := firstMatch(g.config.AllowedHosts, host); ok {
		return &Verdict{Allowed: true, Pattern: pattern}
	}
	return &Verdict{Allowed: false, Reason: "host not in allowlist"}
}

func gateSummary(host string, v *Verdict) string {
	if v.Allowed {
		return "allow " + host
	}
	return "deny " + host + ": " + v.Reason
}

func stripPort(host string) string {
	if h, _, err := net.SplitHostPort(host); err == nil {
		return h
	}
	return strings.Trim(host, "[]")
}

// AddAllowedHosts appends hosts to the allow-list. Returns the newly
// added hosts.
func (g *HostGate) AddAllowedHosts(hosts ...string) []string {
	g.mu.Lock()
	defer g.mu.Unlock()

	seen := make(map[string]bool, len(g.config.AllowedHosts))
	for _, h := range g.config.AllowedHosts {
		seen[h] = true
	}
	var added []string
	for _, h := range hosts {
		h = strings.TrimSpace(h)
		if h == "" || seen[h] {
			continue
		}
		seen[h] = true
		g.config.AllowedHosts = append(g.config.AllowedHosts, h)
		added = append(added, h)
	}
	return added
}

// RemoveAllowedHosts removes hosts from the allow-list. Returns the hosts
// actually removed.
func (g *HostGate) RemoveAllowedHosts(hosts ...string) []string {
	g.mu.Lock()
	defer g.mu.Unlock()

	remove := make(map[string]bool, len(hosts))
	for _, h := range hosts {
		remove[strings.TrimSpace(h)] = true
	}
	var removed []string
	kept := g.config.AllowedHosts[:0]
	for _, h := range g.config.AllowedHosts {
		if remove[h] {
			removed = append(removed, h)
			delete(remove, h)
			continue
		}
		kept = append(kept, h)
	}
	g.config.AllowedHosts = kept
	return removed
}

// AllowedHosts returns a copy of the current allow-list.
func (g *HostGate) AllowedHosts() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]string(nil), g.config.AllowedHosts...)
}
