// Package net connects the resolution engine to real traffic: an
// http.RoundTripper for in-process clients and an HTTP server that acts as
// a forward proxy or a standalone mock origin.
package net

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/google/uuid"

	"github.com/jingkaihe/netmock/internal/errx"
	"github.com/jingkaihe/netmock/pkg/api"
	"github.com/jingkaihe/netmock/pkg/engine"
	"github.com/jingkaihe/netmock/pkg/frame"
	"github.com/jingkaihe/netmock/pkg/policy"
)

// TransportConfig configures a Transport.
type TransportConfig struct {
	Engine *engine.Engine
	// Base performs passthrough requests. A transport dialing through
	// Dialer is built when nil.
	Base   http.RoundTripper
	Dialer UpstreamDialer
	// Gate is consulted before a passthrough request leaves the process.
	// A nil gate allows every host.
	Gate *policy.HostGate
	// Upstream receives passthrough requests that arrived at a Server in
	// origin mode.
	Upstream *url.URL
	Logger   *slog.Logger
}

// Transport resolves every request against the engine and only reaches
// the network for passthrough decisions.
type Transport struct {
	engine   *engine.Engine
	base     http.RoundTripper
	gate     *policy.HostGate
	upstream *url.URL
	logger   *slog.Logger
}

var _ http.RoundTripper = (*Transport)(nil)

func NewTransport(cfg TransportConfig) (*Transport, error) {
	if cfg.Engine == nil {
		return nil, ErrNoEngine
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	base := cfg.Base
	if base == nil {
		d := cfg.Dialer
		if d == nil {
			d = NewSystemDialer(0)
		}
		base = newHTTPTransport(d)
	}
	return &Transport{
		engine:   cfg.Engine,
		base:     base,
		gate:     cfg.Gate,
		upstream: cfg.Upstream,
		logger:   logger.With("component", "net"),
	}, nil
}

// Client returns an http.Client using t.
func (t *Transport) Client() *http.Client {
	return &http.Client{Transport: t}
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	unit := api.NewRequest(uuid.NewString(), req)
	f := frame.NewHTTPFrame(unit, t.engine.Emitter())

	if err := t.engine.HandleRequest(req.Context(), f); err != nil {
		return nil, err
	}

	switch f.Decision() {
	case frame.Respond:
		resp := f.Response()
		if resp.IsNetworkError() {
			return nil, errx.With(api.ErrNetworkError, ": %s %s", req.Method, req.URL)
		}
		return resp.HTTP(req), nil
	case frame.Error:
		return nil, f.Err()
	default:
		resp, err := t.forward(unit.Outgoing())
		if err != nil {
			return nil, err
		}
		f.ReportBypass(resp)
		return resp, nil
	}
}

// forward performs out, a copy owned by the transport, against the real
// network.
func (t *Transport) forward(out *http.Request) (*http.Response, error) {
	api.StripBypass(out)

	if isOriginRequest(out.Context()) {
		if t.upstream == nil {
			return nil, errx.With(ErrNoUpstream, ": %s %s", out.Method, out.URL.Path)
		}
		out.URL.Scheme = t.upstream.Scheme
		out.URL.Host = t.upstream.Host
		out.Host = t.upstream.Host
	}

	if err := t.gate.Allow(out.URL.Host); err != nil {
		return nil, err
	}

	t.logger.Debug("passthrough", "method", out.Method, "url", out.URL.String())
	resp, err := t.base.RoundTrip(out)
	if err != nil {
		return nil, errx.Wrap(ErrUpstream, err)
	}
	return resp, nil
}

type originKey struct{}

// withOrigin marks requests that were addressed to the mock server itself
// rather than proxied to an absolute URL.
func withOrigin(ctx context.Context) context.Context {
	return context.WithValue(ctx, originKey{}, true)
}

func isOriginRequest(ctx context.Context) bool {
	v, _ := ctx.Value(originKey{}).(bool)
	return v
}
