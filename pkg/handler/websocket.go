package handler

import (
	"context"
	"net/url"
	"strings"
	"sync"

	"github.com/jingkaihe/netmock/pkg/api"
	"github.com/jingkaihe/netmock/pkg/matcher"
)

const socketIOPrefix = "/socket.io/"

// WebSocketInput is handed to connection listeners.
type WebSocketInput struct {
	Connection *api.Connection
	Params     matcher.Params
	Info       Info
}

// ConnectionListener reacts to a claimed connection. It typically
// subscribes to client messages and either answers them or connects to
// the original server.
type ConnectionListener func(ctx context.Context, in WebSocketInput) error

// WebSocketHandler claims WebSocket connections by URL.
type WebSocketHandler struct {
	base
	path matcher.Path

	listenersMu sync.RWMutex
	listeners   []ConnectionListener
}

var _ ConnectionHandler = (*WebSocketHandler)(nil)

// WebSocket builds a handler for connections whose URL matches path.
func WebSocket(path matcher.Path, listener ConnectionListener, opts ...Option) *WebSocketHandler {
	o := buildOptions(opts)
	h := &WebSocketHandler{
		base: newBase(Info{
			Header:  path.String(),
			Kind:    KindWebSocket,
			Variant: VariantWebSocket,
			Once:    o.once,
			Path:    path.String(),
		}),
		path: path,
	}
	if listener != nil {
		h.listeners = append(h.listeners, listener)
	}
	return h
}

// Link builds a WebSocket handler for a URL template with no listener yet.
func Link(path string, opts ...Option) *WebSocketHandler {
	return WebSocket(matcher.Pattern(path), nil, opts...)
}

// On adds a connection listener.
func (h *WebSocketHandler) On(listener ConnectionListener) *WebSocketHandler {
	h.listenersMu.Lock()
	h.listeners = append(h.listeners, listener)
	h.listenersMu.Unlock()
	return h
}

// Parse matches the client URL. A leading Socket.IO path segment is
// ignored so handlers can be declared against the bare endpoint.
func (h *WebSocketHandler) Parse(_ context.Context, conn *api.Connection, rc ResolutionContext) (matcher.Result, error) {
	return matcher.Match(trimSocketIO(conn.Client.URL()), h.path, rc.BaseURL), nil
}

func (h *WebSocketHandler) Predicate(_ context.Context, _ *api.Connection, parsed matcher.Result) bool {
	return parsed.Matches
}

func trimSocketIO(u *url.URL) *url.URL {
	if u == nil || !strings.HasPrefix(u.Path, socketIOPrefix) {
		return u
	}
	c := *u
	c.Path = "/" + strings.TrimPrefix(u.Path, socketIOPrefix)
	c.RawPath = ""
	return &c
}

func (h *WebSocketHandler) Run(ctx context.Context, conn *api.Connection, rc ResolutionContext) (*ConnectionResult, error) {
	if h.exhausted() {
		return nil, nil
	}
	parsed, err := h.Parse(ctx, conn, rc)
	if err != nil {
		return nil, err
	}
	if !h.Predicate(ctx, conn, parsed) {
		return nil, nil
	}
	if !h.claim() {
		return nil, nil
	}

	h.listenersMu.RLock()
	listeners := append([]ConnectionListener(nil), h.listeners...)
	h.listenersMu.RUnlock()

	in := WebSocketInput{Connection: conn, Params: parsed.Params, Info: h.info}
	for _, l := range listeners {
		_, err := guard(func() (*api.Response, error) { return nil, l(ctx, in) })
		if err != nil {
			return nil, &ResolverError{Handler: h.info, Err: err}
		}
	}
	return &ConnectionResult{Handler: h, Parsed: parsed}, nil
}
