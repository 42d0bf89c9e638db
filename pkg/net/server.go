package net

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/jingkaihe/netmock/internal/errx"
	"github.com/jingkaihe/netmock/pkg/api"
	"github.com/jingkaihe/netmock/pkg/engine"
	"github.com/jingkaihe/netmock/pkg/frame"
	"github.com/jingkaihe/netmock/pkg/policy"
)

const shutdownTimeout = 10 * time.Second

// Hop-by-hop headers are meaningful for a single connection only.
var hopHeaders = []string{
	"Connection",
	"Proxy-Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// ServerConfig configures a Server.
type ServerConfig struct {
	Engine *engine.Engine
	// Upstream is the origin that receives passthrough traffic addressed
	// to the server itself. Proxied requests carrying an absolute URL go
	// to that URL instead.
	Upstream string
	Gate     *policy.HostGate
	Dialer   UpstreamDialer
	Logger   *slog.Logger
}

// Server is an http.Handler resolving HTTP requests and WebSocket
// connections against the engine. It works both as a forward proxy and
// as the origin clients talk to directly.
type Server struct {
	engine    *engine.Engine
	transport *Transport
	upstream  *url.URL
	gate      *policy.HostGate
	upgrader  websocket.Upgrader
	wsDialer  *websocket.Dialer
	logger    *slog.Logger
}

var _ http.Handler = (*Server)(nil)

func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Engine == nil {
		return nil, ErrNoEngine
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	dialer := cfg.Dialer
	if dialer == nil {
		dialer = NewSystemDialer(0)
	}

	var upstream *url.URL
	if cfg.Upstream != "" {
		u, err := url.Parse(cfg.Upstream)
		if err != nil {
			return nil, errx.Wrap(ErrUpstreamURL, err)
		}
		if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return nil, errx.With(ErrUpstreamURL, ": %q must be an absolute http(s) URL", cfg.Upstream)
		}
		upstream = u
	}

	transport, err := NewTransport(TransportConfig{
		Engine:   cfg.Engine,
		Dialer:   dialer,
		Gate:     cfg.Gate,
		Upstream: upstream,
		Logger:   logger,
	})
	if err != nil {
		return nil, err
	}

	return &Server{
		engine:    cfg.Engine,
		transport: transport,
		upstream:  upstream,
		gate:      cfg.Gate,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		wsDialer: newWebSocketDialer(dialer),
		logger:   logger.With("component", "server"),
	}, nil
}

// Transport returns the round tripper the server resolves requests with.
func (s *Server) Transport() *Transport { return s.transport }

// Serve accepts connections on ln until ctx is cancelled, then shuts
// down gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s,
		ReadHeaderTimeout: 30 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodConnect {
		http.Error(w, "CONNECT tunnelling is not supported", http.StatusNotImplemented)
		return
	}

	out, origin := s.outgoing(r)
	if websocket.IsWebSocketUpgrade(r) {
		s.serveWebSocket(w, r, out.URL, origin)
		return
	}

	resp, err := s.transport.RoundTrip(out)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	defer resp.Body.Close()

	header := w.Header()
	for k, vs := range resp.Header {
		header[k] = append([]string(nil), vs...)
	}
	removeHopHeaders(header)
	w.WriteHeader(resp.StatusCode)
	if _, err := io.Copy(w, resp.Body); err != nil {
		s.logger.Debug("response copy failed", "url", out.URL.String(), "error", err)
	}
}

// outgoing turns an incoming server request into a client request with an
// absolute URL.
func (s *Server) outgoing(r *http.Request) (*http.Request, bool) {
	out := r.Clone(r.Context())
	out.RequestURI = ""
	removeHopHeaders(out.Header)

	origin := !r.URL.IsAbs()
	if origin {
		out.URL.Scheme = "http"
		if r.TLS != nil {
			out.URL.Scheme = "https"
		}
		out.URL.Host = r.Host
		out = out.WithContext(withOrigin(out.Context()))
	}
	return out, origin
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, api.ErrNetworkError):
		s.logger.Debug("aborting connection for mocked network error", "url", r.URL.String())
		panic(http.ErrAbortHandler)
	case errors.Is(err, policy.ErrHostBlocked):
		status = http.StatusForbidden
	case errors.Is(err, ErrNoUpstream), errors.Is(err, ErrUpstream):
		status = http.StatusBadGateway
	}
	s.logger.Warn("request failed", "method", r.Method, "url", r.URL.String(), "status", status, "error", err)
	http.Error(w, err.Error(), status)
}

func (s *Server) serveWebSocket(w http.ResponseWriter, r *http.Request, target *url.URL, origin bool) {
	clientURL := *target
	clientURL.Scheme = wsScheme(target.Scheme)

	var upstream *url.URL
	switch {
	case !origin:
		u := clientURL
		upstream = &u
	case s.upstream != nil:
		u := clientURL
		u.Scheme = wsScheme(s.upstream.Scheme)
		u.Host = s.upstream.Host
		upstream = &u
	}

	protocols := websocket.Subprotocols(r)
	up := s.upgrader
	up.Subprotocols = protocols
	conn, err := up.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed", "url", clientURL.String(), "error", errx.Wrap(ErrUpgrade, err))
		return
	}

	ctx := r.Context()
	id := uuid.NewString()
	g := new(errgroup.Group)
	client := newWSClient(id, &clientURL, conn)
	server := &wsServer{
		target:    upstream,
		header:    dialHeader(r.Header),
		protocols: protocols,
		dialer:    s.wsDialer,
		gate:      s.gate,
		client:    client,
		group:     g,
		ctx:       ctx,
	}

	f := frame.NewWebSocketFrame(id, &api.Connection{
		Client:    client,
		Server:    server,
		Protocols: protocols,
	}, s.engine.Emitter())

	if err := s.engine.HandleConnection(ctx, f); err != nil {
		s.logger.Warn("connection failed", "connection_id", id, "url", clientURL.String(), "error", err)
		_ = client.Close(websocket.CloseInternalServerErr, "")
	}

	g.Go(func() error {
		pumpClient(client, server)
		return nil
	})
	_ = g.Wait()
}

func wsScheme(httpScheme string) string {
	if httpScheme == "https" || httpScheme == "wss" {
		return "wss"
	}
	return "ws"
}

func removeHopHeaders(h http.Header) {
	for _, k := range hopHeaders {
		h.Del(k)
	}
}
