package net

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const defaultDialTimeout = 30 * time.Second

// UpstreamDialer opens the connections passthrough traffic travels over,
// both HTTP round trips and WebSocket handshakes.
type UpstreamDialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// NewSystemDialer dials the real network. A zero timeout means 30s.
func NewSystemDialer(timeout time.Duration) UpstreamDialer {
	if timeout <= 0 {
		timeout = defaultDialTimeout
	}
	return &net.Dialer{Timeout: timeout, KeepAlive: 30 * time.Second}
}

// newHTTPTransport ignores proxy environment variables: passthrough
// requests go straight to their destination.
func newHTTPTransport(d UpstreamDialer) *http.Transport {
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.Proxy = nil
	t.DialContext = d.DialContext
	return t
}

func newWebSocketDialer(d UpstreamDialer) *websocket.Dialer {
	return &websocket.Dialer{
		NetDialContext:   d.DialContext,
		HandshakeTimeout: defaultDialTimeout,
	}
}
