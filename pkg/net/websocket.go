package net

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/jingkaihe/netmock/internal/errx"
	"github.com/jingkaihe/netmock/pkg/api"
	"github.com/jingkaihe/netmock/pkg/policy"
)

const closeWriteTimeout = 5 * time.Second

type listeners struct {
	mu  sync.RWMutex
	fns []api.MessageListener
}

func (l *listeners) add(fn api.MessageListener) {
	l.mu.Lock()
	l.fns = append(l.fns, fn)
	l.mu.Unlock()
}

func (l *listeners) dispatch(msg *api.Message) {
	l.mu.RLock()
	fns := append([]api.MessageListener(nil), l.fns...)
	l.mu.RUnlock()
	for _, fn := range fns {
		fn(msg)
	}
}

// peer serializes writes on one gorilla connection.
type peer struct {
	conn *websocket.Conn

	writeMu sync.Mutex
	closed  bool
}

func (p *peer) send(mt api.MessageType, data []byte) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	if p.closed {
		return websocket.ErrCloseSent
	}
	return p.conn.WriteMessage(int(mt), data)
}

func (p *peer) close(code int, reason string) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	msg := websocket.FormatCloseMessage(code, reason)
	_ = p.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeWriteTimeout))
	return p.conn.Close()
}

// wsClient is the intercepted client side, accepted by the Server.
type wsClient struct {
	peer
	listeners
	id  string
	url *url.URL
}

var _ api.WebSocketClient = (*wsClient)(nil)

func newWSClient(id string, u *url.URL, conn *websocket.Conn) *wsClient {
	return &wsClient{peer: peer{conn: conn}, id: id, url: u}
}

func (c *wsClient) ID() string { return c.id }

func (c *wsClient) URL() *url.URL { return c.url }

func (c *wsClient) Send(mt api.MessageType, data []byte) error { return c.send(mt, data) }

func (c *wsClient) Close(code int, reason string) error { return c.close(code, reason) }

func (c *wsClient) OnMessage(fn api.MessageListener) { c.add(fn) }

// wsServer is the original server. It dials lazily on Connect and then
// forwards its messages to the client unless a listener prevents it.
type wsServer struct {
	listeners
	target    *url.URL
	header    http.Header
	protocols []string
	dialer    *websocket.Dialer
	gate      *policy.HostGate
	client    *wsClient
	group     *errgroup.Group
	ctx       context.Context

	mu   sync.Mutex
	peer *peer
}

var _ api.WebSocketServer = (*wsServer)(nil)

func (s *wsServer) Connect() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.peer != nil {
		return nil
	}
	if s.target == nil {
		return ErrNoUpstream
	}
	if err := s.gate.Allow(s.target.Host); err != nil {
		return err
	}

	d := *s.dialer
	d.Subprotocols = s.protocols
	conn, resp, err := d.DialContext(s.ctx, s.target.String(), s.header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return errx.Wrap(ErrDialUpstream, err)
	}
	s.peer = &peer{conn: conn}
	p := s.peer
	s.group.Go(func() error {
		s.pump(p)
		return nil
	})
	return nil
}

// pump relays upstream messages until the upstream connection ends, then
// closes the client with the upstream close code.
func (s *wsServer) pump(p *peer) {
	for {
		mt, data, err := p.conn.ReadMessage()
		if err != nil {
			code, reason := closeStatus(err)
			_ = s.client.Close(code, reason)
			return
		}
		msg := &api.Message{Type: api.MessageType(mt), Data: data}
		s.dispatch(msg)
		if !msg.DefaultPrevented() {
			_ = s.client.Send(msg.Type, msg.Data)
		}
	}
}

func (s *wsServer) connected() *peer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.peer
}

func (s *wsServer) Send(mt api.MessageType, data []byte) error {
	p := s.connected()
	if p == nil {
		return api.ErrNotConnected
	}
	return p.send(mt, data)
}

func (s *wsServer) Close(code int, reason string) error {
	p := s.connected()
	if p == nil {
		return nil
	}
	return p.close(code, reason)
}

func (s *wsServer) OnMessage(fn api.MessageListener) { s.add(fn) }

// dialHeader keeps the client headers worth replaying to the original
// server. Handshake headers are regenerated by the dialer.
func dialHeader(h http.Header) http.Header {
	out := h.Clone()
	for _, k := range []string{
		"Upgrade", "Connection", "Sec-Websocket-Key", "Sec-Websocket-Version",
		"Sec-Websocket-Extensions", "Sec-Websocket-Protocol", "Host",
	} {
		out.Del(k)
	}
	return out
}

// pumpClient reads client messages until the client goes away. Messages
// reach the original server when it is connected and no listener
// prevented them.
func pumpClient(client *wsClient, server *wsServer) {
	for {
		mt, data, err := client.conn.ReadMessage()
		if err != nil {
			code, _ := closeStatus(err)
			_ = server.Close(code, "")
			_ = client.Close(code, "")
			return
		}
		msg := &api.Message{Type: api.MessageType(mt), Data: data}
		client.dispatch(msg)
		if msg.DefaultPrevented() {
			continue
		}
		if p := server.connected(); p != nil {
			_ = p.send(msg.Type, msg.Data)
		}
	}
}

// closeStatus extracts the close code to relay from a read error. Codes
// that must not appear on the wire become a normal closure.
func closeStatus(err error) (int, string) {
	var ce *websocket.CloseError
	if !errors.As(err, &ce) {
		return websocket.CloseNormalClosure, ""
	}
	switch ce.Code {
	case websocket.CloseNoStatusReceived, websocket.CloseAbnormalClosure, websocket.CloseTLSHandshake:
		return websocket.CloseNormalClosure, ""
	}
	return ce.Code, ce.Text
}
