// Package frame wraps one intercepted unit of traffic, an HTTP request or
// a WebSocket connection, and records the single terminal decision taken
// for it.
package frame

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/jingkaihe/netmock/internal/errx"
	"github.com/jingkaihe/netmock/pkg/api"
	"github.com/jingkaihe/netmock/pkg/graphql"
)

// Decision is the terminal instruction recorded on a frame.
type Decision int

const (
	Pending Decision = iota
	Respond
	Error
	Passthrough
)

func (d Decision) String() string {
	switch d {
	case Pending:
		return "pending"
	case Respond:
		return "respond"
	case Error:
		return "error"
	case Passthrough:
		return "passthrough"
	default:
		return fmt.Sprintf("decision(%d)", int(d))
	}
}

// Frame is the protocol-independent view of an intercepted unit.
type Frame interface {
	ID() string
	Protocol() api.Protocol
	Emitter() *Emitter
	// Passthrough lets the unit reach the real network unchanged.
	Passthrough() error
	// Fail terminates the unit with err.
	Fail(err error) error
	Decision() Decision
	// UnhandledMessage describes the unit for unhandled diagnostics.
	UnhandledMessage(ctx context.Context, baseURL string) string
}

type settled struct {
	mu       sync.Mutex
	decision Decision
}

func (s *settled) settle(d Decision) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.decision != Pending {
		return errx.With(api.ErrFrameSettled, ": already decided %s", s.decision)
	}
	s.decision = d
	return nil
}

func (s *settled) Decision() Decision {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.decision
}

// HTTPFrame wraps one intercepted HTTP request.
type HTTPFrame struct {
	settled
	req     *api.Request
	emitter *Emitter

	response *api.Response
	err      error
}

var _ Frame = (*HTTPFrame)(nil)

// NewHTTPFrame wraps req. Events are published on emitter, which may be
// nil.
func NewHTTPFrame(req *api.Request, emitter *Emitter) *HTTPFrame {
	return &HTTPFrame{req: req, emitter: emitter}
}

func (f *HTTPFrame) ID() string { return f.req.ID() }

func (f *HTTPFrame) Protocol() api.Protocol { return api.ProtocolHTTP }

func (f *HTTPFrame) Emitter() *Emitter { return f.emitter }

func (f *HTTPFrame) Request() *api.Request { return f.req }

// Emit publishes an event about this request.
func (f *HTTPFrame) Emit(ev Event) {
	ev.RequestID = f.req.ID()
	ev.Protocol = api.ProtocolHTTP
	if ev.Request == nil {
		ev.Request = f.req.Clone()
	}
	f.emitter.Emit(ev)
}

// Respond answers the request with resp.
func (f *HTTPFrame) Respond(resp *api.Response) error {
	if err := f.settle(Respond); err != nil {
		return err
	}
	f.response = resp
	return nil
}

func (f *HTTPFrame) Fail(err error) error {
	if serr := f.settle(Error); serr != nil {
		return serr
	}
	f.err = err
	return nil
}

func (f *HTTPFrame) Passthrough() error {
	return f.settle(Passthrough)
}

// Response returns the mocked response recorded by Respond.
func (f *HTTPFrame) Response() *api.Response { return f.response }

// Err returns the error recorded by Fail.
func (f *HTTPFrame) Err() error { return f.err }

// ReportBypass publishes the response the real network produced for a
// request that was passed through.
func (f *HTTPFrame) ReportBypass(resp *http.Response) {
	if resp == nil {
		return
	}
	out := api.NewResponse(resp.StatusCode, nil)
	out.Header = resp.Header.Clone()
	f.Emit(Event{Type: ResponseBypass, Response: out})
}

// UnhandledMessage renders the diagnostic printed when no handler claims
// the request. GraphQL requests are described by their operation.
func (f *HTTPFrame) UnhandledMessage(_ context.Context, baseURL string) string {
	publicURL := f.req.PublicURL(baseURL)

	var details strings.Builder
	details.WriteString("\n\n")

	if op, err := graphql.ParseRequest(f.req); err == nil && op != nil {
		name := op.Name
		if name == "" {
			name = "(anonymous)"
		}
		fmt.Fprintf(&details, "  • %s %s (%s %s)\n\n", op.Type, name, f.req.Method(), publicURL)
	} else {
		fmt.Fprintf(&details, "  • %s %s\n\n", f.req.Method(), publicURL)
		if body, _ := f.req.Body(); len(body) > 0 {
			fmt.Fprintf(&details, "  • Request body: %s\n\n", body)
		}
	}

	return "intercepted a request without a matching request handler:" + details.String() +
		"If you still wish to intercept this unhandled request, please create a request handler for it."
}

// WebSocketFrame wraps one intercepted WebSocket connection.
type WebSocketFrame struct {
	settled
	id      string
	conn    *api.Connection
	emitter *Emitter
}

var _ Frame = (*WebSocketFrame)(nil)

func NewWebSocketFrame(id string, conn *api.Connection, emitter *Emitter) *WebSocketFrame {
	return &WebSocketFrame{id: id, conn: conn, emitter: emitter}
}

func (f *WebSocketFrame) ID() string { return f.id }

func (f *WebSocketFrame) Protocol() api.Protocol { return api.ProtocolWebSocket }

func (f *WebSocketFrame) Emitter() *Emitter { return f.emitter }

func (f *WebSocketFrame) Connection() *api.Connection { return f.conn }

func (f *WebSocketFrame) Emit(ev Event) {
	ev.RequestID = f.id
	ev.Protocol = api.ProtocolWebSocket
	ev.Connection = f.conn
	f.emitter.Emit(ev)
}

// Respond keeps the connection with the handlers that claimed it.
func (f *WebSocketFrame) Respond() error {
	return f.settle(Respond)
}

// Fail closes the client side with an internal error status.
func (f *WebSocketFrame) Fail(err error) error {
	if serr := f.settle(Error); serr != nil {
		return serr
	}
	reason := "internal error"
	if err != nil {
		reason = err.Error()
	}
	return f.conn.Client.Close(closeInternalError, truncateReason(reason))
}

// Passthrough connects the client to the original server.
func (f *WebSocketFrame) Passthrough() error {
	if err := f.settle(Passthrough); err != nil {
		return err
	}
	if f.conn.Server == nil {
		return api.ErrNotConnected
	}
	return f.conn.Server.Connect()
}

func (f *WebSocketFrame) UnhandledMessage(_ context.Context, _ string) string {
	return "intercepted a WebSocket connection without a matching event handler:\n\n" +
		"  • " + f.conn.Client.URL().String() + "\n\n" +
		"If you still wish to intercept this unhandled connection, please create an event handler for it."
}

const (
	closeInternalError = 1011
	// Control frame payloads are limited to 125 bytes, two of which hold
	// the close code.
	maxCloseReason = 123
)

func truncateReason(s string) string {
	if len(s) <= maxCloseReason {
		return s
	}
	return s[:maxCloseReason]
}
