// Package handler implements mock handlers: rules that claim intercepted
// requests or WebSocket connections and resolve them into mocked
// outcomes.
//
// Every handler follows the same lifecycle. Run parses the unit, asks the
// variant's predicate whether it claims it, marks the handler used and
// finally executes the resolver. Once handlers stop matching after their
// first execution until Restore is called.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"sync/atomic"

	"github.com/jingkaihe/netmock/pkg/api"
	"github.com/jingkaihe/netmock/pkg/cookies"
	"github.com/jingkaihe/netmock/pkg/graphql"
	"github.com/jingkaihe/netmock/pkg/matcher"
)

// Kind tags the protocol family a handler understands.
type Kind int

const (
	// KindRequest covers HTTP and GraphQL handlers.
	KindRequest Kind = iota
	KindWebSocket
)

func (k Kind) String() string {
	switch k {
	case KindRequest:
		return "request"
	case KindWebSocket:
		return "websocket"
	default:
		return "unknown"
	}
}

// Variant names the concrete handler implementation.
type Variant string

const (
	VariantHTTP      Variant = "http"
	VariantGraphQL   Variant = "graphql"
	VariantWebSocket Variant = "websocket"
)

// Info describes a handler for logs and diagnostics.
type Info struct {
	// ID increases with creation order.
	ID      uint64
	Header  string
	Kind    Kind
	Variant Variant
	Once    bool

	Method string
	Path   string

	OperationType graphql.OperationType
	OperationName string
}

var nextID atomic.Uint64

// Handler is the behaviour shared by every handler variant.
type Handler interface {
	Info() Info
	Kind() Kind
	// Used reports whether the handler has executed since the last
	// Restore.
	Used() bool
	// Restore makes a once handler eligible to match again.
	Restore()
}

// ResolutionContext carries engine-wide state into a single run.
type ResolutionContext struct {
	BaseURL string
	Cookies *cookies.Store
}

// RequestResult is what a request handler produces for a unit it claimed.
type RequestResult struct {
	Handler   RequestHandler
	Parsed    any
	Request   *http.Request
	RequestID string
	// Response is nil when the resolver returned nothing.
	Response *api.Response
}

// RequestHandler claims HTTP requests.
type RequestHandler interface {
	Handler
	// Run returns (nil, nil) when the handler does not claim req.
	Run(ctx context.Context, req *api.Request, rc ResolutionContext) (*RequestResult, error)
	// Log records a mocked response produced by this handler.
	Log(logger *slog.Logger, res *RequestResult)
}

// ConnectionResult is what a connection handler produces for a connection
// it claimed.
type ConnectionResult struct {
	Handler ConnectionHandler
	Parsed  matcher.Result
}

// ConnectionHandler claims WebSocket connections.
type ConnectionHandler interface {
	Handler
	Run(ctx context.Context, conn *api.Connection, rc ResolutionContext) (*ConnectionResult, error)
}

// RequestHandlers returns the request handlers in hs, keeping their order.
func RequestHandlers(hs []Handler) []RequestHandler {
	out := make([]RequestHandler, 0, len(hs))
	for _, h := range hs {
		if h.Kind() != KindRequest {
			continue
		}
		if rh, ok := h.(RequestHandler); ok {
			out = append(out, rh)
		}
	}
	return out
}

// ConnectionHandlers returns the WebSocket handlers in hs, keeping their
// order.
func ConnectionHandlers(hs []Handler) []ConnectionHandler {
	out := make([]ConnectionHandler, 0, len(hs))
	for _, h := range hs {
		if h.Kind() != KindWebSocket {
			continue
		}
		if ch, ok := h.(ConnectionHandler); ok {
			out = append(out, ch)
		}
	}
	return out
}

// Option configures a handler.
type Option func(*options)

type options struct {
	once     bool
	logger   *slog.Logger
	endpoint matcher.Path
}

// Once makes the handler match at most one unit until restored.
func Once() Option {
	return func(o *options) { o.once = true }
}

// WithLogger sets the logger used for matching diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// Endpoint scopes a GraphQL handler to requests whose URL matches path.
// Other handler variants ignore it.
func Endpoint(path matcher.Path) Option {
	return func(o *options) { o.endpoint = path }
}

func buildOptions(opts []Option) options {
	o := options{endpoint: matcher.Pattern("*")}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	return o
}
