// Package engine resolves intercepted units against the active handlers.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/tidwall/sjson"

	"github.com/jingkaihe/netmock/pkg/api"
	"github.com/jingkaihe/netmock/pkg/controller"
	"github.com/jingkaihe/netmock/pkg/cookies"
	"github.com/jingkaihe/netmock/pkg/frame"
	"github.com/jingkaihe/netmock/pkg/handler"
)

// HandlerSource provides the handlers to consult, in order.
type HandlerSource interface {
	CurrentByKind(k handler.Kind) []handler.Handler
}

// Config configures an Engine.
type Config struct {
	Handlers HandlerSource
	// Emitter receives life-cycle events. A fresh emitter is created when
	// nil.
	Emitter *frame.Emitter
	// Cookies stores cookies set by mocked responses. A fresh store is
	// created when nil.
	Cookies *cookies.Store
	BaseURL string
	// OnUnhandled names a built-in strategy. Unhandled takes precedence
	// when set.
	OnUnhandled string
	Unhandled   UnhandledFunc
	// Quiet disables the per-response handler log line.
	Quiet  bool
	Logger *slog.Logger
}

// Engine is safe for concurrent use.
type Engine struct {
	handlers  HandlerSource
	emitter   *frame.Emitter
	cookies   *cookies.Store
	baseURL   string
	unhandled UnhandledFunc
	quiet     bool
	logger    *slog.Logger
}

func New(cfg Config) (*Engine, error) {
	if cfg.Handlers == nil {
		return nil, ErrNoHandlerSource
	}
	apiCfg := api.Config{BaseURL: cfg.BaseURL, OnUnhandled: cfg.OnUnhandled, Quiet: cfg.Quiet}
	if err := apiCfg.Validate(); err != nil {
		return nil, err
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{
		handlers:  cfg.Handlers,
		emitter:   cfg.Emitter,
		cookies:   cfg.Cookies,
		baseURL:   apiCfg.BaseURL,
		unhandled: cfg.Unhandled,
		quiet:     apiCfg.Quiet,
		logger:    logger.With("component", "engine"),
	}
	if e.emitter == nil {
		e.emitter = frame.NewEmitter()
	}
	if e.cookies == nil {
		e.cookies = cookies.NewStore()
	}
	if e.unhandled == nil {
		e.unhandled = Strategy(apiCfg.OnUnhandled)
	}
	return e, nil
}

func (e *Engine) Emitter() *frame.Emitter { return e.emitter }

func (e *Engine) Cookies() *cookies.Store { return e.cookies }

func (e *Engine) resolutionContext() handler.ResolutionContext {
	return handler.ResolutionContext{BaseURL: e.baseURL, Cookies: e.cookies}
}

// source prefers a controller carried by ctx over the configured one.
func (e *Engine) source(ctx context.Context) HandlerSource {
	if c, ok := controller.FromContext(ctx); ok {
		return c
	}
	return e.handlers
}

// LookupResult is the outcome of running the request handlers against
// one request.
type LookupResult struct {
	Handler  handler.RequestHandler
	Result   *handler.RequestResult
	Response *api.Response
}

// Lookup runs the request handlers in order until one produces a
// response. When handlers matched but none produced a response, the first
// of them is reported with a nil Response. It returns (nil, nil) when no
// handler matched.
func (e *Engine) Lookup(ctx context.Context, req *api.Request) (*LookupResult, error) {
	hs := handler.RequestHandlers(e.source(ctx).CurrentByKind(handler.KindRequest))
	rc := e.resolutionContext()

	var first *handler.RequestResult
	for _, h := range hs {
		res, err := h.Run(ctx, req, rc)
		if err != nil {
			return nil, err
		}
		if res == nil {
			continue
		}
		if res.Response != nil {
			return &LookupResult{Handler: h, Result: res, Response: res.Response}, nil
		}
		if first == nil {
			first = res
		}
	}
	if first == nil {
		return nil, nil
	}
	return &LookupResult{Handler: first.Handler, Result: first}, nil
}

// HandleRequest resolves the request wrapped by f and records the
// decision on f. Events are published on f's emitter.
func (e *Engine) HandleRequest(ctx context.Context, f *frame.HTTPFrame) error {
	req := f.Request()
	f.Emit(frame.Event{Type: frame.RequestStart})

	if api.IsBypass(req.Raw()) {
		f.Emit(frame.Event{Type: frame.RequestEnd})
		return f.Passthrough()
	}

	lookup, err := e.Lookup(ctx, req)
	if err != nil {
		e.logger.Warn("request handler failed", "request_id", req.ID(), "method", req.Method(), "url", req.URL().String(), "error", err)
		f.Emit(frame.Event{Type: frame.UnhandledException, Err: err})
		f.Emit(frame.Event{Type: frame.RequestEnd})
		return f.Respond(exceptionResponse(err))
	}

	if lookup == nil {
		uerr := e.unhandled(ctx, f, e.printer(ctx, f))
		f.Emit(frame.Event{Type: frame.RequestUnhandled})
		f.Emit(frame.Event{Type: frame.RequestEnd})
		if uerr != nil {
			return f.Fail(uerr)
		}
		return f.Passthrough()
	}

	resp := lookup.Response
	info := lookup.Handler.Info()
	switch {
	case resp == nil:
		e.logger.Warn("handler matched but returned no response; performing request as-is",
			"request_id", req.ID(), "method", req.Method(), "url", req.URL().String(), "handler", info.Header)
		f.Emit(frame.Event{Type: frame.RequestEnd, Handler: &info})
		return f.Passthrough()
	case resp.IsPassthrough():
		f.Emit(frame.Event{Type: frame.RequestEnd, Handler: &info, Response: resp})
		return f.Passthrough()
	}

	e.cookies.Save(req.URL(), resp)

	f.Emit(frame.Event{Type: frame.RequestMatch, Handler: &info})
	if err := f.Respond(resp); err != nil {
		f.Emit(frame.Event{Type: frame.RequestEnd, Handler: &info})
		return err
	}
	if !e.quiet {
		lookup.Handler.Log(e.logger, lookup.Result)
	}
	f.Emit(frame.Event{Type: frame.RequestEnd})
	f.Emit(frame.Event{Type: frame.ResponseMocked, Response: resp, Handler: &info})
	return nil
}

// HandleConnection runs every WebSocket handler claiming the connection
// wrapped by f. A connection claimed by at least one handler stays mocked;
// otherwise the unhandled strategy runs and the connection is passed
// through to the original server.
func (e *Engine) HandleConnection(ctx context.Context, f *frame.WebSocketFrame) error {
	hs := handler.ConnectionHandlers(e.source(ctx).CurrentByKind(handler.KindWebSocket))
	rc := e.resolutionContext()

	matched := 0
	for _, h := range hs {
		res, err := h.Run(ctx, f.Connection(), rc)
		if err != nil {
			e.logger.Warn("connection handler failed", "connection_id", f.ID(), "error", err)
			f.Emit(frame.Event{Type: frame.UnhandledException, Err: err})
			return f.Fail(err)
		}
		if res == nil {
			continue
		}
		matched++
		info := h.Info()
		f.Emit(frame.Event{Type: frame.ConnectionMatch, Handler: &info})
	}
	if matched > 0 {
		return f.Respond()
	}

	uerr := e.unhandled(ctx, f, e.printer(ctx, f))
	f.Emit(frame.Event{Type: frame.ConnectionUnhandled})
	if uerr != nil {
		return f.Fail(uerr)
	}
	return f.Passthrough()
}

func (e *Engine) printer(ctx context.Context, f frame.Frame) Printer {
	return Printer{
		logger:  e.logger,
		message: f.UnhandledMessage(ctx, e.baseURL),
		attrs:   []any{"request_id", f.ID(), "protocol", f.Protocol().String()},
	}
}

// exceptionResponse renders a failed resolution as a 500 response whose
// body names the error.
func exceptionResponse(err error) *api.Response {
	root := rootCause(err)
	stack := ""
	var perr *handler.PanicError
	if errors.As(err, &perr) {
		root = perr
		stack = string(perr.Stack)
	}

	body := []byte(`{}`)
	body, _ = sjson.SetBytes(body, "name", fmt.Sprintf("%T", root))
	body, _ = sjson.SetBytes(body, "message", err.Error())
	body, _ = sjson.SetBytes(body, "stack", stack)
	return api.RawJSON(http.StatusInternalServerError, body)
}

func rootCause(err error) error {
	var rerr *handler.ResolverError
	if errors.As(err, &rerr) && rerr.Err != nil {
		err = rerr.Err
	}
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return err
		}
		err = next
	}
}
