package engine

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
	"golang.org/x/sync/errgroup"

	"github.com/jingkaihe/netmock/pkg/api"
	"github.com/jingkaihe/netmock/pkg/controller"
	"github.com/jingkaihe/netmock/pkg/frame"
	"github.com/jingkaihe/netmock/pkg/handler"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func reply(body string) handler.Resolver[handler.HTTPInput] {
	return handler.Respond(func(context.Context, handler.HTTPInput) (*api.Response, error) {
		return api.Text(http.StatusOK, body), nil
	})
}

func empty() handler.Resolver[handler.HTTPInput] {
	return handler.Respond(func(context.Context, handler.HTTPInput) (*api.Response, error) {
		return nil, nil
	})
}

type harness struct {
	engine *Engine
	ctrl   *controller.Controller

	mu     sync.Mutex
	events []frame.EventType
}

func newHarness(t *testing.T, cfg Config, hs ...handler.Handler) *harness {
	t.Helper()
	ctrl, err := controller.New(hs...)
	require.NoError(t, err)
	cfg.Handlers = ctrl
	if cfg.Logger == nil {
		cfg.Logger = discard
	}
	e, err := New(cfg)
	require.NoError(t, err)

	h := &harness{engine: e, ctrl: ctrl}
	e.Emitter().OnAny(func(ev frame.Event) {
		h.mu.Lock()
		h.events = append(h.events, ev.Type)
		h.mu.Unlock()
	})
	return h
}

func (h *harness) handle(t *testing.T, ctx context.Context, r *http.Request) *frame.HTTPFrame {
	t.Helper()
	f := frame.NewHTTPFrame(api.NewRequest("req-1", r), h.engine.Emitter())
	require.NoError(t, h.engine.HandleRequest(ctx, f))
	return f
}

func get(target string) *http.Request {
	return httptest.NewRequest(http.MethodGet, target, nil)
}

func TestHandleRequest_Mocked(t *testing.T) {
	h := newHarness(t, Config{}, handler.Get("https://x.test/user/:id", reply("user")))

	f := h.handle(t, context.Background(), get("https://x.test/user/1"))
	assert.Equal(t, frame.Respond, f.Decision())
	assert.Equal(t, "user", string(f.Response().Body))
	assert.Equal(t, []frame.EventType{
		frame.RequestStart, frame.RequestMatch, frame.RequestEnd, frame.ResponseMocked,
	}, h.events)
}

func TestHandleRequest_Order(t *testing.T) {
	h := newHarness(t, Config{},
		handler.Get("https://x.test/a", reply("initial-1")),
		handler.Get("https://x.test/a", reply("initial-2")),
	)

	f := h.handle(t, context.Background(), get("https://x.test/a"))
	assert.Equal(t, "initial-1", string(f.Response().Body))

	require.NoError(t, h.ctrl.Use(handler.Get("https://x.test/a", reply("runtime-old"))))
	require.NoError(t, h.ctrl.Use(handler.Get("https://x.test/a", reply("runtime-new"))))
	f = h.handle(t, context.Background(), get("https://x.test/a"))
	assert.Equal(t, "runtime-new", string(f.Response().Body))

	require.NoError(t, h.ctrl.Reset())
	f = h.handle(t, context.Background(), get("https://x.test/a"))
	assert.Equal(t, "initial-1", string(f.Response().Body))
}

func TestLookup_FallsThroughEmptyMatches(t *testing.T) {
	first := handler.Get("https://x.test/a", empty())
	second := handler.Get("https://x.test/a", empty())
	third := handler.Get("https://x.test/a", reply("third"))
	h := newHarness(t, Config{}, first, second, third)

	res, err := h.engine.Lookup(context.Background(), api.NewRequest("req-1", get("https://x.test/a")))
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Same(t, third, res.Handler)
	assert.Equal(t, "third", string(res.Response.Body))
	assert.True(t, first.Used())
	assert.True(t, second.Used())
}

func TestLookup_FirstEmptyMatchIsReported(t *testing.T) {
	first := handler.Get("https://x.test/a", empty())
	second := handler.All("https://x.test/a", empty())
	h := newHarness(t, Config{}, handler.Get("https://x.test/b", reply("b")), first, second)

	res, err := h.engine.Lookup(context.Background(), api.NewRequest("req-1", get("https://x.test/a")))
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Same(t, first, res.Handler)
	assert.Nil(t, res.Response)

	res, err = h.engine.Lookup(context.Background(), api.NewRequest("req-2", get("https://x.test/none")))
	require.NoError(t, err)
	assert.Nil(t, res)
}

func TestHandleRequest_MatchedWithoutResponse(t *testing.T) {
	h := newHarness(t, Config{}, handler.Get("https://x.test/a", empty()))

	f := h.handle(t, context.Background(), get("https://x.test/a"))
	assert.Equal(t, frame.Passthrough, f.Decision())
	assert.Equal(t, []frame.EventType{frame.RequestStart, frame.RequestEnd}, h.events)
}

func TestHandleRequest_PassthroughOutcomesAreDistinct(t *testing.T) {
	tests := []struct {
		name     string
		resolver handler.Resolver[handler.HTTPInput]
		bypass   bool
		handler  bool
		marker   bool
		warning  bool
	}{
		{"no response", empty(), false, true, false, true},
		{"passthrough response", handler.Respond(func(context.Context, handler.HTTPInput) (*api.Response, error) {
			return api.Passthrough(), nil
		}), false, true, true, false},
		{"bypass marker", reply("never"), true, false, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var logs bytes.Buffer
			logger := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
			h := newHarness(t, Config{Logger: logger}, handler.Get("https://x.test/a", tt.resolver))

			var end frame.Event
			h.engine.Emitter().On(frame.RequestEnd, func(ev frame.Event) { end = ev })

			r := get("https://x.test/a")
			if tt.bypass {
				r = api.Bypass(r)
			}
			f := h.handle(t, context.Background(), r)
			assert.Equal(t, frame.Passthrough, f.Decision())
			assert.Equal(t, []frame.EventType{frame.RequestStart, frame.RequestEnd}, h.events)

			assert.Equal(t, tt.handler, end.Handler != nil)
			if tt.handler {
				assert.Equal(t, "GET https://x.test/a", end.Handler.Header)
			}
			assert.Equal(t, tt.marker, end.Response != nil && end.Response.IsPassthrough())
			assert.Equal(t, tt.warning, strings.Contains(logs.String(), "handler matched but returned no response"))
			if tt.warning {
				assert.Contains(t, logs.String(), "GET https://x.test/a")
			}
		})
	}
}

func TestHandleRequest_SettledFrameStillEnds(t *testing.T) {
	h := newHarness(t, Config{}, handler.Get("https://x.test/a", reply("user")))

	f := frame.NewHTTPFrame(api.NewRequest("req-1", get("https://x.test/a")), h.engine.Emitter())
	require.NoError(t, f.Passthrough())

	err := h.engine.HandleRequest(context.Background(), f)
	assert.ErrorIs(t, err, api.ErrFrameSettled)
	assert.Equal(t, []frame.EventType{frame.RequestStart, frame.RequestMatch, frame.RequestEnd}, h.events)
}

func TestHandleRequest_Bypass(t *testing.T) {
	var calls atomic.Int32
	hdl := handler.Get("https://x.test/a", handler.Respond(func(context.Context, handler.HTTPInput) (*api.Response, error) {
		calls.Add(1)
		return api.Text(http.StatusOK, "mocked"), nil
	}))
	h := newHarness(t, Config{}, hdl)

	f := h.handle(t, context.Background(), api.Bypass(get("https://x.test/a")))
	assert.Equal(t, frame.Passthrough, f.Decision())
	assert.Zero(t, calls.Load())
	assert.False(t, hdl.Used())
	assert.Equal(t, []frame.EventType{frame.RequestStart, frame.RequestEnd}, h.events)
}

func TestHandleRequest_PassthroughResponse(t *testing.T) {
	h := newHarness(t, Config{},
		handler.Get("https://x.test/a", handler.Respond(func(context.Context, handler.HTTPInput) (*api.Response, error) {
			return api.Passthrough(), nil
		})),
		handler.Get("https://x.test/a", reply("never")),
	)

	f := h.handle(t, context.Background(), get("https://x.test/a"))
	assert.Equal(t, frame.Passthrough, f.Decision())
	assert.Equal(t, []frame.EventType{frame.RequestStart, frame.RequestEnd}, h.events)
}

func TestHandleRequest_Unhandled(t *testing.T) {
	var printed string
	h := newHarness(t, Config{
		Unhandled: func(_ context.Context, f frame.Frame, p Printer) error {
			printed = p.Message()
			assert.Equal(t, api.ProtocolHTTP, f.Protocol())
			return nil
		},
	}, handler.Post("https://x.test/login", reply("ok")))

	f := h.handle(t, context.Background(), get("https://x.test/login"))
	assert.Equal(t, frame.Passthrough, f.Decision())
	assert.Contains(t, printed, "  • GET https://x.test/login")
	assert.Equal(t, []frame.EventType{frame.RequestStart, frame.RequestUnhandled, frame.RequestEnd}, h.events)
}

func TestHandleRequest_UnhandledStrategies(t *testing.T) {
	tests := []struct {
		strategy string
		decision frame.Decision
	}{
		{api.UnhandledBypass, frame.Passthrough},
		{api.UnhandledWarn, frame.Passthrough},
		{api.UnhandledError, frame.Error},
	}
	for _, tt := range tests {
		t.Run(tt.strategy, func(t *testing.T) {
			h := newHarness(t, Config{OnUnhandled: tt.strategy})
			f := h.handle(t, context.Background(), get("https://x.test/none"))
			assert.Equal(t, tt.decision, f.Decision())
			if tt.decision == frame.Error {
				assert.ErrorIs(t, f.Err(), api.ErrUnhandledRequest)
				assert.Contains(t, f.Err().Error(), "GET https://x.test/none")
			}
		})
	}
}

func TestHandleRequest_Exception(t *testing.T) {
	h := newHarness(t, Config{},
		handler.Get("https://x.test/a", handler.Respond(func(context.Context, handler.HTTPInput) (*api.Response, error) {
			return nil, errors.New("database is down")
		})),
		handler.Get("https://x.test/a", reply("never")),
	)

	f := h.handle(t, context.Background(), get("https://x.test/a"))
	require.Equal(t, frame.Respond, f.Decision())
	resp := f.Response()
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "*errors.errorString", gjson.GetBytes(resp.Body, "name").String())
	assert.Contains(t, gjson.GetBytes(resp.Body, "message").String(), "database is down")
	assert.Equal(t, []frame.EventType{frame.RequestStart, frame.UnhandledException, frame.RequestEnd}, h.events)

	// Other units keep resolving.
	g := newHarness(t, Config{OnUnhandled: api.UnhandledBypass})
	assert.Equal(t, frame.Passthrough, g.handle(t, context.Background(), get("https://x.test/a")).Decision())
}

func TestHandleRequest_PanicException(t *testing.T) {
	h := newHarness(t, Config{}, handler.Get("https://x.test/a", handler.Respond(func(context.Context, handler.HTTPInput) (*api.Response, error) {
		panic("nil map")
	})))

	f := h.handle(t, context.Background(), get("https://x.test/a"))
	resp := f.Response()
	require.NotNil(t, resp)
	assert.Equal(t, "*handler.PanicError", gjson.GetBytes(resp.Body, "name").String())
	assert.NotEmpty(t, gjson.GetBytes(resp.Body, "stack").String())
}

func TestHandleRequest_CookiesStoredBeforeMatch(t *testing.T) {
	h := newHarness(t, Config{}, handler.Post("https://x.test/login", handler.Respond(func(context.Context, handler.HTTPInput) (*api.Response, error) {
		resp := api.Text(http.StatusOK, "ok")
		resp.Header.Set("Set-Cookie", "session=abc; Path=/")
		return resp, nil
	})), handler.Get("https://x.test/me", handler.Respond(func(_ context.Context, in handler.HTTPInput) (*api.Response, error) {
		return api.Text(http.StatusOK, in.Cookies["session"]), nil
	})))

	u, err := url.Parse("https://x.test/")
	require.NoError(t, err)
	var atMatch int
	h.engine.Emitter().On(frame.RequestMatch, func(frame.Event) {
		atMatch = len(h.engine.Cookies().Cookies(u))
	})

	h.handle(t, context.Background(), httptest.NewRequest(http.MethodPost, "https://x.test/login", nil))
	assert.Equal(t, 1, atMatch)

	f := h.handle(t, context.Background(), get("https://x.test/me"))
	assert.Equal(t, "abc", string(f.Response().Body))
}

func TestHandleRequest_ContextController(t *testing.T) {
	h := newHarness(t, Config{}, handler.Get("https://x.test/a", reply("default")))

	override := h.ctrl.Clone()
	require.NoError(t, override.Use(handler.Get("https://x.test/a", reply("override"))))
	ctx := controller.NewContext(context.Background(), override)

	assert.Equal(t, "override", string(h.handle(t, ctx, get("https://x.test/a")).Response().Body))
	assert.Equal(t, "default", string(h.handle(t, context.Background(), get("https://x.test/a")).Response().Body))
}

func TestHandleRequest_ConcurrentOnce(t *testing.T) {
	h := newHarness(t, Config{OnUnhandled: api.UnhandledBypass},
		handler.Get("https://x.test/token", reply("token"), handler.Once()))

	var mocked atomic.Int32
	var g errgroup.Group
	for range 20 {
		g.Go(func() error {
			f := frame.NewHTTPFrame(api.NewRequest("req", get("https://x.test/token")), h.engine.Emitter())
			if err := h.engine.HandleRequest(context.Background(), f); err != nil {
				return err
			}
			if f.Decision() == frame.Respond {
				mocked.Add(1)
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	assert.Equal(t, int32(1), mocked.Load())
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Config{})
	assert.ErrorIs(t, err, ErrNoHandlerSource)

	ctrl, err := controller.New()
	require.NoError(t, err)
	_, err = New(Config{Handlers: ctrl, OnUnhandled: "explode"})
	assert.ErrorIs(t, err, api.ErrInvalidConfig)

	_, err = New(Config{Handlers: ctrl, BaseURL: "/relative"})
	assert.ErrorIs(t, err, api.ErrInvalidConfig)
}
