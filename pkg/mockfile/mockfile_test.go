package mockfile

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/jingkaihe/netmock/pkg/api"
	"github.com/jingkaihe/netmock/pkg/controller"
	"github.com/jingkaihe/netmock/pkg/engine"
	"github.com/jingkaihe/netmock/pkg/handler"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

const sample = `
base_url: https://api.test
on_unhandled: error
gate:
  allowed_hosts: ["*.example.com"]
  block_private_ips: true
handlers:
  - method: GET
    path: /user/:id
    response:
      json: {id: 1, name: Ada}
      headers: {X-Mock: "yes"}
  - method: post
    path: /login
    once: true
    response:
      status: 204
  - path: /poll
    responses:
      - body: first
      - body: second
      - status: 503
        body: last
  - kind: graphql
    operation: query
    name: GetUser
    endpoint: https://api.test/graphql
    response:
      data: {user: {name: Ada}}
  - kind: websocket
    path: wss://chat.test/rooms/:room
    send: [welcome]
    echo: true
`

func lookup(t *testing.T, e *engine.Engine, r *http.Request) *api.Response {
	t.Helper()
	res, err := e.Lookup(context.Background(), api.NewRequest("req-1", r))
	require.NoError(t, err)
	if res == nil {
		return nil
	}
	return res.Response
}

func compileSample(t *testing.T) (*File, *engine.Engine) {
	t.Helper()
	f, err := Parse([]byte(sample))
	require.NoError(t, err)
	hs, err := Compile(f.Handlers, discard)
	require.NoError(t, err)
	ctrl, err := controller.New(hs...)
	require.NoError(t, err)
	e, err := engine.New(engine.Config{Handlers: ctrl, BaseURL: f.BaseURL, OnUnhandled: f.OnUnhandled, Logger: discard})
	require.NoError(t, err)
	return f, e
}

func TestParse_Settings(t *testing.T) {
	f, _ := compileSample(t)
	assert.Equal(t, "https://api.test", f.BaseURL)
	assert.Equal(t, api.UnhandledError, f.OnUnhandled)
	require.NotNil(t, f.Gate)
	assert.Equal(t, []string{"*.example.com"}, f.Gate.AllowedHosts)
	assert.True(t, f.Gate.BlockPrivateIPs)
	assert.Len(t, f.Handlers, 5)
}

func TestParse_JSON(t *testing.T) {
	f, err := Parse([]byte(`{"handlers": [{"method": "GET", "path": "/x", "response": {"body": "ok"}}]}`))
	require.NoError(t, err)
	require.Len(t, f.Handlers, 1)
	assert.Equal(t, api.UnhandledWarn, f.OnUnhandled)
	assert.Equal(t, "ok", f.Handlers[0].Response.Body)
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		err  error
	}{
		{"nested list", "handlers:\n  - - path: /a\n", ErrNestedHandlers},
		{"not a list", "handlers: {path: /a}\n", ErrParseFile},
		{"bad yaml", "handlers: [\n", ErrParseFile},
		{"bad strategy", "on_unhandled: explode\nhandlers: []\n", api.ErrInvalidConfig},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mocks.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o600))

	f, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, f.Handlers, 5)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, ErrReadFile)
}

func TestCompile_HTTP(t *testing.T) {
	_, e := compileSample(t)

	resp := lookup(t, e, httptest.NewRequest(http.MethodGet, "https://api.test/user/1", nil))
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	assert.Equal(t, "yes", resp.Header.Get("X-Mock"))
	assert.Equal(t, "Ada", gjson.GetBytes(resp.Body, "name").String())

	resp = lookup(t, e, httptest.NewRequest(http.MethodPost, "https://api.test/login", nil))
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Nil(t, lookup(t, e, httptest.NewRequest(http.MethodPost, "https://api.test/login", nil)), "once handler is exhausted")
}

func TestCompile_Sequence(t *testing.T) {
	_, e := compileSample(t)

	var got []string
	for i := 0; i < 4; i++ {
		resp := lookup(t, e, httptest.NewRequest(http.MethodDelete, "https://api.test/poll", nil))
		require.NotNil(t, resp)
		got = append(got, string(resp.Body))
	}
	assert.Equal(t, []string{"first", "second", "last", "last"}, got)
}

func TestCompile_GraphQL(t *testing.T) {
	_, e := compileSample(t)

	body := `{"query":"query GetUser { user { name } }"}`
	r := httptest.NewRequest(http.MethodPost, "https://api.test/graphql", strings.NewReader(body))
	r.Header.Set("Content-Type", "application/json")

	resp := lookup(t, e, r)
	require.NotNil(t, resp)
	assert.Equal(t, "Ada", gjson.GetBytes(resp.Body, "data.user.name").String())

	r = httptest.NewRequest(http.MethodPost, "https://other.test/graphql", strings.NewReader(body))
	r.Header.Set("Content-Type", "application/json")
	assert.Nil(t, lookup(t, e, r))
}

type recordingClient struct {
	u         *url.URL
	sent      []string
	listeners []api.MessageListener
}

func (c *recordingClient) ID() string    { return "ws-1" }
func (c *recordingClient) URL() *url.URL { return c.u }
func (c *recordingClient) Send(_ api.MessageType, data []byte) error {
	c.sent = append(c.sent, string(data))
	return nil
}
func (c *recordingClient) Close(int, string) error { return nil }
func (c *recordingClient) OnMessage(fn api.MessageListener) {
	c.listeners = append(c.listeners, fn)
}

func TestCompile_WebSocket(t *testing.T) {
	f, err := Parse([]byte(sample))
	require.NoError(t, err)
	hs, err := Compile(f.Handlers, discard)
	require.NoError(t, err)

	ws, ok := hs[4].(handler.ConnectionHandler)
	require.True(t, ok)

	u, err := url.Parse("wss://chat.test/rooms/general")
	require.NoError(t, err)
	client := &recordingClient{u: u}
	res, err := ws.Run(context.Background(), &api.Connection{Client: client}, handler.ResolutionContext{})
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, []string{"welcome"}, client.sent)

	require.Len(t, client.listeners, 1)
	msg := &api.Message{Type: api.TextMessage, Data: []byte("ping")}
	client.listeners[0](msg)
	assert.True(t, msg.DefaultPrevented())
	assert.Equal(t, []string{"welcome", "ping"}, client.sent)
}

func TestCompile_Errors(t *testing.T) {
	tests := []struct {
		name string
		def  Definition
		err  error
	}{
		{"unknown kind", Definition{Kind: "smtp"}, ErrUnknownKind},
		{"missing path", Definition{Response: &ResponseSpec{Body: "x"}}, ErrInvalidHandler},
		{"bad path regexp", Definition{PathRegexp: "(", Response: &ResponseSpec{}}, ErrInvalidHandler},
		{"no responses", Definition{Path: "/a"}, ErrMissingResponses},
		{"unknown response", Definition{Path: "/a", Response: &ResponseSpec{Type: "xml"}}, ErrUnknownResponse},
		{"graphql without name", Definition{Kind: KindGraphQL, Operation: "query", Response: &ResponseSpec{}}, ErrInvalidHandler},
		{"graphql subscription", Definition{Kind: KindGraphQL, Operation: "subscription", Name: "S", Response: &ResponseSpec{}}, ErrInvalidHandler},
		{"websocket with response", Definition{Kind: KindWebSocket, Path: "wss://x", Response: &ResponseSpec{}}, ErrInvalidHandler},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Compile(Definitions{tt.def}, discard)
			assert.ErrorIs(t, err, tt.err)
			assert.Contains(t, err.Error(), "handlers[0]")
		})
	}
}

func TestResponseTypes(t *testing.T) {
	tests := []struct {
		spec  ResponseSpec
		check func(t *testing.T, r *api.Response)
	}{
		{ResponseSpec{Type: ResponsePassthrough}, func(t *testing.T, r *api.Response) { assert.True(t, r.IsPassthrough()) }},
		{ResponseSpec{Type: ResponseNetworkError}, func(t *testing.T, r *api.Response) { assert.True(t, r.IsNetworkError()) }},
		{ResponseSpec{Status: 404}, func(t *testing.T, r *api.Response) {
			assert.Equal(t, 404, r.StatusCode)
			assert.Empty(t, r.Body)
		}},
		{ResponseSpec{Body: "hi"}, func(t *testing.T, r *api.Response) {
			assert.Equal(t, "text/plain", r.Header.Get("Content-Type"))
		}},
		{ResponseSpec{Errors: nil, Data: map[string]any{"ok": true}, Status: 207}, func(t *testing.T, r *api.Response) {
			assert.Equal(t, 207, r.StatusCode)
			assert.True(t, gjson.GetBytes(r.Body, "data.ok").Bool())
		}},
	}
	for _, tt := range tests {
		t.Run(tt.spec.typeName(), func(t *testing.T) {
			p, err := buildPlan([]ResponseSpec{tt.spec})
			require.NoError(t, err)
			tt.check(t, p.responses[0])
		})
	}
}

func TestRegister_Duplicate(t *testing.T) {
	assert.Panics(t, func() { Register(ResponseText, textResponse) })
	assert.Contains(t, RegisteredTypes(), ResponseNetworkError)
}
