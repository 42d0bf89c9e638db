package graphql

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jingkaihe/netmock/pkg/api"
)

func TestParseQuery(t *testing.T) {
	tests := []struct {
		name          string
		query         string
		operationName string
		want          Operation
	}{
		{
			name:  "named query",
			query: `query GetUser { user { id } }`,
			want:  Operation{Type: Query, Name: "GetUser"},
		},
		{
			name:  "mutation",
			query: `mutation Login($u: String!) { login(username: $u) { token } }`,
			want:  Operation{Type: Mutation, Name: "Login"},
		},
		{
			name:  "shorthand query is anonymous",
			query: `{ user { id } }`,
			want:  Operation{Type: Query},
		},
		{
			name:          "operation name selects operation",
			query:         `query A { a } mutation B { b }`,
			operationName: "B",
			want:          Operation{Type: Mutation, Name: "B"},
		},
		{
			name:          "unknown operation name falls back to first",
			query:         `query A { a } mutation B { b }`,
			operationName: "C",
			want:          Operation{Type: Query, Name: "A"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseQuery(tt.query, tt.operationName)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseQuery_Invalid(t *testing.T) {
	_, err := ParseQuery(`query {`, "")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrParseQuery)
}

func TestParseDocument(t *testing.T) {
	op, err := ParseDocument(`query GetUser { user { id } }`, Query)
	require.NoError(t, err)
	assert.Equal(t, "GetUser", op.Name)

	op, err = ParseDocument(`mutation Logout { logout }`, All)
	require.NoError(t, err)
	assert.Equal(t, Mutation, op.Type)

	_, err = ParseDocument(`query { user { id } }`, Query)
	assert.ErrorIs(t, err, ErrAnonymousOperation)

	_, err = ParseDocument(`mutation Logout { logout }`, Query)
	assert.ErrorIs(t, err, ErrOperationType)
}

func newRequest(r *http.Request) *api.Request {
	return api.NewRequest("req-1", r)
}

func TestParseRequest_Get(t *testing.T) {
	q := url.Values{}
	q.Set("query", `query GetUser($id: ID!) { user(id: $id) { name } }`)
	q.Set("variables", `{"id":"abc-123"}`)
	raw := httptest.NewRequest(http.MethodGet, "http://api.example.com/graphql?"+q.Encode(), nil)

	got, err := ParseRequest(newRequest(raw))
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, Query, got.Type)
	assert.Equal(t, "GetUser", got.Name)
	assert.Equal(t, map[string]any{"id": "abc-123"}, got.Variables)
}

func TestParseRequest_PostJSON(t *testing.T) {
	body := `{"query":"mutation Login($u: String!) { login(username: $u) }","variables":{"u":"john"}}`
	raw := httptest.NewRequest(http.MethodPost, "http://api.example.com/graphql", strings.NewReader(body))
	raw.Header.Set("Content-Type", "application/json")
	req := newRequest(raw)

	got, err := ParseRequest(req)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, Mutation, got.Type)
	assert.Equal(t, "Login", got.Name)
	assert.Equal(t, "john", got.Variables["u"])

	// Parsing twice reads the buffered body.
	again, err := ParseRequest(req)
	require.NoError(t, err)
	assert.Equal(t, got, again)
}

func TestParseRequest_Multipart(t *testing.T) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	require.NoError(t, w.WriteField("operations", `{"query":"mutation Upload($file: Upload!) { upload(file: $file) }","variables":{"file":null}}`))
	require.NoError(t, w.WriteField("map", `{"0":["variables.file"]}`))
	part, err := w.CreateFormFile("0", "avatar.png")
	require.NoError(t, err)
	_, err = part.Write([]byte("png-bytes"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	raw := httptest.NewRequest(http.MethodPost, "http://api.example.com/graphql", &buf)
	raw.Header.Set("Content-Type", w.FormDataContentType())

	got, err := ParseRequest(newRequest(raw))
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Upload", got.Name)

	file, ok := got.Variables["file"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "avatar.png", file["name"])
	assert.EqualValues(t, len("png-bytes"), file["size"])
}

func TestParseRequest_NotGraphQL(t *testing.T) {
	tests := []struct {
		name string
		req  *http.Request
	}{
		{"get without query", httptest.NewRequest(http.MethodGet, "http://api.example.com/graphql", nil)},
		{"post text body", httptest.NewRequest(http.MethodPost, "http://api.example.com/graphql", strings.NewReader("hello"))},
		{"post json without query", httptest.NewRequest(http.MethodPost, "http://api.example.com/graphql", strings.NewReader(`{"a":1}`))},
		{"put", httptest.NewRequest(http.MethodPut, "http://api.example.com/graphql", strings.NewReader(`{"query":"{ a }"}`))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseRequest(newRequest(tt.req))
			require.NoError(t, err)
			assert.Nil(t, got)
		})
	}
}

func TestParseRequest_InvalidQuery(t *testing.T) {
	raw := httptest.NewRequest(http.MethodPost, "http://api.example.com/graphql", strings.NewReader(`{"query":"query {"}`))
	_, err := ParseRequest(newRequest(raw))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrParseQuery)
	assert.Contains(t, err.Error(), "POST http://api.example.com/graphql")
}

func TestResponseBuilders(t *testing.T) {
	resp, err := Data(map[string]any{"user": map[string]any{"name": "John"}})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"data":{"user":{"name":"John"}}}`, string(resp.Body))

	resp, err = Errors(Error{Message: "Not authenticated", Path: []any{"user"}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"errors":[{"message":"Not authenticated","path":["user"]}]}`, string(resp.Body))

	resp, err = Result(map[string]any{"user": nil}, []Error{{Message: "partial"}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"data":{"user":null},"errors":[{"message":"partial"}]}`, string(resp.Body))
}

func TestData_Unmarshalable(t *testing.T) {
	_, err := Data(map[string]any{"ch": make(chan int)})
	assert.ErrorIs(t, err, ErrInvalidResponseData)
}
