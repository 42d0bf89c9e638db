package api

import (
	"errors"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResponse_CloneIsDeep(t *testing.T) {
	orig := Text(http.StatusOK, "hello")
	orig.Header.Set("X-Test", "1")

	c := orig.Clone()
	c.Body[0] = 'j'
	c.Header.Set("X-Test", "2")

	assert.Equal(t, "hello", string(orig.Body))
	assert.Equal(t, "1", orig.Header.Get("X-Test"))
}

func TestResponse_JSON(t *testing.T) {
	resp, err := JSON(http.StatusCreated, map[string]string{"id": "42"})
	require.NoError(t, err)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	assert.JSONEq(t, `{"id":"42"}`, string(resp.Body))
	assert.Equal(t, "201 Created", resp.Status())
}

func TestResponse_Passthrough(t *testing.T) {
	assert.True(t, Passthrough().IsPassthrough())
	assert.False(t, NewResponse(http.StatusFound, nil).IsPassthrough())
	assert.False(t, (*Response)(nil).IsPassthrough())
}

func TestResponse_NetworkError(t *testing.T) {
	assert.True(t, NetworkError().IsNetworkError())
	assert.False(t, Text(http.StatusOK, "").IsNetworkError())
}

func TestResponse_Cookies(t *testing.T) {
	resp := Text(http.StatusOK, "")
	resp.Header.Add("Set-Cookie", "session=abc; Path=/")
	resp.Header.Add("Set-Cookie", "theme=dark")

	cookies := resp.Cookies()
	require.Len(t, cookies, 2)
	assert.Equal(t, "session", cookies[0].Name)
	assert.Equal(t, "abc", cookies[0].Value)
}

func TestResponse_HTTP(t *testing.T) {
	resp := Text(http.StatusTeapot, "short and stout")
	got := resp.HTTP(nil)

	assert.Equal(t, http.StatusTeapot, got.StatusCode)
	assert.Equal(t, "418 I'm a teapot", got.Status)
	assert.Equal(t, "15", got.Header.Get("Content-Length"))
	body, err := io.ReadAll(got.Body)
	require.NoError(t, err)
	assert.Equal(t, "short and stout", string(body))
}

func TestHalt(t *testing.T) {
	err := Halt(Text(http.StatusUnauthorized, "nope"))
	var halt *HaltError
	require.True(t, errors.As(err, &halt))
	assert.Equal(t, http.StatusUnauthorized, halt.Response.StatusCode)
}
