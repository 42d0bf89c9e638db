package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
)

const (
	// IntentionHeader carries internal instructions on mocked responses.
	IntentionHeader = "X-Netmock-Intention"
	// IntentionPassthrough asks the transport to perform the original request.
	IntentionPassthrough = "passthrough"
)

type responseType int

const (
	responseDefault responseType = iota
	responseError
)

// Response is a mocked response. It is plain data, so it can be cloned
// before being cached and cloned again before every replay.
type Response struct {
	StatusCode int
	StatusText string
	Header     http.Header
	Body       []byte

	kind responseType
}

// NewResponse builds a response with the given status and body.
func NewResponse(status int, body []byte) *Response {
	return &Response{
		StatusCode: status,
		StatusText: http.StatusText(status),
		Header:     make(http.Header),
		Body:       body,
	}
}

// Text builds a text/plain response.
func Text(status int, body string) *Response {
	r := NewResponse(status, []byte(body))
	r.Header.Set("Content-Type", "text/plain")
	return r
}

// JSON builds an application/json response from v.
func JSON(status int, v any) (*Response, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return RawJSON(status, b), nil
}

// RawJSON builds an application/json response from already encoded bytes.
func RawJSON(status int, body []byte) *Response {
	r := NewResponse(status, body)
	r.Header.Set("Content-Type", "application/json")
	return r
}

// NetworkError builds a response that makes the transport fail the
// request instead of answering it.
func NetworkError() *Response {
	return &Response{Header: make(http.Header), kind: responseError}
}

// Passthrough builds the marker response a resolver returns to let the
// original request reach the real network.
func Passthrough() *Response {
	r := NewResponse(http.StatusFound, nil)
	r.Header.Set(IntentionHeader, IntentionPassthrough)
	return r
}

// IsPassthrough reports whether r is the passthrough marker.
func (r *Response) IsPassthrough() bool {
	return r != nil &&
		r.StatusCode == http.StatusFound &&
		strings.EqualFold(r.Header.Get(IntentionHeader), IntentionPassthrough)
}

// IsNetworkError reports whether r was built by NetworkError.
func (r *Response) IsNetworkError() bool {
	return r != nil && r.kind == responseError
}

// Clone returns a deep copy of r.
func (r *Response) Clone() *Response {
	if r == nil {
		return nil
	}
	c := *r
	c.Header = r.Header.Clone()
	if c.Header == nil {
		c.Header = make(http.Header)
	}
	if r.Body != nil {
		c.Body = append([]byte(nil), r.Body...)
	}
	return &c
}

// Status renders "200 OK" style status lines.
func (r *Response) Status() string {
	text := r.StatusText
	if text == "" {
		text = http.StatusText(r.StatusCode)
	}
	return strings.TrimSpace(fmt.Sprintf("%d %s", r.StatusCode, text))
}

// Cookies parses the Set-Cookie headers of r.
func (r *Response) Cookies() []*http.Cookie {
	if r == nil || len(r.Header.Values("Set-Cookie")) == 0 {
		return nil
	}
	return (&http.Response{Header: r.Header}).Cookies()
}

// HTTP converts r into a *http.Response answering req.
func (r *Response) HTTP(req *http.Request) *http.Response {
	header := r.Header.Clone()
	if header == nil {
		header = make(http.Header)
	}
	header.Set("Content-Length", strconv.Itoa(len(r.Body)))
	return &http.Response{
		Status:        r.Status(),
		StatusCode:    r.StatusCode,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(r.Body)),
		ContentLength: int64(len(r.Body)),
		Request:       req,
	}
}

// HaltError carries a response returned as an error by a resolver. The
// handler uses the response as its outcome instead of failing.
type HaltError struct {
	Response *Response
}

func (e *HaltError) Error() string {
	return "halted with response " + e.Response.Status()
}

// Halt short-circuits a resolver with resp.
func Halt(resp *Response) error {
	return &HaltError{Response: resp}
}
