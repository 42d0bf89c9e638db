package api

import (
	"bytes"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/jingkaihe/netmock/internal/errx"
)

// Request is one intercepted HTTP request. The body is buffered on first
// read so any number of handlers can parse it, and the clone handed to
// downstream logging is created once per request.
type Request struct {
	id  string
	raw *http.Request

	bodyOnce sync.Once
	body     []byte
	bodyErr  error

	cloneOnce sync.Once
	clone     *http.Request
}

// NewRequest wraps r as the intercepted unit identified by id.
func NewRequest(id string, r *http.Request) *Request {
	return &Request{id: id, raw: r}
}

func (r *Request) ID() string { return r.id }

// Raw returns the original request as handed over by the transport.
func (r *Request) Raw() *http.Request { return r.raw }

func (r *Request) Method() string { return r.raw.Method }

func (r *Request) URL() *url.URL { return r.raw.URL }

func (r *Request) Header() http.Header { return r.raw.Header }

// Body returns the buffered request body. The original body is consumed
// and closed; the original request is otherwise left untouched.
func (r *Request) Body() ([]byte, error) {
	r.bodyOnce.Do(func() {
		if r.raw.Body == nil || r.raw.Body == http.NoBody {
			return
		}
		b, err := io.ReadAll(r.raw.Body)
		_ = r.raw.Body.Close()
		if err != nil {
			r.bodyErr = errx.Wrap(ErrReadBody, err)
			return
		}
		r.body = b
	})
	return r.body, r.bodyErr
}

// Clone returns a memoized deep copy of the original request, so that
// every handler inspecting the same unit observes the same snapshot.
func (r *Request) Clone() *http.Request {
	r.cloneOnce.Do(func() {
		r.clone = r.Outgoing()
	})
	return r.clone
}

// Outgoing returns a fresh copy of the original request carrying the
// buffered body, ready to be sent to the network.
func (r *Request) Outgoing() *http.Request {
	body, _ := r.Body()
	c := r.raw.Clone(r.raw.Context())
	if r.raw.Body == nil || r.raw.Body == http.NoBody {
		return c
	}
	c.Body = io.NopCloser(bytes.NewReader(body))
	c.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(body)), nil
	}
	c.ContentLength = int64(len(body))
	return c
}

// PublicURL renders the request URL for diagnostics. Requests that target
// the configured base origin are shown relative to it.
func (r *Request) PublicURL(baseURL string) string {
	u := r.raw.URL.String()
	if baseURL == "" {
		return u
	}
	base := strings.TrimSuffix(baseURL, "/")
	if strings.HasPrefix(u, base+"/") {
		return strings.TrimPrefix(u, base)
	}
	return u
}

const (
	// BypassAcceptValue marks a request that must reach the real network
	// without being matched against any handler.
	BypassAcceptValue = "netmock/passthrough"
)

// Bypass returns a copy of req carrying the bypass marker.
func Bypass(req *http.Request) *http.Request {
	c := req.Clone(req.Context())
	c.Header.Add("Accept", BypassAcceptValue)
	return c
}

// IsBypass reports whether req carries the bypass marker.
func IsBypass(req *http.Request) bool {
	for _, v := range req.Header.Values("Accept") {
		if strings.Contains(v, BypassAcceptValue) {
			return true
		}
	}
	return false
}

// StripBypass removes the bypass marker from req in place and keeps any
// other accepted media types.
func StripBypass(req *http.Request) {
	values := req.Header.Values("Accept")
	if len(values) == 0 {
		return
	}
	kept := make([]string, 0, len(values))
	for _, v := range values {
		var parts []string
		for _, part := range strings.Split(v, ",") {
			part = strings.TrimSpace(part)
			if part == "" || part == BypassAcceptValue {
				continue
			}
			parts = append(parts, part)
		}
		if len(parts) > 0 {
			kept = append(kept, strings.Join(parts, ", "))
		}
	}
	req.Header.Del("Accept")
	for _, v := range kept {
		req.Header.Add("Accept", v)
	}
}
