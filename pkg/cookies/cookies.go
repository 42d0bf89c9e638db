// Package cookies keeps the cookies set by mocked responses so that later
// requests to the same site observe them.
package cookies

import (
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sync"

	"golang.org/x/net/publicsuffix"

	"github.com/jingkaihe/netmock/pkg/api"
)

// Store is a cookie jar scoped by the public suffix list.
type Store struct {
	mu  sync.RWMutex
	jar *cookiejar.Jar
}

func NewStore() *Store {
	return &Store{jar: newJar()}
}

func newJar() *cookiejar.Jar {
	// cookiejar.New never returns an error.
	jar, _ := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	return jar
}

// Save records the Set-Cookie headers of resp as if it had been received
// from u.
func (s *Store) Save(u *url.URL, resp *api.Response) {
	if resp == nil {
		return
	}
	cs := resp.Cookies()
	if len(cs) == 0 {
		return
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	s.jar.SetCookies(u, cs)
}

// Cookies returns the stored cookies applicable to u.
func (s *Store) Cookies(u *url.URL) []*http.Cookie {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.jar.Cookies(u)
}

// Clear drops every stored cookie.
func (s *Store) Clear() {
	s.mu.Lock()
	s.jar = newJar()
	s.mu.Unlock()
}

// RequestCookies merges the cookies stored for req's URL with the ones sent
// in its Cookie header. Header cookies win on name collisions. store may
// be nil.
func RequestCookies(req *http.Request, store *Store) map[string]string {
	out := make(map[string]string)
	if store != nil && req.URL != nil {
		for _, c := range store.Cookies(req.URL) {
			out[c.Name] = c.Value
		}
	}
	for _, c := range req.Cookies() {
		out[c.Name] = c.Value
	}
	return out
}
