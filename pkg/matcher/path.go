// Package matcher resolves handler path templates against request URLs.
//
// A template is either a string pattern or a regular expression. String
// patterns support named parameters (":id"), optional (":id?"), repeated
// (":path+", ":path*") and custom-pattern (":id(\\d+)") parameters, plus
// unnamed wildcards ("*") that are keyed by their position.
package matcher

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

// Path is a handler path template.
type Path struct {
	pattern string
	re      *regexp.Regexp
}

// Pattern builds a string path template.
func Pattern(s string) Path { return Path{pattern: s} }

// Regexp builds a regular expression path template. The expression is
// not anchored; it matches anywhere in the clean URL.
func Regexp(re *regexp.Regexp) Path { return Path{re: re} }

// IsRegexp reports whether p is a regular expression template.
func (p Path) IsRegexp() bool { return p.re != nil }

func (p Path) String() string {
	if p.re != nil {
		return p.re.String()
	}
	return p.pattern
}

// Params maps a parameter name, or the decimal index of an unnamed group,
// to its decoded value. Optional parameters that did not match are present
// with a nil value.
type Params map[string]*string

// Get returns the value of name, or "" when it is absent or unset.
func (p Params) Get(name string) string {
	if v := p[name]; v != nil {
		return *v
	}
	return ""
}

// Lookup returns the value of name and whether it was set.
func (p Params) Lookup(name string) (string, bool) {
	v := p[name]
	if v == nil {
		return "", false
	}
	return *v, true
}

// Result is the outcome of matching one URL against one template.
type Result struct {
	Matches bool
	Params  Params
}

// Match reports whether u matches path. Relative string templates are
// rebased against baseURL; with an empty baseURL they are left as they
// are and only match URLs spelled the same way.
func Match(u *url.URL, path Path, baseURL string) Result {
	target := CleanURL(u)

	re := path.re
	if re == nil {
		normalized := AbsoluteURL(stripQuery(path.pattern), baseURL)
		compiled, err := compile(normalized)
		if err != nil {
			return Result{Params: Params{}}
		}
		re = compiled
	}

	loc := re.FindStringSubmatchIndex(target)
	if loc == nil {
		return Result{Params: Params{}}
	}
	return Result{Matches: true, Params: collectParams(re, target, loc)}
}

func collectParams(re *regexp.Regexp, target string, loc []int) Params {
	params := make(Params)
	position := 0
	for i, name := range re.SubexpNames() {
		if i == 0 {
			continue
		}
		key := name
		if key == "" {
			key = strconv.Itoa(position)
			position++
		}
		start, end := loc[2*i], loc[2*i+1]
		if start < 0 {
			params[key] = nil
			continue
		}
		value := decode(target[start:end])
		params[key] = &value
	}
	return params
}

func decode(s string) string {
	if v, err := url.PathUnescape(s); err == nil {
		return v
	}
	return s
}

// CleanURL renders u without its query string and fragment.
func CleanURL(u *url.URL) string {
	if u == nil {
		return ""
	}
	var b strings.Builder
	if u.Scheme != "" {
		b.WriteString(u.Scheme)
		b.WriteString("://")
	}
	b.WriteString(u.Host)
	p := u.EscapedPath()
	if p == "" && u.Host != "" {
		p = "/"
	}
	b.WriteString(p)
	return b.String()
}

// AbsoluteURL rebases a relative template against baseURL. Wildcard and
// absolute templates are returned unchanged, as are relative templates
// when baseURL is empty.
func AbsoluteURL(path, baseURL string) string {
	if strings.HasPrefix(path, "*") || isAbsolute(path) || baseURL == "" {
		return path
	}
	base, err := url.Parse(baseURL)
	if err != nil || base.Host == "" {
		return path
	}
	origin := base.Scheme + "://" + base.Host
	if strings.HasPrefix(path, "/") {
		return origin + path
	}
	dir := base.EscapedPath()
	if i := strings.LastIndex(dir, "/"); i >= 0 {
		dir = dir[:i+1]
	} else {
		dir = "/"
	}
	return origin + dir + strings.TrimPrefix(path, "./")
}

func isAbsolute(path string) bool {
	i := strings.Index(path, "://")
	if i <= 0 {
		return false
	}
	for _, c := range path[:i] {
		if !(c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '+' || c == '-' || c == '.') {
			return false
		}
	}
	return true
}

// HasQuery reports whether a string template carries a query string or
// fragment. Both are ignored when matching.
func HasQuery(pattern string) bool {
	return stripQuery(pattern) != pattern
}

// stripQuery drops the query string and fragment from a template while
// keeping "?" characters that act as parameter modifiers.
func stripQuery(pattern string) string {
	inName := false
	for i := 0; i < len(pattern); i++ {
		c := pattern[i]
		switch {
		case c == '\\':
			i++
			inName = false
		case c == ':' && i+1 < len(pattern) && isNameStart(pattern[i+1]):
			inName = true
		case c == '#':
			return pattern[:i]
		case c == '?':
			prev := byte(0)
			if i > 0 {
				prev = pattern[i-1]
			}
			if inName || prev == ')' || prev == '*' {
				inName = false
				continue
			}
			return pattern[:i]
		case inName && !isNameChar(c):
			inName = false
		}
	}
	return pattern
}
