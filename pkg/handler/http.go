package handler

import (
	"context"
	"log/slog"
	"net/http"
	"regexp"
	"strings"

	"github.com/jingkaihe/netmock/pkg/api"
	"github.com/jingkaihe/netmock/pkg/cookies"
	"github.com/jingkaihe/netmock/pkg/matcher"
)

// Method matches the request method either by name, case-insensitively,
// or by a regular expression.
type Method struct {
	name string
	re   *regexp.Regexp
}

// MethodName matches the method called name.
func MethodName(name string) Method { return Method{name: strings.ToUpper(name)} }

// MethodRegexp matches every method re accepts.
func MethodRegexp(re *regexp.Regexp) Method { return Method{name: re.String(), re: re} }

var anyMethod = Method{name: "ALL", re: regexp.MustCompile(`.+`)}

// AnyMethod matches every request method.
func AnyMethod() Method { return anyMethod }

func (m Method) String() string { return m.name }

func (m Method) matches(method string) bool {
	if m.re != nil {
		return m.re.MatchString(method)
	}
	return strings.EqualFold(m.name, method)
}

// HTTPParsed is the result of parsing a request for an HTTP handler.
type HTTPParsed struct {
	Match   matcher.Result
	Cookies map[string]string
}

// HTTPInput is handed to HTTP resolvers.
type HTTPInput struct {
	Request   *api.Request
	RequestID string
	Params    matcher.Params
	Cookies   map[string]string
}

// HTTPHandler matches requests by method and URL.
type HTTPHandler struct {
	base
	method   Method
	path     matcher.Path
	resolver Resolver[HTTPInput]
	seq      sequence
	logger   *slog.Logger
}

var _ RequestHandler = (*HTTPHandler)(nil)

// HTTP builds a handler for requests whose method matches method and
// whose URL matches path.
func HTTP(method Method, path matcher.Path, r Resolver[HTTPInput], opts ...Option) *HTTPHandler {
	o := buildOptions(opts)
	h := &HTTPHandler{
		base: newBase(Info{
			Header:  method.String() + " " + path.String(),
			Kind:    KindRequest,
			Variant: VariantHTTP,
			Once:    o.once,
			Method:  method.String(),
			Path:    path.String(),
		}),
		method:   method,
		path:     path,
		resolver: r,
		logger:   o.logger.With("component", "handler", "handler", method.String()+" "+path.String()),
	}
	if !path.IsRegexp() && matcher.HasQuery(path.String()) {
		h.logger.Warn(`found a redundant usage of query parameters in the request handler URL; match against a path instead and read query parameters from the request URL`,
			"method", method.String(), "path", path.String())
	}
	return h
}

func All(path string, r Resolver[HTTPInput], opts ...Option) *HTTPHandler {
	return HTTP(anyMethod, matcher.Pattern(path), r, opts...)
}

func Get(path string, r Resolver[HTTPInput], opts ...Option) *HTTPHandler {
	return HTTP(MethodName(http.MethodGet), matcher.Pattern(path), r, opts...)
}

func Head(path string, r Resolver[HTTPInput], opts ...Option) *HTTPHandler {
	return HTTP(MethodName(http.MethodHead), matcher.Pattern(path), r, opts...)
}

func Post(path string, r Resolver[HTTPInput], opts ...Option) *HTTPHandler {
	return HTTP(MethodName(http.MethodPost), matcher.Pattern(path), r, opts...)
}

func Put(path string, r Resolver[HTTPInput], opts ...Option) *HTTPHandler {
	return HTTP(MethodName(http.MethodPut), matcher.Pattern(path), r, opts...)
}

func Patch(path string, r Resolver[HTTPInput], opts ...Option) *HTTPHandler {
	return HTTP(MethodName(http.MethodPatch), matcher.Pattern(path), r, opts...)
}

func Delete(path string, r Resolver[HTTPInput], opts ...Option) *HTTPHandler {
	return HTTP(MethodName(http.MethodDelete), matcher.Pattern(path), r, opts...)
}

func Options(path string, r Resolver[HTTPInput], opts ...Option) *HTTPHandler {
	return HTTP(MethodName(http.MethodOptions), matcher.Pattern(path), r, opts...)
}

// Parse matches the request URL and collects its cookies. It has no
// effect on the handler.
func (h *HTTPHandler) Parse(_ context.Context, req *api.Request, rc ResolutionContext) (*HTTPParsed, error) {
	return &HTTPParsed{
		Match:   matcher.Match(req.URL(), h.path, rc.BaseURL),
		Cookies: cookies.RequestCookies(req.Raw(), rc.Cookies),
	}, nil
}

// Predicate reports whether h claims req.
func (h *HTTPHandler) Predicate(_ context.Context, req *api.Request, parsed *HTTPParsed) bool {
	return h.method.matches(req.Method()) && parsed.Match.Matches
}

func (h *HTTPHandler) Run(ctx context.Context, req *api.Request, rc ResolutionContext) (*RequestResult, error) {
	if h.exhausted() {
		return nil, nil
	}
	clone := req.Clone()

	parsed, err := h.Parse(ctx, req, rc)
	if err != nil {
		return nil, err
	}
	if !h.Predicate(ctx, req, parsed) {
		return nil, nil
	}
	if !h.claim() {
		return nil, nil
	}

	resp, err := resolve(ctx, &h.base, h.resolver, &h.seq, HTTPInput{
		Request:   req,
		RequestID: req.ID(),
		Params:    parsed.Match.Params,
		Cookies:   parsed.Cookies,
	})
	if err != nil {
		return nil, &ResolverError{Handler: h.info, Err: err}
	}
	return &RequestResult{
		Handler:   h,
		Parsed:    parsed,
		Request:   clone,
		RequestID: req.ID(),
		Response:  resp,
	}, nil
}

func (h *HTTPHandler) Log(logger *slog.Logger, res *RequestResult) {
	logResult(logger, h.info, res)
}

func logResult(logger *slog.Logger, info Info, res *RequestResult) {
	if logger == nil || res == nil || res.Response == nil {
		return
	}
	logger.Info(info.Header+" -> "+res.Response.Status(),
		"request_id", res.RequestID,
		"method", res.Request.Method,
		"url", res.Request.URL.String(),
		"handler", info.Header,
	)
}
