package handler

import (
	"context"
	"log/slog"
	"regexp"

	"github.com/jingkaihe/netmock/internal/errx"
	"github.com/jingkaihe/netmock/pkg/api"
	"github.com/jingkaihe/netmock/pkg/cookies"
	"github.com/jingkaihe/netmock/pkg/graphql"
	"github.com/jingkaihe/netmock/pkg/matcher"
)

// GraphQLInput is handed to GraphQL resolvers and operation predicates.
type GraphQLInput struct {
	Request       *api.Request
	RequestID     string
	Params        matcher.Params
	Query         string
	OperationType graphql.OperationType
	OperationName string
	Variables     map[string]any
	Cookies       map[string]string
}

// OperationPredicate decides whether an operation is claimed.
type OperationPredicate func(ctx context.Context, in GraphQLInput) bool

// OperationName selects operations by name.
type OperationName struct {
	name string
	re   *regexp.Regexp
	fn   OperationPredicate
	doc  string
}

// Named matches operations called name.
func Named(name string) OperationName { return OperationName{name: name} }

// NamedRegexp matches operations whose name re accepts. Anonymous
// operations are tested as the empty string.
func NamedRegexp(re *regexp.Regexp) OperationName { return OperationName{re: re} }

// NamedFunc delegates the decision to fn.
func NamedFunc(fn OperationPredicate) OperationName { return OperationName{fn: fn} }

// Document matches the operation declared by a GraphQL document. The
// document must name its operation.
func Document(doc string) OperationName { return OperationName{doc: doc} }

func (n OperationName) String() string {
	switch {
	case n.fn != nil:
		return "[custom predicate]"
	case n.re != nil:
		return n.re.String()
	default:
		return n.name
	}
}

func (n OperationName) matches(ctx context.Context, in GraphQLInput) bool {
	switch {
	case n.fn != nil:
		return n.fn(ctx, in)
	case n.re != nil:
		return n.re.MatchString(in.OperationName)
	default:
		return n.name == in.OperationName
	}
}

// GraphQLParsed is the result of parsing a request for a GraphQL handler.
// Operation is nil when the request is not a GraphQL request or its URL
// did not match the endpoint.
type GraphQLParsed struct {
	Match     matcher.Result
	Cookies   map[string]string
	Operation *graphql.Request
}

// GraphQLHandler matches GraphQL operations by type and name.
type GraphQLHandler struct {
	base
	operationType graphql.OperationType
	operationName OperationName
	endpoint      matcher.Path
	resolver      Resolver[GraphQLInput]
	seq           sequence
	logger        *slog.Logger
}

var _ RequestHandler = (*GraphQLHandler)(nil)

// GraphQL builds a handler for operations of type operationType whose name
// matches name. Use graphql.All to match every operation type.
func GraphQL(operationType graphql.OperationType, name OperationName, r Resolver[GraphQLInput], opts ...Option) (*GraphQLHandler, error) {
	o := buildOptions(opts)

	if name.doc != "" {
		op, err := graphql.ParseDocument(name.doc, operationType)
		if err != nil {
			return nil, errx.Wrap(ErrInvalidHandler, err)
		}
		name = Named(op.Name)
	}

	header := string(operationType)
	if operationType != graphql.All && name.String() != "" {
		header += " " + name.String()
	}
	header += " (origin: " + o.endpoint.String() + ")"

	return &GraphQLHandler{
		base: newBase(Info{
			Header:        header,
			Kind:          KindRequest,
			Variant:       VariantGraphQL,
			Once:          o.once,
			Path:          o.endpoint.String(),
			OperationType: operationType,
			OperationName: name.String(),
		}),
		operationType: operationType,
		operationName: name,
		endpoint:      o.endpoint,
		resolver:      r,
		logger:        o.logger.With("component", "handler", "handler", header),
	}, nil
}

// Query matches query operations.
func Query(name OperationName, r Resolver[GraphQLInput], opts ...Option) (*GraphQLHandler, error) {
	return GraphQL(graphql.Query, name, r, opts...)
}

// Mutation matches mutation operations.
func Mutation(name OperationName, r Resolver[GraphQLInput], opts ...Option) (*GraphQLHandler, error) {
	return GraphQL(graphql.Mutation, name, r, opts...)
}

// Operation matches every GraphQL operation, including anonymous ones.
func Operation(r Resolver[GraphQLInput], opts ...Option) *GraphQLHandler {
	// A regexp name cannot fail construction.
	h, _ := GraphQL(graphql.All, NamedRegexp(regexp.MustCompile(`.*`)), r, opts...)
	return h
}

func (h *GraphQLHandler) Parse(_ context.Context, req *api.Request, rc ResolutionContext) (*GraphQLParsed, error) {
	parsed := &GraphQLParsed{
		Match:   matcher.Match(req.URL(), h.endpoint, rc.BaseURL),
		Cookies: cookies.RequestCookies(req.Raw(), rc.Cookies),
	}
	if !parsed.Match.Matches {
		return parsed, nil
	}
	op, err := graphql.ParseRequest(req)
	if err != nil {
		return nil, err
	}
	parsed.Operation = op
	return parsed, nil
}

// Predicate reports whether h claims req. Anonymous operations are only
// claimed by handlers for every operation type.
func (h *GraphQLHandler) Predicate(ctx context.Context, req *api.Request, parsed *GraphQLParsed) bool {
	if parsed.Operation == nil {
		return false
	}
	op := parsed.Operation
	if op.Name == "" && h.operationType != graphql.All {
		h.logger.Warn(`failed to intercept a GraphQL request: anonymous GraphQL operations are not supported; name this operation or use an operation handler to intercept GraphQL requests regardless of their operation name and type`,
			"method", req.Method(), "url", req.URL().String())
		return false
	}
	if h.operationType != graphql.All && op.Type != h.operationType {
		return false
	}
	return parsed.Match.Matches && h.operationName.matches(ctx, h.input(req, parsed))
}

func (h *GraphQLHandler) input(req *api.Request, parsed *GraphQLParsed) GraphQLInput {
	return GraphQLInput{
		Request:       req,
		RequestID:     req.ID(),
		Params:        parsed.Match.Params,
		Query:         parsed.Operation.Query,
		OperationType: parsed.Operation.Type,
		OperationName: parsed.Operation.Name,
		Variables:     parsed.Operation.Variables,
		Cookies:       parsed.Cookies,
	}
}

func (h *GraphQLHandler) Run(ctx context.Context, req *api.Request, rc ResolutionContext) (*RequestResult, error) {
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

	resp, err := resolve(ctx, &h.base, h.resolver, &h.seq, h.input(req, parsed))
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

func (h *GraphQLHandler) Log(logger *slog.Logger, res *RequestResult) {
	logResult(logger, h.info, res)
}
