package mockfile

import (
	"context"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/jingkaihe/netmock/internal/errx"
	"github.com/jingkaihe/netmock/pkg/api"
	"github.com/jingkaihe/netmock/pkg/graphql"
	"github.com/jingkaihe/netmock/pkg/handler"
	"github.com/jingkaihe/netmock/pkg/matcher"
)

// Compile turns definitions into handlers, preserving their order.
func Compile(defs Definitions, logger *slog.Logger) ([]handler.Handler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	out := make([]handler.Handler, 0, len(defs))
	for i, def := range defs {
		h, err := def.compile(logger)
		if err != nil {
			return nil, errx.With(err, " (handlers[%d])", i)
		}
		out = append(out, h)
	}
	return out, nil
}

func (d Definition) options(logger *slog.Logger) []handler.Option {
	opts := []handler.Option{handler.WithLogger(logger)}
	if d.Once {
		opts = append(opts, handler.Once())
	}
	return opts
}

func (d Definition) compile(logger *slog.Logger) (handler.Handler, error) {
	switch strings.ToLower(d.Kind) {
	case "", KindHTTP:
		return d.compileHTTP(logger)
	case KindGraphQL:
		return d.compileGraphQL(logger)
	case KindWebSocket:
		return d.compileWebSocket(logger)
	default:
		return nil, errx.With(ErrUnknownKind, ": %q", d.Kind)
	}
}

func (d Definition) path() (matcher.Path, error) {
	switch {
	case d.PathRegexp != "":
		re, err := regexp.Compile(d.PathRegexp)
		if err != nil {
			return matcher.Path{}, errx.With(ErrInvalidHandler, ": path_regexp: %w", err)
		}
		return matcher.Regexp(re), nil
	case d.Path != "":
		return matcher.Pattern(d.Path), nil
	default:
		return matcher.Path{}, errx.With(ErrInvalidHandler, ": path or path_regexp is required")
	}
}

func (d Definition) compileHTTP(logger *slog.Logger) (handler.Handler, error) {
	path, err := d.path()
	if err != nil {
		return nil, err
	}
	p, err := buildPlan(d.specs())
	if err != nil {
		return nil, err
	}

	method := strings.TrimSpace(d.Method)
	r := resolverFor[handler.HTTPInput](p)
	if method == "" || method == "*" || strings.EqualFold(method, "all") {
		return handler.HTTP(handler.AnyMethod(), path, r, d.options(logger)...), nil
	}
	return handler.HTTP(handler.MethodName(method), path, r, d.options(logger)...), nil
}

func (d Definition) compileGraphQL(logger *slog.Logger) (handler.Handler, error) {
	p, err := buildPlan(d.specs())
	if err != nil {
		return nil, err
	}

	opType := graphql.OperationType(strings.ToLower(d.Operation))
	switch opType {
	case "":
		opType = graphql.All
	case graphql.Query, graphql.Mutation, graphql.All:
	default:
		return nil, errx.With(ErrInvalidHandler, ": unsupported operation %q", d.Operation)
	}

	var name handler.OperationName
	switch {
	case d.NameRegexp != "":
		re, err := regexp.Compile(d.NameRegexp)
		if err != nil {
			return nil, errx.With(ErrInvalidHandler, ": name_regexp: %w", err)
		}
		name = handler.NamedRegexp(re)
	case d.Name != "":
		name = handler.Named(d.Name)
	case opType == graphql.All:
		name = handler.NamedRegexp(regexp.MustCompile(`.*`))
	default:
		return nil, errx.With(ErrInvalidHandler, ": name or name_regexp is required for %s operations", opType)
	}

	opts := d.options(logger)
	if d.Endpoint != "" {
		opts = append(opts, handler.Endpoint(matcher.Pattern(d.Endpoint)))
	}
	h, err := handler.GraphQL(opType, name, resolverFor[handler.GraphQLInput](p), opts...)
	if err != nil {
		return nil, errx.Wrap(ErrInvalidHandler, err)
	}
	return h, nil
}

func (d Definition) compileWebSocket(logger *slog.Logger) (handler.Handler, error) {
	path, err := d.path()
	if err != nil {
		return nil, err
	}
	if d.Response != nil || len(d.Responses) > 0 {
		return nil, errx.With(ErrInvalidHandler, ": websocket handlers take send/echo/connect, not responses")
	}

	send := append([]string(nil), d.Send...)
	echo, connect := d.Echo, d.Connect
	listener := func(_ context.Context, in handler.WebSocketInput) error {
		conn := in.Connection
		if echo {
			conn.Client.OnMessage(func(msg *api.Message) {
				msg.PreventDefault()
				_ = conn.Client.Send(msg.Type, msg.Data)
			})
		}
		for _, text := range send {
			if err := conn.Client.Send(api.TextMessage, []byte(text)); err != nil {
				return err
			}
		}
		if connect {
			return conn.Server.Connect()
		}
		return nil
	}
	return handler.WebSocket(path, listener, d.options(logger)...), nil
}

func (d Definition) specs() []ResponseSpec {
	if d.Response != nil {
		return append([]ResponseSpec{*d.Response}, d.Responses...)
	}
	return d.Responses
}

// plan is the precomputed outcome sequence of one handler.
type plan struct {
	responses []*api.Response
	delays    []time.Duration
}

func buildPlan(specs []ResponseSpec) (plan, error) {
	if len(specs) == 0 {
		return plan{}, ErrMissingResponses
	}
	p := plan{
		responses: make([]*api.Response, len(specs)),
		delays:    make([]time.Duration, len(specs)),
	}
	for i, spec := range specs {
		name := spec.typeName()
		factory, ok := LookupFactory(name)
		if !ok {
			return plan{}, errx.With(ErrUnknownResponse, ": %q (known: %s)", name, strings.Join(RegisteredTypes(), ", "))
		}
		resp, err := factory(spec)
		if err != nil {
			return plan{}, err
		}
		p.responses[i] = resp
		p.delays[i] = spec.Delay
	}
	return p, nil
}

// resolverFor answers with a clone of each planned response. More than one
// response yields them in order and then repeats the last one.
func resolverFor[I any](p plan) handler.Resolver[I] {
	last := len(p.responses) - 1
	if last == 0 {
		return handler.Respond(func(ctx context.Context, _ I) (*api.Response, error) {
			if err := sleep(ctx, p.delays[0]); err != nil {
				return nil, err
			}
			return p.responses[0].Clone(), nil
		})
	}
	return handler.Generate(func(ctx context.Context, _ I, yield func(*api.Response) bool) (*api.Response, error) {
		for i := 0; i < last; i++ {
			if err := sleep(ctx, p.delays[i]); err != nil {
				return nil, err
			}
			if !yield(p.responses[i].Clone()) {
				return nil, nil
			}
		}
		if err := sleep(ctx, p.delays[last]); err != nil {
			return nil, err
		}
		return p.responses[last].Clone(), nil
	})
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
