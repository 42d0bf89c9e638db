package handler

import (
	"context"
	"errors"
	"iter"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jingkaihe/netmock/pkg/api"
)

// ResolverFunc produces one outcome per call. A nil response means the
// handler matched but has nothing to say about the unit.
type ResolverFunc[I any] func(ctx context.Context, in I) (*api.Response, error)

// GeneratorFunc produces a sequence of outcomes, one per matching unit.
// Each yielded response answers one unit; the returned response answers
// the unit after the last yield and every unit after that. The generator
// is started by the first matching unit and receives that unit's input.
// ctx always refers to the unit currently advancing the generator, so
// each step observes its own unit's deadline and cancellation. Units of
// one handler advance the generator one at a time.
type GeneratorFunc[I any] func(ctx context.Context, in I, yield func(*api.Response) bool) (*api.Response, error)

// Resolver is either a plain resolver function or a generator.
type Resolver[I any] struct {
	fn  ResolverFunc[I]
	gen GeneratorFunc[I]
}

// Respond wraps fn as a resolver.
func Respond[I any](fn ResolverFunc[I]) Resolver[I] {
	return Resolver[I]{fn: fn}
}

// Generate wraps gen as a resolver that keeps its position across units.
func Generate[I any](gen GeneratorFunc[I]) Resolver[I] {
	return Resolver[I]{gen: gen}
}

func (r Resolver[I]) valid() bool {
	return r.fn != nil || r.gen != nil
}

type step struct {
	resp  *api.Response
	err   error
	final bool
}

// sequence is the continuation state of a generator resolver. It lives as
// long as the handler and is advanced only by that handler's runs.
type sequence struct {
	mu   sync.Mutex
	ctx  unitContext
	next func() (step, bool)
	stop func()
	last *api.Response
}

// unitContext delegates to the context of the unit being resolved.
type unitContext struct {
	cur atomic.Pointer[context.Context]
}

func (u *unitContext) set(ctx context.Context) { u.cur.Store(&ctx) }

func (u *unitContext) get() context.Context {
	if p := u.cur.Load(); p != nil {
		return *p
	}
	return context.Background()
}

func (u *unitContext) Deadline() (time.Time, bool) { return u.get().Deadline() }
func (u *unitContext) Done() <-chan struct{}       { return u.get().Done() }
func (u *unitContext) Err() error                  { return u.get().Err() }
func (u *unitContext) Value(key any) any           { return u.get().Value(key) }

// resolve executes r for one claimed unit.
func resolve[I any](ctx context.Context, b *base, r Resolver[I], seq *sequence, in I) (*api.Response, error) {
	if !r.valid() {
		return nil, nil
	}
	if r.gen == nil {
		return settle(guard(func() (*api.Response, error) { return r.fn(ctx, in) }))
	}

	seq.mu.Lock()
	defer seq.mu.Unlock()

	seq.ctx.set(ctx)
	if seq.next == nil {
		seq.next, seq.stop = iter.Pull(func(yield func(step) bool) {
			final, err := r.gen(&seq.ctx, in, func(resp *api.Response) bool {
				return yield(step{resp: resp})
			})
			yield(step{resp: final, err: err, final: true})
		})
	}

	// A generator keeps the handler eligible until it is exhausted.
	b.setUsed(false)

	var (
		st step
		ok bool
	)
	_, err := guard(func() (*api.Response, error) {
		st, ok = seq.next()
		return nil, nil
	})
	if err != nil {
		b.setUsed(true)
		return nil, err
	}
	if !ok {
		st = step{final: true}
	}

	resp, err := settle(st.resp, st.err)
	if err != nil {
		b.setUsed(true)
		seq.finish()
		return nil, err
	}
	if st.final {
		b.setUsed(true)
		seq.finish()
		if resp == nil {
			return seq.last.Clone(), nil
		}
	}
	if resp != nil {
		seq.last = resp.Clone()
	}
	return resp, nil
}

func (s *sequence) finish() {
	if s.stop != nil {
		s.stop()
		s.stop = nil
	}
}

// guard converts a resolver panic into a PanicError.
func guard(fn func() (*api.Response, error)) (resp *api.Response, err error) {
	defer func() {
		if v := recover(); v != nil {
			err = &PanicError{Value: v, Stack: debug.Stack()}
		}
	}()
	return fn()
}

// settle turns a halted resolver into a regular outcome.
func settle(resp *api.Response, err error) (*api.Response, error) {
	var halt *api.HaltError
	if errors.As(err, &halt) {
		return halt.Response, nil
	}
	return resp, err
}
