// Package controller keeps the ordered list of active handlers.
//
// Handlers given at construction or through a non-empty Reset form the
// initial pool. Handlers added with Use form the runtime pool, which is
// always consulted first, most recent Use call first.
package controller

import (
	"context"
	"sync"

	"github.com/jingkaihe/netmock/internal/errx"
	"github.com/jingkaihe/netmock/pkg/handler"
)

// Controller is safe for concurrent use.
type Controller struct {
	mu      sync.RWMutex
	initial []handler.Handler
	runtime []handler.Handler

	current []handler.Handler
	byKind  map[handler.Kind][]handler.Handler
}

// New returns a controller whose initial pool is initial.
func New(initial ...handler.Handler) (*Controller, error) {
	if err := validate(initial); err != nil {
		return nil, err
	}
	c := &Controller{initial: append([]handler.Handler(nil), initial...)}
	c.rebuild()
	return c, nil
}

func validate(hs []handler.Handler) error {
	for i, h := range hs {
		if h == nil {
			return errx.With(ErrInvalidHandlers, ": handler at index %d is nil", i)
		}
	}
	return nil
}

// Use prepends hs to the runtime pool, keeping their relative order.
func (c *Controller) Use(hs ...handler.Handler) error {
	if err := validate(hs); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	runtime := make([]handler.Handler, 0, len(hs)+len(c.runtime))
	runtime = append(runtime, hs...)
	c.runtime = append(runtime, c.runtime...)
	c.rebuild()
	return nil
}

// Reset drops the runtime pool. With arguments, hs also replaces the
// initial pool.
func (c *Controller) Reset(hs ...handler.Handler) error {
	if err := validate(hs); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.runtime = nil
	if len(hs) > 0 {
		c.initial = append([]handler.Handler(nil), hs...)
	}
	c.rebuild()
	return nil
}

// Current returns the effective handler order.
func (c *Controller) Current() []handler.Handler {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]handler.Handler(nil), c.current...)
}

// CurrentByKind returns the handlers of kind k in effective order.
func (c *Controller) CurrentByKind(k handler.Kind) []handler.Handler {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]handler.Handler(nil), c.byKind[k]...)
}

// Restore marks every current handler unused. Generator positions are
// kept.
func (c *Controller) Restore() {
	for _, h := range c.Current() {
		h.Restore()
	}
}

// Clone returns a controller with the same pools. Later changes to either
// controller do not affect the other; the handlers themselves are shared.
func (c *Controller) Clone() *Controller {
	c.mu.RLock()
	defer c.mu.RUnlock()
	clone := &Controller{
		initial: append([]handler.Handler(nil), c.initial...),
		runtime: append([]handler.Handler(nil), c.runtime...),
	}
	clone.rebuild()
	return clone
}

// rebuild must be called with mu held for writing.
func (c *Controller) rebuild() {
	current := make([]handler.Handler, 0, len(c.runtime)+len(c.initial))
	current = append(current, c.runtime...)
	current = append(current, c.initial...)

	byKind := make(map[handler.Kind][]handler.Handler)
	for _, h := range current {
		byKind[h.Kind()] = append(byKind[h.Kind()], h)
	}
	c.current = current
	c.byKind = byKind
}

type ctxKey struct{}

// NewContext returns a context that carries c. Transports resolving units
// under that context use c instead of their default controller.
func NewContext(ctx context.Context, c *Controller) context.Context {
	return context.WithValue(ctx, ctxKey{}, c)
}

// FromContext returns the controller stored by NewContext.
func FromContext(ctx context.Context) (*Controller, bool) {
	c, ok := ctx.Value(ctxKey{}).(*Controller)
	return c, ok && c != nil
}
