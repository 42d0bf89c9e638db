package frame

import (
	"net/http"
	"sync"

	"github.com/jingkaihe/netmock/pkg/api"
	"github.com/jingkaihe/netmock/pkg/handler"
)

// EventType names a life-cycle event.
type EventType string

const (
	RequestStart        EventType = "request:start"
	RequestMatch        EventType = "request:match"
	RequestUnhandled    EventType = "request:unhandled"
	RequestEnd          EventType = "request:end"
	ResponseMocked      EventType = "response:mocked"
	ResponseBypass      EventType = "response:bypass"
	UnhandledException  EventType = "unhandledException"
	ConnectionMatch     EventType = "connection:match"
	ConnectionUnhandled EventType = "connection:unhandled"
)

// Event is one life-cycle notification about an intercepted unit.
type Event struct {
	Type      EventType
	RequestID string
	Protocol  api.Protocol

	// Request is the memoized clone of an intercepted HTTP request.
	Request *http.Request
	// Response is the mocked response, the real one for ResponseBypass,
	// or the passthrough marker on the RequestEnd of a handler that asked
	// for passthrough.
	Response   *api.Response
	Connection *api.Connection
	// Handler is set on match events and on the RequestEnd of a unit a
	// handler matched without mocking.
	Handler *handler.Info
	Err     error
}

// Listener receives events. Listeners run synchronously on the emitting
// goroutine and must not block.
type Listener func(Event)

type subscription struct {
	id uint64
	fn Listener
}

// Emitter fans events out to listeners.
type Emitter struct {
	mu     sync.RWMutex
	nextID uint64
	byType map[EventType][]subscription
	any    []subscription
}

func NewEmitter() *Emitter {
	return &Emitter{byType: make(map[EventType][]subscription)}
}

// On subscribes fn to events of type t. The returned function removes the
// subscription.
func (e *Emitter) On(t EventType, fn Listener) func() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.nextID++
	id := e.nextID
	e.byType[t] = append(e.byType[t], subscription{id: id, fn: fn})
	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		e.byType[t] = remove(e.byType[t], id)
	}
}

// OnAny subscribes fn to every event.
func (e *Emitter) OnAny(fn Listener) func() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.nextID++
	id := e.nextID
	e.any = append(e.any, subscription{id: id, fn: fn})
	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		e.any = remove(e.any, id)
	}
}

// RemoveAll drops every subscription.
func (e *Emitter) RemoveAll() {
	e.mu.Lock()
	e.byType = make(map[EventType][]subscription)
	e.any = nil
	e.mu.Unlock()
}

// Emit delivers ev to the listeners of its type, then to catch-all
// listeners. A nil emitter drops events.
func (e *Emitter) Emit(ev Event) {
	if e == nil {
		return
	}
	e.mu.RLock()
	subs := make([]subscription, 0, len(e.byType[ev.Type])+len(e.any))
	subs = append(subs, e.byType[ev.Type]...)
	subs = append(subs, e.any...)
	e.mu.RUnlock()

	for _, s := range subs {
		s.fn(ev)
	}
}

func remove(subs []subscription, id uint64) []subscription {
	out := subs[:0:0]
	for _, s := range subs {
		if s.id != id {
			out = append(out, s)
		}
	}
	return out
}
