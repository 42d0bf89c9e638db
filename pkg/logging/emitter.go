package logging

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/jingkaihe/netmock/internal/errx"
)

// EmitterConfig holds the static metadata stamped onto every event.
type EmitterConfig struct {
	RunID   string // Defaults to a random UUID if empty
	Service string // Name of the process under test, e.g. "checkout-tests"
}

// Ref ties an event to the unit and handler it describes. Both fields
// are optional.
type Ref struct {
	RequestID string
	Handler   string
}

// Emitter stamps run metadata onto events and fans them out to sinks.
// All methods are no-ops on a nil *Emitter.
type Emitter struct {
	config EmitterConfig
	sinks  []Sink
}

// NewEmitter creates an emitter with the given configuration and sinks.
func NewEmitter(cfg EmitterConfig, sinks ...Sink) *Emitter {
	if cfg.RunID == "" {
		cfg.RunID = uuid.NewString()
	}
	return &Emitter{config: cfg, sinks: sinks}
}

// RunID returns the run identifier stamped on every event.
func (e *Emitter) RunID() string {
	if e == nil {
		return ""
	}
	return e.config.RunID
}

// Emit builds an event of the given type and writes it to every sink.
// data is marshaled into the event payload; nil leaves it empty. A failing
// sink does not stop delivery to the others; their errors are joined.
func (e *Emitter) Emit(eventType, summary string, ref Ref, tags []string, data any) error {
	if e == nil {
		return nil
	}
	event, err := e.build(eventType, summary, ref, tags, data)
	if err != nil {
		return err
	}

	var errs []error
	for _, sink := range e.sinks {
		if err := sink.Write(event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (e *Emitter) build(eventType, summary string, ref Ref, tags []string, data any) (*Event, error) {
	event := &Event{
		Timestamp: time.Now().UTC(),
		RunID:     e.config.RunID,
		Service:   e.config.Service,
		EventType: eventType,
		Summary:   summary,
		RequestID: ref.RequestID,
		Handler:   ref.Handler,
		Tags:      tags,
	}
	if data == nil {
		return event, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, errx.Wrap(ErrMarshalData, err)
	}
	event.Data = raw
	return event, nil
}

// Close closes every sink and returns their joined errors.
func (e *Emitter) Close() error {
	if e == nil {
		return nil
	}
	var errs []error
	for _, sink := range e.sinks {
		if err := sink.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
