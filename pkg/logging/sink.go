package logging

// Sink receives every event an Emitter produces. Sinks are shared between
// goroutines and serialize their own writes; they must not retain or mutate
// the event after Write returns.
type Sink interface {
	Write(event *Event) error
	Close() error
}
