package logging

import (
	"log/slog"

	"github.com/jingkaihe/netmock/pkg/frame"
)

var eventTypes = map[frame.EventType]string{
	frame.RequestStart:        EventRequestStart,
	frame.RequestMatch:        EventRequestMatch,
	frame.RequestUnhandled:    EventRequestUnhandled,
	frame.RequestEnd:          EventRequestEnd,
	frame.ResponseMocked:      EventResponseMocked,
	frame.ResponseBypass:      EventResponseBypass,
	frame.UnhandledException:  EventUnhandledException,
	frame.ConnectionMatch:     EventConnectionMatch,
	frame.ConnectionUnhandled: EventConnectionUnhandled,
}

// Recorder persists life-cycle events published on a frame emitter.
type Recorder struct {
	emitter *Emitter
	logger  *slog.Logger
}

func NewRecorder(emitter *Emitter, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{emitter: emitter, logger: logger.With("component", "recorder")}
}

// Attach subscribes the recorder to src. The returned function detaches
// it.
func (r *Recorder) Attach(src *frame.Emitter) func() {
	return src.OnAny(r.Record)
}

// Record converts ev into a structured event and writes it to the sinks.
func (r *Recorder) Record(ev frame.Event) {
	if r.emitter == nil {
		return
	}
	eventType, ok := eventTypes[ev.Type]
	if !ok {
		return
	}

	ref := Ref{RequestID: ev.RequestID}
	if ev.Handler != nil {
		ref.Handler = ev.Handler.Header
	}
	summary, data := describe(ev)
	if err := r.emitter.Emit(eventType, summary, ref, []string{ev.Protocol.String()}, data); err != nil {
		r.logger.Debug("event write failed", "event_type", eventType, "error", err)
	}
}

func describe(ev frame.Event) (string, any) {
	var method, url string
	if ev.Request != nil {
		method, url = ev.Request.Method, ev.Request.URL.String()
	}
	if ev.Connection != nil && ev.Connection.Client != nil && ev.Connection.Client.URL() != nil {
		url = ev.Connection.Client.URL().String()
	}
	unit := url
	if method != "" {
		unit = method + " " + url
	}

	switch ev.Type {
	case frame.ResponseMocked, frame.ResponseBypass:
		if ev.Response == nil {
			return unit, &RequestData{Method: method, URL: url}
		}
		return unit + " -> " + ev.Response.Status(), &ResponseData{
			Method:     method,
			URL:        url,
			StatusCode: ev.Response.StatusCode,
			StatusText: ev.Response.StatusText,
			BodyBytes:  int64(len(ev.Response.Body)),
		}
	case frame.UnhandledException:
		msg := ""
		if ev.Err != nil {
			msg = ev.Err.Error()
		}
		return unit + ": " + msg, &ExceptionData{Method: method, URL: url, Error: msg}
	case frame.ConnectionMatch, frame.ConnectionUnhandled:
		data := &ConnectionData{URL: url}
		if ev.Connection != nil {
			data.Protocols = ev.Connection.Protocols
		}
		if ev.Handler != nil {
			return url + " -> " + ev.Handler.Header, data
		}
		return url, data
	case frame.RequestMatch:
		if ev.Handler != nil {
			return unit + " -> " + ev.Handler.Header, &RequestData{Method: method, URL: url}
		}
	}
	return unit, &RequestData{Method: method, URL: url}
}
