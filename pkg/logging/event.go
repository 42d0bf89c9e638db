package logging

import (
	"encoding/json"
	"time"
)

// Event is the structured record persisted for every life-cycle
// notification. Required fields: Timestamp, RunID, Service, EventType,
// Summary.
type Event struct {
	Timestamp time.Time       `json:"ts"`
	RunID     string          `json:"run_id"`
	Service   string          `json:"service"`
	EventType string          `json:"event_type"`
	Summary   string          `json:"summary"`
	RequestID string          `json:"request_id,omitempty"`
	Handler   string          `json:"handler,omitempty"`
	Tags      []string        `json:"tags,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

const (
	EventRequestStart        = "request_start"
	EventRequestMatch        = "request_match"
	EventRequestUnhandled    = "request_unhandled"
	EventRequestEnd          = "request_end"
	EventResponseMocked      = "response_mocked"
	EventResponseBypass      = "response_bypass"
	EventUnhandledException  = "unhandled_exception"
	EventConnectionMatch     = "connection_match"
	EventConnectionUnhandled = "connection_unhandled"
	EventGateDecision        = "gate_decision"
)

// RequestData is the payload of request_* events.
type RequestData struct {
	Method string `json:"method"`
	URL    string `json:"url"`
}

// ResponseData is the payload of response_* events.
type ResponseData struct {
	Method     string `json:"method"`
	URL        string `json:"url"`
	StatusCode int    `json:"status_code"`
	StatusText string `json:"status_text,omitempty"`
	BodyBytes  int64  `json:"body_bytes"`
}

// ExceptionData is the payload of unhandled_exception events.
type ExceptionData struct {
	Method string `json:"method,omitempty"`
	URL    string `json:"url"`
	Error  string `json:"error"`
}

// ConnectionData is the payload of connection_* events.
type ConnectionData struct {
	URL       string   `json:"url"`
	Protocols []string `json:"protocols,omitempty"`
}

// GateDecisionData is the payload of gate_decision events.
type GateDecisionData struct {
	Host    string `json:"host"`
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
	Pattern string `json:"pattern,omitempty"`
}
