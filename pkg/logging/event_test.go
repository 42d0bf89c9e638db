package logging

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func keys(t *testing.T, v any) map[string]any {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, json.Unmarshal(b, &m))
	return m
}

func TestEvent_WireFormat(t *testing.T) {
	ts := time.Date(2026, 2, 23, 14, 30, 0, 123456789, time.UTC)
	minimal := keys(t, &Event{Timestamp: ts, RunID: "r", Service: "s", EventType: EventRequestStart, Summary: "GET /"})

	for _, k := range []string{"ts", "run_id", "service", "event_type", "summary"} {
		assert.Contains(t, minimal, k)
	}
	for _, k := range []string{"request_id", "handler", "tags", "data"} {
		assert.NotContains(t, minimal, k)
	}

	parsed, err := time.Parse(time.RFC3339Nano, minimal["ts"].(string))
	require.NoError(t, err)
	assert.True(t, parsed.Equal(ts), "timestamps keep sub-second precision")

	full := keys(t, &Event{
		Timestamp: ts,
		RequestID: "req-1",
		Handler:   "GET /user",
		Tags:      []string{"http"},
		Data:      json.RawMessage(`{"status_code":200}`),
	})
	assert.Equal(t, "req-1", full["request_id"])
	assert.Equal(t, map[string]any{"status_code": float64(200)}, full["data"])
}

func TestEventData_ZeroValuesKept(t *testing.T) {
	resp := keys(t, &ResponseData{Method: "GET", URL: "https://x.test/"})
	assert.Contains(t, resp, "status_code")
	assert.Contains(t, resp, "body_bytes")
	assert.NotContains(t, resp, "status_text")

	gate := keys(t, &GateDecisionData{Host: "api.example.com"})
	assert.Equal(t, false, gate["allowed"])
}
