package model

import (
	"encoding/json"
	"strings"
)

// EventKind is the tag of a stream event frame.
type EventKind string

const (
	EventJobStarted   EventKind = "job_started"
	EventStatusUpdate EventKind = "status_update"
	EventLLMStart     EventKind = "on_llm_start"
	EventLLMNewToken  EventKind = "on_llm_new_token"
	EventToolStart    EventKind = "on_tool_start"
	EventToolEnd      EventKind = "on_tool_end"
	EventResult       EventKind = "result"
	EventError        EventKind = "error"
	EventEndOfStream  EventKind = "end_of_stream"
)

var knownKinds = map[EventKind]struct{}{
	EventJobStarted: {}, EventStatusUpdate: {}, EventLLMStart: {}, EventLLMNewToken: {},
	EventToolStart: {}, EventToolEnd: {}, EventResult: {}, EventError: {}, EventEndOfStream: {},
}

// Known reports whether k belongs to the closed set of recognized kinds.
func (k EventKind) Known() bool {
	_, ok := knownKinds[k]
	return ok
}

// StreamEvent is one decoded frame: {event, data, timestamp, job_id}.
// Data is kept opaque and decoded on demand by the accessors below.
type StreamEvent struct {
	Kind      EventKind       `json:"event"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp json.RawMessage `json:"timestamp,omitempty"`
	JobID     string          `json:"job_id,omitempty"`
}

func (e StreamEvent) fields() map[string]json.RawMessage {
	if len(e.Data) == 0 {
		return nil
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(e.Data, &m); err != nil {
		return nil
	}
	return m
}

// RawText renders a raw JSON value as display text: strings are unquoted,
// anything else is returned as compact JSON. null yields "".
func RawText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	t := strings.TrimSpace(string(raw))
	if t == "null" {
		return ""
	}
	return t
}

func (e StreamEvent) text(keys ...string) string {
	f := e.fields()
	for _, k := range keys {
		if v := RawText(f[k]); v != "" {
			return v
		}
	}
	return ""
}

// Chunk is the token text of an on_llm_new_token event.
func (e StreamEvent) Chunk() string { return e.text("chunk") }

// StatusMessage is the message of a status_update event.
func (e StreamEvent) StatusMessage() string { return e.text("message") }

// ToolName accepts both {tool: "name"} and {tool: {name: "name"}}.
func (e StreamEvent) ToolName() string {
	raw := e.fields()["tool"]
	if len(raw) == 0 {
		return ""
	}
	var obj struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil && obj.Name != "" {
		return obj.Name
	}
	return RawText(raw)
}

// ToolOutput is the output of an on_tool_end event.
func (e StreamEvent) ToolOutput() string { return e.text("output") }

// ResultText is the final answer carried by a result event.
func (e StreamEvent) ResultText() string { return e.text("result", "message") }

// ErrorText is the failure reported by an error event.
func (e StreamEvent) ErrorText() string { return e.text("error", "message") }
