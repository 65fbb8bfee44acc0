package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// StreamPosition is an opaque cursor into the event stream.
// The events endpoint returns it either as a JSON number or as a string; both decode here.
// StreamPosition 是事件流中的不透明游标。
type StreamPosition string

// UnmarshalJSON accepts both "123" and 123.
func (p *StreamPosition) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*p = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*p = StreamPosition(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("stream position: %w", err)
	}
	*p = StreamPosition(n.String())
	return nil
}

func (p StreamPosition) String() string { return string(p) }

// Event is one entry of the enterprise or user event stream.
type Event struct {
	EventID           string          `json:"event_id"`
	EventType         string          `json:"event_type"`
	CreatedAt         time.Time       `json:"created_at"`
	CreatedBy         json.RawMessage `json:"created_by,omitempty"`
	SessionID         string          `json:"session_id,omitempty"`
	Source            json.RawMessage `json:"source,omitempty"`
	AdditionalDetails json.RawMessage `json:"additional_details,omitempty"`
}

// UnmarshalJSON decodes an event, leaving CreatedAt zero when created_at is absent
// or not an RFC 3339 timestamp.
func (e *Event) UnmarshalJSON(data []byte) error {
	type plain Event
	aux := struct {
		*plain
		CreatedAt json.RawMessage `json:"created_at"`
	}{plain: (*plain)(e)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	e.CreatedAt = parseEventTime(aux.CreatedAt)
	return nil
}

func parseEventTime(raw json.RawMessage) time.Time {
	var s string
	if len(raw) == 0 || json.Unmarshal(raw, &s) != nil {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// EventPage is the body of GET /events.
// Entries is nil when the field was absent, which callers treat as malformed.
type EventPage struct {
	ChunkSize          int            `json:"chunk_size"`
	NextStreamPosition StreamPosition `json:"next_stream_position"`
	Entries            []Event        `json:"entries"`
}

// Valid reports whether the page carries both entries and a cursor.
func (p *EventPage) Valid() bool {
	return p != nil && p.Entries != nil && p.NextStreamPosition != ""
}

// flexibleInt decodes a JSON number or numeric string.
type flexibleInt int

func (f *flexibleInt) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s == "" {
			return nil
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			return fmt.Errorf("expected numeric string, got %q", s)
		}
		*f = flexibleInt(n)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	v, err := n.Int64()
	if err != nil {
		return err
	}
	*f = flexibleInt(v)
	return nil
}
