package models

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// ErrMalformedEvent is returned by ParseEvent when a payload is not a JSON object of the expected shape.
var ErrMalformedEvent = errors.New("malformed event payload")

// Event is a single payload pushed by the chat endpoint. Both fields are optional: a stream is a
// sequence of chunk-bearing events terminated by one event with Done set.
type Event struct {
	// Chunk is a fragment of the reply to append to the accumulated text.
	Chunk string `json:"chunk,omitempty"`
	// Done marks the end of the reply.
	Done Flag `json:"done,omitempty"`
}

// Flag is a loosely typed boolean. Besides JSON booleans it accepts numbers (non-zero is true),
// strings (only the empty string is false, so "false" is true) and null (false).
type Flag bool

// UnmarshalJSON implements json.Unmarshaler.
func (f *Flag) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case len(data) == 0, bytes.Equal(data, []byte("null")), bytes.Equal(data, []byte("false")):
		*f = false
	case bytes.Equal(data, []byte("true")):
		*f = true
	case data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = Flag(s != "")
	case data[0] == '{' || data[0] == '[':
		// Objects and arrays are truthy regardless of their contents.
		*f = true
	default:
		n, err := strconv.ParseFloat(string(data), 64)
		if err != nil {
			return errors.Wrapf(err, "invalid flag value %s", data)
		}
		*f = n != 0
	}
	return nil
}

// ParseEvent decodes one event payload. A payload that is not a JSON object is reported as
// ErrMalformedEvent with a zero Event. Fields are decoded independently: a field of the wrong type
// is left zero and reported as ErrMalformedEvent, while the other fields are still returned.
func ParseEvent(data []byte) (Event, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return Event{}, ErrMalformedEvent
	}

	var raw struct {
		Chunk json.RawMessage `json:"chunk"`
		Done  json.RawMessage `json:"done"`
	}
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return Event{}, errors.Wrap(ErrMalformedEvent, err.Error())
	}

	var ev Event
	var invalid []string
	if len(raw.Chunk) > 0 {
		if err := json.Unmarshal(raw.Chunk, &ev.Chunk); err != nil {
			ev.Chunk = ""
			invalid = append(invalid, "chunk")
		}
	}
	if len(raw.Done) > 0 {
		if err := ev.Done.UnmarshalJSON(raw.Done); err != nil {
			ev.Done = false
			invalid = append(invalid, "done")
		}
	}

	if len(invalid) > 0 {
		return ev, errors.Wrapf(ErrMalformedEvent, "invalid %s", strings.Join(invalid, ", "))
	}
	return ev, nil
}
