package models_test

import (
	"errors"
	"testing"
	"time"

	"github.com/MegaGrindStone/sse-chat/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEvent(t *testing.T) {
	tests := []struct {
		name      string
		payload   string
		want      models.Event
		malformed bool
	}{
		{name: "chunk only", payload: `{"chunk":"A"}`, want: models.Event{Chunk: "A"}},
		{name: "done only", payload: `{"done":true}`, want: models.Event{Done: true}},
		{name: "chunk and done", payload: `{"chunk":"end","done":true}`, want: models.Event{Chunk: "end", Done: true}},
		{name: "empty object", payload: `{}`, want: models.Event{}},
		{name: "unknown fields", payload: `{"chunk":"x","seq":3}`, want: models.Event{Chunk: "x"}},
		{name: "done false", payload: `{"done":false}`, want: models.Event{}},
		{name: "done number", payload: `{"done":1}`, want: models.Event{Done: true}},
		{name: "done zero", payload: `{"done":0}`, want: models.Event{}},
		{name: "done string", payload: `{"done":"yes"}`, want: models.Event{Done: true}},
		{name: "done string false", payload: `{"done":"false"}`, want: models.Event{Done: true}},
		{name: "done string zero", payload: `{"done":"0"}`, want: models.Event{Done: true}},
		{name: "done string blank", payload: `{"done":" "}`, want: models.Event{Done: true}},
		{name: "done string empty", payload: `{"done":""}`, want: models.Event{}},
		{name: "done object", payload: `{"done":{}}`, want: models.Event{Done: true}},
		{name: "done null", payload: `{"done":null}`, want: models.Event{}},
		{name: "not json", payload: `hello`, malformed: true},
		{name: "empty", payload: ``, malformed: true},
		{name: "array", payload: `["chunk"]`, malformed: true},
		{name: "truncated", payload: `{"chunk":"A"`, malformed: true},
		{name: "chunk wrong type", payload: `{"chunk":42}`, malformed: true},
		{name: "chunk wrong type keeps done", payload: `{"chunk":42,"done":true}`, want: models.Event{Done: true}, malformed: true},
		{name: "chunk with done string", payload: `{"chunk":"A","done":"x"}`, want: models.Event{Chunk: "A", Done: true}},
		{name: "invalid json in done", payload: `{"chunk":"A","done":tru}`, malformed: true},
		{name: "done bad number keeps chunk", payload: `{"chunk":"A","done":1e999}`, want: models.Event{Chunk: "A"}, malformed: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := models.ParseEvent([]byte(tt.payload))
			if tt.malformed {
				require.Error(t, err)
				assert.True(t, errors.Is(err, models.ErrMalformedEvent), "got %v", err)
				assert.Equal(t, tt.want, got)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMessageDisplayTimestamp(t *testing.T) {
	loc := time.FixedZone("UTC+3", 3*60*60)
	m := models.Message{Timestamp: time.Date(2024, 5, 1, 13, 4, 5, 120_000_000, loc)}

	assert.Equal(t, "2024-05-01T10:04:05.120Z", m.DisplayTimestamp())
}
