package eventlogger

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event is the stored envelope of a notification intent.
type Event struct {
	ID        uuid.UUID         `json:"id,omitempty"`
	Type      string            `json:"event_type,omitempty"`
	Data      any               `json:"event_data,omitempty"`
	Metadata  map[string]string `json:"event_metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

type EventOption func(*Event)

func WithType(eventType string) EventOption {
	return func(e *Event) {
		e.Type = eventType
	}
}

func WithData(data any) EventOption {
	return func(e *Event) {
		e.Data = data
	}
}

func WithMetadata(key, value string) EventOption {
	return func(e *Event) {
		e.Metadata[key] = value
	}
}

func NewEvent(opts ...EventOption) Event {
	e := Event{
		ID:        uuid.New(),
		CreatedAt: time.Now().UTC(),
		Metadata:  make(map[string]string),
	}
	for _, opt := range opts {
		opt(&e)
	}
	return e
}

// StoredEvent is an event read back from storage with its payload still encoded.
type StoredEvent struct {
	ID        uuid.UUID
	Type      string
	Data      json.RawMessage
	Metadata  map[string]string
	CreatedAt time.Time
}

type EventLogger interface {
	Save(ctx context.Context, e Event) error
}
