// Package eventstream publishes transport-neutral events about ingested
// messages and recorded memories.
//
// Events are emitted after the corresponding rows are committed. Delivery is
// at-least-once: consumers deduplicate on Key, which is the provider message
// id for message events and the memory's external id for memory events.
package eventstream

import (
	"time"

	"github.com/google/uuid"
)

const (
	// SchemaVersionV1 is the first version of the event payload schema.
	SchemaVersionV1 = 1

	// EventTypeMessageIngested is emitted after a new message is recorded.
	EventTypeMessageIngested = "mnemo.message.ingested"

	// EventTypeMemoryRecorded is emitted after a new memory is recorded.
	EventTypeMemoryRecorded = "mnemo.memory.recorded"
)

// Event is a transport-neutral event payload.
type Event struct {
	SchemaVersion int          `json:"schema_version"`
	EventType     string       `json:"event_type"`
	EventID       string       `json:"event_id"`
	EmittedAt     time.Time    `json:"emitted_at"`
	Key           string       `json:"key"`
	Message       *MessageMeta `json:"message,omitempty"`
	Memory        *MemoryMeta  `json:"memory,omitempty"`
}

// MessageMeta describes an ingested message.
type MessageMeta struct {
	UserID            int64    `json:"user_id"`
	MessageID         int64    `json:"message_id"`
	ProviderMessageID string   `json:"provider_message_id"`
	Kind              string   `json:"kind"`
	NumMedia          int      `json:"num_media"`
	MediaHashes       []string `json:"media_hashes,omitempty"`
	NewMediaHashes    []string `json:"new_media_hashes,omitempty"`
}

// MemoryMeta describes a recorded memory.
type MemoryMeta struct {
	UserID     int64  `json:"user_id"`
	MemoryID   int64  `json:"memory_id"`
	MessageID  *int64 `json:"message_id,omitempty"`
	ExternalID string `json:"external_id"`
	Kind       string `json:"kind"`
}

// NewEvent stamps a new event with a fresh id and the current time.
func NewEvent(eventType, key string) *Event {
	return &Event{
		SchemaVersion: SchemaVersionV1,
		EventType:     eventType,
		EventID:       uuid.NewString(),
		EmittedAt:     time.Now().UTC(),
		Key:           key,
	}
}
