package storage

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// MessageKind enumerates the kinds of inbound messages.
type MessageKind string

const (
	KindText     MessageKind = "text"
	KindImage    MessageKind = "image"
	KindVideo    MessageKind = "video"
	KindAudio    MessageKind = "audio"
	KindDocument MessageKind = "document"
)

// Valid reports whether k is one of the known message kinds.
func (k MessageKind) Valid() bool {
	switch k {
	case KindText, KindImage, KindVideo, KindAudio, KindDocument:
		return true
	}
	return false
}

const (
	// StatusReceived is the status every message is recorded with.
	StatusReceived = "received"

	// StatusMemoryFailed marks a message whose memory attempts are exhausted.
	// It is no longer listed as pending.
	StatusMemoryFailed = "memory_failed"

	statusRetryPrefix = "memory_retry_"
)

// RetryStatus is the status of a message after attempts failed memory jobs.
func RetryStatus(attempts int) string {
	return fmt.Sprintf("%s%d", statusRetryPrefix, attempts)
}

// MemoryAttempts returns how many memory jobs have failed for a message with
// the given status.
func MemoryAttempts(status string) int {
	n, err := strconv.Atoi(strings.TrimPrefix(status, statusRetryPrefix))
	if err != nil || !strings.HasPrefix(status, statusRetryPrefix) || n < 0 {
		return 0
	}
	return n
}

// MemoryKind distinguishes memories derived from a message from direct writes.
type MemoryKind string

const (
	MemoryConversation MemoryKind = "conversation"
	MemoryDirect       MemoryKind = "direct"
)

// InteractionKind classifies an interaction.
type InteractionKind string

const (
	InteractionConversation InteractionKind = "conversation"
	InteractionAPICall      InteractionKind = "api-call"
)

// User is a person known by an external identifier (their WhatsApp id).
type User struct {
	ID          int64     `json:"id"`
	ExternalID  string    `json:"external_id"`
	PhoneNumber string    `json:"phone_number"`
	Timezone    string    `json:"timezone"`
	DisplayName string    `json:"display_name,omitempty"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Message is an inbound message keyed by its provider message id.
type Message struct {
	ID                  int64           `json:"id"`
	UserID              int64           `json:"user_id"`
	ProviderMessageID   string          `json:"provider_message_id"`
	SecondaryProviderID string          `json:"secondary_provider_id,omitempty"`
	Body                string          `json:"body"`
	Kind                MessageKind     `json:"kind"`
	From                string          `json:"from"`
	To                  string          `json:"to"`
	Status              string          `json:"status"`
	NumMedia            int             `json:"num_media"`
	RawPayload          json.RawMessage `json:"raw_payload,omitempty"`
	CreatedAt           time.Time       `json:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at"`
}

// MediaFile is a content-addressed media object. ReuseCount counts how many
// times the same content was recorded after the first insert.
type MediaFile struct {
	ID              int64     `json:"id"`
	ProviderMediaID string    `json:"provider_media_id"`
	ContentType     string    `json:"content_type"`
	ContentHash     string    `json:"content_hash"`
	Size            int64     `json:"size"`
	StorageKey      string    `json:"storage_key,omitempty"`
	StorageURL      string    `json:"storage_url,omitempty"`
	ReuseCount      int64     `json:"reuse_count"`
	IsDuplicate     bool      `json:"is_duplicate"`
	CanonicalID     *int64    `json:"canonical_id,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// References returns the total number of times this content has been recorded.
func (m *MediaFile) References() int64 {
	return m.ReuseCount + 1
}

// Stored reports whether the bytes have been uploaded to blob storage.
func (m *MediaFile) Stored() bool {
	return m.StorageKey != ""
}

// MessageMedia associates a media file with a message.
type MessageMedia struct {
	ID              int64     `json:"id"`
	MessageID       int64     `json:"message_id"`
	MediaID         int64     `json:"media_id"`
	ProviderMediaID string    `json:"provider_media_id,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// Memory is the derived, durable knowledge extracted from a message or
// written directly through the API.
type Memory struct {
	ID              int64           `json:"id"`
	UserID          int64           `json:"user_id"`
	SourceMessageID *int64          `json:"source_message_id,omitempty"`
	RequestKey      string          `json:"request_key,omitempty"`
	ExternalID      string          `json:"external_id"`
	Content         string          `json:"content"`
	Kind            MemoryKind      `json:"kind"`
	Metadata        json.RawMessage `json:"metadata,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// Interaction is one user-visible conversational turn.
type Interaction struct {
	ID              int64           `json:"id"`
	UserID          int64           `json:"user_id"`
	SourceMessageID *int64          `json:"source_message_id,omitempty"`
	MemoryID        *int64          `json:"memory_id,omitempty"`
	UserMessage     string          `json:"user_message"`
	BotResponse     string          `json:"bot_response"`
	Kind            InteractionKind `json:"kind"`
	Sources         []string        `json:"sources"`
	CreatedAt       time.Time       `json:"created_at"`
}

// MemoryQuery filters memories for one user. Start is inclusive and End is
// exclusive; zero values leave that side of the range open.
type MemoryQuery struct {
	UserID int64
	Text   string
	Start  time.Time
	End    time.Time
	Limit  int
}

// Stats holds row counts per table.
type Stats struct {
	Users        int `json:"users"`
	Messages     int `json:"messages"`
	MediaFiles   int `json:"media_files"`
	MediaLinks   int `json:"media_links"`
	Memories     int `json:"memories"`
	Interactions int `json:"interactions"`
}

// Int64Ptr returns a pointer to v.
func Int64Ptr(v int64) *int64 {
	return &v
}
