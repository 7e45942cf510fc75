// Package memory defines the inference capability mnemo calls to turn an
// inbound message into a durable memory.
//
// An [Inferer] receives the user's message text and a description of any
// attached media, and returns the distilled memory text, the identifier the
// inference backend assigned to it, and a reply for the user. mnemo stores
// the result; it never decides what is worth remembering itself.
//
// Inferers are pluggable via configuration:
//
//	[memory]
//	provider = "local"   # or "ollama"
package memory

import (
	"context"
)

// Inferer extracts a memory from a message. Implementations may call
// remote services and may be slow; callers never hold locks or open
// transactions across Infer.
type Inferer interface {
	// Infer derives a memory from the request. Failures of the backend
	// wrap ErrInferenceUnavailable.
	Infer(ctx context.Context, req Request) (*Inference, error)

	// Close releases inferer resources.
	Close() error
}

// Request is the input to an inference call.
type Request struct {
	// UserID is the internal id of the user the message belongs to.
	UserID int64 `json:"user_id"`

	// Text is the user's message body.
	Text string `json:"text"`

	// MediaContext describes attached media (content types and storage URLs).
	MediaContext []MediaRef `json:"media_context,omitempty"`

	// Metadata is passed through for direct writes.
	Metadata map[string]any `json:"metadata,omitempty"`
}

// MediaRef describes a media item attached to a message.
type MediaRef struct {
	ContentType string `json:"content_type"`
	URL         string `json:"url,omitempty"`
	Hash        string `json:"hash"`
}

// Inference is the output of an inference call.
type Inference struct {
	// Text is the memory content to store.
	Text string `json:"text"`

	// ExternalID is the identifier the backend assigned to the memory.
	ExternalID string `json:"external_id"`

	// Response is the reply shown to the user.
	Response string `json:"response"`

	// Sources lists references the backend used to build the response.
	Sources []string `json:"sources,omitempty"`
}
