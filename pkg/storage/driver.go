// Package storage defines the persistence contract for mnemo: users, the
// message ledger, content-addressed media, memories and interactions.
//
// Every "insert" on a Driver is an atomic insert-or-get against a unique
// constraint. Implementations return the stored record together with
// isNew=true only for the caller whose write created the row; every other
// caller, concurrent or later, receives the existing record with isNew=false.
package storage

import (
	"context"
)

// Driver is the full storage backend.
type Driver interface {
	UserStore
	MessageStore
	MediaStore
	MemoryStore
	InteractionStore

	// Stats returns row counts per table.
	Stats(ctx context.Context) (*Stats, error)

	// Close closes the store and releases any resources.
	Close() error
}

// UserStore persists users keyed by their external identifier.
type UserStore interface {
	// InsertUser stores u unless a user with the same ExternalID exists.
	// Returns the stored user and whether it was newly created. An existing
	// user is returned unchanged: its timezone is never overwritten here.
	InsertUser(ctx context.Context, u *User) (*User, bool, error)

	// GetUser retrieves a user by id.
	GetUser(ctx context.Context, id int64) (*User, error)

	// GetUserByExternalID retrieves a user by external identifier.
	GetUserByExternalID(ctx context.Context, externalID string) (*User, error)

	// GetUserByPhone retrieves a user by E.164 phone number.
	GetUserByPhone(ctx context.Context, phone string) (*User, error)

	// SetUserTimezone explicitly changes a user's timezone.
	SetUserTimezone(ctx context.Context, id int64, tz string) error

	// DeleteUser deletes a user and, through cascades, everything they own.
	DeleteUser(ctx context.Context, id int64) error
}

// MessageStore is the idempotent message ledger.
type MessageStore interface {
	// InsertMessage stores m unless a message with the same ProviderMessageID
	// exists. On replay the first stored record is returned untouched.
	InsertMessage(ctx context.Context, m *Message) (*Message, bool, error)

	// GetMessage retrieves a message by id.
	GetMessage(ctx context.Context, id int64) (*Message, error)

	// GetMessageByProviderID retrieves a message by provider message id.
	GetMessageByProviderID(ctx context.Context, providerID string) (*Message, error)

	// SetMessageStatus updates the status, the only mutable message field.
	SetMessageStatus(ctx context.Context, id int64, status string) error

	// DeleteMessage deletes a message. Its memory, interaction and media links
	// cascade; shared media files do not.
	DeleteMessage(ctx context.Context, id int64) error

	// ListPendingMessages returns up to limit messages that have no
	// interaction recorded and are not StatusMemoryFailed. Messages touched
	// least recently come first, so retried messages yield to the rest.
	ListPendingMessages(ctx context.Context, limit int) ([]*Message, error)
}

// MediaStore is the content-addressed media registry.
type MediaStore interface {
	// InsertMedia stores m unless a file with the same ContentHash exists, in
	// which case the existing file's reuse count is incremented in the same
	// transaction and the updated record is returned with isNew=false.
	InsertMedia(ctx context.Context, m *MediaFile) (*MediaFile, bool, error)

	// GetMedia retrieves a media file by id.
	GetMedia(ctx context.Context, id int64) (*MediaFile, error)

	// GetMediaByHash retrieves a media file by content hash.
	GetMediaByHash(ctx context.Context, hash string) (*MediaFile, error)

	// SetMediaLocation records where the bytes were uploaded.
	SetMediaLocation(ctx context.Context, id int64, key, url string) error

	// LinkMedia associates a media file with a message. Linking an already
	// linked pair is a no-op that returns false.
	LinkMedia(ctx context.Context, link *MessageMedia) (bool, error)

	// ListMessageMedia returns the media files linked to a message.
	ListMessageMedia(ctx context.Context, messageID int64) ([]*MediaFile, error)
}

// MemoryStore persists memories. Conversational memories are written
// together with their interaction via InsertTurn.
type MemoryStore interface {
	// InsertTurn atomically stores a conversational memory and its
	// interaction, both keyed on the source message id. The interaction is
	// the record that a turn happened: if one exists for the message, nothing
	// is written and the existing pair is returned with isNew=false. The
	// memory is nil when it was deleted since.
	InsertTurn(ctx context.Context, mem *Memory, in *Interaction) (*Memory, *Interaction, bool, error)

	// InsertDirectMemory stores a memory not tied to a message, keyed on
	// RequestKey.
	InsertDirectMemory(ctx context.Context, mem *Memory) (*Memory, bool, error)

	// GetMemoryByMessage retrieves the memory derived from a message.
	GetMemoryByMessage(ctx context.Context, messageID int64) (*Memory, error)

	// GetMemoryByRequestKey retrieves a direct memory by its request key.
	GetMemoryByRequestKey(ctx context.Context, requestKey string) (*Memory, error)

	// GetMemoryByExternalID retrieves a memory by its externally assigned id.
	GetMemoryByExternalID(ctx context.Context, externalID string) (*Memory, error)

	// UpdateMemoryContent replaces the content of a memory.
	UpdateMemoryContent(ctx context.Context, externalID, content string) error

	// DeleteMemory deletes a memory by its externally assigned id. A
	// conversational memory's interaction stays, so the message is not
	// recorded again.
	DeleteMemory(ctx context.Context, externalID string) error

	// SearchMemories returns a user's memories, newest first, filtered by the
	// query's half-open time range and content substring.
	SearchMemories(ctx context.Context, q MemoryQuery) ([]*Memory, error)
}

// InteractionStore reads interactions.
type InteractionStore interface {
	// GetInteractionByMessage retrieves the interaction for a message.
	GetInteractionByMessage(ctx context.Context, messageID int64) (*Interaction, error)

	// ListInteractions returns a user's most recent interactions, newest first.
	ListInteractions(ctx context.Context, userID int64, limit int) ([]*Interaction, error)
}
