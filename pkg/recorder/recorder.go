// Package recorder turns messages into memories and interactions exactly
// once. Inference runs outside any transaction; the memory and its
// interaction are then written together, keyed on the source message, so
// concurrent or repeated attempts converge on a single pair.
package recorder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/papercomputeco/mnemo/pkg/logger"
	"github.com/papercomputeco/mnemo/pkg/memory"
	"github.com/papercomputeco/mnemo/pkg/storage"
)

// MediaOnlyBody stands in for the user message of a turn whose message had
// attachments but no text.
const MediaOnlyBody = "User only sent a media attachment"

// ErrUserMismatch is returned when a message does not belong to the user a
// memory is being recorded for.
var ErrUserMismatch = errors.New("message belongs to another user")

// InferFunc derives a memory from a message. It is only called when the
// message has no memory yet.
type InferFunc func(ctx context.Context, msg *storage.Message) (*memory.Inference, error)

// DirectInferFunc derives a memory for a direct write.
type DirectInferFunc func(ctx context.Context) (*memory.Inference, error)

// Store is the persistence the recorder needs.
type Store interface {
	storage.MemoryStore
	storage.InteractionStore
	GetMessage(ctx context.Context, id int64) (*storage.Message, error)
}

// Turn is a memory with the interaction recorded alongside it.
type Turn struct {
	Memory      *storage.Memory
	Interaction *storage.Interaction

	// IsNew is true only for the call that wrote the pair.
	IsNew bool
}

// Config holds the recorder's collaborators.
type Config struct {
	Store  Store
	Logger *slog.Logger
}

// Recorder records memories and interactions.
type Recorder struct {
	store  Store
	logger *slog.Logger
}

// New creates a recorder.
func New(cfg Config) *Recorder {
	log := cfg.Logger
	if log == nil {
		log = logger.Nop()
	}
	return &Recorder{store: cfg.Store, logger: log}
}

// EnsureMemory returns the turn for a message, running infer and writing the
// memory with its interaction only if no interaction exists yet. Deleting the
// memory later does not make the message eligible again; such a turn is
// returned with a nil Memory.
func (r *Recorder) EnsureMemory(ctx context.Context, messageID, userID int64, infer InferFunc) (*Turn, error) {
	if infer == nil {
		return nil, memory.ErrNotConfigured
	}
	if turn, err := r.existingTurn(ctx, messageID); err != nil || turn != nil {
		return turn, err
	}

	msg, err := r.store.GetMessage(ctx, messageID)
	if err != nil {
		return nil, fmt.Errorf("loading message %d: %w", messageID, err)
	}
	if userID != 0 && msg.UserID != userID {
		return nil, fmt.Errorf("%w: message %d, user %d", ErrUserMismatch, messageID, userID)
	}

	inf, err := runInference(ctx, func(ctx context.Context) (*memory.Inference, error) { return infer(ctx, msg) })
	if err != nil {
		return nil, fmt.Errorf("inferring memory for message %d: %w", messageID, err)
	}

	userMessage := msg.Body
	if strings.TrimSpace(userMessage) == "" && msg.NumMedia > 0 {
		userMessage = MediaOnlyBody
	}

	mem, in, isNew, err := r.store.InsertTurn(ctx,
		&storage.Memory{
			UserID:          msg.UserID,
			SourceMessageID: storage.Int64Ptr(msg.ID),
			ExternalID:      externalID(inf),
			Content:         inf.Text,
			Kind:            storage.MemoryConversation,
		},
		&storage.Interaction{
			UserID:      msg.UserID,
			UserMessage: userMessage,
			BotResponse: inf.Response,
			Kind:        storage.InteractionConversation,
			Sources:     inf.Sources,
		},
	)
	if err != nil {
		return nil, fmt.Errorf("recording turn for message %d: %w", messageID, err)
	}

	if isNew {
		r.logger.Info("memory recorded",
			"message_id", messageID,
			"memory_id", mem.ID,
			"external_id", mem.ExternalID,
		)
	} else {
		r.logger.Debug("turn already recorded by a concurrent attempt", "message_id", messageID)
	}
	return &Turn{Memory: mem, Interaction: in, IsNew: isNew}, nil
}

// existingTurn returns the recorded turn for a message, or nil when there is
// none. The interaction decides: a turn whose memory was deleted stays
// recorded and comes back with a nil Memory.
func (r *Recorder) existingTurn(ctx context.Context, messageID int64) (*Turn, error) {
	in, err := r.store.GetInteractionByMessage(ctx, messageID)
	if storage.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("checking interaction for message %d: %w", messageID, err)
	}

	mem, err := r.store.GetMemoryByMessage(ctx, messageID)
	if storage.IsNotFound(err) {
		return &Turn{Interaction: in}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading memory for message %d: %w", messageID, err)
	}
	return &Turn{Memory: mem, Interaction: in}, nil
}

// CreateMemoryDirect records a memory that is not derived from a message,
// deduplicated on requestKey. An empty key is replaced with a fresh one, so
// such writes are never deduplicated.
func (r *Recorder) CreateMemoryDirect(ctx context.Context, userID int64, requestKey string, metadata []byte, infer DirectInferFunc) (*storage.Memory, bool, error) {
	requestKey = strings.TrimSpace(requestKey)
	if requestKey == "" {
		requestKey = uuid.NewString()
	} else {
		existing, err := r.store.GetMemoryByRequestKey(ctx, requestKey)
		switch {
		case err == nil:
			if existing.UserID != userID {
				return nil, false, fmt.Errorf("%w: request key %s", ErrUserMismatch, requestKey)
			}
			return existing, false, nil
		case !storage.IsNotFound(err):
			return nil, false, fmt.Errorf("checking request key %s: %w", requestKey, err)
		}
	}

	inf, err := runInference(ctx, infer)
	if err != nil {
		return nil, false, fmt.Errorf("inferring direct memory: %w", err)
	}

	mem, isNew, err := r.store.InsertDirectMemory(ctx, &storage.Memory{
		UserID:     userID,
		RequestKey: requestKey,
		ExternalID: externalID(inf),
		Content:    inf.Text,
		Kind:       storage.MemoryDirect,
		Metadata:   metadata,
	})
	if err != nil {
		return nil, false, fmt.Errorf("recording direct memory: %w", err)
	}
	if isNew {
		r.logger.Info("direct memory recorded", "user_id", userID, "memory_id", mem.ID, "request_key", requestKey)
	}
	return mem, isNew, nil
}

// UpdateMemory replaces a memory's content after the inference backend
// revised it.
func (r *Recorder) UpdateMemory(ctx context.Context, externalID, content string) error {
	if err := r.store.UpdateMemoryContent(ctx, externalID, content); err != nil {
		return fmt.Errorf("updating memory %s: %w", externalID, err)
	}
	return nil
}

// DeleteMemory removes a memory. Its interaction is kept.
func (r *Recorder) DeleteMemory(ctx context.Context, externalID string) error {
	if err := r.store.DeleteMemory(ctx, externalID); err != nil {
		return fmt.Errorf("deleting memory %s: %w", externalID, err)
	}
	r.logger.Info("memory deleted", "external_id", externalID)
	return nil
}

// Interaction returns the interaction recorded for a message.
func (r *Recorder) Interaction(ctx context.Context, messageID int64) (*storage.Interaction, error) {
	return r.store.GetInteractionByMessage(ctx, messageID)
}

// RecentInteractions returns a user's most recent interactions, newest first.
func (r *Recorder) RecentInteractions(ctx context.Context, userID int64, limit int) ([]*storage.Interaction, error) {
	return r.store.ListInteractions(ctx, userID, limit)
}

// runInference calls infer and maps every failure other than a missing
// inferer onto memory.ErrInferenceUnavailable.
func runInference(ctx context.Context, infer DirectInferFunc) (*memory.Inference, error) {
	if infer == nil {
		return nil, memory.ErrNotConfigured
	}
	inf, err := infer(ctx)
	if err != nil {
		if errors.Is(err, memory.ErrInferenceUnavailable) || errors.Is(err, memory.ErrNotConfigured) ||
			errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", memory.ErrInferenceUnavailable, err)
	}
	if inf == nil {
		return nil, fmt.Errorf("%w: empty inference", memory.ErrInferenceUnavailable)
	}
	return inf, nil
}

func externalID(inf *memory.Inference) string {
	if inf.ExternalID != "" {
		return inf.ExternalID
	}
	return uuid.NewString()
}
