// Package ledger is the idempotent message ledger: every inbound message is
// recorded exactly once, keyed by its provider message id, no matter how
// often the provider redelivers it.
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/papercomputeco/mnemo/pkg/logger"
	"github.com/papercomputeco/mnemo/pkg/storage"
)

var (
	// ErrMissingProviderID is returned when a message has no provider id.
	ErrMissingProviderID = errors.New("missing provider message id")

	// ErrInvalidKind is returned for message kinds outside the known set.
	ErrInvalidKind = errors.New("invalid message kind")
)

// Fields are the message attributes recorded on first delivery.
type Fields struct {
	UserID              int64
	SecondaryProviderID string
	Body                string
	Kind                storage.MessageKind
	From                string
	To                  string
	NumMedia            int
	RawPayload          json.RawMessage
}

// Config holds the ledger's collaborators.
type Config struct {
	Messages storage.MessageStore
	Logger   *slog.Logger
}

// Ledger records messages idempotently.
type Ledger struct {
	messages storage.MessageStore
	logger   *slog.Logger
}

// New creates a ledger.
func New(cfg Config) *Ledger {
	log := cfg.Logger
	if log == nil {
		log = logger.Nop()
	}
	return &Ledger{messages: cfg.Messages, logger: log}
}

// RecordMessage stores the message unless providerID was seen before. A
// replay returns the first stored record, unchanged, with isNew=false.
func (l *Ledger) RecordMessage(ctx context.Context, providerID string, f Fields) (*storage.Message, bool, error) {
	providerID = strings.TrimSpace(providerID)
	if providerID == "" {
		return nil, false, ErrMissingProviderID
	}

	kind := f.Kind
	if kind == "" {
		kind = storage.KindText
	}
	if !kind.Valid() {
		return nil, false, fmt.Errorf("%w: %q", ErrInvalidKind, kind)
	}

	msg, isNew, err := l.messages.InsertMessage(ctx, &storage.Message{
		UserID:              f.UserID,
		ProviderMessageID:   providerID,
		SecondaryProviderID: f.SecondaryProviderID,
		Body:                f.Body,
		Kind:                kind,
		From:                f.From,
		To:                  f.To,
		Status:              storage.StatusReceived,
		NumMedia:            f.NumMedia,
		RawPayload:          f.RawPayload,
	})
	if err != nil {
		return nil, false, fmt.Errorf("recording message %s: %w", providerID, err)
	}

	if isNew {
		l.logger.Debug("message recorded", "message_id", msg.ID, "provider_message_id", providerID)
	} else {
		l.logger.Info("duplicate delivery ignored", "message_id", msg.ID, "provider_message_id", providerID)
	}
	return msg, isNew, nil
}

// UpdateStatus changes a message's status, the only field mutable after
// insert.
func (l *Ledger) UpdateStatus(ctx context.Context, messageID int64, status string) error {
	if err := l.messages.SetMessageStatus(ctx, messageID, status); err != nil {
		return fmt.Errorf("updating status of message %d: %w", messageID, err)
	}
	return nil
}

// Get returns a message by provider id.
func (l *Ledger) Get(ctx context.Context, providerID string) (*storage.Message, error) {
	return l.messages.GetMessageByProviderID(ctx, providerID)
}
