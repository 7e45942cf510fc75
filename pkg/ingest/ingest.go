// Package ingest orchestrates webhook ingestion: it resolves the sender,
// records the message in the ledger, attaches its media and hands the
// message to the worker pool for memory extraction.
//
// Every step is idempotent, so a provider redelivering the same webhook any
// number of times produces exactly one user, one message, one media file per
// distinct payload and, eventually, one memory.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/papercomputeco/mnemo/pkg/eventstream"
	"github.com/papercomputeco/mnemo/pkg/identity"
	"github.com/papercomputeco/mnemo/pkg/ingest/worker"
	"github.com/papercomputeco/mnemo/pkg/ledger"
	"github.com/papercomputeco/mnemo/pkg/logger"
	"github.com/papercomputeco/mnemo/pkg/media"
	"github.com/papercomputeco/mnemo/pkg/recorder"
	"github.com/papercomputeco/mnemo/pkg/storage"
)

// ErrInvalidEvent is returned for inbound events that cannot be recorded.
var ErrInvalidEvent = errors.New("invalid inbound event")

// MediaRef points at a media payload hosted by the provider.
type MediaRef struct {
	URL         string `json:"url"`
	ContentType string `json:"content_type"`
}

// InboundEvent is a provider-neutral inbound message.
type InboundEvent struct {
	MessageSid  string          `json:"message_sid"`
	SecondaryID string          `json:"secondary_id,omitempty"`
	Body        string          `json:"body"`
	Kind        string          `json:"kind,omitempty"`
	From        string          `json:"from"`
	To          string          `json:"to"`
	WaID        string          `json:"wa_id,omitempty"`
	ProfileName string          `json:"profile_name,omitempty"`
	Media       []MediaRef      `json:"media,omitempty"`
	RawPayload  json.RawMessage `json:"raw_payload,omitempty"`
}

// Result is the outcome of ingesting one event.
type Result struct {
	User    *storage.User
	Message *storage.Message

	// IsNew is false when the event was a redelivery.
	IsNew bool

	// Reply is the bot response already recorded for a redelivered message,
	// empty when none exists yet.
	Reply string

	// Media holds the attachments recorded by this call.
	Media []*media.Attached

	// MediaErrors counts attachments that could not be fetched or recorded.
	MediaErrors int

	// Queued reports whether a memory job was enqueued.
	Queued bool
}

// Enqueuer accepts memory jobs.
type Enqueuer interface {
	Enqueue(job worker.Job) bool
}

// Config holds the service's collaborators. Fetcher, Publisher and Queue
// are optional.
type Config struct {
	Identity  *identity.Store
	Ledger    *ledger.Ledger
	Media     *media.Registry
	Recorder  *recorder.Recorder
	Fetcher   media.Source
	Publisher eventstream.Publisher
	Queue     Enqueuer
	Logger    *slog.Logger
}

// Service ingests inbound events.
type Service struct {
	config Config
	logger *slog.Logger
}

// NewService creates an ingestion service.
func NewService(cfg Config) (*Service, error) {
	if cfg.Identity == nil || cfg.Ledger == nil {
		return nil, errors.New("ingest service requires an identity store and a ledger")
	}
	if cfg.Media == nil && cfg.Fetcher != nil {
		return nil, errors.New("ingest service has a media fetcher but no media registry")
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Nop()
	}
	return &Service{config: cfg, logger: cfg.Logger}, nil
}

// Ingest records an inbound event. A redelivered event returns the stored
// message and any reply already recorded for it without side effects.
func (s *Service) Ingest(ctx context.Context, ev InboundEvent) (*Result, error) {
	if strings.TrimSpace(ev.MessageSid) == "" {
		return nil, fmt.Errorf("%w: %w", ErrInvalidEvent, ledger.ErrMissingProviderID)
	}

	user, _, err := s.config.Identity.Resolve(ctx, identity.Contact{
		ExternalID:  ev.WaID,
		Phone:       ev.From,
		DisplayName: ev.ProfileName,
	})
	if err != nil {
		if errors.Is(err, identity.ErrInvalidContact) {
			return nil, fmt.Errorf("%w: %w", ErrInvalidEvent, err)
		}
		return nil, err
	}

	msg, isNew, err := s.config.Ledger.RecordMessage(ctx, ev.MessageSid, ledger.Fields{
		UserID:              user.ID,
		SecondaryProviderID: ev.SecondaryID,
		Body:                ev.Body,
		Kind:                MessageKind(ev.Kind, ev.Media),
		From:                ev.From,
		To:                  ev.To,
		NumMedia:            len(ev.Media),
		RawPayload:          ev.RawPayload,
	})
	if err != nil {
		if errors.Is(err, ledger.ErrInvalidKind) || errors.Is(err, ledger.ErrMissingProviderID) {
			return nil, fmt.Errorf("%w: %w", ErrInvalidEvent, err)
		}
		return nil, err
	}

	res := &Result{User: user, Message: msg, IsNew: isNew}
	if !isNew {
		res.Reply = s.storedReply(ctx, msg.ID)
		return res, nil
	}

	s.attachMedia(ctx, msg, ev.Media, res)
	s.publish(ctx, user, msg, res)
	res.Queued = s.enqueue(msg)

	s.logger.Info("message ingested",
		"user_id", user.ID,
		"message_id", msg.ID,
		"provider_message_id", msg.ProviderMessageID,
		"num_media", msg.NumMedia,
		"media_errors", res.MediaErrors,
		"queued", res.Queued,
	)
	return res, nil
}

func (s *Service) storedReply(ctx context.Context, messageID int64) string {
	if s.config.Recorder == nil {
		return ""
	}
	in, err := s.config.Recorder.Interaction(ctx, messageID)
	if err != nil {
		if !storage.IsNotFound(err) {
			s.logger.Warn("could not load stored reply", "message_id", messageID, "error", err)
		}
		return ""
	}
	return in.BotResponse
}

// attachMedia downloads and records each attachment. Failures are logged and
// counted; the message stays recorded either way.
func (s *Service) attachMedia(ctx context.Context, msg *storage.Message, refs []MediaRef, res *Result) {
	if len(refs) == 0 {
		return
	}
	if s.config.Media == nil || s.config.Fetcher == nil {
		s.logger.Warn("media attachments skipped, no media fetcher configured",
			"message_id", msg.ID,
			"num_media", len(refs),
		)
		res.MediaErrors = len(refs)
		return
	}

	for i, ref := range refs {
		data, err := s.config.Fetcher.Fetch(ctx, ref.URL)
		if err != nil {
			s.logger.Error("media download failed",
				"message_id", msg.ID,
				"index", i,
				"error", err,
			)
			res.MediaErrors++
			continue
		}

		attached, err := s.config.Media.Attach(ctx, msg.ID, media.Attachment{
			ProviderMediaID: media.ProviderMediaID(ref.URL),
			ContentType:     ref.ContentType,
			Data:            data,
		})
		if err != nil {
			s.logger.Error("media not recorded",
				"message_id", msg.ID,
				"index", i,
				"error", err,
			)
			res.MediaErrors++
			continue
		}
		res.Media = append(res.Media, attached)
	}
}

func (s *Service) publish(ctx context.Context, user *storage.User, msg *storage.Message, res *Result) {
	if s.config.Publisher == nil {
		return
	}

	meta := &eventstream.MessageMeta{
		UserID:            user.ID,
		MessageID:         msg.ID,
		ProviderMessageID: msg.ProviderMessageID,
		Kind:              string(msg.Kind),
		NumMedia:          msg.NumMedia,
	}
	for _, a := range res.Media {
		meta.MediaHashes = append(meta.MediaHashes, a.File.ContentHash)
		if a.IsNew {
			meta.NewMediaHashes = append(meta.NewMediaHashes, a.File.ContentHash)
		}
	}

	event := eventstream.NewEvent(eventstream.EventTypeMessageIngested, msg.ProviderMessageID)
	event.Message = meta
	if err := s.config.Publisher.Publish(ctx, event); err != nil {
		s.logger.Warn("failed to publish message event",
			"message_id", msg.ID,
			"error", err,
		)
	}
}

func (s *Service) enqueue(msg *storage.Message) bool {
	if s.config.Queue == nil {
		return false
	}
	return s.config.Queue.Enqueue(worker.Job{
		MessageID:         msg.ID,
		UserID:            msg.UserID,
		ProviderMessageID: msg.ProviderMessageID,
	})
}

// MessageKind derives a message kind from an explicit provider type or,
// failing that, from the first attachment's content type.
func MessageKind(explicit string, refs []MediaRef) storage.MessageKind {
	if k := storage.MessageKind(strings.ToLower(strings.TrimSpace(explicit))); k.Valid() {
		return k
	}
	if len(refs) == 0 {
		return storage.KindText
	}

	ct := strings.ToLower(refs[0].ContentType)
	switch {
	case strings.HasPrefix(ct, "image/"):
		return storage.KindImage
	case strings.HasPrefix(ct, "video/"):
		return storage.KindVideo
	case strings.HasPrefix(ct, "audio/"):
		return storage.KindAudio
	default:
		return storage.KindDocument
	}
}
