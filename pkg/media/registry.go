package media

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/papercomputeco/mnemo/pkg/blob"
	"github.com/papercomputeco/mnemo/pkg/logger"
	"github.com/papercomputeco/mnemo/pkg/storage"
)

// Metadata describes a media payload being recorded.
type Metadata struct {
	ProviderMediaID string
	ContentType     string
	Size            int64
}

// Attachment is a downloaded media payload belonging to a message.
type Attachment struct {
	ProviderMediaID string
	ContentType     string
	Data            []byte
}

// Attached is the outcome of attaching one payload to a message.
type Attached struct {
	File *storage.MediaFile

	// IsNew is true when this call created the media file.
	IsNew bool

	// Uploaded is true when this call wrote the bytes to blob storage.
	Uploaded bool

	// Linked is true when this call created the message link.
	Linked bool
}

// Config holds the registry's collaborators. Blob may be nil, in which case
// media is registered and linked but never uploaded.
type Config struct {
	Media  storage.MediaStore
	Blob   blob.Store
	Logger *slog.Logger
}

// Registry records and links content-addressed media.
type Registry struct {
	media  storage.MediaStore
	blob   blob.Store
	logger *slog.Logger
}

// NewRegistry creates a media registry.
func NewRegistry(cfg Config) *Registry {
	log := cfg.Logger
	if log == nil {
		log = logger.Nop()
	}
	return &Registry{media: cfg.Media, blob: cfg.Blob, logger: log}
}

// RecordMedia registers content by hash. The first caller gets isNew=true;
// every later caller gets the existing file with its reuse count bumped.
func (r *Registry) RecordMedia(ctx context.Context, hash string, meta Metadata) (*storage.MediaFile, bool, error) {
	if !ValidHash(hash) {
		return nil, false, fmt.Errorf("%w: %q", ErrInvalidHash, hash)
	}

	file, isNew, err := r.media.InsertMedia(ctx, &storage.MediaFile{
		ProviderMediaID: meta.ProviderMediaID,
		ContentType:     meta.ContentType,
		ContentHash:     hash,
		Size:            meta.Size,
	})
	if err != nil {
		return nil, false, fmt.Errorf("recording media %s: %w", hash, err)
	}
	return file, isNew, nil
}

// LinkMediaToMessage links a media file to a message. Relinking an existing
// pair is a no-op that returns false.
func (r *Registry) LinkMediaToMessage(ctx context.Context, messageID, mediaID int64, providerMediaID string) (bool, error) {
	linked, err := r.media.LinkMedia(ctx, &storage.MessageMedia{
		MessageID:       messageID,
		MediaID:         mediaID,
		ProviderMediaID: providerMediaID,
	})
	if err != nil {
		return false, fmt.Errorf("linking media %d to message %d: %w", mediaID, messageID, err)
	}
	return linked, nil
}

// SetLocation records where a media file's bytes were uploaded.
func (r *Registry) SetLocation(ctx context.Context, mediaID int64, key, url string) error {
	if err := r.media.SetMediaLocation(ctx, mediaID, key, url); err != nil {
		return fmt.Errorf("setting location of media %d: %w", mediaID, err)
	}
	return nil
}

// MessageMedia returns the media linked to a message.
func (r *Registry) MessageMedia(ctx context.Context, messageID int64) ([]*storage.MediaFile, error) {
	return r.media.ListMessageMedia(ctx, messageID)
}

// Attach hashes a payload, records it, uploads it when no earlier call has,
// and links it to the message. A file recorded earlier whose upload never
// completed is uploaded again under the same content-derived key.
func (r *Registry) Attach(ctx context.Context, messageID int64, a Attachment) (*Attached, error) {
	hash := HashContent(a.Data)
	file, isNew, err := r.RecordMedia(ctx, hash, Metadata{
		ProviderMediaID: a.ProviderMediaID,
		ContentType:     a.ContentType,
		Size:            int64(len(a.Data)),
	})
	if err != nil {
		return nil, err
	}
	out := &Attached{File: file, IsNew: isNew}

	if r.blob != nil && (isNew || !file.Stored()) {
		key := StorageKey(hash, a.ContentType)
		url, err := r.blob.Put(ctx, key, a.Data, a.ContentType)
		if err != nil {
			r.logger.Warn("media upload failed, will retry on next sighting",
				"media_id", file.ID,
				"hash", hash,
				"error", err,
			)
		} else {
			if err := r.SetLocation(ctx, file.ID, key, url); err != nil {
				return nil, err
			}
			file.StorageKey = key
			file.StorageURL = url
			out.Uploaded = true
		}
	}

	out.Linked, err = r.LinkMediaToMessage(ctx, messageID, file.ID, a.ProviderMediaID)
	if err != nil {
		return nil, err
	}

	r.logger.Debug("media attached",
		"message_id", messageID,
		"media_id", file.ID,
		"is_new", isNew,
		"uploaded", out.Uploaded,
		"references", file.References(),
	)
	return out, nil
}
