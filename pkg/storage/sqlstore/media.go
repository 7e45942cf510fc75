package sqlstore

import (
	"context"
	"database/sql"
	"errors"

	entsql "entgo.io/ent/dialect/sql"

	"github.com/papercomputeco/mnemo/pkg/storage"
)

var mediaColumns = []string{
	"id", "provider_media_id", "content_type", "content_hash", "size", "storage_key", "storage_url",
	"reuse_count", "is_duplicate", "canonical_id", "created_at", "updated_at",
}

func scanMedia(s scanner) (*storage.MediaFile, error) {
	var (
		m         = &storage.MediaFile{}
		canonical sql.NullInt64
	)
	if err := s.Scan(&m.ID, &m.ProviderMediaID, &m.ContentType, &m.ContentHash, &m.Size, &m.StorageKey,
		&m.StorageURL, &m.ReuseCount, &m.IsDuplicate, &canonical, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return nil, err
	}
	m.CanonicalID = int64Ptr(canonical)
	m.CreatedAt = m.CreatedAt.UTC()
	m.UpdatedAt = m.UpdatedAt.UTC()
	return m, nil
}

// InsertMedia records m unless its content hash is already known. On a repeat
// hash the reuse count of the existing record is incremented in the same
// transaction as the conflicting insert.
func (d *Driver) InsertMedia(ctx context.Context, m *storage.MediaFile) (*storage.MediaFile, bool, error) {
	if m == nil {
		return nil, false, errors.New("cannot store nil media file")
	}

	var (
		out   *storage.MediaFile
		isNew bool
	)
	err := d.do(ctx, "insert media", func(ctx context.Context) error {
		isNew = false
		return d.inTx(ctx, func(tx *sql.Tx) error {
			now := d.timestamp()
			ins := d.builder().Insert(mediaFilesTable).
				Columns("provider_media_id", "content_type", "content_hash", "size", "storage_key", "storage_url",
					"reuse_count", "is_duplicate", "created_at", "updated_at").
				Values(m.ProviderMediaID, m.ContentType, m.ContentHash, m.Size, m.StorageKey, m.StorageURL,
					0, false, now, now).
				OnConflict(entsql.ConflictColumns("content_hash"), entsql.DoNothing())

			_, inserted, err := insertReturningID(ctx, tx, ins)
			if err != nil {
				return err
			}
			isNew = inserted

			if !inserted {
				query, args := d.builder().Update(mediaFilesTable).
					Add("reuse_count", 1).
					Set("updated_at", now).
					Where(entsql.EQ("content_hash", m.ContentHash)).
					Query()
				if err := execAffecting(ctx, tx, query, args, "media", m.ContentHash); err != nil {
					return err
				}
			}

			out, err = d.mediaBy(ctx, tx, "content_hash", m.ContentHash)
			return err
		})
	})
	if err != nil {
		return nil, false, err
	}
	return out, isNew, nil
}

// GetMedia retrieves a media file by id.
func (d *Driver) GetMedia(ctx context.Context, id int64) (*storage.MediaFile, error) {
	return d.getMedia(ctx, "id", id)
}

// GetMediaByHash retrieves a media file by content hash.
func (d *Driver) GetMediaByHash(ctx context.Context, hash string) (*storage.MediaFile, error) {
	return d.getMedia(ctx, "content_hash", hash)
}

func (d *Driver) getMedia(ctx context.Context, col string, v any) (*storage.MediaFile, error) {
	var out *storage.MediaFile
	err := d.do(ctx, "get media", func(ctx context.Context) error {
		var err error
		out, err = d.mediaBy(ctx, d.db, col, v)
		return err
	})
	return out, err
}

func (d *Driver) mediaBy(ctx context.Context, q querier, col string, v any) (*storage.MediaFile, error) {
	query, args := d.builder().
		Select(mediaColumns...).
		From(entsql.Table(mediaFilesTable)).
		Where(entsql.EQ(col, v)).
		Query()
	m, err := scanMedia(q.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.NotFound("media", v)
	}
	return m, err
}

// SetMediaLocation records where a media file's bytes were uploaded.
func (d *Driver) SetMediaLocation(ctx context.Context, id int64, key, url string) error {
	return d.do(ctx, "set media location", func(ctx context.Context) error {
		query, args := d.builder().Update(mediaFilesTable).
			Set("storage_key", key).
			Set("storage_url", url).
			Set("updated_at", d.timestamp()).
			Where(entsql.EQ("id", id)).
			Query()
		return execAffecting(ctx, d.db, query, args, "media", id)
	})
}

// LinkMedia associates a media file with a message; an existing pair is left
// untouched.
func (d *Driver) LinkMedia(ctx context.Context, link *storage.MessageMedia) (bool, error) {
	if link == nil {
		return false, errors.New("cannot store nil media link")
	}

	var linked bool
	err := d.do(ctx, "link media", func(ctx context.Context) error {
		ins := d.builder().Insert(messageMediaTable).
			Columns("message_id", "media_id", "provider_media_id", "created_at").
			Values(link.MessageID, link.MediaID, link.ProviderMediaID, d.timestamp()).
			OnConflict(entsql.ConflictColumns("message_id", "media_id"), entsql.DoNothing())

		_, inserted, err := insertReturningID(ctx, d.db, ins)
		if err != nil {
			return err
		}
		if inserted {
			linked = true
		}
		return nil
	})
	return linked, err
}

// ListMessageMedia returns the media files linked to a message in link order.
func (d *Driver) ListMessageMedia(ctx context.Context, messageID int64) ([]*storage.MediaFile, error) {
	var out []*storage.MediaFile
	err := d.do(ctx, "list message media", func(ctx context.Context) error {
		out = nil
		files := d.builder().Table(mediaFilesTable)
		links := d.builder().Table(messageMediaTable)

		query, args := d.builder().
			Select(files.Columns(mediaColumns...)...).
			From(files).
			Join(links).
			On(files.C("id"), links.C("media_id")).
			Where(entsql.EQ(links.C("message_id"), messageID)).
			OrderBy(links.C("id")).
			Query()

		rows, err := d.db.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			m, err := scanMedia(rows)
			if err != nil {
				return err
			}
			out = append(out, m)
		}
		return rows.Err()
	})
	return out, err
}
