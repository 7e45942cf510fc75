package sqlstore

import (
	"context"
	"database/sql"
	"errors"

	entsql "entgo.io/ent/dialect/sql"

	"github.com/papercomputeco/mnemo/pkg/storage"
)

var messageColumns = []string{
	"id", "user_id", "provider_message_id", "secondary_provider_id", "body", "kind",
	"from_address", "to_address", "status", "num_media", "raw_payload", "created_at", "updated_at",
}

func scanMessage(s scanner) (*storage.Message, error) {
	var (
		m         = &storage.Message{}
		secondary sql.NullString
		raw       sql.NullString
		kind      string
	)
	if err := s.Scan(&m.ID, &m.UserID, &m.ProviderMessageID, &secondary, &m.Body, &kind,
		&m.From, &m.To, &m.Status, &m.NumMedia, &raw, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return nil, err
	}
	m.SecondaryProviderID = secondary.String
	m.Kind = storage.MessageKind(kind)
	if raw.Valid && raw.String != "" {
		m.RawPayload = []byte(raw.String)
	}
	m.CreatedAt = m.CreatedAt.UTC()
	m.UpdatedAt = m.UpdatedAt.UTC()
	return m, nil
}

// InsertMessage records m unless its provider message id is already known.
func (d *Driver) InsertMessage(ctx context.Context, m *storage.Message) (*storage.Message, bool, error) {
	if m == nil {
		return nil, false, errors.New("cannot store nil message")
	}

	var (
		out   *storage.Message
		isNew bool
	)
	err := d.do(ctx, "insert message", func(ctx context.Context) error {
		now := d.timestamp()
		kind := m.Kind
		if kind == "" {
			kind = storage.KindText
		}
		status := m.Status
		if status == "" {
			status = storage.StatusReceived
		}

		ins := d.builder().Insert(messagesTable).
			Columns("user_id", "provider_message_id", "secondary_provider_id", "body", "kind",
				"from_address", "to_address", "status", "num_media", "raw_payload", "created_at", "updated_at").
			Values(m.UserID, m.ProviderMessageID, nullString(m.SecondaryProviderID), m.Body, string(kind),
				m.From, m.To, status, m.NumMedia, nullJSON(m.RawPayload), now, now).
			OnConflict(entsql.ConflictColumns("provider_message_id"), entsql.DoNothing())

		_, inserted, err := insertReturningID(ctx, d.db, ins)
		if err != nil {
			return err
		}
		if inserted {
			isNew = true
		}
		out, err = d.messageBy(ctx, d.db, "provider_message_id", m.ProviderMessageID)
		return err
	})
	if err != nil {
		return nil, false, err
	}
	return out, isNew, nil
}

// GetMessage retrieves a message by id.
func (d *Driver) GetMessage(ctx context.Context, id int64) (*storage.Message, error) {
	return d.getMessage(ctx, "id", id)
}

// GetMessageByProviderID retrieves a message by provider message id.
func (d *Driver) GetMessageByProviderID(ctx context.Context, providerID string) (*storage.Message, error) {
	return d.getMessage(ctx, "provider_message_id", providerID)
}

func (d *Driver) getMessage(ctx context.Context, col string, v any) (*storage.Message, error) {
	var out *storage.Message
	err := d.do(ctx, "get message", func(ctx context.Context) error {
		var err error
		out, err = d.messageBy(ctx, d.db, col, v)
		return err
	})
	return out, err
}

func (d *Driver) messageBy(ctx context.Context, q querier, col string, v any) (*storage.Message, error) {
	query, args := d.builder().
		Select(messageColumns...).
		From(entsql.Table(messagesTable)).
		Where(entsql.EQ(col, v)).
		Query()
	m, err := scanMessage(q.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.NotFound("message", v)
	}
	return m, err
}

// SetMessageStatus updates a message's status.
func (d *Driver) SetMessageStatus(ctx context.Context, id int64, status string) error {
	return d.do(ctx, "set message status", func(ctx context.Context) error {
		query, args := d.builder().Update(messagesTable).
			Set("status", status).
			Set("updated_at", d.timestamp()).
			Where(entsql.EQ("id", id)).
			Query()
		return execAffecting(ctx, d.db, query, args, "message", id)
	})
}

// DeleteMessage deletes a message. Its memory, interaction and media links
// cascade; media files stay in the registry.
func (d *Driver) DeleteMessage(ctx context.Context, id int64) error {
	return d.do(ctx, "delete message", func(ctx context.Context) error {
		query, args := d.builder().Delete(messagesTable).
			Where(entsql.EQ("id", id)).
			Query()
		return execAffecting(ctx, d.db, query, args, "message", id)
	})
}

// ListPendingMessages returns messages that have no interaction yet and have
// not exhausted their memory attempts, least recently touched first.
func (d *Driver) ListPendingMessages(ctx context.Context, limit int) ([]*storage.Message, error) {
	if limit <= 0 {
		limit = 100
	}

	var out []*storage.Message
	err := d.do(ctx, "list pending messages", func(ctx context.Context) error {
		out = nil
		msgs := d.builder().Table(messagesTable)
		ins := d.builder().Table(interactionsTable)

		query, args := d.builder().
			Select(msgs.Columns(messageColumns...)...).
			From(msgs).
			LeftJoin(ins).
			On(msgs.C("id"), ins.C("source_message_id")).
			Where(entsql.And(
				entsql.IsNull(ins.C("id")),
				entsql.NEQ(msgs.C("status"), storage.StatusMemoryFailed),
			)).
			OrderBy(msgs.C("updated_at"), msgs.C("id")).
			Limit(limit).
			Query()

		rows, err := d.db.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			m, err := scanMessage(rows)
			if err != nil {
				return err
			}
			out = append(out, m)
		}
		return rows.Err()
	})
	return out, err
}
