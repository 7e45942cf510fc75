package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	entsql "entgo.io/ent/dialect/sql"

	"github.com/papercomputeco/mnemo/pkg/storage"
)

var memoryColumns = []string{
	"id", "user_id", "source_message_id", "request_key", "external_id", "content", "kind", "metadata",
	"created_at", "updated_at",
}

var interactionColumns = []string{
	"id", "user_id", "source_message_id", "memory_id", "user_message", "bot_response", "kind", "sources",
	"created_at",
}

func scanMemory(s scanner) (*storage.Memory, error) {
	var (
		m          = &storage.Memory{}
		source     sql.NullInt64
		requestKey sql.NullString
		metadata   sql.NullString
		kind       string
	)
	if err := s.Scan(&m.ID, &m.UserID, &source, &requestKey, &m.ExternalID, &m.Content, &kind, &metadata,
		&m.CreatedAt, &m.UpdatedAt); err != nil {
		return nil, err
	}
	m.SourceMessageID = int64Ptr(source)
	m.RequestKey = requestKey.String
	m.Kind = storage.MemoryKind(kind)
	if metadata.Valid && metadata.String != "" {
		m.Metadata = []byte(metadata.String)
	}
	m.CreatedAt = m.CreatedAt.UTC()
	m.UpdatedAt = m.UpdatedAt.UTC()
	return m, nil
}

func scanInteraction(s scanner) (*storage.Interaction, error) {
	var (
		in      = &storage.Interaction{}
		source  sql.NullInt64
		memory  sql.NullInt64
		sources sql.NullString
		kind    string
	)
	if err := s.Scan(&in.ID, &in.UserID, &source, &memory, &in.UserMessage, &in.BotResponse, &kind, &sources,
		&in.CreatedAt); err != nil {
		return nil, err
	}
	in.SourceMessageID = int64Ptr(source)
	in.MemoryID = int64Ptr(memory)
	in.Kind = storage.InteractionKind(kind)
	if sources.Valid && sources.String != "" {
		if err := json.Unmarshal([]byte(sources.String), &in.Sources); err != nil {
			return nil, fmt.Errorf("failed to decode interaction sources: %w", err)
		}
	}
	in.CreatedAt = in.CreatedAt.UTC()
	return in, nil
}

// InsertTurn stores a conversational memory and its interaction in one
// transaction, both keyed on the source message id. An existing interaction
// means the turn is already recorded, even if its memory was deleted.
func (d *Driver) InsertTurn(ctx context.Context, mem *storage.Memory, in *storage.Interaction) (*storage.Memory, *storage.Interaction, bool, error) {
	if mem == nil || in == nil {
		return nil, nil, false, errors.New("cannot store nil memory or interaction")
	}
	if mem.SourceMessageID == nil {
		return nil, nil, false, errors.New("conversational memory requires a source message id")
	}
	messageID := *mem.SourceMessageID

	sources, err := json.Marshal(nonNilSources(in.Sources))
	if err != nil {
		return nil, nil, false, fmt.Errorf("failed to encode interaction sources: %w", err)
	}

	var (
		outMem *storage.Memory
		outIn  *storage.Interaction
		isNew  bool
	)
	err = d.do(ctx, "insert turn", func(ctx context.Context) error {
		isNew = false
		return d.inTx(ctx, func(tx *sql.Tx) error {
			existing, err := d.interactionBy(ctx, tx, "source_message_id", messageID)
			switch {
			case err == nil:
				outIn = existing
				outMem, err = d.memoryBy(ctx, tx, "source_message_id", messageID)
				if storage.IsNotFound(err) {
					outMem, err = nil, nil
				}
				return err
			case !storage.IsNotFound(err):
				return err
			}

			now := d.timestamp()
			kind := mem.Kind
			if kind == "" {
				kind = storage.MemoryConversation
			}

			insMem := d.builder().Insert(memoriesTable).
				Columns("user_id", "source_message_id", "external_id", "content", "kind", "metadata",
					"created_at", "updated_at").
				Values(mem.UserID, messageID, mem.ExternalID, mem.Content, string(kind), nullJSON(mem.Metadata),
					now, now).
				OnConflict(entsql.ConflictColumns("source_message_id"), entsql.DoNothing())

			memID, inserted, err := insertReturningID(ctx, tx, insMem)
			if err != nil {
				return err
			}
			isNew = inserted

			if inserted {
				inKind := in.Kind
				if inKind == "" {
					inKind = storage.InteractionConversation
				}
				insIn := d.builder().Insert(interactionsTable).
					Columns("user_id", "source_message_id", "memory_id", "user_message", "bot_response", "kind",
						"sources", "created_at").
					Values(in.UserID, messageID, memID, in.UserMessage, in.BotResponse, string(inKind),
						string(sources), now).
					OnConflict(entsql.ConflictColumns("source_message_id"), entsql.DoNothing())
				if _, _, err := insertReturningID(ctx, tx, insIn); err != nil {
					return err
				}
			}

			outMem, err = d.memoryBy(ctx, tx, "source_message_id", messageID)
			if err != nil {
				return err
			}
			outIn, err = d.interactionBy(ctx, tx, "source_message_id", messageID)
			return err
		})
	})
	if err != nil {
		return nil, nil, false, err
	}
	return outMem, outIn, isNew, nil
}

// InsertDirectMemory stores a memory keyed on its request key.
func (d *Driver) InsertDirectMemory(ctx context.Context, mem *storage.Memory) (*storage.Memory, bool, error) {
	if mem == nil {
		return nil, false, errors.New("cannot store nil memory")
	}
	if mem.RequestKey == "" {
		return nil, false, errors.New("direct memory requires a request key")
	}

	var (
		out   *storage.Memory
		isNew bool
	)
	err := d.do(ctx, "insert direct memory", func(ctx context.Context) error {
		now := d.timestamp()
		ins := d.builder().Insert(memoriesTable).
			Columns("user_id", "request_key", "external_id", "content", "kind", "metadata", "created_at", "updated_at").
			Values(mem.UserID, mem.RequestKey, mem.ExternalID, mem.Content, string(storage.MemoryDirect),
				nullJSON(mem.Metadata), now, now).
			OnConflict(entsql.ConflictColumns("request_key"), entsql.DoNothing())

		_, inserted, err := insertReturningID(ctx, d.db, ins)
		if err != nil {
			return err
		}
		if inserted {
			isNew = true
		}
		out, err = d.memoryBy(ctx, d.db, "request_key", mem.RequestKey)
		return err
	})
	if err != nil {
		return nil, false, err
	}
	return out, isNew, nil
}

// GetMemoryByMessage retrieves the memory derived from a message.
func (d *Driver) GetMemoryByMessage(ctx context.Context, messageID int64) (*storage.Memory, error) {
	return d.getMemory(ctx, "source_message_id", messageID)
}

// GetMemoryByRequestKey retrieves a direct memory by its request key.
func (d *Driver) GetMemoryByRequestKey(ctx context.Context, requestKey string) (*storage.Memory, error) {
	return d.getMemory(ctx, "request_key", requestKey)
}

// GetMemoryByExternalID retrieves a memory by its externally assigned id.
func (d *Driver) GetMemoryByExternalID(ctx context.Context, externalID string) (*storage.Memory, error) {
	return d.getMemory(ctx, "external_id", externalID)
}

func (d *Driver) getMemory(ctx context.Context, col string, v any) (*storage.Memory, error) {
	var out *storage.Memory
	err := d.do(ctx, "get memory", func(ctx context.Context) error {
		var err error
		out, err = d.memoryBy(ctx, d.db, col, v)
		return err
	})
	return out, err
}

func (d *Driver) memoryBy(ctx context.Context, q querier, col string, v any) (*storage.Memory, error) {
	query, args := d.builder().
		Select(memoryColumns...).
		From(entsql.Table(memoriesTable)).
		Where(entsql.EQ(col, v)).
		OrderBy("id").
		Limit(1).
		Query()
	m, err := scanMemory(q.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.NotFound("memory", v)
	}
	return m, err
}

// UpdateMemoryContent replaces the content of a memory.
func (d *Driver) UpdateMemoryContent(ctx context.Context, externalID, content string) error {
	return d.do(ctx, "update memory", func(ctx context.Context) error {
		query, args := d.builder().Update(memoriesTable).
			Set("content", content).
			Set("updated_at", d.timestamp()).
			Where(entsql.EQ("external_id", externalID)).
			Query()
		return execAffecting(ctx, d.db, query, args, "memory", externalID)
	})
}

// DeleteMemory deletes a memory. Its interaction keeps the turn with a null
// memory reference.
func (d *Driver) DeleteMemory(ctx context.Context, externalID string) error {
	return d.do(ctx, "delete memory", func(ctx context.Context) error {
		query, args := d.builder().Delete(memoriesTable).
			Where(entsql.EQ("external_id", externalID)).
			Query()
		return execAffecting(ctx, d.db, query, args, "memory", externalID)
	})
}

// SearchMemories returns a user's memories, newest first.
func (d *Driver) SearchMemories(ctx context.Context, q storage.MemoryQuery) ([]*storage.Memory, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = 50
	}

	preds := []*entsql.Predicate{entsql.EQ("user_id", q.UserID)}
	if !q.Start.IsZero() {
		preds = append(preds, entsql.GTE("created_at", q.Start.UTC()))
	}
	if !q.End.IsZero() {
		preds = append(preds, entsql.LT("created_at", q.End.UTC()))
	}
	if q.Text != "" {
		preds = append(preds, entsql.ContainsFold("content", q.Text))
	}

	var out []*storage.Memory
	err := d.do(ctx, "search memories", func(ctx context.Context) error {
		out = nil
		query, args := d.builder().
			Select(memoryColumns...).
			From(entsql.Table(memoriesTable)).
			Where(entsql.And(preds...)).
			OrderBy(entsql.Desc("created_at"), entsql.Desc("id")).
			Limit(limit).
			Query()

		rows, err := d.db.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			m, err := scanMemory(rows)
			if err != nil {
				return err
			}
			out = append(out, m)
		}
		return rows.Err()
	})
	return out, err
}

// GetInteractionByMessage retrieves the interaction for a message.
func (d *Driver) GetInteractionByMessage(ctx context.Context, messageID int64) (*storage.Interaction, error) {
	var out *storage.Interaction
	err := d.do(ctx, "get interaction", func(ctx context.Context) error {
		var err error
		out, err = d.interactionBy(ctx, d.db, "source_message_id", messageID)
		return err
	})
	return out, err
}

func (d *Driver) interactionBy(ctx context.Context, q querier, col string, v any) (*storage.Interaction, error) {
	query, args := d.builder().
		Select(interactionColumns...).
		From(entsql.Table(interactionsTable)).
		Where(entsql.EQ(col, v)).
		Query()
	in, err := scanInteraction(q.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.NotFound("interaction", v)
	}
	return in, err
}

// ListInteractions returns a user's most recent interactions.
func (d *Driver) ListInteractions(ctx context.Context, userID int64, limit int) ([]*storage.Interaction, error) {
	if limit <= 0 {
		limit = 10
	}

	var out []*storage.Interaction
	err := d.do(ctx, "list interactions", func(ctx context.Context) error {
		out = nil
		query, args := d.builder().
			Select(interactionColumns...).
			From(entsql.Table(interactionsTable)).
			Where(entsql.EQ("user_id", userID)).
			OrderBy(entsql.Desc("created_at"), entsql.Desc("id")).
			Limit(limit).
			Query()

		rows, err := d.db.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			in, err := scanInteraction(rows)
			if err != nil {
				return err
			}
			out = append(out, in)
		}
		return rows.Err()
	})
	return out, err
}

func nonNilSources(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
