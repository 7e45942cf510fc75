package sqlstore

import (
	"context"
	"database/sql"
	"errors"

	entsql "entgo.io/ent/dialect/sql"

	"github.com/papercomputeco/mnemo/pkg/storage"
)

var userColumns = []string{
	"id", "external_id", "phone_number", "timezone", "display_name", "active", "created_at", "updated_at",
}

func scanUser(s scanner) (*storage.User, error) {
	u := &storage.User{}
	if err := s.Scan(&u.ID, &u.ExternalID, &u.PhoneNumber, &u.Timezone, &u.DisplayName,
		&u.Active, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	u.CreatedAt = u.CreatedAt.UTC()
	u.UpdatedAt = u.UpdatedAt.UTC()
	return u, nil
}

// InsertUser stores u unless its external id is already known.
func (d *Driver) InsertUser(ctx context.Context, u *storage.User) (*storage.User, bool, error) {
	if u == nil {
		return nil, false, errors.New("cannot store nil user")
	}

	var (
		out   *storage.User
		isNew bool
	)
	err := d.do(ctx, "insert user", func(ctx context.Context) error {
		now := d.timestamp()
		tz := u.Timezone
		if tz == "" {
			tz = "UTC"
		}

		ins := d.builder().Insert(usersTable).
			Columns("external_id", "phone_number", "timezone", "display_name", "active", "created_at", "updated_at").
			Values(u.ExternalID, u.PhoneNumber, tz, u.DisplayName, true, now, now).
			OnConflict(entsql.ConflictColumns("external_id"), entsql.DoNothing())

		_, inserted, err := insertReturningID(ctx, d.db, ins)
		if err != nil {
			return err
		}
		// The insert is autocommitted; a retried read must not demote the
		// caller that created the row.
		if inserted {
			isNew = true
		}
		out, err = d.userBy(ctx, d.db, "external_id", u.ExternalID)
		return err
	})
	if err != nil {
		return nil, false, err
	}
	return out, isNew, nil
}

// GetUser retrieves a user by id.
func (d *Driver) GetUser(ctx context.Context, id int64) (*storage.User, error) {
	return d.getUser(ctx, "id", id)
}

// GetUserByExternalID retrieves a user by external identifier.
func (d *Driver) GetUserByExternalID(ctx context.Context, externalID string) (*storage.User, error) {
	return d.getUser(ctx, "external_id", externalID)
}

// GetUserByPhone retrieves a user by phone number.
func (d *Driver) GetUserByPhone(ctx context.Context, phone string) (*storage.User, error) {
	return d.getUser(ctx, "phone_number", phone)
}

func (d *Driver) getUser(ctx context.Context, col string, v any) (*storage.User, error) {
	var out *storage.User
	err := d.do(ctx, "get user", func(ctx context.Context) error {
		var err error
		out, err = d.userBy(ctx, d.db, col, v)
		return err
	})
	return out, err
}

func (d *Driver) userBy(ctx context.Context, q querier, col string, v any) (*storage.User, error) {
	query, args := d.builder().
		Select(userColumns...).
		From(entsql.Table(usersTable)).
		Where(entsql.EQ(col, v)).
		Query()
	u, err := scanUser(q.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.NotFound("user", v)
	}
	return u, err
}

// SetUserTimezone explicitly changes a user's timezone.
func (d *Driver) SetUserTimezone(ctx context.Context, id int64, tz string) error {
	return d.do(ctx, "set user timezone", func(ctx context.Context) error {
		query, args := d.builder().Update(usersTable).
			Set("timezone", tz).
			Set("updated_at", d.timestamp()).
			Where(entsql.EQ("id", id)).
			Query()
		return execAffecting(ctx, d.db, query, args, "user", id)
	})
}

// DeleteUser deletes a user. Messages, memories and interactions cascade.
func (d *Driver) DeleteUser(ctx context.Context, id int64) error {
	return d.do(ctx, "delete user", func(ctx context.Context) error {
		query, args := d.builder().Delete(usersTable).
			Where(entsql.EQ("id", id)).
			Query()
		return execAffecting(ctx, d.db, query, args, "user", id)
	})
}
