// Package sqlstore implements storage.Driver over database/sql. Queries are
// built with ent's dialect-aware SQL builder so the same code serves both
// PostgreSQL and SQLite, and the schema is migrated with ent's schema
// migrator.
//
// Every insert-or-get is a single INSERT ... ON CONFLICT (key) DO NOTHING
// RETURNING id followed by a read of the key. Existence is never checked
// before inserting.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"entgo.io/ent/dialect/sql/schema"

	"github.com/papercomputeco/mnemo/pkg/storage"
)

// Classifier maps a dialect-specific driver error onto the storage error
// taxonomy (storage.ErrTransient, storage.ErrConstraint). Errors it does not
// recognize are returned unchanged.
type Classifier func(error) error

// Driver is a dialect-agnostic storage.Driver over a bounded *sql.DB.
type Driver struct {
	db       *sql.DB
	dialect  string
	classify Classifier
	retry    storage.RetryPolicy
	now      func() time.Time
}

var _ storage.Driver = (*Driver)(nil)

// Option configures a Driver.
type Option func(*Driver)

// WithClassifier sets the driver error classifier.
func WithClassifier(c Classifier) Option {
	return func(d *Driver) {
		d.classify = c
	}
}

// WithRetryPolicy sets the retry policy for transient failures.
func WithRetryPolicy(p storage.RetryPolicy) Option {
	return func(d *Driver) {
		d.retry = p
	}
}

// WithClock overrides the clock used for created_at/updated_at.
func WithClock(now func() time.Time) Option {
	return func(d *Driver) {
		d.now = now
	}
}

// Pool bounds the connection pool shared by every component.
type Pool struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// WithPool applies connection pool limits to the wrapped *sql.DB.
func WithPool(p Pool) Option {
	return func(d *Driver) {
		if p.MaxOpenConns > 0 {
			d.db.SetMaxOpenConns(p.MaxOpenConns)
		}
		if p.MaxIdleConns > 0 {
			d.db.SetMaxIdleConns(p.MaxIdleConns)
		}
		if p.ConnMaxLifetime > 0 {
			d.db.SetConnMaxLifetime(p.ConnMaxLifetime)
		}
	}
}

// New wraps db. The dialect is one of entgo.io/ent/dialect's names.
func New(db *sql.DB, dialectName string, opts ...Option) *Driver {
	d := &Driver{
		db:       db,
		dialect:  dialectName,
		classify: func(err error) error { return err },
		retry:    storage.DefaultRetryPolicy,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Migrate creates or updates the schema. Changes are append-only: new
// tables, columns and indexes.
func (d *Driver) Migrate(ctx context.Context) error {
	m, err := schema.NewMigrate(entsql.OpenDB(d.dialect, d.db), schema.WithForeignKeys(true))
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}
	if err := m.Create(ctx, Tables...); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// DB returns the underlying connection pool.
func (d *Driver) DB() *sql.DB {
	return d.db
}

// Close closes the connection pool.
func (d *Driver) Close() error {
	return d.db.Close()
}

// Stats returns row counts per table.
func (d *Driver) Stats(ctx context.Context) (*storage.Stats, error) {
	stats := &storage.Stats{}
	targets := []struct {
		table string
		dst   *int
	}{
		{usersTable, &stats.Users},
		{messagesTable, &stats.Messages},
		{mediaFilesTable, &stats.MediaFiles},
		{messageMediaTable, &stats.MediaLinks},
		{memoriesTable, &stats.Memories},
		{interactionsTable, &stats.Interactions},
	}

	err := d.do(ctx, "count rows", func(ctx context.Context) error {
		for _, t := range targets {
			query, args := d.builder().
				Select(entsql.Count("*")).
				From(entsql.Table(t.table)).
				Query()
			if err := d.db.QueryRowContext(ctx, query, args...).Scan(t.dst); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return stats, nil
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func (d *Driver) builder() *entsql.DialectBuilder {
	return entsql.Dialect(d.dialect)
}

func (d *Driver) timestamp() time.Time {
	return d.now().UTC().Truncate(time.Microsecond)
}

// do runs fn with the retry policy, classifying driver errors on every
// attempt so that only transient failures are retried.
func (d *Driver) do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	err := storage.Retry(ctx, d.retry, func(ctx context.Context) error {
		return d.classify(fn(ctx))
	})
	if err != nil {
		return fmt.Errorf("failed to %s: %w", op, err)
	}
	return nil
}

// inTx runs fn in a transaction. The transaction is rolled back on every
// path that does not reach Commit.
func (d *Driver) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// insertReturningID executes an INSERT ... ON CONFLICT DO NOTHING RETURNING id.
// It reports false, without error, when the conflict clause swallowed the row.
func insertReturningID(ctx context.Context, q querier, ins *entsql.InsertBuilder) (int64, bool, error) {
	query, args := ins.Returning("id").Query()
	var id int64
	err := q.QueryRowContext(ctx, query, args...).Scan(&id)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return 0, false, nil
	case err != nil:
		return 0, false, err
	}
	return id, true, nil
}

// execAffecting executes a statement and returns NotFound when no row
// was affected.
func execAffecting(ctx context.Context, q querier, query string, args []any, entity string, key any) error {
	res, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storage.NotFound(entity, key)
	}
	return nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullInt64(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullJSON(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

func int64Ptr(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	return &v.Int64
}
