// Package sqlite provides a SQLite-backed storage driver.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"entgo.io/ent/dialect"
	"github.com/mattn/go-sqlite3"

	"github.com/papercomputeco/mnemo/pkg/storage"
	"github.com/papercomputeco/mnemo/pkg/storage/sqlstore"
)

// Driver implements storage.Driver using SQLite.
type Driver struct {
	*sqlstore.Driver
}

// NewDriver creates a new SQLite-backed store and migrates its schema.
// The dbPath is a file path; the connection enables foreign keys, WAL
// journaling, a busy timeout and immediate write transactions so that
// concurrent writers queue instead of failing.
func NewDriver(ctx context.Context, dbPath string, opts ...sqlstore.Option) (*Driver, error) {
	// Open the database using the github.com/mattn/go-sqlite3 driver (registered as "sqlite3")
	db, err := sql.Open("sqlite3", DSN(dbPath))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	opts = append([]sqlstore.Option{sqlstore.WithClassifier(Classify)}, opts...)
	d := &Driver{Driver: sqlstore.New(db, dialect.SQLite, opts...)}

	if err := d.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return d, nil
}

// DSN builds the go-sqlite3 connection string for a database file.
func DSN(dbPath string) string {
	params := "_foreign_keys=on&_busy_timeout=5000&_journal_mode=WAL&_txlock=immediate"
	if strings.Contains(dbPath, "?") {
		return dbPath + "&" + params
	}
	return "file:" + dbPath + "?" + params
}

// Classify maps SQLite errors onto the storage error taxonomy.
func Classify(err error) error {
	if err == nil {
		return nil
	}

	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return err
	}

	switch sqliteErr.Code {
	case sqlite3.ErrBusy, sqlite3.ErrLocked:
		return storage.Classify(storage.ErrTransient, err)
	case sqlite3.ErrConstraint:
		return storage.Classify(storage.ErrConstraint, err)
	}
	return err
}
