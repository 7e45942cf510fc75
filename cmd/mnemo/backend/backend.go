// Package backend opens the storage, blob, inference and event stream
// backends selected by a mnemo config.
package backend

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/papercomputeco/mnemo/pkg/blob"
	"github.com/papercomputeco/mnemo/pkg/blob/local"
	"github.com/papercomputeco/mnemo/pkg/blob/s3"
	"github.com/papercomputeco/mnemo/pkg/config"
	"github.com/papercomputeco/mnemo/pkg/dotdir"
	"github.com/papercomputeco/mnemo/pkg/eventstream"
	"github.com/papercomputeco/mnemo/pkg/eventstream/kafka"
	"github.com/papercomputeco/mnemo/pkg/eventstream/nop"
	"github.com/papercomputeco/mnemo/pkg/eventstream/rabbitmq"
	"github.com/papercomputeco/mnemo/pkg/memory"
	localmem "github.com/papercomputeco/mnemo/pkg/memory/local"
	"github.com/papercomputeco/mnemo/pkg/memory/ollama"
	"github.com/papercomputeco/mnemo/pkg/storage"
	"github.com/papercomputeco/mnemo/pkg/storage/postgres"
	"github.com/papercomputeco/mnemo/pkg/storage/sqlite"
	"github.com/papercomputeco/mnemo/pkg/storage/sqlstore"
)

const (
	// DefaultSQLiteFile is the database file created in the .mnemo/ dir.
	DefaultSQLiteFile = "mnemo.db"

	// DefaultBlobDir is the local media directory created in the .mnemo/ dir.
	DefaultBlobDir = "media"
)

// Driver is a SQL-backed storage driver.
type Driver interface {
	storage.Driver
	Migrate(ctx context.Context) error
	DB() *sql.DB
}

// RetryPolicy derives the storage retry policy from the configured attempts.
func RetryPolicy(cfg *config.Config) storage.RetryPolicy {
	p := storage.DefaultRetryPolicy
	if cfg.Storage.Retries > 0 {
		p.Attempts = cfg.Storage.Retries
	}
	return p
}

// ResolveSQLitePath returns the configured SQLite path or mnemo.db in the
// resolved .mnemo/ directory.
func ResolveSQLitePath(cfg *config.Config, configDir string) (string, error) {
	if p := strings.TrimSpace(cfg.Storage.SQLitePath); p != "" {
		return p, nil
	}
	return dotdir.NewManager().Path(configDir, DefaultSQLiteFile)
}

// OpenStorage opens and migrates the configured storage driver.
func OpenStorage(ctx context.Context, cfg *config.Config, configDir string, logger *slog.Logger) (Driver, error) {
	opts := []sqlstore.Option{
		sqlstore.WithRetryPolicy(RetryPolicy(cfg)),
		sqlstore.WithPool(sqlstore.Pool{MaxOpenConns: cfg.Storage.MaxOpenConn}),
	}

	switch cfg.Storage.Driver {
	case "", "sqlite":
		path, err := ResolveSQLitePath(cfg, configDir)
		if err != nil {
			return nil, err
		}
		driver, err := sqlite.NewDriver(ctx, path, opts...)
		if err != nil {
			return nil, fmt.Errorf("opening SQLite storage: %w", err)
		}
		logger.Info("using SQLite storage", "path", path)
		return driver, nil

	case "postgres":
		if cfg.Storage.PostgresDSN == "" {
			return nil, errors.New("storage.driver is postgres but storage.postgres_dsn is not set")
		}
		driver, err := postgres.NewDriver(ctx, cfg.Storage.PostgresDSN, opts...)
		if err != nil {
			return nil, fmt.Errorf("opening PostgreSQL storage: %w", err)
		}
		logger.Info("using PostgreSQL storage")
		return driver, nil

	default:
		return nil, fmt.Errorf("unknown storage driver %q (expected sqlite or postgres)", cfg.Storage.Driver)
	}
}

// OpenBlob opens the configured blob store. It returns nil for provider
// "none", in which case media is recorded without being uploaded.
func OpenBlob(ctx context.Context, cfg *config.Config, configDir string) (blob.Store, error) {
	switch cfg.Blob.Provider {
	case "none":
		return nil, nil

	case "", "local":
		dir := cfg.Blob.Dir
		if dir == "" {
			var err error
			dir, err = dotdir.NewManager().Path(configDir, DefaultBlobDir)
			if err != nil {
				return nil, err
			}
		}
		store, err := local.NewStore(dir)
		if err != nil {
			return nil, err
		}
		return store, nil

	case "s3":
		store, err := s3.NewStore(ctx, s3.Config{
			Endpoint:  cfg.Blob.Endpoint,
			Bucket:    cfg.Blob.Bucket,
			Region:    cfg.Blob.Region,
			AccessKey: cfg.Blob.AccessKey,
			SecretKey: cfg.Blob.SecretKey,
			Secure:    cfg.Blob.Secure,
		})
		if err != nil {
			return nil, err
		}
		return store, nil

	default:
		return nil, fmt.Errorf("unknown blob provider %q (expected local, s3 or none)", cfg.Blob.Provider)
	}
}

// OpenInferer builds the configured memory inferer. A disabled memory
// section yields a local inferer that reports memory.ErrNotConfigured.
func OpenInferer(cfg *config.Config) (memory.Inferer, error) {
	if !cfg.Memory.Enabled {
		return localmem.NewInferer(localmem.Config{Enabled: false}), nil
	}

	switch cfg.Memory.Provider {
	case "", "local":
		return localmem.NewInferer(localmem.Config{Enabled: true}), nil
	case "ollama":
		return ollama.NewInferer(ollama.Config{
			BaseURL: cfg.Memory.Target,
			Model:   cfg.Memory.Model,
		}), nil
	default:
		return nil, fmt.Errorf("unknown memory provider %q (expected local or ollama)", cfg.Memory.Provider)
	}
}

// OpenPublisher connects the configured event stream publisher.
func OpenPublisher(ctx context.Context, cfg *config.Config, logger *slog.Logger) (eventstream.Publisher, error) {
	switch cfg.EventStream.Provider {
	case "", "none":
		return nop.NewPublisher(), nil

	case "kafka":
		pub, err := kafka.NewPublisher(kafka.Config{
			Brokers: SplitList(cfg.EventStream.Brokers),
			Topic:   cfg.EventStream.Topic,
		})
		if err != nil {
			return nil, err
		}
		return pub, nil

	case "rabbitmq":
		pub, err := rabbitmq.NewPublisher(ctx, rabbitmq.Config{
			URL:      cfg.EventStream.AMQPURL,
			Exchange: cfg.EventStream.Exchange,
			Logger:   logger,
		})
		if err != nil {
			return nil, err
		}
		return pub, nil

	default:
		return nil, fmt.Errorf("unknown event stream provider %q (expected none, kafka or rabbitmq)", cfg.EventStream.Provider)
	}
}

// SplitList splits a comma separated list, dropping blanks.
func SplitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
