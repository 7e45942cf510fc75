// Package migratecmder provides the migrate command, which creates or
// updates the storage schema without starting the server.
package migratecmder

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/mnemo/cmd/mnemo/backend"
	"github.com/papercomputeco/mnemo/pkg/cliui"
	"github.com/papercomputeco/mnemo/pkg/config"
	"github.com/papercomputeco/mnemo/pkg/logger"
	"github.com/papercomputeco/mnemo/pkg/storage"
)

type migrateCommander struct {
	configDir     string
	storageDriver string
	sqlitePath    string
	postgresDSN   string
}

var migrateFlags = []string{
	config.FlagStorageDriver,
	config.FlagSQLite,
	config.FlagPostgresDSN,
}

const migrateLongDesc string = `Create or update the mnemo storage schema.

Schema changes are additive: missing tables, columns and indexes are
created and existing data is left untouched, so running migrate more
than once is safe. "mnemo serve" migrates on startup as well.

Examples:
  mnemo migrate
  mnemo migrate --storage-driver postgres --postgres-dsn postgres://localhost/mnemo`

const migrateShortDesc string = "Create or update the storage schema"

func NewMigrateCmd() *cobra.Command {
	cmder := &migrateCommander{}

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: migrateShortDesc,
		Long:  migrateLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmder.configDir, _ = cmd.Flags().GetString("config-dir")

			v, err := config.InitViper(cmder.configDir)
			if err != nil {
				return err
			}
			config.BindRegisteredFlags(v, cmd, config.Flags, migrateFlags)

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			return cmder.run(ctx, cmd.OutOrStdout(), config.FromViper(v))
		},
	}

	config.AddStringFlag(cmd, config.Flags, config.FlagStorageDriver, &cmder.storageDriver)
	config.AddStringFlag(cmd, config.Flags, config.FlagSQLite, &cmder.sqlitePath)
	config.AddStringFlag(cmd, config.Flags, config.FlagPostgresDSN, &cmder.postgresDSN)

	return cmd
}

func (c *migrateCommander) run(ctx context.Context, w io.Writer, cfg *config.Config) error {
	fmt.Fprintln(w)

	var driver backend.Driver
	err := cliui.Step(w, fmt.Sprintf("Migrating %s schema", cfg.Storage.Driver), func() error {
		var err error
		driver, err = backend.OpenStorage(ctx, cfg, c.configDir, logger.Nop())
		return err
	})
	if err != nil {
		return err
	}
	defer driver.Close()

	var stats *storage.Stats
	err = cliui.Step(w, "Counting rows", func() error {
		var err error
		stats, err = driver.Stats(ctx)
		return err
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "\n%s\n", cliui.KeyValues([][2]string{
		{"users", strconv.Itoa(stats.Users)},
		{"messages", strconv.Itoa(stats.Messages)},
		{"media files", strconv.Itoa(stats.MediaFiles)},
		{"media links", strconv.Itoa(stats.MediaLinks)},
		{"memories", strconv.Itoa(stats.Memories)},
		{"interactions", strconv.Itoa(stats.Interactions)},
	}))
	return nil
}
