// Package configcmder provides the config command for managing persistent
// mnemo configuration stored in the .mnemo/ directory.
package configcmder

import (
	"github.com/spf13/cobra"
)

const configLongDesc string = `Manage persistent mnemo configuration.

Configuration is stored as config.toml in the .mnemo/ directory and provides
default values for command flags. CLI flags and MNEMO_ environment variables
take precedence over config file values.

Keys use dotted notation matching the TOML section structure:
  storage.driver, storage.sqlite_path, storage.postgres_dsn,
  api.listen, ingest.workers, ingest.queue_size,
  blob.provider, blob.bucket, memory.provider, memory.model,
  eventstream.provider, eventstream.brokers, webhook.auth_token

Use subcommands to get, set, or list configuration values:
  mnemo config set <key> <value>    Set a configuration value
  mnemo config get <key>            Get a configuration value
  mnemo config list                 List all configuration values

Examples:
  mnemo config set storage.driver postgres
  mnemo config set memory.provider ollama
  mnemo config get ingest.workers
  mnemo config list`

const configShortDesc string = "Manage persistent mnemo configuration"

func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: configShortDesc,
		Long:  configLongDesc,
	}

	cmd.AddCommand(newSetCmd())
	cmd.AddCommand(newGetCmd())
	cmd.AddCommand(newListCmd())

	return cmd
}

// secretKeys are masked by list and get unless --reveal is passed.
var secretKeys = map[string]bool{
	"storage.postgres_dsn": true,
	"blob.secret_key":      true,
	"webhook.auth_token":   true,
	"eventstream.amqp_url": true,
}

func mask(key, value string, reveal bool) string {
	if reveal || value == "" || !secretKeys[key] {
		return value
	}
	return "********"
}
