// Package mnemocmder
package mnemocmder

import (
	"github.com/spf13/cobra"

	configcmder "github.com/papercomputeco/mnemo/cmd/mnemo/config"
	memoriescmder "github.com/papercomputeco/mnemo/cmd/mnemo/memories"
	migratecmder "github.com/papercomputeco/mnemo/cmd/mnemo/migrate"
	servecmder "github.com/papercomputeco/mnemo/cmd/mnemo/serve"
	usecmder "github.com/papercomputeco/mnemo/cmd/mnemo/use"
	windowcmder "github.com/papercomputeco/mnemo/cmd/mnemo/window"
	versioncmder "github.com/papercomputeco/mnemo/cmd/version"
)

const mnemoLongDesc string = `Mnemo turns chat messages into memories.

It receives WhatsApp webhooks, records every message and media attachment
exactly once and derives a memory from each message in the background.

Run the server using:
  mnemo serve          Run the webhook, memory API and workers

Inspect recorded data using:
  mnemo use <number>   Select the sender the commands below default to
  mnemo memories       Print the sender's memories
  mnemo window <expr>  Show the UTC range of a date expression`

const mnemoShortDesc string = "Mnemo - chat memories"

func NewMnemoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "mnemo",
		Short:        mnemoShortDesc,
		Long:         mnemoLongDesc,
		SilenceUsage: true,
	}

	// Global flags
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Directory holding config.toml (default: ./.mnemo or ~/.mnemo)")

	// Add subcommands
	cmd.AddCommand(servecmder.NewServeCmd())
	cmd.AddCommand(migratecmder.NewMigrateCmd())
	cmd.AddCommand(memoriescmder.NewMemoriesCmd())
	cmd.AddCommand(windowcmder.NewWindowCmd())
	cmd.AddCommand(usecmder.NewUseCmd())
	cmd.AddCommand(configcmder.NewConfigCmd())
	cmd.AddCommand(versioncmder.NewVersionCmd())

	return cmd
}
