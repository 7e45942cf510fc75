// Package memoriescmder provides the memories command, which prints a
// sender's recorded memories from the local store.
package memoriescmder

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/mnemo/cmd/mnemo/backend"
	"github.com/papercomputeco/mnemo/pkg/cliui"
	"github.com/papercomputeco/mnemo/pkg/config"
	"github.com/papercomputeco/mnemo/pkg/identity"
	"github.com/papercomputeco/mnemo/pkg/logger"
	"github.com/papercomputeco/mnemo/pkg/recall"
	"github.com/papercomputeco/mnemo/pkg/storage"
	"github.com/papercomputeco/mnemo/pkg/window"
)

type memoriesCommander struct {
	configDir     string
	number        string
	window        string
	query         string
	limit         int
	json          bool
	storageDriver string
	sqlitePath    string
	postgresDSN   string
}

var memoriesFlags = []string{
	config.FlagStorageDriver,
	config.FlagSQLite,
	config.FlagPostgresDSN,
}

const memoriesLongDesc string = `Print a sender's memories, newest first.

The sender is given with --number or taken from the saved profile (see
"mnemo use"). --window narrows the result to a date expression in the
sender's calendar and --query to memories containing the text.

Examples:
  mnemo memories --number +14155550100
  mnemo memories --window "last week" --query milk
  mnemo memories --json`

const memoriesShortDesc string = "Print a sender's memories"

const defaultLimit = 20

func NewMemoriesCmd() *cobra.Command {
	cmder := &memoriesCommander{}

	cmd := &cobra.Command{
		Use:   "memories",
		Short: memoriesShortDesc,
		Long:  memoriesLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmder.configDir, _ = cmd.Flags().GetString("config-dir")

			v, err := config.InitViper(cmder.configDir)
			if err != nil {
				return err
			}
			config.BindRegisteredFlags(v, cmd, config.Flags, memoriesFlags)

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			return cmder.run(ctx, cmd.OutOrStdout(), config.FromViper(v))
		},
	}

	cmd.Flags().StringVarP(&cmder.number, "number", "n", "", "Sender phone number (default: saved profile)")
	cmd.Flags().StringVarP(&cmder.window, "window", "w", "", "Date expression, e.g. today or \"last week\"")
	cmd.Flags().StringVarP(&cmder.query, "query", "q", "", "Only memories containing this text")
	cmd.Flags().IntVar(&cmder.limit, "limit", defaultLimit, "Maximum memories to print")
	cmd.Flags().BoolVar(&cmder.json, "json", false, "Print the result as JSON")
	config.AddStringFlag(cmd, config.Flags, config.FlagStorageDriver, &cmder.storageDriver)
	config.AddStringFlag(cmd, config.Flags, config.FlagSQLite, &cmder.sqlitePath)
	config.AddStringFlag(cmd, config.Flags, config.FlagPostgresDSN, &cmder.postgresDSN)

	return cmd
}

func (c *memoriesCommander) run(ctx context.Context, w io.Writer, cfg *config.Config) error {
	profile, err := backend.ResolveProfile(c.configDir, c.number, "")
	if err != nil {
		return err
	}

	driver, err := backend.OpenStorage(ctx, cfg, c.configDir, logger.Nop())
	if err != nil {
		return err
	}
	defer driver.Close()

	user, err := identity.NewStore(identity.Config{Users: driver}).Lookup(ctx, profile.Number)
	if err != nil {
		if storage.IsNotFound(err) {
			return fmt.Errorf("no user found for %s", profile.Number)
		}
		return err
	}

	res, err := recall.NewSearcher(recall.Config{Users: driver, Memories: driver}).Search(ctx, recall.Query{
		UserID:     user.ID,
		Text:       c.query,
		Expression: c.window,
		Limit:      c.limit,
	})
	if err != nil {
		return err
	}

	if c.json {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}

	md := Markdown(user, res)
	if !backend.IsTerminal(w) {
		_, err = io.WriteString(w, md)
		return err
	}
	rendered, err := cliui.RenderMarkdown(md)
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, rendered)
	return err
}

// Markdown formats a search result with timestamps in the user's timezone.
func Markdown(user *storage.User, res *recall.Result) string {
	loc, _ := window.LoadLocation(res.Timezone)

	var b strings.Builder
	fmt.Fprintf(&b, "# Memories for %s\n\n", user.PhoneNumber)
	if res.Window != nil {
		fmt.Fprintf(&b, "_%s to %s (%s)_\n\n",
			res.Window.Start.In(loc).Format(time.DateTime),
			res.Window.End.In(loc).Format(time.DateTime),
			res.Timezone,
		)
	}

	if len(res.Memories) == 0 {
		b.WriteString("No memories found.\n")
		return b.String()
	}

	for _, m := range res.Memories {
		fmt.Fprintf(&b, "- **%s** %s `%s`\n",
			m.CreatedAt.In(loc).Format("2006-01-02 15:04"),
			strings.ReplaceAll(m.Content, "\n", " "),
			m.ExternalID,
		)
	}
	return b.String()
}
