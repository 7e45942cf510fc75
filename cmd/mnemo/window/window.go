// Package windowcmder provides the window command, which shows the UTC range
// a date expression covers in a sender's local calendar.
package windowcmder

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/mnemo/cmd/mnemo/backend"
	"github.com/papercomputeco/mnemo/pkg/cliui"
	"github.com/papercomputeco/mnemo/pkg/identity"
	"github.com/papercomputeco/mnemo/pkg/window"
)

type windowCommander struct {
	configDir string
	tz        string
	number    string
	at        string
	json      bool
}

// Output is the JSON form of a resolved window.
type Output struct {
	Expression string    `json:"expression"`
	Timezone   string    `json:"timezone"`
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`
	Hours      float64   `json:"hours"`
}

const windowLongDesc string = `Resolve a date expression into a UTC range.

The expression is interpreted in the sender's local calendar: --tz names
the zone directly, --number infers it from the phone number prefix and,
with neither, the saved profile is used (see "mnemo use"). Without any of
them the expression is resolved in UTC.

Supported expressions:
  today, yesterday, this week, last week, this month, last month,
  last N days, last N weeks, YYYY-MM-DD, YYYY-MM-DD..YYYY-MM-DD

Examples:
  mnemo window today --tz Asia/Kolkata
  mnemo window last week --number +14155550100
  mnemo window 2024-03-01..2024-03-07 --json`

const windowShortDesc string = "Resolve a date expression into a UTC range"

func NewWindowCmd() *cobra.Command {
	cmder := &windowCommander{}

	cmd := &cobra.Command{
		Use:   "window <expression>",
		Short: windowShortDesc,
		Long:  windowLongDesc,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmder.configDir, _ = cmd.Flags().GetString("config-dir")
			return cmder.run(cmd.OutOrStdout(), strings.Join(args, " "))
		},
	}

	cmd.Flags().StringVar(&cmder.tz, "tz", "", "IANA timezone to interpret the expression in")
	cmd.Flags().StringVarP(&cmder.number, "number", "n", "", "Phone number whose timezone is used")
	cmd.Flags().StringVar(&cmder.at, "at", "", "Reference time in RFC3339 (default: now)")
	cmd.Flags().BoolVar(&cmder.json, "json", false, "Print the window as JSON")

	return cmd
}

func (c *windowCommander) run(w io.Writer, expr string) error {
	tz, err := c.timezone()
	if err != nil {
		return err
	}

	now := time.Now()
	if c.at != "" {
		now, err = time.Parse(time.RFC3339, c.at)
		if err != nil {
			return fmt.Errorf("invalid --at: %w", err)
		}
	}

	win, err := window.Resolve(tz, expr, now)
	if err != nil {
		return err
	}

	out := Output{
		Expression: expr,
		Timezone:   tz,
		Start:      win.Start,
		End:        win.End,
		Hours:      win.Duration().Hours(),
	}
	if c.json {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	loc := win.Location
	if loc == nil {
		loc = time.UTC
	}
	fmt.Fprintf(w, "\n%s\n", cliui.KeyValues([][2]string{
		{"expression", expr},
		{"timezone", tz},
		{"start", fmt.Sprintf("%s  (%s)", win.Start.Format(time.RFC3339), win.Start.In(loc).Format(time.RFC3339))},
		{"end", fmt.Sprintf("%s  (%s)", win.End.Format(time.RFC3339), win.End.In(loc).Format(time.RFC3339))},
		{"duration", win.Duration().String()},
	}))
	return nil
}

// timezone picks --tz, else the zone inferred from --number, else the saved
// profile, else UTC.
func (c *windowCommander) timezone() (string, error) {
	if c.tz != "" {
		if !window.ValidTimezone(c.tz) {
			return "", fmt.Errorf("unknown timezone %q", c.tz)
		}
		return c.tz, nil
	}

	profile, err := backend.ResolveProfile(c.configDir, c.number, "")
	if errors.Is(err, backend.ErrNoNumber) {
		return "UTC", nil
	}
	if err != nil {
		return "", err
	}
	if profile.Timezone != "" {
		return profile.Timezone, nil
	}
	return identity.InferTimezone(profile.Number), nil
}
