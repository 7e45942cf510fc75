// Package usecmder provides the use command, which saves the sender the
// memories and window commands default to.
package usecmder

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/mnemo/pkg/cliui"
	"github.com/papercomputeco/mnemo/pkg/dotdir"
	"github.com/papercomputeco/mnemo/pkg/identity"
	"github.com/papercomputeco/mnemo/pkg/window"
)

type useCommander struct {
	configDir string
	tz        string
	clear     bool
}

const useLongDesc string = `Select the sender other commands default to.

The number is normalized to E.164 and saved in profile.json in the .mnemo/
directory together with its timezone, inferred from the number unless
--tz is given. With no arguments the current selection is printed.

Examples:
  mnemo use +14155550100
  mnemo use whatsapp:+919876543210 --tz Asia/Kolkata
  mnemo use
  mnemo use --clear`

const useShortDesc string = "Select the default sender"

func NewUseCmd() *cobra.Command {
	cmder := &useCommander{}

	cmd := &cobra.Command{
		Use:   "use [number]",
		Short: useShortDesc,
		Long:  useLongDesc,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmder.configDir, _ = cmd.Flags().GetString("config-dir")
			w := cmd.OutOrStdout()

			switch {
			case cmder.clear:
				if len(args) > 0 {
					return errors.New("--clear takes no number")
				}
				return cmder.runClear(w)
			case len(args) == 0:
				return cmder.runShow(w)
			default:
				return cmder.runUse(w, args[0])
			}
		},
	}

	cmd.Flags().StringVar(&cmder.tz, "tz", "", "IANA timezone (default: inferred from the number)")
	cmd.Flags().BoolVar(&cmder.clear, "clear", false, "Forget the saved sender")

	return cmd
}

func (c *useCommander) runUse(w io.Writer, raw string) error {
	number, err := identity.NormalizePhone(raw)
	if err != nil {
		return err
	}

	tz := c.tz
	if tz == "" {
		tz = identity.InferTimezone(number)
	} else if !window.ValidTimezone(tz) {
		return fmt.Errorf("unknown timezone %q", tz)
	}

	profile := &dotdir.Profile{Number: number, Timezone: tz}
	if err := dotdir.NewManager().SaveProfile(profile, c.configDir); err != nil {
		return err
	}

	fmt.Fprintf(w, "\n  %s Using %s %s\n\n",
		cliui.SuccessMark,
		cliui.ValueStyle.Render(number),
		cliui.DimStyle.Render("("+tz+")"),
	)
	return nil
}

func (c *useCommander) runShow(w io.Writer) error {
	profile, err := dotdir.NewManager().LoadProfile(c.configDir)
	if err != nil {
		return err
	}
	if profile == nil {
		fmt.Fprintf(w, "\n  %s\n\n", cliui.DimStyle.Render("No sender selected."))
		return nil
	}

	fmt.Fprintf(w, "\n%s\n", cliui.KeyValues([][2]string{
		{"number", profile.Number},
		{"timezone", profile.Timezone},
	}))
	return nil
}

func (c *useCommander) runClear(w io.Writer) error {
	if err := dotdir.NewManager().ClearProfile(c.configDir); err != nil {
		return err
	}
	fmt.Fprintf(w, "\n  %s Cleared the selected sender\n\n", cliui.SuccessMark)
	return nil
}
