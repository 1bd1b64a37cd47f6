package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/florianilch/tokenward/internal/locale"
)

func languageCommand() *cli.Command {
	return &cli.Command{
		Name:  "language",
		Usage: "show or change the UI language preference",
		Commands: []*cli.Command{
			{
				Name:   "show",
				Usage:  "show the stored preference and the language it resolves to",
				Action: languageShowAction,
			},
			{
				Name:      "set",
				Usage:     "store a preference",
				ArgsUsage: "system|en|he",
				Action:    languageSetAction,
			},
		},
		Action: languageShowAction,
	}
}

func languageShowAction(ctx context.Context, cmd *cli.Command) error {
	a, cleanup, err := setup(ctx, cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	pref, err := locale.Load(ctx, a.Store)
	if err != nil {
		return err
	}
	resolved := locale.Resolve(pref, locale.DeviceLanguage())
	fmt.Fprintf(cmd.Root().Writer, "Preference: %s (%s)\nLanguage:   %s\n", pref.Label(), pref, resolved)
	return nil
}

func languageSetAction(ctx context.Context, cmd *cli.Command) error {
	if cmd.Args().Len() != 1 {
		choices := make([]string, len(locale.Preferences))
		for i, p := range locale.Preferences {
			choices[i] = string(p)
		}
		return fmt.Errorf("expected one of %s", strings.Join(choices, ", "))
	}

	a, cleanup, err := setup(ctx, cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	pref := locale.Preference(cmd.Args().First())
	if err := locale.Save(ctx, a.Store, pref); err != nil {
		return err
	}
	fmt.Fprintf(cmd.Root().Writer, "Language: %s\n", locale.Resolve(pref, locale.DeviceLanguage()))
	return nil
}
