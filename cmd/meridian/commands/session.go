// Copyright 2026 The Meridian Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"fmt"

	"github.com/spf13/pflag"

	"github.com/haowjy/meridian-channel/cmd/meridian/cli"
)

// SessionCommand builds the `meridian session` subtree.
func SessionCommand() *cli.Command {
	return &cli.Command{
		Name:    "session",
		Summary: "List and stop chat sessions",
		Subcommands: []*cli.Command{
			sessionListCommand(),
			sessionStopCommand(),
		},
	}
}

func sessionListCommand() *cli.Command {
	var (
		space   string
		asJSON  bool
		verbose bool
	)
	return &cli.Command{
		Name:    "list",
		Summary: "List the space's sessions with liveness",
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("list", pflag.ContinueOnError)
			flags.StringVar(&space, "space", "", "space ID (default: MERIDIAN_SPACE)")
			flags.BoolVar(&asJSON, "json", false, "emit JSON")
			flags.BoolVarP(&verbose, "verbose", "v", false, "debug logging")
			return flags
		},
		Run: func(args []string) error {
			inv, err := newInvocation(space, verbose)
			if err != nil {
				return err
			}
			views, warnings, err := inv.runtime.ListSessions(inv.space)
			if err != nil {
				return err
			}
			for _, warning := range warnings {
				inv.logger.Warn("log repair", "detail", warning.String())
			}
			if asJSON {
				return printJSON(views)
			}
			for _, view := range views {
				liveness := "stopped"
				if view.Alive {
					liveness = "alive"
				} else if view.Session.StoppedAt == "" {
					liveness = "stale"
				}
				fmt.Printf("%-4s %-8s %-10s %-28s %s\n",
					view.Session.ChatID, liveness, view.Session.Harness,
					view.Session.Model, view.Session.HarnessSessionID)
			}
			return nil
		},
	}
}

func sessionStopCommand() *cli.Command {
	var (
		space   string
		verbose bool
	)
	return &cli.Command{
		Name:    "stop",
		Summary: "Record a stop for a session",
		Usage:   "meridian session stop <session>",
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("stop", pflag.ContinueOnError)
			flags.StringVar(&space, "space", "", "space ID (default: MERIDIAN_SPACE)")
			flags.BoolVarP(&verbose, "verbose", "v", false, "debug logging")
			return flags
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("session reference required: meridian session stop <session>")
			}
			inv, err := newInvocation(space, verbose)
			if err != nil {
				return err
			}
			session, err := inv.runtime.StopSession(inv.space, args[0])
			if err != nil {
				return err
			}
			fmt.Printf("%s stopped\n", session.ChatID)
			return nil
		},
	}
}
