// Copyright 2026 The Meridian Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"

	"github.com/haowjy/meridian-channel/cmd/meridian/cli"
)

// SpaceCommand builds the `meridian space` subtree.
func SpaceCommand() *cli.Command {
	return &cli.Command{
		Name:    "space",
		Summary: "Create, list, and close workspaces",
		Subcommands: []*cli.Command{
			spaceCreateCommand(),
			spaceListCommand(),
			spaceCloseCommand(),
		},
	}
}

func spaceCreateCommand() *cli.Command {
	var verbose bool
	return &cli.Command{
		Name:    "create",
		Summary: "Create a new space",
		Usage:   "meridian space create [name]",
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("create", pflag.ContinueOnError)
			flags.BoolVarP(&verbose, "verbose", "v", false, "debug logging")
			return flags
		},
		Run: func(args []string) error {
			inv, err := newInvocation("", verbose)
			if err != nil {
				return err
			}
			record, err := inv.runtime.CreateSpace(strings.Join(args, " "))
			if err != nil {
				return err
			}
			fmt.Println(record.ID)
			return nil
		},
	}
}

func spaceListCommand() *cli.Command {
	var (
		asJSON  bool
		verbose bool
	)
	return &cli.Command{
		Name:    "list",
		Summary: "List every space with run totals",
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("list", pflag.ContinueOnError)
			flags.BoolVar(&asJSON, "json", false, "emit JSON")
			flags.BoolVarP(&verbose, "verbose", "v", false, "debug logging")
			return flags
		},
		Run: func(args []string) error {
			inv, err := newInvocation("", verbose)
			if err != nil {
				return err
			}
			views, problems := inv.runtime.ListSpaces()
			for _, problem := range problems {
				inv.logger.Warn("space problem", "error", problem)
			}
			if asJSON {
				return printJSON(views)
			}
			for _, view := range views {
				name := view.Record.Name
				if name == "" {
					name = "-"
				}
				fmt.Printf("%-6s %-8s %-20s %3d runs  $%.4f\n",
					view.Record.ID, view.Record.Status, name,
					view.Stats.TotalRuns, view.Stats.TotalCostUSD)
			}
			return nil
		},
	}
}

func spaceCloseCommand() *cli.Command {
	var (
		space   string
		verbose bool
	)
	return &cli.Command{
		Name:    "close",
		Summary: "Close a space, stop orphaned sessions, archive run output",
		Usage:   "meridian space close [space-id]",
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("close", pflag.ContinueOnError)
			flags.StringVar(&space, "space", "", "space ID (default: MERIDIAN_SPACE)")
			flags.BoolVarP(&verbose, "verbose", "v", false, "debug logging")
			return flags
		},
		Run: func(args []string) error {
			if len(args) > 0 {
				space = args[0]
			}
			inv, err := newInvocation(space, verbose)
			if err != nil {
				return err
			}
			result, err := inv.runtime.CloseSpace(inv.space)
			if err != nil {
				return err
			}
			fmt.Printf("%s closed", result.Record.ID)
			if len(result.StoppedSessions) > 0 {
				fmt.Printf(", stopped %s", strings.Join(result.StoppedSessions, ", "))
			}
			if result.ArchivedRuns > 0 {
				fmt.Printf(", archived %d run files", result.ArchivedRuns)
			}
			fmt.Println()
			return nil
		},
	}
}
