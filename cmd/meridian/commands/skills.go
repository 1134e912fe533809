// Copyright 2026 The Meridian Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"

	"github.com/haowjy/meridian-channel/cmd/meridian/cli"
	"github.com/haowjy/meridian-channel/lib/profile"
)

// SkillsCommand builds the `meridian skills` subtree.
func SkillsCommand() *cli.Command {
	return &cli.Command{
		Name:    "skills",
		Summary: "List, search, and show skill documents",
		Subcommands: []*cli.Command{
			skillsListCommand(),
			skillsSearchCommand(),
			skillsShowCommand(),
			agentsListCommand(),
		},
	}
}

func skillsRegistry(inv *invocation) *profile.SkillRegistry {
	return profile.NewSkillRegistry(inv.runtime.RepoRoot, inv.runtime.Config.SkillDirs)
}

func skillsListCommand() *cli.Command {
	var verbose bool
	return &cli.Command{
		Name:    "list",
		Summary: "List available skills",
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("list", pflag.ContinueOnError)
			flags.BoolVarP(&verbose, "verbose", "v", false, "debug logging")
			return flags
		},
		Run: func(args []string) error {
			inv, err := newInvocation("", verbose)
			if err != nil {
				return err
			}
			documents, err := skillsRegistry(inv).List()
			if err != nil {
				return err
			}
			for _, document := range documents {
				fmt.Printf("%-24s %s\n", document.Name, document.Description)
			}
			return nil
		},
	}
}

func skillsSearchCommand() *cli.Command {
	var verbose bool
	return &cli.Command{
		Name:    "search",
		Summary: "Search skills by keyword",
		Usage:   "meridian skills search <keyword>...",
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("search", pflag.ContinueOnError)
			flags.BoolVarP(&verbose, "verbose", "v", false, "debug logging")
			return flags
		},
		Run: func(args []string) error {
			if len(args) == 0 {
				return fmt.Errorf("keyword required: meridian skills search <keyword>")
			}
			inv, err := newInvocation("", verbose)
			if err != nil {
				return err
			}
			documents, err := skillsRegistry(inv).Search(strings.Join(args, " "))
			if err != nil {
				return err
			}
			for _, document := range documents {
				fmt.Printf("%-24s %s\n", document.Name, document.Description)
			}
			return nil
		},
	}
}

func skillsShowCommand() *cli.Command {
	var verbose bool
	return &cli.Command{
		Name:    "show",
		Summary: "Print one skill document",
		Usage:   "meridian skills show <name>",
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("show", pflag.ContinueOnError)
			flags.BoolVarP(&verbose, "verbose", "v", false, "debug logging")
			return flags
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("skill name required: meridian skills show <name>")
			}
			inv, err := newInvocation("", verbose)
			if err != nil {
				return err
			}
			documents, err := skillsRegistry(inv).Load(args[0:1])
			if err != nil {
				return err
			}
			for _, document := range documents {
				fmt.Println(document.Body)
			}
			return nil
		},
	}
}

func agentsListCommand() *cli.Command {
	var verbose bool
	return &cli.Command{
		Name:    "agents",
		Summary: "List agent profiles",
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("agents", pflag.ContinueOnError)
			flags.BoolVarP(&verbose, "verbose", "v", false, "debug logging")
			return flags
		},
		Run: func(args []string) error {
			inv, err := newInvocation("", verbose)
			if err != nil {
				return err
			}
			profiles, err := profile.ScanAgentProfiles(inv.runtime.RepoRoot)
			if err != nil {
				return err
			}
			for _, agent := range profiles {
				fmt.Printf("%-24s %s\n", agent.Name, agent.Description)
			}
			return nil
		},
	}
}
