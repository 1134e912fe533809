// Copyright 2026 The Meridian Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"github.com/haowjy/meridian-channel/cmd/meridian/cli"
)

// Root builds the complete Meridian CLI command tree.
func Root() *cli.Command {
	return &cli.Command{
		Name: "meridian",
		Description: `Meridian: multi-model agent runner.

Route prompts to Claude Code, Codex, or OpenCode, track every run's
cost and status in per-space logs, and continue conversations across
harnesses from one CLI.`,
		Subcommands: []*cli.Command{
			RunCommand(),
			SpaceCommand(),
			SessionCommand(),
			ModelsCommand(),
			SkillsCommand(),
			SecretCommand(),
			DoctorCommand(),
		},
		Examples: []cli.Example{
			{
				Description: "Ask the default model a question",
				Command:     `meridian run spawn -p "explain lib/state"`,
			},
			{
				Description: "Run an agent profile with write access and a budget",
				Command:     `meridian run spawn -p "fix the flaky test" --agent fixer --tier workspace-write --budget 2.50`,
			},
			{
				Description: "Continue a session on the same harness",
				Command:     `meridian run continue c3 -p "now add a regression test"`,
			},
			{
				Description: "See what every run in the space cost",
				Command:     "meridian run stats",
			},
			{
				Description: "Close the current space and archive its output",
				Command:     "meridian space close",
			},
		},
	}
}
