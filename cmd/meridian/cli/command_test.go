// Copyright 2026 The Meridian Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"strings"
	"testing"

	"github.com/spf13/pflag"
)

func TestCommand_Execute_DispatchesToSubcommand(t *testing.T) {
	executed := false
	root := &Command{
		Name: "meridian",
		Subcommands: []*Command{
			{
				Name: "doctor",
				Run: func(args []string) error {
					executed = true
					return nil
				},
			},
		},
	}

	if err := root.Execute([]string{"doctor"}); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !executed {
		t.Error("subcommand Run was not called")
	}
}

func TestCommand_Execute_NestedSubcommands(t *testing.T) {
	var gotArgs []string
	root := &Command{
		Name: "meridian",
		Subcommands: []*Command{
			{
				Name: "space",
				Subcommands: []*Command{
					{
						Name: "close",
						Run: func(args []string) error {
							gotArgs = args
							return nil
						},
					},
				},
			},
		},
	}

	if err := root.Execute([]string{"space", "close", "s1"}); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(gotArgs) != 1 || gotArgs[0] != "s1" {
		t.Errorf("nested subcommand got args %v, want [s1]", gotArgs)
	}
}

func TestCommand_Execute_FlagParsing(t *testing.T) {
	var model string
	var positional []string
	command := &Command{
		Name: "run",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("run", pflag.ContinueOnError)
			flagSet.StringVar(&model, "model", "", "")
			return flagSet
		},
		Run: func(args []string) error {
			positional = args
			return nil
		},
	}

	if err := command.Execute([]string{"--model", "opus", "fix the bug"}); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if model != "opus" {
		t.Errorf("model = %q, want %q", model, "opus")
	}
	if len(positional) != 1 || positional[0] != "fix the bug" {
		t.Errorf("positional args = %v, want [fix the bug]", positional)
	}
}

func TestCommand_Execute_UnknownFlagSuggestion(t *testing.T) {
	command := &Command{
		Name: "run",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("run", pflag.ContinueOnError)
			flagSet.String("model", "", "")
			return flagSet
		},
		Run: func(args []string) error { return nil },
	}

	err := command.Execute([]string{"--modle", "opus"})
	if err == nil {
		t.Fatal("expected error for unknown flag")
	}
	if !strings.Contains(err.Error(), "did you mean --model") {
		t.Errorf("error %q does not suggest --model", err)
	}
	if !strings.Contains(err.Error(), "--modle") {
		t.Errorf("error %q does not name the bad flag", err)
	}
	if !strings.Contains(err.Error(), "--help") {
		t.Errorf("error %q does not point at --help", err)
	}
}

func TestCommand_Execute_UnknownFlagNoSuggestion(t *testing.T) {
	command := &Command{
		Name: "run",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("run", pflag.ContinueOnError)
			flagSet.String("model", "", "")
			return flagSet
		},
		Run: func(args []string) error { return nil },
	}

	err := command.Execute([]string{"--zzzzzzzz"})
	if err == nil {
		t.Fatal("expected error for unknown flag")
	}
	if strings.Contains(err.Error(), "did you mean") {
		t.Errorf("error %q suggests a flag for gibberish input", err)
	}
}

func TestCommand_Execute_UnknownSubcommandSuggestion(t *testing.T) {
	root := &Command{
		Name: "meridian",
		Subcommands: []*Command{
			{Name: "space", Run: func(args []string) error { return nil }},
			{Name: "session", Run: func(args []string) error { return nil }},
		},
	}

	err := root.Execute([]string{"sapce"})
	if err == nil {
		t.Fatal("expected error for unknown subcommand")
	}
	if !strings.Contains(err.Error(), `did you mean "space"`) {
		t.Errorf("error %q does not suggest space", err)
	}
}

func TestCommand_Execute_UnknownSubcommandNoSuggestion(t *testing.T) {
	root := &Command{
		Name: "meridian",
		Subcommands: []*Command{
			{Name: "space", Run: func(args []string) error { return nil }},
		},
	}

	err := root.Execute([]string{"frobnicate"})
	if err == nil {
		t.Fatal("expected error for unknown subcommand")
	}
	if strings.Contains(err.Error(), "did you mean") {
		t.Errorf("error %q suggests a command for gibberish input", err)
	}
	if !strings.Contains(err.Error(), `"frobnicate"`) {
		t.Errorf("error %q does not name the unknown command", err)
	}
}

func TestCommand_Execute_HelpFlag(t *testing.T) {
	for _, arg := range []string{"-h", "--help", "help"} {
		t.Run(arg, func(t *testing.T) {
			ran := false
			command := &Command{
				Name: "doctor",
				Run: func(args []string) error {
					ran = true
					return nil
				},
			}
			if err := command.Execute([]string{arg}); err != nil {
				t.Fatalf("Execute(%q): %v", arg, err)
			}
			if ran {
				t.Errorf("Run was called for help flag %q", arg)
			}
		})
	}
}

func TestCommand_Execute_NoArgsShowsHelp(t *testing.T) {
	root := &Command{
		Name: "meridian",
		Subcommands: []*Command{
			{Name: "run", Run: func(args []string) error { return nil }},
		},
	}

	err := root.Execute(nil)
	if err == nil {
		t.Fatal("expected error when no subcommand given")
	}
	if !strings.Contains(err.Error(), "subcommand required") {
		t.Errorf("error %q, want subcommand required", err)
	}
}

func TestCommand_PrintHelp(t *testing.T) {
	root := &Command{
		Name:        "meridian",
		Description: "Route prompts to coding agents and track the runs.",
		Subcommands: []*Command{
			{Name: "run", Summary: "Start an agent run"},
			{Name: "space", Summary: "Manage spaces"},
		},
		Examples: []Example{
			{Description: "Run a prompt with the default model", Command: "meridian run \"fix the failing test\""},
		},
	}

	var out strings.Builder
	root.PrintHelp(&out)
	help := out.String()

	for _, want := range []string{
		"Route prompts to coding agents",
		"Usage:",
		"meridian <command> [flags]",
		"Commands:",
		"run",
		"Start an agent run",
		"space",
		"Examples:",
		"# Run a prompt with the default model",
		"Run 'meridian <command> --help'",
	} {
		if !strings.Contains(help, want) {
			t.Errorf("help output missing %q:\n%s", want, help)
		}
	}
}

func TestCommand_PrintHelp_WithFlags(t *testing.T) {
	command := &Command{
		Name:    "run",
		Summary: "Start an agent run",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("run", pflag.ContinueOnError)
			flagSet.String("model", "claude-opus-4-6", "model ID or alias")
			return flagSet
		},
	}

	var out strings.Builder
	command.PrintHelp(&out)
	help := out.String()

	if !strings.Contains(help, "Flags:") {
		t.Errorf("help output missing Flags section:\n%s", help)
	}
	if !strings.Contains(help, "--model") {
		t.Errorf("help output missing --model flag:\n%s", help)
	}
	if !strings.Contains(help, "model ID or alias") {
		t.Errorf("help output missing flag usage text:\n%s", help)
	}
}

func TestCommand_FullName(t *testing.T) {
	root := &Command{Name: "meridian"}
	space := &Command{Name: "space", parent: root}
	closeCmd := &Command{Name: "close", parent: space}

	if got := closeCmd.fullName(); got != "meridian space close" {
		t.Errorf("fullName() = %q, want %q", got, "meridian space close")
	}
	if got := root.fullName(); got != "meridian" {
		t.Errorf("fullName() = %q, want %q", got, "meridian")
	}
}
