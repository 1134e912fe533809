// Copyright 2026 The Meridian Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/sys/unix"

	"github.com/haowjy/meridian-channel/cmd/meridian/cli"
	"github.com/haowjy/meridian-channel/lib/harness"
	"github.com/haowjy/meridian-channel/lib/ops"
	"github.com/haowjy/meridian-channel/lib/render"
)

// runFlags is the flag surface shared by spawn and continue.
type runFlags struct {
	space       string
	prompt      string
	model       string
	tier        string
	unsafe      bool
	secrets     []string
	guardrails  []string
	timeoutSecs float64
	runBudget   float64
	spaceBudget float64
	extraArgs   []string
	stream      bool
	verbose     bool
}

func (f *runFlags) register(flags *pflag.FlagSet) {
	flags.StringVar(&f.space, "space", "", "space ID (default: MERIDIAN_SPACE)")
	flags.StringVarP(&f.prompt, "prompt", "p", "", "prompt text (required)")
	flags.StringVarP(&f.model, "model", "m", "", "model ID or alias")
	flags.StringVar(&f.tier, "tier", "", "permission tier: read-only, workspace-write, full-access, danger")
	flags.BoolVar(&f.unsafe, "unsafe", false, "allow the danger tier")
	flags.StringArrayVar(&f.secrets, "secret", nil, "KEY=VALUE secret to inject and redact (repeatable)")
	flags.StringArrayVar(&f.guardrails, "guardrail", nil, "guardrail script to run on the report (repeatable)")
	flags.Float64Var(&f.timeoutSecs, "timeout", 0, "run timeout in seconds (0 = none)")
	flags.Float64Var(&f.runBudget, "budget", 0, "per-run cost ceiling in USD")
	flags.Float64Var(&f.spaceBudget, "space-budget", 0, "per-space cost ceiling in USD")
	flags.StringArrayVar(&f.extraArgs, "arg", nil, "extra argument passed through to the harness (repeatable)")
	flags.BoolVar(&f.stream, "stream", true, "print stream events while the run executes")
	flags.BoolVarP(&f.verbose, "verbose", "v", false, "debug logging")
}

// RunCommand builds the `meridian run` subtree.
func RunCommand() *cli.Command {
	return &cli.Command{
		Name:    "run",
		Summary: "Spawn, continue, and inspect agent runs",
		Subcommands: []*cli.Command{
			runSpawnCommand(),
			runContinueCommand(),
			runListCommand(),
			runShowCommand(),
			runStatsCommand(),
			runWaitCommand(),
		},
	}
}

func runSpawnCommand() *cli.Command {
	shared := &runFlags{}
	var (
		agent     string
		skills    []string
		files     []string
		variables []string
		harnessID string
	)
	return &cli.Command{
		Name:    "spawn",
		Summary: "Start a new agent run",
		Usage:   "meridian run spawn --prompt <text> [flags]",
		Examples: []cli.Example{
			{Description: "Quick question on the default model", Command: `meridian run spawn -p "summarize the diff"`},
			{Description: "Reviewer agent with write access", Command: `meridian run spawn -p "fix the failing test" --agent reviewer --tier workspace-write`},
		},
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("spawn", pflag.ContinueOnError)
			shared.register(flags)
			flags.StringVar(&agent, "agent", "", "agent profile name")
			flags.StringArrayVar(&skills, "skill", nil, "skill to prepend (repeatable)")
			flags.StringArrayVarP(&files, "file", "f", nil, "reference file to include (repeatable)")
			flags.StringArrayVar(&variables, "var", nil, "KEY=VALUE template variable; @path reads a file (repeatable)")
			flags.StringVar(&harnessID, "harness", "", "force a harness instead of routing by model")
			return flags
		},
		Run: func(args []string) error {
			inv, err := newInvocation(shared.space, shared.verbose)
			if err != nil {
				return err
			}
			input := ops.SpawnRunInput{
				Space:             inv.space,
				Prompt:            promptOrArgs(shared.prompt, args),
				Model:             shared.model,
				Agent:             agent,
				Skills:            skills,
				Files:             files,
				Vars:              variables,
				Tier:              shared.tier,
				Unsafe:            shared.unsafe,
				SecretAssignments: shared.secrets,
				Guardrails:        shared.guardrails,
				TimeoutSecs:       shared.timeoutSecs,
				BudgetPerRunUSD:   shared.runBudget,
				BudgetPerSpaceUSD: shared.spaceBudget,
				HarnessID:         harnessID,
				ExtraArgs:         shared.extraArgs,
			}
			attachStreaming(&input.EventObserver, shared.stream)
			// Signal handling during the run belongs to the spawn
			// machinery, which forwards to the child process group.
			view, err := inv.runtime.SpawnRun(context.Background(), input)
			if err != nil {
				return err
			}
			return printRunView(view)
		},
	}
}

func runContinueCommand() *cli.Command {
	shared := &runFlags{}
	return &cli.Command{
		Name:    "continue",
		Summary: "Continue an existing session with a new prompt",
		Usage:   "meridian run continue <session> --prompt <text> [flags]",
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("continue", pflag.ContinueOnError)
			shared.register(flags)
			return flags
		},
		Run: func(args []string) error {
			if len(args) < 1 {
				return fmt.Errorf("session reference required: meridian run continue <session> -p <text>")
			}
			inv, err := newInvocation(shared.space, shared.verbose)
			if err != nil {
				return err
			}
			input := ops.ContinueRunInput{
				Space:             inv.space,
				SessionRef:        args[0],
				Prompt:            promptOrArgs(shared.prompt, args[1:]),
				Model:             shared.model,
				Tier:              shared.tier,
				Unsafe:            shared.unsafe,
				SecretAssignments: shared.secrets,
				Guardrails:        shared.guardrails,
				TimeoutSecs:       shared.timeoutSecs,
				BudgetPerRunUSD:   shared.runBudget,
				BudgetPerSpaceUSD: shared.spaceBudget,
				ExtraArgs:         shared.extraArgs,
			}
			attachStreaming(&input.EventObserver, shared.stream)
			view, err := inv.runtime.ContinueRun(context.Background(), input)
			if err != nil {
				return err
			}
			return printRunView(view)
		},
	}
}

func runListCommand() *cli.Command {
	var (
		space   string
		status  string
		model   string
		chat    string
		limit   int
		asJSON  bool
		verbose bool
	)
	return &cli.Command{
		Name:    "list",
		Summary: "List the space's runs",
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("list", pflag.ContinueOnError)
			flags.StringVar(&space, "space", "", "space ID (default: MERIDIAN_SPACE)")
			flags.StringVar(&status, "status", "", "filter by status")
			flags.StringVar(&model, "model", "", "filter by model")
			flags.StringVar(&chat, "chat", "", "filter by chat ID")
			flags.IntVar(&limit, "limit", 0, "show only the most recent N runs")
			flags.BoolVar(&asJSON, "json", false, "emit JSON")
			flags.BoolVarP(&verbose, "verbose", "v", false, "debug logging")
			return flags
		},
		Run: func(args []string) error {
			inv, err := newInvocation(space, verbose)
			if err != nil {
				return err
			}
			runs, warnings, err := inv.runtime.ListRuns(inv.space, ops.RunListFilter{
				Status: status, Model: model, ChatID: chat, Limit: limit,
			})
			if err != nil {
				return err
			}
			for _, warning := range warnings {
				inv.logger.Warn("log repair", "detail", warning.String())
			}
			if asJSON {
				return printJSON(runs)
			}
			for _, run := range runs {
				fmt.Printf("%-6s %-4s %-10s %-28s %8.4f  %s\n",
					run.ID, run.ChatID, run.Status, run.Model, run.CostUSD, run.StartedAt)
			}
			return nil
		},
	}
}

func runShowCommand() *cli.Command {
	var (
		space   string
		asJSON  bool
		raw     bool
		verbose bool
	)
	return &cli.Command{
		Name:    "show",
		Summary: "Show one run's record and report",
		Usage:   "meridian run show <run-id> [flags]",
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("show", pflag.ContinueOnError)
			flags.StringVar(&space, "space", "", "space ID (default: MERIDIAN_SPACE)")
			flags.BoolVar(&asJSON, "json", false, "emit JSON")
			flags.BoolVar(&raw, "raw", false, "print the report without styling")
			flags.BoolVarP(&verbose, "verbose", "v", false, "debug logging")
			return flags
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("run ID required: meridian run show <run-id>")
			}
			inv, err := newInvocation(space, verbose)
			if err != nil {
				return err
			}
			detail, err := inv.runtime.ShowRun(inv.space, args[0])
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(detail)
			}

			run := detail.Run
			fmt.Printf("run      %s (chat %s, space %s)\n", run.ID, run.ChatID, detail.SpaceID)
			fmt.Printf("model    %s", run.Model)
			if run.Agent != "" {
				fmt.Printf("  agent %s", run.Agent)
			}
			fmt.Println()
			fmt.Printf("status   %s (exit %d, %.1fs)\n", run.Status, run.ExitCode, run.DurationSecs)
			fmt.Printf("cost     $%.4f (%d in / %d out tokens)\n",
				run.CostUSD, run.InputTokens, run.OutputTokens)
			if run.Error != "" {
				fmt.Printf("error    %s\n", run.Error)
			}
			if detail.Report != "" {
				fmt.Println()
				if !raw && cli.StdoutIsTerminal() {
					fmt.Print(render.Markdown(detail.Report, render.DefaultTheme(), cli.TerminalWidth(100)))
				} else {
					fmt.Println(strings.TrimRight(detail.Report, "\n"))
				}
			}
			return nil
		},
	}
}

func runStatsCommand() *cli.Command {
	var (
		space   string
		model   string
		status  string
		asJSON  bool
		verbose bool
	)
	return &cli.Command{
		Name:    "stats",
		Summary: "Aggregate cost and token usage for the space",
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("stats", pflag.ContinueOnError)
			flags.StringVar(&space, "space", "", "space ID (default: MERIDIAN_SPACE)")
			flags.StringVar(&model, "model", "", "filter by model")
			flags.StringVar(&status, "status", "", "filter by status")
			flags.BoolVar(&asJSON, "json", false, "emit JSON")
			flags.BoolVarP(&verbose, "verbose", "v", false, "debug logging")
			return flags
		},
		Run: func(args []string) error {
			inv, err := newInvocation(space, verbose)
			if err != nil {
				return err
			}
			stats, err := inv.runtime.RunStats(inv.space, ops.RunListFilter{Model: model, Status: status})
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(stats)
			}
			fmt.Printf("runs     %d\n", stats.TotalRuns)
			for status, count := range stats.ByStatus {
				fmt.Printf("  %-10s %d\n", status, count)
			}
			fmt.Printf("cost     $%.4f\n", stats.TotalCostUSD)
			fmt.Printf("tokens   %d in / %d out\n", stats.TotalInputTokens, stats.TotalOutputTokens)
			fmt.Printf("time     %.1fs\n", stats.TotalDurationSecs)
			return nil
		},
	}
}

func runWaitCommand() *cli.Command {
	var (
		space       string
		timeoutSecs float64
		verbose     bool
	)
	return &cli.Command{
		Name:    "wait",
		Summary: "Block until a run reaches a terminal status",
		Usage:   "meridian run wait <run-id> [flags]",
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("wait", pflag.ContinueOnError)
			flags.StringVar(&space, "space", "", "space ID (default: MERIDIAN_SPACE)")
			flags.Float64Var(&timeoutSecs, "timeout", 0, "give up after this many seconds")
			flags.BoolVarP(&verbose, "verbose", "v", false, "debug logging")
			return flags
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("run ID required: meridian run wait <run-id>")
			}
			inv, err := newInvocation(space, verbose)
			if err != nil {
				return err
			}
			run, err := inv.runtime.WaitRun(signalContext(), inv.space, args[0],
				time.Duration(timeoutSecs*float64(time.Second)))
			if err != nil {
				return err
			}
			fmt.Printf("%s %s (exit %d)\n", run.ID, run.Status, run.ExitCode)
			if run.ExitCode != 0 {
				return &cli.ExitError{Code: run.ExitCode}
			}
			return nil
		},
	}
}

// promptOrArgs lets the prompt arrive as a flag or as trailing
// positional words.
func promptOrArgs(prompt string, args []string) string {
	if strings.TrimSpace(prompt) != "" {
		return prompt
	}
	return strings.Join(args, " ")
}

func attachStreaming(observer *func(*harness.StreamEvent), enabled bool) {
	if !enabled || !cli.StdoutIsTerminal() {
		return
	}
	writer := render.NewEventWriter(os.Stdout, cli.TerminalWidth(100))
	*observer = writer.Observe
}

func printRunView(view ops.RunView) error {
	for _, warning := range view.Warnings {
		fmt.Fprintf(os.Stderr, "warning: %s\n", warning)
	}
	fmt.Printf("%s %s (chat %s, space %s, $%.4f)\n",
		view.RunID, view.Status, view.ChatID, view.SpaceID, view.CostUSD)
	if view.Report != "" {
		fmt.Println()
		if cli.StdoutIsTerminal() {
			fmt.Print(render.Markdown(view.Report, render.DefaultTheme(), cli.TerminalWidth(100)))
		} else {
			fmt.Println(strings.TrimRight(view.Report, "\n"))
		}
	}
	if view.ExitCode != 0 {
		return &cli.ExitError{Code: view.ExitCode}
	}
	return nil
}

// signalContext cancels on SIGINT/SIGTERM so an interrupted CLI tears
// the child process group down before exiting.
func signalContext() context.Context {
	ctx, _ := signal.NotifyContext(context.Background(), unix.SIGINT, unix.SIGTERM)
	return ctx
}

func printJSON(value any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(value)
}
