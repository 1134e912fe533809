// Copyright 2026 The Meridian Authors
// SPDX-License-Identifier: Apache-2.0

package safety

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"
)

// GuardrailTimeoutExit is the synthetic exit code reported when a
// guardrail script overruns its deadline.
const GuardrailTimeoutExit = 124

// GuardrailResult describes one completed guardrail invocation.
type GuardrailResult struct {
	Script   string
	ExitCode int
	Stdout   string
	Stderr   string
	TimedOut bool
}

// Passed reports whether the script accepted the run output.
func (r GuardrailResult) Passed() bool {
	return r.ExitCode == 0 && !r.TimedOut
}

// GuardrailContext carries run metadata into guardrail scripts as
// MERIDIAN_GUARDRAIL_* environment variables.
type GuardrailContext struct {
	RunID      string
	SpaceID    string
	RunDir     string
	ReportPath string
	Model      string
}

func (c GuardrailContext) env() []string {
	return []string{
		"MERIDIAN_GUARDRAIL_RUN_ID=" + c.RunID,
		"MERIDIAN_GUARDRAIL_SPACE_ID=" + c.SpaceID,
		"MERIDIAN_GUARDRAIL_RUN_DIR=" + c.RunDir,
		"MERIDIAN_GUARDRAIL_REPORT=" + c.ReportPath,
		"MERIDIAN_GUARDRAIL_MODEL=" + c.Model,
	}
}

// GuardrailRunner executes post-run guardrail scripts. Scripts never
// see MERIDIAN_SECRET_* values; those are scrubbed from the inherited
// environment before spawn.
type GuardrailRunner struct {
	Timeout time.Duration
	Logger  *slog.Logger
}

// Run executes one guardrail script with the run report on stdin.
func (g *GuardrailRunner) Run(ctx context.Context, script string, gc GuardrailContext, report string) GuardrailResult {
	timeout := g.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, script)
	cmd.Dir = gc.RunDir
	cmd.Env = append(stripSecretEnv(os.Environ()), gc.env()...)
	cmd.Stdin = strings.NewReader(report)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	result := GuardrailResult{Script: script}
	err := cmd.Run()
	result.Stdout = stdout.String()
	result.Stderr = stderr.String()

	switch {
	case runCtx.Err() == context.DeadlineExceeded:
		result.TimedOut = true
		result.ExitCode = GuardrailTimeoutExit
	case err == nil:
		result.ExitCode = 0
	default:
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		} else {
			result.ExitCode = 1
			result.Stderr = strings.TrimSpace(result.Stderr + "\n" + err.Error())
		}
	}

	if g.Logger != nil && !result.Passed() {
		g.Logger.Warn("guardrail rejected run output",
			"script", script,
			"exit_code", result.ExitCode,
			"timed_out", result.TimedOut)
	}
	return result
}

func stripSecretEnv(env []string) []string {
	kept := make([]string, 0, len(env))
	for _, entry := range env {
		if strings.HasPrefix(entry, "MERIDIAN_SECRET_") {
			continue
		}
		kept = append(kept, entry)
	}
	return kept
}

// FailureSummary renders guardrail failures for the run error field.
func FailureSummary(results []GuardrailResult) string {
	var failed []string
	for _, result := range results {
		if result.Passed() {
			continue
		}
		if result.TimedOut {
			failed = append(failed, fmt.Sprintf("%s (timeout)", result.Script))
		} else {
			failed = append(failed, fmt.Sprintf("%s (exit %d)", result.Script, result.ExitCode))
		}
	}
	if len(failed) == 0 {
		return ""
	}
	return "guardrail failed: " + strings.Join(failed, ", ")
}
