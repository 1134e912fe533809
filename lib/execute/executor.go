// Copyright 2026 The Meridian Authors
// SPDX-License-Identifier: Apache-2.0

// Package execute owns the run lifecycle: spawn the harness process,
// stream and capture its output, enforce timeouts and budgets, retry
// transient failures, run guardrails, and always append exactly one
// finalize event no matter how the attempt ends.
package execute

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/zeebo/blake3"
	"golang.org/x/sys/unix"

	"github.com/haowjy/meridian-channel/lib/harness"
	"github.com/haowjy/meridian-channel/lib/safety"
	"github.com/haowjy/meridian-channel/lib/state"
)

// RunSpec is one fully resolved run request.
type RunSpec struct {
	ChatID          string
	SpaceID         string
	Prompt          string
	Model           string
	Agent           string
	Skills          []string
	HarnessID       string
	ResumeSessionID string
	Permissions     safety.PermissionConfig
	ExtraArgs       []string
	EnvOverrides    []string

	Secrets       []safety.Secret
	Budget        safety.Budget
	SpaceSpentUSD float64
	Guardrails    []string

	Dir              string
	Timeout          time.Duration
	KillGrace        time.Duration
	GuardrailTimeout time.Duration
	MaxRetries       int
	RetryBackoff     time.Duration

	EventObserver func(event *harness.StreamEvent)
	MirrorStdout  io.Writer
	MirrorStderr  io.Writer
}

// RunResult is the terminal outcome of one run.
type RunResult struct {
	RunID    string
	ExitCode int
	Status   string
	Report   string
	Outcome  harness.Outcome
	Warning  string
}

// Executor drives runs against one space's logs.
type Executor struct {
	Paths    state.SpacePaths
	Runs     *state.RunLog
	Registry *harness.Registry
	Logger   *slog.Logger
}

// PromptSHA is the stable content hash recorded with each start event.
func PromptSHA(prompt string) string {
	sum := blake3.Sum256([]byte(prompt))
	return hex.EncodeToString(sum[:])
}

// Execute runs one request to completion. The start event is appended
// before the first spawn; the matching finalize event is appended in a
// deferred block with SIGTERM masked so even a dying parent leaves a
// complete record.
func (e *Executor) Execute(ctx context.Context, spec RunSpec) (result RunResult, err error) {
	adapter, warning, err := e.resolveAdapter(spec)
	if err != nil {
		return RunResult{}, err
	}
	if warning != "" && e.Logger != nil {
		e.Logger.Warn("model routing fallback", "model", spec.Model, "detail", warning)
	}

	runID, err := e.Runs.AppendStart(state.StartEvent{
		ChatID:           spec.ChatID,
		Model:            spec.Model,
		Agent:            spec.Agent,
		Harness:          adapter.ID(),
		HarnessSessionID: spec.ResumeSessionID,
		Prompt:           spec.Prompt,
		PromptSHA:        PromptSHA(spec.Prompt),
	})
	if err != nil {
		return RunResult{}, fmt.Errorf("recording run start: %w", err)
	}

	runDir := e.Paths.RunDir(runID)
	result = RunResult{RunID: runID, ExitCode: ExitInfra, Warning: warning}
	var failureReason string
	var cancelled bool

	startedAt := time.Now()
	defer func() {
		unmask := Coordinator().MaskSIGTERM()
		defer unmask()
		result.Status = statusForExit(result.ExitCode, cancelled)
		finalizeErr := e.Runs.AppendFinalize(runID, state.FinalizeEvent{
			Status:       result.Status,
			ExitCode:     result.ExitCode,
			DurationSecs: time.Since(startedAt).Seconds(),
			CostUSD:      result.Outcome.CostUSD,
			InputTokens:  result.Outcome.InputTokens,
			OutputTokens: result.Outcome.OutputTokens,
			Error:        failureReason,
		})
		if finalizeErr != nil && e.Logger != nil {
			e.Logger.Error("appending finalize event failed", "run", runID, "error", finalizeErr)
		}
	}()

	argv, envOverlay, err := adapter.BuildCommand(harness.Request{
		Prompt:          spec.Prompt,
		Model:           spec.Model,
		Agent:           spec.Agent,
		Skills:          spec.Skills,
		Permissions:     spec.Permissions,
		ResumeSessionID: spec.ResumeSessionID,
		ExtraArgs:       spec.ExtraArgs,
	})
	if err != nil {
		failureReason = err.Error()
		return result, err
	}

	overrides := append([]string{}, spec.EnvOverrides...)
	overrides = append(overrides,
		"MERIDIAN_RUN_ID="+runID,
		"MERIDIAN_SPACE="+spec.SpaceID,
		"MERIDIAN_RUN_DIR="+runDir,
	)
	overrides = append(overrides, safety.SecretEnv(spec.Secrets)...)
	overrides = append(overrides, envOverlay...)
	childEnv := SanitizeChildEnv(os.Environ(), overrides)

	var tracker *safety.BudgetTracker
	if spec.Budget.Enabled() {
		tracker = safety.NewBudgetTracker(spec.Budget, spec.SpaceSpentUSD)
		if breach := tracker.Check(); breach != nil {
			failureReason = breach.Error()
			result.ExitCode = ExitInfra
			cancelled = true
			return result, nil
		}
	}

	parseEvent := adapter.ParseStreamEvent
	if !adapter.Capabilities().StreamEvents {
		parseEvent = nil
	}

	retriesAttempted := 0
	for {
		spawned, err := Spawn(ctx, SpawnSpec{
			Argv:          argv,
			Dir:           spec.Dir,
			Env:           childEnv,
			RunDir:        runDir,
			Timeout:       spec.Timeout,
			KillGrace:     spec.KillGrace,
			Secrets:       spec.Secrets,
			BudgetTracker: tracker,
			ParseEvent:    parseEvent,
			EventObserver: spec.EventObserver,
			MirrorStdout:  spec.MirrorStdout,
			MirrorStderr:  spec.MirrorStderr,
		})
		if err != nil {
			failureReason = err.Error()
			result.ExitCode = ExitInfra
			return result, nil
		}
		result.ExitCode = spawned.ExitCode

		e.redactReportFile(runDir, spec.Secrets)
		result.Outcome = adapter.ExtractResult(spawned.Stdout, runDir)
		result.Report = result.Outcome.Report
		if result.Outcome.HarnessSessionID != "" {
			if err := e.Runs.UpdateSessionID(runID, result.Outcome.HarnessSessionID); err != nil && e.Logger != nil {
				e.Logger.Warn("recording harness session id failed", "run", runID, "error", err)
			}
		}

		if spawned.BudgetBreach != nil {
			failureReason = spawned.BudgetBreach.Error()
			result.ExitCode = ExitInfra
			cancelled = true
			return result, nil
		}

		// Some harnesses report usage only at the end. Recheck with
		// the extracted total before declaring success.
		if tracker != nil && result.Outcome.CostUSD > 0 {
			tracker.ObserveCost(result.Outcome.CostUSD)
			if breach := tracker.Check(); breach != nil {
				failureReason = breach.Error()
				result.ExitCode = ExitInfra
				cancelled = true
				return result, nil
			}
		}

		if result.ExitCode == 0 && result.Outcome.OutputEmpty {
			// A clean exit with no content is unusable; fail fast so
			// supervisors can react.
			failureReason = "empty output"
			result.ExitCode = 1
			return result, nil
		}

		if result.ExitCode == 0 {
			ok, guardErr := e.runGuardrails(ctx, spec, runID, runDir, result.Report)
			if ok {
				return result, nil
			}
			failureReason = guardErr
			if retriesAttempted >= spec.MaxRetries {
				result.ExitCode = 1
				return result, nil
			}
			retriesAttempted++
			result.ExitCode = 1
			e.logRetry(runID, adapter.ID(), result.ExitCode, retriesAttempted, spec.MaxRetries, "guardrail")
			e.backoff(spec.RetryBackoff, retriesAttempted)
			continue
		}

		stderrText := string(spawned.Stderr)
		category := ClassifyError(result.ExitCode, stderrText)
		if category == StrategyChange {
			failureReason = "strategy change required: " + firstLine(stderrText)
		} else if failureReason == "" {
			failureReason = firstLine(stderrText)
		}
		if spawned.TimedOut {
			failureReason = fmt.Sprintf("timed out after %s", spec.Timeout)
			cancelled = true
			return result, nil
		}

		if !ShouldRetry(result.ExitCode, stderrText, retriesAttempted, spec.MaxRetries) {
			return result, nil
		}
		retriesAttempted++
		e.logRetry(runID, adapter.ID(), result.ExitCode, retriesAttempted, spec.MaxRetries, string(category))
		e.backoff(spec.RetryBackoff, retriesAttempted)
	}
}

func (e *Executor) resolveAdapter(spec RunSpec) (harness.Adapter, string, error) {
	if spec.HarnessID != "" {
		adapter, err := e.Registry.Get(spec.HarnessID)
		return adapter, "", err
	}
	return e.Registry.Route(spec.Model)
}

func (e *Executor) runGuardrails(ctx context.Context, spec RunSpec, runID, runDir, report string) (bool, string) {
	if len(spec.Guardrails) == 0 {
		return true, ""
	}
	runner := &safety.GuardrailRunner{Timeout: spec.GuardrailTimeout, Logger: e.Logger}
	gc := safety.GuardrailContext{
		RunID:      runID,
		SpaceID:    spec.SpaceID,
		RunDir:     runDir,
		ReportPath: filepath.Join(runDir, ReportFilename),
		Model:      spec.Model,
	}
	var results []safety.GuardrailResult
	for _, script := range spec.Guardrails {
		results = append(results, runner.Run(ctx, script, gc, report))
	}
	if summary := safety.FailureSummary(results); summary != "" {
		return false, summary
	}
	return true, ""
}

func (e *Executor) redactReportFile(runDir string, secrets []safety.Secret) {
	if len(secrets) == 0 {
		return
	}
	path := filepath.Join(runDir, ReportFilename)
	data, err := os.ReadFile(path)
	if err != nil {
		return
	}
	redacted := safety.RedactBytes(data, secrets)
	if err := os.WriteFile(path, redacted, 0o644); err != nil && e.Logger != nil {
		e.Logger.Warn("rewriting redacted report failed", "path", path, "error", err)
	}
}

func (e *Executor) logRetry(runID, harnessID string, exitCode, attempted, max int, reason string) {
	if e.Logger == nil {
		return
	}
	e.Logger.Warn("retrying run attempt",
		"run", runID,
		"harness", harnessID,
		"exit_code", exitCode,
		"attempt", attempted,
		"max_retries", max,
		"reason", reason)
}

func (e *Executor) backoff(base time.Duration, attempt int) {
	if base > 0 {
		time.Sleep(base * time.Duration(attempt))
	}
}

func statusForExit(exitCode int, cancelled bool) string {
	if cancelled {
		return state.StatusCancelled
	}
	switch exitCode {
	case 0:
		return state.StatusSucceeded
	case ExitInterrupted, ExitTerminated:
		return state.StatusCancelled
	default:
		return state.StatusFailed
	}
}

func firstLine(text string) string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return ""
	}
	if index := strings.IndexByte(trimmed, '\n'); index >= 0 {
		trimmed = trimmed[:index]
	}
	const maxLen = 300
	if len(trimmed) > maxLen {
		trimmed = trimmed[:maxLen]
	}
	return trimmed
}

// Interrupt delivers SIGINT to the current process group's children.
// Exposed for the session stop surface.
func Interrupt(pid int) {
	signalProcessGroup(pid, unix.SIGINT)
}
