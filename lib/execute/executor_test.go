// Copyright 2026 The Meridian Authors
// SPDX-License-Identifier: Apache-2.0

package execute

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/haowjy/meridian-channel/lib/harness"
	"github.com/haowjy/meridian-channel/lib/safety"
	"github.com/haowjy/meridian-channel/lib/state"
)

func testExecutor(t *testing.T) (*Executor, *state.RunLog) {
	t.Helper()
	paths := state.ResolveRoot(t.TempDir(), "").Space("s1")
	runs := state.NewRunLog(paths)
	return &Executor{
		Paths:    paths,
		Runs:     runs,
		Registry: harness.NewRegistry(),
	}, runs
}

func TestExecuteSuccess(t *testing.T) {
	t.Setenv("CLAUDE_BINARY", fakeHarness(t, `echo '{"role":"assistant","content":"work complete","session_id":"sess-aa"}'
`))
	executor, runs := testExecutor(t)

	result, err := executor.Execute(context.Background(), RunSpec{
		ChatID: "c1",
		Prompt: "do the thing",
		Model:  "claude-opus-4-6",
	})
	if err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if result.Status != state.StatusSucceeded || result.ExitCode != 0 {
		t.Fatalf("result = %+v, want succeeded/0", result)
	}
	if result.Report != "work complete" {
		t.Errorf("Report = %q", result.Report)
	}

	records, warnings, err := runs.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll() error: %v", err)
	}
	if len(warnings) != 0 {
		t.Errorf("warnings = %v", warnings)
	}
	if len(records) != 1 {
		t.Fatalf("records = %d, want 1", len(records))
	}
	run := records[0]
	if run.Status != state.StatusSucceeded || run.PromptSHA != PromptSHA("do the thing") {
		t.Errorf("run record = %+v", run)
	}
	if run.HarnessSessionID != "sess-aa" {
		t.Errorf("HarnessSessionID = %q, want sess-aa", run.HarnessSessionID)
	}
}

func TestExecuteTimeoutFinalizesCancelled(t *testing.T) {
	t.Setenv("CLAUDE_BINARY", fakeHarness(t, "sleep 10\n"))
	executor, runs := testExecutor(t)

	start := time.Now()
	result, err := executor.Execute(context.Background(), RunSpec{
		ChatID:     "c1",
		Prompt:     "slow work",
		Model:      "claude-opus-4-6",
		Timeout:    200 * time.Millisecond,
		KillGrace:  200 * time.Millisecond,
		MaxRetries: 3,
	})
	if err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if result.Status != state.StatusCancelled {
		t.Errorf("Status = %q, want cancelled", result.Status)
	}
	if result.ExitCode != ExitTimeout {
		t.Errorf("ExitCode = %d, want %d", result.ExitCode, ExitTimeout)
	}
	// A timeout must not burn retries: one attempt, prompt return.
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("Execute() took %s, timeout appears to have retried", elapsed)
	}

	records, _, err := runs.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll() error: %v", err)
	}
	if len(records) != 1 || records[0].Error == "" {
		t.Errorf("records = %+v, want one cancelled run with a reason", records)
	}
}

func TestExecuteEmptyOutputFails(t *testing.T) {
	t.Setenv("CLAUDE_BINARY", fakeHarness(t, "exit 0\n"))
	executor, _ := testExecutor(t)

	result, err := executor.Execute(context.Background(), RunSpec{
		ChatID: "c1",
		Prompt: "p",
		Model:  "claude-opus-4-6",
	})
	if err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if result.Status != state.StatusFailed || result.ExitCode != 1 {
		t.Errorf("result = %+v, want failed/1 for empty output", result)
	}
}

func TestExecuteBudgetBreachCancels(t *testing.T) {
	t.Setenv("CLAUDE_BINARY", fakeHarness(t, `echo '{"type":"result","total_cost_usd":3.0,"role":"assistant","content":"pricey"}'
`))
	executor, runs := testExecutor(t)

	result, err := executor.Execute(context.Background(), RunSpec{
		ChatID: "c1",
		Prompt: "p",
		Model:  "claude-opus-4-6",
		Budget: safety.Budget{PerRunUSD: 1.0},
	})
	if err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if result.Status != state.StatusCancelled || result.ExitCode != ExitInfra {
		t.Errorf("result = %+v, want cancelled/%d", result, ExitInfra)
	}

	records, _, err := runs.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll() error: %v", err)
	}
	if !strings.Contains(records[0].Error, "budget exceeded") {
		t.Errorf("Error = %q, want budget breach reason", records[0].Error)
	}
}

func TestExecuteGuardrailFailure(t *testing.T) {
	t.Setenv("CLAUDE_BINARY", fakeHarness(t, `echo '{"role":"assistant","content":"done"}'
`))
	guardrail := fakeHarness(t, "exit 9\n")
	executor, _ := testExecutor(t)

	result, err := executor.Execute(context.Background(), RunSpec{
		ChatID:     "c1",
		Prompt:     "p",
		Model:      "claude-opus-4-6",
		Guardrails: []string{guardrail},
	})
	if err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if result.Status != state.StatusFailed {
		t.Errorf("Status = %q, want failed when a guardrail rejects", result.Status)
	}
}
