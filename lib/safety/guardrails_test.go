// Copyright 2026 The Meridian Authors
// SPDX-License-Identifier: Apache-2.0

package safety

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755); err != nil {
		t.Fatalf("writing script: %v", err)
	}
	return path
}

func TestGuardrailRunnerPass(t *testing.T) {
	dir := t.TempDir()
	script := writeScript(t, dir, "check.sh", "exit 0\n")

	runner := &GuardrailRunner{}
	result := runner.Run(context.Background(), script, GuardrailContext{RunDir: dir}, "report")
	if !result.Passed() {
		t.Fatalf("Run() = %+v, want pass", result)
	}
}

func TestGuardrailRunnerFailureCapturesStderr(t *testing.T) {
	dir := t.TempDir()
	script := writeScript(t, dir, "check.sh", "echo 'report too short' >&2\nexit 7\n")

	runner := &GuardrailRunner{}
	result := runner.Run(context.Background(), script, GuardrailContext{RunDir: dir}, "report")
	if result.Passed() {
		t.Fatal("failing script should not pass")
	}
	if result.ExitCode != 7 {
		t.Errorf("ExitCode = %d, want 7", result.ExitCode)
	}
	if !strings.Contains(result.Stderr, "report too short") {
		t.Errorf("Stderr = %q, want diagnostic from script", result.Stderr)
	}
}

func TestGuardrailRunnerDeliversReportAndEnv(t *testing.T) {
	dir := t.TempDir()
	// Echo stdin and the run metadata back so the test can verify the
	// script saw both.
	script := writeScript(t, dir, "check.sh",
		"cat\necho \"run=$MERIDIAN_GUARDRAIL_RUN_ID space=$MERIDIAN_GUARDRAIL_SPACE_ID model=$MERIDIAN_GUARDRAIL_MODEL\"\n")

	runner := &GuardrailRunner{}
	gc := GuardrailContext{RunID: "r3", SpaceID: "s1", RunDir: dir, Model: "claude-opus"}
	result := runner.Run(context.Background(), script, gc, "final report body")
	if !result.Passed() {
		t.Fatalf("Run() = %+v, want pass", result)
	}
	if !strings.Contains(result.Stdout, "final report body") {
		t.Errorf("Stdout = %q, want report delivered on stdin", result.Stdout)
	}
	if !strings.Contains(result.Stdout, "run=r3 space=s1 model=claude-opus") {
		t.Errorf("Stdout = %q, want run metadata in environment", result.Stdout)
	}
}

func TestGuardrailRunnerScrubsSecretEnv(t *testing.T) {
	t.Setenv("MERIDIAN_SECRET_API_TOKEN", "hunter2")
	dir := t.TempDir()
	script := writeScript(t, dir, "check.sh", "env | grep MERIDIAN_SECRET_ || true\n")

	runner := &GuardrailRunner{}
	result := runner.Run(context.Background(), script, GuardrailContext{RunDir: dir}, "")
	if strings.Contains(result.Stdout, "hunter2") {
		t.Errorf("Stdout = %q, secret leaked into guardrail environment", result.Stdout)
	}
}

func TestGuardrailRunnerTimeout(t *testing.T) {
	dir := t.TempDir()
	script := writeScript(t, dir, "slow.sh", "sleep 10\n")

	runner := &GuardrailRunner{Timeout: 100 * time.Millisecond}
	result := runner.Run(context.Background(), script, GuardrailContext{RunDir: dir}, "")
	if !result.TimedOut {
		t.Fatal("slow script should time out")
	}
	if result.ExitCode != GuardrailTimeoutExit {
		t.Errorf("ExitCode = %d, want %d", result.ExitCode, GuardrailTimeoutExit)
	}
	if result.Passed() {
		t.Error("timed-out script should not pass")
	}
}

func TestFailureSummary(t *testing.T) {
	results := []GuardrailResult{
		{Script: "ok.sh", ExitCode: 0},
		{Script: "lint.sh", ExitCode: 2},
		{Script: "slow.sh", TimedOut: true, ExitCode: GuardrailTimeoutExit},
	}
	got := FailureSummary(results)
	want := "guardrail failed: lint.sh (exit 2), slow.sh (timeout)"
	if got != want {
		t.Errorf("FailureSummary() = %q, want %q", got, want)
	}

	if got := FailureSummary([]GuardrailResult{{Script: "ok.sh"}}); got != "" {
		t.Errorf("FailureSummary(all passed) = %q, want empty", got)
	}
}
