// Copyright 2026 The Meridian Authors
// SPDX-License-Identifier: Apache-2.0

package ops

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/haowjy/meridian-channel/lib/space"
	"github.com/haowjy/meridian-channel/lib/state"
)

func testRuntime(t *testing.T) *Runtime {
	t.Helper()
	runtime, err := NewRuntime(t.TempDir(), "", nil)
	if err != nil {
		t.Fatalf("NewRuntime() error: %v", err)
	}
	return runtime
}

func fakeBinary(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "harness.sh")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755); err != nil {
		t.Fatalf("writing fake harness: %v", err)
	}
	return path
}

func TestSpawnRunRejectsEmptyPrompt(t *testing.T) {
	runtime := testRuntime(t)

	_, err := runtime.SpawnRun(context.Background(), SpawnRunInput{Prompt: "   "})
	var validation *ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("SpawnRun() error = %v, want ValidationError", err)
	}

	// A rejected request leaves no trace: no space, no logs.
	spaces, problems := runtime.Spaces.List()
	if len(problems) != 0 {
		t.Fatalf("List() problems: %v", problems)
	}
	if len(spaces) != 0 {
		t.Errorf("spaces = %+v, want none after rejection", spaces)
	}
}

func TestSpawnRunRejectsUnknownAlias(t *testing.T) {
	runtime := testRuntime(t)

	_, err := runtime.SpawnRun(context.Background(), SpawnRunInput{
		Prompt: "hello",
		Model:  "zzz",
	})
	var validation *ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("SpawnRun() error = %v, want ValidationError", err)
	}
	if !strings.Contains(validation.Message, "alias") {
		t.Errorf("message = %q, want alias hint", validation.Message)
	}

	spaces, _ := runtime.Spaces.List()
	if len(spaces) != 0 {
		t.Errorf("spaces = %+v, want none", spaces)
	}
}

func TestSpawnRunAutoCreatesSpace(t *testing.T) {
	t.Setenv("CLAUDE_BINARY", fakeBinary(t, `echo '{"role":"assistant","content":"done","session_id":"sess-1"}'
`))
	runtime := testRuntime(t)

	view, err := runtime.SpawnRun(context.Background(), SpawnRunInput{
		Prompt: "do work",
		Model:  "opus",
	})
	if err != nil {
		t.Fatalf("SpawnRun() error: %v", err)
	}
	if view.Status != state.StatusSucceeded {
		t.Errorf("Status = %q, want succeeded", view.Status)
	}
	if view.RunID != "r1" || view.ChatID != "c1" || view.SpaceID != "s1" {
		t.Errorf("view = %+v, want r1/c1/s1", view)
	}
	if view.Report != "done" {
		t.Errorf("Report = %q", view.Report)
	}

	found := false
	for _, warning := range view.Warnings {
		if strings.Contains(warning, "no active space: created s1") {
			found = true
		}
	}
	if !found {
		t.Errorf("Warnings = %v, want auto-create notice", view.Warnings)
	}
}

func TestSpawnRunRecordsUncataloguedModelWarning(t *testing.T) {
	t.Setenv("CODEX_BINARY", fakeBinary(t, `echo '{"role":"assistant","content":"ok"}'
`))
	runtime := testRuntime(t)

	view, err := runtime.SpawnRun(context.Background(), SpawnRunInput{
		Prompt: "go",
		Model:  "gpt-9.9-experimental",
	})
	if err != nil {
		t.Fatalf("SpawnRun() error: %v", err)
	}
	found := false
	for _, warning := range view.Warnings {
		if strings.Contains(warning, "not in catalog") {
			found = true
		}
	}
	if !found {
		t.Errorf("Warnings = %v, want catalog warning", view.Warnings)
	}
}

func TestContinueRunHarnessMismatch(t *testing.T) {
	t.Setenv("CLAUDE_BINARY", fakeBinary(t, `echo '{"role":"assistant","content":"done","session_id":"sess-1"}'
`))
	runtime := testRuntime(t)

	spawned, err := runtime.SpawnRun(context.Background(), SpawnRunInput{
		Prompt: "start",
		Model:  "opus",
	})
	if err != nil {
		t.Fatalf("SpawnRun() error: %v", err)
	}

	_, err = runtime.ContinueRun(context.Background(), ContinueRunInput{
		Space:      SpaceContext{SpaceRef: spawned.SpaceID},
		SessionRef: spawned.ChatID,
		Prompt:     "and now",
		Model:      "codex",
	})
	var validation *ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("ContinueRun() error = %v, want ValidationError", err)
	}
	if !strings.Contains(validation.Message, "harness mismatch") {
		t.Errorf("message = %q", validation.Message)
	}

	// The rejected continuation must not add a second run.
	paths := runtime.Root.Space(spawned.SpaceID)
	records, _, err := state.NewRunLog(paths).ReadAll()
	if err != nil {
		t.Fatalf("ReadAll() error: %v", err)
	}
	if len(records) != 1 {
		t.Errorf("runs = %d, want 1", len(records))
	}
}

func TestSessionAliveWhileRunExecutes(t *testing.T) {
	// The harness blocks until released so the session can be probed
	// mid-run: its lock must read as alive and reconciliation must not
	// touch it.
	syncDir := t.TempDir()
	t.Setenv("CLAUDE_BINARY", fakeBinary(t, `touch "`+syncDir+`/started"
while [ ! -f "`+syncDir+`/release" ]; do sleep 0.05; done
echo '{"role":"assistant","content":"done"}'
`))
	runtime := testRuntime(t)

	done := make(chan error, 1)
	go func() {
		_, err := runtime.SpawnRun(context.Background(), SpawnRunInput{
			Prompt: "long work",
			Model:  "opus",
		})
		done <- err
	}()

	deadline := time.Now().Add(10 * time.Second)
	for {
		if _, err := os.Stat(filepath.Join(syncDir, "started")); err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("harness never started")
		}
		time.Sleep(10 * time.Millisecond)
	}

	paths := runtime.Root.Space("s1")
	alive, err := space.SessionAlive(paths, "c1")
	if err != nil {
		t.Fatalf("SessionAlive() error: %v", err)
	}
	if !alive {
		t.Error("SessionAlive(c1) = false during an executing run")
	}
	patched, err := space.ReconcileSessions(paths)
	if err != nil {
		t.Fatalf("ReconcileSessions() error: %v", err)
	}
	if len(patched) != 0 {
		t.Errorf("ReconcileSessions patched %v, want none while the run is live", patched)
	}

	if err := os.WriteFile(filepath.Join(syncDir, "release"), nil, 0o644); err != nil {
		t.Fatalf("releasing harness: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("SpawnRun() error: %v", err)
	}

	alive, err = space.SessionAlive(paths, "c1")
	if err != nil {
		t.Fatalf("SessionAlive() error: %v", err)
	}
	if alive {
		t.Error("SessionAlive(c1) = true after the run finished")
	}
}

func TestContinueRunRejectsBusySession(t *testing.T) {
	t.Setenv("CLAUDE_BINARY", fakeBinary(t, `echo '{"role":"assistant","content":"done","session_id":"sess-1"}'
`))
	runtime := testRuntime(t)

	spawned, err := runtime.SpawnRun(context.Background(), SpawnRunInput{
		Prompt: "start",
		Model:  "opus",
	})
	if err != nil {
		t.Fatalf("SpawnRun() error: %v", err)
	}

	// Simulate an in-flight run by holding the chat's liveness lock.
	paths := runtime.Root.Space(spawned.SpaceID)
	lock, err := state.TryLock(paths.SessionLockPath(spawned.ChatID))
	if err != nil || lock == nil {
		t.Fatalf("TryLock() = %v, %v", lock, err)
	}
	defer lock.Release()

	_, err = runtime.ContinueRun(context.Background(), ContinueRunInput{
		Space:      SpaceContext{SpaceRef: spawned.SpaceID},
		SessionRef: spawned.ChatID,
		Prompt:     "more",
	})
	var validation *ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("ContinueRun() error = %v, want ValidationError", err)
	}
	if !strings.Contains(validation.Message, "run in flight") {
		t.Errorf("message = %q, want busy-session rejection", validation.Message)
	}
}

func TestContinueRunResumesSession(t *testing.T) {
	t.Setenv("CLAUDE_BINARY", fakeBinary(t, `echo "$@" > "$MERIDIAN_RUN_DIR/argv.txt"
echo '{"role":"assistant","content":"done","session_id":"sess-1"}'
`))
	runtime := testRuntime(t)

	spawned, err := runtime.SpawnRun(context.Background(), SpawnRunInput{
		Prompt: "start",
		Model:  "opus",
	})
	if err != nil {
		t.Fatalf("SpawnRun() error: %v", err)
	}

	view, err := runtime.ContinueRun(context.Background(), ContinueRunInput{
		Space:      SpaceContext{SpaceRef: spawned.SpaceID},
		SessionRef: spawned.ChatID,
		Prompt:     "continue please",
	})
	if err != nil {
		t.Fatalf("ContinueRun() error: %v", err)
	}
	if view.ChatID != spawned.ChatID {
		t.Errorf("ChatID = %q, want %q", view.ChatID, spawned.ChatID)
	}
	if view.RunID != "r2" {
		t.Errorf("RunID = %q, want r2", view.RunID)
	}

	// The second launch passes the harness-native session id.
	paths := runtime.Root.Space(spawned.SpaceID)
	argv, err := os.ReadFile(filepath.Join(paths.RunDir("r2"), "argv.txt"))
	if err != nil {
		t.Fatalf("reading recorded argv: %v", err)
	}
	if !strings.Contains(string(argv), "--resume sess-1") {
		t.Errorf("argv = %q, want --resume sess-1", argv)
	}
}
