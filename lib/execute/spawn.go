// Copyright 2026 The Meridian Authors
// SPDX-License-Identifier: Apache-2.0

package execute

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/haowjy/meridian-channel/lib/harness"
	"github.com/haowjy/meridian-channel/lib/safety"
)

// Run output file names inside a run directory.
const (
	OutputFilename = "output.jsonl"
	StderrFilename = "stderr.log"
	TokensFilename = "tokens.json"
	ReportFilename = "report.md"
)

// SpawnSpec describes one harness process launch.
type SpawnSpec struct {
	Argv      []string
	Dir       string
	Env       []string
	RunDir    string
	Timeout   time.Duration
	KillGrace time.Duration

	Secrets       []safety.Secret
	BudgetTracker *safety.BudgetTracker

	// ParseEvent classifies stdout lines; EventObserver receives the
	// classified events. Both may be nil.
	ParseEvent    func(line string) *harness.StreamEvent
	EventObserver func(event *harness.StreamEvent)

	// MirrorStdout and MirrorStderr receive redacted output for live
	// terminal display. Either may be nil.
	MirrorStdout io.Writer
	MirrorStderr io.Writer
}

// SpawnResult is the raw outcome of one attempt.
type SpawnResult struct {
	ExitCode        int
	RawExitCode     int
	TimedOut        bool
	ForwardedSignal os.Signal
	BudgetBreach    *safety.BudgetBreach
	Stdout          []byte
	Stderr          []byte
}

// processForwarder relays coordinator signals to the child's process
// group. A second termination signal means force stop now.
type processForwarder struct {
	mu       sync.Mutex
	pid      int
	count    int
	received os.Signal
}

func (f *processForwarder) ForwardSignal(sig os.Signal) {
	f.mu.Lock()
	f.received = sig
	f.count++
	count := f.count
	pid := f.pid
	f.mu.Unlock()

	if usig, ok := sig.(unix.Signal); ok {
		signalProcessGroup(pid, usig)
	}
	if count >= 2 {
		signalProcessGroup(pid, unix.SIGKILL)
	}
}

func (f *processForwarder) receivedSignal() os.Signal {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.received
}

// Spawn launches one harness process in its own process group,
// streams and captures output with secret redaction, enforces the
// timeout and budget, and maps the exit status. An error return means
// the process could not be started at all; every post-start failure is
// reported through the result's exit code.
func Spawn(ctx context.Context, spec SpawnSpec) (SpawnResult, error) {
	if len(spec.Argv) == 0 {
		return SpawnResult{}, fmt.Errorf("cannot spawn: empty command")
	}
	if err := os.MkdirAll(spec.RunDir, 0o755); err != nil {
		return SpawnResult{}, fmt.Errorf("creating run directory: %w", err)
	}

	outputFile, err := os.Create(filepath.Join(spec.RunDir, OutputFilename))
	if err != nil {
		return SpawnResult{}, fmt.Errorf("creating output log: %w", err)
	}
	defer outputFile.Close()
	stderrFile, err := os.Create(filepath.Join(spec.RunDir, StderrFilename))
	if err != nil {
		return SpawnResult{}, fmt.Errorf("creating stderr log: %w", err)
	}
	defer stderrFile.Close()

	cmd := exec.Command(spec.Argv[0], spec.Argv[1:]...)
	cmd.Dir = spec.Dir
	cmd.Env = spec.Env
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return SpawnResult{}, fmt.Errorf("creating stdout pipe: %w", err)
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return SpawnResult{}, fmt.Errorf("creating stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return SpawnResult{}, fmt.Errorf("starting %s: %w", spec.Argv[0], err)
	}
	pid := cmd.Process.Pid

	killGrace := spec.KillGrace
	if killGrace <= 0 {
		killGrace = 2 * time.Second
	}

	forwarder := &processForwarder{pid: pid}
	unregister := Coordinator().Register(forwarder)
	defer unregister()

	var (
		breachMu     sync.Mutex
		budgetBreach *safety.BudgetBreach
		terminating  bool
	)
	terminate := func() {
		signalProcessGroup(pid, unix.SIGTERM)
		time.AfterFunc(killGrace, func() {
			signalProcessGroup(pid, unix.SIGKILL)
		})
	}
	observeBudget := func(event *harness.StreamEvent) {
		if spec.BudgetTracker == nil || event == nil || event.CostUSD <= 0 {
			return
		}
		spec.BudgetTracker.ObserveCost(event.CostUSD)
		breach := spec.BudgetTracker.Check()
		if breach == nil {
			return
		}
		breachMu.Lock()
		defer breachMu.Unlock()
		if budgetBreach != nil {
			return
		}
		budgetBreach = breach
		if !terminating {
			terminating = true
			// Budget breaches are infra-enforced limits; escalate to
			// SIGKILL if the child ignores SIGTERM.
			terminate()
		}
	}

	var stdout, stderr bytes.Buffer
	tokensPayload := []byte(nil)
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		scanner := bufio.NewScanner(stdoutPipe)
		// Harnesses can emit very long lines (tool results with whole
		// file contents).
		scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
		for scanner.Scan() {
			raw := append([]byte(nil), scanner.Bytes()...)
			line := append(safety.RedactBytes(raw, spec.Secrets), '\n')
			outputFile.Write(line)
			stdout.Write(line)
			if spec.MirrorStdout != nil {
				spec.MirrorStdout.Write(line)
			}
			if payload := extractTokensPayload(line); payload != nil {
				tokensPayload = payload
			}
			if spec.ParseEvent != nil {
				event := spec.ParseEvent(string(bytes.TrimRight(line, "\n")))
				observeBudget(event)
				if event != nil && spec.EventObserver != nil {
					spec.EventObserver(event)
				}
			}
		}
	}()

	go func() {
		defer wg.Done()
		scanner := bufio.NewScanner(stderrPipe)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			raw := append([]byte(nil), scanner.Bytes()...)
			line := append(safety.RedactBytes(raw, spec.Secrets), '\n')
			stderrFile.Write(line)
			stderr.Write(line)
			if spec.MirrorStderr != nil {
				spec.MirrorStderr.Write(line)
			}
		}
	}()

	timedOut := false
	var timeoutTimer *time.Timer
	if spec.Timeout > 0 {
		timeoutTimer = time.AfterFunc(spec.Timeout, func() {
			breachMu.Lock()
			timedOut = true
			already := terminating
			terminating = true
			breachMu.Unlock()
			if !already {
				terminate()
			}
		})
		defer timeoutTimer.Stop()
	}

	cancelWatch := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			// Caller cancellation mirrors Ctrl-C semantics: let the
			// child run its graceful SIGINT shutdown path first.
			signalProcessGroup(pid, unix.SIGINT)
			time.AfterFunc(killGrace, func() {
				signalProcessGroup(pid, unix.SIGKILL)
			})
		case <-cancelWatch:
		}
	}()

	// Drain both pipes before Wait: Wait closes the parent ends on
	// child exit and any buffered tail would be lost.
	wg.Wait()
	waitErr := cmd.Wait()
	close(cancelWatch)

	if tokensPayload != nil {
		os.WriteFile(filepath.Join(spec.RunDir, TokensFilename),
			safety.RedactBytes(tokensPayload, spec.Secrets), 0o644)
	}

	rawExitCode, exitSignal := exitStatus(cmd, waitErr)
	breachMu.Lock()
	finalBreach := budgetBreach
	finalTimedOut := timedOut
	breachMu.Unlock()

	result := SpawnResult{
		RawExitCode:     rawExitCode,
		TimedOut:        finalTimedOut,
		ForwardedSignal: forwarder.receivedSignal(),
		BudgetBreach:    finalBreach,
		Stdout:          stdout.Bytes(),
		Stderr:          stderr.Bytes(),
	}
	switch {
	case finalBreach != nil:
		result.ExitCode = ExitInfra
	case finalTimedOut:
		result.ExitCode = ExitTimeout
	default:
		result.ExitCode = MapExitCode(rawExitCode, exitSignal, result.ForwardedSignal)
	}
	return result, nil
}

func exitStatus(cmd *exec.Cmd, waitErr error) (int, os.Signal) {
	state := cmd.ProcessState
	if state == nil {
		if waitErr != nil {
			return 1, nil
		}
		return 0, nil
	}
	if status, ok := state.Sys().(syscall.WaitStatus); ok && status.Signaled() {
		return 128 + int(status.Signal()), status.Signal()
	}
	return state.ExitCode(), nil
}

// extractTokensPayload captures the harness's final token accounting
// when a stream line carries a "tokens" object.
func extractTokensPayload(line []byte) []byte {
	var payload map[string]json.RawMessage
	if err := json.Unmarshal(line, &payload); err != nil {
		return nil
	}
	raw, ok := payload["tokens"]
	if !ok {
		return nil
	}
	var tokens map[string]any
	if err := json.Unmarshal(raw, &tokens); err != nil {
		return nil
	}
	return raw
}
