// Copyright 2026 The Meridian Authors
// SPDX-License-Identifier: Apache-2.0

package ops

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/haowjy/meridian-channel/lib/execute"
	"github.com/haowjy/meridian-channel/lib/state"
)

// RunListFilter narrows ListRuns output. Zero values match everything.
type RunListFilter struct {
	Status string
	Model  string
	ChatID string
	Limit  int
}

// ListRuns returns the space's runs, newest last, plus any log-repair
// warnings encountered during replay.
func (r *Runtime) ListRuns(ctx SpaceContext, filter RunListFilter) ([]state.RunRecord, []state.ReadWarning, error) {
	paths, _, err := r.resolveSpace(ctx)
	if err != nil {
		return nil, nil, err
	}
	runs, warnings, err := state.NewRunLog(paths).ReadAll()
	if err != nil {
		return nil, nil, err
	}

	filtered := runs[:0:0]
	for _, run := range runs {
		if filter.Status != "" && run.Status != filter.Status {
			continue
		}
		if filter.Model != "" && run.Model != filter.Model {
			continue
		}
		if filter.ChatID != "" && run.ChatID != filter.ChatID {
			continue
		}
		filtered = append(filtered, run)
	}
	if filter.Limit > 0 && len(filtered) > filter.Limit {
		filtered = filtered[len(filtered)-filter.Limit:]
	}
	return filtered, warnings, nil
}

// RunDetail is a run record plus the artifacts on disk for it.
type RunDetail struct {
	Run     state.RunRecord
	Report  string
	Stdout  string
	Stderr  string
	SpaceID string
}

// ShowRun loads one run and its report, stream output, and stderr.
// Missing artifact files are not an error: a run interrupted before
// any output leaves only the log record.
func (r *Runtime) ShowRun(ctx SpaceContext, runID string) (RunDetail, error) {
	paths, _, err := r.resolveSpace(ctx)
	if err != nil {
		return RunDetail{}, err
	}
	run, found, err := state.NewRunLog(paths).Get(runID)
	if err != nil {
		return RunDetail{}, err
	}
	if !found {
		return RunDetail{}, validationErrorf("unknown run %q in space %s", runID, paths.SpaceID)
	}

	runDir := paths.RunDir(runID)
	detail := RunDetail{
		Run:     run,
		SpaceID: paths.SpaceID,
		Report:  readArtifact(filepath.Join(runDir, execute.ReportFilename)),
		Stdout:  readArtifact(filepath.Join(runDir, execute.OutputFilename)),
		Stderr:  readArtifact(filepath.Join(runDir, execute.StderrFilename)),
	}
	return detail, nil
}

// RunStats aggregates cost, tokens, and status counts over the
// space's runs.
func (r *Runtime) RunStats(ctx SpaceContext, filter RunListFilter) (state.Stats, error) {
	paths, _, err := r.resolveSpace(ctx)
	if err != nil {
		return state.Stats{}, err
	}
	return state.NewRunLog(paths).Aggregate(func(run state.RunRecord) bool {
		if filter.Status != "" && run.Status != filter.Status {
			return false
		}
		if filter.Model != "" && run.Model != filter.Model {
			return false
		}
		if filter.ChatID != "" && run.ChatID != filter.ChatID {
			return false
		}
		return true
	})
}

const waitPollInterval = 500 * time.Millisecond

// WaitRun polls until the run reaches a terminal status or the
// timeout elapses. Timeout is the configured wait timeout when zero.
func (r *Runtime) WaitRun(ctx context.Context, space SpaceContext, runID string, timeout time.Duration) (state.RunRecord, error) {
	paths, _, err := r.resolveSpace(space)
	if err != nil {
		return state.RunRecord{}, err
	}
	if timeout <= 0 {
		timeout = secondsToDuration(r.Config.WaitTimeoutSeconds)
	}
	runs := state.NewRunLog(paths)
	deadline := time.Now().Add(timeout)
	for {
		run, found, err := runs.Get(runID)
		if err != nil {
			return state.RunRecord{}, err
		}
		if !found {
			return state.RunRecord{}, validationErrorf("unknown run %q in space %s", runID, paths.SpaceID)
		}
		if run.Terminal() {
			return run, nil
		}
		if time.Now().After(deadline) {
			return run, validationErrorf("run %s still %s after %s", runID, run.Status, timeout)
		}
		select {
		case <-ctx.Done():
			return run, ctx.Err()
		case <-time.After(waitPollInterval):
		}
	}
}

func readArtifact(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return string(data)
}
