// Copyright 2026 The Meridian Authors
// SPDX-License-Identifier: Apache-2.0

package ops

import (
	"github.com/haowjy/meridian-channel/lib/space"
	"github.com/haowjy/meridian-channel/lib/state"
)

// SpaceView is one space plus derived run statistics.
type SpaceView struct {
	Record space.Record
	Stats  state.Stats
}

// CreateSpace allocates a new space.
func (r *Runtime) CreateSpace(name string) (space.Record, error) {
	return r.Spaces.Create(name)
}

// ListSpaces returns every space with its run statistics. Spaces with
// corrupt records are reported as errors alongside the healthy ones
// rather than hiding them.
func (r *Runtime) ListSpaces() ([]SpaceView, []error) {
	records, problems := r.Spaces.List()
	views := make([]SpaceView, 0, len(records))
	for _, record := range records {
		view := SpaceView{Record: record}
		paths := r.Root.Space(record.ID)
		stats, err := state.NewRunLog(paths).Aggregate(nil)
		if err != nil {
			problems = append(problems, err)
		} else {
			view.Stats = stats
		}
		views = append(views, view)
	}
	return views, problems
}

// CloseResult summarizes what closing a space did.
type CloseResult struct {
	Record          space.Record
	StoppedSessions []string
	ArchivedRuns    int
}

// CloseSpace marks the space closed, stops any sessions whose locks
// are no longer held, and compresses per-run artifacts. Closing an
// already-closed space only re-runs the cleanup.
func (r *Runtime) CloseSpace(ctx SpaceContext) (CloseResult, error) {
	if ctx.SpaceRef == "" {
		return CloseResult{}, validationErrorf("space required: pass --space or set MERIDIAN_SPACE")
	}
	existing, err := r.Spaces.Get(ctx.SpaceRef)
	if err != nil {
		return CloseResult{}, err
	}
	paths := r.Root.Space(existing.ID)

	record, err := r.Spaces.SetStatus(paths.SpaceID, space.StatusClosed)
	if err != nil {
		return CloseResult{}, err
	}
	stopped, err := space.ReconcileSessions(paths)
	if err != nil {
		return CloseResult{Record: record}, err
	}
	archived, err := space.ArchiveRuns(paths)
	if err != nil {
		return CloseResult{Record: record, StoppedSessions: stopped}, err
	}
	return CloseResult{Record: record, StoppedSessions: stopped, ArchivedRuns: archived}, nil
}
