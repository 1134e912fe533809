// Copyright 2026 The Meridian Authors
// SPDX-License-Identifier: Apache-2.0

package ops

import (
	"strings"

	"github.com/haowjy/meridian-channel/lib/space"
	"github.com/haowjy/meridian-channel/lib/state"
)

// SessionView is one session with its lock-derived liveness.
type SessionView struct {
	Session state.SessionRecord
	SpaceID string
	Alive   bool
}

// ListSessions returns the space's sessions with liveness checked
// against their advisory locks rather than the log's stop events.
func (r *Runtime) ListSessions(ctx SpaceContext) ([]SessionView, []state.ReadWarning, error) {
	paths, _, err := r.resolveSpace(ctx)
	if err != nil {
		return nil, nil, err
	}
	records, warnings, err := state.NewSessionLog(paths).ReadAll()
	if err != nil {
		return nil, nil, err
	}

	views := make([]SessionView, 0, len(records))
	for _, record := range records {
		alive, err := space.SessionAlive(paths, record.ChatID)
		if err != nil {
			return nil, nil, err
		}
		views = append(views, SessionView{Session: record, SpaceID: paths.SpaceID, Alive: alive})
	}
	return views, warnings, nil
}

// StopSession records a stop event for the chat. Stopping an already
// stopped session is a no-op, not an error.
func (r *Runtime) StopSession(ctx SpaceContext, ref string) (state.SessionRecord, error) {
	paths, session, err := r.ResolveSession(ctx, ref)
	if err != nil {
		return state.SessionRecord{}, err
	}
	if session.StoppedAt != "" {
		return session, nil
	}
	sessions := state.NewSessionLog(paths)
	if err := sessions.AppendStop(session.ChatID); err != nil {
		return state.SessionRecord{}, err
	}
	updated, found, err := sessions.Resolve(session.ChatID)
	if err == nil && found {
		return updated, nil
	}
	return session, nil
}

// ResolveSession finds a session by chat ID or harness-native session
// ID. With a space in context only that space is searched; without
// one every space is searched, and a ref matching sessions in more
// than one space is an error rather than a guess.
func (r *Runtime) ResolveSession(ctx SpaceContext, ref string) (state.SpacePaths, state.SessionRecord, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return state.SpacePaths{}, state.SessionRecord{}, validationErrorf("session reference required")
	}

	if ctx.SpaceRef != "" {
		record, err := r.Spaces.Get(ctx.SpaceRef)
		if err != nil {
			return state.SpacePaths{}, state.SessionRecord{}, err
		}
		if record.Status == space.StatusClosed {
			return state.SpacePaths{}, state.SessionRecord{}, validationErrorf(
				"space %s is closed", record.ID)
		}
		paths := r.Root.Space(record.ID)
		session, found, err := state.NewSessionLog(paths).Resolve(ref)
		if err != nil {
			return state.SpacePaths{}, state.SessionRecord{}, err
		}
		if !found {
			return state.SpacePaths{}, state.SessionRecord{}, validationErrorf(
				"unknown session %q in space %s", ref, record.ID)
		}
		return paths, session, nil
	}

	type match struct {
		paths   state.SpacePaths
		session state.SessionRecord
	}
	var matches []match
	records, _ := r.Spaces.List()
	for _, record := range records {
		if record.Status == space.StatusClosed {
			continue
		}
		paths := r.Root.Space(record.ID)
		session, found, err := state.NewSessionLog(paths).Resolve(ref)
		if err != nil {
			return state.SpacePaths{}, state.SessionRecord{}, err
		}
		if found {
			matches = append(matches, match{paths: paths, session: session})
		}
	}
	switch len(matches) {
	case 0:
		return state.SpacePaths{}, state.SessionRecord{}, validationErrorf("unknown session %q", ref)
	case 1:
		return matches[0].paths, matches[0].session, nil
	default:
		spaceIDs := make([]string, 0, len(matches))
		for _, m := range matches {
			spaceIDs = append(spaceIDs, m.paths.SpaceID)
		}
		return state.SpacePaths{}, state.SessionRecord{}, validationErrorf(
			"session %q is ambiguous across spaces %s: pass --space to disambiguate",
			ref, strings.Join(spaceIDs, ", "))
	}
}
