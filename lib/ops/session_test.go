// Copyright 2026 The Meridian Authors
// SPDX-License-Identifier: Apache-2.0

package ops

import (
	"errors"
	"strings"
	"testing"

	"github.com/haowjy/meridian-channel/lib/state"
)

func startSessionInNewSpace(t *testing.T, runtime *Runtime) (string, string) {
	t.Helper()
	record, err := runtime.Spaces.Create("")
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	paths := runtime.Root.Space(record.ID)
	chatID, err := state.NewSessionLog(paths).AppendStart(state.SessionRecord{
		Harness: "claude",
		Model:   "claude-opus-4-6",
	})
	if err != nil {
		t.Fatalf("AppendStart() error: %v", err)
	}
	return record.ID, chatID
}

func TestResolveSessionAmbiguousAcrossSpaces(t *testing.T) {
	runtime := testRuntime(t)
	spaceA, chatA := startSessionInNewSpace(t, runtime)
	spaceB, chatB := startSessionInNewSpace(t, runtime)
	if chatA != chatB {
		t.Fatalf("chat ids diverged: %s vs %s", chatA, chatB)
	}

	_, _, err := runtime.ResolveSession(SpaceContext{}, chatA)
	var validation *ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("ResolveSession() error = %v, want ValidationError", err)
	}
	if !strings.Contains(validation.Message, "ambiguous") ||
		!strings.Contains(validation.Message, spaceA) ||
		!strings.Contains(validation.Message, spaceB) {
		t.Errorf("message = %q, want both space ids named", validation.Message)
	}

	// With the space pinned the same ref resolves cleanly.
	paths, session, err := runtime.ResolveSession(SpaceContext{SpaceRef: spaceB}, chatB)
	if err != nil {
		t.Fatalf("ResolveSession() error: %v", err)
	}
	if paths.SpaceID != spaceB || session.ChatID != chatB {
		t.Errorf("resolved %s/%s, want %s/%s", paths.SpaceID, session.ChatID, spaceB, chatB)
	}
}

func TestResolveSessionUnknown(t *testing.T) {
	runtime := testRuntime(t)
	startSessionInNewSpace(t, runtime)

	if _, _, err := runtime.ResolveSession(SpaceContext{}, "c99"); err == nil {
		t.Error("unknown session should be an error")
	}
	if _, _, err := runtime.ResolveSession(SpaceContext{}, "  "); err == nil {
		t.Error("blank session ref should be rejected")
	}
}

func TestResolveSessionSkipsClosedSpaces(t *testing.T) {
	runtime := testRuntime(t)
	spaceID, chatID := startSessionInNewSpace(t, runtime)
	if _, err := runtime.CloseSpace(SpaceContext{SpaceRef: spaceID}); err != nil {
		t.Fatalf("CloseSpace() error: %v", err)
	}

	// The cross-space scan must not find sessions in closed spaces.
	if _, _, err := runtime.ResolveSession(SpaceContext{}, chatID); err == nil {
		t.Error("session in a closed space should not resolve")
	}
	// Targeting the closed space directly is rejected too.
	_, _, err := runtime.ResolveSession(SpaceContext{SpaceRef: spaceID}, chatID)
	if err == nil || !strings.Contains(err.Error(), "closed") {
		t.Errorf("error = %v, want closed-space rejection", err)
	}
}

func TestStopSessionIdempotent(t *testing.T) {
	runtime := testRuntime(t)
	spaceID, chatID := startSessionInNewSpace(t, runtime)

	stopped, err := runtime.StopSession(SpaceContext{SpaceRef: spaceID}, chatID)
	if err != nil {
		t.Fatalf("StopSession() error: %v", err)
	}
	if stopped.StoppedAt == "" {
		t.Error("StoppedAt not set after stop")
	}

	again, err := runtime.StopSession(SpaceContext{SpaceRef: spaceID}, chatID)
	if err != nil {
		t.Fatalf("StopSession() second call error: %v", err)
	}
	if again.StoppedAt != stopped.StoppedAt {
		t.Errorf("StoppedAt changed on repeat stop: %q vs %q", again.StoppedAt, stopped.StoppedAt)
	}
}

func TestListSessionsReportsLiveness(t *testing.T) {
	runtime := testRuntime(t)
	spaceID, chatID := startSessionInNewSpace(t, runtime)

	views, warnings, err := runtime.ListSessions(SpaceContext{SpaceRef: spaceID})
	if err != nil {
		t.Fatalf("ListSessions() error: %v", err)
	}
	if len(warnings) != 0 {
		t.Errorf("warnings = %v", warnings)
	}
	if len(views) != 1 || views[0].Session.ChatID != chatID {
		t.Fatalf("views = %+v", views)
	}
	// No lock is held for this chat, so it is not alive regardless of
	// what the log says.
	if views[0].Alive {
		t.Error("Alive = true without a held lock")
	}
}
