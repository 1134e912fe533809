// Copyright 2026 The Meridian Authors
// SPDX-License-Identifier: Apache-2.0

package space

import (
	"os"
	"testing"

	"github.com/haowjy/meridian-channel/lib/state"
)

func TestSessionAliveWithHeldLock(t *testing.T) {
	store, root := testStore(t)
	record, err := store.Create("")
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	paths := root.Space(record.ID)

	sessions := state.NewSessionLog(paths)
	chatID, err := sessions.AppendStart(state.SessionRecord{Harness: "claude", Model: "m"})
	if err != nil {
		t.Fatalf("AppendStart() error: %v", err)
	}

	// No lock file at all: not alive.
	alive, err := SessionAlive(paths, chatID)
	if err != nil {
		t.Fatalf("SessionAlive() error: %v", err)
	}
	if alive {
		t.Error("session with no lock file reported alive")
	}

	// Held lock: alive. The holding process is this test.
	lock, err := state.AcquireLock(paths.SessionLockPath(chatID), 0)
	if err != nil {
		t.Fatalf("AcquireLock() error: %v", err)
	}
	alive, err = SessionAlive(paths, chatID)
	if err != nil {
		t.Fatalf("SessionAlive() error: %v", err)
	}
	if !alive {
		t.Error("session with held lock reported dead")
	}

	// Released lock with the file left behind: the crash shape.
	lock.Release()
	alive, err = SessionAlive(paths, chatID)
	if err != nil {
		t.Fatalf("SessionAlive() error: %v", err)
	}
	if alive {
		t.Error("session with released lock reported alive")
	}
}

func TestReconcileSessionsPatchesLogToMatchLocks(t *testing.T) {
	store, root := testStore(t)
	record, err := store.Create("")
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	paths := root.Space(record.ID)
	sessions := state.NewSessionLog(paths)

	// Orphan: started, lock file exists but nothing holds it.
	orphan, err := sessions.AppendStart(state.SessionRecord{Harness: "claude", Model: "m"})
	if err != nil {
		t.Fatalf("AppendStart() error: %v", err)
	}
	lock, err := state.AcquireLock(paths.SessionLockPath(orphan), 0)
	if err != nil {
		t.Fatalf("AcquireLock() error: %v", err)
	}
	lock.Release()

	// Live: started and the lock stays held through reconciliation.
	live, err := sessions.AppendStart(state.SessionRecord{Harness: "codex", Model: "m"})
	if err != nil {
		t.Fatalf("AppendStart() error: %v", err)
	}
	held, err := state.AcquireLock(paths.SessionLockPath(live), 0)
	if err != nil {
		t.Fatalf("AcquireLock() error: %v", err)
	}
	defer held.Release()

	reconciled, err := ReconcileSessions(paths)
	if err != nil {
		t.Fatalf("ReconcileSessions() error: %v", err)
	}
	if len(reconciled) != 1 || reconciled[0] != orphan {
		t.Fatalf("reconciled = %v, want [%s]", reconciled, orphan)
	}

	records, _, err := sessions.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll() error: %v", err)
	}
	for _, session := range records {
		switch session.ChatID {
		case orphan:
			if session.StoppedAt == "" {
				t.Error("orphaned session not stopped by reconcile")
			}
			if _, err := os.Stat(paths.SessionLockPath(orphan)); !os.IsNotExist(err) {
				t.Error("orphaned session lock file not removed")
			}
		case live:
			if session.StoppedAt != "" {
				t.Error("live session was stopped by reconcile")
			}
		}
	}

	// A second pass is a no-op.
	reconciled, err = ReconcileSessions(paths)
	if err != nil {
		t.Fatalf("ReconcileSessions() again error: %v", err)
	}
	if len(reconciled) != 0 {
		t.Errorf("second reconcile fixed %v, want nothing", reconciled)
	}
}
