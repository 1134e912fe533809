// Copyright 2026 The Meridian Authors
// SPDX-License-Identifier: Apache-2.0

package space

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/haowjy/meridian-channel/lib/state"
)

// SessionAlive reports whether a chat's advisory lock is currently
// held by a live process. The lock file being held is the
// authoritative liveness answer; the session log is a derived view
// that can go stale if a process crashes, because the OS releases
// flocks on process death while no stop event gets written.
func SessionAlive(paths state.SpacePaths, chatID string) (bool, error) {
	lockPath := paths.SessionLockPath(chatID)
	if _, err := os.Stat(lockPath); os.IsNotExist(err) {
		return false, nil
	}
	lock, err := state.TryLock(lockPath)
	if err != nil {
		return false, err
	}
	if lock == nil {
		// Held elsewhere: a live process owns the session.
		return true, nil
	}
	lock.Release()
	return false, nil
}

// ReconcileSessions closes out sessions whose lock is no longer held
// but whose log still shows them live (no stop event). Lock liveness
// is ground truth; the log is patched to match it, never the other way
// around. Returns the chat IDs that were reconciled.
func ReconcileSessions(paths state.SpacePaths) ([]string, error) {
	sessions := state.NewSessionLog(paths)
	records, _, err := sessions.ReadAll()
	if err != nil {
		return nil, err
	}

	var reconciled []string
	for _, record := range records {
		if record.StoppedAt != "" {
			continue
		}
		alive, err := SessionAlive(paths, record.ChatID)
		if err != nil {
			return reconciled, err
		}
		if alive {
			continue
		}
		if err := sessions.AppendStop(record.ChatID); err != nil {
			return reconciled, fmt.Errorf("closing orphaned session %s: %w", record.ChatID, err)
		}
		os.Remove(paths.SessionLockPath(record.ChatID))
		reconciled = append(reconciled, record.ChatID)
	}
	return reconciled, nil
}

// ReconcileAll runs session reconciliation across every healthy space
// and removes stale session lock files left behind by crashed
// processes. Returns "space/chat" identifiers for everything fixed.
func ReconcileAll(root state.Root, store *Store) ([]string, error) {
	records, _ := store.List()
	var fixed []string
	for _, record := range records {
		paths := root.Space(record.ID)
		chatIDs, err := ReconcileSessions(paths)
		if err != nil {
			return fixed, err
		}
		for _, chatID := range chatIDs {
			fixed = append(fixed, record.ID+"/"+chatID)
		}
		removed, err := removeStaleLocks(paths)
		if err != nil {
			return fixed, err
		}
		fixed = append(fixed, removed...)
	}
	return fixed, nil
}

// removeStaleLocks deletes session lock files that no process holds
// and that no live session record references.
func removeStaleLocks(paths state.SpacePaths) ([]string, error) {
	entries, err := os.ReadDir(paths.SessionsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("scanning session locks: %w", err)
	}

	var removed []string
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasSuffix(name, ".lock") {
			continue
		}
		lockPath := filepath.Join(paths.SessionsDir, name)
		lock, err := state.TryLock(lockPath)
		if err != nil || lock == nil {
			continue
		}
		lock.Release()
		if err := os.Remove(lockPath); err == nil {
			removed = append(removed, name)
		}
	}
	return removed, nil
}
