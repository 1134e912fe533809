// Copyright 2026 The Meridian Authors
// SPDX-License-Identifier: Apache-2.0

package state

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sys/unix"
)

// DefaultLockWait bounds how long AcquireLock blocks before giving up.
// Lock holders only cover short critical sections (an ID allocation
// plus one append, or one read-modify-write of space.json), so a
// multi-second wait means something is wedged, not busy.
const DefaultLockWait = 10 * time.Second

// lockPollInterval is the retry cadence for the non-blocking flock
// loop. Polling keeps the wait bound enforceable; a blocking LOCK_EX
// has no portable timeout.
const lockPollInterval = 25 * time.Millisecond

// LockUnavailableError reports that an advisory lock could not be
// acquired within the wait bound. It is surfaced to the caller and
// never retried automatically.
type LockUnavailableError struct {
	Path string
	Wait time.Duration
}

func (e *LockUnavailableError) Error() string {
	return fmt.Sprintf("lock unavailable: %s not acquired within %s", e.Path, e.Wait)
}

// Lock is a held advisory file lock. Release it with Release; the
// underlying flock is also dropped by the OS if the process dies,
// which is what makes lock liveness a usable crash signal.
type Lock struct {
	file *os.File
}

// AcquireLock blocks until an exclusive flock on path is held, or
// fails with LockUnavailableError once wait elapses. A wait of zero
// uses DefaultLockWait. The lock file (and parent directory) is
// created if missing.
//
// Two cooperating processes that both call AcquireLock on the same
// path never proceed concurrently past this call on a local
// filesystem. Advisory locks are not honored on NFS.
func AcquireLock(path string, wait time.Duration) (*Lock, error) {
	if wait <= 0 {
		wait = DefaultLockWait
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating lock dir: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening lock file %s: %w", path, err)
	}

	deadline := time.Now().Add(wait)
	for {
		err := unix.Flock(int(file.Fd()), unix.LOCK_EX|unix.LOCK_NB)
		if err == nil {
			return &Lock{file: file}, nil
		}
		if err != unix.EWOULDBLOCK && err != unix.EAGAIN {
			file.Close()
			return nil, fmt.Errorf("flock %s: %w", path, err)
		}
		if time.Now().After(deadline) {
			file.Close()
			return nil, &LockUnavailableError{Path: path, Wait: wait}
		}
		time.Sleep(lockPollInterval)
	}
}

// Release drops the lock and closes the lock file. Safe to call more
// than once.
func (l *Lock) Release() error {
	if l.file == nil {
		return nil
	}
	file := l.file
	l.file = nil
	if err := unix.Flock(int(file.Fd()), unix.LOCK_UN); err != nil {
		file.Close()
		return fmt.Errorf("unlocking: %w", err)
	}
	return file.Close()
}

// TryLock attempts a single non-blocking exclusive flock. It returns
// (nil, nil) when the lock is currently held elsewhere. Used for
// liveness probes where waiting would defeat the purpose.
func TryLock(path string) (*Lock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating lock dir: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening lock file %s: %w", path, err)
	}
	if err := unix.Flock(int(file.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		file.Close()
		if err == unix.EWOULDBLOCK || err == unix.EAGAIN {
			return nil, nil
		}
		return nil, fmt.Errorf("flock %s: %w", path, err)
	}
	return &Lock{file: file}, nil
}
