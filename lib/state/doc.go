// Copyright 2026 The Meridian Authors
// SPDX-License-Identifier: Apache-2.0

// Package state implements the file-authoritative storage layer for
// Meridian: canonical path resolution under `.meridian/`, advisory
// file locks, and the append-only JSONL run and session logs.
//
// All shared mutable state lives in three kinds of files per space:
//
//   - space.json: a small mutable JSON document, replaced atomically
//     (temp file + rename) under the per-space lock.
//   - runs.jsonl: append-only run events (start, finalize). A run's
//     status is derived by replaying its events in file order; it is
//     never stored as mutable state.
//   - sessions.jsonl: append-only session events (start, stop,
//     update) mapping logical chats to harness invocations.
//
// Writers always hold the corresponding .lock file (flock). Readers
// never lock: they tolerate a concurrently-appending writer by
// dropping a trailing partial line, which is also the expected shape
// of a crash mid-write.
//
// Advisory locks are not honored on network filesystems; Meridian
// state is documented as local-filesystem-only for this reason.
package state
