// Copyright 2026 The Meridian Authors
// SPDX-License-Identifier: Apache-2.0

// Package space manages the per-space metadata record: a single small
// mutable JSON document (`space.json`) guarded by a per-space lock and
// replaced atomically on every write. Spaces are never deleted; a
// closed space is retained for audit.
package space

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/haowjy/meridian-channel/lib/state"
)

const recordSchemaVersion = 1

// Space statuses.
const (
	StatusActive = "active"
	StatusClosed = "closed"
)

// Record is the serialized form of one space. The invariant
// `status == closed iff finished_at != nil` is maintained by
// SetStatus; nothing else writes the file.
type Record struct {
	SchemaVersion int     `json:"schema_version"`
	ID            string  `json:"id"`
	Name          string  `json:"name,omitempty"`
	Status        string  `json:"status"`
	StartedAt     string  `json:"started_at"`
	FinishedAt    *string `json:"finished_at"`
}

// CorruptStateError reports a space.json that failed to parse. The
// affected space is skipped by read operations rather than silently
// recreated: recreating would erase evidence of what went wrong.
type CorruptStateError struct {
	Path   string
	Reason string
}

func (e *CorruptStateError) Error() string {
	return fmt.Sprintf("corrupt space record %s: %s", e.Path, e.Reason)
}

// Store provides space CRUD over one state root.
type Store struct {
	root state.Root
}

// NewStore returns a space store over the given state root.
func NewStore(root state.Root) *Store {
	return &Store{root: root}
}

// Create allocates the next space ID under the global spaces lock,
// writes the initial record, and creates the space's subdirectories.
func (s *Store) Create(name string) (Record, error) {
	lock, err := state.AcquireLock(s.root.SpacesLockPath(), 0)
	if err != nil {
		return Record{}, err
	}
	defer lock.Release()

	spaceID := fmt.Sprintf("s%d", s.highestSpaceNumber()+1)
	paths := s.root.Space(spaceID)
	for _, dir := range []string{paths.Dir, paths.FSDir, paths.RunsDir, paths.SessionsDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return Record{}, fmt.Errorf("creating space dirs: %w", err)
		}
	}

	record := Record{
		SchemaVersion: recordSchemaVersion,
		ID:            spaceID,
		Name:          name,
		Status:        StatusActive,
		StartedAt:     utcNow(),
	}
	if err := writeRecord(paths.SpaceJSON, record); err != nil {
		return Record{}, err
	}
	if err := s.root.EnsureGitignore(); err != nil {
		return Record{}, err
	}
	return record, nil
}

// Get loads one space record. A parse failure is a CorruptStateError.
func (s *Store) Get(spaceID string) (Record, error) {
	return readRecord(s.root.Space(spaceID).SpaceJSON)
}

// List scans the spaces directory and returns every healthy record in
// numeric ID order, plus one error per unhealthy space. The scan is
// not cached; listing is a directory read every time.
func (s *Store) List() ([]Record, []error) {
	entries, err := os.ReadDir(s.root.SpacesDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, []error{fmt.Errorf("scanning spaces: %w", err)}
	}

	var records []Record
	var unhealthy []error
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		record, err := readRecord(s.root.Space(entry.Name()).SpaceJSON)
		if err != nil {
			unhealthy = append(unhealthy, err)
			continue
		}
		records = append(records, record)
	}
	sort.Slice(records, func(i, j int) bool {
		return spaceNumberLess(records[i].ID, records[j].ID)
	})
	return records, unhealthy
}

// SetStatus performs a locked read-modify-write of space.json using
// atomic replace, so concurrent calls serialize and a crash mid-write
// cannot corrupt the record. Closing sets finished_at (first close
// wins); reopening clears it. The operation is idempotent.
func (s *Store) SetStatus(spaceID, status string) (Record, error) {
	if status != StatusActive && status != StatusClosed {
		return Record{}, fmt.Errorf("space status must be %q or %q, got %q", StatusActive, StatusClosed, status)
	}

	paths := s.root.Space(spaceID)
	lock, err := state.AcquireLock(paths.SpaceLock, 0)
	if err != nil {
		return Record{}, err
	}
	defer lock.Release()

	record, err := readRecord(paths.SpaceJSON)
	if err != nil {
		return Record{}, err
	}

	record.Status = status
	if status == StatusClosed {
		if record.FinishedAt == nil {
			now := utcNow()
			record.FinishedAt = &now
		}
	} else {
		record.FinishedAt = nil
	}
	if err := writeRecord(paths.SpaceJSON, record); err != nil {
		return Record{}, err
	}
	return record, nil
}

func (s *Store) highestSpaceNumber() int {
	entries, err := os.ReadDir(s.root.SpacesDir())
	if err != nil {
		return 0
	}
	highest := 0
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasPrefix(name, "s") {
			continue
		}
		if number, err := strconv.Atoi(name[1:]); err == nil && number > highest {
			highest = number
		}
	}
	return highest
}

func writeRecord(path string, record Record) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encoding space record: %w", err)
	}
	payload = append(payload, '\n')

	// Write to a temp path and rename over the target. Never edit the
	// file in place.
	tmp := path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating space dir: %w", err)
	}
	if err := os.WriteFile(tmp, payload, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replacing %s: %w", path, err)
	}
	return nil
}

func readRecord(path string) (Record, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Record{}, &CorruptStateError{Path: path, Reason: "missing"}
		}
		return Record{}, fmt.Errorf("reading %s: %w", path, err)
	}
	var record Record
	if err := json.Unmarshal(raw, &record); err != nil {
		return Record{}, &CorruptStateError{Path: path, Reason: err.Error()}
	}
	if record.Status != StatusActive && record.Status != StatusClosed {
		return Record{}, &CorruptStateError{Path: path, Reason: fmt.Sprintf("invalid status %q", record.Status)}
	}
	return record, nil
}

func spaceNumberLess(a, b string) bool {
	numberA, errA := strconv.Atoi(strings.TrimPrefix(a, "s"))
	numberB, errB := strconv.Atoi(strings.TrimPrefix(b, "s"))
	if errA == nil && errB == nil {
		return numberA < numberB
	}
	return a < b
}

func utcNow() string {
	return time.Now().UTC().Truncate(time.Second).Format("2006-01-02T15:04:05Z")
}
