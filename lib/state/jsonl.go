// Copyright 2026 The Meridian Authors
// SPDX-License-Identifier: Apache-2.0

package state

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Event is one decoded log line. Both the run log and the session log
// share this raw representation; typed reducers in runlog.go and
// sessionlog.go interpret the fields.
type Event map[string]any

// ReadWarning describes a malformed interior line that was skipped
// during a log read. A truncated final line produces no warning (it is
// the expected shape of a crash mid-write), but malformed lines before
// the end indicate corruption worth surfacing.
type ReadWarning struct {
	Path string
	Line int
}

func (w ReadWarning) String() string {
	return fmt.Sprintf("%s:%d: skipping malformed log line", w.Path, w.Line)
}

// appendEvent encodes one event as a compact JSON line and appends it
// with a single write-then-sync. Callers must hold the corresponding
// log lock; the single atomic write is what keeps concurrent appends
// from interleaving partial lines.
func appendEvent(path string, event Event) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating log dir: %w", err)
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encoding log event: %w", err)
	}
	payload = append(payload, '\n')

	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("opening log %s: %w", path, err)
	}
	defer file.Close()
	// A crash mid-append can leave the file without a trailing newline.
	// Terminating the partial line here keeps it from swallowing this
	// event; the reader already skips the orphaned fragment.
	if unterminated, err := missingNewline(file); err != nil {
		return fmt.Errorf("inspecting log %s: %w", path, err)
	} else if unterminated {
		payload = append([]byte("\n"), payload...)
	}
	if _, err := file.Write(payload); err != nil {
		return fmt.Errorf("appending to %s: %w", path, err)
	}
	// Sync so the event survives a crash immediately after the append.
	// These logs are low-throughput; the fsync cost is acceptable.
	if err := file.Sync(); err != nil {
		return fmt.Errorf("syncing %s: %w", path, err)
	}
	return nil
}

// missingNewline reports whether a non-empty file lacks a trailing
// newline.
func missingNewline(file *os.File) (bool, error) {
	info, err := file.Stat()
	if err != nil {
		return false, err
	}
	if info.Size() == 0 {
		return false, nil
	}
	last := make([]byte, 1)
	if _, err := file.ReadAt(last, info.Size()-1); err != nil {
		return false, err
	}
	return last[0] != '\n', nil
}

// readEvents parses every line of a JSONL log. A missing file reads as
// empty. The final line failing to parse is silently dropped (crash
// mid-write); malformed lines earlier in the file are skipped and
// reported as warnings.
func readEvents(path string) ([]Event, []ReadWarning, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, nil
		}
		return nil, nil, fmt.Errorf("reading log %s: %w", path, err)
	}

	// Only a final line missing its newline is the expected crash
	// shape; a newline-terminated file has no truncated tail, so every
	// malformed line in it is real corruption.
	truncatedTail := -1
	if len(raw) > 0 && raw[len(raw)-1] != '\n' {
		truncatedTail = bytes.Count(raw, []byte("\n"))
	}

	lines := bytes.Split(raw, []byte("\n"))
	var events []Event
	var warnings []ReadWarning
	for index, line := range lines {
		trimmed := bytes.TrimSpace(line)
		if len(trimmed) == 0 {
			continue
		}
		var event Event
		if err := json.Unmarshal(trimmed, &event); err != nil {
			if index == truncatedTail {
				continue
			}
			warnings = append(warnings, ReadWarning{Path: path, Line: index + 1})
			continue
		}
		events = append(events, event)
	}
	return events, warnings, nil
}

// Field accessors tolerate the loose typing of decoded JSON. Missing
// or mistyped fields read as zero values; reducers treat absence as
// "keep the previous value".

func eventString(event Event, key string) (string, bool) {
	value, ok := event[key].(string)
	return value, ok
}

func eventFloat(event Event, key string) (float64, bool) {
	value, ok := event[key].(float64)
	return value, ok
}

func eventInt(event Event, key string) (int64, bool) {
	value, ok := event[key].(float64)
	if !ok {
		return 0, false
	}
	return int64(value), true
}

func eventStrings(event Event, key string) []string {
	raw, ok := event[key].([]any)
	if !ok {
		return nil
	}
	values := make([]string, 0, len(raw))
	for _, item := range raw {
		if text, ok := item.(string); ok {
			values = append(values, text)
		}
	}
	return values
}
