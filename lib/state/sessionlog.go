// Copyright 2026 The Meridian Authors
// SPDX-License-Identifier: Apache-2.0

package state

import (
	"fmt"
	"sort"
)

// SessionRecord is the derived state of one logical chat, assembled
// from session events. Liveness is not a field here: whether a session
// is alive is answered by its advisory lock file, and this record is a
// derived view that can go stale after a crash.
type SessionRecord struct {
	ChatID           string
	Harness          string
	HarnessSessionID string
	Model            string
	Params           []string
	StartedAt        string
	StoppedAt        string
}

// SessionLog is the append-only event log mapping chats to harness
// invocations for one space. It shares the run log's append and
// self-healing read machinery.
type SessionLog struct {
	paths SpacePaths
}

// NewSessionLog returns the session log rooted at one space directory.
func NewSessionLog(paths SpacePaths) *SessionLog {
	return &SessionLog{paths: paths}
}

// AppendStart allocates the next chat ID (unless one is supplied) and
// records the launch parameters. ID allocation and the append share
// one held sessions.lock for the same reason run IDs do.
func (l *SessionLog) AppendStart(record SessionRecord) (string, error) {
	lock, err := AcquireLock(l.paths.SessionsLock, 0)
	if err != nil {
		return "", err
	}
	defer lock.Release()

	chatID := record.ChatID
	if chatID == "" {
		events, _, err := readEvents(l.paths.SessionsJSONL)
		if err != nil {
			return "", err
		}
		chatID = fmt.Sprintf("c%d", maxNumericID(events, "c")+1)
	}

	params := make([]any, 0, len(record.Params))
	for _, param := range record.Params {
		params = append(params, param)
	}
	event := Event{
		"v":                  schemaVersion,
		"event":              "start",
		"id":                 chatID,
		"chat_id":            chatID,
		"harness":            record.Harness,
		"harness_session_id": record.HarnessSessionID,
		"model":              record.Model,
		"params":             params,
		"started_at":         utcNow(),
	}
	if err := appendEvent(l.paths.SessionsJSONL, event); err != nil {
		return "", err
	}
	return chatID, nil
}

// AppendStop records a graceful close for a chat.
func (l *SessionLog) AppendStop(chatID string) error {
	lock, err := AcquireLock(l.paths.SessionsLock, 0)
	if err != nil {
		return err
	}
	defer lock.Release()
	return appendEvent(l.paths.SessionsJSONL, Event{
		"v":          schemaVersion,
		"event":      "stop",
		"id":         chatID,
		"chat_id":    chatID,
		"stopped_at": utcNow(),
	})
}

// AppendUpdate patches the harness-native session ID into a chat's
// record. Harness-native IDs are usually unknown until the first run's
// output has been parsed, so they arrive after the start event.
func (l *SessionLog) AppendUpdate(chatID, harnessSessionID string) error {
	if harnessSessionID == "" {
		return nil
	}
	lock, err := AcquireLock(l.paths.SessionsLock, 0)
	if err != nil {
		return err
	}
	defer lock.Release()
	return appendEvent(l.paths.SessionsJSONL, Event{
		"v":                  schemaVersion,
		"event":              "update",
		"id":                 chatID,
		"chat_id":            chatID,
		"harness_session_id": harnessSessionID,
	})
}

// ReadAll replays session events into derived records ordered by
// numeric chat ID.
func (l *SessionLog) ReadAll() ([]SessionRecord, []ReadWarning, error) {
	events, warnings, err := readEvents(l.paths.SessionsJSONL)
	if err != nil {
		return nil, nil, err
	}

	records := make(map[string]*SessionRecord)
	var order []string
	for _, event := range events {
		chatID, _ := eventString(event, "chat_id")
		if chatID == "" {
			chatID, _ = eventString(event, "id")
		}
		if chatID == "" {
			continue
		}
		record, ok := records[chatID]
		if !ok {
			record = &SessionRecord{ChatID: chatID}
			records[chatID] = record
			order = append(order, chatID)
		}

		kind, _ := eventString(event, "event")
		switch kind {
		case "start":
			setString(&record.Harness, event, "harness")
			setString(&record.HarnessSessionID, event, "harness_session_id")
			setString(&record.Model, event, "model")
			setString(&record.StartedAt, event, "started_at")
			if params := eventStrings(event, "params"); params != nil {
				record.Params = params
			}
			record.StoppedAt = ""
		case "update":
			setString(&record.HarnessSessionID, event, "harness_session_id")
		case "stop":
			setString(&record.StoppedAt, event, "stopped_at")
		}
	}

	sort.Slice(order, func(i, j int) bool {
		return numericIDLess(order[i], order[j], "c")
	})
	result := make([]SessionRecord, 0, len(order))
	for _, chatID := range order {
		result = append(result, *records[chatID])
	}
	return result, warnings, nil
}

// Resolve returns the most recent session matching ref, which may be a
// chat ID or a raw harness-native session ID. The most recent match
// wins because a continued conversation appends newer records for the
// same underlying thread.
func (l *SessionLog) Resolve(ref string) (SessionRecord, bool, error) {
	records, _, err := l.ReadAll()
	if err != nil {
		return SessionRecord{}, false, err
	}
	for index := len(records) - 1; index >= 0; index-- {
		record := records[index]
		if record.ChatID == ref || (record.HarnessSessionID != "" && record.HarnessSessionID == ref) {
			return record, true, nil
		}
	}
	return SessionRecord{}, false, nil
}
