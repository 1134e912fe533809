// Copyright 2026 The Meridian Authors
// SPDX-License-Identifier: Apache-2.0

package state

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// schemaVersion tags every appended log line so future readers can
// recognize older layouts.
const schemaVersion = 1

// Run statuses. A run is "running" until a finalize event exists for
// its ID; the terminal status comes from that event.
const (
	StatusRunning   = "running"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

// RunRecord is the derived state of one run, assembled by replaying
// its events in file order. It is a pure function of the log contents.
type RunRecord struct {
	ID               string
	ChatID           string
	Model            string
	Agent            string
	Harness          string
	HarnessSessionID string
	Status           string
	Prompt           string
	PromptSHA        string
	StartedAt        string
	FinishedAt       string
	ExitCode         int
	DurationSecs     float64
	CostUSD          float64
	InputTokens      int64
	OutputTokens     int64
	Error            string
}

// Terminal reports whether the run has reached a final status.
func (r RunRecord) Terminal() bool {
	return r.Status != StatusRunning && r.Status != ""
}

// StartEvent carries the fields recorded when a run's subprocess is
// launched.
type StartEvent struct {
	ChatID           string
	Model            string
	Agent            string
	Harness          string
	HarnessSessionID string
	Prompt           string
	PromptSHA        string
}

// FinalizeEvent carries the outcome fields appended exactly once when
// a run's result is known.
type FinalizeEvent struct {
	Status       string
	ExitCode     int
	DurationSecs float64
	CostUSD      float64
	InputTokens  int64
	OutputTokens int64
	Error        string
}

// RunLog is the append-only event log for one space's runs.
type RunLog struct {
	paths SpacePaths
}

// NewRunLog returns the run log rooted at one space directory.
func NewRunLog(paths SpacePaths) *RunLog {
	return &RunLog{paths: paths}
}

// AppendStart allocates the next run ID and appends the start event.
// Both happen inside one held runs.lock: releasing the lock between
// reading the current max ID and writing the start line would let two
// concurrent callers allocate the same ID.
func (l *RunLog) AppendStart(start StartEvent) (string, error) {
	lock, err := AcquireLock(l.paths.RunsLock, 0)
	if err != nil {
		return "", err
	}
	defer lock.Release()

	events, _, err := readEvents(l.paths.RunsJSONL)
	if err != nil {
		return "", err
	}
	runID := fmt.Sprintf("r%d", maxNumericID(events, "r")+1)

	event := Event{
		"v":                  schemaVersion,
		"event":              "start",
		"id":                 runID,
		"chat_id":            start.ChatID,
		"model":              start.Model,
		"agent":              start.Agent,
		"harness":            start.Harness,
		"harness_session_id": start.HarnessSessionID,
		"status":             StatusRunning,
		"started_at":         utcNow(),
		"prompt":             start.Prompt,
	}
	if start.PromptSHA != "" {
		event["prompt_sha"] = start.PromptSHA
	}
	if err := appendEvent(l.paths.RunsJSONL, event); err != nil {
		return "", err
	}
	return runID, nil
}

// AppendFinalize appends the finalize event for a run under runs.lock.
func (l *RunLog) AppendFinalize(runID string, outcome FinalizeEvent) error {
	event := Event{
		"v":             schemaVersion,
		"event":         "finalize",
		"id":            runID,
		"status":        outcome.Status,
		"exit_code":     outcome.ExitCode,
		"duration_secs": outcome.DurationSecs,
		"finished_at":   utcNow(),
	}
	if outcome.CostUSD > 0 {
		event["cost_usd"] = outcome.CostUSD
	}
	if outcome.InputTokens > 0 {
		event["input_tokens"] = outcome.InputTokens
	}
	if outcome.OutputTokens > 0 {
		event["output_tokens"] = outcome.OutputTokens
	}
	if outcome.Error != "" {
		event["error"] = outcome.Error
	}

	lock, err := AcquireLock(l.paths.RunsLock, 0)
	if err != nil {
		return err
	}
	defer lock.Release()
	return appendEvent(l.paths.RunsJSONL, event)
}

// UpdateSessionID appends a patch event recording the harness-native
// session ID once output parsing has revealed it.
func (l *RunLog) UpdateSessionID(runID, harnessSessionID string) error {
	if harnessSessionID == "" {
		return nil
	}
	lock, err := AcquireLock(l.paths.RunsLock, 0)
	if err != nil {
		return err
	}
	defer lock.Release()
	return appendEvent(l.paths.RunsJSONL, Event{
		"v":                  schemaVersion,
		"event":              "update",
		"id":                 runID,
		"harness_session_id": harnessSessionID,
	})
}

// ReadAll replays the log and returns every run's derived record,
// ordered by numeric run ID, plus warnings for malformed interior
// lines. Reads take no lock: a trailing partial line from a concurrent
// append is dropped by the parser.
func (l *RunLog) ReadAll() ([]RunRecord, []ReadWarning, error) {
	events, warnings, err := readEvents(l.paths.RunsJSONL)
	if err != nil {
		return nil, nil, err
	}

	records := make(map[string]*RunRecord)
	var order []string
	for _, event := range events {
		runID, _ := eventString(event, "id")
		if runID == "" {
			continue
		}
		record, ok := records[runID]
		if !ok {
			record = &RunRecord{ID: runID, Status: StatusRunning}
			records[runID] = record
			order = append(order, runID)
		}
		applyRunEvent(record, event)
	}

	sort.Slice(order, func(i, j int) bool {
		return numericIDLess(order[i], order[j], "r")
	})
	result := make([]RunRecord, 0, len(order))
	for _, runID := range order {
		result = append(result, *records[runID])
	}
	return result, warnings, nil
}

// Get returns one run's derived record, or false if the ID is unknown.
func (l *RunLog) Get(runID string) (RunRecord, bool, error) {
	runs, _, err := l.ReadAll()
	if err != nil {
		return RunRecord{}, false, err
	}
	for _, run := range runs {
		if run.ID == runID {
			return run, true, nil
		}
	}
	return RunRecord{}, false, nil
}

// Stats aggregates counts and totals by streaming the same reduction
// ReadAll uses. No separate index is maintained; this is an explicit
// scale trade-off, acceptable to roughly ten thousand runs per space.
type Stats struct {
	TotalRuns         int
	ByStatus          map[string]int
	ByModel           map[string]int
	TotalDurationSecs float64
	TotalCostUSD      float64
	TotalInputTokens  int64
	TotalOutputTokens int64
}

// Aggregate computes run statistics, optionally filtered by a
// predicate. A nil filter keeps every run.
func (l *RunLog) Aggregate(filter func(RunRecord) bool) (Stats, error) {
	runs, _, err := l.ReadAll()
	if err != nil {
		return Stats{}, err
	}
	stats := Stats{ByStatus: map[string]int{}, ByModel: map[string]int{}}
	for _, run := range runs {
		if filter != nil && !filter(run) {
			continue
		}
		stats.TotalRuns++
		stats.ByStatus[run.Status]++
		if run.Model != "" {
			stats.ByModel[run.Model]++
		}
		stats.TotalDurationSecs += run.DurationSecs
		stats.TotalCostUSD += run.CostUSD
		stats.TotalInputTokens += run.InputTokens
		stats.TotalOutputTokens += run.OutputTokens
	}
	return stats, nil
}

// applyRunEvent folds one event into a run's derived record. Absent
// fields keep their previous value, so a finalize line never erases
// launch metadata.
func applyRunEvent(record *RunRecord, event Event) {
	kind, _ := eventString(event, "event")
	switch kind {
	case "start":
		setString(&record.ChatID, event, "chat_id")
		setString(&record.Model, event, "model")
		setString(&record.Agent, event, "agent")
		setString(&record.Harness, event, "harness")
		setString(&record.HarnessSessionID, event, "harness_session_id")
		setString(&record.Prompt, event, "prompt")
		setString(&record.PromptSHA, event, "prompt_sha")
		setString(&record.StartedAt, event, "started_at")
		if status, ok := eventString(event, "status"); ok {
			record.Status = status
		}
	case "update":
		setString(&record.HarnessSessionID, event, "harness_session_id")
	case "finalize":
		if status, ok := eventString(event, "status"); ok {
			record.Status = status
		}
		setString(&record.FinishedAt, event, "finished_at")
		setString(&record.Error, event, "error")
		if code, ok := eventInt(event, "exit_code"); ok {
			record.ExitCode = int(code)
		}
		if duration, ok := eventFloat(event, "duration_secs"); ok {
			record.DurationSecs = duration
		}
		if cost, ok := eventFloat(event, "cost_usd"); ok {
			record.CostUSD = cost
		}
		if tokens, ok := eventInt(event, "input_tokens"); ok {
			record.InputTokens = tokens
		}
		if tokens, ok := eventInt(event, "output_tokens"); ok {
			record.OutputTokens = tokens
		}
	}
}

func setString(target *string, event Event, key string) {
	if value, ok := eventString(event, key); ok && value != "" {
		*target = value
	}
}

// maxNumericID scans events for IDs of the form <prefix><N> and
// returns the largest N seen, or 0 for an empty log.
func maxNumericID(events []Event, prefix string) int {
	highest := 0
	for _, event := range events {
		id, _ := eventString(event, "id")
		if number, ok := parseNumericID(id, prefix); ok && number > highest {
			highest = number
		}
	}
	return highest
}

func parseNumericID(id, prefix string) (int, bool) {
	if !strings.HasPrefix(id, prefix) {
		return 0, false
	}
	number, err := strconv.Atoi(id[len(prefix):])
	if err != nil || number <= 0 {
		return 0, false
	}
	return number, true
}

// numericIDLess orders r2 before r10; non-numeric IDs sort last,
// lexically.
func numericIDLess(a, b, prefix string) bool {
	numberA, okA := parseNumericID(a, prefix)
	numberB, okB := parseNumericID(b, prefix)
	if okA && okB {
		return numberA < numberB
	}
	if okA != okB {
		return okA
	}
	return a < b
}

// utcNow formats the current time the way every Meridian log line
// records timestamps: UTC, second precision, trailing Z.
func utcNow() string {
	return time.Now().UTC().Truncate(time.Second).Format("2006-01-02T15:04:05Z")
}
