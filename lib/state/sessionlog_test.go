// Copyright 2026 The Meridian Authors
// SPDX-License-Identifier: Apache-2.0

package state

import (
	"testing"
)

func TestSessionStartStopUpdate(t *testing.T) {
	log := NewSessionLog(testPaths(t))

	chatID, err := log.AppendStart(SessionRecord{
		Harness: "claude",
		Model:   "claude-opus-4-6",
		Params:  []string{"--verbose"},
	})
	if err != nil {
		t.Fatalf("AppendStart() error: %v", err)
	}
	if chatID != "c1" {
		t.Errorf("chat ID = %q, want c1", chatID)
	}

	if err := log.AppendUpdate(chatID, "native-123"); err != nil {
		t.Fatalf("AppendUpdate() error: %v", err)
	}
	if err := log.AppendStop(chatID); err != nil {
		t.Fatalf("AppendStop() error: %v", err)
	}

	records, _, err := log.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll() error: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("ReadAll() returned %d records, want 1", len(records))
	}
	record := records[0]
	if record.HarnessSessionID != "native-123" {
		t.Errorf("HarnessSessionID = %q, want native-123", record.HarnessSessionID)
	}
	if record.StoppedAt == "" {
		t.Error("StoppedAt empty after stop event")
	}
	if len(record.Params) != 1 || record.Params[0] != "--verbose" {
		t.Errorf("Params = %v, want [--verbose]", record.Params)
	}
}

func TestSessionResolveByChatAndNativeID(t *testing.T) {
	log := NewSessionLog(testPaths(t))

	chatID, err := log.AppendStart(SessionRecord{Harness: "codex", Model: "gpt-5.3-codex"})
	if err != nil {
		t.Fatalf("AppendStart() error: %v", err)
	}
	if err := log.AppendUpdate(chatID, "resp-789"); err != nil {
		t.Fatalf("AppendUpdate() error: %v", err)
	}

	byChat, found, err := log.Resolve(chatID)
	if err != nil || !found {
		t.Fatalf("Resolve(%s) = %v, %v", chatID, found, err)
	}
	if byChat.Model != "gpt-5.3-codex" {
		t.Errorf("Model = %q, want gpt-5.3-codex", byChat.Model)
	}

	byNative, found, err := log.Resolve("resp-789")
	if err != nil || !found {
		t.Fatalf("Resolve(resp-789) = %v, %v", found, err)
	}
	if byNative.ChatID != chatID {
		t.Errorf("ChatID = %q, want %q", byNative.ChatID, chatID)
	}

	if _, found, _ := log.Resolve("c99"); found {
		t.Error("Resolve(c99) found a session that was never started")
	}
}

func TestSessionUpdateIgnoresEmptyID(t *testing.T) {
	log := NewSessionLog(testPaths(t))
	chatID, err := log.AppendStart(SessionRecord{Harness: "claude", Model: "m"})
	if err != nil {
		t.Fatalf("AppendStart() error: %v", err)
	}
	if err := log.AppendUpdate(chatID, ""); err != nil {
		t.Fatalf("AppendUpdate(empty) error: %v", err)
	}
	records, _, err := log.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll() error: %v", err)
	}
	if records[0].HarnessSessionID != "" {
		t.Errorf("HarnessSessionID = %q, want empty", records[0].HarnessSessionID)
	}
}
