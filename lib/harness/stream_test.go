// Copyright 2026 The Meridian Authors
// SPDX-License-Identifier: Apache-2.0

package harness

import "testing"

func TestParseJSONStreamEventNonJSON(t *testing.T) {
	event := ParseJSONStreamEvent("Compiling package lib/state...")
	if event == nil {
		t.Fatal("non-JSON line should still produce an event")
	}
	if event.Category != CategoryProgress {
		t.Errorf("Category = %q, want progress", event.Category)
	}
	if event.Text != "Compiling package lib/state..." {
		t.Errorf("Text = %q", event.Text)
	}

	if event := ParseJSONStreamEvent("   \n"); event != nil {
		t.Errorf("blank line should return nil, got %+v", event)
	}
}

func TestParseJSONStreamEventCost(t *testing.T) {
	event := ParseJSONStreamEvent(`{"type":"result","usage":{"total_cost_usd":1.25}}`)
	if event == nil {
		t.Fatal("ParseJSONStreamEvent() returned nil")
	}
	if event.CostUSD != 1.25 {
		t.Errorf("CostUSD = %v, want 1.25", event.CostUSD)
	}

	// Dollar-string costs are coerced.
	event = ParseJSONStreamEvent(`{"type":"cost","cost":"$0.42"}`)
	if event.CostUSD != 0.42 {
		t.Errorf("CostUSD = %v, want 0.42", event.CostUSD)
	}
}

func TestCategorizeHeuristics(t *testing.T) {
	tests := []struct {
		eventType string
		want      string
	}{
		{"assistant", CategoryAssistant},
		{"message_delta", CategoryAssistant},
		{"thinking_delta", CategoryThinking},
		{"tool_use", CategoryToolUse},
		{"tool_error", CategoryError}, // error outranks tool
		{"run_failed", CategoryError},
		{"session_started", CategoryLifecycle},
		{"result", CategoryLifecycle},
		{"heartbeat", CategoryProgress},
		{"run.start", CategorySubRun},
	}
	for _, test := range tests {
		event := Categorize(&StreamEvent{Type: test.eventType}, nil)
		if event.Category != test.want {
			t.Errorf("Categorize(%q) = %q, want %q", test.eventType, event.Category, test.want)
		}
	}
}

func TestCategorizeExactMapWins(t *testing.T) {
	event := Categorize(&StreamEvent{Type: "response.completed"}, codexEventCategories)
	if event.Category != CategoryLifecycle {
		t.Errorf("response.completed = %q, want lifecycle", event.Category)
	}
	// "response.output_text.delta" would land on assistant via the
	// heuristic too, but "error" must hit the map before the substring
	// scan reclassifies anything.
	event = Categorize(&StreamEvent{Type: "error"}, codexEventCategories)
	if event.Category != CategoryError {
		t.Errorf("error = %q, want error", event.Category)
	}
}

func TestSubRunTextSynthesis(t *testing.T) {
	event := ParseJSONStreamEvent(`{"type":"run.start","id":"r4","model":"gpt-5","agent":"reviewer"}`)
	if event.Category != CategorySubRun {
		t.Fatalf("Category = %q, want sub-run", event.Category)
	}
	if event.Text != "r4 gpt-5 (reviewer) started" {
		t.Errorf("Text = %q", event.Text)
	}

	event = ParseJSONStreamEvent(`{"type":"run.done","id":"r4","secs":12,"exit":0,"tok":340}`)
	if event.Text != "r4 completed 12s exit=0 tok=340" {
		t.Errorf("Text = %q", event.Text)
	}

	// Without an agent the parenthetical is dropped.
	event = ParseJSONStreamEvent(`{"type":"meridian.run.start","id":"r5","model":"opus"}`)
	if event.Text != "r5 opus started" {
		t.Errorf("Text = %q", event.Text)
	}
}
