// Copyright 2026 The Meridian Authors
// SPDX-License-Identifier: Apache-2.0

package harness

import (
	"reflect"
	"testing"
)

func TestRouteModel(t *testing.T) {
	tests := []struct {
		model       string
		wantHarness string
		wantWarning bool
	}{
		{"claude-opus-4", "claude", false},
		{"opus", "claude", false},
		{"sonnet-latest", "claude", false},
		{"haiku", "claude", false},
		{"gpt-5", "codex", false},
		{"o1-preview", "codex", false},
		{"o3", "codex", false},
		{"o4-mini", "codex", false},
		{"codex-large", "codex", false},
		{"opencode-qwen", "opencode", false},
		{"anthropic/claude-sonnet", "opencode", false},
		{"mystery-model", "codex", true},
		{"", "codex", true},
	}
	for _, test := range tests {
		decision := RouteModel(test.model)
		if decision.HarnessID != test.wantHarness {
			t.Errorf("RouteModel(%q).HarnessID = %q, want %q",
				test.model, decision.HarnessID, test.wantHarness)
		}
		if (decision.Warning != "") != test.wantWarning {
			t.Errorf("RouteModel(%q).Warning = %q, want warning=%v",
				test.model, decision.Warning, test.wantWarning)
		}
	}
}

func TestRegistry(t *testing.T) {
	registry := NewRegistry()

	want := []string{"claude", "codex", "opencode"}
	if got := registry.IDs(); !reflect.DeepEqual(got, want) {
		t.Errorf("IDs() = %v, want %v", got, want)
	}

	adapter, warning, err := registry.Route("claude-opus-4")
	if err != nil {
		t.Fatalf("Route() error: %v", err)
	}
	if adapter.ID() != "claude" || warning != "" {
		t.Errorf("Route(claude-opus-4) = %s/%q, want claude with no warning", adapter.ID(), warning)
	}

	if _, err := registry.Get("gemini"); err == nil {
		t.Error("Get(gemini) should return error for unregistered harness")
	}
}
