// Copyright 2026 The Meridian Authors
// SPDX-License-Identifier: Apache-2.0

package harness

import (
	"fmt"
	"sort"
	"strings"
)

// RoutingDecision is the result of mapping a model ID to a harness.
// Warning is non-empty when an unknown model family fell back to the
// default harness.
type RoutingDecision struct {
	HarnessID string
	Warning   string
}

// RouteModel maps a model ID to a harness family by prefix. Unknown
// families fall back to codex with a warning rather than failing; the
// warning is recorded on the run so the fallback stays visible.
func RouteModel(model string) RoutingDecision {
	normalized := strings.TrimSpace(model)

	switch {
	case hasAnyPrefix(normalized, "claude-", "opus", "sonnet", "haiku"):
		return RoutingDecision{HarnessID: "claude"}
	case hasAnyPrefix(normalized, "gpt-", "o1", "o3", "o4", "codex"):
		return RoutingDecision{HarnessID: "codex"}
	case strings.HasPrefix(normalized, "opencode-") || strings.Contains(normalized, "/"):
		return RoutingDecision{HarnessID: "opencode"}
	}

	return RoutingDecision{
		HarnessID: "codex",
		Warning:   fmt.Sprintf("unknown model family %q: falling back to codex", model),
	}
}

func hasAnyPrefix(value string, prefixes ...string) bool {
	for _, prefix := range prefixes {
		if strings.HasPrefix(value, prefix) {
			return true
		}
	}
	return false
}

// Registry holds the available adapters keyed by harness ID.
type Registry struct {
	adapters map[string]Adapter
}

// NewRegistry returns a registry with the built-in adapters.
func NewRegistry() *Registry {
	registry := &Registry{adapters: map[string]Adapter{}}
	registry.Register(&ClaudeAdapter{})
	registry.Register(&CodexAdapter{})
	registry.Register(&OpenCodeAdapter{})
	return registry
}

// Register adds or replaces one adapter.
func (r *Registry) Register(adapter Adapter) {
	r.adapters[adapter.ID()] = adapter
}

// Get returns the adapter for a harness ID.
func (r *Registry) Get(harnessID string) (Adapter, error) {
	adapter, ok := r.adapters[harnessID]
	if !ok {
		return nil, fmt.Errorf("unknown harness %q (available: %s)",
			harnessID, strings.Join(r.IDs(), ", "))
	}
	return adapter, nil
}

// Route resolves a model ID to its adapter.
func (r *Registry) Route(model string) (Adapter, string, error) {
	decision := RouteModel(model)
	adapter, err := r.Get(decision.HarnessID)
	if err != nil {
		return nil, "", err
	}
	return adapter, decision.Warning, nil
}

// IDs lists registered harness IDs in sorted order.
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.adapters))
	for id := range r.adapters {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
