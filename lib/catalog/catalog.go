// Copyright 2026 The Meridian Authors
// SPDX-License-Identifier: Apache-2.0

// Package catalog holds the built-in model catalog and merges
// repository overrides from .meridian/models.jsonc. Every run's model
// name or alias resolves through here before routing.
package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"sort"
	"strings"

	"github.com/tidwall/jsonc"

	"github.com/haowjy/meridian-channel/lib/harness"
)

// Model is one catalog entry plus operational guidance surfaced by
// `meridian models`.
type Model struct {
	ModelID   string   `json:"model_id"`
	Aliases   []string `json:"aliases"`
	Role      string   `json:"role"`
	Strengths string   `json:"strengths"`
	CostTier  string   `json:"cost_tier"`
	Harness   string   `json:"harness"`
}

func entry(modelID string, aliases []string, role, strengths, costTier string) Model {
	return Model{
		ModelID:   modelID,
		Aliases:   aliases,
		Role:      role,
		Strengths: strengths,
		CostTier:  costTier,
		Harness:   harness.RouteModel(modelID).HarnessID,
	}
}

// Builtin returns the catalog shipped with meridian.
func Builtin() []Model {
	return []Model{
		entry("claude-opus-4-6", []string{"opus"},
			"Default / all-rounder", "Best supervisor brain", "$$$"),
		entry("gpt-5.3-codex", []string{"codex"},
			"Executor / correctness", "Repo implementation and correctness passes", "$"),
		entry("claude-sonnet-4-6", []string{"sonnet"},
			"Fast generalist", "UI iteration and fast implementation", "$$"),
		entry("claude-haiku-4-5", []string{"haiku"},
			"Quick transforms", "Commit messages and quick transforms", "$"),
		entry("gpt-5.2-high", []string{"gpt52h"},
			"Escalation solver", "Strong generalist reasoning plus coding", "$$"),
		entry("gemini-3.1-pro", []string{"gemini"},
			"Researcher / multimodal", "Knowledge breadth and multimodal tasks", "$$"),
	}
}

// UnknownModelError reports a name that matches neither a catalog ID
// nor an alias.
type UnknownModelError struct {
	Name string
}

func (e *UnknownModelError) Error() string {
	return fmt.Sprintf("unknown model %q", e.Name)
}

// Catalog is the merged built-in plus override model set.
type Catalog struct {
	models []Model
	logger *slog.Logger
}

// Load merges overrides from the given models.jsonc path over the
// built-in catalog. A missing override file is not an error; a
// malformed one is, so a typo cannot silently revert to defaults.
func Load(overridesPath string, logger *slog.Logger) (*Catalog, error) {
	merged := map[string]Model{}
	for _, model := range Builtin() {
		merged[model.ModelID] = model
	}

	overrides, err := loadOverrides(overridesPath)
	if err != nil {
		return nil, err
	}
	for _, model := range overrides {
		merged[model.ModelID] = model
	}

	ids := make([]string, 0, len(merged))
	for id := range merged {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	models := make([]Model, 0, len(ids))
	for _, id := range ids {
		models = append(models, merged[id])
	}
	return &Catalog{models: models, logger: logger}, nil
}

// Models lists the merged catalog in model-ID order.
func (c *Catalog) Models() []Model {
	return c.models
}

// Resolve maps a model ID or alias to its catalog entry. IDs win over
// aliases; when two entries declare the same alias, the first by
// model-ID order wins and the conflict is logged.
func (c *Catalog) Resolve(nameOrAlias string) (Model, error) {
	normalized := strings.TrimSpace(nameOrAlias)
	if normalized == "" {
		return Model{}, fmt.Errorf("model identifier must not be empty")
	}

	for _, model := range c.models {
		if model.ModelID == normalized {
			return model, nil
		}
	}

	aliasOwners := map[string]Model{}
	for _, model := range c.models {
		for _, alias := range model.Aliases {
			existing, taken := aliasOwners[alias]
			if !taken {
				aliasOwners[alias] = model
				continue
			}
			if existing.ModelID != model.ModelID && c.logger != nil {
				c.logger.Warn("duplicate model alias",
					"alias", alias,
					"kept", existing.ModelID,
					"ignored", model.ModelID)
			}
		}
	}

	if model, ok := aliasOwners[normalized]; ok {
		return model, nil
	}
	return Model{}, &UnknownModelError{Name: nameOrAlias}
}

// overridesFile is the models.jsonc document shape.
type overridesFile struct {
	Models []overrideRow `json:"models"`
}

type overrideRow struct {
	ModelID   string   `json:"model_id"`
	ID        string   `json:"id"`
	Aliases   []string `json:"aliases"`
	Role      string   `json:"role"`
	Strengths string   `json:"strengths"`
	CostTier  string   `json:"cost_tier"`
	Harness   string   `json:"harness"`
}

func loadOverrides(path string) ([]Model, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading model overrides: %w", err)
	}

	var parsed overridesFile
	if err := json.Unmarshal(jsonc.ToJSON(data), &parsed); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	var models []Model
	for _, row := range parsed.Models {
		modelID := strings.TrimSpace(row.ModelID)
		if modelID == "" {
			modelID = strings.TrimSpace(row.ID)
		}
		if modelID == "" {
			return nil, fmt.Errorf("parsing %s: model override row is missing model_id", path)
		}

		model := Model{
			ModelID:   modelID,
			Aliases:   dedupeAliases(row.Aliases),
			Role:      orDefault(row.Role, "Custom model"),
			Strengths: strings.TrimSpace(row.Strengths),
			CostTier:  orDefault(row.CostTier, "$$"),
			Harness:   strings.TrimSpace(row.Harness),
		}
		if model.Harness == "" {
			model.Harness = harness.RouteModel(modelID).HarnessID
		}
		models = append(models, model)
	}
	return models, nil
}

func dedupeAliases(raw []string) []string {
	seen := map[string]bool{}
	var aliases []string
	for _, alias := range raw {
		normalized := strings.TrimSpace(alias)
		if normalized == "" || seen[normalized] {
			continue
		}
		seen[normalized] = true
		aliases = append(aliases, normalized)
	}
	return aliases
}

func orDefault(value, fallback string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return fallback
	}
	return trimmed
}
