// Copyright 2026 The Meridian Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "config.yaml"))
	if err != nil {
		t.Fatalf("Load() with absent file error: %v", err)
	}
	if cfg.MaxRetries != 3 {
		t.Errorf("MaxRetries = %d, want 3", cfg.MaxRetries)
	}
	if cfg.DefaultPermissionTier != "read-only" {
		t.Errorf("DefaultPermissionTier = %q", cfg.DefaultPermissionTier)
	}
	if cfg.DefaultModel != "claude-opus-4-6" {
		t.Errorf("DefaultModel = %q", cfg.DefaultModel)
	}
	if cfg.BudgetPerRunUSD != 0 {
		t.Errorf("BudgetPerRunUSD = %v, want unlimited by default", cfg.BudgetPerRunUSD)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	doc := `max_retries: 1
default_model: sonnet
budget_per_run_usd: 2.5
guardrails:
  - ./scripts/check.sh
skill_dirs:
  - ~/shared-skills
`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.MaxRetries != 1 || cfg.DefaultModel != "sonnet" || cfg.BudgetPerRunUSD != 2.5 {
		t.Errorf("cfg = %+v", cfg)
	}
	if len(cfg.Guardrails) != 1 || len(cfg.SkillDirs) != 1 {
		t.Errorf("cfg lists = %v / %v", cfg.Guardrails, cfg.SkillDirs)
	}
	// Unset fields keep their defaults.
	if cfg.KillGraceSeconds != 2.0 {
		t.Errorf("KillGraceSeconds = %v, want default", cfg.KillGraceSeconds)
	}
}

func TestLoadEnvOverridesWinOverFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("max_retries: 5\n"), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	t.Setenv("MERIDIAN_MAX_RETRIES", "0")
	t.Setenv("MERIDIAN_BUDGET_PER_SPACE_USD", "10.5")
	t.Setenv("MERIDIAN_DEFAULT_MODEL", "haiku")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.MaxRetries != 0 {
		t.Errorf("MaxRetries = %d, want env override 0", cfg.MaxRetries)
	}
	if cfg.BudgetPerSpaceUSD != 10.5 {
		t.Errorf("BudgetPerSpaceUSD = %v", cfg.BudgetPerSpaceUSD)
	}
	if cfg.DefaultModel != "haiku" {
		t.Errorf("DefaultModel = %q", cfg.DefaultModel)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("max_retries: -2\n"), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Error("negative max_retries should fail validation")
	}

	if err := os.WriteFile(path, []byte("max_retries: [\n"), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Error("malformed YAML should fail Load")
	}

	t.Setenv("MERIDIAN_MAX_RETRIES", "not-a-number")
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("non-numeric env override should fail Load")
	}
}
