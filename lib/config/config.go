// Copyright 2026 The Meridian Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads meridian settings from .meridian/config.yaml
// with environment overrides. Every field has a working default; an
// absent config file is the common case.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the resolved runtime configuration.
type Config struct {
	MaxRetries              int      `yaml:"max_retries"`
	RetryBackoffSeconds     float64  `yaml:"retry_backoff_seconds"`
	KillGraceSeconds        float64  `yaml:"kill_grace_seconds"`
	GuardrailTimeoutSeconds float64  `yaml:"guardrail_timeout_seconds"`
	WaitTimeoutSeconds      float64  `yaml:"wait_timeout_seconds"`
	DefaultPermissionTier   string   `yaml:"default_permission_tier"`
	DefaultModel            string   `yaml:"default_model"`
	BudgetPerRunUSD         float64  `yaml:"budget_per_run_usd"`
	BudgetPerSpaceUSD       float64  `yaml:"budget_per_space_usd"`
	Guardrails              []string `yaml:"guardrails"`
	SkillDirs               []string `yaml:"skill_dirs"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		MaxRetries:              3,
		RetryBackoffSeconds:     0.25,
		KillGraceSeconds:        2.0,
		GuardrailTimeoutSeconds: 30.0,
		WaitTimeoutSeconds:      600.0,
		DefaultPermissionTier:   "read-only",
		DefaultModel:            "claude-opus-4-6",
	}
}

// Load reads the config file at path over the defaults, then applies
// MERIDIAN_* environment overrides. A missing file is fine; a
// malformed one is an error.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("reading config: %w", err)
	}
	if err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parsing %s: %w", path, err)
		}
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks field ranges.
func (c Config) Validate() error {
	if c.MaxRetries < 0 {
		return fmt.Errorf("max_retries must be >= 0, got %d", c.MaxRetries)
	}
	if c.KillGraceSeconds <= 0 {
		return fmt.Errorf("kill_grace_seconds must be > 0, got %g", c.KillGraceSeconds)
	}
	if c.BudgetPerRunUSD < 0 || c.BudgetPerSpaceUSD < 0 {
		return fmt.Errorf("budget limits must be >= 0")
	}
	return nil
}

var envOverrides = map[string]func(*Config, string) error{
	"MERIDIAN_MAX_RETRIES": func(c *Config, v string) error {
		return setInt(&c.MaxRetries, v)
	},
	"MERIDIAN_RETRY_BACKOFF_SECONDS": func(c *Config, v string) error {
		return setFloat(&c.RetryBackoffSeconds, v)
	},
	"MERIDIAN_KILL_GRACE_SECONDS": func(c *Config, v string) error {
		return setFloat(&c.KillGraceSeconds, v)
	},
	"MERIDIAN_GUARDRAIL_TIMEOUT_SECONDS": func(c *Config, v string) error {
		return setFloat(&c.GuardrailTimeoutSeconds, v)
	},
	"MERIDIAN_WAIT_TIMEOUT_SECONDS": func(c *Config, v string) error {
		return setFloat(&c.WaitTimeoutSeconds, v)
	},
	"MERIDIAN_DEFAULT_PERMISSION_TIER": func(c *Config, v string) error {
		c.DefaultPermissionTier = v
		return nil
	},
	"MERIDIAN_DEFAULT_MODEL": func(c *Config, v string) error {
		c.DefaultModel = v
		return nil
	},
	"MERIDIAN_BUDGET_PER_RUN_USD": func(c *Config, v string) error {
		return setFloat(&c.BudgetPerRunUSD, v)
	},
	"MERIDIAN_BUDGET_PER_SPACE_USD": func(c *Config, v string) error {
		return setFloat(&c.BudgetPerSpaceUSD, v)
	},
}

func applyEnvOverrides(cfg *Config) error {
	for name, apply := range envOverrides {
		value := strings.TrimSpace(os.Getenv(name))
		if value == "" {
			continue
		}
		if err := apply(cfg, value); err != nil {
			return fmt.Errorf("invalid %s: %w", name, err)
		}
	}
	return nil
}

func setInt(target *int, value string) error {
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return err
	}
	*target = parsed
	return nil
}

func setFloat(target *float64, value string) error {
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return err
	}
	*target = parsed
	return nil
}
