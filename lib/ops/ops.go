// Copyright 2026 The Meridian Authors
// SPDX-License-Identifier: Apache-2.0

// Package ops is the orchestration layer between the CLI surface and
// the run machinery. Operations validate their inputs fully before
// touching any log: a rejected request leaves no trace on disk.
package ops

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/haowjy/meridian-channel/lib/catalog"
	"github.com/haowjy/meridian-channel/lib/config"
	"github.com/haowjy/meridian-channel/lib/harness"
	"github.com/haowjy/meridian-channel/lib/space"
	"github.com/haowjy/meridian-channel/lib/state"
)

// ValidationError rejects a request before anything is spawned or
// logged.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func validationErrorf(format string, args ...any) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// SpaceContext is the explicit space selection threaded through every
// operation. The CLI translates ambient environment (MERIDIAN_SPACE)
// into this value exactly once at the boundary; nothing below reads
// the environment for it.
type SpaceContext struct {
	// SpaceRef is the selected space ID, empty when none was chosen.
	SpaceRef string
}

// Runtime bundles the long-lived collaborators operations need.
type Runtime struct {
	RepoRoot string
	Root     state.Root
	Config   config.Config
	Catalog  *catalog.Catalog
	Registry *harness.Registry
	Spaces   *space.Store
	Logger   *slog.Logger
}

// NewRuntime resolves the repository root and loads configuration and
// the model catalog. stateOverride relocates the state directory,
// normally empty.
func NewRuntime(repoRoot, stateOverride string, logger *slog.Logger) (*Runtime, error) {
	if repoRoot == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("resolving working directory: %w", err)
		}
		repoRoot = cwd
	}
	absRoot, err := filepath.Abs(repoRoot)
	if err != nil {
		return nil, fmt.Errorf("resolving repo root: %w", err)
	}

	root := state.ResolveRoot(absRoot, stateOverride)
	cfg, err := config.Load(root.ConfigPath())
	if err != nil {
		return nil, err
	}
	models, err := catalog.Load(root.ModelsPath(), logger)
	if err != nil {
		return nil, err
	}

	return &Runtime{
		RepoRoot: absRoot,
		Root:     root,
		Config:   cfg,
		Catalog:  models,
		Registry: harness.NewRegistry(),
		Spaces:   space.NewStore(root),
		Logger:   logger,
	}, nil
}

// resolveSpace returns the paths for the context's space, creating a
// fresh space when none was selected. Auto-creation is surfaced as a
// warning string so callers can show it; it is data, not an error.
func (r *Runtime) resolveSpace(ctx SpaceContext) (state.SpacePaths, string, error) {
	if ctx.SpaceRef != "" {
		record, err := r.Spaces.Get(ctx.SpaceRef)
		if err != nil {
			return state.SpacePaths{}, "", err
		}
		if record.Status == space.StatusClosed {
			return state.SpacePaths{}, "", validationErrorf("space %s is closed", record.ID)
		}
		return r.Root.Space(record.ID), "", nil
	}

	record, err := r.Spaces.Create("")
	if err != nil {
		return state.SpacePaths{}, "", err
	}
	warning := fmt.Sprintf("no active space: created %s", record.ID)
	return r.Root.Space(record.ID), warning, nil
}
