// Copyright 2026 The Meridian Authors
// SPDX-License-Identifier: Apache-2.0

package state

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	meridianDirName = ".meridian"
	spacesDirName   = ".spaces"
)

// gitignoreContent keeps space state out of version control while
// leaving per-space working trees (fs/) visible to the repository.
const gitignoreContent = ".spaces/**\n" +
	"!.spaces/*/\n" +
	"!.spaces/*/fs/\n" +
	"!.spaces/*/fs/**\n"

// Root is the resolved Meridian state root for one repository. All
// path computation goes through a Root so that every component agrees
// on canonical locations and no component re-reads ambient process
// environment.
type Root struct {
	// RepoRoot is the repository the state root belongs to.
	RepoRoot string

	// StateDir is the `.meridian` directory (or its override).
	StateDir string
}

// ResolveRoot computes the state root for a repository. An explicit
// non-empty override (typically translated from MERIDIAN_STATE_ROOT at
// the CLI boundary) replaces the default `<repo>/.meridian` location;
// a relative override is resolved against the repository root.
func ResolveRoot(repoRoot, override string) Root {
	stateDir := filepath.Join(repoRoot, meridianDirName)
	if override != "" {
		if filepath.IsAbs(override) {
			stateDir = override
		} else {
			stateDir = filepath.Join(repoRoot, override)
		}
	}
	return Root{RepoRoot: repoRoot, StateDir: stateDir}
}

// SpacesDir returns the directory holding all space directories.
func (r Root) SpacesDir() string {
	return filepath.Join(r.StateDir, spacesDirName)
}

// SpacesLockPath returns the global lock guarding space ID allocation.
func (r Root) SpacesLockPath() string {
	return filepath.Join(r.SpacesDir(), ".lock")
}

// SecretsPath returns the age-encrypted secret store location.
func (r Root) SecretsPath() string {
	return filepath.Join(r.StateDir, "secrets.age")
}

// ConfigPath returns the repository-level config file location.
func (r Root) ConfigPath() string {
	return filepath.Join(r.StateDir, "config.yaml")
}

// ModelsPath returns the model catalog override file location.
func (r Root) ModelsPath() string {
	return filepath.Join(r.StateDir, "models.jsonc")
}

// Space returns the resolved paths for one space directory.
func (r Root) Space(spaceID string) SpacePaths {
	dir := filepath.Join(r.SpacesDir(), spaceID)
	return SpacePaths{
		SpaceID:      spaceID,
		Dir:          dir,
		SpaceJSON:    filepath.Join(dir, "space.json"),
		SpaceLock:    filepath.Join(dir, "space.lock"),
		RunsJSONL:    filepath.Join(dir, "runs.jsonl"),
		RunsLock:     filepath.Join(dir, "runs.lock"),
		SessionsJSONL: filepath.Join(dir, "sessions.jsonl"),
		SessionsLock: filepath.Join(dir, "sessions.lock"),
		SessionsDir:  filepath.Join(dir, "sessions"),
		FSDir:        filepath.Join(dir, "fs"),
		RunsDir:      filepath.Join(dir, "runs"),
	}
}

// SpacePaths holds every canonical location inside one space
// directory. Components receive a SpacePaths value instead of
// computing paths themselves.
type SpacePaths struct {
	SpaceID       string
	Dir           string
	SpaceJSON     string
	SpaceLock     string
	RunsJSONL     string
	RunsLock      string
	SessionsJSONL string
	SessionsLock  string
	SessionsDir   string
	FSDir         string
	RunsDir       string
}

// RunDir returns the artifact directory for one run.
func (p SpacePaths) RunDir(runID string) string {
	return filepath.Join(p.RunsDir, runID)
}

// SessionLockPath returns the liveness lock file for one chat. The
// lock being held by a live process is the authoritative "session is
// alive" signal.
func (p SpacePaths) SessionLockPath(chatID string) string {
	return filepath.Join(p.SessionsDir, chatID+".lock")
}

// EnsureGitignore writes the `.meridian/.gitignore` ignore rules via
// atomic replace. Existing identical content is left untouched.
func (r Root) EnsureGitignore() error {
	if err := os.MkdirAll(r.StateDir, 0o755); err != nil {
		return fmt.Errorf("creating state dir: %w", err)
	}
	path := filepath.Join(r.StateDir, ".gitignore")
	if current, err := os.ReadFile(path); err == nil && string(current) == gitignoreContent {
		return nil
	}
	return atomicWriteFile(path, []byte(gitignoreContent))
}

// atomicWriteFile writes data to a temp file in the target directory
// and renames it over the target, so a crash mid-write can never leave
// a half-written file behind.
func atomicWriteFile(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replacing %s: %w", path, err)
	}
	return nil
}
