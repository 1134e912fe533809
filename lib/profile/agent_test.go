// Copyright 2026 The Meridian Authors
// SPDX-License-Identifier: Apache-2.0

package profile

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func writeAgent(t *testing.T, repoRoot, name, content string) {
	t.Helper()
	dir := AgentsDir(repoRoot)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("creating agents dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("writing agent: %v", err)
	}
}

func TestParseAgentProfile(t *testing.T) {
	root := t.TempDir()
	writeAgent(t, root, "reviewer.md", `---
name: code-reviewer
description: Reviews diffs
model: sonnet
skills:
  - go-review
  - security
sandbox: read-only
---
You are a meticulous reviewer.
`)

	profile, err := LoadAgentProfile(root, "code-reviewer")
	if err != nil {
		t.Fatalf("LoadAgentProfile() error: %v", err)
	}
	if profile.Model != "sonnet" || profile.Sandbox != "read-only" {
		t.Errorf("profile = %+v", profile)
	}
	if !reflect.DeepEqual(profile.Skills, []string{"go-review", "security"}) {
		t.Errorf("Skills = %v", profile.Skills)
	}
	if !strings.Contains(profile.Body, "meticulous reviewer") {
		t.Errorf("Body = %q", profile.Body)
	}

	// The filename stem is an equivalent lookup key.
	if _, err := LoadAgentProfile(root, "reviewer"); err != nil {
		t.Errorf("LoadAgentProfile(reviewer) error: %v", err)
	}
}

func TestParseAgentProfileStemFallback(t *testing.T) {
	root := t.TempDir()
	writeAgent(t, root, "helper.md", "Just a body, no frontmatter.\n")

	profile, err := LoadAgentProfile(root, "helper")
	if err != nil {
		t.Fatalf("LoadAgentProfile() error: %v", err)
	}
	if profile.Name != "helper" {
		t.Errorf("Name = %q, want filename stem", profile.Name)
	}
	if !strings.Contains(profile.Body, "Just a body") {
		t.Errorf("Body = %q", profile.Body)
	}
}

func TestLoadAgentProfileNotFound(t *testing.T) {
	root := t.TempDir()
	if _, err := LoadAgentProfile(root, "ghost"); err == nil {
		t.Error("missing profile should be an error")
	}
	if _, err := LoadAgentProfile(root, "  "); err == nil {
		t.Error("blank profile name should be rejected")
	}
}

func TestScanAgentProfiles(t *testing.T) {
	root := t.TempDir()

	// No .agents directory at all is not an error.
	profiles, err := ScanAgentProfiles(root)
	if err != nil {
		t.Fatalf("ScanAgentProfiles() error: %v", err)
	}
	if len(profiles) != 0 {
		t.Errorf("profiles = %+v, want none", profiles)
	}

	writeAgent(t, root, "zeta.md", "---\nname: zeta\n---\nz\n")
	writeAgent(t, root, "alpha.md", "---\nname: alpha\n---\na\n")
	writeAgent(t, root, "notes.txt", "ignored")

	profiles, err = ScanAgentProfiles(root)
	if err != nil {
		t.Fatalf("ScanAgentProfiles() error: %v", err)
	}
	if len(profiles) != 2 || profiles[0].Name != "alpha" || profiles[1].Name != "zeta" {
		t.Errorf("profiles = %+v, want alpha then zeta", profiles)
	}
}

func TestSplitFrontmatter(t *testing.T) {
	meta, body, err := splitFrontmatter("---\nname: x\n---\nbody text\n")
	if err != nil {
		t.Fatalf("splitFrontmatter() error: %v", err)
	}
	if meta["name"] != "x" || body != "body text\n" {
		t.Errorf("meta = %v, body = %q", meta, body)
	}

	// No frontmatter: the whole document is body.
	meta, body, err = splitFrontmatter("plain document\n")
	if err != nil {
		t.Fatalf("splitFrontmatter() error: %v", err)
	}
	if meta != nil || body != "plain document\n" {
		t.Errorf("meta = %v, body = %q", meta, body)
	}

	// An unterminated frontmatter block is treated as body, not an
	// error.
	_, body, err = splitFrontmatter("---\nname: x\nno closing delimiter\n")
	if err != nil {
		t.Fatalf("splitFrontmatter() error: %v", err)
	}
	if !strings.Contains(body, "no closing delimiter") {
		t.Errorf("body = %q", body)
	}

	if _, _, err := splitFrontmatter("---\nname: [unterminated\n---\nbody\n"); err == nil {
		t.Error("malformed YAML frontmatter should be an error")
	}
}
