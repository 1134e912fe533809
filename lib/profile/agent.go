// Copyright 2026 The Meridian Authors
// SPDX-License-Identifier: Apache-2.0

package profile

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// AgentProfile is one parsed .agents/agents/*.md file: frontmatter
// defaults plus the markdown body used as prompt content.
type AgentProfile struct {
	Name        string
	Description string
	Model       string
	Skills      []string
	Tools       []string
	Sandbox     string
	Body        string
	Path        string
}

// AgentsDir is the canonical agent profile directory relative to the
// repository root.
func AgentsDir(repoRoot string) string {
	return filepath.Join(repoRoot, ".agents", "agents")
}

// ParseAgentProfile parses one markdown agent profile file. The
// filename stem stands in when frontmatter omits a name.
func ParseAgentProfile(path string) (AgentProfile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return AgentProfile{}, fmt.Errorf("reading agent profile: %w", err)
	}
	meta, body, err := splitFrontmatter(string(data))
	if err != nil {
		return AgentProfile{}, fmt.Errorf("parsing agent profile %s: %w", path, err)
	}

	name := metaString(meta, "name")
	if name == "" {
		name = strings.TrimSuffix(filepath.Base(path), ".md")
	}
	return AgentProfile{
		Name:        name,
		Description: metaString(meta, "description"),
		Model:       metaString(meta, "model"),
		Skills:      metaStringList(meta, "skills"),
		Tools:       metaStringList(meta, "tools"),
		Sandbox:     metaString(meta, "sandbox"),
		Body:        body,
		Path:        path,
	}, nil
}

// ScanAgentProfiles parses every profile under .agents/agents/. A
// missing directory yields an empty list.
func ScanAgentProfiles(repoRoot string) ([]AgentProfile, error) {
	dir := AgentsDir(repoRoot)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("scanning agent profiles: %w", err)
	}

	var profiles []AgentProfile
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".md") {
			continue
		}
		parsed, err := ParseAgentProfile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, parsed)
	}
	sort.Slice(profiles, func(i, j int) bool { return profiles[i].Name < profiles[j].Name })
	return profiles, nil
}

// LoadAgentProfile finds one profile by filename stem or frontmatter
// name.
func LoadAgentProfile(repoRoot, name string) (AgentProfile, error) {
	normalized := strings.TrimSpace(name)
	if normalized == "" {
		return AgentProfile{}, fmt.Errorf("agent profile name must not be empty")
	}
	profiles, err := ScanAgentProfiles(repoRoot)
	if err != nil {
		return AgentProfile{}, err
	}
	for _, profile := range profiles {
		stem := strings.TrimSuffix(filepath.Base(profile.Path), ".md")
		if stem == normalized || profile.Name == normalized {
			return profile, nil
		}
	}
	return AgentProfile{}, fmt.Errorf("agent profile %q not found under %s", name, AgentsDir(repoRoot))
}
