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

// SkillDocument is one parsed skill file.
type SkillDocument struct {
	Name        string
	Description string
	Tags        []string
	Path        string
	Body        string
}

// SkillsDir is the canonical skill directory relative to the
// repository root.
func SkillsDir(repoRoot string) string {
	return filepath.Join(repoRoot, ".agents", "skills")
}

// SkillRegistry discovers and loads skills from search directories.
type SkillRegistry struct {
	dirs      []string
	documents []SkillDocument
	scanned   bool
}

// NewSkillRegistry returns a registry over the given search
// directories, falling back to the canonical repository skill dir.
func NewSkillRegistry(repoRoot string, extraDirs []string) *SkillRegistry {
	dirs := []string{SkillsDir(repoRoot)}
	dirs = append(dirs, extraDirs...)
	return &SkillRegistry{dirs: dirs}
}

// scan walks each search directory once. Skills live either as
// <dir>/<name>.md or <dir>/<name>/SKILL.md; the first directory that
// defines a name wins.
func (r *SkillRegistry) scan() ([]SkillDocument, error) {
	if r.scanned {
		return r.documents, nil
	}

	byName := map[string]SkillDocument{}
	var order []string
	for _, dir := range r.dirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("scanning skills: %w", err)
		}
		for _, entry := range entries {
			var path string
			switch {
			case entry.IsDir():
				path = filepath.Join(dir, entry.Name(), "SKILL.md")
				if _, err := os.Stat(path); err != nil {
					continue
				}
			case strings.HasSuffix(entry.Name(), ".md"):
				path = filepath.Join(dir, entry.Name())
			default:
				continue
			}
			document, err := parseSkill(path)
			if err != nil {
				return nil, err
			}
			if _, taken := byName[document.Name]; taken {
				continue
			}
			byName[document.Name] = document
			order = append(order, document.Name)
		}
	}

	sort.Strings(order)
	documents := make([]SkillDocument, 0, len(order))
	for _, name := range order {
		documents = append(documents, byName[name])
	}
	r.documents = documents
	r.scanned = true
	return documents, nil
}

func parseSkill(path string) (SkillDocument, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return SkillDocument{}, fmt.Errorf("reading skill: %w", err)
	}
	meta, body, err := splitFrontmatter(string(data))
	if err != nil {
		return SkillDocument{}, fmt.Errorf("parsing skill %s: %w", path, err)
	}

	name := metaString(meta, "name")
	if name == "" {
		base := filepath.Base(path)
		if base == "SKILL.md" {
			name = filepath.Base(filepath.Dir(path))
		} else {
			name = strings.TrimSuffix(base, ".md")
		}
	}
	return SkillDocument{
		Name:        name,
		Description: metaString(meta, "description"),
		Tags:        metaStringList(meta, "tags"),
		Path:        path,
		Body:        body,
	}, nil
}

// List returns all discovered skills in name order.
func (r *SkillRegistry) List() ([]SkillDocument, error) {
	return r.scan()
}

// Search keyword-matches name, description, tags, and body.
func (r *SkillRegistry) Search(query string) ([]SkillDocument, error) {
	normalized := strings.ToLower(strings.TrimSpace(query))
	documents, err := r.scan()
	if err != nil {
		return nil, err
	}
	if normalized == "" {
		return documents, nil
	}

	var matched []SkillDocument
	for _, document := range documents {
		haystack := strings.ToLower(document.Name + " " + document.Description + " " +
			strings.Join(document.Tags, " ") + " " + document.Body)
		if strings.Contains(haystack, normalized) {
			matched = append(matched, document)
		}
	}
	return matched, nil
}

// Load returns full skill content for the named skills in request
// order. Any unknown name fails the whole load.
func (r *SkillRegistry) Load(names []string) ([]SkillDocument, error) {
	documents, err := r.scan()
	if err != nil {
		return nil, err
	}
	byName := make(map[string]SkillDocument, len(documents))
	for _, document := range documents {
		byName[document.Name] = document
	}

	var loaded []SkillDocument
	var missing []string
	for _, raw := range names {
		name := strings.TrimSpace(raw)
		if name == "" {
			continue
		}
		document, ok := byName[name]
		if !ok {
			missing = append(missing, name)
			continue
		}
		loaded = append(loaded, document)
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("unknown skills: %s", strings.Join(missing, ", "))
	}
	return loaded, nil
}
