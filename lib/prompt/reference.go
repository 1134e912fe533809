// Copyright 2026 The Meridian Authors
// SPDX-License-Identifier: Apache-2.0

package prompt

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

var templateVarPattern = regexp.MustCompile(`\{\{\s*([A-Za-z_][A-Za-z0-9_]*)\s*\}\}`)

// ReferenceFile is one file pulled into the prompt via -f.
type ReferenceFile struct {
	Path    string
	Content string
}

// UndefinedVariableError reports {{KEY}} placeholders with no binding.
// Missing variables fail the run before spawn rather than sending a
// literal placeholder to the model.
type UndefinedVariableError struct {
	Names []string
}

func (e *UndefinedVariableError) Error() string {
	return "undefined template variables: " + strings.Join(e.Names, ", ")
}

// ParseVariableAssignments parses --var KEY=VALUE flags. A VALUE
// starting with @ reads the named file's contents at resolve time.
func ParseVariableAssignments(assignments []string) (map[string]string, error) {
	parsed := make(map[string]string, len(assignments))
	for _, assignment := range assignments {
		key, value, found := strings.Cut(assignment, "=")
		normalized := strings.TrimSpace(key)
		if !found || normalized == "" {
			return nil, fmt.Errorf("invalid template variable %q: expected KEY=VALUE", assignment)
		}
		parsed[normalized] = value
	}
	return parsed, nil
}

// ResolveVariables expands @path values into file contents relative to
// baseDir. Literal values pass through unchanged.
func ResolveVariables(variables map[string]string, baseDir string) (map[string]string, error) {
	resolved := make(map[string]string, len(variables))
	for key, value := range variables {
		if !strings.HasPrefix(value, "@") {
			resolved[key] = value
			continue
		}
		path := value[1:]
		if !filepath.IsAbs(path) {
			path = filepath.Join(baseDir, path)
		}
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("template variable %q points to unreadable file %s: %w", key, path, err)
		}
		resolved[key] = string(content)
	}
	return resolved, nil
}

// SubstituteVariables replaces {{KEY}} placeholders, failing fast when
// any placeholder has no binding.
func SubstituteVariables(text string, variables map[string]string) (string, error) {
	missing := map[string]bool{}
	for _, match := range templateVarPattern.FindAllStringSubmatch(text, -1) {
		if _, ok := variables[match[1]]; !ok {
			missing[match[1]] = true
		}
	}
	if len(missing) > 0 {
		names := make([]string, 0, len(missing))
		for name := range missing {
			names = append(names, name)
		}
		sort.Strings(names)
		return "", &UndefinedVariableError{Names: names}
	}

	return templateVarPattern.ReplaceAllStringFunc(text, func(match string) string {
		name := templateVarPattern.FindStringSubmatch(match)[1]
		return variables[name]
	}), nil
}

// LoadReferenceFiles reads -f paths in input order. A missing file is
// an error: a silently absent reference changes the prompt's meaning.
// Paths beginning with @ resolve against the session file directory
// when one is provided.
func LoadReferenceFiles(paths []string, baseDir, sessionFilesDir string) ([]ReferenceFile, error) {
	var loaded []ReferenceFile
	for _, raw := range paths {
		var resolved string
		if strings.HasPrefix(raw, "@") {
			if sessionFilesDir == "" {
				return nil, fmt.Errorf("session file reference %q requires MERIDIAN_SESSION", raw)
			}
			name, err := normalizeSessionFileName(raw)
			if err != nil {
				return nil, err
			}
			resolved = filepath.Join(sessionFilesDir, name)
		} else if filepath.IsAbs(raw) {
			resolved = raw
		} else {
			resolved = filepath.Join(baseDir, raw)
		}

		content, err := os.ReadFile(resolved)
		if err != nil {
			return nil, fmt.Errorf("reference file not found: %s: %w", resolved, err)
		}
		loaded = append(loaded, ReferenceFile{Path: resolved, Content: string(content)})
	}
	return loaded, nil
}

// normalizeSessionFileName maps @name to a flat markdown file name.
func normalizeSessionFileName(reference string) (string, error) {
	name := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(reference), "@"))
	if name == "" {
		return "", fmt.Errorf("session file name must not be empty")
	}
	if strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return "", fmt.Errorf("session file names use a flat namespace: %q", name)
	}
	if !strings.HasSuffix(name, ".md") {
		name += ".md"
	}
	return name, nil
}

func renderReferenceBlocks(references []ReferenceFile) []string {
	var blocks []string
	for _, reference := range references {
		body := strings.TrimSpace(reference.Content)
		if body == "" {
			continue
		}
		blocks = append(blocks, "# Reference: "+reference.Path+"\n\n"+body)
	}
	return blocks
}
