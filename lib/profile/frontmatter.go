// Copyright 2026 The Meridian Authors
// SPDX-License-Identifier: Apache-2.0

// Package profile reads agent profiles and skills from the
// repository's .agents/ tree. Both are markdown files with YAML
// frontmatter; the body below the frontmatter is prompt content.
package profile

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

const frontmatterDelimiter = "---"

// splitFrontmatter separates a markdown document into its decoded
// YAML frontmatter and body. A document without a frontmatter block
// returns nil metadata and the full text as body.
func splitFrontmatter(markdown string) (map[string]any, string, error) {
	normalized := strings.ReplaceAll(markdown, "\r\n", "\n")
	if !strings.HasPrefix(normalized, frontmatterDelimiter+"\n") {
		return nil, normalized, nil
	}

	rest := normalized[len(frontmatterDelimiter)+1:]
	end := strings.Index(rest, "\n"+frontmatterDelimiter)
	if end < 0 {
		return nil, normalized, nil
	}

	header := rest[:end]
	body := rest[end+len(frontmatterDelimiter)+1:]
	if newline := strings.IndexByte(body, '\n'); newline >= 0 {
		body = body[newline+1:]
	} else {
		body = ""
	}

	meta := map[string]any{}
	if err := yaml.Unmarshal([]byte(header), &meta); err != nil {
		return nil, "", fmt.Errorf("parsing frontmatter: %w", err)
	}
	return meta, body, nil
}

func metaString(meta map[string]any, key string) string {
	value, ok := meta[key]
	if !ok || value == nil {
		return ""
	}
	return strings.TrimSpace(fmt.Sprintf("%v", value))
}

// metaStringList accepts both a YAML list and a single scalar.
func metaStringList(meta map[string]any, key string) []string {
	value, ok := meta[key]
	if !ok || value == nil {
		return nil
	}
	switch v := value.(type) {
	case string:
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			return []string{trimmed}
		}
		return nil
	case []any:
		var items []string
		for _, item := range v {
			if trimmed := strings.TrimSpace(fmt.Sprintf("%v", item)); trimmed != "" {
				items = append(items, trimmed)
			}
		}
		return items
	}
	return nil
}
