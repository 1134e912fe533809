// Copyright 2026 The Meridian Authors
// SPDX-License-Identifier: Apache-2.0

package harness

import (
	"fmt"
	"strings"

	"github.com/haowjy/meridian-channel/lib/safety"
)

// Tool allowlists handed to claude per tier. Each tier is a strict
// superset of the one below it.
var claudeReadOnlyTools = []string{
	"Read",
	"Glob",
	"Grep",
	"Bash(git status)",
	"Bash(git log)",
	"Bash(git diff)",
}

var claudeWorkspaceWriteTools = append(claudeReadOnlyTools[:len(claudeReadOnlyTools):len(claudeReadOnlyTools)],
	"Edit",
	"Write",
	"Bash(git add)",
	"Bash(git commit)",
)

var claudeFullAccessTools = append(claudeWorkspaceWriteTools[:len(claudeWorkspaceWriteTools):len(claudeWorkspaceWriteTools)],
	"WebFetch",
	"WebSearch",
	"Bash",
)

func claudeAllowedTools(tier safety.PermissionTier) []string {
	switch tier {
	case safety.TierReadOnly:
		return claudeReadOnlyTools
	case safety.TierWorkspaceWrite:
		return claudeWorkspaceWriteTools
	default:
		return claudeFullAccessTools
	}
}

// PermissionFlags translates one permission tier into the CLI flags of
// a specific harness. The danger tier requires the unsafe
// acknowledgement; NewPermissionConfig enforces that before a config
// can exist, but the check repeats here so a hand-built config cannot
// slip through.
func PermissionFlags(harnessID string, config safety.PermissionConfig) ([]string, error) {
	if config.Tier == safety.TierDanger {
		if !config.Unsafe {
			return nil, fmt.Errorf("danger tier requested without --unsafe")
		}
		switch harnessID {
		case "claude":
			return []string{"--dangerously-skip-permissions"}, nil
		case "codex":
			return []string{"--dangerously-bypass-approvals-and-sandbox"}, nil
		}
		// opencode has no global bypass flag.
		return nil, nil
	}

	switch harnessID {
	case "claude":
		return []string{"--allowedTools", strings.Join(claudeAllowedTools(config.Tier), ",")}, nil
	case "codex":
		switch config.Tier {
		case safety.TierReadOnly:
			return []string{"--sandbox", "read-only"}, nil
		case safety.TierWorkspaceWrite:
			return []string{"--sandbox", "workspace-write"}, nil
		default:
			return []string{"--sandbox", "danger-full-access"}, nil
		}
	}

	// opencode permission controls vary by backend provider; safe tiers
	// keep the harness default.
	return nil, nil
}
