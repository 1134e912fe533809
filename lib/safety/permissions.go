// Copyright 2026 The Meridian Authors
// SPDX-License-Identifier: Apache-2.0

// Package safety implements Meridian's run-safety policies: permission
// tiers, USD budgets, secret redaction, guardrail scripts, and the
// encrypted secret store.
package safety

import (
	"fmt"
	"strings"
)

// PermissionTier is a coarse sandbox/capability level translated into
// harness-specific flags by each adapter.
type PermissionTier string

const (
	TierReadOnly       PermissionTier = "read-only"
	TierWorkspaceWrite PermissionTier = "workspace-write"
	TierFullAccess     PermissionTier = "full-access"
	TierDanger         PermissionTier = "danger"
)

// tierRank orders tiers by capability for escalation comparisons.
var tierRank = map[PermissionTier]int{
	TierReadOnly:       0,
	TierWorkspaceWrite: 1,
	TierFullAccess:     2,
	TierDanger:         3,
}

// Escalates reports whether tier grants more capability than base.
func (t PermissionTier) Escalates(base PermissionTier) bool {
	return tierRank[t] > tierRank[base]
}

// ParseTier parses a tier string. An empty string is read-only, the
// safest default.
func ParseTier(raw string) (PermissionTier, error) {
	normalized := PermissionTier(strings.ToLower(strings.TrimSpace(raw)))
	if normalized == "" {
		return TierReadOnly, nil
	}
	if _, ok := tierRank[normalized]; !ok {
		return "", fmt.Errorf("unsupported permission tier %q (expected: read-only, workspace-write, full-access, danger)", raw)
	}
	return normalized, nil
}

// PermissionConfig is the resolved permission policy for one run.
type PermissionConfig struct {
	Tier PermissionTier

	// Unsafe must be set for the danger tier; it records the
	// operator's explicit confirmation.
	Unsafe bool
}

// NewPermissionConfig validates a tier/unsafe combination.
func NewPermissionConfig(raw string, unsafe bool) (PermissionConfig, error) {
	tier, err := ParseTier(raw)
	if err != nil {
		return PermissionConfig{}, err
	}
	if tier == TierDanger && !unsafe {
		return PermissionConfig{}, fmt.Errorf("permission tier %q requires explicit --unsafe confirmation", TierDanger)
	}
	return PermissionConfig{Tier: tier, Unsafe: unsafe}, nil
}
