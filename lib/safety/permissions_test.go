// Copyright 2026 The Meridian Authors
// SPDX-License-Identifier: Apache-2.0

package safety

import "testing"

func TestParseTier(t *testing.T) {
	tests := []struct {
		input string
		want  PermissionTier
	}{
		{"", TierReadOnly},
		{"read-only", TierReadOnly},
		{"Workspace-Write", TierWorkspaceWrite},
		{"  full-access  ", TierFullAccess},
		{"danger", TierDanger},
	}
	for _, test := range tests {
		got, err := ParseTier(test.input)
		if err != nil {
			t.Errorf("ParseTier(%q) error: %v", test.input, err)
			continue
		}
		if got != test.want {
			t.Errorf("ParseTier(%q) = %q, want %q", test.input, got, test.want)
		}
	}

	if _, err := ParseTier("yolo"); err == nil {
		t.Error("ParseTier(yolo) should return error")
	}
}

func TestEscalates(t *testing.T) {
	if !TierDanger.Escalates(TierReadOnly) {
		t.Error("danger should escalate past read-only")
	}
	if !TierWorkspaceWrite.Escalates(TierReadOnly) {
		t.Error("workspace-write should escalate past read-only")
	}
	if TierReadOnly.Escalates(TierReadOnly) {
		t.Error("a tier should not escalate past itself")
	}
	if TierReadOnly.Escalates(TierFullAccess) {
		t.Error("read-only should not escalate past full-access")
	}
}

func TestNewPermissionConfigDangerRequiresUnsafe(t *testing.T) {
	if _, err := NewPermissionConfig("danger", false); err == nil {
		t.Error("danger without unsafe should return error")
	}
	config, err := NewPermissionConfig("danger", true)
	if err != nil {
		t.Fatalf("NewPermissionConfig(danger, unsafe) error: %v", err)
	}
	if config.Tier != TierDanger || !config.Unsafe {
		t.Errorf("config = %+v, want danger/unsafe", config)
	}
}
