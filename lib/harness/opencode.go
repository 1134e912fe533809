// Copyright 2026 The Meridian Authors
// SPDX-License-Identifier: Apache-2.0

package harness

import (
	"os"
	"strings"
)

// OpenCodeAdapter drives the `opencode run` CLI. Models routed here by
// the "opencode-" prefix have the prefix stripped before being handed
// to the binary; provider/model IDs pass through unchanged.
type OpenCodeAdapter struct{}

func (a *OpenCodeAdapter) ID() string { return "opencode" }

func (a *OpenCodeAdapter) Capabilities() Capabilities {
	return Capabilities{
		StreamEvents:  true,
		SessionResume: true,
		NativeSkills:  false,
	}
}

func (a *OpenCodeAdapter) BuildCommand(request Request) ([]string, []string, error) {
	binary := os.Getenv("OPENCODE_BINARY")
	if binary == "" {
		binary = "opencode"
	}

	model := strings.TrimPrefix(request.Model, "opencode-")
	argv := []string{binary, "run", "--model", model, "--print-logs"}
	if request.Agent != "" {
		argv = append(argv, "--agent", request.Agent)
	}
	if request.ResumeSessionID != "" {
		argv = append(argv, "--session", request.ResumeSessionID)
	}

	flags, err := PermissionFlags(a.ID(), request.Permissions)
	if err != nil {
		return nil, nil, err
	}
	argv = append(argv, flags...)
	argv = append(argv, request.ExtraArgs...)
	argv = append(argv, request.Prompt)
	return argv, nil, nil
}

func (a *OpenCodeAdapter) ParseStreamEvent(line string) *StreamEvent {
	return Categorize(ParseJSONStreamEvent(line), nil)
}

func (a *OpenCodeAdapter) ExtractResult(output []byte, runDir string) Outcome {
	return extractOutcome(output, runDir)
}
