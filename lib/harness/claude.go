// Copyright 2026 The Meridian Authors
// SPDX-License-Identifier: Apache-2.0

package harness

import (
	"os"
	"strings"
)

// ClaudeAdapter drives the `claude` CLI in stream-json print mode.
type ClaudeAdapter struct{}

func (a *ClaudeAdapter) ID() string { return "claude" }

func (a *ClaudeAdapter) Capabilities() Capabilities {
	return Capabilities{
		StreamEvents:  true,
		SessionResume: true,
		NativeSkills:  true,
	}
}

// BuildCommand assembles the claude argv. The binary can be overridden
// with CLAUDE_BINARY for test doubles.
func (a *ClaudeAdapter) BuildCommand(request Request) ([]string, []string, error) {
	binary := os.Getenv("CLAUDE_BINARY")
	if binary == "" {
		binary = "claude"
	}

	argv := []string{
		binary,
		"-p", request.Prompt,
		"--model", request.Model,
		"--output-format", "stream-json",
		"--verbose",
	}
	if request.Agent != "" {
		argv = append(argv, "--agent", request.Agent)
	}
	if len(request.Skills) > 0 {
		argv = append(argv, "--skills", strings.Join(request.Skills, ","))
	}
	if request.ResumeSessionID != "" {
		argv = append(argv, "--resume", request.ResumeSessionID)
	}

	flags, err := PermissionFlags(a.ID(), request.Permissions)
	if err != nil {
		return nil, nil, err
	}
	argv = append(argv, flags...)
	argv = append(argv, request.ExtraArgs...)
	return argv, nil, nil
}

func (a *ClaudeAdapter) ParseStreamEvent(line string) *StreamEvent {
	return Categorize(ParseJSONStreamEvent(line), nil)
}

func (a *ClaudeAdapter) ExtractResult(output []byte, runDir string) Outcome {
	return extractOutcome(output, runDir)
}
