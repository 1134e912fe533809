// Copyright 2026 The Meridian Authors
// SPDX-License-Identifier: Apache-2.0

package harness

import "os"

// codexEventCategories maps codex's response-API event names onto
// Meridian categories. Anything not listed falls through to the
// shared substring heuristics.
var codexEventCategories = map[string]string{
	"response.completed":               CategoryLifecycle,
	"response.output_text.delta":       CategoryAssistant,
	"response.reasoning_summary.delta": CategoryThinking,
	"tool.call.started":                CategoryToolUse,
	"tool.call.completed":              CategoryToolUse,
	"error":                            CategoryError,
}

// CodexAdapter drives the `codex exec` CLI. Codex has no agent or
// skill flags; those request fields are dropped and handled through
// prompt composition instead.
type CodexAdapter struct{}

func (a *CodexAdapter) ID() string { return "codex" }

func (a *CodexAdapter) Capabilities() Capabilities {
	return Capabilities{
		StreamEvents:  true,
		SessionResume: true,
		NativeSkills:  false,
	}
}

func (a *CodexAdapter) BuildCommand(request Request) ([]string, []string, error) {
	binary := os.Getenv("CODEX_BINARY")
	if binary == "" {
		binary = "codex"
	}

	argv := []string{binary, "exec", "--model", request.Model, "--json"}
	if request.ResumeSessionID != "" {
		argv = append(argv, "resume", request.ResumeSessionID)
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

func (a *CodexAdapter) ParseStreamEvent(line string) *StreamEvent {
	return Categorize(ParseJSONStreamEvent(line), codexEventCategories)
}

func (a *CodexAdapter) ExtractResult(output []byte, runDir string) Outcome {
	return extractOutcome(output, runDir)
}
