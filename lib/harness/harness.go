// Copyright 2026 The Meridian Authors
// SPDX-License-Identifier: Apache-2.0

// Package harness abstracts the external AI coding-agent CLI tools
// Meridian shells out to. Each harness (claude, codex, opencode)
// implements Adapter: a pure command builder, a tolerant stream-event
// parser, and a post-exit result extractor. Adding a harness means
// implementing Adapter, not branching inside shared code.
package harness

import (
	"github.com/haowjy/meridian-channel/lib/safety"
)

// Stream event categories. Unknown harness output falls into
// CategoryProgress and is passed through opaquely.
const (
	CategoryLifecycle = "lifecycle"
	CategoryAssistant = "assistant"
	CategoryThinking  = "thinking"
	CategoryToolUse   = "tool-use"
	CategoryError     = "error"
	CategoryCost      = "cost-update"
	CategorySubRun    = "sub-run"
	CategoryProgress  = "progress"
)

// Request is the abstract input for one harness launch. BuildCommand
// consumes it without performing I/O; everything here is already
// resolved by the orchestration layer.
type Request struct {
	// Prompt is the fully composed prompt text.
	Prompt string

	// Model is the canonical model identifier.
	Model string

	// Agent is the agent profile name, when one applies. Harnesses
	// without native agent support drop it.
	Agent string

	// Skills are skill names for harnesses with native skill support.
	Skills []string

	// Permissions is the resolved permission configuration,
	// translated into harness-specific flags by the adapter.
	Permissions safety.PermissionConfig

	// ResumeSessionID is the harness-native conversation ID to
	// continue, empty for a brand-new run.
	ResumeSessionID string

	// ExtraArgs are operator passthrough flags appended verbatim.
	ExtraArgs []string
}

// StreamEvent is one classified line of harness output.
type StreamEvent struct {
	// Type is the harness-native event type string.
	Type string

	// Category is the normalized Meridian category (see constants).
	Category string

	// Text is human-readable content when the event carries any.
	Text string

	// CostUSD is the cumulative run cost when the event reports one,
	// otherwise zero. Feeds the live budget tracker.
	CostUSD float64

	// Raw is the original line.
	Raw string
}

// Outcome is the structured result extracted from captured output
// after the process exits. Extraction must always succeed in producing
// some report from stdout alone: a read-only sandbox tier prevents the
// harness from writing a report file, so the last assistant message is
// the fallback.
type Outcome struct {
	CostUSD          float64
	InputTokens      int64
	OutputTokens     int64
	HarnessSessionID string

	// Report is the run report text; ReportFromFile records whether
	// it came from an explicit report.md or was synthesized from the
	// last assistant message.
	Report         string
	ReportFromFile bool

	// OutputEmpty is true when the process produced no usable output
	// at all. A zero exit with empty output is treated as a failure.
	OutputEmpty bool
}

// Capabilities are per-harness feature flags consulted by the
// orchestration layer.
type Capabilities struct {
	StreamEvents  bool
	SessionResume bool
	NativeSkills  bool
}

// Adapter is the boundary between Meridian lifecycle management and
// harness-specific behavior.
type Adapter interface {
	// ID returns the stable harness identifier ("claude", "codex",
	// "opencode").
	ID() string

	// Capabilities returns the harness's feature flags.
	Capabilities() Capabilities

	// BuildCommand translates a request into an argv and an
	// environment overlay (KEY=VALUE entries merged over the
	// sanitized base environment). Pure: no I/O, no process state.
	BuildCommand(request Request) (argv []string, env []string, err error)

	// ParseStreamEvent classifies one output line. It never fails on
	// malformed input: a line that isn't a recognizable event returns
	// nil and is treated as opaque passthrough.
	ParseStreamEvent(line string) *StreamEvent

	// ExtractResult scans the captured output (and the run directory,
	// for an explicit report.md) after the process exits.
	ExtractResult(output []byte, runDir string) Outcome
}
