// Copyright 2026 The Meridian Authors
// SPDX-License-Identifier: Apache-2.0

package render

import (
	"strings"
	"testing"

	"github.com/charmbracelet/x/ansi"

	"github.com/haowjy/meridian-channel/lib/harness"
)

func TestMarkdownEmpty(t *testing.T) {
	if got := Markdown("   \n\t\n", DefaultTheme(), 80); got != "" {
		t.Errorf("Markdown(blank) = %q, want empty", got)
	}
}

func TestMarkdownStructure(t *testing.T) {
	input := "# Summary\n\nFixed the bug in\nthe retry loop.\n\n- first item\n- second item\n\n1. ordered\n\n> quoted line\n\n```go\nfmt.Println(\"done\")\n```\n\n---\n"
	plain := ansi.Strip(Markdown(input, DefaultTheme(), 80))

	for _, want := range []string{
		"Summary",
		"Fixed the bug in the retry loop.",
		"- first item",
		"- second item",
		"1. ordered",
		"│ quoted line",
		"Println",
		"─",
	} {
		if !strings.Contains(plain, want) {
			t.Errorf("rendered output missing %q:\n%s", want, plain)
		}
	}
	if !strings.HasSuffix(plain, "\n") || strings.HasSuffix(plain, "\n\n") {
		t.Errorf("output should end with exactly one newline:\n%q", plain)
	}
}

func TestMarkdownWrap(t *testing.T) {
	input := strings.Repeat("word ", 30)
	plain := ansi.Strip(Markdown(input, DefaultTheme(), 40))
	for _, line := range strings.Split(plain, "\n") {
		if len(line) > 40 {
			t.Errorf("line exceeds width 40: %q", line)
		}
	}
}

func TestEventWriterObserve(t *testing.T) {
	var out strings.Builder
	writer := NewEventWriter(&out, 0)

	writer.Observe(nil)
	writer.Observe(&harness.StreamEvent{Category: harness.CategoryProgress, Text: "   "})
	if out.Len() != 0 {
		t.Fatalf("empty events produced output: %q", out.String())
	}

	writer.Observe(&harness.StreamEvent{Category: harness.CategoryAssistant, Text: "looking at\nthe diff"})
	plain := ansi.Strip(out.String())
	if !strings.Contains(plain, "assistant") {
		t.Errorf("output missing category label: %q", plain)
	}
	if !strings.Contains(plain, "looking at the diff") {
		t.Errorf("newline in event text not flattened: %q", plain)
	}

	out.Reset()
	writer.Observe(&harness.StreamEvent{Category: harness.CategoryCost, CostUSD: 0.42})
	plain = ansi.Strip(out.String())
	if !strings.Contains(plain, "$0.4200") {
		t.Errorf("cost-only event not formatted: %q", plain)
	}
}

func TestEventWriterTruncates(t *testing.T) {
	var out strings.Builder
	writer := NewEventWriter(&out, 30)
	writer.Observe(&harness.StreamEvent{
		Category: harness.CategoryToolUse,
		Text:     strings.Repeat("x", 200),
	})
	plain := ansi.Strip(out.String())
	if !strings.Contains(plain, "…") {
		t.Errorf("long event text not truncated: %q", plain)
	}
	if strings.Contains(plain, strings.Repeat("x", 50)) {
		t.Errorf("truncated line still carries full text: %q", plain)
	}
}
