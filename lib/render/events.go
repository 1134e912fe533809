// Copyright 2026 The Meridian Authors
// SPDX-License-Identifier: Apache-2.0

package render

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/muesli/termenv"

	"github.com/haowjy/meridian-channel/lib/harness"
)

// EventWriter prints harness stream events as one labeled line each,
// for live progress display while a run executes.
type EventWriter struct {
	Out   io.Writer
	Width int

	mu     sync.Mutex
	lip    *lipgloss.Renderer
	labels map[string]lipgloss.Style
}

// NewEventWriter returns an event writer for a terminal of the given
// width. A width of zero disables truncation.
func NewEventWriter(out io.Writer, width int) *EventWriter {
	lip := lipgloss.NewRenderer(out, termenv.WithProfile(termenv.ANSI256))
	lip.SetColorProfile(termenv.ANSI256)
	labels := map[string]lipgloss.Style{
		harness.CategoryLifecycle: lip.NewStyle().Foreground(lipgloss.Color("81")),
		harness.CategoryAssistant: lip.NewStyle().Foreground(lipgloss.Color("252")),
		harness.CategoryThinking:  lip.NewStyle().Foreground(lipgloss.Color("244")).Italic(true),
		harness.CategoryToolUse:   lip.NewStyle().Foreground(lipgloss.Color("178")),
		harness.CategoryError:     lip.NewStyle().Foreground(lipgloss.Color("203")).Bold(true),
		harness.CategoryCost:      lip.NewStyle().Foreground(lipgloss.Color("114")),
		harness.CategorySubRun:    lip.NewStyle().Foreground(lipgloss.Color("141")),
		harness.CategoryProgress:  lip.NewStyle().Foreground(lipgloss.Color("240")),
	}
	return &EventWriter{Out: out, Width: width, lip: lip, labels: labels}
}

// Observe writes one event line. Safe for concurrent use; the spawn
// machinery delivers stdout and stderr events from separate
// goroutines.
func (w *EventWriter) Observe(event *harness.StreamEvent) {
	if event == nil {
		return
	}
	text := strings.TrimSpace(event.Text)
	if text == "" && event.CostUSD == 0 {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	style, ok := w.labels[event.Category]
	if !ok {
		style = w.lip.NewStyle()
	}
	label := style.Render(fmt.Sprintf("%-9s", event.Category))

	if text == "" {
		text = fmt.Sprintf("$%.4f", event.CostUSD)
	}
	text = strings.ReplaceAll(text, "\n", " ")
	if w.Width > 12 {
		text = ansi.Truncate(text, w.Width-11, "…")
	}
	fmt.Fprintf(w.Out, "%s %s\n", label, text)
}
