// Copyright 2026 The Meridian Authors
// SPDX-License-Identifier: Apache-2.0

// Package render draws run reports and stream events as styled
// terminal output.
package render

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/alecthomas/chroma/v2/quick"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/muesli/termenv"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/text"
)

// Theme names the colors used for report rendering.
type Theme struct {
	Normal  lipgloss.TerminalColor
	Faint   lipgloss.TerminalColor
	Heading lipgloss.TerminalColor
	Border  lipgloss.TerminalColor
}

// DefaultTheme is tuned for dark terminals.
func DefaultTheme() Theme {
	return Theme{
		Normal:  lipgloss.Color("252"),
		Faint:   lipgloss.Color("244"),
		Heading: lipgloss.Color("81"),
		Border:  lipgloss.Color("240"),
	}
}

// The parser configuration never changes and goldmark parsers are
// safe to share, so one instance serves every render.
var (
	parserInstance goldmark.Markdown
	parserOnce     sync.Once
)

func parser() goldmark.Markdown {
	parserOnce.Do(func() {
		parserInstance = goldmark.New(goldmark.WithExtensions(extension.GFM))
	})
	return parserInstance
}

// Markdown renders a report as styled terminal text wrapped to width.
// Soft line breaks inside paragraphs become spaces so hard-wrapped
// source reflows at the terminal's width.
func Markdown(input string, theme Theme, width int) string {
	if strings.TrimSpace(input) == "" {
		return ""
	}
	source := []byte(input)
	document := parser().Parser().Parse(text.NewReader(source))

	// Color profile is forced: this path is only taken when stdout is
	// a terminal, and auto-detection strips color under test runners.
	lip := lipgloss.NewRenderer(os.Stderr, termenv.WithProfile(termenv.ANSI256))
	lip.SetColorProfile(termenv.ANSI256)

	walker := &markdownWalker{source: source, theme: theme, width: width, lip: lip}
	ast.Walk(document, walker.walk)
	return strings.TrimRight(walker.output.String(), "\n") + "\n"
}

// markdownWalker accumulates inline runs per block and flushes them
// word-wrapped when the block closes. A direct ast.Walk fits that
// accumulate-then-wrap shape better than goldmark's streaming
// renderer interface.
type markdownWalker struct {
	source []byte
	theme  Theme
	width  int
	lip    *lipgloss.Renderer

	output strings.Builder
	inline strings.Builder

	indent  string
	bullet  string
	bold    int
	italic  int
	counter []int
}

func (w *markdownWalker) style() lipgloss.Style {
	return w.lip.NewStyle()
}

func (w *markdownWalker) contentWidth() int {
	width := w.width - len(w.indent)
	if width < 16 {
		width = 16
	}
	return width
}

func (w *markdownWalker) walk(node ast.Node, entering bool) (ast.WalkStatus, error) {
	switch typed := node.(type) {
	case *ast.Paragraph, *ast.TextBlock:
		if entering {
			w.inline.Reset()
		} else {
			w.flushParagraph()
		}

	case *ast.Heading:
		if entering {
			w.inline.Reset()
		} else {
			w.flushHeading(typed)
		}

	case *ast.FencedCodeBlock:
		if entering {
			w.writeCodeBlock(string(typed.Language(w.source)), blockText(typed, w.source))
			return ast.WalkSkipChildren, nil
		}

	case *ast.CodeBlock:
		if entering {
			w.writeCodeBlock("", blockText(typed, w.source))
			return ast.WalkSkipChildren, nil
		}

	case *ast.Blockquote:
		if entering {
			w.indent += "│ "
		} else {
			w.indent = strings.TrimSuffix(w.indent, "│ ")
		}

	case *ast.List:
		if entering {
			start := 0
			if typed.IsOrdered() {
				start = typed.Start
			}
			w.counter = append(w.counter, start)
		} else {
			w.counter = w.counter[:len(w.counter)-1]
			if len(w.counter) == 0 {
				w.blankLine()
			}
		}

	case *ast.ListItem:
		if entering {
			w.enterListItem()
		} else {
			w.indent = strings.TrimSuffix(w.indent, "  ")
		}

	case *ast.ThematicBreak:
		if entering {
			rule := w.style().Foreground(w.theme.Border).Render(strings.Repeat("─", w.contentWidth()))
			w.blankLine()
			w.output.WriteString(w.indent + rule + "\n")
		}

	case *ast.Text:
		if entering {
			w.inline.WriteString(w.styled(string(typed.Segment.Value(w.source))))
			if typed.SoftLineBreak() {
				w.inline.WriteString(" ")
			}
			if typed.HardLineBreak() {
				w.inline.WriteString("\n")
			}
		}

	case *ast.String:
		if entering {
			w.inline.WriteString(w.styled(string(typed.Value)))
		}

	case *ast.Emphasis:
		w.trackEmphasis(typed, entering)

	case *ast.CodeSpan:
		if entering {
			code := spanText(typed, w.source)
			w.inline.WriteString(w.style().Foreground(w.theme.Faint).Render(code))
			return ast.WalkSkipChildren, nil
		}

	case *ast.Link:
		if entering {
			w.writeLink(typed)
			return ast.WalkSkipChildren, nil
		}

	case *ast.AutoLink:
		if entering {
			url := string(typed.URL(w.source))
			w.inline.WriteString(w.style().Foreground(w.theme.Faint).Render(url))
		}
	}

	return ast.WalkContinue, nil
}

func (w *markdownWalker) styled(content string) string {
	style := w.style().Foreground(w.theme.Normal)
	if w.bold > 0 {
		style = style.Bold(true)
	}
	if w.italic > 0 {
		style = style.Italic(true)
	}
	return style.Render(content)
}

func (w *markdownWalker) trackEmphasis(node *ast.Emphasis, entering bool) {
	delta := 1
	if !entering {
		delta = -1
	}
	if node.Level >= 2 {
		w.bold += delta
	} else {
		w.italic += delta
	}
}

func (w *markdownWalker) flushParagraph() {
	content := w.inline.String()
	w.inline.Reset()
	if content == "" {
		return
	}
	wrapped := ansi.Wrap(content, w.contentWidth(), " ,.;-")
	prefix := w.indent
	for index, line := range strings.Split(wrapped, "\n") {
		if index == 0 && w.bullet != "" {
			w.output.WriteString(w.bullet + line + "\n")
			w.bullet = ""
			continue
		}
		w.output.WriteString(prefix + line + "\n")
	}
	if len(w.counter) == 0 {
		w.blankLine()
	}
}

func (w *markdownWalker) flushHeading(heading *ast.Heading) {
	content := ansi.Strip(w.inline.String())
	w.inline.Reset()
	if content == "" {
		return
	}
	style := w.style().Bold(true)
	if heading.Level <= 2 {
		style = style.Foreground(w.theme.Heading)
	} else {
		style = style.Foreground(w.theme.Normal)
	}
	w.blankLine()
	w.output.WriteString(w.indent + style.Render(content) + "\n")
	w.blankLine()
}

func (w *markdownWalker) enterListItem() {
	if len(w.counter) == 0 {
		return
	}
	marker := "- "
	if w.counter[len(w.counter)-1] > 0 {
		marker = fmt.Sprintf("%d. ", w.counter[len(w.counter)-1])
		w.counter[len(w.counter)-1]++
	}
	w.bullet = w.indent + marker
	w.indent += "  "
}

func (w *markdownWalker) writeCodeBlock(language, code string) {
	rendered := code
	if language != "" {
		var highlighted strings.Builder
		if err := quick.Highlight(&highlighted, code, language, "terminal256", "monokai"); err == nil {
			rendered = highlighted.String()
		}
	}
	if rendered == code {
		rendered = w.style().Foreground(w.theme.Faint).Render(strings.TrimRight(code, "\n"))
	}
	w.blankLine()
	for _, line := range strings.Split(strings.TrimRight(rendered, "\n"), "\n") {
		w.output.WriteString(w.indent + "  " + line + "\n")
	}
	w.blankLine()
}

func (w *markdownWalker) writeLink(node *ast.Link) {
	for child := node.FirstChild(); child != nil; child = child.NextSibling() {
		ast.Walk(child, w.walk)
	}
	if url := string(node.Destination); url != "" {
		faint := w.style().Foreground(w.theme.Faint)
		w.inline.WriteString(" " + faint.Render("("+url+")"))
	}
}

func (w *markdownWalker) blankLine() {
	out := w.output.String()
	if out == "" || strings.HasSuffix(out, "\n\n") {
		return
	}
	w.output.WriteString("\n")
}

func blockText(node interface {
	Lines() *text.Segments
}, source []byte) string {
	var buffer strings.Builder
	lines := node.Lines()
	for index := 0; index < lines.Len(); index++ {
		segment := lines.At(index)
		buffer.Write(segment.Value(source))
	}
	return buffer.String()
}

func spanText(node ast.Node, source []byte) string {
	var buffer strings.Builder
	for child := node.FirstChild(); child != nil; child = child.NextSibling() {
		switch typed := child.(type) {
		case *ast.Text:
			buffer.Write(typed.Segment.Value(source))
		case *ast.String:
			buffer.Write(typed.Value)
		}
	}
	return buffer.String()
}
