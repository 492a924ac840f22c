// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package components

import (
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
)

// MarkdownRenderer renders model replies as terminal markdown.
// It is not safe for concurrent use; the Bubble Tea loop owns it.
type MarkdownRenderer struct {
	style    string
	width    int
	renderer *glamour.TermRenderer
}

// NewMarkdownRenderer creates a renderer for a glamour standard style
// ("dark", "light", "notty").
func NewMarkdownRenderer(style string) *MarkdownRenderer {
	return &MarkdownRenderer{style: style}
}

// Render renders text wrapped at width. If glamour fails the text is
// returned wrapped but otherwise unchanged.
func (m *MarkdownRenderer) Render(text string, width int) string {
	if width < 10 {
		width = 10
	}
	if m.renderer == nil || m.width != width {
		r, err := glamour.NewTermRenderer(
			glamour.WithStandardStyle(m.style),
			glamour.WithWordWrap(width),
		)
		if err != nil {
			return plain(text, width)
		}
		m.renderer = r
		m.width = width
	}

	out, err := m.renderer.Render(text)
	if err != nil {
		return plain(text, width)
	}
	return strings.Trim(out, "\n")
}

func plain(text string, width int) string {
	return lipgloss.NewStyle().Width(width).Render(text)
}
