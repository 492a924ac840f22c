// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package components

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/gemchat/internal/ui/styles"
	"github.com/jeranaias/gemchat/internal/util"
)

// Header is the chat screen's title bar.
type Header struct {
	Title    string
	Identity string
	Width    int
	theme    *styles.Theme
}

// NewHeader creates a Header with the default title.
func NewHeader(theme *styles.Theme) *Header {
	return &Header{
		Title: "Gemini Chat",
		Width: 80,
		theme: theme,
	}
}

// View renders the title on the left and the identity on the right. The
// identity is truncated first when the line is too narrow.
func (h *Header) View() string {
	width := h.Width
	if width < 20 {
		width = 20
	}
	inner := width - h.theme.Header.GetHorizontalFrameSize()

	title := h.theme.HeaderTitle.Render(h.Title)
	room := inner - lipgloss.Width(title) - 2
	user := ""
	if h.Identity != "" && room > 0 {
		user = h.theme.HeaderUser.Render(util.TruncateWidth(h.Identity, room))
	}

	gap := inner - lipgloss.Width(title) - lipgloss.Width(user)
	if gap < 1 {
		gap = 1
	}
	line := title + strings.Repeat(" ", gap) + user
	return h.theme.Header.Width(width).Render(line)
}
