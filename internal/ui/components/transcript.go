// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package components

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/gemchat/internal/model"
	"github.com/jeranaias/gemchat/internal/ui/styles"
)

// WelcomeText is shown when the history is empty.
const WelcomeText = "Start a conversation by typing a message below."

// TypingText follows the spinner while a reply has not started.
const TypingText = "Assistant is typing..."

// Transcript renders the conversation for the viewport.
type Transcript struct {
	Width    int
	theme    *styles.Theme
	markdown *MarkdownRenderer
}

// NewTranscript creates a Transcript that renders replies with md.
func NewTranscript(theme *styles.Theme, md *MarkdownRenderer) *Transcript {
	return &Transcript{
		Width:    80,
		theme:    theme,
		markdown: md,
	}
}

// View renders the committed messages, then the in-flight reply. While an
// exchange is in flight with an empty buffer, the typing indicator is shown
// with spinnerFrame in front of it.
func (t *Transcript) View(msgs model.History, streaming string, inFlight bool, spinnerFrame string) string {
	if len(msgs) == 0 && !inFlight {
		return t.theme.Welcome.Width(t.Width).Render(WelcomeText)
	}

	blocks := make([]string, 0, len(msgs)+1)
	for _, msg := range msgs {
		blocks = append(blocks, t.renderMessage(msg))
	}

	if inFlight {
		if streaming != "" {
			blocks = append(blocks, t.renderReply(streaming))
		} else {
			label := t.theme.AssistantLabel.Render(model.RoleModel.DisplayName())
			typing := t.theme.Typing.Render(strings.TrimSpace(spinnerFrame + " " + TypingText))
			blocks = append(blocks, lipgloss.JoinVertical(lipgloss.Left, label, typing))
		}
	}

	return strings.Join(blocks, "\n\n")
}

func (t *Transcript) renderMessage(msg model.Message) string {
	if msg.Role == model.RoleUser {
		return t.renderUser(msg.Text)
	}
	return t.renderReply(msg.Text)
}

// renderUser right-aligns a wrapped bubble.
func (t *Transcript) renderUser(text string) string {
	maxWidth := t.Width * 3 / 4
	if maxWidth < 20 {
		maxWidth = 20
	}
	frame := t.theme.UserBubble.GetHorizontalFrameSize()
	inner := lipgloss.Width(text)
	if inner > maxWidth-frame {
		inner = maxWidth - frame
	}

	label := t.theme.UserLabel.Render(model.RoleUser.DisplayName())
	bubble := t.theme.UserBubble.Width(inner + t.theme.UserBubble.GetHorizontalPadding()).Render(text)
	block := lipgloss.JoinVertical(lipgloss.Right, label, bubble)
	return lipgloss.PlaceHorizontal(t.Width, lipgloss.Right, block)
}

func (t *Transcript) renderReply(text string) string {
	label := t.theme.AssistantLabel.Render(model.RoleModel.DisplayName())
	width := t.Width - t.theme.AssistantBubble.GetHorizontalFrameSize() - 4
	body := t.markdown.Render(text, width)
	return lipgloss.JoinVertical(lipgloss.Left, label, t.theme.AssistantBubble.Render(body))
}
