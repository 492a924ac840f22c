// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package components

import (
	"strings"
	"testing"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/lipgloss"
	"github.com/stretchr/testify/assert"

	"github.com/jeranaias/gemchat/internal/model"
	"github.com/jeranaias/gemchat/internal/ui/styles"
)

func newTestTranscript() *Transcript {
	tr := NewTranscript(styles.NewTheme(), NewMarkdownRenderer("notty"))
	tr.Width = 80
	return tr
}

func TestHeader_View(t *testing.T) {
	h := NewHeader(styles.NewTheme())
	h.Identity = "a@x.com"
	h.Width = 60

	out := h.View()
	assert.Contains(t, out, "Gemini Chat")
	assert.Contains(t, out, "a@x.com")
}

func TestHeader_TruncatesLongIdentity(t *testing.T) {
	h := NewHeader(styles.NewTheme())
	h.Identity = strings.Repeat("x", 200) + "@example.com"
	h.Width = 40

	out := h.View()
	assert.Contains(t, out, "...")
	for _, line := range strings.Split(out, "\n") {
		assert.LessOrEqual(t, lipgloss.Width(line), 40)
	}
}

func TestTranscript_Welcome(t *testing.T) {
	out := newTestTranscript().View(nil, "", false, "")
	assert.Contains(t, out, WelcomeText)
}

func TestTranscript_Messages(t *testing.T) {
	msgs := model.History{model.UserMessage("hello"), model.ModelMessage("Hi there")}
	out := newTestTranscript().View(msgs, "", false, "")

	assert.NotContains(t, out, WelcomeText)
	assert.Contains(t, out, "You")
	assert.Contains(t, out, "hello")
	assert.Contains(t, out, "Assistant")
	assert.Contains(t, out, "Hi there")
}

func TestTranscript_TypingIndicator(t *testing.T) {
	msgs := model.History{model.UserMessage("hello")}
	out := newTestTranscript().View(msgs, "", true, "*")
	assert.Contains(t, out, TypingText)

	out = newTestTranscript().View(msgs, "partial reply", true, "*")
	assert.NotContains(t, out, TypingText)
	assert.Contains(t, out, "partial reply")
}

func TestTranscript_InFlightWithEmptyHistory(t *testing.T) {
	out := newTestTranscript().View(nil, "", true, "")
	assert.NotContains(t, out, WelcomeText)
	assert.Contains(t, out, TypingText)
}

func TestMarkdownRenderer_RebuildsOnWidthChange(t *testing.T) {
	md := NewMarkdownRenderer("notty")
	first := md.Render("some text", 40)
	assert.Contains(t, first, "some text")
	r := md.renderer

	md.Render("some text", 40)
	assert.Same(t, r, md.renderer)

	md.Render("some text", 60)
	assert.NotSame(t, r, md.renderer)
	assert.Equal(t, 60, md.width)
}

func TestShortcuts(t *testing.T) {
	send := key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "send"))
	off := key.NewBinding(key.WithKeys("x"), key.WithHelp("x", "hidden"), key.WithDisabled())

	out := Shortcuts(styles.NewTheme(), send, off)
	assert.Contains(t, out, "enter")
	assert.Contains(t, out, "send")
	assert.NotContains(t, out, "hidden")
}
