// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"errors"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/gemchat/internal/cloud"
	"github.com/jeranaias/gemchat/internal/conversation"
	"github.com/jeranaias/gemchat/internal/ui/components"
	"github.com/jeranaias/gemchat/internal/ui/styles"
	"github.com/jeranaias/gemchat/internal/util"
)

// Controller is the part of the conversation controller the screen drives.
type Controller interface {
	Submit(ctx context.Context, prompt string) error
	NewChat(ctx context.Context) error
}

const (
	placeholderReady   = "Type your message..."
	placeholderWaiting = "Waiting for the reply..."

	// noticeHeight + input box + shortcut line
	footerHeight = 1 + 3 + 1
)

// =============================================================================
// CHAT MODEL
// =============================================================================

// Model is the Bubble Tea model for the chat screen.
type Model struct {
	ctx   context.Context
	ctrl  Controller
	theme *styles.Theme
	keys  KeyMap

	header     *components.Header
	transcript *components.Transcript
	viewport   viewport.Model
	input      textinput.Model
	spinner    spinner.Model

	snap   conversation.Snapshot
	notice string

	width  int
	height int
}

// New creates the chat screen. Controller calls run with ctx.
func New(ctx context.Context, ctrl Controller, theme *styles.Theme) Model {
	input := textinput.New()
	input.Placeholder = placeholderReady
	input.CharLimit = 8000
	input.Prompt = "> "
	input.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = theme.Spinner

	return Model{
		ctx:        ctx,
		ctrl:       ctrl,
		theme:      theme,
		keys:       DefaultKeyMap(),
		header:     components.NewHeader(theme),
		transcript: components.NewTranscript(theme, components.NewMarkdownRenderer(theme.GlamourStyle())),
		viewport:   viewport.New(80, 20),
		input:      input,
		spinner:    sp,
	}
}

// Snapshot returns the last snapshot the screen received.
func (m Model) Snapshot() conversation.Snapshot { return m.snap }

// Notice returns the current notice line.
func (m Model) Notice() string { return m.notice }

// Input returns the text in the prompt field.
func (m Model) Input() string { return m.input.Value() }

// WithNotice returns the model with the notice line set.
func (m Model) WithNotice(notice string) Model {
	m.notice = notice
	return m
}

// Reset clears everything the screen shows, ready for the next identity.
func (m Model) Reset() Model {
	m.snap = conversation.Snapshot{}
	m.notice = ""
	m.input.Reset()
	m.header.Identity = ""
	m.syncInput()
	m.refresh(true)
	return m
}

// =============================================================================
// UPDATE
// =============================================================================

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		return m, nil

	case SnapshotMsg:
		wasInFlight := m.snap.InFlight()
		grew := len(msg.Snapshot.Messages) != len(m.snap.Messages)
		m.snap = msg.Snapshot
		m.header.Identity = m.snap.Identity
		m.syncInput()
		m.refresh(grew)
		if m.snap.InFlight() && !wasInFlight {
			return m, m.spinner.Tick
		}
		return m, nil

	case submitDoneMsg:
		if msg.err == nil || errors.Is(msg.err, conversation.ErrEmptyPrompt) {
			return m, nil
		}
		m.notice = describe(msg.err)
		if errors.Is(msg.err, cloud.ErrConfiguration) && m.input.Value() == "" {
			// Nothing was sent; give the prompt back.
			m.input.SetValue(msg.prompt)
			m.input.CursorEnd()
		}
		return m, nil

	case newChatDoneMsg:
		if msg.err != nil {
			m.notice = describe(msg.err)
		}
		return m, nil

	case spinner.TickMsg:
		if !m.snap.InFlight() {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		if m.snap.Streaming == "" {
			m.refresh(false)
		}
		return m, cmd

	case tea.MouseMsg:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (Model, tea.Cmd) {
	inFlight := m.snap.InFlight()

	switch {
	case key.Matches(msg, m.keys.Submit):
		prompt := m.input.Value()
		if inFlight || util.IsBlank(prompt) {
			return m, nil
		}
		m.input.Reset()
		m.notice = ""
		return m, m.submit(prompt)

	case key.Matches(msg, m.keys.NewChat):
		if inFlight {
			return m, nil
		}
		m.notice = ""
		ctx, ctrl := m.ctx, m.ctrl
		return m, func() tea.Msg {
			return newChatDoneMsg{err: ctrl.NewChat(ctx)}
		}

	case key.Matches(msg, m.keys.Logout):
		return m, func() tea.Msg { return LogoutMsg{} }

	case key.Matches(msg, m.keys.PageUp, m.keys.PageDown, m.keys.Up, m.keys.Down):
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}

	if inFlight {
		return m, nil
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) submit(prompt string) tea.Cmd {
	ctx, ctrl := m.ctx, m.ctrl
	return func() tea.Msg {
		return submitDoneMsg{prompt: prompt, err: ctrl.Submit(ctx, prompt)}
	}
}

// describe turns a controller error into notice text.
func describe(err error) string {
	switch {
	case errors.Is(err, cloud.ErrConfiguration):
		return err.Error()
	case errors.Is(err, conversation.ErrBusy):
		return "Please wait for the current reply."
	case errors.Is(err, conversation.ErrNoIdentity), errors.Is(err, conversation.ErrNotReady):
		return "The conversation is not ready yet."
	default:
		return "Error: " + err.Error()
	}
}

// =============================================================================
// LAYOUT
// =============================================================================

func (m *Model) resize(width, height int) {
	m.width, m.height = width, height
	m.header.Width = width
	m.transcript.Width = width - 2
	m.input.Width = width - m.theme.Input.GetHorizontalFrameSize() - lipgloss.Width(m.input.Prompt) - 1

	vpHeight := height - lipgloss.Height(m.header.View()) - footerHeight
	if vpHeight < 3 {
		vpHeight = 3
	}
	m.viewport.Width = width
	m.viewport.Height = vpHeight
	m.refresh(true)
}

// refresh re-renders the transcript. The view follows new content when
// follow is set or when it was already at the bottom.
func (m *Model) refresh(follow bool) {
	atBottom := m.viewport.AtBottom()
	m.viewport.SetContent(m.transcript.View(m.snap.Messages, m.snap.Streaming, m.snap.InFlight(), m.spinner.View()))
	if follow || atBottom {
		m.viewport.GotoBottom()
	}
}

func (m *Model) syncInput() {
	if m.snap.InFlight() {
		m.input.Blur()
		m.input.Placeholder = placeholderWaiting
		return
	}
	m.input.Focus()
	m.input.Placeholder = placeholderReady
}

// =============================================================================
// VIEW
// =============================================================================

// View implements tea.Model.
func (m Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	inputStyle := m.theme.Input
	if m.snap.InFlight() {
		inputStyle = m.theme.InputLocked
	}

	notice := ""
	if m.notice != "" {
		notice = m.theme.ErrorBanner.Render(util.TruncateWidth(m.notice, m.width))
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		m.header.View(),
		m.viewport.View(),
		notice,
		inputStyle.Width(m.width-2).Render(m.input.View()),
		components.Shortcuts(m.theme, m.keys.Submit, m.keys.NewChat, m.keys.Logout, m.keys.Quit),
	)
}
