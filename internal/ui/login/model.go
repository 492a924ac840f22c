// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package login

import (
	"context"
	"errors"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/gemchat/internal/auth"
	"github.com/jeranaias/gemchat/internal/ui/components"
	"github.com/jeranaias/gemchat/internal/ui/styles"
)

// =============================================================================
// TYPES
// =============================================================================

// Authenticator is the credential store as seen by the form.
type Authenticator interface {
	Signup(ctx context.Context, identity, secret string) error
	Login(ctx context.Context, identity, secret string) (auth.User, error)
}

// Mode selects between the login and signup forms.
type Mode int

const (
	ModeLogin Mode = iota
	ModeSignup
)

func (m Mode) String() string {
	if m == ModeSignup {
		return "signup"
	}
	return "login"
}

// Banner texts.
const (
	SignupSuccessText    = "Account created successfully! Please log in."
	MissingFieldsText    = "Please fill in all fields."
	PasswordMismatchText = "Passwords do not match."
	signupFailedFallback = "Failed to create account"
	loginFailedFallback  = "Failed to log in"
)

const (
	fieldEmail = iota
	fieldPassword
	fieldConfirm
)

// =============================================================================
// MESSAGES
// =============================================================================

// LoggedInMsg reports a successful login to the parent model.
type LoggedInMsg struct {
	User auth.User
}

type signupResultMsg struct {
	identity string
	err      error
}

type loginResultMsg struct {
	user auth.User
	err  error
}

// =============================================================================
// MODEL
// =============================================================================

// Model is the authentication form.
type Model struct {
	svc   Authenticator
	theme *styles.Theme
	keys  KeyMap

	mode    Mode
	inputs  []textinput.Model
	focus   int
	busy    bool
	spinner spinner.Model

	errText     string
	successText string

	width  int
	height int
}

// New creates the form in login mode.
func New(svc Authenticator, theme *styles.Theme) Model {
	inputs := make([]textinput.Model, 3)
	for i := range inputs {
		ti := textinput.New()
		ti.CharLimit = 256
		ti.Width = 36
		inputs[i] = ti
	}
	inputs[fieldEmail].Placeholder = "Email address"
	inputs[fieldPassword].Placeholder = "Password"
	inputs[fieldConfirm].Placeholder = "Confirm Password"
	for _, i := range []int{fieldPassword, fieldConfirm} {
		inputs[i].EchoMode = textinput.EchoPassword
		inputs[i].EchoCharacter = '•'
	}
	inputs[fieldEmail].Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = theme.Spinner

	return Model{
		svc:     svc,
		theme:   theme,
		keys:    DefaultKeyMap(),
		mode:    ModeLogin,
		inputs:  inputs,
		spinner: sp,
	}
}

// Mode returns the current form mode.
func (m Model) Mode() Mode { return m.mode }

// Busy reports whether an auth call is running.
func (m Model) Busy() bool { return m.busy }

// ErrorText returns the error banner, if any.
func (m Model) ErrorText() string { return m.errText }

// SuccessText returns the success banner, if any.
func (m Model) SuccessText() string { return m.successText }

// Focused returns the index of the focused field.
func (m Model) Focused() int { return m.focus }

// Value returns the text of field i.
func (m Model) Value(i int) string { return m.inputs[i].Value() }

// Reset clears the form back to an empty login form.
func (m Model) Reset() Model {
	for i := range m.inputs {
		m.inputs[i].Reset()
	}
	m.mode = ModeLogin
	m.busy = false
	m.errText = ""
	m.successText = ""
	m.setFocus(fieldEmail)
	return m
}

func (m Model) fieldCount() int {
	if m.mode == ModeSignup {
		return 3
	}
	return 2
}

func (m *Model) setFocus(i int) tea.Cmd {
	m.focus = i
	var cmd tea.Cmd
	for j := range m.inputs {
		if j == i {
			cmd = m.inputs[j].Focus()
		} else {
			m.inputs[j].Blur()
		}
	}
	return cmd
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
		m.width, m.height = msg.Width, msg.Height
		return m, nil

	case signupResultMsg:
		m.busy = false
		if msg.err != nil {
			m.errText = describe(msg.err, signupFailedFallback)
			return m, nil
		}
		m.mode = ModeLogin
		m.successText = SignupSuccessText
		m.inputs[fieldEmail].SetValue(msg.identity)
		m.inputs[fieldPassword].Reset()
		m.inputs[fieldConfirm].Reset()
		return m, m.setFocus(fieldPassword)

	case loginResultMsg:
		m.busy = false
		if msg.err != nil {
			m.errText = describe(msg.err, loginFailedFallback)
			return m, nil
		}
		user := msg.user
		return m, func() tea.Msg { return LoggedInMsg{User: user} }

	case spinner.TickMsg:
		if !m.busy {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		if m.busy {
			return m, nil
		}
		switch {
		case key.Matches(msg, m.keys.ToggleMode):
			return m.toggleMode()
		case key.Matches(msg, m.keys.Next):
			return m, m.setFocus((m.focus + 1) % m.fieldCount())
		case key.Matches(msg, m.keys.Prev):
			return m, m.setFocus((m.focus + m.fieldCount() - 1) % m.fieldCount())
		case key.Matches(msg, m.keys.Submit):
			if m.focus < m.fieldCount()-1 {
				return m, m.setFocus(m.focus + 1)
			}
			return m.submit()
		}
	}

	var cmd tea.Cmd
	m.inputs[m.focus], cmd = m.inputs[m.focus].Update(msg)
	return m, cmd
}

func (m Model) toggleMode() (Model, tea.Cmd) {
	if m.mode == ModeLogin {
		m.mode = ModeSignup
	} else {
		m.mode = ModeLogin
		m.inputs[fieldConfirm].Reset()
	}
	m.errText = ""
	m.successText = ""
	focus := m.focus
	if focus >= m.fieldCount() {
		focus = m.fieldCount() - 1
	}
	return m, m.setFocus(focus)
}

func (m Model) submit() (Model, tea.Cmd) {
	email := strings.TrimSpace(m.inputs[fieldEmail].Value())
	password := m.inputs[fieldPassword].Value()

	m.errText = ""
	m.successText = ""
	if email == "" || password == "" {
		m.errText = MissingFieldsText
		return m, nil
	}

	svc := m.svc
	var call tea.Cmd
	if m.mode == ModeSignup {
		if password != m.inputs[fieldConfirm].Value() {
			m.errText = PasswordMismatchText
			return m, nil
		}
		call = func() tea.Msg {
			err := svc.Signup(context.Background(), email, password)
			return signupResultMsg{identity: email, err: err}
		}
	} else {
		call = func() tea.Msg {
			user, err := svc.Login(context.Background(), email, password)
			return loginResultMsg{user: user, err: err}
		}
	}

	m.busy = true
	return m, tea.Batch(m.spinner.Tick, call)
}

// describe turns an auth error into banner text.
func describe(err error, fallback string) string {
	switch {
	case errors.Is(err, auth.ErrDuplicateIdentity):
		return "User already exists"
	case errors.Is(err, auth.ErrInvalidCredentials):
		return "Invalid email or password"
	case errors.Is(err, auth.ErrMissingField):
		return MissingFieldsText
	default:
		return fallback + ": " + err.Error()
	}
}

// =============================================================================
// VIEW
// =============================================================================

// View implements tea.Model.
func (m Model) View() string {
	t := m.theme

	title, subtitle, action := "Welcome Back", "Sign in to Gemini Chat", "Log In"
	if m.mode == ModeSignup {
		title, subtitle, action = "Create Account", "Join Gemini Chat today", "Sign Up"
	}

	lines := []string{
		t.FormTitle.Render(title),
		t.FormSubtitle.Render(subtitle),
		"",
	}
	for i := 0; i < m.fieldCount(); i++ {
		style := t.FieldBlurred
		if i == m.focus {
			style = t.FieldFocused
		}
		lines = append(lines, style.Render(m.inputs[i].View()))
	}

	lines = append(lines, "")
	switch {
	case m.busy:
		progress := "Logging In..."
		if m.mode == ModeSignup {
			progress = "Creating Account..."
		}
		lines = append(lines, m.spinner.View()+" "+progress)
	case m.errText != "":
		lines = append(lines, t.ErrorBanner.Render(m.errText))
	case m.successText != "":
		lines = append(lines, t.SuccessBanner.Render(m.successText))
	default:
		lines = append(lines, t.FormSubtitle.Render("Press enter to "+strings.ToLower(action)))
	}

	lines = append(lines, "", components.Shortcuts(t, m.keys.Next, m.keys.ToggleMode, m.keys.Quit))

	box := t.FormBox.Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
	if m.width == 0 || m.height == 0 {
		return box
	}
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, box)
}
