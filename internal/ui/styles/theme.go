// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package styles

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// Theme holds the styled components for the application.
// It detects the terminal's color capability and adjusts accordingly.
type Theme struct {
	// Terminal capabilities
	IsDark       bool
	HasTrueColor bool
	ColorProfile termenv.Profile

	// ==========================================================================
	// HEADER STYLES
	// ==========================================================================

	Header      lipgloss.Style
	HeaderTitle lipgloss.Style
	HeaderUser  lipgloss.Style

	// ==========================================================================
	// MESSAGE STYLES
	// ==========================================================================

	UserLabel       lipgloss.Style
	UserBubble      lipgloss.Style
	AssistantLabel  lipgloss.Style
	AssistantBubble lipgloss.Style
	Typing          lipgloss.Style
	Welcome         lipgloss.Style

	// ==========================================================================
	// FORM STYLES
	// ==========================================================================

	FormBox       lipgloss.Style
	FormTitle     lipgloss.Style
	FormSubtitle  lipgloss.Style
	FieldFocused  lipgloss.Style
	FieldBlurred  lipgloss.Style
	ErrorBanner   lipgloss.Style
	SuccessBanner lipgloss.Style

	// ==========================================================================
	// FOOTER STYLES
	// ==========================================================================

	Input        lipgloss.Style
	InputLocked  lipgloss.Style
	ShortcutKey  lipgloss.Style
	ShortcutDesc lipgloss.Style
	Spinner      lipgloss.Style
}

// NewTheme creates a theme for the current terminal.
func NewTheme() *Theme {
	profile := termenv.ColorProfile()
	return newTheme(profile, termenv.HasDarkBackground())
}

func newTheme(profile termenv.Profile, isDark bool) *Theme {
	t := &Theme{
		IsDark:       isDark,
		HasTrueColor: profile == termenv.TrueColor,
		ColorProfile: profile,
	}
	t.initStyles()
	return t
}

// GlamourStyle names the glamour standard style matching the background.
func (t *Theme) GlamourStyle() string {
	if t.ColorProfile == termenv.Ascii {
		return "notty"
	}
	if t.IsDark {
		return "dark"
	}
	return "light"
}

func (t *Theme) initStyles() {
	t.Header = lipgloss.NewStyle().
		Background(SurfaceDim).
		BorderStyle(lipgloss.NormalBorder()).
		BorderBottom(true).
		BorderForeground(Overlay).
		Padding(0, 1)

	t.HeaderTitle = lipgloss.NewStyle().
		Bold(true).
		Foreground(Cyan)

	t.HeaderUser = lipgloss.NewStyle().
		Foreground(TextSecondary)

	t.UserLabel = lipgloss.NewStyle().
		Bold(true).
		Foreground(Cyan)

	t.UserBubble = lipgloss.NewStyle().
		Foreground(UserBubbleFg).
		Background(UserBubbleBg).
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(UserBubbleBorder).
		Padding(0, 1)

	t.AssistantLabel = lipgloss.NewStyle().
		Bold(true).
		Foreground(TextSecondary)

	t.AssistantBubble = lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(AssistantBubbleBorder)

	t.Typing = lipgloss.NewStyle().
		Italic(true).
		Foreground(TextMuted)

	t.Welcome = lipgloss.NewStyle().
		Foreground(TextSecondary).
		Padding(1, 2)

	t.FormBox = lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(Cyan).
		Padding(1, 3)

	t.FormTitle = lipgloss.NewStyle().
		Bold(true).
		Foreground(Cyan)

	t.FormSubtitle = lipgloss.NewStyle().
		Foreground(TextSecondary)

	t.FieldFocused = lipgloss.NewStyle().
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(Cyan).
		Padding(0, 1)

	t.FieldBlurred = lipgloss.NewStyle().
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(Overlay).
		Padding(0, 1)

	t.ErrorBanner = lipgloss.NewStyle().
		Foreground(Rose).
		Bold(true)

	t.SuccessBanner = lipgloss.NewStyle().
		Foreground(Emerald).
		Bold(true)

	t.Input = lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(Cyan).
		Padding(0, 1)

	t.InputLocked = t.Input.
		BorderForeground(Overlay)

	t.ShortcutKey = lipgloss.NewStyle().
		Bold(true).
		Foreground(TextSecondary)

	t.ShortcutDesc = lipgloss.NewStyle().
		Foreground(TextMuted)

	t.Spinner = lipgloss.NewStyle().
		Foreground(Cyan)
}
