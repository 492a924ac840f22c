// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"golang.org/x/term"
)

func init() {
	lipgloss.SetColorProfile(colorProfile())
}

// =============================================================================
// SHARED STYLES
// =============================================================================

var (
	TitleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39")).
			Bold(true)

	SuccessStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42")).
			Bold(true)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	WarningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214"))

	DimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("242"))

	// UserPromptStyle and AssistantPromptStyle label REPL turns.
	UserPromptStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("86")).
			Bold(true)

	AssistantPromptStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("141")).
				Bold(true)
)

// =============================================================================
// TERMINAL DETECTION
// =============================================================================

// isTerminal reports whether f is attached to a terminal.
func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// colorProfile honours NO_COLOR and FORCE_COLOR before falling back to TTY
// detection on stdout. See https://no-color.org/.
func colorProfile() termenv.Profile {
	if os.Getenv("NO_COLOR") != "" {
		return termenv.Ascii
	}
	if os.Getenv("FORCE_COLOR") == "" && !isTerminal(os.Stdout) {
		return termenv.Ascii
	}
	return termenv.ColorProfile()
}
