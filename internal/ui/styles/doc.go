// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package styles provides the visual styling system for the gemchat TUI.

All colors use Lip Gloss AdaptiveColor for automatic light/dark terminal
detection.

# Color System (colors.go)

  - Cyan - Brand color, headers, focused inputs
  - Emerald - Success banners
  - Rose - Errors and the logout hint
  - Amber - Warnings

Message bubbles use semantic tokens:

	UserBubbleBg / UserBubbleFg           - user messages
	AssistantBubbleBg / AssistantBubbleFg - model replies

# Theme System (theme.go)

	theme := styles.NewTheme()
	if theme.IsDark {
		// Dark terminal detected
	}
	renderer, _ := glamour.NewTermRenderer(glamour.WithStandardStyle(theme.GlamourStyle()))
*/
package styles
