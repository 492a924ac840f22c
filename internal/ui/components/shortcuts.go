// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package components

import (
	"strings"

	"github.com/charmbracelet/bubbles/key"

	"github.com/jeranaias/gemchat/internal/ui/styles"
)

// Shortcuts renders key hints from the bindings' help text. Disabled
// bindings are skipped.
func Shortcuts(theme *styles.Theme, bindings ...key.Binding) string {
	parts := make([]string, 0, len(bindings))
	for _, b := range bindings {
		if !b.Enabled() {
			continue
		}
		h := b.Help()
		parts = append(parts, theme.ShortcutKey.Render(h.Key)+" "+theme.ShortcutDesc.Render(h.Desc))
	}
	return strings.Join(parts, theme.ShortcutDesc.Render("  •  "))
}
