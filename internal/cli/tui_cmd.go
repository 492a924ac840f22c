// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"github.com/spf13/cobra"

	"github.com/jeranaias/gemchat/internal/ui"
)

func newTUICommand(s *shared) *cobra.Command {
	return &cobra.Command{
		Use:   "tui",
		Short: "Open the full-screen chat UI (the default)",
		Args:  cobra.NoArgs,
		RunE:  s.withApp(false, runTUI),
	}
}

func runTUI(cmd *cobra.Command, _ []string, app *App) error {
	app.Logger.Info("TUI_START", "provider", app.Config.Provider, "model", app.Config.Model())
	err := ui.Run(cmd.Context(), ui.Options{
		Sessions:   app.Auth,
		Controller: app.Controller,
		Logger:     app.Logger,
		RenderFPS:  app.Config.UI.RenderFPS,
	})
	app.Logger.Info("TUI_EXIT", "error", err)
	return err
}
