// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jeranaias/gemchat/internal/export"
	"github.com/jeranaias/gemchat/internal/model"
	"github.com/jeranaias/gemchat/internal/util"
)

func newHistoryCommand(s *shared) *cobra.Command {
	var user string
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect, clear or export stored conversations",
	}
	cmd.PersistentFlags().StringVarP(&user, "user", "u", "", "account to act on (default: logged-in user)")

	cmd.AddCommand(
		newHistoryShowCommand(s, &user),
		newHistoryListCommand(s),
		newHistoryClearCommand(s, &user),
		newHistoryExportCommand(s, &user),
	)
	return cmd
}

// targetIdentity returns --user or the logged-in identity.
func targetIdentity(cmd *cobra.Command, app *App, user string) (string, error) {
	if u := strings.TrimSpace(user); u != "" {
		return u, nil
	}
	current, err := currentUser(cmd, app)
	if err != nil {
		return "", err
	}
	return current.Email, nil
}

// =============================================================================
// SHOW / LIST
// =============================================================================

func newHistoryShowCommand(s *shared, user *string) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print a conversation",
		Args:  cobra.NoArgs,
		RunE: s.withApp(true, func(cmd *cobra.Command, _ []string, app *App) error {
			identity, err := targetIdentity(cmd, app, *user)
			if err != nil {
				return err
			}
			printHistory(cmd, app.History.Load(cmd.Context(), identity))
			return nil
		}),
	}
}

func printHistory(cmd *cobra.Command, h model.History) {
	out := cmd.OutOrStdout()
	if len(h) == 0 {
		fmt.Fprintln(out, DimStyle.Render("No messages."))
		return
	}
	for i, msg := range h {
		if i > 0 {
			fmt.Fprintln(out)
		}
		label := AssistantPromptStyle
		if msg.Role == model.RoleUser {
			label = UserPromptStyle
		}
		fmt.Fprintln(out, label.Render(msg.Role.DisplayName()+":"))
		fmt.Fprintln(out, msg.Text)
	}
}

func newHistoryListCommand(s *shared) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List accounts with a stored conversation",
		Args:  cobra.NoArgs,
		RunE: s.withApp(true, func(cmd *cobra.Command, _ []string, app *App) error {
			ctx := cmd.Context()
			ids, err := app.History.Identities(ctx)
			if err != nil {
				return err
			}
			if len(ids) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), DimStyle.Render("No stored conversations."))
				return nil
			}

			current := ""
			if u, ok, err := app.Auth.CurrentIdentity(ctx); err == nil && ok {
				current = u.Email
			}
			for _, id := range ids {
				marker := " "
				if id == current {
					marker = "*"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %-40s %d messages\n",
					marker, util.TruncateWidth(id, 40), len(app.History.Load(ctx, id)))
			}
			return nil
		}),
	}
}

// =============================================================================
// CLEAR
// =============================================================================

func newHistoryClearCommand(s *shared, user *string) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete a conversation (same as starting a new chat)",
		Args:  cobra.NoArgs,
		RunE: s.withApp(true, func(cmd *cobra.Command, _ []string, app *App) error {
			ctx := cmd.Context()
			identity, err := targetIdentity(cmd, app, *user)
			if err != nil {
				return err
			}
			if !yes {
				n := len(app.History.Load(ctx, identity))
				ok, err := newPrompter(cmd).Confirm(fmt.Sprintf("Clear %d messages for %s?", n, identity))
				if err != nil {
					return err
				}
				if !ok {
					fmt.Fprintln(cmd.OutOrStdout(), "Cancelled.")
					return nil
				}
			}
			if err := app.History.Save(ctx, identity, model.History{}); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), SuccessStyle.Render("History cleared for"), identity)
			return nil
		}),
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")
	return cmd
}

// =============================================================================
// EXPORT
// =============================================================================

func newHistoryExportCommand(s *shared, user *string) *cobra.Command {
	var (
		format string
		output string
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export a conversation as markdown, JSON or YAML",
		Long: `Export a conversation. Without --output the transcript is written to
stdout. When --output names a directory a file name is generated.`,
		Args: cobra.NoArgs,
		RunE: s.withApp(true, func(cmd *cobra.Command, _ []string, app *App) error {
			exporter, err := export.New(export.Format(format))
			if err != nil {
				return err
			}
			identity, err := targetIdentity(cmd, app, *user)
			if err != nil {
				return err
			}

			t := export.Transcript{
				Identity:   identity,
				ExportedAt: time.Now(),
				Messages:   app.History.Load(cmd.Context(), identity),
			}
			if output == "" {
				return exporter.Export(t, cmd.OutOrStdout())
			}

			var buf bytes.Buffer
			if err := exporter.Export(t, &buf); err != nil {
				return err
			}
			path := output
			if fi, err := os.Stat(output); err == nil && fi.IsDir() {
				path = filepath.Join(output, export.Filename(t, exporter.Extension()))
			}
			if err := util.AtomicWriteFile(path, buf.Bytes(), 0600); err != nil {
				return fmt.Errorf("write export: %w", err)
			}
			app.Logger.Info("HISTORY_EXPORTED", "identity", identity, "format", format,
				"messages", len(t.Messages), "path", path)
			fmt.Fprintf(cmd.OutOrStdout(), "%s %d messages to %s\n", SuccessStyle.Render("Exported"), len(t.Messages), path)
			return nil
		}),
	}
	cmd.Flags().StringVarP(&format, "format", "f", string(export.FormatMarkdown), "markdown, json or yaml")
	cmd.Flags().StringVarP(&output, "output", "o", "", "file or directory to write to")
	return cmd
}
