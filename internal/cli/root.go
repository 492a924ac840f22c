// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// Version information, set at build time via -ldflags.
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// globalOptions holds the persistent flags.
type globalOptions struct {
	configPath string
	dataDir    string
	verbose    bool
}

// NewRootCommand builds the full command tree. Each call returns a fresh
// tree with its own flag state.
func NewRootCommand() *cobra.Command {
	rt := &shared{opts: &globalOptions{}}

	root := &cobra.Command{
		Use:   "gemchat",
		Short: "Chat with Gemini from your terminal",
		Long: `gemchat is a local chat client for Google's Gemini models.

Accounts and conversations are stored on this machine. The model is reached
with the API key in API_KEY (or GEMINI_API_KEY).

Quick Start:
  gemchat signup --email you@example.com
  gemchat                                # open the chat UI
  gemchat chat                           # plain line-based chat
  gemchat history export --format md     # save your conversation`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", Version, GitCommit, BuildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE:          rt.withApp(false, runTUI),
	}

	flags := root.PersistentFlags()
	flags.StringVar(&rt.opts.configPath, "config", "", "config file (default ~/.gemchat/config.toml)")
	flags.StringVar(&rt.opts.dataDir, "data-dir", "", "directory for the store and log file")
	flags.BoolVarP(&rt.opts.verbose, "verbose", "v", false, "mirror log output to stderr")
	root.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	root.AddCommand(
		newTUICommand(rt),
		newSignupCommand(rt),
		newLoginCommand(rt),
		newLogoutCommand(rt),
		newWhoamiCommand(rt),
		newChatCommand(rt),
		newHistoryCommand(rt),
		newConfigCommand(rt),
	)
	return root
}

// Execute runs the command tree against os.Args. The error has already been
// printed to stderr.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := NewRootCommand()
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(root.ErrOrStderr(), ErrorStyle.Render("Error:"), err)
		return err
	}
	return nil
}
