// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli implements the gemchat command tree.
//
// Running gemchat with no subcommand starts the terminal UI. The other
// commands cover the same flows for scripts and plain terminals:
//
//   - signup, login, logout, whoami: the local account
//   - chat: a line REPL that streams replies to stdout
//   - history show|list|clear|export: stored conversations
//   - config show|init|path: the TOML configuration file
//
// # Usage
//
//	if err := cli.Execute(); err != nil {
//	    os.Exit(1)
//	}
//
// Every command accepts --config, --data-dir and --verbose. The stores and
// logger are opened per command and closed when it returns.
package cli
