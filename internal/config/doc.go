// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for gemchat.
//
// Configuration is read from a TOML file, filled with defaults, overridden
// from GEMCHAT_* environment variables, and validated.
//
// Default file location: ~/.gemchat/config.toml
//
// # Usage
//
//	cfg, err := config.Load("")
//	if err != nil {
//	    return err
//	}
//	dataDir, _ := cfg.ResolvedDataDir()
//
// API keys are deliberately absent from Config. They are read from the
// environment when the streaming client is first built.
package config
