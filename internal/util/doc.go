// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util provides small helpers shared across gemchat.
//
// # Key Functions
//
// File Operations:
//   - AtomicWriteFile: Crash-safe file writing with fsync
//   - ExpandHome: Resolves a leading "~" to the user's home directory
//
// String Utilities:
//   - TruncateWidth: Display-width aware truncation with ellipsis
//   - IsBlank: Reports whether a string holds only whitespace
//
// # Usage
//
//	// Write files atomically to prevent data loss
//	err := util.AtomicWriteFile(path, data, 0600)
//
//	// Fit an identity into a fixed-width header
//	label := util.TruncateWidth(email, 24)
package util
