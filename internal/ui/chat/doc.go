// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat provides the chat screen.
//
// The screen never owns conversation state. It renders the latest
// conversation.Snapshot it was sent (SnapshotMsg) and turns key presses into
// controller calls run as tea.Cmds, so a blocking Submit never stalls the
// Bubble Tea loop.
package chat
