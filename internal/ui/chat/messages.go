// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import "github.com/jeranaias/gemchat/internal/conversation"

// SnapshotMsg delivers the controller's latest state.
type SnapshotMsg struct {
	Snapshot conversation.Snapshot
}

// LogoutMsg asks the parent model to log the user out.
type LogoutMsg struct{}

// submitDoneMsg reports that a Submit call returned.
type submitDoneMsg struct {
	prompt string
	err    error
}

// newChatDoneMsg reports that a NewChat call returned.
type newChatDoneMsg struct {
	err error
}
