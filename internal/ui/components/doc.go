// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package components provides the display pieces shared by the gemchat screens.

# Display Components

Header (header.go) - Title bar with the signed-in identity.
Transcript (transcript.go) - Message list with the in-flight reply, the
typing indicator and the welcome text.
MarkdownRenderer (markdown.go) - Glamour renderer for model replies, rebuilt
when the width changes.
Shortcuts (shortcuts.go) - Footer line of key hints.
*/
package components
