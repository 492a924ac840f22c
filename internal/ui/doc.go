// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package ui wires the login and chat screens into one Bubble Tea program.
//
// App switches between the screens on login and logout. Bridge carries
// controller snapshots into the program: the controller's listener only
// drops the snapshot into a one-slot mailbox, and a pump goroutine forwards
// it with Program.Send at a bounded frame rate.
package ui
