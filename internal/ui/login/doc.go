// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package login provides the sign-in and sign-up screen.
//
// The screen has two modes toggled with ctrl+t. Login asks for an email and
// password; signup adds a confirmation field. A successful login emits
// LoggedInMsg for the parent model; a successful signup switches back to
// login mode with a success banner.
package login
