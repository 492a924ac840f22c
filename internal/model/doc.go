// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the message and history types shared by the stores,
// the streaming adapter and the conversation controller.
//
// A Message always carries exactly one text segment. On disk it keeps the
// wire shape used by the Gemini API:
//
//	{"role":"user","parts":[{"text":"hello"}]}
package model
