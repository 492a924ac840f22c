// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package conversation drives one user's chat: it loads the identity's
// history, opens a session seeded with it, streams replies into a buffer
// and commits each finished exchange back to the history store.
//
// # States
//
//	Idle ──SetIdentity──▶ Ready ◀──────────────┐
//	  │                    │ Submit            │ reply or fallback saved
//	  └─ClearIdentity─▶ AwaitingIdentity       ▼
//	                              Streaming ──(failure)──▶ Error ──▶ Ready
//
// Streaming is exclusive: Submit while an exchange is in flight returns
// ErrBusy and changes nothing. Display layers observe the controller through
// Subscribe, which delivers a Snapshot after every state change.
package conversation
