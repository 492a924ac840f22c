// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import "encoding/json"

// History is a chronologically ordered conversation for one identity.
type History []Message

// Clone returns a copy that shares no backing array with h. The result is
// never nil.
func (h History) Clone() History {
	out := make(History, len(h))
	copy(out, h)
	return out
}

// Append returns a new history with msgs added, leaving h untouched.
func (h History) Append(msgs ...Message) History {
	out := make(History, 0, len(h)+len(msgs))
	out = append(out, h...)
	return append(out, msgs...)
}

// MarshalJSON encodes a nil history as [] rather than null.
func (h History) MarshalJSON() ([]byte, error) {
	if h == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]Message(h))
}
