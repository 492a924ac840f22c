// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"encoding/json"
	"fmt"
	"strings"
)

// =============================================================================
// ROLE TYPE
// =============================================================================

// Role represents the sender of a message.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// FallbackReply is the model text recorded when an exchange fails.
const FallbackReply = "An error occurred. Please try again."

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// DisplayName returns a human-readable name for the role.
func (r Role) DisplayName() string {
	switch r {
	case RoleUser:
		return "You"
	case RoleModel:
		return "Assistant"
	default:
		return string(r)
	}
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleModel
}

// =============================================================================
// MESSAGE TYPE
// =============================================================================

// Message is a single turn in a conversation.
type Message struct {
	Role Role
	Text string
}

// UserMessage returns a user-role message.
func UserMessage(text string) Message {
	return Message{Role: RoleUser, Text: text}
}

// ModelMessage returns a model-role message.
func ModelMessage(text string) Message {
	return Message{Role: RoleModel, Text: text}
}

type wirePart struct {
	Text string `json:"text"`
}

type wireMessage struct {
	Role  Role       `json:"role"`
	Parts []wirePart `json:"parts"`
}

// MarshalJSON encodes m as {"role":..., "parts":[{"text":...}]}.
func (m Message) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireMessage{
		Role:  m.Role,
		Parts: []wirePart{{Text: m.Text}},
	})
}

// UnmarshalJSON decodes the parts form. Multiple parts are joined so the
// message still carries a single text segment.
func (m *Message) UnmarshalJSON(data []byte) error {
	var w wireMessage
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	if !w.Role.Valid() {
		return fmt.Errorf("unknown message role %q", w.Role)
	}

	texts := make([]string, 0, len(w.Parts))
	for _, p := range w.Parts {
		texts = append(texts, p.Text)
	}
	m.Role = w.Role
	m.Text = strings.Join(texts, "")
	return nil
}
