// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package conversation

import "github.com/jeranaias/gemchat/internal/model"

// State is the controller's lifecycle state.
type State int

const (
	StateIdle State = iota
	StateAwaitingIdentity
	StateReady
	StateStreaming
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingIdentity:
		return "awaiting-identity"
	case StateReady:
		return "ready"
	case StateStreaming:
		return "streaming"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Snapshot is what a display layer may see of the controller.
type Snapshot struct {
	Identity string
	State    State
	Messages model.History
	// Streaming holds the running concatenation of the in-flight reply.
	Streaming string
}

// InFlight reports whether an exchange is running.
func (s Snapshot) InFlight() bool {
	return s.State == StateStreaming
}

// Outcome says how an exchange's stream ended.
type Outcome int

const (
	// Completed means the stream was exhausted normally.
	Completed Outcome = iota
	// Aborted means the stream stopped with a transport error.
	Aborted
)

func (o Outcome) String() string {
	if o == Completed {
		return "completed"
	}
	return "aborted"
}

// exchangeResult is the explicit result of draining one reply stream.
type exchangeResult struct {
	Outcome   Outcome
	Text      string
	Fragments int
	Err       error
}

// reply is the model message committed for the result. Partial text of an
// aborted stream is discarded in favour of the fallback reply.
func (r exchangeResult) reply() model.Message {
	if r.Outcome == Aborted {
		return model.ModelMessage(model.FallbackReply)
	}
	return model.ModelMessage(r.Text)
}
