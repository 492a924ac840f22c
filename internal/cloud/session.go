// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cloud

import (
	"context"
	"strings"
	"sync"

	"github.com/jeranaias/gemchat/internal/model"
)

// Session is a chat handle seeded with prior turns. Prompts sent through it
// are answered with that context, and each completed exchange is added to
// it. A Session lives in memory only.
type Session struct {
	client Client

	mu      sync.Mutex
	history model.History
}

func newSession(client Client, seed model.History) *Session {
	return &Session{client: client, history: seed.Clone()}
}

// History returns a copy of the session's context.
func (s *Session) History() model.History {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.history.Clone()
}

// SendStreaming sends prompt in the session's context and returns the reply
// stream. The exchange joins the session's context only if the stream
// finishes without error.
func (s *Session) SendStreaming(ctx context.Context, prompt string) Stream {
	s.mu.Lock()
	contents := s.history.Append(model.UserMessage(prompt))
	s.mu.Unlock()

	return &sessionStream{
		Stream:  s.client.StreamGenerate(ctx, contents),
		session: s,
		prompt:  prompt,
	}
}

func (s *Session) record(prompt, reply string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = s.history.Append(model.UserMessage(prompt), model.ModelMessage(reply))
}

// sessionStream accumulates the reply so a finished exchange can be recorded.
type sessionStream struct {
	Stream
	session  *Session
	prompt   string
	reply    strings.Builder
	recorded bool
}

func (s *sessionStream) Next() bool {
	if s.Stream.Next() {
		s.reply.WriteString(s.Stream.Fragment())
		return true
	}
	if !s.recorded && s.Stream.Err() == nil {
		s.recorded = true
		s.session.record(s.prompt, s.reply.String())
	}
	return false
}
