// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cloud

import (
	"context"
	"errors"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"
	"github.com/charmbracelet/log"

	"github.com/jeranaias/gemchat/internal/logging"
	"github.com/jeranaias/gemchat/internal/model"
)

const (
	// DefaultAnthropicModel is the model used when none is configured.
	DefaultAnthropicModel = "claude-sonnet-4-5"

	// DefaultAnthropicMaxTokens caps a single reply.
	DefaultAnthropicMaxTokens = 2048

	anthropicProvider = "anthropic"
)

// AnthropicClient streams replies through the Anthropic Messages API.
type AnthropicClient struct {
	client    anthropic.Client
	model     string
	maxTokens int64
	logger    *log.Logger
}

// NewAnthropicClient creates a client for apiKey. SDK retries are disabled:
// a failed exchange is reported once and the user resubmits. Extra request
// options (base URL, HTTP client) are applied after the defaults.
func NewAnthropicClient(apiKey, modelName string, maxTokens int, opts ...option.RequestOption) *AnthropicClient {
	if modelName == "" {
		modelName = DefaultAnthropicModel
	}
	if maxTokens <= 0 {
		maxTokens = DefaultAnthropicMaxTokens
	}
	all := append([]option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}, opts...)

	return &AnthropicClient{
		client:    anthropic.NewClient(all...),
		model:     modelName,
		maxTokens: int64(maxTokens),
		logger:    logging.Discard(),
	}
}

// WithLogger sets the logger.
func (c *AnthropicClient) WithLogger(l *log.Logger) *AnthropicClient {
	if l != nil {
		c.logger = l
	}
	return c
}

// Name implements Client.
func (c *AnthropicClient) Name() string { return anthropicProvider }

// StreamGenerate implements Client.
func (c *AnthropicClient) StreamGenerate(ctx context.Context, contents model.History) Stream {
	messages := make([]anthropic.MessageParam, 0, len(contents))
	for _, m := range contents {
		block := anthropic.NewTextBlock(m.Text)
		if m.Role == model.RoleModel {
			messages = append(messages, anthropic.NewAssistantMessage(block))
		} else {
			messages = append(messages, anthropic.NewUserMessage(block))
		}
	}

	stream := c.client.Messages.NewStreaming(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: c.maxTokens,
		Messages:  messages,
	})
	return &anthropicStream{stream: stream, logger: c.logger}
}

// anthropicStream yields the text deltas of a Messages stream.
type anthropicStream struct {
	stream   *ssestream.Stream[anthropic.MessageStreamEventUnion]
	logger   *log.Logger
	fragment string
	err      error
	done     bool
}

func (s *anthropicStream) Next() bool {
	if s.done {
		return false
	}
	for s.stream.Next() {
		event := s.stream.Current()
		switch ev := event.AsAny().(type) {
		case anthropic.ContentBlockDeltaEvent:
			if delta, ok := ev.Delta.AsAny().(anthropic.TextDelta); ok && delta.Text != "" {
				s.fragment = delta.Text
				return true
			}
		case anthropic.MessageStopEvent:
			return s.finish(nil)
		}
	}
	return s.finish(s.stream.Err())
}

func (s *anthropicStream) finish(err error) bool {
	s.done = true
	s.fragment = ""
	if err != nil {
		te := &TransportError{Provider: anthropicProvider, Err: err}
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			te.Status = apiErr.StatusCode
		}
		s.err = te
		s.logger.Warn("ANTHROPIC_STREAM_FAILED", "status", te.Status, "error", err)
	}
	s.stream.Close()
	return false
}

func (s *anthropicStream) Fragment() string { return s.fragment }
func (s *anthropicStream) Err() error       { return s.err }

func (s *anthropicStream) Close() error {
	if s.done {
		return nil
	}
	s.done = true
	return s.stream.Close()
}
