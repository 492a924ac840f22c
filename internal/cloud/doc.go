// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cloud adapts hosted text-generation services to a streaming chat
// session.
//
// # Key Types
//
//   - Client: a streaming backend (GeminiClient, AnthropicClient)
//   - Stream: lazy, finite, non-restartable sequence of text fragments
//   - Session: a handle seeded with history that answers prompts in context
//   - Adapter: process-wide entry point that builds the Client once, lazily
//
// # Usage
//
//	adapter := cloud.NewAdapter(cloud.Connector(settings, logger), logger)
//	session, err := adapter.Open(history)
//	if err != nil {
//	    return err // *ConfigurationError when the API key is missing
//	}
//	stream := session.SendStreaming(ctx, "hello")
//	defer stream.Close()
//	for stream.Next() {
//	    fmt.Print(stream.Fragment())
//	}
//	if err := stream.Err(); err != nil {
//	    // *TransportError
//	}
//
// # Security
//
// API keys are read from the environment when the client is first built and
// are never logged.
package cloud
