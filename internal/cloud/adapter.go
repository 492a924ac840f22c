// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cloud

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/charmbracelet/log"

	"github.com/jeranaias/gemchat/internal/config"
	"github.com/jeranaias/gemchat/internal/logging"
	"github.com/jeranaias/gemchat/internal/model"
)

// Environment variables holding API keys.
const (
	EnvGeminiKey         = "API_KEY"
	EnvGeminiKeyFallback = "GEMINI_API_KEY"
	EnvAnthropicKey      = "ANTHROPIC_API_KEY"
)

// ConnectFunc builds a Client. It is called by the Adapter until it first
// succeeds.
type ConnectFunc func() (Client, error)

// Adapter is the process-wide entry point to the streaming service. The
// backend client is built on the first Open, at most once, and then reused
// for the life of the process. Failed attempts are not cached, so setting
// the API key and retrying works without a restart. There is no teardown.
type Adapter struct {
	connect ConnectFunc
	logger  *log.Logger

	mu     sync.Mutex
	client Client
}

// NewAdapter returns an Adapter that builds its client with connect. A nil
// logger discards.
func NewAdapter(connect ConnectFunc, logger *log.Logger) *Adapter {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Adapter{connect: connect, logger: logger}
}

// Client returns the shared client, building it on first use.
func (a *Adapter) Client() (Client, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.client != nil {
		return a.client, nil
	}
	c, err := a.connect()
	if err != nil {
		a.logger.Warn("CLIENT_INIT_FAILED", "error", err)
		return nil, err
	}
	a.client = c
	a.logger.Info("CLIENT_READY", "provider", c.Name())
	return c, nil
}

// Open returns a session seeded with history.
func (a *Adapter) Open(history model.History) (*Session, error) {
	c, err := a.Client()
	if err != nil {
		return nil, err
	}
	return newSession(c, history), nil
}

// Connector returns a ConnectFunc for the provider selected in cfg. API keys
// are read from the environment when it runs, not when it is created.
func Connector(cfg *config.Config, logger *log.Logger, opts ...option.RequestOption) ConnectFunc {
	return func() (Client, error) {
		switch cfg.Provider {
		case config.ProviderAnthropic:
			key := strings.TrimSpace(os.Getenv(EnvAnthropicKey))
			if key == "" {
				return nil, &ConfigurationError{Setting: EnvAnthropicKey}
			}
			extra := opts
			if cfg.Anthropic.BaseURL != "" {
				extra = append([]option.RequestOption{option.WithBaseURL(cfg.Anthropic.BaseURL)}, extra...)
			}
			return NewAnthropicClient(key, cfg.Anthropic.Model, cfg.Anthropic.MaxTokens, extra...).
				WithLogger(logger), nil

		case config.ProviderGemini, "":
			key := strings.TrimSpace(os.Getenv(EnvGeminiKey))
			if key == "" {
				key = strings.TrimSpace(os.Getenv(EnvGeminiKeyFallback))
			}
			if key == "" {
				return nil, &ConfigurationError{Setting: EnvGeminiKey}
			}
			return NewGeminiClient(key).
				WithBaseURL(cfg.Gemini.BaseURL).
				WithModel(cfg.Gemini.Model).
				WithLogger(logger), nil

		default:
			return nil, &ConfigurationError{
				Setting: "provider",
				Reason:  fmt.Sprintf("unsupported provider %q", cfg.Provider),
			}
		}
	}
}
