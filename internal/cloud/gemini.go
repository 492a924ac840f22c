// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cloud

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/jeranaias/gemchat/internal/logging"
	"github.com/jeranaias/gemchat/internal/model"
)

const (
	// DefaultGeminiURL is the base URL of the Generative Language API.
	DefaultGeminiURL = "https://generativelanguage.googleapis.com"

	// DefaultGeminiModel is the model used when none is configured.
	DefaultGeminiModel = "gemini-2.5-flash"

	// MaxErrorBodySize bounds how much of an error reply is read.
	MaxErrorBodySize = 64 * 1024

	geminiProvider = "gemini"
)

// sharedStreamingClient is used for streaming requests. It has no overall
// timeout: a stream ends when the model finishes or the context is done.
// Only the wait for response headers is bounded.
var sharedStreamingClient = &http.Client{
	Transport: &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConns:          10,
		MaxIdleConnsPerHost:   4,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 60 * time.Second,
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
	},
}

// GeminiClient streams replies from the Gemini REST API.
type GeminiClient struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
	logger     *log.Logger
}

// NewGeminiClient creates a client for apiKey with default settings.
func NewGeminiClient(apiKey string) *GeminiClient {
	return &GeminiClient{
		apiKey:     strings.TrimSpace(apiKey),
		baseURL:    DefaultGeminiURL,
		model:      DefaultGeminiModel,
		httpClient: sharedStreamingClient,
		logger:     logging.Discard(),
	}
}

// WithBaseURL sets a custom base URL for the API.
func (c *GeminiClient) WithBaseURL(u string) *GeminiClient {
	if u != "" {
		c.baseURL = strings.TrimSuffix(u, "/")
	}
	return c
}

// WithModel sets the model name.
func (c *GeminiClient) WithModel(m string) *GeminiClient {
	if m != "" {
		c.model = m
	}
	return c
}

// WithHTTPClient replaces the shared streaming HTTP client.
func (c *GeminiClient) WithHTTPClient(hc *http.Client) *GeminiClient {
	c.httpClient = hc
	return c
}

// WithLogger sets the logger.
func (c *GeminiClient) WithLogger(l *log.Logger) *GeminiClient {
	if l != nil {
		c.logger = l
	}
	return c
}

// Name implements Client.
func (c *GeminiClient) Name() string { return geminiProvider }

// Model returns the configured model name.
func (c *GeminiClient) Model() string { return c.model }

// StreamGenerate implements Client.
func (c *GeminiClient) StreamGenerate(ctx context.Context, contents model.History) Stream {
	body, err := buildGeminiRequest(contents)
	if err != nil {
		return &errStream{err: &TransportError{Provider: geminiProvider, Message: "failed to build request", Err: err}}
	}

	endpoint := fmt.Sprintf("%s/v1beta/models/%s:streamGenerateContent?alt=sse",
		c.baseURL, url.PathEscape(c.model))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return &errStream{err: &TransportError{Provider: geminiProvider, Message: "failed to create request", Err: err}}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("x-goog-api-key", c.apiKey)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("GEMINI_REQUEST_FAILED", "error", err)
		return &errStream{err: &TransportError{Provider: geminiProvider, Message: "request failed", Err: err}}
	}
	c.logger.Debug("GEMINI_RESPONSE", "status", resp.StatusCode, "latency", time.Since(start))

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		data, _ := io.ReadAll(io.LimitReader(resp.Body, MaxErrorBodySize))
		return &errStream{err: geminiHTTPError(resp.StatusCode, data)}
	}

	return &geminiStream{body: resp.Body, reader: NewSSEReader(resp.Body)}
}

// buildGeminiRequest renders contents as a generateContent request body.
func buildGeminiRequest(contents model.History) ([]byte, error) {
	body := `{"contents":[]}`
	var err error
	for i, m := range contents {
		body, err = sjson.SetRaw(body, "contents.-1", `{"role":"","parts":[{"text":""}]}`)
		if err != nil {
			return nil, err
		}
		body, err = sjson.Set(body, fmt.Sprintf("contents.%d.role", i), m.Role.String())
		if err != nil {
			return nil, err
		}
		body, err = sjson.Set(body, fmt.Sprintf("contents.%d.parts.0.text", i), m.Text)
		if err != nil {
			return nil, err
		}
	}
	return []byte(body), nil
}

func geminiHTTPError(status int, body []byte) *TransportError {
	msg := gjson.GetBytes(body, "error.message").String()
	if msg == "" {
		msg = http.StatusText(status)
	}
	return &TransportError{Provider: geminiProvider, Status: status, Message: msg}
}

// geminiStream reads streamGenerateContent SSE frames.
type geminiStream struct {
	body     io.ReadCloser
	reader   *SSEReader
	fragment string
	err      error
	done     bool
}

func (s *geminiStream) Next() bool {
	if s.done {
		return false
	}
	for {
		_, data, err := s.reader.ReadEvent()
		if err == io.EOF {
			return s.finish(nil)
		}
		if err != nil {
			return s.finish(&TransportError{Provider: geminiProvider, Message: "stream interrupted", Err: err})
		}
		if bytes.Equal(data, []byte("[DONE]")) {
			return s.finish(nil)
		}
		if !gjson.ValidBytes(data) {
			continue
		}

		frame := gjson.ParseBytes(data)
		if e := frame.Get("error"); e.Exists() {
			return s.finish(&TransportError{
				Provider: geminiProvider,
				Status:   int(e.Get("code").Int()),
				Message:  e.Get("message").String(),
			})
		}
		if reason := frame.Get("promptFeedback.blockReason"); reason.Exists() && !frame.Get("candidates").Exists() {
			return s.finish(&TransportError{Provider: geminiProvider, Message: "prompt blocked: " + reason.String()})
		}

		text := frameText(frame)
		if text == "" {
			continue
		}
		s.fragment = text
		return true
	}
}

// frameText joins the non-thought text parts of the first candidate.
func frameText(frame gjson.Result) string {
	var sb strings.Builder
	frame.Get("candidates.0.content.parts").ForEach(func(_, part gjson.Result) bool {
		if !part.Get("thought").Bool() {
			sb.WriteString(part.Get("text").String())
		}
		return true
	})
	return sb.String()
}

func (s *geminiStream) finish(err error) bool {
	s.done = true
	s.err = err
	s.fragment = ""
	s.body.Close()
	return false
}

func (s *geminiStream) Fragment() string { return s.fragment }
func (s *geminiStream) Err() error       { return s.err }

func (s *geminiStream) Close() error {
	if s.done {
		return nil
	}
	s.done = true
	return s.body.Close()
}
