// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"bytes"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/jeranaias/gemchat/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete gemchat configuration.
type Config struct {
	// Provider selects the streaming backend: "gemini" or "anthropic".
	Provider string `toml:"provider"`

	// DataDir holds the store, the log file and the default config file.
	DataDir string `toml:"data_dir"`

	Gemini    GeminiConfig    `toml:"gemini"`
	Anthropic AnthropicConfig `toml:"anthropic"`
	Store     StoreConfig     `toml:"store"`
	Auth      AuthConfig      `toml:"auth"`
	Log       LogConfig       `toml:"log"`
	UI        UIConfig        `toml:"ui"`
}

// GeminiConfig configures the Gemini REST backend.
type GeminiConfig struct {
	Model   string `toml:"model"`
	BaseURL string `toml:"base_url"`
}

// AnthropicConfig configures the Anthropic backend.
type AnthropicConfig struct {
	Model     string `toml:"model"`
	MaxTokens int    `toml:"max_tokens"`
	BaseURL   string `toml:"base_url,omitempty"`
}

// StoreConfig selects the durable key/value backend.
type StoreConfig struct {
	Backend string `toml:"backend"`
}

// AuthConfig tunes the local credential store.
type AuthConfig struct {
	// SimulatedLatencyMs delays signup and login, mimicking a remote call.
	SimulatedLatencyMs int `toml:"simulated_latency_ms"`
}

// LogConfig configures the rotating log file.
type LogConfig struct {
	Level      string `toml:"level"`
	File       string `toml:"file"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
}

// UIConfig configures the terminal UI.
type UIConfig struct {
	RenderFPS int `toml:"render_fps"`
}

// Supported values.
const (
	ProviderGemini    = "gemini"
	ProviderAnthropic = "anthropic"

	BackendSQLite = "sqlite"
	BackendFile   = "file"
)

// =============================================================================
// DEFAULT CONFIGURATION
// =============================================================================

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Provider: ProviderGemini,
		DataDir:  "~/.gemchat",
		Gemini: GeminiConfig{
			Model:   "gemini-2.5-flash",
			BaseURL: "https://generativelanguage.googleapis.com",
		},
		Anthropic: AnthropicConfig{
			Model:     "claude-sonnet-4-5",
			MaxTokens: 2048,
		},
		Store: StoreConfig{
			Backend: BackendSQLite,
		},
		Auth: AuthConfig{
			SimulatedLatencyMs: 0,
		},
		Log: LogConfig{
			Level:      "info",
			File:       "gemchat.log",
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
		UI: UIConfig{
			RenderFPS: 30,
		},
	}
}

// =============================================================================
// PATH HELPERS
// =============================================================================

// DefaultPath returns ~/.gemchat/config.toml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".gemchat", "config.toml"), nil
}

// ResolvedDataDir returns DataDir with "~" expanded.
func (c *Config) ResolvedDataDir() (string, error) {
	return util.ExpandHome(c.DataDir)
}

// LogPath returns the log file path. Relative names live under the data dir.
func (c *Config) LogPath() (string, error) {
	if filepath.IsAbs(c.Log.File) {
		return c.Log.File, nil
	}
	dir, err := c.ResolvedDataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, c.Log.File), nil
}

// AuthLatency returns the simulated auth delay.
func (c *Config) AuthLatency() time.Duration {
	return time.Duration(c.Auth.SimulatedLatencyMs) * time.Millisecond
}

// Model returns the model name of the selected provider.
func (c *Config) Model() string {
	if c.Provider == ProviderAnthropic {
		return c.Anthropic.Model
	}
	return c.Gemini.Model
}

// =============================================================================
// LOAD / SAVE
// =============================================================================

// Load reads the TOML file at path (DefaultPath when empty). A missing file
// yields defaults. Environment overrides are applied before validation.
func Load(path string) (*Config, error) {
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	cfg := Default()
	if _, err := os.Stat(path); err == nil {
		if err := LoadTOML(cfg, path); err != nil {
			return nil, err
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}

	cfg.ApplyEnvOverrides()
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadTOML decodes the TOML file at path into cfg.
func LoadTOML(cfg *Config, path string) error {
	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return fmt.Errorf("failed to decode TOML file: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		return fmt.Errorf("unknown config keys: %s", strings.Join(keys, ", "))
	}
	return nil
}

// Save writes cfg to path as TOML with 0600 permissions.
func Save(cfg *Config, path string) error {
	var buf bytes.Buffer
	buf.WriteString("# gemchat configuration file\n")
	buf.WriteString("# API keys are read from API_KEY / ANTHROPIC_API_KEY, never from this file.\n\n")

	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := util.AtomicWriteFile(path, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// String renders cfg as TOML.
func (c *Config) String() string {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(c); err != nil {
		return fmt.Sprintf("<config encode error: %v>", err)
	}
	return buf.String()
}

// SetDefaults fills zero values with defaults.
func (c *Config) SetDefaults() {
	d := Default()

	if c.Provider == "" {
		c.Provider = d.Provider
	}
	if c.DataDir == "" {
		c.DataDir = d.DataDir
	}
	if c.Gemini.Model == "" {
		c.Gemini.Model = d.Gemini.Model
	}
	if c.Gemini.BaseURL == "" {
		c.Gemini.BaseURL = d.Gemini.BaseURL
	}
	if c.Anthropic.Model == "" {
		c.Anthropic.Model = d.Anthropic.Model
	}
	if c.Anthropic.MaxTokens == 0 {
		c.Anthropic.MaxTokens = d.Anthropic.MaxTokens
	}
	if c.Store.Backend == "" {
		c.Store.Backend = d.Store.Backend
	}
	if c.Log.Level == "" {
		c.Log.Level = d.Log.Level
	}
	if c.Log.File == "" {
		c.Log.File = d.Log.File
	}
	if c.Log.MaxSizeMB == 0 {
		c.Log.MaxSizeMB = d.Log.MaxSizeMB
	}
	if c.Log.MaxBackups == 0 {
		c.Log.MaxBackups = d.Log.MaxBackups
	}
	if c.UI.RenderFPS == 0 {
		c.UI.RenderFPS = d.UI.RenderFPS
	}

	c.Provider = strings.ToLower(c.Provider)
	c.Store.Backend = strings.ToLower(c.Store.Backend)
	c.Log.Level = strings.ToLower(c.Log.Level)
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validate checks the configuration and returns ValidateErrors on failure.
func (c *Config) Validate() error {
	var errs ValidateErrors

	switch c.Provider {
	case ProviderGemini, ProviderAnthropic:
	default:
		errs = append(errs, ValidationError{
			Field:   "provider",
			Message: fmt.Sprintf("invalid provider '%s', must be one of: gemini, anthropic", c.Provider),
		})
	}

	switch c.Store.Backend {
	case BackendSQLite, BackendFile:
	default:
		errs = append(errs, ValidationError{
			Field:   "store.backend",
			Message: fmt.Sprintf("invalid backend '%s', must be one of: sqlite, file", c.Store.Backend),
		})
	}

	if c.Gemini.BaseURL != "" {
		if u, err := url.Parse(c.Gemini.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, ValidationError{
				Field:   "gemini.base_url",
				Message: fmt.Sprintf("invalid URL '%s'", c.Gemini.BaseURL),
			})
		}
	}

	if c.Anthropic.MaxTokens < 1 {
		errs = append(errs, ValidationError{
			Field:   "anthropic.max_tokens",
			Message: "must be positive",
		})
	}

	if c.Auth.SimulatedLatencyMs < 0 || c.Auth.SimulatedLatencyMs > 10000 {
		errs = append(errs, ValidationError{
			Field:   "auth.simulated_latency_ms",
			Message: "must be between 0 and 10000",
		})
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, ValidationError{
			Field:   "log.level",
			Message: fmt.Sprintf("invalid level '%s', must be one of: debug, info, warn, error", c.Log.Level),
		})
	}

	if c.UI.RenderFPS < 1 || c.UI.RenderFPS > 120 {
		errs = append(errs, ValidationError{
			Field:   "ui.render_fps",
			Message: "must be between 1 and 120",
		})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variable overrides to the config.
//
// Supported environment variables:
//   - GEMCHAT_PROVIDER: overrides provider
//   - GEMCHAT_DATA_DIR: overrides data_dir
//   - GEMCHAT_MODEL: overrides the model of the selected provider
//   - GEMCHAT_STORE: overrides store.backend
//   - GEMCHAT_LOG_LEVEL: overrides log.level
//   - GEMCHAT_AUTH_LATENCY_MS: overrides auth.simulated_latency_ms
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("GEMCHAT_PROVIDER"); v != "" {
		c.Provider = strings.ToLower(v)
	}
	if v := os.Getenv("GEMCHAT_DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv("GEMCHAT_MODEL"); v != "" {
		if strings.ToLower(c.Provider) == ProviderAnthropic {
			c.Anthropic.Model = v
		} else {
			c.Gemini.Model = v
		}
	}
	if v := os.Getenv("GEMCHAT_STORE"); v != "" {
		c.Store.Backend = v
	}
	if v := os.Getenv("GEMCHAT_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("GEMCHAT_AUTH_LATENCY_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil {
			c.Auth.SimulatedLatencyMs = ms
		}
	}
}

// =============================================================================
// SINGLETON PATTERN (THREAD-SAFE)
// =============================================================================

var (
	globalConfig     *Config
	globalConfigOnce sync.Once
	globalConfigMu   sync.RWMutex
)

// Global returns the process-wide configuration, loading the default file on
// first access when SetGlobal has not been called.
func Global() *Config {
	globalConfigOnce.Do(func() {
		globalConfigMu.Lock()
		defer globalConfigMu.Unlock()
		if globalConfig != nil {
			return
		}
		cfg, err := Load("")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v (using defaults)\n", err)
			cfg = Default()
		}
		globalConfig = cfg
	})

	globalConfigMu.RLock()
	defer globalConfigMu.RUnlock()
	return globalConfig
}

// SetGlobal sets the process-wide configuration. Thread-safe.
func SetGlobal(cfg *Config) {
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = cfg
}

// ResetGlobalForTesting clears the process-wide configuration.
func ResetGlobalForTesting() {
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = nil
	globalConfigOnce = sync.Once{}
}
