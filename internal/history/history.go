// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package history persists one conversation per identity under the key
// "chat-history-<identity>".
package history

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/jeranaias/gemchat/internal/kv"
	"github.com/jeranaias/gemchat/internal/logging"
	"github.com/jeranaias/gemchat/internal/model"
)

// KeyPrefix precedes the identity in every history key.
const KeyPrefix = "chat-history-"

// Key returns the storage key for identity.
func Key(identity string) string {
	return KeyPrefix + identity
}

// Store loads and saves conversation histories.
type Store struct {
	kv     kv.Store
	logger *log.Logger
}

// NewStore returns a history store backed by store. A nil logger discards.
func NewStore(store kv.Store, logger *log.Logger) *Store {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Store{kv: store, logger: logger}
}

// Load returns the stored history for identity, or an empty history when
// none exists. It never fails: unreadable or corrupt records are logged and
// treated as empty.
func (s *Store) Load(ctx context.Context, identity string) model.History {
	var h model.History
	found, err := kv.GetJSON(ctx, s.kv, Key(identity), &h)
	if err != nil {
		s.logger.Warn("HISTORY_LOAD_FAILED", "identity", identity, "error", err)
		return model.History{}
	}
	if !found || h == nil {
		return model.History{}
	}
	return h
}

// Save replaces the stored history for identity with h.
func (s *Store) Save(ctx context.Context, identity string, h model.History) error {
	if identity == "" {
		return fmt.Errorf("save history: %w", kv.ErrInvalidKey)
	}
	if err := kv.SetJSON(ctx, s.kv, Key(identity), h); err != nil {
		return fmt.Errorf("save history for %s: %w", identity, err)
	}
	s.logger.Debug("HISTORY_SAVED", "identity", identity, "messages", len(h))
	return nil
}

// Identities lists every identity with a stored history.
func (s *Store) Identities(ctx context.Context) ([]string, error) {
	keys, err := s.kv.Keys(ctx, KeyPrefix)
	if err != nil {
		return nil, fmt.Errorf("list histories: %w", err)
	}
	ids := make([]string, 0, len(keys))
	for _, k := range keys {
		ids = append(ids, strings.TrimPrefix(k, KeyPrefix))
	}
	return ids, nil
}
