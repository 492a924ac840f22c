// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package auth implements the local credential store.
//
// Two records live in the key/value store under fixed names:
//
//   - chat-app-users:       {"<email>": "<password>", ...}
//   - chat-app-currentUser: {"email": "<email>"}
//
// Passwords are stored in plaintext. This store identifies a local user; it
// is not a security boundary.
package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/jeranaias/gemchat/internal/kv"
	"github.com/jeranaias/gemchat/internal/logging"
	"github.com/jeranaias/gemchat/internal/util"
)

// =============================================================================
// CONSTANTS AND ERRORS
// =============================================================================

const (
	// UsersKey holds the identity -> secret table.
	UsersKey = "chat-app-users"

	// CurrentUserKey holds the current-session marker.
	CurrentUserKey = "chat-app-currentUser"
)

var (
	// ErrDuplicateIdentity is returned by Signup for a registered identity.
	ErrDuplicateIdentity = errors.New("user already exists")

	// ErrInvalidCredentials is returned by Login for an unknown identity or a
	// wrong secret.
	ErrInvalidCredentials = errors.New("invalid email or password")

	// ErrMissingField is returned when the identity or secret is empty.
	ErrMissingField = errors.New("email and password are required")
)

// User is the identity recorded in the current-session marker.
type User struct {
	Email string `json:"email"`
}

// =============================================================================
// STORE
// =============================================================================

// Store is the credential store. It is safe for concurrent use.
type Store struct {
	mu      sync.Mutex
	kv      kv.Store
	logger  *log.Logger
	latency time.Duration
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for auth events.
func WithLogger(logger *log.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// WithLatency delays Signup and Login by d, as a remote auth call would.
func WithLatency(d time.Duration) Option {
	return func(s *Store) {
		s.latency = d
	}
}

// NewStore returns a credential store backed by store.
func NewStore(store kv.Store, opts ...Option) *Store {
	s := &Store{
		kv:     store,
		logger: logging.Discard(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Signup registers identity with secret. It does not log the user in.
// Identities are opaque and stored exactly as given; a blank identity or an
// empty secret is ErrMissingField.
func (s *Store) Signup(ctx context.Context, identity, secret string) error {
	if util.IsBlank(identity) || secret == "" {
		return ErrMissingField
	}
	if err := s.wait(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	users, err := s.users(ctx)
	if err != nil {
		return err
	}
	if _, exists := users[identity]; exists {
		s.logger.Info("SIGNUP_REJECTED", "identity", identity, "reason", "duplicate")
		return ErrDuplicateIdentity
	}

	users[identity] = secret
	if err := kv.SetJSON(ctx, s.kv, UsersKey, users); err != nil {
		return fmt.Errorf("failed to save users: %w", err)
	}

	s.logger.Info("SIGNUP_COMPLETE", "identity", identity)
	return nil
}

// Login checks the credential pair and, on success, records identity as the
// current session. A failed login leaves the current session untouched.
//
// Every pair other than a registered one is ErrInvalidCredentials, including
// empty fields: Signup never stores an empty secret, so none can match.
func (s *Store) Login(ctx context.Context, identity, secret string) (User, error) {
	if err := s.wait(ctx); err != nil {
		return User{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	users, err := s.users(ctx)
	if err != nil {
		return User{}, err
	}
	stored, ok := users[identity]
	if !ok || identity == "" || stored != secret {
		s.logger.Info("LOGIN_FAILED", "identity", identity)
		return User{}, ErrInvalidCredentials
	}

	user := User{Email: identity}
	if err := kv.SetJSON(ctx, s.kv, CurrentUserKey, user); err != nil {
		return User{}, fmt.Errorf("failed to save current user: %w", err)
	}

	s.logger.Info("LOGIN_COMPLETE", "identity", identity)
	return user, nil
}

// Logout clears the current session. Calling it when nobody is logged in is
// not an error; only storage failures are reported.
func (s *Store) Logout(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.kv.Delete(ctx, CurrentUserKey); err != nil {
		return fmt.Errorf("failed to clear current user: %w", err)
	}
	s.logger.Info("LOGOUT")
	return nil
}

// CurrentIdentity returns the persisted current session. ok is false when
// nobody is logged in. An undecodable marker counts as logged out.
func (s *Store) CurrentIdentity(ctx context.Context) (user User, ok bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	found, err := kv.GetJSON(ctx, s.kv, CurrentUserKey, &user)
	if err != nil {
		var decodeErr *kv.DecodeError
		if errors.As(err, &decodeErr) {
			s.logger.Warn("CURRENT_USER_CORRUPT", "error", err)
			return User{}, false, nil
		}
		return User{}, false, err
	}
	if !found || user.Email == "" {
		return User{}, false, nil
	}
	return user, true, nil
}

// Registered reports whether identity has a credential record.
func (s *Store) Registered(ctx context.Context, identity string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	users, err := s.users(ctx)
	if err != nil {
		return false, err
	}
	_, ok := users[identity]
	return ok, nil
}

// users loads the credential table. Callers hold s.mu.
func (s *Store) users(ctx context.Context) (map[string]string, error) {
	users := make(map[string]string)
	if _, err := kv.GetJSON(ctx, s.kv, UsersKey, &users); err != nil {
		return nil, fmt.Errorf("failed to load users: %w", err)
	}
	return users, nil
}

func (s *Store) wait(ctx context.Context) error {
	if s.latency <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(s.latency)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
