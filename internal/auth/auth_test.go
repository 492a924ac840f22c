// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package auth

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/gemchat/internal/kv"
)

func newStore(t *testing.T) (*Store, kv.Store) {
	t.Helper()
	backing := kv.NewMemoryStore()
	return NewStore(backing), backing
}

// =============================================================================
// SIGNUP
// =============================================================================

func TestSignup_RecordsPlaintextCredential(t *testing.T) {
	ctx := context.Background()
	s, backing := newStore(t)

	require.NoError(t, s.Signup(ctx, "a@x.com", "p1"))

	raw, ok, err := backing.Get(ctx, UsersKey)
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `{"a@x.com":"p1"}`, string(raw))

	_, loggedIn, err := s.CurrentIdentity(ctx)
	require.NoError(t, err)
	assert.False(t, loggedIn, "signup must not log the user in")
}

func TestSignup_DuplicateLeavesTableUnchanged(t *testing.T) {
	ctx := context.Background()
	s, backing := newStore(t)

	require.NoError(t, s.Signup(ctx, "a@x.com", "p1"))
	before, _, _ := backing.Get(ctx, UsersKey)

	err := s.Signup(ctx, "a@x.com", "other")
	require.ErrorIs(t, err, ErrDuplicateIdentity)

	after, _, _ := backing.Get(ctx, UsersKey)
	assert.Equal(t, string(before), string(after))
}

func TestSignup_RequiresFields(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t)

	assert.ErrorIs(t, s.Signup(ctx, "", "p1"), ErrMissingField)
	assert.ErrorIs(t, s.Signup(ctx, "  ", "p1"), ErrMissingField)
	assert.ErrorIs(t, s.Signup(ctx, "a@x.com", ""), ErrMissingField)
}

func TestSignup_StoresIdentityVerbatim(t *testing.T) {
	ctx := context.Background()
	s, backing := newStore(t)

	require.NoError(t, s.Signup(ctx, "b@x.com ", "p1"))

	raw, _, err := backing.Get(ctx, UsersKey)
	require.NoError(t, err)
	assert.JSONEq(t, `{"b@x.com ":"p1"}`, string(raw))

	_, err = s.Login(ctx, "b@x.com", "p1")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	user, err := s.Login(ctx, "b@x.com ", "p1")
	require.NoError(t, err)
	assert.Equal(t, "b@x.com ", user.Email)

	ok, err := s.Registered(ctx, "b@x.com")
	require.NoError(t, err)
	assert.False(t, ok)
}

// =============================================================================
// LOGIN / LOGOUT
// =============================================================================

func TestLogin_SetsCurrentIdentity(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t)
	require.NoError(t, s.Signup(ctx, "a@x.com", "p1"))

	user, err := s.Login(ctx, "a@x.com", "p1")
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", user.Email)

	current, ok, err := s.CurrentIdentity(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "a@x.com", current.Email)
}

func TestLogin_FailureLeavesCurrentIdentityUnchanged(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t)
	require.NoError(t, s.Signup(ctx, "a@x.com", "p1"))
	require.NoError(t, s.Signup(ctx, "b@x.com", "p2"))
	_, err := s.Login(ctx, "a@x.com", "p1")
	require.NoError(t, err)

	cases := []struct{ identity, secret string }{
		{"a@x.com", "wrong"},
		{"b@x.com", "p1"},
		{"nobody@x.com", "p1"},
		{" a@x.com", "p1"},
		{"a@x.com\t", "p1"},
		{"A@x.com", "p1"},
		{"a@x.com", ""},
		{"", ""},
	}
	for _, c := range cases {
		_, err := s.Login(ctx, c.identity, c.secret)
		assert.ErrorIs(t, err, ErrInvalidCredentials, "pair %q/%q", c.identity, c.secret)

		current, ok, err := s.CurrentIdentity(ctx)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "a@x.com", current.Email)
	}
}

func TestLogout_Idempotent(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t)
	require.NoError(t, s.Signup(ctx, "a@x.com", "p1"))
	_, err := s.Login(ctx, "a@x.com", "p1")
	require.NoError(t, err)

	require.NoError(t, s.Logout(ctx))
	require.NoError(t, s.Logout(ctx))

	_, ok, err := s.CurrentIdentity(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCurrentIdentity_SurvivesRestart(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	backing, err := kv.OpenSQLite(filepath.Join(dir, "gemchat.db"))
	require.NoError(t, err)
	s := NewStore(backing)
	require.NoError(t, s.Signup(ctx, "a@x.com", "p1"))
	_, err = s.Login(ctx, "a@x.com", "p1")
	require.NoError(t, err)
	require.NoError(t, backing.Close())

	reopened, err := kv.OpenSQLite(filepath.Join(dir, "gemchat.db"))
	require.NoError(t, err)
	defer reopened.Close()

	current, ok, err := NewStore(reopened).CurrentIdentity(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "a@x.com", current.Email)
}

func TestCurrentIdentity_CorruptMarkerIsLoggedOut(t *testing.T) {
	ctx := context.Background()
	s, backing := newStore(t)
	require.NoError(t, backing.Set(ctx, CurrentUserKey, []byte("{broken")))

	_, ok, err := s.CurrentIdentity(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRegistered(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t)
	require.NoError(t, s.Signup(ctx, "a@x.com", "p1"))

	ok, err := s.Registered(ctx, "a@x.com")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.Registered(ctx, "b@x.com")
	require.NoError(t, err)
	assert.False(t, ok)
}

// =============================================================================
// LATENCY AND CONCURRENCY
// =============================================================================

func TestWithLatency_RespectsContext(t *testing.T) {
	s := NewStore(kv.NewMemoryStore(), WithLatency(time.Hour))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := s.Signup(ctx, "a@x.com", "p1")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	ok, err := s.Registered(context.Background(), "a@x.com")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSignup_ConcurrentDistinctIdentities(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			email := string(rune('a'+i)) + "@x.com"
			assert.NoError(t, s.Signup(ctx, email, "p"))
		}(i)
	}
	wg.Wait()

	for i := 0; i < 20; i++ {
		ok, err := s.Registered(ctx, string(rune('a'+i))+"@x.com")
		require.NoError(t, err)
		assert.True(t, ok)
	}
}
