// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-passkey.
//
// go-passkey is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package passkey

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryUserStore(t *testing.T) {
	store := NewMemoryUserStore()
	ctx := context.Background()

	user := &User{ID: "u1", Email: "alice@example.com", Name: "Alice", CreatedAt: time.Now()}
	require.NoError(t, store.Create(ctx, user))
	assert.Equal(t, 1, store.Count())

	got, err := store.GetByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, "u1", got.ID)

	// Email lookup is case insensitive.
	got, err = store.GetByEmail(ctx, "Alice@Example.COM")
	require.NoError(t, err)
	assert.Equal(t, "u1", got.ID)

	got, err = store.GetByID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", got.Email)

	err = store.Create(ctx, &User{ID: "u2", Email: "ALICE@example.com"})
	assert.ErrorIs(t, err, ErrUserAlreadyExists)

	_, err = store.GetByEmail(ctx, "bob@example.com")
	assert.ErrorIs(t, err, ErrUserNotFound)

	_, err = store.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestMemoryCredentialStore(t *testing.T) {
	store := NewMemoryCredentialStore()
	ctx := context.Background()

	cred := &Credential{ID: []byte("cred-1"), UserID: "u1", PublicKey: []byte("key"), SignCount: 0}
	require.NoError(t, store.Create(ctx, cred))

	err := store.Create(ctx, &Credential{ID: []byte("cred-1"), UserID: "u2"})
	assert.ErrorIs(t, err, ErrCredentialAlreadyExists)

	got, err := store.GetByCredentialID(ctx, []byte("cred-1"))
	require.NoError(t, err)
	assert.Equal(t, "u1", got.UserID)

	_, err = store.GetByCredentialID(ctx, []byte("missing"))
	assert.ErrorIs(t, err, ErrCredentialNotFound)

	require.NoError(t, store.Create(ctx, &Credential{ID: []byte("cred-2"), UserID: "u1"}))
	require.NoError(t, store.Create(ctx, &Credential{ID: []byte("cred-3"), UserID: "u2"}))

	creds, err := store.ListByUserID(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, creds, 2)
	assert.Equal(t, []byte("cred-1"), creds[0].ID)
	assert.Equal(t, []byte("cred-2"), creds[1].ID)

	creds, err = store.ListByUserID(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, creds)
}

func TestMemoryCredentialStore_UpdateSignCount(t *testing.T) {
	store := NewMemoryCredentialStore()
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, &Credential{ID: []byte("cred-1"), UserID: "u1", SignCount: 5}))

	now := time.Now()
	require.NoError(t, store.UpdateSignCount(ctx, []byte("cred-1"), 6, now))

	got, err := store.GetByCredentialID(ctx, []byte("cred-1"))
	require.NoError(t, err)
	assert.Equal(t, uint32(6), got.SignCount)
	assert.Equal(t, now, got.LastUsedAt)

	// A stale counter is a conditional no-op, not an error.
	require.NoError(t, store.UpdateSignCount(ctx, []byte("cred-1"), 3, time.Now()))
	got, err = store.GetByCredentialID(ctx, []byte("cred-1"))
	require.NoError(t, err)
	assert.Equal(t, uint32(6), got.SignCount)

	err = store.UpdateSignCount(ctx, []byte("missing"), 1, time.Now())
	assert.ErrorIs(t, err, ErrCredentialNotFound)
}

func TestMemoryCredentialStore_ZeroCounterUpdatesLastUsed(t *testing.T) {
	store := NewMemoryCredentialStore()
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, &Credential{ID: []byte("cred-1"), UserID: "u1", SignCount: 0}))

	// Authenticators without a counter report zero forever; the
	// last-used timestamp still advances.
	now := time.Now()
	require.NoError(t, store.UpdateSignCount(ctx, []byte("cred-1"), 0, now))

	got, err := store.GetByCredentialID(ctx, []byte("cred-1"))
	require.NoError(t, err)
	assert.Equal(t, uint32(0), got.SignCount)
	assert.Equal(t, now, got.LastUsedAt)
}

func TestMemoryChallengeStore_Consume(t *testing.T) {
	store := NewMemoryChallengeStore(5 * time.Minute)
	ctx := context.Background()

	challenge := &Challenge{
		ID:        "ch-1",
		Value:     []byte("random"),
		Email:     "alice@example.com",
		Kind:      CeremonyRegistration,
		CreatedAt: time.Now(),
	}
	require.NoError(t, store.Create(ctx, challenge))
	assert.Equal(t, 1, store.Count())

	got, err := store.Consume(ctx, "ch-1")
	require.NoError(t, err)
	assert.Equal(t, challenge.Value, got.Value)
	assert.Equal(t, 0, store.Count())

	// Consuming again fails: single use.
	_, err = store.Consume(ctx, "ch-1")
	assert.ErrorIs(t, err, ErrChallengeNotFound)

	_, err = store.Consume(ctx, "never-existed")
	assert.ErrorIs(t, err, ErrChallengeNotFound)
}

func TestMemoryChallengeStore_Expiry(t *testing.T) {
	store := NewMemoryChallengeStore(time.Nanosecond)
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, &Challenge{
		ID:        "ch-1",
		Value:     []byte("random"),
		CreatedAt: time.Now().Add(-time.Second),
	}))

	_, err := store.Consume(ctx, "ch-1")
	assert.ErrorIs(t, err, ErrChallengeNotFound)
	assert.Equal(t, 0, store.Count())
}

func TestMemoryChallengeStore_DeleteExpired(t *testing.T) {
	store := NewMemoryChallengeStore(time.Minute)
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, &Challenge{ID: "old", CreatedAt: time.Now().Add(-2 * time.Minute)}))
	require.NoError(t, store.Create(ctx, &Challenge{ID: "fresh", CreatedAt: time.Now()}))

	removed, err := store.DeleteExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, store.Count())

	_, err = store.Consume(ctx, "fresh")
	assert.NoError(t, err)
}

func TestMemoryChallengeStore_ConcurrentConsume(t *testing.T) {
	store := NewMemoryChallengeStore(time.Minute)
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, &Challenge{ID: "ch-1", CreatedAt: time.Now()}))

	const workers = 16
	var wg sync.WaitGroup
	successes := make(chan struct{}, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.Consume(ctx, "ch-1"); err == nil {
				successes <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(successes)

	assert.Len(t, successes, 1)
}
