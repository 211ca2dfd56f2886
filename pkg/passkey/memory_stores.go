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
	"strings"
	"sync"
	"time"
)

// MemoryUserStore is an in-memory UserStore suitable for testing and
// single-node deployments.
type MemoryUserStore struct {
	mu      sync.RWMutex
	byID    map[string]*User
	byEmail map[string]*User
}

// NewMemoryUserStore creates a new in-memory user store.
func NewMemoryUserStore() *MemoryUserStore {
	return &MemoryUserStore{
		byID:    make(map[string]*User),
		byEmail: make(map[string]*User),
	}
}

// Create stores a new user.
func (s *MemoryUserStore) Create(_ context.Context, user *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := strings.ToLower(user.Email)
	if _, exists := s.byEmail[key]; exists {
		return ErrUserAlreadyExists
	}
	clone := *user
	s.byID[user.ID] = &clone
	s.byEmail[key] = &clone
	return nil
}

// GetByEmail retrieves a user by email address.
func (s *MemoryUserStore) GetByEmail(_ context.Context, email string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.byEmail[strings.ToLower(email)]
	if !ok {
		return nil, ErrUserNotFound
	}
	clone := *user
	return &clone, nil
}

// GetByID retrieves a user by identifier.
func (s *MemoryUserStore) GetByID(_ context.Context, id string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.byID[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	clone := *user
	return &clone, nil
}

// Count returns the number of stored users.
func (s *MemoryUserStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

// Clear removes all stored users.
func (s *MemoryUserStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID = make(map[string]*User)
	s.byEmail = make(map[string]*User)
}

// MemoryCredentialStore is an in-memory CredentialStore suitable for
// testing and single-node deployments.
type MemoryCredentialStore struct {
	mu    sync.RWMutex
	creds map[string]*Credential // keyed by string(credential ID)
	order []string               // insertion order for stable listings
}

// NewMemoryCredentialStore creates a new in-memory credential store.
func NewMemoryCredentialStore() *MemoryCredentialStore {
	return &MemoryCredentialStore{
		creds: make(map[string]*Credential),
	}
}

// Create stores a new credential.
func (s *MemoryCredentialStore) Create(_ context.Context, cred *Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := string(cred.ID)
	if _, exists := s.creds[key]; exists {
		return ErrCredentialAlreadyExists
	}
	clone := *cred
	s.creds[key] = &clone
	s.order = append(s.order, key)
	return nil
}

// GetByCredentialID retrieves a credential by its identifier.
func (s *MemoryCredentialStore) GetByCredentialID(_ context.Context, credentialID []byte) (*Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cred, ok := s.creds[string(credentialID)]
	if !ok {
		return nil, ErrCredentialNotFound
	}
	clone := *cred
	return &clone, nil
}

// ListByUserID returns all credentials registered to a user, in
// registration order.
func (s *MemoryCredentialStore) ListByUserID(_ context.Context, userID string) ([]*Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var creds []*Credential
	for _, key := range s.order {
		if cred, ok := s.creds[key]; ok && cred.UserID == userID {
			clone := *cred
			creds = append(creds, &clone)
		}
	}
	return creds, nil
}

// UpdateSignCount conditionally advances a credential's signature
// counter and last-used timestamp.
func (s *MemoryCredentialStore) UpdateSignCount(_ context.Context, credentialID []byte, signCount uint32, usedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cred, ok := s.creds[string(credentialID)]
	if !ok {
		return ErrCredentialNotFound
	}
	if signCount > cred.SignCount || signCount == 0 {
		cred.SignCount = signCount
		cred.LastUsedAt = usedAt
	}
	return nil
}

// Count returns the number of stored credentials.
func (s *MemoryCredentialStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.creds)
}

// Clear removes all stored credentials.
func (s *MemoryCredentialStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds = make(map[string]*Credential)
	s.order = nil
}

// MemoryChallengeStore is an in-memory ChallengeStore suitable for
// testing and single-node deployments.
type MemoryChallengeStore struct {
	mu         sync.Mutex
	challenges map[string]*Challenge
	ttl        time.Duration
}

// NewMemoryChallengeStore creates a new in-memory challenge store.
// Challenges older than ttl are treated as absent and removed by
// DeleteExpired.
func NewMemoryChallengeStore(ttl time.Duration) *MemoryChallengeStore {
	return &MemoryChallengeStore{
		challenges: make(map[string]*Challenge),
		ttl:        ttl,
	}
}

// Create stores a new challenge.
func (s *MemoryChallengeStore) Create(_ context.Context, challenge *Challenge) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	clone := *challenge
	s.challenges[challenge.ID] = &clone
	return nil
}

// Consume atomically retrieves and deletes a challenge. Expired
// challenges are deleted and reported as not found.
func (s *MemoryChallengeStore) Consume(_ context.Context, id string) (*Challenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	challenge, ok := s.challenges[id]
	if !ok {
		return nil, ErrChallengeNotFound
	}
	delete(s.challenges, id)

	if time.Since(challenge.CreatedAt) > s.ttl {
		return nil, ErrChallengeNotFound
	}
	clone := *challenge
	return &clone, nil
}

// DeleteExpired removes challenges past their TTL.
func (s *MemoryChallengeStore) DeleteExpired(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-s.ttl)
	removed := 0
	for id, challenge := range s.challenges {
		if challenge.CreatedAt.Before(cutoff) {
			delete(s.challenges, id)
			removed++
		}
	}
	return removed, nil
}

// Count returns the number of pending challenges.
func (s *MemoryChallengeStore) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.challenges)
}

// Clear removes all pending challenges.
func (s *MemoryChallengeStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.challenges = make(map[string]*Challenge)
}
