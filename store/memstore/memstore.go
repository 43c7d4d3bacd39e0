// Package memstore is an in-process [lovelace.UserProvider] for development and tests.
// Records are copied in and out so callers never share slices with the store.
package memstore

import (
	"context"
	"strings"
	"sync"

	"github.com/aloneinabyss/lovelace"
)

// Store keeps user records in a map keyed by id. It is safe for concurrent use.
type Store struct {
	mu    sync.RWMutex
	users map[string]lovelace.UserRecord
}

// New returns an empty store.
func New() *Store {
	return &Store{users: make(map[string]lovelace.UserRecord)}
}

// GetUserByID returns the account with id or [lovelace.ErrUserNotFound].
func (s *Store) GetUserByID(_ context.Context, id string) (lovelace.UserRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return lovelace.UserRecord{}, lovelace.ErrUserNotFound
	}
	return clone(u), nil
}

// GetUserByUsername matches username exactly.
func (s *Store) GetUserByUsername(_ context.Context, username string) (lovelace.UserRecord, error) {
	return s.find(func(u lovelace.UserRecord) bool { return u.Username == username })
}

// GetUserByEmail matches email without regard to case.
func (s *Store) GetUserByEmail(_ context.Context, email string) (lovelace.UserRecord, error) {
	return s.find(func(u lovelace.UserRecord) bool { return strings.EqualFold(u.Email, email) })
}

// GetUserByVerificationToken looks up an account by the digest of its pending verification token.
func (s *Store) GetUserByVerificationToken(_ context.Context, tokenHash string) (lovelace.UserRecord, error) {
	if tokenHash == "" {
		return lovelace.UserRecord{}, lovelace.ErrUserNotFound
	}
	return s.find(func(u lovelace.UserRecord) bool { return u.VerificationTokenHash == tokenHash })
}

// GetUserByResetToken looks up an account by the digest of its pending reset token.
func (s *Store) GetUserByResetToken(_ context.Context, tokenHash string) (lovelace.UserRecord, error) {
	if tokenHash == "" {
		return lovelace.UserRecord{}, lovelace.ErrUserNotFound
	}
	return s.find(func(u lovelace.UserRecord) bool { return u.ResetTokenHash == tokenHash })
}

// CreateUser inserts user, failing with [lovelace.ErrUserExists] when a unique field is taken.
func (s *Store) CreateUser(_ context.Context, user lovelace.UserRecord) (lovelace.UserRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[user.ID]; ok {
		return lovelace.UserRecord{}, lovelace.ErrUserExists
	}
	if s.conflictLocked(user) {
		return lovelace.UserRecord{}, lovelace.ErrUserExists
	}
	s.users[user.ID] = clone(user)
	return clone(user), nil
}

// SaveUser replaces the stored record with the same id.
func (s *Store) SaveUser(_ context.Context, user lovelace.UserRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[user.ID]; !ok {
		return lovelace.ErrUserNotFound
	}
	if s.conflictLocked(user) {
		return lovelace.ErrUserExists
	}
	s.users[user.ID] = clone(user)
	return nil
}

// Len reports the number of stored accounts.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.users)
}

func (s *Store) find(match func(lovelace.UserRecord) bool) (lovelace.UserRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		if match(u) {
			return clone(u), nil
		}
	}
	return lovelace.UserRecord{}, lovelace.ErrUserNotFound
}

// conflictLocked reports whether another record holds user's username or email.
func (s *Store) conflictLocked(user lovelace.UserRecord) bool {
	for id, u := range s.users {
		if id == user.ID {
			continue
		}
		if u.Username == user.Username || strings.EqualFold(u.Email, user.Email) {
			return true
		}
	}
	return false
}

func clone(u lovelace.UserRecord) lovelace.UserRecord {
	u.Roles = append([]string(nil), u.Roles...)
	return u
}
