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

package user

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode"

	"github.com/google/uuid"

	"github.com/jeremyhahn/go-passkey/pkg/passkey"
	"github.com/jeremyhahn/go-passkey/pkg/storage"
)

const maxUsernameLength = 128

// Store persists users in a storage.Backend. Each user is one JSON document
// plus a username index entry. Updates to a user are serialized by a per-user
// lock held in this process.
type Store struct {
	backend storage.Backend
	locks   *keyedMutex
	nameMu  sync.Mutex
	closed  atomic.Bool
	now     func() time.Time
}

var _ passkey.UserStore = (*Store)(nil)

// NewStore creates a user store over backend.
func NewStore(backend storage.Backend) (*Store, error) {
	if backend == nil {
		return nil, fmt.Errorf("backend cannot be nil")
	}
	return &Store{
		backend: backend,
		locks:   newKeyedMutex(),
		now:     func() time.Time { return time.Now().UTC() },
	}, nil
}

// Create creates a new user. An empty role defaults to RoleUser.
func (s *Store) Create(ctx context.Context, username, displayName string, role Role) (*User, error) {
	if s.closed.Load() {
		return nil, ErrStorageClosed
	}

	username, err := NormalizeUsername(username)
	if err != nil {
		return nil, err
	}
	if role == "" {
		role = RoleUser
	}
	if !IsValidRole(role) {
		return nil, ErrInvalidRole
	}

	s.nameMu.Lock()
	defer s.nameMu.Unlock()

	exists, err := s.backend.Exists(ctx, storage.UsernamePath(username))
	if err != nil {
		return nil, fmt.Errorf("failed to check username: %w", err)
	}
	if exists {
		return nil, ErrUserAlreadyExists
	}

	now := s.now()
	user := &User{
		ID:          uuid.NewString(),
		Username:    username,
		DisplayName: displayName,
		Role:        role,
		Enabled:     true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.save(ctx, user); err != nil {
		return nil, err
	}
	if err := s.backend.Put(ctx, storage.UsernamePath(username), []byte(user.ID), storage.DefaultOptions()); err != nil {
		_ = s.backend.Delete(ctx, storage.UserPath(user.ID))
		return nil, fmt.Errorf("failed to save name index: %w", err)
	}
	return user, nil
}

// Get retrieves a user by ID.
func (s *Store) Get(ctx context.Context, id string) (*User, error) {
	if s.closed.Load() {
		return nil, ErrStorageClosed
	}
	return s.load(ctx, id)
}

// GetByUsername retrieves a user by username. The lookup is case-insensitive.
func (s *Store) GetByUsername(ctx context.Context, username string) (*User, error) {
	if s.closed.Load() {
		return nil, ErrStorageClosed
	}

	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" {
		return nil, ErrUserNotFound
	}

	id, err := s.backend.Get(ctx, storage.UsernamePath(username))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user by name: %w", err)
	}
	return s.load(ctx, string(id))
}

// List returns all users ordered by ID. Records that cannot be decoded are
// skipped.
func (s *Store) List(ctx context.Context) ([]*User, error) {
	if s.closed.Load() {
		return nil, ErrStorageClosed
	}

	ids, err := storage.ListUserIDs(ctx, s.backend)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}

	users := make([]*User, 0, len(ids))
	for _, id := range ids {
		user, err := s.load(ctx, id)
		if err != nil {
			if errors.Is(err, ErrUserNotFound) || errors.Is(err, errCorruptRecord) {
				continue
			}
			return nil, err
		}
		users = append(users, user)
	}
	return users, nil
}

// Count returns the number of users.
func (s *Store) Count(ctx context.Context) (int, error) {
	if s.closed.Load() {
		return 0, ErrStorageClosed
	}
	ids, err := storage.ListUserIDs(ctx, s.backend)
	if err != nil {
		return 0, fmt.Errorf("failed to count users: %w", err)
	}
	return len(ids), nil
}

// Delete removes a user and the username index. The last admin cannot be
// deleted.
func (s *Store) Delete(ctx context.Context, id string) error {
	if s.closed.Load() {
		return ErrStorageClosed
	}

	unlock := s.locks.Lock(id)
	defer unlock()

	user, err := s.load(ctx, id)
	if err != nil {
		return err
	}

	if user.IsAdmin() {
		admins, err := s.countAdmins(ctx)
		if err != nil {
			return err
		}
		if admins <= 1 {
			return ErrLastAdmin
		}
	}

	s.nameMu.Lock()
	defer s.nameMu.Unlock()

	if err := s.backend.Delete(ctx, storage.UserPath(id)); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	if err := s.backend.Delete(ctx, storage.UsernamePath(user.Username)); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("failed to delete name index: %w", err)
	}
	return nil
}

// GetUserByID implements passkey.UserStore.
func (s *Store) GetUserByID(ctx context.Context, id string) (*passkey.User, error) {
	user, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return user.Passkey(), nil
}

// GetUserByUsername implements passkey.UserStore.
func (s *Store) GetUserByUsername(ctx context.Context, username string) (*passkey.User, error) {
	user, err := s.GetByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	return user.Passkey(), nil
}

// UpdateUser implements passkey.UserStore. The read, the challenge guard and
// the write happen under the user's lock.
func (s *Store) UpdateUser(ctx context.Context, id string, update passkey.UserUpdate) error {
	if s.closed.Load() {
		return ErrStorageClosed
	}

	unlock := s.locks.Lock(id)
	defer unlock()

	user, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if err := user.apply(update); err != nil {
		return err
	}
	user.UpdatedAt = s.now()
	return s.save(ctx, user)
}

// ListUsers implements passkey.UserStore.
func (s *Store) ListUsers(ctx context.Context) ([]*passkey.User, error) {
	users, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*passkey.User, len(users))
	for i, u := range users {
		out[i] = u.Passkey()
	}
	return out, nil
}

// Close releases the store. The backend is closed too.
func (s *Store) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	return s.backend.Close()
}

var errCorruptRecord = errors.New("corrupt user record")

func (s *Store) load(ctx context.Context, id string) (*User, error) {
	if id == "" {
		return nil, ErrUserNotFound
	}

	data, err := s.backend.Get(ctx, storage.UserPath(id))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	var user User
	if err := json.Unmarshal(data, &user); err != nil {
		return nil, fmt.Errorf("%w %s: %v", errCorruptRecord, id, err)
	}
	return &user, nil
}

func (s *Store) save(ctx context.Context, user *User) error {
	data, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("failed to marshal user: %w", err)
	}
	if err := s.backend.Put(ctx, storage.UserPath(user.ID), data, storage.DefaultOptions()); err != nil {
		return fmt.Errorf("failed to save user: %w", err)
	}
	return nil
}

func (s *Store) countAdmins(ctx context.Context) (int, error) {
	users, err := s.List(ctx)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, u := range users {
		if u.IsAdmin() {
			count++
		}
	}
	return count, nil
}

// NormalizeUsername lower-cases and trims username and rejects values that
// cannot be stored.
func NormalizeUsername(username string) (string, error) {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || username == "." || username == ".." || len(username) > maxUsernameLength {
		return "", ErrInvalidUsername
	}
	for _, r := range username {
		if unicode.IsControl(r) || unicode.IsSpace(r) {
			return "", ErrInvalidUsername
		}
	}
	return username, nil
}
