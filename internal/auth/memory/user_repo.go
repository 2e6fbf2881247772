// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Pronoia Contributors

// Package memory provides an in-process UserRepository for development and tests.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/samber/oops"

	"github.com/pronoia/pronoia/internal/auth"
)

// UserRepository implements auth.UserRepository in memory.
// Emails are unique under the same normalization the postgres index applies.
type UserRepository struct {
	mu     sync.RWMutex
	byKey  map[string]auth.User
	nextID int64
	now    func() time.Time
}

// NewUserRepository creates an empty UserRepository.
func NewUserRepository() *UserRepository {
	return &UserRepository{
		byKey: make(map[string]auth.User),
		now:   time.Now,
	}
}

// GetByEmail retrieves a user by email (case-insensitive).
func (r *UserRepository) GetByEmail(_ context.Context, email string) (*auth.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, ok := r.byKey[auth.NormalizeEmail(email)]
	if !ok {
		return nil, oops.Code("USER_NOT_FOUND").
			With("email", email).
			Wrap(auth.ErrNotFound)
	}
	return &user, nil
}

// ExistsByEmail reports whether a user with the email exists.
func (r *UserRepository) ExistsByEmail(_ context.Context, email string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.byKey[auth.NormalizeEmail(email)]
	return ok, nil
}

// Create stores a new user, assigning its ID and CreatedAt.
func (r *UserRepository) Create(_ context.Context, user *auth.User) error {
	key := auth.NormalizeEmail(user.Email)

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byKey[key]; ok {
		return oops.Code("USER_EMAIL_TAKEN").
			With("email", user.Email).
			Wrap(auth.ErrEmailTaken)
	}

	r.nextID++
	user.ID = r.nextID
	user.CreatedAt = r.now().UTC()
	r.byKey[key] = *user
	return nil
}

// Compile-time interface check.
var _ auth.UserRepository = (*UserRepository)(nil)
