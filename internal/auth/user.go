// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Pronoia Contributors

package auth

import (
	"context"
	"strings"
	"time"

	"github.com/samber/oops"
)

// MaxEmailLength is the longest address accepted, per RFC 5321.
const MaxEmailLength = 254

// User is the stored account record.
type User struct {
	ID           int64
	Email        string
	Name         string
	Surname      string
	PasswordHash string `json:"-"`
	IsPrivate    bool
	IsActive     bool
	CreatedAt    time.Time
}

// Profile is the public view of a User.
type Profile struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Surname   string    `json:"surname"`
	IsPrivate bool      `json:"isPrivate"`
	IsActive  bool      `json:"isActive"`
	CreatedAt time.Time `json:"createdAt"`
}

// NewUser creates an unsaved User with the default account flags.
// ID and CreatedAt are left zero for the repository to assign.
func NewUser(email, name, surname, passwordHash string) (*User, error) {
	email = NormalizeEmail(email)
	if err := ValidateEmail(email); err != nil {
		return nil, err
	}
	if passwordHash == "" {
		return nil, oops.Code("AUTH_INVALID_PASSWORD").Errorf("password hash cannot be empty")
	}
	return &User{
		Email:        email,
		Name:         strings.TrimSpace(name),
		Surname:      strings.TrimSpace(surname),
		PasswordHash: passwordHash,
		IsPrivate:    true,
		IsActive:     true,
	}, nil
}

// Profile returns the public view of the user.
func (u *User) Profile() Profile {
	return Profile{
		ID:        u.ID,
		Email:     u.Email,
		Name:      u.Name,
		Surname:   u.Surname,
		IsPrivate: u.IsPrivate,
		IsActive:  u.IsActive,
		CreatedAt: u.CreatedAt,
	}
}

// NormalizeEmail trims and lower-cases an address so lookups are case-insensitive.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidateEmail performs a shape check on an address:
// - non-empty and at most MaxEmailLength bytes
// - exactly one '@' with a non-empty local part and domain
// - no whitespace
func ValidateEmail(email string) error {
	if email == "" {
		return oops.Code("AUTH_INVALID_EMAIL").Errorf("email cannot be empty")
	}
	if len(email) > MaxEmailLength {
		return oops.Code("AUTH_INVALID_EMAIL").
			With("max", MaxEmailLength).
			Errorf("email must be at most %d characters", MaxEmailLength)
	}
	if strings.ContainsAny(email, " \t\r\n") {
		return oops.Code("AUTH_INVALID_EMAIL").Errorf("email cannot contain whitespace")
	}
	local, domain, found := strings.Cut(email, "@")
	if !found || local == "" || domain == "" || strings.Contains(domain, "@") {
		return oops.Code("AUTH_INVALID_EMAIL").Errorf("email must have the form name@domain")
	}
	return nil
}

// UserRepository manages user persistence.
type UserRepository interface {
	// GetByEmail retrieves a user by normalized email.
	// Returns ErrNotFound if no user has the given email.
	GetByEmail(ctx context.Context, email string) (*User, error)

	// ExistsByEmail reports whether a user with the given email exists.
	ExistsByEmail(ctx context.Context, email string) (bool, error)

	// Create stores a new user and fills in its ID and CreatedAt.
	// Returns an error wrapping ErrEmailTaken if the email is already registered.
	Create(ctx context.Context, user *User) error
}
