// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Pronoia Contributors

package auth

import "errors"

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrEmailTaken is returned by a UserRepository when the email is already registered.
// Stores must report their own uniqueness violations with it; the service-level
// existence check cannot catch two registrations racing each other.
var ErrEmailTaken = errors.New("email already registered")

// ErrInvalidCredentials is returned by Login for an unknown email or a wrong password.
// Both causes share this error so callers cannot tell them apart.
var ErrInvalidCredentials = errors.New("invalid email or password")

// ErrTokenInvalid is returned when a token fails signature, expiry, or format checks.
var ErrTokenInvalid = errors.New("invalid or expired token")

// ErrTokenUserNotFound is returned when a valid token names a user that no longer exists.
var ErrTokenUserNotFound = errors.New("user not found")

// IsTokenError reports whether err is one of the token validation failures.
func IsTokenError(err error) bool {
	return errors.Is(err, ErrTokenInvalid) || errors.Is(err, ErrTokenUserNotFound)
}
