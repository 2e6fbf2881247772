// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Pronoia Contributors

// Package auth provides registration, login, and bearer token validation for Pronoia.
//
// # Domain Types
//
// User is the stored record and is the only type that carries a password hash.
// Profile is the outward shape returned to callers and never includes the hash.
// New records should be built with NewUser, which normalizes the email and applies
// the account defaults; the UserRepository assigns ID and CreatedAt on Create.
//
// # Services
//
//   - Service - Register, Login, ValidateToken
//   - Argon2idHasher - PasswordHasher backed by argon2id (verifies legacy bcrypt hashes)
//   - JWTService - TokenService issuing HS256 tokens whose subject is the user's email
//
// Services are created with constructors that take their configuration explicitly.
// Nothing in this package reads global state.
package auth
