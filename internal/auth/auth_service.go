// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Pronoia Contributors

package auth

import (
	"context"
	"crypto/rand"
	"errors"
	"log/slog"
	"strings"

	"github.com/samber/oops"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("pronoia/auth")

// Failure messages returned in RegisterResult.
const (
	MsgEmailTaken       = "a user with this email already exists"
	MsgPasswordRequired = "password is required"
	MsgNameRequired     = "name and surname are required"
)

// RegisterInput carries the registration form.
type RegisterInput struct {
	Email    string
	Name     string
	Surname  string
	Password string
}

// RegisterResult is the outcome of Register. A failed registration is an
// expected result, not an error.
type RegisterResult struct {
	Result  bool   `json:"result"`
	Message string `json:"message,omitempty"`
}

// LoginResult carries the issued token and the authenticated user's profile.
type LoginResult struct {
	Token string  `json:"token"`
	User  Profile `json:"user"`
}

// Service provides authentication operations.
type Service struct {
	users     UserRepository
	hasher    PasswordHasher
	tokens    TokenService
	logger    *slog.Logger
	dummyHash string
}

// NewAuthService creates a new Service using the default logger.
func NewAuthService(users UserRepository, hasher PasswordHasher, tokens TokenService) (*Service, error) {
	return NewAuthServiceWithLogger(users, hasher, tokens, slog.Default())
}

// NewAuthServiceWithLogger creates a new Service that logs through logger.
func NewAuthServiceWithLogger(users UserRepository, hasher PasswordHasher, tokens TokenService, logger *slog.Logger) (*Service, error) {
	if users == nil {
		return nil, oops.Code("AUTH_INVALID_CONFIG").Errorf("users repository is required")
	}
	if hasher == nil {
		return nil, oops.Code("AUTH_INVALID_CONFIG").Errorf("password hasher is required")
	}
	if tokens == nil {
		return nil, oops.Code("AUTH_INVALID_CONFIG").Errorf("token service is required")
	}
	if logger == nil {
		return nil, oops.Code("AUTH_INVALID_CONFIG").Errorf("logger is required")
	}

	// Verified when the email is unknown so that a missing account costs the
	// same as a wrong password under the hasher's current parameters.
	dummyHash, err := hasher.Hash(rand.Text())
	if err != nil {
		return nil, oops.Code("AUTH_INVALID_CONFIG").
			With("operation", "hash dummy password").
			Wrap(err)
	}

	return &Service{
		users:     users,
		hasher:    hasher,
		tokens:    tokens,
		logger:    logger,
		dummyHash: dummyHash,
	}, nil
}

// Register creates a new account.
// Validation failures and duplicate emails are reported in the result; the
// returned error is reserved for infrastructure failures.
func (s *Service) Register(ctx context.Context, in RegisterInput) (result RegisterResult, err error) {
	ctx, span := tracer.Start(ctx, "auth.register")
	defer func() {
		span.SetAttributes(attribute.Bool("auth.registered", result.Result))
		endSpan(span, err)
	}()

	email := NormalizeEmail(in.Email)
	if err := ValidateEmail(email); err != nil {
		return failure(err.Error()), nil
	}
	if in.Password == "" {
		return failure(MsgPasswordRequired), nil
	}
	if strings.TrimSpace(in.Name) == "" || strings.TrimSpace(in.Surname) == "" {
		return failure(MsgNameRequired), nil
	}

	exists, err := s.users.ExistsByEmail(ctx, email)
	if err != nil {
		return RegisterResult{}, oops.Code("AUTH_REGISTER_FAILED").
			With("operation", "check email").
			Wrap(err)
	}
	if exists {
		s.logger.InfoContext(ctx, "registration rejected", "reason", "email taken")
		return failure(MsgEmailTaken), nil
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return RegisterResult{}, oops.Code("AUTH_REGISTER_FAILED").
			With("operation", "hash password").
			Wrap(err)
	}

	user, err := NewUser(email, in.Name, in.Surname, hash)
	if err != nil {
		return RegisterResult{}, oops.Code("AUTH_REGISTER_FAILED").
			With("operation", "build user").
			Wrap(err)
	}

	if err := s.users.Create(ctx, user); err != nil {
		// Lost a race with a concurrent registration for the same email.
		if errors.Is(err, ErrEmailTaken) {
			s.logger.InfoContext(ctx, "registration rejected", "reason", "email taken at insert")
			return failure(MsgEmailTaken), nil
		}
		return RegisterResult{}, oops.Code("AUTH_REGISTER_FAILED").
			With("operation", "create user").
			Wrap(err)
	}

	s.logger.InfoContext(ctx, "user registered", "user_id", user.ID)
	return RegisterResult{Result: true}, nil
}

// Login authenticates a user and issues a token bound to their email.
// Unknown emails and wrong passwords fail identically with ErrInvalidCredentials.
func (s *Service) Login(ctx context.Context, email, password string) (result *LoginResult, err error) {
	ctx, span := tracer.Start(ctx, "auth.login")
	defer func() { endSpan(span, err) }()

	email = NormalizeEmail(email)

	user, lookupErr := s.users.GetByEmail(ctx, email)

	var targetHash string
	var userExists bool

	if lookupErr != nil {
		if !errors.Is(lookupErr, ErrNotFound) {
			return nil, oops.Code("AUTH_LOGIN_FAILED").
				With("operation", "get user by email").
				Wrap(lookupErr)
		}
		targetHash = s.dummyHash
	} else {
		targetHash = user.PasswordHash
		userExists = true
	}

	// Always verify, even for unknown users.
	valid, verifyErr := s.hasher.Verify(password, targetHash)
	if verifyErr != nil {
		if !userExists {
			return nil, invalidCredentials()
		}
		s.logger.WarnContext(ctx, "stored password hash is unreadable",
			"user_id", user.ID,
			"error", verifyErr)
		return nil, oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "verify password").
			Wrap(verifyErr)
	}

	if !userExists || !valid {
		return nil, invalidCredentials()
	}

	token, err := s.tokens.Issue(user.Email)
	if err != nil {
		return nil, oops.Code("AUTH_TOKEN_ISSUE_FAILED").
			With("operation", "issue token").
			Wrap(err)
	}

	return &LoginResult{Token: token, User: user.Profile()}, nil
}

// ValidateToken checks a bearer token and returns the profile of its subject.
func (s *Service) ValidateToken(ctx context.Context, token string) (profile *Profile, err error) {
	ctx, span := tracer.Start(ctx, "auth.validate_token")
	defer func() { endSpan(span, err) }()

	email, err := s.tokens.Parse(token)
	if err != nil {
		s.logger.DebugContext(ctx, "token rejected", "error", err)
		return nil, oops.Code("AUTH_TOKEN_INVALID").Wrap(ErrTokenInvalid)
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, oops.Code("AUTH_TOKEN_USER_NOT_FOUND").Wrap(ErrTokenUserNotFound)
		}
		return nil, oops.Code("AUTH_VALIDATE_FAILED").
			With("operation", "get user by email").
			Wrap(err)
	}

	p := user.Profile()
	return &p, nil
}

// endSpan records err, if any, and ends the span. Rejected credentials and
// tokens are expected outcomes and still mark the span as failed.
func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func invalidCredentials() error {
	return oops.Code("AUTH_INVALID_CREDENTIALS").Wrap(ErrInvalidCredentials)
}

func failure(msg string) RegisterResult {
	return RegisterResult{Result: false, Message: msg}
}
