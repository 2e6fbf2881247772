// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Pronoia Contributors

package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Token configuration limits.
const (
	MinTokenSecretLength = 32
	DefaultTokenTTL      = 24 * time.Hour
	DefaultTokenIssuer   = "pronoia"
)

// TokenConfig holds the immutable signing configuration for JWTService.
type TokenConfig struct {
	Secret []byte
	Issuer string
	TTL    time.Duration
}

// Validate checks that the configuration can sign and verify tokens.
func (c TokenConfig) Validate() error {
	if len(c.Secret) < MinTokenSecretLength {
		return oops.Code("AUTH_INVALID_TOKEN_CONFIG").
			With("min", MinTokenSecretLength).
			Errorf("token secret must be at least %d bytes", MinTokenSecretLength)
	}
	if c.Issuer == "" {
		return oops.Code("AUTH_INVALID_TOKEN_CONFIG").Errorf("token issuer cannot be empty")
	}
	if c.TTL <= 0 {
		return oops.Code("AUTH_INVALID_TOKEN_CONFIG").
			With("ttl", c.TTL.String()).
			Errorf("token ttl must be positive")
	}
	return nil
}

// TokenService issues and verifies signed bearer tokens.
type TokenService interface {
	// Issue produces a signed token whose subject is the given string.
	Issue(subject string) (string, error)

	// Verify reports whether the token has a valid signature and has not expired.
	Verify(token string) bool

	// ExtractSubject decodes the subject claim without checking the signature.
	// Callers must Verify first.
	ExtractSubject(token string) (string, error)

	// Parse verifies the token and returns its subject in one step.
	Parse(token string) (string, error)
}

// JWTService implements TokenService with HS256-signed JWTs.
type JWTService struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
	parser *jwt.Parser
}

// JWTOption configures a JWTService.
type JWTOption func(*JWTService)

// WithClock overrides the time source used for issuing and checking expiry.
func WithClock(now func() time.Time) JWTOption {
	return func(s *JWTService) {
		s.now = now
	}
}

// NewJWTService creates a JWTService from validated configuration.
func NewJWTService(cfg TokenConfig, opts ...JWTOption) (*JWTService, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	secret := make([]byte, len(cfg.Secret))
	copy(secret, cfg.Secret)

	s := &JWTService{
		secret: secret,
		issuer: cfg.Issuer,
		ttl:    cfg.TTL,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.parser = jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	return s, nil
}

// Issue produces a signed token for subject that expires after the configured TTL.
func (s *JWTService) Issue(subject string) (string, error) {
	if subject == "" {
		return "", oops.Code("AUTH_TOKEN_ISSUE_FAILED").Errorf("token subject cannot be empty")
	}

	now := s.now().UTC()
	claims := jwt.RegisteredClaims{
		ID:        ulid.Make().String(),
		Issuer:    s.issuer,
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", oops.Code("AUTH_TOKEN_ISSUE_FAILED").
			With("operation", "sign token").
			Wrap(err)
	}
	return signed, nil
}

// Verify reports whether the token is authentic and unexpired.
func (s *JWTService) Verify(token string) bool {
	_, err := s.parse(token)
	return err == nil
}

// ExtractSubject returns the token's subject claim without verifying it.
func (s *JWTService) ExtractSubject(token string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return "", oops.Code("AUTH_TOKEN_INVALID").
			With("operation", "decode token").
			Wrap(ErrTokenInvalid)
	}
	if claims.Subject == "" {
		return "", oops.Code("AUTH_TOKEN_INVALID").
			With("reason", "missing subject").
			Wrap(ErrTokenInvalid)
	}
	return claims.Subject, nil
}

// Parse verifies the token and returns its subject.
func (s *JWTService) Parse(token string) (string, error) {
	claims, err := s.parse(token)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}

func (s *JWTService) parse(token string) (*jwt.RegisteredClaims, error) {
	if token == "" {
		return nil, oops.Code("AUTH_TOKEN_INVALID").
			With("reason", "empty token").
			Wrap(ErrTokenInvalid)
	}

	claims := &jwt.RegisteredClaims{}
	parsed, err := s.parser.ParseWithClaims(token, claims, s.keyFunc)
	if err != nil || !parsed.Valid {
		// The jwt cause is kept in context only; callers see ErrTokenInvalid.
		reason := "invalid"
		if err != nil {
			reason = err.Error()
		}
		return nil, oops.Code("AUTH_TOKEN_INVALID").
			With("reason", reason).
			Wrap(ErrTokenInvalid)
	}
	if claims.Subject == "" {
		return nil, oops.Code("AUTH_TOKEN_INVALID").
			With("reason", "missing subject").
			Wrap(ErrTokenInvalid)
	}
	return claims, nil
}

// keyFunc supplies the HMAC secret; the parser has already pinned the algorithm.
func (s *JWTService) keyFunc(*jwt.Token) (any, error) {
	return s.secret, nil
}

// Compile-time interface check.
var _ TokenService = (*JWTService)(nil)
