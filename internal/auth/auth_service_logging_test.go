// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Pronoia Contributors

package auth_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/pronoia/pronoia/internal/auth"
	"github.com/pronoia/pronoia/internal/auth/mocks"
)

// logEntry represents a parsed JSON log entry.
type logEntry struct {
	Level  string  `json:"level"`
	Msg    string  `json:"msg"`
	Reason string  `json:"reason"`
	Error  string  `json:"error"`
	UserID float64 `json:"user_id"`
}

func newLoggedService(t *testing.T, level slog.Level) (*auth.Service, serviceMocks, *bytes.Buffer) {
	t.Helper()
	m := serviceMocks{
		users:  mocks.NewMockUserRepository(t),
		hasher: mocks.NewMockPasswordHasher(t),
		tokens: mocks.NewMockTokenService(t),
	}
	m.hasher.On("Hash", mock.AnythingOfType("string")).Return(testDummyHash, nil).Once()
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: level}))
	svc, err := auth.NewAuthServiceWithLogger(m.users, m.hasher, m.tokens, logger)
	require.NoError(t, err)
	return svc, m, &buf
}

func lastEntry(t *testing.T, buf *bytes.Buffer) logEntry {
	t.Helper()
	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.NotEmpty(t, lines[len(lines)-1], "should have logged JSON entry")
	var entry logEntry
	require.NoError(t, json.Unmarshal(lines[len(lines)-1], &entry))
	return entry
}

func TestService_Login_LogsUnreadableHash(t *testing.T) {
	svc, m, buf := newLoggedService(t, slog.LevelInfo)
	user := storedUser()

	m.users.On("GetByEmail", mock.Anything, "a@x.com").Return(user, nil)
	m.hasher.On("Verify", "pw1", user.PasswordHash).Return(false, errors.New("truncated hash"))

	_, err := svc.Login(context.Background(), "a@x.com", "pw1")
	require.Error(t, err)

	entry := lastEntry(t, buf)
	assert.Equal(t, "WARN", entry.Level)
	assert.Equal(t, "stored password hash is unreadable", entry.Msg)
	assert.Contains(t, entry.Error, "truncated hash")
	assert.Equal(t, float64(user.ID), entry.UserID)
}

func TestService_Register_LogsOutcome(t *testing.T) {
	svc, m, buf := newLoggedService(t, slog.LevelInfo)

	m.users.On("ExistsByEmail", mock.Anything, "a@x.com").Return(true, nil)

	_, err := svc.Register(context.Background(), auth.RegisterInput{Email: "a@x.com", Name: "A", Surname: "B", Password: "pw1"})
	require.NoError(t, err)

	entry := lastEntry(t, buf)
	assert.Equal(t, "INFO", entry.Level)
	assert.Equal(t, "registration rejected", entry.Msg)
	assert.Equal(t, "email taken", entry.Reason)
	assert.NotContains(t, buf.String(), "pw1")
}

func TestService_ValidateToken_LogsRejectionAtDebug(t *testing.T) {
	t.Run("debug enabled", func(t *testing.T) {
		svc, m, buf := newLoggedService(t, slog.LevelDebug)
		m.tokens.On("Parse", "bad").Return("", errors.New("token is expired"))

		_, err := svc.ValidateToken(context.Background(), "bad")
		require.Error(t, err)

		entry := lastEntry(t, buf)
		assert.Equal(t, "DEBUG", entry.Level)
		assert.Equal(t, "token rejected", entry.Msg)
		assert.Contains(t, entry.Error, "token is expired")
	})

	t.Run("silent at info", func(t *testing.T) {
		svc, m, buf := newLoggedService(t, slog.LevelInfo)
		m.tokens.On("Parse", "bad").Return("", errors.New("token is expired"))

		_, err := svc.ValidateToken(context.Background(), "bad")
		require.Error(t, err)
		assert.Empty(t, buf.String())
	})
}
