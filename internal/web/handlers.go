// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Pronoia Contributors

package web

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/pronoia/pronoia/internal/auth"
	"github.com/pronoia/pronoia/internal/observability"
)

type registerRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Surname  string `json:"surname"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) handleRegister(c *fiber.Ctx) error {
	var req registerRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(auth.RegisterResult{Result: false, Message: MsgInvalidBody})
	}

	result, err := s.auth.Register(c.UserContext(), auth.RegisterInput{
		Email:    req.Email,
		Name:     req.Name,
		Surname:  req.Surname,
		Password: req.Password,
	})
	if err != nil {
		s.metrics.RecordAuth("register", observability.OutcomeError)
		return err
	}
	if !result.Result {
		s.metrics.RecordAuth("register", observability.OutcomeRejected)
		return c.Status(fiber.StatusBadRequest).JSON(result)
	}

	s.metrics.RecordAuth("register", observability.OutcomeSuccess)
	return c.JSON(result)
}

func (s *Server) handleLogin(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(messageBody{Message: MsgInvalidBody})
	}

	result, err := s.auth.Login(c.UserContext(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			s.metrics.RecordAuth("login", observability.OutcomeRejected)
			return c.Status(fiber.StatusUnauthorized).JSON(messageBody{Message: MsgBadCredentials})
		}
		s.metrics.RecordAuth("login", observability.OutcomeError)
		return err
	}

	s.metrics.RecordAuth("login", observability.OutcomeSuccess)
	return c.JSON(result)
}

func (s *Server) handleValidate(c *fiber.Ctx) error {
	token, ok := bearerToken(c.Get(fiber.HeaderAuthorization))
	if !ok {
		s.metrics.RecordAuth("validate", observability.OutcomeRejected)
		return c.Status(fiber.StatusUnauthorized).JSON(messageBody{Message: MsgInvalidHeader})
	}

	profile, err := s.auth.ValidateToken(c.UserContext(), token)
	if err != nil {
		if auth.IsTokenError(err) {
			s.metrics.RecordAuth("validate", observability.OutcomeRejected)
			return c.Status(fiber.StatusUnauthorized).JSON(messageBody{Message: tokenErrorMessage(err)})
		}
		s.metrics.RecordAuth("validate", observability.OutcomeError)
		return err
	}

	s.metrics.RecordAuth("validate", observability.OutcomeSuccess)
	return c.JSON(profile)
}

// bearerToken accepts exactly "Bearer <token>": case-sensitive scheme, one
// space, and a token with no whitespace.
func bearerToken(header string) (string, bool) {
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" || strings.ContainsAny(token, " \t\r\n") {
		return "", false
	}
	return strings.Clone(token), true
}

func tokenErrorMessage(err error) string {
	if errors.Is(err, auth.ErrTokenUserNotFound) {
		return auth.ErrTokenUserNotFound.Error()
	}
	return auth.ErrTokenInvalid.Error()
}
