// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Pronoia Contributors

// Package web exposes the auth service over HTTP.
//
// Routes:
//
//	POST /auth/register  {email, name, surname, password} -> {result, message?}
//	POST /auth/login     {email, password}                -> {token, user}
//	GET  /auth/validate  Authorization: Bearer <token>    -> profile
package web

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/samber/oops"

	"github.com/pronoia/pronoia/internal/auth"
	"github.com/pronoia/pronoia/pkg/errutil"
)

// Response messages.
const (
	MsgInvalidBody    = "invalid request body"
	MsgInvalidHeader  = "missing or invalid Authorization header"
	MsgInternalError  = "internal server error"
	MsgBadCredentials = "invalid email or password"
)

const (
	defaultBodyLimit   = 64 * 1024
	defaultIdleTimeout = 60 * time.Second
)

// AuthService is the subset of auth.Service the handlers call.
type AuthService interface {
	Register(ctx context.Context, in auth.RegisterInput) (auth.RegisterResult, error)
	Login(ctx context.Context, email, password string) (*auth.LoginResult, error)
	ValidateToken(ctx context.Context, token string) (*auth.Profile, error)
}

// MetricsRecorder receives per-request and per-operation measurements.
type MetricsRecorder interface {
	RecordAuth(operation, outcome string)
	ObserveHTTP(method, route string, status int, elapsed time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) RecordAuth(string, string)                      {}
func (nopRecorder) ObserveHTTP(string, string, int, time.Duration) {}

// Options configures a Server. Zero values select defaults.
type Options struct {
	Logger  *slog.Logger
	Metrics MetricsRecorder
}

// Server is the HTTP boundary in front of an AuthService.
type Server struct {
	app     *fiber.App
	auth    AuthService
	logger  *slog.Logger
	metrics MetricsRecorder
}

// NewServer builds the fiber application and registers the auth routes.
func NewServer(svc AuthService, opts Options) (*Server, error) {
	if svc == nil {
		return nil, oops.Code("WEB_INVALID_CONFIG").Errorf("auth service is required")
	}
	s := &Server{
		auth:    svc,
		logger:  opts.Logger,
		metrics: opts.Metrics,
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.metrics == nil {
		s.metrics = nopRecorder{}
	}

	s.app = fiber.New(fiber.Config{
		AppName:               "pronoia",
		DisableStartupMessage: true,
		BodyLimit:             defaultBodyLimit,
		IdleTimeout:           defaultIdleTimeout,
		ErrorHandler:          s.handleError,
	})

	s.app.Use(s.requestID())
	s.app.Use(s.tracing())
	s.app.Use(s.accessLog())
	s.app.Use(recover.New())

	group := s.app.Group("/auth")
	group.Post("/register", s.handleRegister)
	group.Post("/login", s.handleLogin)
	group.Get("/validate", s.handleValidate)

	return s, nil
}

// App returns the underlying fiber application.
func (s *Server) App() *fiber.App {
	return s.app
}

// Serve accepts connections on ln until Shutdown is called.
func (s *Server) Serve(ln net.Listener) error {
	if err := s.app.Listener(ln); err != nil {
		return oops.Code("WEB_SERVE_FAILED").With("addr", ln.Addr().String()).Wrap(err)
	}
	return nil
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.app.ShutdownWithContext(ctx); err != nil {
		return oops.Code("WEB_SHUTDOWN_FAILED").Wrap(err)
	}
	return nil
}

// handleError renders errors that escaped a handler. fiber errors keep their
// status; anything else is logged and reported as a bare 500.
func (s *Server) handleError(c *fiber.Ctx, err error) error {
	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return c.Status(fiberErr.Code).JSON(messageBody{Message: fiberErr.Message})
	}
	errutil.LogErrorContext(c.UserContext(), s.logger, "request failed", err)
	return c.Status(fiber.StatusInternalServerError).JSON(messageBody{Message: MsgInternalError})
}

type messageBody struct {
	Message string `json:"message"`
}
