// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Pronoia Contributors

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/pronoia/pronoia/internal/auth"
	"github.com/pronoia/pronoia/internal/auth/memory"
	"github.com/pronoia/pronoia/internal/auth/postgres"
	"github.com/pronoia/pronoia/internal/config"
	"github.com/pronoia/pronoia/internal/logging"
	"github.com/pronoia/pronoia/internal/observability"
	"github.com/pronoia/pronoia/internal/store"
	"github.com/pronoia/pronoia/internal/web"
)

const (
	serviceName     = "pronoia"
	shutdownTimeout = 5 * time.Second
	readinessPing   = 2 * time.Second
)

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Long: `Start the HTTP API serving /auth/register, /auth/login and /auth/validate,
plus the metrics and health probe listener.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(config.Sources{File: configFile, Flags: cmd.Flags()})
			if err != nil {
				return err
			}
			return runServeWithDeps(cmd.Context(), cfg, cmd, nil)
		},
	}

	defaults := config.Defaults()
	flags := cmd.Flags()
	flags.String("http-addr", fmt.Sprint(defaults["http.addr"]), "API listen address")
	flags.String("metrics-addr", fmt.Sprint(defaults["metrics.addr"]), "metrics/health HTTP address (empty = disabled)")
	flags.String("storage", fmt.Sprint(defaults["storage"]), "user storage backend (postgres or memory)")
	flags.String("database-url", "", "PostgreSQL connection URL")
	flags.Bool("migrate", false, "apply pending migrations before serving")
	flags.String("log-format", fmt.Sprint(defaults["log.format"]), "log format (json or text)")
	flags.String("log-level", fmt.Sprint(defaults["log.level"]), "log level (debug, info, warn, error)")

	return cmd
}

// runServeWithDeps starts the API with injectable dependencies.
// If deps is nil, default implementations are used.
func runServeWithDeps(ctx context.Context, cfg *config.Config, cmd *cobra.Command, deps *ServeDeps) error {
	if deps == nil {
		deps = &ServeDeps{}
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if deps.PoolConnector == nil {
		deps.PoolConnector = func(ctx context.Context, url string, attempts int) (Pool, error) {
			return store.Connect(ctx, url, attempts)
		}
	}
	if deps.MigratorFactory == nil {
		deps.MigratorFactory = defaultMigratorFactory
	}
	if deps.ObservabilityServerFactory == nil {
		deps.ObservabilityServerFactory = func(addr string, readinessChecker observability.ReadinessChecker) ObservabilityServer {
			return observability.NewServer(addr, readinessChecker)
		}
	}
	if deps.ListenerFactory == nil {
		deps.ListenerFactory = net.Listen
	}

	if err := cfg.Validate(); err != nil {
		return oops.Code("CONFIG_INVALID").With("operation", "validate configuration").Wrap(err)
	}

	logger, err := logging.SetDefault(serviceName, version, cfg.Log.Format, cfg.Log.Level)
	if err != nil {
		return oops.With("operation", "set up logging").Wrap(err)
	}

	shutdownTracing := observability.SetupTracing(serviceName, version)
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Warn("error stopping tracer provider", "error", err)
		}
	}()

	logger.Info("starting pronoia",
		"http_addr", cfg.HTTP.Addr,
		"storage", cfg.Storage,
		"log_format", cfg.Log.Format,
	)

	var users auth.UserRepository
	var pool Pool
	switch cfg.Storage {
	case config.StoragePostgres:
		if cfg.Database.AutoMigrate {
			if err := applyMigrations(deps.MigratorFactory, cfg.Database.URL); err != nil {
				return err
			}
			logger.Info("database migrations applied")
		}

		pool, err = deps.PoolConnector(ctx, cfg.Database.URL, cfg.Database.ConnectAttempts)
		if err != nil {
			return oops.Code("DB_CONNECT_FAILED").With("operation", "connect to database").Wrap(err)
		}
		defer pool.Close()
		logger.Info("connected to database")
		users = postgres.NewUserRepository(pool)
	default:
		logger.Warn("using in-memory user storage; accounts are lost on exit")
		users = memory.NewUserRepository()
	}

	hasher, err := auth.NewArgon2idHasher(cfg.Argon2Params())
	if err != nil {
		return oops.With("operation", "create password hasher").Wrap(err)
	}
	tokens, err := auth.NewJWTService(cfg.TokenConfig())
	if err != nil {
		return oops.With("operation", "create token service").Wrap(err)
	}
	svc, err := auth.NewAuthServiceWithLogger(users, hasher, tokens, logger)
	if err != nil {
		return oops.With("operation", "create auth service").Wrap(err)
	}

	// Set up graceful shutdown
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var ready atomic.Bool
	readiness := func() bool {
		if !ready.Load() {
			return false
		}
		if pool == nil {
			return true
		}
		pingCtx, pingCancel := context.WithTimeout(context.Background(), readinessPing)
		defer pingCancel()
		return pool.Ping(pingCtx) == nil
	}

	var obsServer ObservabilityServer
	var metrics *observability.Metrics
	if cfg.Metrics.Addr != "" {
		obsServer = deps.ObservabilityServerFactory(cfg.Metrics.Addr, readiness)
		obsErrChan, err := obsServer.Start()
		if err != nil {
			return oops.With("operation", "start observability server").Wrap(err)
		}
		defer func() {
			stopCtx, stopCancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer stopCancel()
			if err := obsServer.Stop(stopCtx); err != nil {
				logger.Warn("error stopping observability server", "error", err)
			}
		}()
		// Monitor observability server errors - cancel context on error
		go monitorServerErrors(ctx, cancel, obsErrChan, "observability")
		metrics = obsServer.Metrics()
		logger.Info("observability server started", "addr", obsServer.Addr())
	}

	api, err := web.NewServer(svc, web.Options{Logger: logger, Metrics: metrics})
	if err != nil {
		return oops.With("operation", "create http server").Wrap(err)
	}

	listener, err := deps.ListenerFactory("tcp", cfg.HTTP.Addr)
	if err != nil {
		return oops.Code("LISTEN_FAILED").With("addr", cfg.HTTP.Addr).Wrap(err)
	}

	apiErrChan := make(chan error, 1)
	go func() {
		defer close(apiErrChan)
		if err := api.Serve(listener); err != nil {
			apiErrChan <- err
		}
	}()

	ready.Store(true)
	cmd.Println("Pronoia listening on " + listener.Addr().String())
	logger.Info("pronoia ready", "http_addr", listener.Addr().String())

	// Handle signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	var serveErr error
	select {
	case sig := <-sigChan:
		logger.Info("received shutdown signal", "signal", sig)
	case err, ok := <-apiErrChan:
		if ok && err != nil {
			serveErr = oops.With("operation", "serve http").Wrap(err)
		}
	case <-ctx.Done():
		logger.Info("context cancelled, shutting down")
	}

	logger.Info("shutting down...")
	ready.Store(false)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := api.Shutdown(shutdownCtx); err != nil {
		logger.Warn("error stopping http server", "error", err)
	}

	logger.Info("shutdown complete")
	return serveErr
}

// applyMigrations brings the schema up to date and releases the migrator.
func applyMigrations(factory func(string) (Migrator, error), url string) error {
	migrator, err := factory(url)
	if err != nil {
		return oops.Code("MIGRATION_INIT_FAILED").With("operation", "create migrator").Wrap(err)
	}
	defer func() {
		if closeErr := migrator.Close(); closeErr != nil {
			slog.Debug("error closing migrator", "error", closeErr)
		}
	}()

	if err := migrator.Up(); err != nil {
		return oops.Code("MIGRATION_FAILED").With("operation", "run migrations").Wrap(err)
	}
	return nil
}

func defaultMigratorFactory(url string) (Migrator, error) {
	return store.NewMigrator(url)
}

// monitorServerErrors cancels the context when a server reports an error.
// It exits when either an error is received, the channel is closed, or the context is cancelled.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, serverName string) {
	select {
	case err, ok := <-errCh:
		if !ok {
			// Channel closed, server stopped gracefully
			return
		}
		if err != nil {
			slog.Error("server error, triggering shutdown",
				"server", serverName,
				"error", err,
			)
			cancel()
		}
	case <-ctx.Done():
	}
}
