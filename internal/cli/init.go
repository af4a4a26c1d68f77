// Package cli provides the process bootstrap shared by the cashflow
// binaries.
package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"cashflow/internal/auth"
	"cashflow/internal/backend"
	"cashflow/internal/config"
	applog "cashflow/internal/log"
)

// SetupLogger initializes structured logging at the given level and sets it
// as the default logger.
func SetupLogger(level string) *applog.Logger {
	lvl := applog.ParseLevel(level)
	logger := applog.New(applog.Config{
		Level:     lvl,
		Component: applog.ComponentApp,
		Handler:   slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}),
	})
	applog.SetDefault(logger)
	return logger
}

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// LoadAndValidateConfig loads configuration and validates it.
// Exits the process when the environment cannot be parsed or is invalid.
func LoadAndValidateConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}
	return cfg
}

// InitBackend builds the transaction backend selected by cfg.
// Exits the process on failure.
func InitBackend(ctx context.Context, logger *applog.Logger, cfg *config.Config) *backend.BackendResult {
	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", "error", err)
		os.Exit(1)
	}

	factory := backend.NewFactory(logger.WithComponent(applog.ComponentBackend).Logger)
	result, err := factory.CreateBackend(ctx, bcfg)
	if err != nil {
		logger.Error("Failed to initialize backend", "error", err, "backend", bcfg.Type)
		os.Exit(1)
	}
	return result
}

// InitAuthProvider builds the sign-in provider selected by cfg.
// Exits the process when Google credentials cannot be loaded.
func InitAuthProvider(logger *applog.Logger, cfg *config.Config) auth.Provider {
	if cfg.Auth.Provider != "google" {
		logger.Warn("Using development sign-in; every visitor signs in as the same user",
			applog.FieldOwnerID, cfg.Auth.DevUserID)
		return auth.NewDevProvider(cfg.Auth.DevUserID, cfg.Auth.DevUserName)
	}

	creds, err := auth.LoadClientCredentials(cfg.Auth.GoogleOAuthClientJSON, cfg.Auth.GoogleOAuthClientFile)
	if err != nil {
		logger.Error("Failed to load OAuth client credentials", "error", err)
		os.Exit(1)
	}
	p, err := auth.NewGoogleProvider(creds, cfg.Auth.RedirectURL)
	if err != nil {
		logger.Error("Failed to configure Google sign-in", "error", err)
		os.Exit(1)
	}
	return p
}

// ShutdownContext returns a context cancelled on SIGINT or SIGTERM.
func ShutdownContext(logger *applog.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigChan)

		select {
		case sig := <-sigChan:
			logger.Info("Shutdown signal received", "signal", sig.String())
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}
