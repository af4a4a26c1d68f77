package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"cashflow/internal/amqp"
	"cashflow/internal/cache"
	"cashflow/internal/cli"
	apphttp "cashflow/internal/http"
	applog "cashflow/internal/log"
	"cashflow/internal/session"
	"cashflow/internal/tracker"
)

func main() {
	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig()
	logger := cli.SetupLogger(cfg.LogLevel)

	ctx, cancel := cli.ShutdownContext(logger)
	defer cancel()

	be := cli.InitBackend(ctx, logger, cfg)
	defer func() {
		if err := be.Cleanup(); err != nil {
			logger.Error("Backend cleanup failed", "error", err)
		}
	}()

	policy, err := tracker.ParseWritePolicy(cfg.WriteFailurePolicy)
	if err != nil {
		logger.Error("Invalid write failure policy", "error", err)
		os.Exit(1)
	}

	trackerLog := logger.WithComponent(applog.ComponentTracker).Logger
	sessions := session.NewRegistry(session.Options{
		MaxSessions:  cfg.Session.MaxSessions,
		TTL:          cfg.Session.TTL,
		SecureCookie: cfg.Session.SecureCookie,
	}, func() *tracker.Tracker {
		return tracker.New(be.Store, policy, trackerLog)
	}, logger.Logger)
	defer sessions.Close()

	caches := cache.NewManager()
	caches.Register(sessions.Sessions())
	caches.StartCleanup(time.Minute)
	defer caches.Stop()

	srv, err := apphttp.NewServer(apphttp.Options{
		Addr:               ":" + cfg.Port,
		Sessions:           sessions,
		Provider:           cli.InitAuthProvider(logger, cfg),
		Ready:              be.Ready,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		ImportMaxBytes:     cfg.ImportMaxBytes,
		Logger:             logger,
	})
	if err != nil {
		logger.Error("Failed to create server", "error", err)
		os.Exit(1)
	}

	// Configure server timeouts and limits
	srv.ReadTimeout = 15 * time.Second
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Starting cashflow server",
			"port", cfg.Port,
			"backend", cfg.DataBackend,
			"auth", cfg.Auth.Provider,
			"change_feed", be.Feed != nil)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()
		return srv.Shutdown(shutdownCtx)
	})

	if be.Feed != nil {
		feedLog := logger.WithComponent(applog.ComponentAMQP)
		g.Go(func() error {
			err := be.Feed.ConsumeChanges(gctx, func(ctx context.Context, msg *amqp.ChangeMessage) error {
				return be.Store.HandleRemoteChange(ctx, msg.Origin, msg.Change())
			})
			if err != nil && !errors.Is(err, context.Canceled) {
				feedLog.Error("Change feed stopped", "error", err)
			}
			// Local sessions keep working without the feed.
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		logger.Error("Server error", "error", err, "port", cfg.Port)
		os.Exit(1)
	}
	logger.Info("Server stopped gracefully")
}
