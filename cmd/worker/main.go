package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/printpress/notifications/internal/cache"
	"github.com/printpress/notifications/internal/config"
	"github.com/printpress/notifications/internal/db"
	"github.com/printpress/notifications/internal/mailer"
	"github.com/printpress/notifications/internal/metrics"
	"github.com/printpress/notifications/internal/observ"
	"github.com/printpress/notifications/internal/worker"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := observ.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("starting notifications worker",
		zap.String("env", cfg.Env),
		zap.String("provider", cfg.MailProvider),
		zap.Duration("poll_interval", cfg.PollInterval()),
	)

	ctx := context.Background()

	database, err := db.New(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	repo := db.NewRepository(database, logger)

	// Settings/template lookups go through redis when available; the
	// worker runs fine without it.
	var resolver worker.Resolver = repo
	if cfg.RedisAddr != "" {
		rdb, err := cache.NewClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, logger)
		if err != nil {
			logger.Warn("redis unavailable, settings cache disabled",
				zap.Error(err),
				zap.String("addr", cfg.RedisAddr),
			)
		} else {
			defer rdb.Close()
			resolver = cache.NewResolverCache(repo, rdb, cfg.CacheTTL(), logger)
		}
	}

	selector := mailer.NewSelector(mailer.Defaults{
		Provider:              cfg.MailProvider,
		FromName:              cfg.DefaultFromName,
		FromAddress:           cfg.DefaultFromAddress,
		ReplyTo:               cfg.DefaultReplyTo,
		PostmarkServerToken:   cfg.PostmarkServerToken,
		PostmarkMessageStream: cfg.PostmarkMessageStream,
		MailgunDomain:         cfg.MailgunDomain,
		MailgunAPIKey:         cfg.MailgunAPIKey,
	}, logger)

	builder := worker.NewBuilder(resolver, cfg.AppBaseURL, logger)

	w := worker.New(repo, builder, selector, worker.Config{
		PollInterval: cfg.PollInterval(),
		BatchSize:    cfg.BatchSize,
		MaxAttempts:  cfg.MaxAttempts,
		RetryDelay:   cfg.RetryDelay(),
		ReclaimAfter: cfg.ReclaimAfter(),
		SendRate:     rate.Limit(cfg.SendRatePerSecond),
	}, logger)

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		w.Start(workerCtx)
	}()

	// Ops server: health and metrics only. The job-creating API lives in
	// the portal, not here.
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Get("/readyz", func(rw http.ResponseWriter, req *http.Request) {
		if err := database.Health(req.Context()); err != nil {
			http.Error(rw, err.Error(), http.StatusServiceUnavailable)
			return
		}
		rw.WriteHeader(http.StatusOK)
		_, _ = rw.Write([]byte("OK"))
	})
	r.Handle("/metrics", metrics.Handler())

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.OpsPort),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("ops server listening", zap.String("addr", srv.Addr))
		serverErrors <- srv.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		return fmt.Errorf("ops server error: %w", err)
	case sig := <-shutdown:
		logger.Info("shutdown signal received", zap.String("signal", sig.String()))

		// Let the in-flight job finish its attempt so nothing is left
		// stranded in PROCESSING.
		workerCancel()
		select {
		case <-workerDone:
		case <-time.After(30 * time.Second):
			logger.Warn("worker did not stop in time")
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			srv.Close()
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}

		logger.Info("worker stopped gracefully")
	}

	return nil
}
