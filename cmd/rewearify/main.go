package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/rewearify/rewearify/internal/app"
	"github.com/rewearify/rewearify/internal/observability"
	"github.com/rewearify/rewearify/internal/platform/cache"
	"github.com/rewearify/rewearify/internal/platform/db"
	"github.com/rewearify/rewearify/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)
	deps := app.Deps{
		HTTPClient: &http.Client{Timeout: cfg.AuthTimeout},
		Metrics:    observability.NewMetrics(),
	}

	redisClient, err := cache.New(ctx, cache.Options{Addr: cfg.RedisAddr})
	switch {
	case err == nil:
		deps.Redis = redisClient
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
	case cfg.SessionStore == app.SessionStoreRedis:
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	default:
		logger.Warn("redis unavailable, password reset mail disabled", slog.Any("error", err))
	}

	if deps.Redis != nil {
		redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
		jobClient, err := jobs.NewClient(redisOpts)
		if err != nil {
			logger.Error("init job client", slog.Any("error", err))
			os.Exit(1)
		}
		defer func() {
			if err := jobClient.Close(); err != nil {
				logger.Warn("job client close", slog.Any("error", err))
			}
		}()
		inspector := asynq.NewInspector(redisOpts)
		defer inspector.Close()
		deps.Mailer = jobs.NewResetMailer(jobClient)
		deps.Jobs = jobs.NewHandler(inspector, logger)
	}

	if cfg.NotifySource == app.NotifySourcePostgres {
		pool, err := db.New(ctx, cfg.PGDSN, 0)
		if err != nil {
			logger.Error("connect postgres", slog.Any("error", err))
			os.Exit(1)
		}
		defer pool.Close()
		deps.Pool = pool
	}

	rt, err := app.Build(ctx, cfg, logger, deps)
	if err != nil {
		logger.Error("build runtime", slog.Any("error", err))
		os.Exit(1)
	}

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      rt.Handler,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server",
			slog.String("addr", cfg.AppAddr),
			slog.String("auth_backend", cfg.AuthBackend),
			slog.String("session_store", cfg.SessionStore),
			slog.String("notify_source", cfg.NotifySource),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
