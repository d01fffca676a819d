// Package main is the entrypoint for the ReviewLens API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"

	"github.com/reviewlens/reviewlens/internal/analysis"
	"github.com/reviewlens/reviewlens/internal/api"
	"github.com/reviewlens/reviewlens/internal/api/handler"
	mw "github.com/reviewlens/reviewlens/internal/api/middleware"
	"github.com/reviewlens/reviewlens/internal/api/response"
	"github.com/reviewlens/reviewlens/internal/cache"
	"github.com/reviewlens/reviewlens/internal/config"
	"github.com/reviewlens/reviewlens/internal/engine"
	"github.com/reviewlens/reviewlens/internal/events"
	"github.com/reviewlens/reviewlens/internal/notify"
	"github.com/reviewlens/reviewlens/internal/store"
)

const shutdownTimeout = 30 * time.Second

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load config — fail fast on invalid config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded", "env", cfg.Server.Env, "engine", cfg.Engine.BaseURL)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Connect to database
	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	slog.Info("database connected")

	// 3. Run migrations
	if err := store.RunMigrations(cfg.Database.URL, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("database migrations applied")

	// 4. Redis: one client shared by the cache and the notification fan-out
	redisOpts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("parse redis URL: %w", err)
	}
	redisClient := redis.NewClient(redisOpts)
	defer redisClient.Close()

	redisCache := cache.NewRedisCacheFromClient(redisClient)
	if err := redisCache.Ping(ctx); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("redis connected")

	jobCache := cache.NewJobCache(redisCache, cache.TTLs{
		Result:           cfg.Cache.ResultTTL,
		Status:           cfg.Cache.StatusTTL,
		Task:             cfg.Cache.TaskTTL,
		CounterRetention: cfg.Cache.CounterRetention,
	})

	// 5. Engine client behind a shared circuit breaker
	breaker := engine.NewBreaker(engine.BreakerConfig{
		ErrorThreshold: cfg.Engine.BreakerErrorThreshold,
		MinRequests:    cfg.Engine.BreakerMinRequests,
		Window:         cfg.Engine.BreakerWindow,
		ResetTimeout:   cfg.Engine.BreakerResetTimeout,
		HalfOpenProbes: cfg.Engine.BreakerHalfOpenProbes,
	})
	engineClient := engine.NewHTTPClient(
		cfg.Engine.BaseURL, cfg.Engine.CallbackURL,
		cfg.Engine.Timeout, cfg.Engine.MaxRetries, cfg.Engine.RetryBase, breaker)

	// 6. Orchestrator
	pgStore := store.NewPostgresStore(pool)
	publisher := notify.NewRedisPublisher(redisClient)
	svc := analysis.NewService(pgStore, jobCache, engineClient, publisher)

	// 7. Optional message-bus consumer
	if cfg.Bus.URL != "" {
		conn, err := amqp.Dial(cfg.Bus.URL)
		if err != nil {
			return fmt.Errorf("connect amqp: %w", err)
		}
		defer conn.Close()

		consumer, err := events.NewConsumer(conn, cfg.Bus.Exchange, cfg.Bus.RoutingKey, cfg.Bus.Queue, svc)
		if err != nil {
			return fmt.Errorf("create event consumer: %w", err)
		}
		go func() {
			if err := consumer.Start(ctx); err != nil {
				slog.Error("event consumer stopped", "error", err)
			}
		}()
		slog.Info("event consumer wired", "queue", cfg.Bus.Queue)
	} else {
		slog.Info("AMQP_URL not set, bus consumer disabled")
	}

	// 8. Build router with dependencies
	deps := api.Dependencies{
		RateLimit: mw.NewRateLimit(redisCache, 120),

		HealthHandler:        healthHandler(pgStore, redisCache, breaker),
		StartAnalysisHandler: handler.NewStartAnalysisHandler(svc),
		StatusHandler:        handler.NewStatusHandler(svc),
		ResultHandler:        handler.NewResultHandler(svc),
		CallbackHandler:      handler.NewCallbackHandler(svc),
		InvalidateHandler:    handler.NewInvalidateHandler(svc),
		WarmupHandler:        handler.NewWarmupHandler(svc),
		HitRateHandler:       handler.NewHitRateHandler(svc),
	}
	router := api.NewRouter(deps)

	// 9. Start HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 45 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}

// healthHandler checks database and cache connectivity and reports the
// breaker state. A degraded cache is reported but does not fail the check —
// the system stays correct without it.
func healthHandler(s store.Store, c cache.Cache, b *engine.Breaker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{
			"database": "ok",
			"cache":    "ok",
			"breaker":  b.State(),
		}

		if err := s.Ping(r.Context()); err != nil {
			checks["database"] = "degraded"
		}
		if err := c.Ping(r.Context()); err != nil {
			checks["cache"] = "degraded"
		}

		if checks["database"] != "ok" {
			response.Error(w, http.StatusServiceUnavailable, "DEGRADED",
				"One or more services degraded", checks)
			return
		}

		response.JSON(w, map[string]any{
			"status":   "ok",
			"services": checks,
		})
	}
}
