package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/handlers"
	"github.com/sony/gobreaker"

	"peak_analyzer/internal/analysis"
	"peak_analyzer/internal/api"
	"peak_analyzer/internal/cache"
	"peak_analyzer/internal/config"
	"peak_analyzer/internal/logging"
	"peak_analyzer/internal/metrics"
	"peak_analyzer/internal/optimizer"
	"peak_analyzer/internal/publish"
	"peak_analyzer/internal/service"
	"peak_analyzer/internal/store"
	"peak_analyzer/internal/ws"
)

const redisConnectAttempts = 3

func runServe(ctx context.Context, cfg *config.Config) error {
	logger := logging.New(cfg.Logging.Level, os.Stderr)

	deps := service.Deps{
		Engine:    analysis.New(cfg.Analysis.Options),
		Store:     store.New(cfg.Store.Limit),
		Params:    cfg.Optimizer.Params,
		Economics: cfg.Economics,
		Log:       logger,
	}

	if cfg.Redis.Addr != "" {
		if rc := connectRedis(ctx, cfg.Redis, logger); rc != nil {
			defer rc.Close()
			deps.Cache = rc
		}
	}

	pub, err := publish.NewPublisher(publish.Config{Brokers: cfg.Kafka.Brokers, Topic: cfg.Kafka.Topic}, logger)
	if err != nil {
		return err
	}
	if pub.Enabled() {
		// stopped by the deferred Stop, after in-flight requests finish
		pub.Start(context.Background())
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancel()
			if err := pub.Stop(stopCtx); err != nil {
				logger.Warn("publisher_stop_err", slog.Any("err", err))
			}
		}()
		deps.Publisher = pub
	}

	if cfg.Optimizer.Enabled() {
		client, err := optimizer.NewClient(cfg.Optimizer.Config)
		if err != nil {
			return err
		}
		client.OnStateChange = func(from, to gobreaker.State) {
			metrics.OptimizerBreakerState.Set(float64(to))
			logger.Warn("optimizer_breaker", slog.String("from", from.String()), slog.String("to", to.String()))
		}
		deps.Optimizer = client
	} else {
		logger.Info("optimizer_disabled")
	}

	svc := service.New(deps)
	hub := ws.NewHub(logger)
	svc.AddCallback(ws.NewBridge(hub))

	router := api.NewRouter(api.NewHandler(svc, logger), ws.NewHandler(hub, svc), cfg.Server.AllowedOrigins)
	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      handlers.LoggingHandler(os.Stdout, router),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", slog.String("addr", cfg.Server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting_down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	logger.Info("stopped")
	return nil
}

// connectRedis retries a few times and returns nil when the cache stays
// unreachable; the server then runs without it.
func connectRedis(ctx context.Context, cfg config.RedisConfig, logger *slog.Logger) *cache.RedisCache {
	var lastErr error
	for attempt := 1; attempt <= redisConnectAttempts; attempt++ {
		rc, err := cache.NewRedisCache(ctx, cfg.Addr, cfg.Password, cfg.DB, cfg.TTL)
		if err == nil {
			logger.Info("redis_connected", slog.String("addr", cfg.Addr))
			return rc
		}
		lastErr = err
		logger.Warn("redis_connect_failed", slog.Int("attempt", attempt), slog.Any("err", err))
		if attempt == redisConnectAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(time.Duration(attempt) * time.Second):
		}
	}
	logger.Warn("running without cache", slog.Any("err", lastErr))
	return nil
}
