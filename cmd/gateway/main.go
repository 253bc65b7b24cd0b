package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mrmushfiq/llm0-code-gateway/internal/gateway/completion"
	"github.com/mrmushfiq/llm0-code-gateway/internal/gateway/handlers"
	"github.com/mrmushfiq/llm0-code-gateway/internal/gateway/health"
	"github.com/mrmushfiq/llm0-code-gateway/internal/gateway/metrics"
	"github.com/mrmushfiq/llm0-code-gateway/internal/gateway/providers"
	"github.com/mrmushfiq/llm0-code-gateway/internal/gateway/ratelimit"
	"github.com/mrmushfiq/llm0-code-gateway/internal/shared/config"
	"github.com/mrmushfiq/llm0-code-gateway/internal/shared/logger"
	"github.com/mrmushfiq/llm0-code-gateway/internal/shared/redis"
)

func main() {
	// Load configuration
	cfg, err := config.Get()
	if err != nil {
		bootLog := logger.New("info", "json")
		bootLog.Fatal().Err(err).Msg("failed to load config")
	}

	log := logger.New(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("environment", cfg.Environment).
		Str("provider", cfg.Provider).
		Str("model", cfg.Model).
		Stringer("rate_limit", cfg.RateLimit).
		Msg("starting code gateway")

	// Setup context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize upstream provider
	provider, err := providers.New(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize upstream provider")
	}

	recorder := metrics.New(nil)

	// Rate limit store: Redis when configured, otherwise in-process
	var store ratelimit.Store = ratelimit.NewMemoryStore()
	if cfg.RedisURL != "" {
		redisClient, err := redis.New(ctx, cfg.RedisURL)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to Redis")
		}
		defer redisClient.Close()
		store = ratelimit.NewRedisStore(redisClient)
		log.Info().Msg("using Redis rate limit store")
	}
	limiter := ratelimit.New(store, cfg.RateLimit.Limit, cfg.RateLimit.Window)

	gateway := completion.New(provider, recorder, cfg.Model, cfg.MaxTokens)
	prober := health.NewProber(provider, cfg.Model, cfg.HealthTimeout, recorder)

	h := handlers.NewHandler(gateway, prober, limiter, recorder, handlers.Options{
		Environment:    cfg.Environment,
		EnableMetrics:  cfg.EnableMetrics,
		RequestTimeout: cfg.RequestTimeout,
	})
	router := handlers.NewRouter(h, handlers.NewMiddleware(recorder), log, handlers.RouterOptions{
		CORSOrigins:       cfg.CORSOrigins,
		TrustProxyHeaders: cfg.TrustProxyHeaders,
	})

	// HTTP server. No WriteTimeout: streamed responses may run for minutes.
	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Info().Msg("shutting down gracefully")

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown error")
	}

	log.Info().Msg("server stopped")
}
