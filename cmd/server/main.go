package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/erauner12/todosync/internal/db"
	"github.com/erauner12/todosync/internal/httpapi"
	"github.com/erauner12/todosync/internal/logging"
	"github.com/erauner12/todosync/internal/service/todoservice"
	"github.com/rs/zerolog/log"
)

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func envInt(k string, def int) int {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Warn().Str("key", k).Str("value", v).Msg("ignoring non-integer env value")
		return def
	}
	return n
}

func main() {
	closer, err := logging.Setup(logging.Options{
		Service: "todosync-server",
		Level:   env("LOG_LEVEL", "info"),
		Env:     env("ENV", "dev"),
		File:    env("LOG_FILE", ""),
	})
	if err != nil {
		log.Fatal().Err(err).Msg("invalid logging configuration")
	}
	defer closer.Close()

	ctx := context.Background()

	// Storage: postgres when DATABASE_URL is set, memory otherwise
	pgURL := env("DATABASE_URL", "")
	store := env("STORE", "")
	if store == "" {
		store = "memory"
		if pgURL != "" {
			store = "postgres"
		}
	}

	var repo todoservice.Repository
	switch store {
	case "memory":
		log.Warn().Msg("using in-memory store, data is lost on restart")
		repo = todoservice.NewMemoryRepository()
	case "postgres":
		if pgURL == "" {
			log.Fatal().Msg("DATABASE_URL is required for STORE=postgres")
		}
		pool, err := db.Open(ctx, pgURL)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to postgres")
		}
		defer pool.Close()
		if err := db.EnsureSchema(ctx, pool); err != nil {
			log.Fatal().Err(err).Msg("failed to create schema")
		}
		repo = todoservice.NewPGRepository(pool)
	default:
		log.Fatal().Str("store", store).Msg("STORE must be memory or postgres")
	}

	srv := &httpapi.Server{
		Todos: todoservice.NewService(repo),
		RateLimitConfig: httpapi.RateLimitInfo{
			WindowSeconds: envInt("RATE_LIMIT_WINDOW_SECONDS", httpapi.DefaultRateLimitConfig.WindowSeconds),
			MaxRequests:   envInt("RATE_LIMIT_MAX_REQUESTS", httpapi.DefaultRateLimitConfig.MaxRequests),
			Burst:         envInt("RATE_LIMIT_BURST", httpapi.DefaultRateLimitConfig.Burst),
		},
	}

	httpAddr := env("HTTP_ADDR", ":3000")
	httpServer := &http.Server{
		Addr:         httpAddr,
		Handler:      srv.Routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info().Str("addr", httpAddr).Str("store", store).Msg("starting HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Graceful shutdown on SIGINT/SIGTERM
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Info().Msg("shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	log.Info().Msg("server stopped")
}
