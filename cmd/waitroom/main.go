// Waitroom server — virtual queue coordination: queue lifecycle over
// HTTP, live snapshot streams over websocket, OAuth sign-in, and Web
// Push notifications.
package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/waitroomhq/waitroom/pkg/api"
	"github.com/waitroomhq/waitroom/pkg/auth"
	"github.com/waitroomhq/waitroom/pkg/captcha"
	"github.com/waitroomhq/waitroom/pkg/cleanup"
	"github.com/waitroomhq/waitroom/pkg/config"
	"github.com/waitroomhq/waitroom/pkg/coordinator"
	"github.com/waitroomhq/waitroom/pkg/database"
	"github.com/waitroomhq/waitroom/pkg/events"
	"github.com/waitroomhq/waitroom/pkg/logging"
	"github.com/waitroomhq/waitroom/pkg/push"
	"github.com/waitroomhq/waitroom/pkg/shortcode"
	"github.com/waitroomhq/waitroom/pkg/store"
	"github.com/waitroomhq/waitroom/pkg/version"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	logging.Setup()

	configPath := flag.String("config",
		getEnv("CONFIG_PATH", "./waitroom.yaml"),
		"Path to configuration file")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file, continuing with existing environment")
	}

	slog.Info("Starting waitroom",
		"version", version.Full(),
		"config", *configPath)

	// 1. Configuration
	cfg, err := config.Initialize(*configPath)
	if err != nil {
		slog.Error("Failed to initialize configuration", "error", err)
		os.Exit(1)
	}

	// 2. Database (runs embedded migrations)
	ctx := context.Background()
	dbConfig, err := database.LoadConfigFromEnv()
	if err != nil {
		slog.Error("Failed to load database config", "error", err)
		os.Exit(1)
	}
	dbClient, err := database.NewClient(ctx, dbConfig)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			slog.Error("Error closing database client", "error", err)
		}
	}()
	slog.Info("Connected to PostgreSQL database")

	st := store.New(dbClient.DB())

	// 3. Short-code directory, optionally redis-cached
	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			slog.Warn("Redis unreachable at startup, directory falls back to database", "error", err)
		} else {
			slog.Info("Connected to redis", "addr", cfg.Redis.Addr)
		}
	}
	directory := shortcode.NewDirectory(rdb, st, cfg.Queue.DirectoryTTL)

	// 4. Analytics recorder and push dispatcher
	recorder := events.NewRecorder(st, 1024)
	dispatcher := push.NewDispatcher(st, recorder, push.NewSender(cfg.Push), cfg.Push.QueueSize)

	// 5. Coordinator registry
	registry := coordinator.NewRegistry(st, cfg.Queue, recorder, dispatcher)

	// 6. Auth and captcha
	authSvc := auth.NewService(st, cfg.Auth)
	apiBase := getEnv("API_BASE_URL", "http://localhost:"+cfg.Server.Port)
	flow := auth.NewFlow(st, cfg.Auth, apiBase)
	verifier := captcha.NewVerifier(cfg.Captcha.TurnstileSecret)

	// 7. Retention janitor
	janitor := cleanup.New(st, cfg.Retention)

	// 8. HTTP server
	httpServer := api.NewServer(cfg, st, registry, directory, authSvc, flow, verifier, recorder, dispatcher)

	errCh := make(chan error, 1)
	go func() {
		addr := ":" + cfg.Server.Port
		slog.Info("HTTP server listening", "addr", addr)
		if err := httpServer.Start(addr); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			errCh <- err
		}
	}()

	// 9. Wait for shutdown signal or server error
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig)
	case err := <-errCh:
		slog.Error("Server error triggered shutdown", "error", err)
	}

	// 10. Graceful shutdown: stop intake first, then drain the workers.
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	registry.Shutdown()
	janitor.Stop()
	dispatcher.Close()
	recorder.Close()

	slog.Info("Shutdown complete")
}
