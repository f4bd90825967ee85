package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/iudanet/extsync/internal/config"
	"github.com/iudanet/extsync/internal/server/handlers"
	"github.com/iudanet/extsync/internal/server/middleware"
	"github.com/iudanet/extsync/internal/server/storage/sqlite"
)

var (
	// Version information set via ldflags during build
	Version   = "dev"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

const (
	readHeaderTimeout = 10 * time.Second
	shutdownTimeout   = 10 * time.Second

	// Credential endpoints take at most this many requests per IP per minute.
	authRateLimit = 10
)

func main() {
	showVersion := flag.Bool("version", false, "Show version information")
	configPath := flag.String("config", "", "Path to config file")
	listenAddr := flag.String("listen", "", "Listen address (overrides config)")
	flag.Parse()

	if *showVersion {
		printVersion()
		os.Exit(0)
	}

	if err := run(*configPath, *listenAddr); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, listenAddr string) error {
	cfg, err := config.LoadServer(configPath)
	if err != nil {
		return err
	}
	if listenAddr != "" {
		cfg.ListenAddr = listenAddr
	}
	if cfg.JWTSecret == "" {
		return fmt.Errorf("jwt_secret must be set in the config")
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := sqlite.New(ctx, cfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("failed to close storage", "error", err)
		}
	}()

	jwtConfig := handlers.JWTConfig{
		Secret:         []byte(cfg.JWTSecret),
		AccessTokenTTL: cfg.AccessTokenTTL.Std(),
	}

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           buildRouter(logger, store, jwtConfig),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Relay server started", "addr", cfg.ListenAddr, "version", Version)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	logger.Info("Relay server stopped")
	return nil
}

func buildRouter(logger *slog.Logger, store *sqlite.Storage, jwtConfig handlers.JWTConfig) http.Handler {
	devices := handlers.NewDevicesHandler(logger, store, jwtConfig)
	snapshots := handlers.NewSnapshotsHandler(logger, store)
	health := handlers.NewHealthHandler(logger, Version)

	authLimit := middleware.RateLimitMiddleware(authRateLimit, time.Minute, logger)
	authed := middleware.AuthMiddleware(logger, jwtConfig)

	mux := http.NewServeMux()
	mux.Handle("POST /api/v1/devices/register", authLimit(http.HandlerFunc(devices.Register)))
	mux.Handle("POST /api/v1/devices/login", authLimit(http.HandlerFunc(devices.Login)))
	mux.Handle("/api/v1/snapshots", authed(http.HandlerFunc(snapshots.HandleSnapshots)))
	mux.HandleFunc("GET /api/v1/health", health.Health)

	var handler http.Handler = mux
	handler = middleware.LoggingWithSkip(logger, []string{"/api/v1/health"})(handler)
	handler = middleware.RecoveryMiddleware(logger)(handler)
	return handler
}

func printVersion() {
	fmt.Printf("extsync relay server\n")
	fmt.Printf("Version:    %s\n", Version)
	fmt.Printf("Build Date: %s\n", BuildDate)
	fmt.Printf("Git Commit: %s\n", GitCommit)
}
