package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/Sternrassler/pwa-posts-offline/internal/config"
	"github.com/Sternrassler/pwa-posts-offline/pkg/logging"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", getEnv("PWA_CONFIG", ""), "path to offline-proxy.yaml")
	flag.Parse()

	if err := run(configPath); err != nil {
		log.Fatal().Err(err).Msg("Offline proxy failed")
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logging.Setup(cfg.Logging())
	logger := logging.NewLogger("proxy")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	srv, err := newServer(cfg, store, &http.Client{})
	if err != nil {
		return err
	}
	if err := srv.install(ctx, cfg.Worker.Version); err != nil {
		// keep serving: requests pass through until a later install succeeds
		logger.Error().Err(err).Msg("Initial install failed")
	}
	if cfg.Worker.SyncEvery > 0 {
		go srv.reg.SyncLoop(ctx, cfg.Worker.SyncTag, cfg.Worker.SyncEvery)
	}

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}

	httpServer := &http.Server{
		Handler:           srv.routes(),
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
	}

	go func() {
		logger.Info().
			Str("addr", addr).
			Str("origin", cfg.Server.Origin).
			Str("storage", cfg.Storage.Driver).
			Msg("Offline proxy listening")
		if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("Server error")
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	logger.Info().Msg("Shutting down")
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

