package main

import (
	"arbiter/backend/internal/api/handler"
	"arbiter/backend/internal/app"
	"arbiter/backend/internal/config"
	"arbiter/backend/internal/logging"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	logging.Init(logging.ParseLevel(cfg.LogLevel), cfg.LogFormat)
	log := logging.New("main")
	log.Info("starting arbiter backend", "addr", cfg.HTTPAddr, "storage", cfg.StorageDriver)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		log.Error("failed to initialise dependencies", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Warn("close dependencies", "error", err)
		}
	}()

	go a.RunHub(ctx)

	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	h := handler.NewHandler(a.Cases, a.Hearings, a.Appeals, a.Verdicts, a.Hub, handler.NewAuthenticator(cfg.JWTSecret))
	r := handler.NewRouter(h)

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server stopped", "error", err)
		}
	case <-ctx.Done():
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Warn("graceful shutdown failed", "error", err)
		}
	}
}
