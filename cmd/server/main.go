package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/atlekbai/accessql/internal/app"
	"github.com/atlekbai/accessql/internal/config"
	"github.com/atlekbai/accessql/internal/handler"
	"github.com/atlekbai/accessql/internal/server"
	"github.com/atlekbai/accessql/internal/service"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, path, err := config.Load(os.Getenv("ACCESSQL_CONFIG"))
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger := cfg.Logger()
	slog.SetDefault(logger)
	if path != "" {
		logger.Info("config loaded", "path", path)
	}

	env, err := app.Open(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to start", "error", err)
		os.Exit(1)
	}
	defer env.Close()

	services := []server.ConnectService{
		service.NewAccessService(env.Filter, env.Compiler, env.Cache),
		service.NewMetadataService(env.Cache),
	}
	rest := handler.New(env.Cache, env.Filter)

	srv := &http.Server{
		Addr:    cfg.Addr(),
		Handler: server.NewHandler(logger, services, rest.Register),
	}

	go func() {
		<-ctx.Done()
		logger.Info("shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	logger.Info("listening", "addr", cfg.Addr())
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}
