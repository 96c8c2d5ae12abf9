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

	"github.com/askdb/askdb/internal/api"
	"github.com/askdb/askdb/internal/api/uistatic"
	"github.com/askdb/askdb/internal/app"
	"github.com/askdb/askdb/internal/observability"
)

func main() {
	cfg, _, err := app.LoadConfig("askdb-api", os.LookupEnv)
	if err != nil {
		_, _ = fmt.Fprintln(os.Stderr, app.FatalMessage(err))
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg, os.Stdout)
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := app.Build(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to build chat runtime", slog.String("error", observability.Mask(err.Error())))
		os.Exit(1)
	}

	handler := api.NewHandler(cfg, api.Dependencies{
		Logger:   logger,
		Chat:     rt.Chat,
		Markdown: api.NewMarkdownRenderer(),
		UI:       uistatic.Handler(),
		Readiness: api.CombineReadinessChecks(
			rt.DB.Ping,
			api.CheckObjectStoreConfig(cfg),
		),
		DependencyTimout: 5 * time.Second,
	})
	server := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	go func() {
		logger.Info("starting api server", slog.String("addr", cfg.HTTP.Address))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api server failed", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("shutting down api server")
	exitCode := 0
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", slog.Any("error", err))
		_ = server.Close()
		exitCode = 1
	}
	if err := rt.Close(shutdownCtx); err != nil {
		logger.Error("closing chat runtime failed", slog.Any("error", err))
		exitCode = 1
	}
	os.Exit(exitCode)
}
