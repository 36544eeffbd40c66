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

	httpadapter "github.com/vkuzmich/fintech-rag/internal/adapters/http"
	"github.com/vkuzmich/fintech-rag/internal/bootstrap"
	"github.com/vkuzmich/fintech-rag/internal/config"
	"github.com/vkuzmich/fintech-rag/internal/observability/logging"
	"github.com/vkuzmich/fintech-rag/internal/observability/metrics"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config error", "error", err)
		os.Exit(1)
	}
	logging.Setup("api", cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg)
	if err != nil {
		slog.Error("bootstrap error", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	if err := app.WarmSparseIndex(ctx); err != nil {
		slog.Error("sparse index warmup error", "error", err)
		os.Exit(1)
	}

	// Corpus refresh events keep this instance's keyword index in sync with
	// what the worker just indexed.
	go func() {
		err := app.Queue.SubscribeCorpusUpdated(ctx, func(handlerCtx context.Context) error {
			refreshCtx, cancel := context.WithTimeout(handlerCtx, 2*time.Minute)
			defer cancel()
			return app.RefreshSparseIndex(refreshCtx)
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("corpus subscription error", "error", err)
		}
	}()

	m := metrics.NewHTTPServerMetrics("api")
	router := httpadapter.NewRouter(app.AnswerUC, app.IngestUC, app.Repo, m, app.RateLimiter).Handler()
	server := &http.Server{
		Addr:         ":" + cfg.APIPort,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("api_listening", "port", cfg.APIPort)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("api server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("api shutdown error", "error", err)
	}
}
