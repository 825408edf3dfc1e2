// Command docflowd serves the document API and runs processing workers in one process.
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

	"golang.org/x/sync/errgroup"

	"github.com/Lllllllleong/pageflow/internal/api"
	"github.com/Lllllllleong/pageflow/internal/config"
	"github.com/Lllllllleong/pageflow/internal/queue"
	"github.com/Lllllllleong/pageflow/internal/services"
)

const shutdownTimeout = 30 * time.Second

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("docflowd exited with error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pipeline, err := services.NewPipeline(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := pipeline.Close(); err != nil {
			slog.Error("Failed to close pipeline clients.", "error", err)
		}
	}()

	backend, err := queue.New(ctx, cfg, pipeline.Processor.Process, pipeline.Processor.MarkFailed, slog.Default())
	if err != nil {
		return err
	}

	handler := api.NewHandler(backend, pipeline.Status, pipeline.Store)
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.NewRouter(handler, 30*time.Second),
		ReadHeaderTimeout: 10 * time.Second,
	}

	eg, gctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		slog.Info("HTTP server listening", "addr", cfg.HTTPAddr, "queue", cfg.QueueBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	eg.Go(func() error {
		return backend.Run(gctx)
	})
	eg.Go(func() error {
		<-gctx.Done()
		slog.Info("Shutting down.")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Graceful HTTP shutdown failed.", "error", err)
		}
		return backend.Shutdown(shutdownCtx)
	})

	return eg.Wait()
}
