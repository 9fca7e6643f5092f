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

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"

	mods "github.com/goliatone/go-mods"
	"github.com/goliatone/go-mods/adapters/gologger"
	"github.com/goliatone/go-mods/core"
	"github.com/goliatone/go-mods/metrics"
)

const (
	pruneInterval  = time.Hour
	processedTTL   = 24 * time.Hour
	readHeaderWait = 5 * time.Second
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "mods-server:", err)
		os.Exit(1)
	}
}

func run() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg, err := core.LoadConfig(ctx, core.NewCfgxConfigProvider(core.EnvLoader{}), nil, core.Config{})
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := gologger.NewSlogLogger(newLogger(cfg.Log.Level)).GetLogger(cfg.ServiceName)

	recorder := metrics.NewPrometheusRecorder(nil)
	opts := []mods.Option{
		mods.WithLogger(logger),
		mods.WithMetricsRecorder(recorder),
	}

	db, err := openPersistence(ctx, cfg.Store)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
		opts = append(opts, mods.WithPersistenceClient(db.client), mods.WithCacheService(db.cache))
	}

	rt, err := mods.New(cfg, opts...)
	if err != nil {
		return fmt.Errorf("build runtime: %w", err)
	}
	defer rt.Close()

	server := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           newRouter(rt, recorder, logger),
		ReadHeaderTimeout: readHeaderWait,
		ReadTimeout:       cfg.HTTP.ReadTimeout,
		WriteTimeout:      cfg.HTTP.WriteTimeout,
	}

	go pruneProcessedEvents(ctx, rt, logger)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("mods-server: listening", "addr", cfg.HTTP.Addr, "store", cfg.Store.Driver)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("mods-server: shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func pruneProcessedEvents(ctx context.Context, rt *mods.Runtime, logger core.Logger) {
	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			pruned, err := rt.PruneProcessedEvents(ctx, now.Add(-processedTTL))
			if err != nil {
				logger.Warn("mods-server: prune processed events failed", "error", err)
				continue
			}
			if pruned > 0 {
				logger.Debug("mods-server: pruned processed events", "count", pruned)
			}
		}
	}
}

func newLogger(level string) *slog.Logger {
	return slog.New(tint.NewHandler(os.Stdout, &tint.Options{
		Level:      gologger.ParseLevel(level),
		TimeFormat: time.RFC3339,
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if s, ok := a.Value.Any().(string); ok && s == "" {
				return slog.Attr{}
			}
			return a
		},
	}))
}
