package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"imaged/internal/httpapi"
	"imaged/internal/manager"
)

func newServeCmd(opts *options) *cobra.Command {
	var (
		addr          string
		preloadRecent int
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Flags().Changed("addr") || opts.cfg.Addr == "" {
				opts.cfg.Addr = addr
			}
			return serve(cmd.Context(), opts, preloadRecent)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8080", "HTTP listen address, e.g. :8080")
	cmd.Flags().IntVar(&preloadRecent, "preload-recent", 0, "Preload the N most recently used models at startup")
	return cmd
}

func serve(parent context.Context, opts *options, preloadRecent int) error {
	if parent == nil {
		parent = context.Background()
	}
	cfg := opts.cfg
	log := opts.log
	mgr, err := opts.newManager()
	if err != nil {
		return err
	}

	if rep := mgr.SanityCheck(); rep.Error != "" {
		log.Warn().Str("backend", rep.Backend).Int("models", rep.ModelsFound).Strs("missing", rep.MissingModels).Msg(rep.Error)
	} else {
		log.Info().Str("backend", rep.Backend).Int("models", rep.ModelsFound).Msg("sanity check ok")
	}
	preload(mgr, opts, preloadRecent)

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	httpapi.SetLogger(log)
	httpapi.SetDefaultLogLevel(requestLogLevelFor(cfg.LogLevel))
	httpapi.SetMaxBodyBytes(cfg.MaxBodyBytes)
	httpapi.SetGenerateTimeoutSeconds(cfg.GenerateTimeoutSeconds)
	httpapi.SetCORSOptions(cfg.CORSEnabled, cfg.CORSAllowedOrigins, cfg.CORSAllowedMethods, cfg.CORSAllowedHeaders)
	httpapi.SetBaseContext(ctx)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpapi.NewMux(mgr),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.Addr).Str("models_dir", cfg.ModelsDir).Msg("imaged listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			_ = mgr.Close()
			return err
		}
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown error")
	}
	if err := mgr.Close(); err != nil {
		log.Error().Err(err).Msg("close manager")
	}
	return nil
}

// preload starts background loads for the most recently used models, falling
// back to the default model when no history exists.
func preload(mgr *manager.Manager, opts *options, n int) {
	if n <= 0 {
		return
	}
	ids := mgr.RecentModels(n)
	if len(ids) == 0 && opts.cfg.DefaultModel != "" {
		ids = []string{opts.cfg.DefaultModel}
	}
	for _, id := range ids {
		op, err := mgr.Switch(context.Background(), id)
		if err != nil {
			opts.log.Warn().Err(err).Str("model", id).Msg("preload skipped")
			continue
		}
		opts.log.Info().Str("model", id).Str("op", op).Msg("preload started")
	}
}

// requestLogLevelFor maps the process log level to the default per-request
// HTTP log level.
func requestLogLevelFor(level string) string {
	switch level {
	case "debug", "trace":
		return "debug"
	case "warn", "error", "fatal", "panic":
		return "error"
	case "disabled":
		return "off"
	default:
		return "info"
	}
}
