package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"pdf_compactor/api"
)

const (
	// ServerReadTimeout is the HTTP server read timeout
	ServerReadTimeout = 60 * time.Second

	// ServerWriteTimeout is the HTTP server write timeout. Extreme
	// compression of a large upload runs inside one request.
	ServerWriteTimeout = 10 * time.Minute

	// ServerIdleTimeout is the HTTP server idle timeout
	ServerIdleTimeout = 60 * time.Second

	// GracefulShutdownTimeout is the timeout for graceful shutdown
	GracefulShutdownTimeout = 10 * time.Second
)

func newServeCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.serve()
		},
	}

	cmd.Flags().StringVar(&a.cfg.Port, "port", a.cfg.Port, "server port")
	cmd.Flags().Int64Var(&a.cfg.MaxFileSize, "max-file-size", a.cfg.MaxFileSize, "maximum upload size in bytes")
	cmd.Flags().StringVar(&a.cfg.RunsDir, "runs-dir", a.cfg.RunsDir, "directory holding uploads and results")
	cmd.Flags().DurationVar(&a.cfg.RunTTL, "run-ttl", a.cfg.RunTTL, "how long results stay downloadable")
	return cmd
}

func (a *app) serve() error {
	compressor, renderer := a.newCompressor()
	defer renderer.Close()
	a.warnIfNoBackend()

	config := &api.Config{
		MaxFileSize:      a.cfg.MaxFileSize,
		RunsDir:          a.cfg.RunsDir,
		RunTTL:           a.cfg.RunTTL,
		Defaults:         a.cfg.Pipeline(),
		Probe:            a.cfg.SplitProbe(),
		Compressor:       compressor,
		Renderer:         renderer,
		BackendAvailable: a.backendAvailable,
		Logger:           a.log,
	}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.MaxMultipartMemory = 32 << 20

	api.SetupRoutes(r, config)

	// Create HTTP server with timeout settings
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", a.cfg.Port),
		Handler:      r,
		ReadTimeout:  ServerReadTimeout,
		WriteTimeout: ServerWriteTimeout,
		IdleTimeout:  ServerIdleTimeout,
	}

	ctx, stop := signalContext()
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		a.log.Info().
			Str("addr", srv.Addr).
			Int64("max_file_size", config.MaxFileSize).
			Str("runs_dir", config.RunsDir).
			Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("start server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	a.log.Info().Msg("shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), GracefulShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	a.log.Info().Msg("server exited gracefully")
	return nil
}
