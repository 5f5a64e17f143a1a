package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"tool_gateway/internal/httpapi"
	"tool_gateway/internal/utils"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP gateway",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			logger := utils.NewLogger("server")

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			// Create router with all dependencies
			handler, deps, err := httpapi.NewRouter(ctx, cfg)
			if err != nil {
				return fmt.Errorf("failed to build router: %w", err)
			}

			addr := ":" + cfg.HTTPPort
			server := &http.Server{
				Addr:         addr,
				Handler:      handler,
				ReadTimeout:  cfg.HTTP.ReadTimeout,
				WriteTimeout: cfg.HTTP.WriteTimeout,
				IdleTimeout:  cfg.HTTP.IdleTimeout,
			}

			serveErr := make(chan error, 1)
			go func() {
				logger.Info("Tool gateway listening", "addr", addr)
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					serveErr <- err
				}
				close(serveErr)
			}()

			select {
			case <-ctx.Done():
			case err := <-serveErr:
				if err != nil {
					_ = deps.Shutdown(context.Background())
					return fmt.Errorf("server error: %w", err)
				}
			}

			logger.Info("Shutting down server")

			// Graceful shutdown with timeout
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
			defer cancel()

			if err := server.Shutdown(shutdownCtx); err != nil {
				logger.Warn("Server forced to shutdown", "error", err)
			}

			// Stop the billing worker, flush audit sinks and close connections
			if err := deps.Shutdown(shutdownCtx); err != nil {
				logger.Error("Failed to shut down cleanly", "error", err)
			}

			logger.Info("Server exited")
			return nil
		},
	}
}
