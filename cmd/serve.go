package cmd

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/lehigh-university-libraries/docprep/internal/handlers"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	var (
		port        string
		concurrency int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the conversion HTTP API",
		Long: `Starts an HTTP API for batch PDF conversion.

Clients upload files to /api/batches and poll the returned session for
progress; finished batches expose their converted files as a zip
archive. Credentials come from the environment or the config store.`,
		Example: `  # Start server on default port 8888
  docprep serve

  # Start server on custom port
  docprep serve --port 3000`,
		RunE: func(cmd *cobra.Command, args []string) error {
			handler := handlers.New(handlers.Config{
				Credentials: resolveCredentials("", ""),
				Concurrency: concurrency,
			})

			// Set up routes
			mux := http.NewServeMux()
			mux.HandleFunc("/api/batches", handler.HandleBatches)
			mux.HandleFunc("/api/batches/", handler.HandleBatchDetail)
			mux.HandleFunc("/healthcheck", handler.HandleHealthcheck)

			addr := ":" + port
			server := &http.Server{
				Addr:    addr,
				Handler: mux,
			}

			// Start server in goroutine
			serverErr := make(chan error, 1)
			go func() {
				slog.Info("Docprep API listening", "addr", addr, "url", "http://localhost"+addr)
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					serverErr <- err
				}
			}()

			// Wait for context cancellation (Ctrl+C) or server error
			select {
			case <-cmd.Context().Done():
				slog.Info("Shutting down server...")
				// Give server 5 seconds to shut down gracefully
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := server.Shutdown(shutdownCtx); err != nil {
					slog.Error("Server shutdown failed", "err", err)
					return err
				}
				slog.Info("Server stopped")
				return nil
			case err := <-serverErr:
				return err
			}
		},
	}

	cmd.Flags().StringVarP(&port, "port", "p", "8888", "Port to listen on")
	cmd.Flags().IntVarP(&concurrency, "concurrency", "c", 4, "Files converted in parallel per batch")

	return cmd
}
