package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/KaramelBytes/climalyzer/internal/observability"
	"github.com/KaramelBytes/climalyzer/internal/pipeline"
	"github.com/KaramelBytes/climalyzer/internal/server"
	"github.com/spf13/cobra"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the analysis web form and JSON API",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := requireConfig()
		if err != nil {
			return err
		}
		if err := c.Validate(); err != nil {
			return err
		}
		if cmd.Flags().Changed("addr") {
			c.HTTPAddr = serveAddr
		}

		metrics := observability.NewMetrics()
		opts := []pipeline.Option{pipeline.WithMetrics(metrics)}
		scfg := server.Config{Addr: c.HTTPAddr, DataDir: c.DataDir}
		if store := openHistory(c); store != nil {
			defer store.Close()
			opts = append(opts, pipeline.WithRecorder(store))
			scfg.Ready = store
		}
		runner := pipeline.New(settingsFrom(c), logger, opts...)
		srv := server.New(scfg, runner, logger)

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		errCh := make(chan error, 1)
		go func() {
			if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
			close(errCh)
		}()
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Serving %s on %s\n", c.DataDir, c.HTTPAddr)

		select {
		case err := <-errCh:
			if err != nil {
				return fmt.Errorf("http server: %w", err)
			}
		case <-ctx.Done():
		}
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), c.ShutdownTimeout())
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("http server shutdown error", "error", err)
		}
		logger.Info("shutdown complete")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides config http_addr)")
}
