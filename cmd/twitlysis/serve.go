package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Cryonoid/TwitLysis/internal/api"
	"github.com/Cryonoid/TwitLysis/internal/metrics"
)

var serveAddr string

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides server.addr)")
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serves the search stream and stored results over HTTP.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		p, backend, err := newPipeline(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer backend.Close()

		addr := cfg.Server.Addr
		if serveAddr != "" {
			addr = serveAddr
		}
		srv := &http.Server{
			Addr:              addr,
			Handler:           api.New(p, backend, cfg.Server.SearchRate, logger).Router(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		var ms *metrics.Server
		if cfg.Server.MetricsPort > 0 {
			ms = metrics.Start(cfg.Server.MetricsPort)
			logger.Info("metrics listening", "port", cfg.Server.MetricsPort)
		}

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			logger.Info("api listening", "addr", addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			logger.Info("shutting down")
			if err := ms.Stop(shutdownCtx); err != nil {
				logger.Warn("metrics shutdown", "error", err)
			}
			return srv.Shutdown(shutdownCtx)
		})
		return g.Wait()
	},
}
