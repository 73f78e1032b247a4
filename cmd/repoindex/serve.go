package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dshills/repoindex/internal/mcp"
)

func newServeCmd(c *cli) *cobra.Command {
	var metricsAddr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the MCP server on stdio",
		Long: `Run the Model Context Protocol server on stdin/stdout. Logs go to stderr.
With --metrics-addr (or metrics.addr in the config), indexing metrics are
served at /metrics.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := c.open(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			if metricsAddr == "" {
				metricsAddr = c.cfg.Metrics.Addr
			}
			if metricsAddr != "" {
				srv := metricsServer(metricsAddr, a.Registry)
				go func() {
					if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						c.logger.Error("metrics server failed", zap.Error(err))
					}
				}()
				defer func() {
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					_ = srv.Shutdown(shutdownCtx)
				}()
				c.logger.Info("serving metrics", zap.String("addr", metricsAddr))
			}

			c.logger.Info("repoindex MCP server starting", zap.String("version", version))
			server := mcp.NewServer(a.Indexer, a.Searcher, version, c.logger.Named("mcp"))
			err = server.Serve(ctx, os.Stdin, os.Stdout)
			if errors.Is(err, context.Canceled) {
				c.logger.Info("server stopped")
				return nil
			}
			return err
		},
	}
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address (e.g. :9090)")
	return cmd
}

func metricsServer(addr string, reg *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
