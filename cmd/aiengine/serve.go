package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/brubru/aiengine/pkg/storage"
	"github.com/brubru/aiengine/pkg/storage/blob"
	transporthttp "github.com/brubru/aiengine/pkg/transport/http"
)

// ServeConfig holds the flags of the serve command
type ServeConfig struct {
	Port          int
	MetricsAddr   string
	SweepInterval time.Duration
}

// NewServeCmd creates the serve command
func NewServeCmd(flags *globalFlags) *cobra.Command {
	cfg := &ServeConfig{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP query service",
		Long: `Run the HTTP query service.

Endpoints:
  POST   /v1/query                   run a query (JSON reply or SSE stream)
  DELETE /v1/query/{id}              cancel an in-flight query by request ID
  GET    /v1/discussions/{chatId}    read a stored discussion
  DELETE /v1/discussions/{chatId}    delete a stored discussion
  GET    /healthz                    liveness

Requests are authenticated per the auth section of the config; the
scope of an authenticated caller selects its stored discussions.
Prometheus metrics are served on --metrics-addr when metrics are enabled.
Expired uploads are removed from the blob store every --sweep-interval.

Examples:
  aiengine serve
  aiengine serve --port 9090 --metrics-addr :9091
  aiengine serve --config /etc/aiengine/config.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), flags.ConfigFile, cfg)
		},
	}

	cmd.Flags().IntVar(&cfg.Port, "port", 0, "Listen port (default: server.port of the config)")
	cmd.Flags().StringVar(&cfg.MetricsAddr, "metrics-addr", ":9090", "Listen address of the metrics endpoint")
	cmd.Flags().DurationVar(&cfg.SweepInterval, "sweep-interval", 10*time.Minute, "Interval between blob store sweeps, 0 disables")

	return cmd
}

func runServe(ctx context.Context, configFile string, sc *ServeConfig) error {
	a, err := newApp(ctx, configFile)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			slog.Warn("shutdown cleanup failed", "error", err)
		}
	}()

	port := a.cfg.Server.Port
	if sc.Port != 0 {
		port = sc.Port
	}

	var discussions storage.DiscussionStore
	if a.store != nil {
		discussions = a.store
	}
	srv := transporthttp.NewServer(a.engine, discussions,
		transporthttp.WithAddr(fmt.Sprintf(":%d", port)),
		transporthttp.WithMaxBodySize(a.cfg.Server.MaxBodySize),
		transporthttp.WithShutdownTimeout(a.cfg.Server.ShutdownTimeout),
		transporthttp.WithHTTPMiddleware(authMiddleware(a.cfg.Auth)),
	)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if a.cfg.Observability.Metrics.Enabled && sc.MetricsAddr != "" {
		go serveMetrics(ctx, sc.MetricsAddr, a.cfg.Observability.Metrics.Path)
	}
	if a.blobs != nil && sc.SweepInterval > 0 {
		go sweepBlobs(ctx, a.blobs, sc.SweepInterval)
	}

	slog.Info("server starting", "port", port, "storage", a.cfg.Storage.Type, "environments", len(a.cfg.Environments))
	return srv.ListenAndServe(ctx)
}

// serveMetrics exposes the default Prometheus registry until ctx is done.
func serveMetrics(ctx context.Context, addr, path string) {
	if path == "" {
		path = "/metrics"
	}
	mux := http.NewServeMux()
	mux.Handle(path, promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownHTTP(srv, 5*time.Second, "metrics endpoint")
	}()

	slog.Info("metrics endpoint starting", "addr", addr, "path", path)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("metrics endpoint failed", "error", err)
	}
}

// shutdownHTTP gracefully stops srv, waiting at most timeout. A failed
// shutdown is logged and returned.
func shutdownHTTP(srv *http.Server, timeout time.Duration, name string) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		slog.Warn(name+" shutdown failed", "error", err)
		return err
	}
	return nil
}

// sweepBlobs removes expired uploads every interval until ctx is done.
func sweepBlobs(ctx context.Context, blobs *blob.Store, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := blobs.Sweep(ctx)
			if err != nil {
				slog.Warn("blob sweep incomplete", "removed", n, "error", err)
				continue
			}
			if n > 0 {
				slog.Info("expired uploads removed", "count", n)
			}
		}
	}
}
