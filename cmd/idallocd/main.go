// idallocd hosts an id-compressor node: it owns one IdCompressor, relays
// its finalize-range acknowledgements through a Broadcaster, and exposes
// Prometheus metrics and a health endpoint over plain HTTP.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/arkose-id/idalloc/internal/broadcaster"
	"github.com/arkose-id/idalloc/internal/config"
	"github.com/arkose-id/idalloc/internal/idcompressor"
	"github.com/arkose-id/idalloc/internal/idtypes"
	"github.com/arkose-id/idalloc/internal/metrics"
	"github.com/arkose-id/idalloc/internal/node"
	appversion "github.com/arkose-id/idalloc/internal/version"
)

const shutdownTimeout = 10 * time.Second

// generateInterval paces the demo session's GenerateID/TakeAndSubmitRange
// loop. Real callers drive a Node from their own workload instead.
const generateInterval = 500 * time.Millisecond

func main() {
	os.Exit(run())
}

func run() int {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "idallocd",
		Short: "Run the id-compressor allocator node",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDaemon(configPath)
		},
	}
	rootCmd.Flags().StringVar(&configPath, "config", "", "path to configuration file (YAML)")

	if err := rootCmd.Execute(); err != nil {
		return 1
	}
	return 0
}

func runDaemon(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		slog.New(slog.NewTextHandler(os.Stderr, nil)).Error("failed to load configuration",
			slog.String("error", err.Error()),
		)
		return err
	}

	logLevel := new(slog.LevelVar)
	logLevel.Set(config.ParseLogLevel(cfg.Log.Level))
	logger := newLogger(cfg.Log, logLevel)

	sessionID := idtypes.SessionId(idtypes.StableIdFromBytes(uuid.New()))

	logger.Info("idallocd starting",
		slog.String("version", appversion.Version),
		slog.String("http_addr", cfg.HTTP.Addr),
		slog.Uint64("cluster_capacity", cfg.ClusterCapacity),
		slog.String("session_id", fmt.Sprintf("%x%x", sessionID.Hi, sessionID.Lo)),
	)

	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(reg)

	compressor := idcompressor.New(sessionID)
	if err := compressor.SetClusterCapacity(cfg.ClusterCapacity); err != nil {
		return fmt.Errorf("set cluster capacity: %w", err)
	}

	b, err := newBroadcaster(cfg.Broadcaster, logger)
	if err != nil {
		return fmt.Errorf("create broadcaster: %w", err)
	}
	defer func() {
		if err := b.Close(); err != nil {
			logger.Warn("broadcaster close failed", slog.String("error", err.Error()))
		}
	}()

	n := node.New(compressor, b, collector, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		n.Run(gCtx)
		return nil
	})

	g.Go(func() error {
		return runDemoLoop(gCtx, n, logger)
	})

	httpSrv := newHTTPServer(cfg, reg)
	g.Go(func() error {
		return listenAndServe(gCtx, httpSrv, cfg.HTTP.Addr)
	})

	g.Go(func() error {
		<-gCtx.Done()
		return gracefulShutdown(gCtx, httpSrv)
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("run idallocd: %w", err)
	}

	logger.Info("idallocd stopped")
	return nil
}

// runDemoLoop periodically generates an id and submits the resulting range
// for finalization, so a standalone node makes observable progress without
// a caller driving it. Production use wires GenerateID/TakeAndSubmitRange
// into real request handling instead of this loop.
func runDemoLoop(ctx context.Context, n *node.Node, logger *slog.Logger) error {
	ticker := time.NewTicker(generateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := n.GenerateID(ctx); err != nil {
				if errors.Is(err, context.Canceled) {
					return nil
				}
				logger.Warn("demo generate failed", slog.String("error", err.Error()))
				continue
			}
			if err := n.TakeAndSubmitRange(ctx); err != nil {
				if errors.Is(err, context.Canceled) {
					return nil
				}
				logger.Warn("demo submit failed", slog.String("error", err.Error()))
			}
		}
	}
}

func newBroadcaster(cfg config.BroadcasterConfig, logger *slog.Logger) (broadcaster.Broadcaster, error) {
	switch cfg.Kind {
	case "local", "":
		return broadcaster.NewLocal(logger), nil
	default:
		return nil, fmt.Errorf("unknown broadcaster kind %q", cfg.Kind)
	}
}

func newHTTPServer(cfg *config.Config, reg *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle(cfg.Metrics.Path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	return &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func listenAndServe(ctx context.Context, srv *http.Server, addr string) error {
	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve on %s: %w", addr, err)
	}
	return nil
}

func gracefulShutdown(ctx context.Context, srv *http.Server) error {
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	return nil
}

func newLogger(cfg config.LogConfig, level *slog.LevelVar) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch cfg.Format {
	case "text":
		handler = slog.NewTextHandler(os.Stdout, opts)
	default:
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
