package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/muurk/jpegmirror/internal/config"
	"github.com/muurk/jpegmirror/internal/discovery"
	"github.com/muurk/jpegmirror/internal/logging"
	"github.com/muurk/jpegmirror/internal/metrics"
	"github.com/muurk/jpegmirror/internal/mirror"
	"github.com/muurk/jpegmirror/internal/server"
	"github.com/muurk/jpegmirror/internal/version"
)

// Serve command flags
var (
	configPath     string
	host           string
	port           int
	timeout        time.Duration
	maxRequestSize string
	workers        int
	queueSize      int
	direction      string
	quality        int
	logLevel       string
	logFormat      string
	metricsEnabled bool
	metricsPort    int
	mdnsEnabled    bool
	mdnsInstance   string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the mirroring server",
	Long: `Start the JPEG mirroring server.

Settings come from the config file (see 'jpegmirror config init'), then
JPEGMIRROR_* environment variables, then the flags below; later sources win.
SIGINT or SIGTERM stops accepting connections and waits for in-flight
requests to finish before exiting.`,
	Example: `  # Start with defaults (port 17070, 32 MiB limit, 15s timeout)
  jpegmirror serve

  # Custom port and limits
  jpegmirror serve --port 8080 --max-request-size 8MiB --timeout 5s

  # Expose Prometheus metrics and announce over mDNS
  jpegmirror serve --metrics --metrics-port 9090 --mdns

  # JSON logs at debug level
  jpegmirror serve --log-level debug --log-format json`,
	RunE: runServe,
}

func init() {
	f := serveCmd.Flags()
	f.StringVarP(&configPath, "config", "c", "", "Path to config file (default: OS config dir)")
	f.StringVar(&host, "host", "", "IPv4 address to bind (empty = all interfaces)")
	f.IntVarP(&port, "port", "p", server.DefaultPort, "TCP port to listen on")
	f.DurationVar(&timeout, "timeout", server.DefaultTimeout, "Per-connection deadline")
	f.StringVar(&maxRequestSize, "max-request-size", "32MiB", "Largest accepted request body")
	f.IntVar(&workers, "workers", 0, "Worker goroutines (0 = one per CPU)")
	f.IntVar(&queueSize, "queue-size", 0, "Pending job limit (0 = unbounded)")
	f.StringVar(&direction, "direction", mirror.Horizontal, "Mirror direction (horizontal, vertical)")
	f.IntVar(&quality, "quality", mirror.DefaultQuality, "JPEG output quality (1-100)")
	f.StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	f.StringVar(&logFormat, "log-format", logging.FormatConsole, "Log format (console, json)")
	f.BoolVar(&metricsEnabled, "metrics", false, "Serve Prometheus metrics")
	f.IntVar(&metricsPort, "metrics-port", config.DefaultMetricsPort, "Metrics listener port")
	f.BoolVar(&mdnsEnabled, "mdns", false, "Advertise the server over mDNS")
	f.StringVar(&mdnsInstance, "mdns-instance", "", "mDNS instance name (default: jpegmirror)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := applyServeFlags(cmd, cfg); err != nil {
		return err
	}

	logger, err := logging.New(cfg.Logging.LoggerOptions())
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	h, err := mirror.New(cfg.Processing.MirrorOptions())
	if err != nil {
		return fmt.Errorf("failed to create mirror handler: %w", err)
	}

	opts := []server.Option{
		server.WithLogger(logger.Named("server")),
		server.WithWorkers(cfg.Workers),
	}

	var metricsSrv *metrics.Server
	if cfg.Metrics.Enabled {
		reg := metrics.NewRegistry()
		collectors := metrics.NewCollectors(reg)
		opts = append(opts, server.WithMetrics(collectors), server.WithPoolMetrics(collectors))
		metricsSrv = metrics.NewServer(metrics.ServerConfig{
			Host: cfg.Server.Host,
			Port: cfg.Metrics.Port,
		}, reg, logger.Named("metrics"))
	}

	srv, err := server.New(cfg.Server.ServerOptions(), h, opts...)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	logger.Info("Starting jpegmirror",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("direction", cfg.Processing.Direction),
	)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return srv.Run(gctx)
	})

	if metricsSrv != nil {
		g.Go(func() error {
			return metricsSrv.Start(gctx)
		})
	}

	if cfg.Discovery.Enabled {
		g.Go(func() error {
			select {
			case <-srv.Ready():
			case <-gctx.Done():
				return nil
			}
			return discovery.Advertise(gctx, discovery.Advertisement{
				Instance:       cfg.Discovery.Instance,
				Port:           cfg.Server.Port,
				Version:        version.Version,
				MimeType:       cfg.Server.MimeType,
				MaxRequestSize: int64(cfg.Server.MaxRequestSize),
			}, logger.Named("mdns"))
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// applyServeFlags copies explicitly set flags over the loaded config and
// re-validates the result.
func applyServeFlags(cmd *cobra.Command, cfg *config.Config) error {
	f := cmd.Flags()

	if f.Changed("host") {
		cfg.Server.Host = host
	}
	if f.Changed("port") {
		cfg.Server.Port = port
	}
	if f.Changed("timeout") {
		cfg.Server.Timeout = timeout
	}
	if f.Changed("max-request-size") {
		size, err := config.ParseByteSize(maxRequestSize)
		if err != nil {
			return fmt.Errorf("invalid --max-request-size: %w", err)
		}
		cfg.Server.MaxRequestSize = size
	}
	if f.Changed("workers") {
		cfg.Workers.Size = workers
	}
	if f.Changed("queue-size") {
		cfg.Workers.QueueSize = queueSize
	}
	if f.Changed("direction") {
		cfg.Processing.Direction = direction
	}
	if f.Changed("quality") {
		cfg.Processing.Quality = quality
	}
	if f.Changed("log-level") {
		cfg.Logging.Level = logLevel
	}
	if f.Changed("log-format") {
		cfg.Logging.Format = logFormat
	}
	if f.Changed("metrics") {
		cfg.Metrics.Enabled = metricsEnabled
	}
	if f.Changed("metrics-port") {
		cfg.Metrics.Port = metricsPort
	}
	if f.Changed("mdns") {
		cfg.Discovery.Enabled = mdnsEnabled
	}
	if f.Changed("mdns-instance") {
		cfg.Discovery.Instance = mdnsInstance
	}

	config.ApplyDefaults(cfg)
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}
	return nil
}
