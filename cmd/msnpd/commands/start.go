package commands

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/retroproto/msnpd/internal/logger"
	"github.com/retroproto/msnpd/pkg/adapter/notification"
	"github.com/retroproto/msnpd/pkg/api"
	"github.com/retroproto/msnpd/pkg/config"
	"github.com/retroproto/msnpd/pkg/metrics"
	"github.com/retroproto/msnpd/pkg/store/gormstore"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the msnpd notification server",
	Long: `Start the notification server with the specified configuration.

The server listens on TCP port 1863 by default. The Prometheus metrics
endpoint and the ticket/admin HTTP API start alongside it when enabled in
the configuration.

Examples:
  # Start with the default config location
  msnpd start

  # Start with a custom config file
  msnpd start --config /etc/msnpd/config.yaml

  # Override settings through the environment
  MSNPD_LOGGING_LEVEL=DEBUG msnpd start`,
	RunE: runStart,
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(GetConfigFile())
	if err != nil {
		return err
	}

	if err := logger.Init(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}); err != nil {
		return err
	}

	logger.Info("msnpd starting", "version", Version,
		"config", getConfigSource(GetConfigFile()))

	// Metrics must initialize before the adapter so its collectors register
	// against the live registry.
	if cfg.Metrics.Enabled {
		metrics.InitRegistry()
		logger.Info("metrics enabled", "port", cfg.Metrics.Port)
	}
	notificationMetrics := metrics.NewNotificationMetrics()

	st, err := gormstore.New(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer func() { _ = st.Close() }()
	logger.Info("store opened", "type", cfg.Database.Type)

	adapter := notification.New(notification.Config{
		BindAddress:       cfg.Server.Host,
		Port:              cfg.Server.Port,
		MaxConnections:    cfg.Server.MaxConnections,
		ShutdownTimeout:   cfg.ShutdownTimeout,
		SupportedVersions: cfg.Protocol.SupportedVersions,
		PingInterval:      cfg.Protocol.PingInterval,
		SessionTimeout:    cfg.Protocol.SessionTimeout,
		IdleTimeout:       cfg.Protocol.IdleTimeout,
		HandshakeTimeout:  cfg.Protocol.HandshakeTimeout,
		MaxMessageLength:  cfg.Protocol.MaxMessageLength,
		AuthRetries:       cfg.Protocol.AuthRetries,
		CVR: notification.CVRInfo{
			RecommendedVersion: cfg.Protocol.CVR.RecommendedVersion,
			DownloadURL:        cfg.Protocol.CVR.DownloadURL,
			InfoURL:            cfg.Protocol.CVR.InfoURL,
		},
		RateLimit: notification.RateLimitSettings{
			Enabled: cfg.Server.RateLimit.Enabled,
			Rate:    cfg.Server.RateLimit.Rate,
			Burst:   cfg.Server.RateLimit.Burst,
			TTL:     cfg.Server.RateLimit.TTL,
		},
	}, st, notificationMetrics)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("notification server listening", "port", adapter.Port())
		return adapter.Serve(gctx)
	})

	g.Go(func() error {
		return metrics.NewServer(cfg.Metrics.Port).Serve(gctx)
	})

	if cfg.API.Enabled {
		apiServer, err := api.NewServer(cfg.API, st, adapter.Registry())
		if err != nil {
			return fmt.Errorf("failed to create API server: %w", err)
		}
		logger.Info("API server enabled", "port", cfg.API.Port)
		g.Go(func() error {
			return apiServer.Serve(gctx)
		})
	}

	logger.Info("server is running, press Ctrl+C to stop")

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		logger.Error("server error", "error", err)
		return err
	}

	logger.Info("server stopped")
	return nil
}

// getConfigSource returns a description of where the config was loaded from.
func getConfigSource(configFile string) string {
	if configFile != "" {
		return configFile
	}
	if config.DefaultConfigExists() {
		return config.GetDefaultConfigPath()
	}
	return "defaults"
}
