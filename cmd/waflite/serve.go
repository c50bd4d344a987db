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
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/waflite/waflite/internal/api"
	"github.com/waflite/waflite/internal/config"
	"github.com/waflite/waflite/internal/gateway"
	"github.com/waflite/waflite/internal/logging"
	"github.com/waflite/waflite/internal/observability"
	"github.com/waflite/waflite/internal/ruleset"
)

func newServeCmd() *cobra.Command {
	var configPath string
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the scan API and, if enabled, the guard proxy",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Default()
			if configPath != "" {
				loaded, err := config.Load(configPath)
				if err != nil {
					return err
				}
				cfg = loaded
			}
			if listen != "" {
				cfg.Server.Listen = listen
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return runServer(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to config file")
	cmd.Flags().StringVar(&listen, "listen", "", "Override server.listen")

	return cmd
}

func runServer(ctx context.Context, cfg *config.Config) error {
	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format, os.Stderr)
	if err != nil {
		return err
	}

	store := ruleset.NewStore(cfg.ResolvePath(cfg.Store.Path))
	if cfg.Store.Cache {
		stopWatch, err := store.Watch(logger)
		if err != nil {
			return err
		}
		defer stopWatch()
	}

	var decisionLog *logging.DecisionLogger
	if cfg.Logging.DecisionLog != "" {
		dl, closer, err := logging.OpenDecisionLog(cfg.ResolvePath(cfg.Logging.DecisionLog), logging.RotateOptions{
			MaxSizeMB:  cfg.Logging.MaxSizeMB,
			MaxBackups: cfg.Logging.MaxBackups,
			MaxAgeDays: cfg.Logging.MaxAgeDays,
			Compress:   cfg.Logging.Compress,
		})
		if err != nil {
			return err
		}
		defer func() { _ = closer() }()
		decisionLog = dl
	}

	metrics, metricsSrv := startMetricsServer(cfg, logger)
	defer func() {
		if metricsSrv != nil {
			_ = metricsSrv.Shutdown(context.Background())
		}
	}()

	opts := api.Options{
		Addr:              cfg.Server.Listen,
		Version:           version,
		Logger:            logger,
		Metrics:           metrics,
		DecisionLog:       decisionLog,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
	}
	if cfg.Server.TLS.Enabled {
		opts.CertFile = cfg.ResolvePath(cfg.Server.TLS.CertFile)
		opts.KeyFile = cfg.ResolvePath(cfg.Server.TLS.KeyFile)
	}

	if cfg.Guard.Enabled {
		gw, err := gateway.New(cfg.Guard, store)
		if err != nil {
			return err
		}
		gw.SetDecisionLogger(decisionLog)
		gw.SetMetrics(metrics)
		gw.SetLogger(logger)
		opts.Guard = gw
	}

	srv := api.NewServer(store, opts)

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- srv.Start()
	}()
	logger.WithFields(logrus.Fields{
		"listen": cfg.Server.Listen,
		"store":  store.Path(),
		"guard":  cfg.Guard.Enabled,
	}).Info("waflite listening")

	signalCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case <-signalCtx.Done():
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	logger.Info("shutting down")
	return srv.Shutdown(shutdownCtx)
}

func startMetricsServer(cfg *config.Config, logger logrus.FieldLogger) (*observability.Metrics, *http.Server) {
	if !cfg.Metrics.Enabled {
		return nil, nil
	}

	reg := prometheus.NewRegistry()
	metrics := observability.NewMetrics(reg)

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(reg))

	srv := &http.Server{Addr: cfg.Metrics.Listen, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Error("metrics server stopped")
		}
	}()
	return metrics, srv
}
