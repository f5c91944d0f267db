// Command tidings runs the publish/subscribe broker and serves it over NATS.
//
// Settings come from the environment (see internal/config) and can be
// overridden with flags. Send SIGHUP to dump the broker state to stderr. With
// --metrics set, Prometheus metrics are served on /metrics at that address.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/casualjim/tidings/internal/broker"
	"github.com/casualjim/tidings/internal/config"
	"github.com/casualjim/tidings/internal/logging"
	"github.com/casualjim/tidings/internal/metrics"
	"github.com/casualjim/tidings/internal/transport/natsrpc"
	"github.com/casualjim/tidings/pkg/natsx"
	"github.com/casualjim/tidings/pkg/slogx"
	_ "github.com/joho/godotenv/autoload"
	"github.com/k0kubun/pp/v3"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var cfg config.Broker
	cmd := &cobra.Command{
		Use:           "tidings",
		Short:         "Topic and keyword based publish/subscribe broker",
		SilenceUsage:  true,
		SilenceErrors: true,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			resolved, err := resolveConfig(cmd, cfg)
			if err != nil {
				return err
			}
			cfg = resolved
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := logging.Setup(os.Stderr, cfg.Log.Level, cfg.Log.JSON)
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg, logger, os.Stderr)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&cfg.NATSURL, "nats", "", "NATS server URL (default $NATS_URL or "+nats.DefaultURL+")")
	flags.StringVar(&cfg.Prefix, "prefix", natsrpc.DefaultPrefix, "subject prefix of the broker operations")
	flags.DurationVar(&cfg.SweepInterval, "sweep-interval", 0, "pause between two retry sweeps")
	flags.DurationVar(&cfg.NotifyTimeout, "notify-timeout", 0, "time limit of a single push to a subscriber")
	flags.StringVar(&cfg.MetricsAddr, "metrics", "", "listen address of the /metrics endpoint, empty disables it")
	return cmd
}

// resolveConfig loads the environment settings and lets explicitly set flags
// win over them.
func resolveConfig(cmd *cobra.Command, flagged config.Broker) (config.Broker, error) {
	cfg, err := config.LoadBroker()
	if err != nil {
		return config.Broker{}, err
	}
	flags := cmd.Flags()
	if flags.Changed("nats") {
		cfg.NATSURL = flagged.NATSURL
	}
	if flags.Changed("prefix") {
		cfg.Prefix = flagged.Prefix
	}
	if flags.Changed("sweep-interval") {
		cfg.SweepInterval = flagged.SweepInterval
	}
	if flags.Changed("notify-timeout") {
		cfg.NotifyTimeout = flagged.NotifyTimeout
	}
	if flags.Changed("metrics") {
		cfg.MetricsAddr = flagged.MetricsAddr
	}
	return cfg, nil
}

func run(ctx context.Context, cfg config.Broker, logger *slog.Logger, dump io.Writer) error {
	nc, err := natsx.NewClient(cfg.NATSURL,
		nats.Name("tidings-broker"),
		nats.Compression(true),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("disconnected from NATS", slogx.Error(err))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("reconnected to NATS", slog.String("url", nc.ConnectedUrl()))
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}
	defer nc.Close()

	b, err := broker.New(
		broker.WithSweepInterval(cfg.SweepInterval),
		broker.WithNotifyTimeout(cfg.NotifyTimeout),
		broker.WithLogger(logger),
	)
	if err != nil {
		return err
	}
	b.Start(ctx)
	defer b.Close()

	srv, err := natsrpc.NewServer(nc, b, natsrpc.WithServerPrefix(cfg.Prefix), natsrpc.WithServerLogger(logger))
	if err != nil {
		return err
	}
	if err := srv.Start(ctx); err != nil {
		return err
	}
	defer srv.Close()

	if cfg.MetricsAddr != "" {
		collector := metrics.NewCollector(b)
		if err := prometheus.Register(collector); err != nil {
			return fmt.Errorf("failed to register broker metrics: %w", err)
		}
		defer prometheus.Unregister(collector)
		_, stopMetrics, err := serveMetrics(cfg.MetricsAddr, logger)
		if err != nil {
			return err
		}
		defer stopMetrics()
	}

	logger.Info("tidings broker running",
		slog.String("nats", nc.ConnectedUrl()),
		slog.String("prefix", cfg.Prefix),
		slog.Duration("sweep_interval", cfg.SweepInterval),
		slog.Duration("notify_timeout", cfg.NotifyTimeout),
	)

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			logger.Info("shutting down")
			return nil
		case <-hup:
			dumpState(dump, b)
		}
	}
}

// serveMetrics starts the /metrics endpoint. It returns the bound address and
// a function that shuts the endpoint down.
func serveMetrics(addr string, logger *slog.Logger) (string, func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return "", nil, fmt.Errorf("failed to listen for metrics on %s: %w", addr, err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	bound := ln.Addr().String()
	logger.Info("serving metrics", slog.String("addr", bound))
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", slogx.Error(err))
		}
	}()
	return bound, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}

func dumpState(w io.Writer, b *broker.Broker) {
	printer := pp.New()
	printer.SetOutput(w)
	printer.SetColoringEnabled(false)
	printer.Println(b.Stats())
	printer.Println(b.Snapshot())
}
