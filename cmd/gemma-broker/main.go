// gemma-broker is the broker process entrypoint: it loads configuration,
// wires up logging and metrics, creates the shared-memory region, and
// runs the detector/worker/writer pipeline until interrupted.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"github.com/hak023/gemma-broker/internal/broker"
	"github.com/hak023/gemma-broker/internal/config"
	"github.com/hak023/gemma-broker/internal/telemetry"
	"github.com/hak023/gemma-broker/pkg/ipcshm"
	"github.com/hak023/gemma-broker/pkg/llmengine"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "gemma-broker: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := config.Default()

	// First pass: pull out --config alone, ignoring every other flag, so
	// the file can be loaded before the full flag set is bound. This
	// keeps the precedence chain defaults -> file -> flags, with flags
	// always winning last.
	peek := pflag.NewFlagSet("gemma-broker-peek", pflag.ContinueOnError)
	peek.ParseErrorsWhitelist.UnknownFlags = true
	configPath := peek.String("config", "", "path to a JSONC config file")
	if err := peek.Parse(os.Args[1:]); err != nil {
		return err
	}

	cfg, err := config.LoadFile(cfg, *configPath)
	if err != nil {
		return err
	}

	fs := pflag.NewFlagSet("gemma-broker", pflag.ExitOnError)
	fs.String("config", *configPath, "path to a JSONC config file")
	config.Flags(fs, &cfg)
	if err := fs.Parse(os.Args[1:]); err != nil {
		return err
	}

	if err := config.Validate(cfg); err != nil {
		return err
	}

	log := telemetry.NewLogger(telemetry.NewRotatingSink(cfg.LogFile), cfg.LogLevel)
	entry := log.WithField("component", "gemma-broker")

	registry := prometheus.NewRegistry()
	metrics := telemetry.NewMetrics(registry)
	go serveMetrics(cfg.MetricsListenAddr, registry, entry)

	region, err := ipcshm.Create(cfg.RegionName, ipcshm.Options{
		SlotCount:      cfg.SlotCount,
		SlotSize:       cfg.SlotSize,
		AcquireTimeout: cfg.AcquireTimeout,
		Dir:            cfg.RegionDir,
	})
	if err != nil {
		return fmt.Errorf("create region: %w", err)
	}
	defer region.Close()

	engine := llmengine.NewMock(cfg.ContextWindow, llmengine.EchoResponder)

	metrics.ActiveWorkers.Set(float64(cfg.WorkerCount))
	metrics.ActiveWriters.Set(float64(cfg.WriterCount))

	b := broker.New(region, engine, broker.Options{
		WorkerCount:        cfg.WorkerCount,
		WriterCount:        cfg.WriterCount,
		PollInterval:       cfg.PollInterval,
		Metrics:            metrics,
		RequestSoftTimeout: cfg.RequestSoftTimeout,
	}, entry)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	entry.Info("broker starting")
	b.Run(ctx)
	entry.Info("broker stopped")
	return nil
}

func serveMetrics(addr string, registry *prometheus.Registry, log *logrus.Entry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	if err := http.ListenAndServe(addr, mux); err != nil && err != http.ErrServerClosed {
		log.WithError(err).Error("metrics server stopped")
	}
}
