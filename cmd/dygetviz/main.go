package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sanonone/dygetviz/internal/pipeline"
	"github.com/sanonone/dygetviz/pkg/config"
	"github.com/sanonone/dygetviz/pkg/core/distance"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "", "Path to the YAML run configuration")
	outDir := flag.String("out", "", "Output directory (overrides output_dir)")
	metricsAddr := flag.String("metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9100)")
	logLevel := flag.String("log-level", "", "Log level: debug, info, warn, error (overrides log_level)")
	packIn := flag.String("pack", "", "Convert this dataset into the binary format and exit")
	packOut := flag.String("o", "", "Output path for -pack")
	precision := flag.String("precision", "float32", "Value precision for -pack: float32, float16 or int8")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println("dygetviz", version)
		return
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fatal(err)
	}
	if *outDir != "" {
		cfg.OutputDir = *outDir
	}
	if *metricsAddr != "" {
		cfg.MetricsAddr = *metricsAddr
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if err := setupLogging(cfg); err != nil {
		fatal(err)
	}

	if *packIn != "" {
		if err := pack(*packIn, *packOut, *precision); err != nil {
			fatal(err)
		}
		return
	}

	if err := cfg.Validate(); err != nil {
		fatal(err)
	}

	info := distance.DescribeEngine()
	slog.Info("[MAIN] Compute engine", "cpu", info.CPU, "cores", info.Cores, "cpu_features", strings.Join(info.CPUFeatures, ","), "kernel", info.Kernel)

	if cfg.MetricsAddr != "" {
		go serveMetrics(cfg.MetricsAddr)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	start := time.Now()
	results, err := pipeline.Run(ctx, cfg)
	if err != nil {
		fatal(err)
	}
	for _, r := range results {
		slog.Info("[MAIN] Visualization ready",
			"name", r.Name,
			"nodes", len(r.Trajectories.Nodes),
			"points", r.Trajectories.NumPoints())
	}
	slog.Info("[MAIN] Done", "runs", len(results), "elapsed", time.Since(start))
}

func pack(in, out, precision string) error {
	if out == "" {
		return errors.New("-pack requires -o")
	}
	prec, err := distance.ParsePrecision(precision)
	if err != nil {
		return err
	}
	return pipeline.Pack(in, out, prec)
}

func setupLogging(cfg config.Config) error {
	level, err := cfg.SlogLevel()
	if err != nil {
		return err
	}
	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler
	if strings.EqualFold(cfg.LogFormat, "json") {
		h = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		h = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(h))
	return nil
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	slog.Info("[MAIN] Serving metrics", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("[MAIN] Metrics server stopped", "error", err)
	}
}

func fatal(err error) {
	slog.Error("[MAIN] Fatal", "error", err)
	os.Exit(1)
}
