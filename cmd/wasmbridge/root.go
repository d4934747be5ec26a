package main

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/wippyai/wasm-bridge/config"
	"github.com/wippyai/wasm-bridge/engine"
	"github.com/wippyai/wasm-bridge/metrics"
	"github.com/wippyai/wasm-bridge/runtime"
)

var rootCmd = &cobra.Command{
	Use:   "wasmbridge",
	Short: "Load WebAssembly modules and call their exported functions",
	Long: `wasmbridge - drive an embedded WebAssembly engine from the command line.

Modules are loaded, instantiated, and their exported functions resolved by
name and called with numeric arguments. Results are printed as numbers.

Configuration is read from --config (YAML), then WASMBRIDGE_* environment
variables, then flags.`,
	SilenceUsage:       true,
	PersistentPreRunE:  setup,
	PersistentPostRunE: teardown,
}

// app holds the process-wide state built by setup.
var app struct {
	cfg     config.Config
	logger  *zap.Logger
	closer  io.Closer
	metrics *metrics.Collector
	server  *http.Server
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	f := rootCmd.PersistentFlags()
	f.String("config", "", "Path to YAML config file")
	f.String("backend", "", "Engine backend: wazero, wasmtime")
	f.String("mode", "", "Engine mode: auto, compiler, interpreter")
	f.String("cache-dir", "", "Compilation cache directory")
	f.Uint32("memory-limit-pages", 0, "Maximum linear memory per instance in 64KiB pages")
	f.Bool("interruptible", false, "Abort running calls when interrupted (wazero only)")
	f.String("log-level", "", "Log level: debug, info, warn, error")
	f.String("log-file", "", "Also write JSON logs to this rotated file")
	f.String("metrics-addr", "", "Serve Prometheus metrics on this address")
}

func setup(cmd *cobra.Command, _ []string) error {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	applyFlags(cmd, &cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, closer, err := config.NewLogger(cfg.Log, zapcore.Lock(zapcore.AddSync(cmd.ErrOrStderr())))
	if err != nil {
		return err
	}
	engine.SetLogger(logger.Named("engine"))
	runtime.SetLogger(logger.Named("runtime"))

	app.cfg = cfg
	app.logger = logger
	app.closer = closer
	app.metrics = nil
	app.server = nil

	if cfg.MetricsAddr != "" {
		if err := serveMetrics(cfg.MetricsAddr); err != nil {
			return err
		}
	}
	return nil
}

func applyFlags(cmd *cobra.Command, cfg *config.Config) {
	f := cmd.Flags()
	if f.Changed("backend") {
		v, _ := f.GetString("backend")
		cfg.Engine.Backend = engine.Backend(v)
	}
	if f.Changed("mode") {
		v, _ := f.GetString("mode")
		cfg.Engine.Mode = engine.Mode(v)
	}
	if f.Changed("cache-dir") {
		cfg.Engine.CacheDir, _ = f.GetString("cache-dir")
	}
	if f.Changed("memory-limit-pages") {
		cfg.Engine.MemoryLimitPages, _ = f.GetUint32("memory-limit-pages")
	}
	if f.Changed("interruptible") {
		cfg.Engine.CloseOnContextDone, _ = f.GetBool("interruptible")
	}
	if f.Changed("log-level") {
		cfg.Log.Level, _ = f.GetString("log-level")
	}
	if f.Changed("log-file") {
		cfg.Log.File, _ = f.GetString("log-file")
	}
	if f.Changed("metrics-addr") {
		cfg.MetricsAddr, _ = f.GetString("metrics-addr")
	}
}

func serveMetrics(addr string) error {
	reg := prometheus.NewRegistry()
	if err := reg.Register(collectors.NewGoCollector()); err != nil {
		return err
	}
	m, err := metrics.New(reg)
	if err != nil {
		return err
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			app.logger.Warn("metrics server stopped", zap.Error(err))
		}
	}()
	app.logger.Info("serving metrics", zap.String("addr", ln.Addr().String()))

	app.metrics = m
	app.server = srv
	return nil
}

func teardown(*cobra.Command, []string) error {
	var err error
	if app.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		err = app.server.Shutdown(ctx)
		cancel()
		app.server = nil
	}
	if app.logger != nil {
		_ = app.logger.Sync()
	}
	if app.closer != nil {
		err = multierr.Append(err, app.closer.Close())
		app.closer = nil
	}
	return err
}

// newContext creates a runtime Context from the loaded configuration, wired
// to the metrics collector when one is serving.
func newContext(ctx context.Context) (*runtime.Context, error) {
	opts := []runtime.Option{
		runtime.WithEngineConfig(app.cfg.Engine),
		runtime.WithLogger(app.logger.Named("runtime")),
	}
	if app.metrics != nil {
		opts = append(opts, runtime.WithObserver(app.metrics), runtime.WithCallObserver(app.metrics))
	}
	return runtime.New(ctx, opts...)
}
