package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/spaghettifunk/assetstream/engine"
	"github.com/spaghettifunk/assetstream/engine/core"
	"github.com/spaghettifunk/assetstream/testbed"
)

var (
	assetsDir    string
	workers      int
	staging      string
	logLevel     string
	backend      string
	metricsAddr  string
	exitWhenDone bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Stream every asset under the assets directory",
	Long: `Run the engine loop over the assets directory. Every mesh (.obj) and texture
(png, jpeg, gif, bmp, tiff, webp, optionally .lz4 compressed) found is requested
once and the loop reports progress until interrupted.

Examples:
  # Stream ./assets with the in-memory device and exit when everything settled
  assetstream run --exit-when-done

  # Use a config file and expose Prometheus metrics
  assetstream run --config assetstream.toml --metrics-addr :9090

  # Upload to a real GPU through a headless Vulkan device
  assetstream run --backend vulkan --staging 64MB`,
	RunE: runEngine,
}

func init() {
	runCmd.Flags().StringVar(&assetsDir, "assets", "", "assets directory (overrides config)")
	runCmd.Flags().IntVar(&workers, "workers", 0, "number of decode workers (overrides config)")
	runCmd.Flags().StringVar(&staging, "staging", "", "staging region size, e.g. 256MB (overrides config)")
	runCmd.Flags().StringVar(&logLevel, "log-level", "", "debug, info, warn, error or fatal (overrides config)")
	runCmd.Flags().StringVar(&backend, "backend", "", "device backend: software, noop or vulkan (overrides config)")
	runCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address (overrides config)")
	runCmd.Flags().BoolVar(&exitWhenDone, "exit-when-done", false, "exit once every requested asset is ready or stalled")
}

func runEngine(cmd *cobra.Command, args []string) error {
	config, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	level, _ := core.ParseLogLevel(config.LogLevel)
	core.SetLogLevel(level)

	device, closeDevice, err := openDevice(config.Backend)
	if err != nil {
		return err
	}
	defer closeDevice()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := core.NewStreamingMetrics(registry)

	if config.Metrics.Address != "" {
		server := serveMetrics(config.Metrics.Address, registry)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = server.Shutdown(shutdownCtx)
		}()
	}

	game := testbed.NewTestGame(config, exitWhenDone)
	e, err := engine.New(game.Game, device, metrics)
	if err != nil {
		return err
	}
	if err := e.Initialize(); err != nil {
		_ = e.Shutdown()
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	engineDone := make(chan error, 1)
	go func() {
		engineDone <- e.Run(ctx)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	var runErr error
	select {
	case <-sigChan:
		core.LogInfo("Shutdown signal received, stopping the engine")
		cancel()
		runErr = <-engineDone
	case runErr = <-engineDone:
	}

	if err := e.Shutdown(); err != nil {
		return errors.Join(runErr, err)
	}
	return runErr
}

// loadConfig reads the config file and applies the flags the user set.
func loadConfig(cmd *cobra.Command) (*engine.ApplicationConfig, error) {
	config, err := engine.LoadApplicationConfig(cfgFile)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("assets") {
		config.AssetsDir = assetsDir
	}
	if flags.Changed("workers") {
		config.Streaming.Workers = workers
	}
	if flags.Changed("staging") {
		size, err := core.ParseByteSize(staging)
		if err != nil {
			return nil, fmt.Errorf("invalid --staging: %w", err)
		}
		config.Streaming.StagingCapacity = size
	}
	if flags.Changed("log-level") {
		config.LogLevel = logLevel
	}
	if flags.Changed("backend") {
		config.Backend = backend
	}
	if flags.Changed("metrics-addr") {
		config.Metrics.Address = metricsAddr
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func serveMetrics(addr string, registry *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		core.LogInfo("Serving metrics on %s/metrics", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			core.LogError("metrics server failed: %s", err)
		}
	}()
	return server
}
