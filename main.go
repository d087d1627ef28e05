package main

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2/humacli"

	"github.com/openacq/camnode/cmd"
	"github.com/openacq/camnode/internal/acquire"
	"github.com/openacq/camnode/internal/api"
	"github.com/openacq/camnode/internal/backend"
	"github.com/openacq/camnode/internal/backend/sim"
	"github.com/openacq/camnode/internal/config"
	"github.com/openacq/camnode/internal/events"
	"github.com/openacq/camnode/internal/logging"
	"github.com/openacq/camnode/internal/metrics"
)

// Options for the CLI - flat structure with toml mapping.
type Options struct {
	Config string `help:"Path to configuration file" short:"c" default:"config.toml"`

	// Server settings
	Port string `help:"Port to listen on" short:"p" default:":8090" toml:"server.port" env:"SERVER_PORT"`

	// Device settings
	DevicesConfigFile string `help:"Device definitions file" default:"devices.toml" toml:"devices.config_file" env:"DEVICES_CONFIG_FILE"`

	// Metrics settings
	MetricsEnabled bool `help:"Enable Prometheus metrics" default:"true" toml:"metrics.enabled" env:"METRICS_ENABLED"`

	// Logging settings
	LoggingLevel   string `help:"Global logging level (debug, info, warn, error)" default:"info" toml:"logging.level" env:"LOGGING_LEVEL"`
	LoggingFormat  string `help:"Logging format (text, json)" default:"text" toml:"logging.format" env:"LOGGING_FORMAT"`
	LoggingAcquire string `help:"Acquisition logging level" default:"info" toml:"logging.acquire" env:"LOGGING_ACQUIRE"`
	LoggingBackend string `help:"Backend logging level" default:"info" toml:"logging.backend" env:"LOGGING_BACKEND"`
	LoggingAPI     string `help:"API logging level" default:"info" toml:"logging.api" env:"LOGGING_API"`
	LoggingConfig  string `help:"Config watcher logging level" default:"info" toml:"logging.config" env:"LOGGING_CONFIG"`
}

func main() {
	cli := humacli.New(func(hooks humacli.Hooks, opts *Options) {
		if loadErr := config.LoadConfig(opts, nil); loadErr != nil {
			slog.Warn("Failed to load config", "error", loadErr)
		}

		// Start from the config file's [logging] table so module levels
		// beyond the named flags take effect, then apply the resolved
		// option values on top.
		loggingConfig := config.LoadLoggingConfig(opts.Config)
		loggingConfig.Level = opts.LoggingLevel
		loggingConfig.Format = opts.LoggingFormat
		loggingConfig.Modules["acquire"] = opts.LoggingAcquire
		loggingConfig.Modules["backend"] = opts.LoggingBackend
		loggingConfig.Modules["api"] = opts.LoggingAPI
		loggingConfig.Modules["config"] = opts.LoggingConfig
		logging.Initialize(loggingConfig)

		logger := logging.GetLogger("main")

		// Event bus for in-process event handling
		eventBus := events.New()

		// Device backend from the devices file, missing file means defaults
		deviceConfig, cfgErr := sim.LoadConfig(opts.DevicesConfigFile)
		if cfgErr != nil {
			logger.Warn("Failed to load device config, using defaults", "error", cfgErr)
			deviceConfig = sim.DefaultConfig()
		}

		simBackend := sim.New(deviceConfig, logging.GetLogger("backend"))
		simBackend.SetOnDeviceChange(func(added, removed []backend.DeviceInfo) {
			now := time.Now().UTC().Format(time.RFC3339)
			for _, info := range added {
				eventBus.Publish(events.DeviceDiscoveryEvent{
					DeviceID: info.ID, Model: info.Model, Action: "added", Timestamp: now,
				})
			}
			for _, info := range removed {
				eventBus.Publish(events.DeviceDiscoveryEvent{
					DeviceID: info.ID, Model: info.Model, Action: "removed", Timestamp: now,
				})
			}
		})

		var acqMetrics *metrics.Acquisition
		if opts.MetricsEnabled {
			acqMetrics = metrics.NewAcquisition(nil)
		}

		manager := acquire.NewManager(&acquire.ManagerOptions{
			Backend: simBackend,
			Logger:  logging.GetLogger("acquire"),
			Bus:     eventBus,
			Metrics: acqMetrics,
		})

		// Hot-reload the devices file into the backend
		watcher := config.NewConfigWatcher(
			opts.DevicesConfigFile,
			sim.LoadConfig,
			logging.GetLogger("config"),
		)
		watcher.OnReload(simBackend.SetConfig)

		apiOpts := &api.Options{
			Manager:  manager,
			EventBus: eventBus,
		}
		if acqMetrics != nil {
			apiOpts.PrometheusHandler = acqMetrics.Handler()
		}

		server := api.NewServer(apiOpts)

		hooks.OnStart(func() {
			if startErr := watcher.Start(); startErr != nil {
				logger.Warn("Failed to start config watcher, hot-reload disabled", "error", startErr)
			}

			logger.Info("Starting HTTP server", "port", opts.Port)
			if startErr := server.Start(opts.Port); startErr != nil && !errors.Is(startErr, http.ErrServerClosed) {
				logger.Error("Failed to start HTTP server", "error", startErr)
			}
		})

		hooks.OnStop(func() {
			logger.Info("Shutting down server")
			if stopErr := server.Stop(); stopErr != nil {
				logger.Error("Error stopping HTTP server", "error", stopErr)
			}

			if stopErr := watcher.Stop(); stopErr != nil {
				logger.Error("Error stopping config watcher", "error", stopErr)
			}

			// Unblocks any pending fetches and releases device sessions
			manager.Reset()
		})
	})

	cli.Root().AddCommand(cmd.CreateAcquireCmd())
	cli.Root().AddCommand(cmd.CreateDevicesCmd())

	cli.Run()
}
