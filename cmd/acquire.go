package cmd

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/openacq/camnode/internal/acquire"
	"github.com/openacq/camnode/internal/backend/sim"
	"github.com/openacq/camnode/internal/logging"
)

// CreateAcquireCmd creates the acquire command.
func CreateAcquireCmd() *cobra.Command {
	var configFile string
	var frameCount int
	var fetchTimeout time.Duration
	var delay time.Duration
	var allDevices bool
	var logJSON bool

	cmd := &cobra.Command{
		Use:   "acquire [device-index...]",
		Short: "Fetch frames from one or more devices",
		Long: `Creates a session per device index, starts free-running acquisition, ` +
			`fetches the requested number of frames and tears the sessions down. ` +
			`With --all, every enumerated device is acquired concurrently.`,
		Args: cobra.ArbitraryArgs,
		Run: func(_ *cobra.Command, args []string) {
			loggingConfig := logging.Config{
				Level:  "info",
				Format: "text",
			}
			if logJSON {
				loggingConfig.Format = "json"
			}
			logging.Initialize(loggingConfig)
			logger := logging.GetLogger("acquire")

			if !allDevices && len(args) == 0 {
				logger.Error("No device index given, pass at least one index or --all")
				os.Exit(1)
			}

			cfg, err := sim.LoadConfig(configFile)
			if err != nil {
				logger.Error("Failed to load device configuration", "error", err, "config", configFile)
				os.Exit(1)
			}

			manager := acquire.NewManager(&acquire.ManagerOptions{
				Backend: sim.New(cfg, logging.GetLogger("backend")),
				Logger:  logger,
			})
			defer manager.Reset()

			runner := acquire.NewRunner(&acquire.RunnerOptions{
				Manager:      manager,
				FrameCount:   frameCount,
				FetchTimeout: fetchTimeout,
				Delay:        delay,
				Logger:       logger,
			})

			var results []acquire.Result
			if allDevices {
				results = runner.RunAll()
			} else {
				indices := make([]int, len(args))
				for i, arg := range args {
					idx, parseErr := strconv.Atoi(arg)
					if parseErr != nil {
						logger.Error("Invalid device index", "arg", arg)
						os.Exit(1)
					}
					indices[i] = idx
				}
				results = runner.Run(indices...)
			}

			failed := 0
			for _, res := range results {
				if res.Err != nil {
					failed++
					logger.Error("Acquisition failed",
						"device_index", res.DeviceIndex, "error", res.Err)
					continue
				}
				fmt.Printf("device %d (%s): %d frames\n", res.DeviceIndex, res.DeviceID, res.Frames)
			}

			if failed > 0 {
				os.Exit(1)
			}
		},
	}

	cmd.Flags().StringVar(&configFile, "config", "devices.toml", "Path to device configuration file")
	cmd.Flags().IntVar(&frameCount, "count", 10, "Number of frames to fetch per device")
	cmd.Flags().DurationVar(&fetchTimeout, "timeout", time.Second, "Per-frame fetch timeout")
	cmd.Flags().DurationVar(&delay, "delay", 0, "Delay between fetched frames")
	cmd.Flags().BoolVar(&allDevices, "all", false, "Acquire from every enumerated device")
	cmd.Flags().BoolVar(&logJSON, "log-json", false, "Use JSON log format")

	return cmd
}
