package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/openacq/camnode/internal/backend/sim"
	"github.com/openacq/camnode/internal/logging"
)

// CreateDevicesCmd creates the devices command.
func CreateDevicesCmd() *cobra.Command {
	var configFile string

	cmd := &cobra.Command{
		Use:   "devices",
		Short: "List devices visible to the acquisition backend",
		Run: func(_ *cobra.Command, _ []string) {
			logging.Initialize(logging.Config{Level: "warn", Format: "text"})
			logger := logging.GetLogger("devices")

			cfg, err := sim.LoadConfig(configFile)
			if err != nil {
				logger.Error("Failed to load device configuration", "error", err, "config", configFile)
				os.Exit(1)
			}

			infos := sim.New(cfg, logger).Enumerate()

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "INDEX\tID\tMODEL\tVENDOR\tSERIAL")
			for i, info := range infos {
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", i, info.ID, info.Model, info.Vendor, info.Serial)
			}
			w.Flush()
		},
	}

	cmd.Flags().StringVar(&configFile, "config", "devices.toml", "Path to device configuration file")

	return cmd
}
