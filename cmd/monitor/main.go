package main

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/relabs-tech/birther/internal/app"
	"github.com/relabs-tech/birther/internal/config"
)

func main() {
	var configPath string
	cmd := &cobra.Command{
		Use:           "monitor",
		Short:         "Print calibration and validity results published to the broker",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(_ *cobra.Command, _ []string) error {
			log.Println("starting birther monitor (MQTT subscriber)")
			if err := config.InitGlobal(configPath); err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			return app.RunMonitor(config.Get())
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "birther config file")

	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		os.Exit(1)
	}
}
