// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

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
		Use:           "web",
		Short:         "Serve stored calibrations, validity reports and live progress",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(_ *cobra.Command, _ []string) error {
			log.Println("starting birther web server")
			if err := config.InitGlobal(configPath); err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			return app.RunWeb(config.Get())
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "birther config file")

	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		os.Exit(1)
	}
}
