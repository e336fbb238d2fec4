// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// ./cmd/synth/main.go
//
// Writes synthetic shaker recordings, one per shaken axis, for fixtures and
// station demos. Each file holds a 10 g then a 4 g shake with rest between.
package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/relabs-tech/birther/internal/imu"
	"github.com/relabs-tech/birther/internal/recording"
)

var (
	outDir      string
	axes        string
	serial      string
	partNumber  string
	gravitySign float64
	seed        uint64
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "synth",
		Short:         "Write synthetic shaker recordings",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runSynth,
	}
	cmd.Flags().StringVarP(&outDir, "out", "o", ".", "output directory")
	cmd.Flags().StringVar(&axes, "axes", "x,y,z", "shaken axes to write")
	cmd.Flags().StringVar(&serial, "serial", "", "device serial (default from the stock device)")
	cmd.Flags().StringVar(&partNumber, "part", "", "device part number")
	cmd.Flags().Float64Var(&gravitySign, "gravity", 1, "sign of gravity on the shaken axis")
	cmd.Flags().Uint64Var(&seed, "seed", 1, "noise seed")
	return cmd
}

func runSynth(_ *cobra.Command, _ []string) error {
	if gravitySign != 1 && gravitySign != -1 {
		return fmt.Errorf("--gravity must be 1 or -1, got %g", gravitySign)
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return err
	}
	for _, name := range strings.Split(axes, ",") {
		axis, err := imu.AxisIndex(strings.TrimSpace(name))
		if err != nil {
			return err
		}
		o := recording.DefaultSynthOptions(axis)
		o.GravitySign = gravitySign
		o.Seed = seed + uint64(axis)
		if serial != "" {
			o.Device.Serial = serial
		}
		if partNumber != "" {
			o.Device.PartNumber = partNumber
		}
		path := filepath.Join(outDir, strings.ToLower(imu.AxisName(axis))+".json")
		if err := recording.Save(path, recording.Synth(o)); err != nil {
			return err
		}
		log.Printf("synth: wrote %s (%.0f s)", path, o.Duration())
	}
	return nil
}
