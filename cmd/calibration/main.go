// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// ./cmd/calibration/main.go
//
// Shaker calibration of one device from three recordings, one per shaken
// axis, given in any order. Calibrates every accelerometer found:
//  1. Hi: the primary high-g channel (0, 8 or 80), when the part has one
//  2. Lo: the secondary DC channel (32 or 80)
//
// Output:
//
//	Per-axis gain/offset, gravity direction, transverse sensitivity and the
//	mean temperature/pressure/humidity. The session is stored in the product
//	database and, with --publish, sent to the broker.
//
// Run:
//
//	calibration x.json y.json z.json --profile 10g_4g
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/relabs-tech/birther/internal/app"
	"github.com/relabs-tech/birther/internal/calibration"
	"github.com/relabs-tech/birther/internal/config"
	"github.com/relabs-tech/birther/internal/imu"
	"github.com/relabs-tech/birther/internal/store"
)

var (
	configPath  string
	profileName string
	hiFlipsArg  string
	loFlipsArg  string
	plotDir     string
	jsonOut     string
	noStore     bool
	publish     bool
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "calibration <x> <y> <z>",
		Short:         "Calibrate a device's accelerometers from three shaker recordings",
		Args:          cobra.ExactArgs(3),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runCalibration,
	}
	cmd.Flags().StringVar(&configPath, "config", "", "birther config file")
	cmd.Flags().StringVar(&profileName, "profile", "", "shake profile name or file (overrides PROFILE_PATH)")
	cmd.Flags().StringVar(&hiFlipsArg, "hi-flips", "", "primary axis flips as x,y,z")
	cmd.Flags().StringVar(&loFlipsArg, "lo-flips", "", "secondary axis flips as x,y,z")
	cmd.Flags().StringVar(&plotDir, "plots", "", "shake plot directory (overrides PLOT_DIR)")
	cmd.Flags().StringVar(&jsonOut, "json", "", "also write the result to this file")
	cmd.Flags().BoolVar(&noStore, "no-store", false, "do not store the session")
	cmd.Flags().BoolVar(&publish, "publish", false, "publish the result over MQTT")
	return cmd
}

func parseFlips(s string) (*imu.XYZ, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return nil, fmt.Errorf("flips %q: want x,y,z", s)
	}
	var out imu.XYZ
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil || (v != 1 && v != -1) {
			return nil, fmt.Errorf("flips %q: axis %s must be 1 or -1", s, imu.AxisName(i))
		}
		out.Set(i, v)
	}
	return &out, nil
}

func runCalibration(_ *cobra.Command, args []string) error {
	if err := config.InitGlobal(configPath); err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	cfg := config.Get()
	if profileName != "" {
		cfg.ProfilePath = profileName
	}

	opts, err := app.CalibrationOptions(cfg)
	if err != nil {
		return err
	}
	if opts.HiFlips, err = parseFlips(hiFlipsArg); err != nil {
		return err
	}
	if opts.LoFlips, err = parseFlips(loFlipsArg); err != nil {
		return err
	}
	opts.Progress = func(ev calibration.Event) {
		log.Printf("calibration: %s %s %s", ev.Stage, ev.File, ev.Axis)
	}

	recs, err := app.OpenRecordings(args)
	if err != nil {
		return err
	}

	svc := app.Services{PlotDir: cfg.PlotDir}
	if plotDir != "" {
		svc.PlotDir = plotDir
	}
	if !noStore {
		st, err := store.Open(cfg.DBPath)
		if err != nil {
			return fmt.Errorf("failed to open db: %w", err)
		}
		defer func() {
			if cerr := st.Close(); cerr != nil {
				log.Printf("calibration: failed to close db: %v", cerr)
			}
		}()
		svc.Store = st
	}
	if publish {
		pub, closePub, err := app.ConnectPublisher(cfg)
		if err != nil {
			return fmt.Errorf("failed to connect to MQTT: %w", err)
		}
		defer closePub()
		svc.Publisher = pub
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res, err := app.RunCalibration(ctx, svc, opts, recs)
	if err != nil {
		return err
	}

	payload, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return err
	}
	if jsonOut != "" {
		if err := os.WriteFile(jsonOut, payload, 0o644); err != nil {
			return err
		}
	}
	summary, err := app.FormatCalibration(payload)
	if err != nil {
		return err
	}
	fmt.Print(summary)
	return nil
}
