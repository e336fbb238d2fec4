// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// ./cmd/checkide/main.go
//
// Validity check of one recording: data presence, start/end alignment
// across channels, per-block sample rate drift, missing blocks and optional
// value ranges.
//
// Run:
//
//	checkide recording.json -e expected.toml -o block_failures.txt
//
// Prints "Tests passed!" or one line per failing channel and exits 1 on failure.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/relabs-tech/birther/internal/app"
	"github.com/relabs-tech/birther/internal/checkide"
	"github.com/relabs-tech/birther/internal/config"
	"github.com/relabs-tech/birther/internal/recording"
	"github.com/relabs-tech/birther/internal/store"
)

var errChecksFailed = errors.New("checks failed")

var (
	expectedPath string
	outputPath   string
	configPath   string
	saveRecord   bool
	publish      bool
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		if !errors.Is(err, errChecksFailed) {
			fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		}
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "checkide <recording>",
		Short:         "Check a recording for missing data, drift and range violations",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runCheck,
	}
	cmd.Flags().StringVarP(&expectedPath, "expectedvalues", "e", "", "JSON or TOML expectation table")
	cmd.Flags().StringVarP(&outputPath, "outputfile", "o", "", "append block rate failures to this file")
	cmd.Flags().StringVar(&configPath, "config", "", "birther config file")
	cmd.Flags().BoolVar(&saveRecord, "save", false, "store the outcome in the product database")
	cmd.Flags().BoolVar(&publish, "publish", false, "publish the outcome over MQTT")
	return cmd
}

func runCheck(_ *cobra.Command, args []string) error {
	if err := config.InitGlobal(configPath); err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	cfg := config.Get()

	exp := checkide.Expectations{}
	if expectedPath != "" {
		var err error
		if exp, err = checkide.LoadExpectations(expectedPath); err != nil {
			return err
		}
	}
	opts := app.CheckOptions(cfg)
	if outputPath != "" {
		opts.BlocksOutput = outputPath
	}

	ds, err := recording.Open(args[0])
	if err != nil {
		return err
	}

	var svc app.Services
	if saveRecord {
		st, err := store.Open(cfg.DBPath)
		if err != nil {
			return fmt.Errorf("failed to open db: %w", err)
		}
		defer func() {
			if cerr := st.Close(); cerr != nil {
				log.Printf("checkide: failed to close db: %v", cerr)
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

	res := app.RunCheck(context.Background(), svc, filepath.Base(args[0]), ds, exp, opts)
	if res.Passed {
		fmt.Println("Tests passed!")
		return nil
	}
	for _, line := range res.Lines {
		fmt.Println(line)
	}
	return errChecksFailed
}
