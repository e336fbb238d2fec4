// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"time"

	"github.com/relabs-tech/birther/internal/calibration"
	"github.com/relabs-tech/birther/internal/checkide"
	"github.com/relabs-tech/birther/internal/config"
	"github.com/relabs-tech/birther/internal/recording"
	"github.com/relabs-tech/birther/internal/shake"
	"github.com/relabs-tech/birther/internal/shakeprofile"
	"github.com/relabs-tech/birther/internal/store"
)

// Services are the optional outputs of a run. Nil fields are skipped.
type Services struct {
	Store     *store.Store
	Publisher *Publisher
	Hub       *Hub
	PlotDir   string
}

// ShakeParams maps the analysis keys of cfg onto shake.Params.
func ShakeParams(cfg *config.Config) shake.Params {
	p := shake.DefaultParams()
	p.MinSampleRate = cfg.MinSampleRate
	p.HighpassHz = cfg.HighpassHz
	p.LowpassHz = cfg.LowpassHz
	p.FilterOrder = cfg.FilterOrder
	p.SkipTime = cfg.SkipTime
	p.BigThreshold = cfg.BigShakeThreshold
	p.SmallThreshold = cfg.SmallShakeThreshold
	p.StartOffset = cfg.ShakeStartOffset
	p.EndOffset = cfg.ShakeEndOffset
	p.QuietSpan = cfg.QuietSpan
	p.QuietOverlap = cfg.QuietOverlap
	return p
}

// CheckOptions maps the checker keys of cfg onto checkide.Options.
func CheckOptions(cfg *config.Config) checkide.Options {
	opts := checkide.DefaultOptions()
	opts.DurationTolerance = cfg.DurationTolerance
	opts.BlocksOutput = cfg.BlocksOutput
	return opts
}

// CalibrationOptions builds calibrator options from cfg, loading the shake
// profile when one is configured.
func CalibrationOptions(cfg *config.Config) (calibration.Options, error) {
	opts := calibration.DefaultOptions()
	opts.Params = ShakeParams(cfg)
	if cfg.ProfilePath != "" {
		p, err := shakeprofile.Resolve(cfg.ProfilePath)
		if err != nil {
			return opts, fmt.Errorf("shake profile: %w", err)
		}
		opts.Profile = p
	}
	return opts, nil
}

// CheckResult is the outcome of one validity check.
type CheckResult struct {
	File   string          `json:"file"`
	Serial string          `json:"serial"`
	Passed bool            `json:"passed"`
	Report checkide.Report `json:"-"`
	Lines  []string        `json:"lines"`
}

// RunCheck validates one decoded recording and hands the outcome to svc.
// Store and publish failures are logged, not returned.
func RunCheck(ctx context.Context, svc Services, name string, ds *recording.Dataset, exp checkide.Expectations, opts checkide.Options) CheckResult {
	passed, rep := checkide.Check(ds, exp, opts)
	res := CheckResult{
		File:   name,
		Serial: ds.DeviceInfo().Serial,
		Passed: passed,
		Report: rep,
		Lines:  rep.Lines(),
	}
	at := time.Now().UTC()

	if svc.Store != nil {
		if _, err := svc.Store.SaveValidity(ctx, res.File, res.Serial, at, passed, rep); err != nil {
			log.Printf("check: store error: %v", err)
		}
	}
	if svc.Publisher != nil {
		msg := ValidityMessage{File: res.File, Serial: res.Serial, Checked: at, Passed: passed, Lines: res.Lines}
		if err := svc.Publisher.PublishValidity(msg); err != nil {
			log.Printf("check: publish error: %v", err)
		}
	}
	return res
}

// OpenRecordings decodes each path, naming recordings by base file name.
func OpenRecordings(paths []string) ([]calibration.Recording, error) {
	recs := make([]calibration.Recording, 0, len(paths))
	for _, p := range paths {
		ds, err := recording.Open(p)
		if err != nil {
			return nil, err
		}
		recs = append(recs, calibration.Recording{Name: filepath.Base(p), Source: ds})
	}
	return recs, nil
}

// RunCalibration calibrates one device from recs and hands the result to svc.
// Progress goes to the hub and the broker as it happens.
func RunCalibration(ctx context.Context, svc Services, opts calibration.Options, recs []calibration.Recording) (*calibration.Result, error) {
	progress := opts.Progress
	opts.Progress = func(ev calibration.Event) {
		if progress != nil {
			progress(ev)
		}
		if svc.Hub != nil {
			svc.Hub.Broadcast(WSResponse{Type: "progress", Event: ev})
		}
		if svc.Publisher != nil {
			if err := svc.Publisher.PublishProgress(ev); err != nil {
				log.Printf("calibration: progress publish error: %v", err)
			}
		}
	}

	res, err := calibration.New(opts).Run(ctx, recs)
	if err != nil {
		if svc.Hub != nil {
			svc.Hub.Broadcast(WSResponse{Type: "error", Message: err.Error()})
		}
		return nil, err
	}

	if svc.Store != nil {
		if _, err := svc.Store.SaveCalibration(ctx, res); err != nil {
			return res, fmt.Errorf("save calibration: %w", err)
		}
	}
	if svc.PlotDir != "" {
		for _, lib := range res.Libraries() {
			path, err := WriteShakePlot(svc.PlotDir, res.Device.Serial, lib)
			if err != nil {
				log.Printf("calibration: plot error: %v", err)
				continue
			}
			log.Printf("calibration: wrote %s", path)
		}
	}
	if svc.Publisher != nil {
		if err := svc.Publisher.PublishCalibration(res); err != nil {
			log.Printf("calibration: publish error: %v", err)
		}
	}
	if svc.Hub != nil {
		svc.Hub.Broadcast(WSResponse{Type: "complete", Results: res})
	}
	return res, nil
}
