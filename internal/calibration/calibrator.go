// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package calibration turns three single-axis shaker recordings of a device
// into per-axis gain and offset for each of its accelerometers.
package calibration

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/relabs-tech/birther/internal/env"
	"github.com/relabs-tech/birther/internal/imu"
	"github.com/relabs-tech/birther/internal/recording"
	"github.com/relabs-tech/birther/internal/shake"
	"github.com/relabs-tech/birther/internal/shakeprofile"
)

// DeviceSource is a recording that knows which device produced it.
type DeviceSource interface {
	recording.Source
	DeviceInfo() recording.DeviceInfo
}

// Recording is one named shaker recording.
type Recording struct {
	Name   string
	Source DeviceSource
}

// Stage names a step reported through Options.Progress.
type Stage string

const (
	StageAnalyzing Stage = "analyzing"
	StageAnalyzed  Stage = "analyzed"
	StageFinalized Stage = "finalized"
)

// Event is a progress notification.
type Event struct {
	Stage   Stage  `json:"stage"`
	Index   int    `json:"index"` // recording position, -1 for run-level events
	File    string `json:"file,omitempty"`
	Axis    string `json:"axis,omitempty"`
	Message string `json:"message,omitempty"`
}

// Options configures a Calibrator.
type Options struct {
	Params   shake.Params
	Profile  *shakeprofile.Profile // nil uses threshold search
	Window   *shake.Window         // nil analyzes whole recordings
	HiFlips  *imu.XYZ              // overrides the part-number table
	LoFlips  *imu.XYZ
	Progress func(Event)
}

// DefaultOptions returns the production analysis parameters.
func DefaultOptions() Options {
	return Options{Params: shake.DefaultParams()}
}

// Result is a finished device calibration. Lo is nil when the device has no
// secondary accelerometer; Hi is nil when it has no high-g one.
type Result struct {
	SessionID  uuid.UUID            `json:"session_id"`
	Device     recording.DeviceInfo `json:"device"`
	Created    time.Time            `json:"created"`
	Hi         *Library             `json:"hi,omitempty"`
	Lo         *Library             `json:"lo,omitempty"`
	Gravity    imu.XYZ              `json:"gravity"`
	Conditions env.Sample           `json:"conditions"`
	Files      []string             `json:"files"`
}

// Libraries returns the non-nil libraries, hi first.
func (r *Result) Libraries() []*Library {
	var out []*Library
	for _, l := range []*Library{r.Hi, r.Lo} {
		if l != nil {
			out = append(out, l)
		}
	}
	return out
}

// Calibrator runs the three-recording calibration of one device.
type Calibrator struct {
	opts     Options
	analyzer *shake.Analyzer
	now      func() time.Time
}

// New returns a calibrator using opts.
func New(opts Options) *Calibrator {
	a := shake.NewAnalyzer(opts.Params)
	a.Profile = opts.Profile
	return &Calibrator{opts: opts, analyzer: a, now: time.Now}
}

func (c *Calibrator) emit(ev Event) {
	if c.opts.Progress != nil {
		c.opts.Progress(ev)
	}
}

// Run analyzes recs, one per shaken axis in any order, and finalizes every
// accelerometer found. It checks ctx between recordings. Analysis clears the
// channel transforms of each recording and leaves them cleared.
func (c *Calibrator) Run(ctx context.Context, recs []Recording) (*Result, error) {
	if len(recs) != 3 {
		return nil, fmt.Errorf("%w: need 3 recordings, got %d", ErrIncomplete, len(recs))
	}
	dev := recs[0].Source.DeviceInfo()
	hiFlips, loFlips := AxisFlips(dev, c.opts.HiFlips, c.opts.LoFlips)

	res := &Result{
		SessionID: uuid.New(),
		Device:    dev,
		Created:   c.now().UTC(),
	}
	var samples []env.Sample
	for i, rec := range recs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if other := rec.Source.DeviceInfo(); other.Serial != dev.Serial {
			return nil, fmt.Errorf("%w: %q is from %s, %q from %s", ErrDeviceMismatch, recs[0].Name, dev.Serial, rec.Name, other.Serial)
		}
		c.emit(Event{Stage: StageAnalyzing, Index: i, File: rec.Name})

		hiCh, loCh, err := FindAccelerometers(rec.Source, dev.PartNumber)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", rec.Name, err)
		}
		if i == 0 {
			if hiCh != nil {
				res.Hi = NewLibrary("hi", hiCh, hiFlips)
			}
			if loCh != nil {
				res.Lo = NewLibrary("lo", loCh, loFlips)
			}
		}
		if (hiCh == nil) != (res.Hi == nil) || (loCh == nil) != (res.Lo == nil) {
			return nil, fmt.Errorf("%s: %w: accelerometers differ from %s", rec.Name, ErrNoAccelerometer, recs[0].Name)
		}

		// lo goes first; its shaken axis is handed to hi
		shaken := -1
		for _, step := range []struct {
			ch  *recording.Channel
			lib *Library
		}{{loCh, res.Lo}, {hiCh, res.Hi}} {
			if step.ch == nil {
				continue
			}
			a, err := c.analyzer.Analyze(step.ch, shaken, c.opts.Window)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", rec.Name, err)
			}
			if err := step.lib.Assign(rec.Name, a); err != nil {
				return nil, err
			}
			shaken = a.Shaken
		}
		samples = append(samples, env.FromSource(rec.Name, rec.Source))
		c.emit(Event{Stage: StageAnalyzed, Index: i, File: rec.Name, Axis: imu.AxisName(shaken)})
	}

	for _, lib := range res.Libraries() {
		if !lib.Complete() {
			return nil, fmt.Errorf("%s accelerometer: %w: means %s", lib.Name, ErrIncomplete, lib.Means())
		}
	}

	gravity, err := c.gravity(dev, res)
	if err != nil {
		return nil, err
	}
	res.Gravity = gravity
	for _, lib := range res.Libraries() {
		if err := lib.Finalize(gravity); err != nil {
			return nil, err
		}
		log.Printf("calibration: %s channel %d: amplitude %s gain %s offset %s", lib.Name, lib.ChannelID, lib.Amplitudes(), lib.Gain, lib.Offset)
	}

	primary := res.Hi
	if primary == nil {
		primary = res.Lo
	}
	res.Files = primary.Files[:]
	res.Conditions = env.Average(dev.Serial, samples)
	c.emit(Event{Stage: StageFinalized, Index: -1, Message: res.SessionID.String()})
	return res, nil
}

// gravity derives the gravity direction from the accelerometer that sees DC:
// the hi one on mini devices, the secondary one elsewhere.
func (c *Calibrator) gravity(dev recording.DeviceInfo, res *Result) (imu.XYZ, error) {
	lib := res.Lo
	if IsMini(dev.PartNumber) && res.Hi != nil {
		lib = res.Hi
	}
	if lib == nil {
		log.Printf("calibration: %s has no DC accelerometer; assuming gravity (1, 1, 1)", dev.Serial)
		return imu.Fill(1), nil
	}
	return GravityFromMeans(lib.Flips, lib.Means())
}

// FindAccelerometers returns the hi and lo accelerometer channels of src.
// A missing lo channel is not an error; lo stands alone on devices without
// a hi accelerometer.
func FindAccelerometers(src recording.Source, partNumber string) (hi, lo *recording.Channel, err error) {
	if HasHiAccel(partNumber) {
		if hi = findAccel(src, HiChannels, -1); hi == nil {
			return nil, nil, fmt.Errorf("%w: primary not in channels %v", ErrNoAccelerometer, HiChannels)
		}
	}
	exclude := -1
	if hi != nil {
		exclude = hi.ID
	}
	lo = findAccel(src, LoChannels, exclude)
	if hi == nil && lo == nil {
		return nil, nil, fmt.Errorf("%w: secondary not in channels %v", ErrNoAccelerometer, LoChannels)
	}
	return hi, lo, nil
}

func findAccel(src recording.Source, ids []int, exclude int) *recording.Channel {
	for _, id := range ids {
		if id == exclude {
			continue
		}
		if ch, ok := src.Channel(id); ok && len(ch.Subchannels) >= 3 {
			return ch
		}
	}
	return nil
}
