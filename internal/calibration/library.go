// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package calibration

import (
	"fmt"
	"math"

	"github.com/relabs-tech/birther/internal/imu"
	"github.com/relabs-tech/birther/internal/recording"
	"github.com/relabs-tech/birther/internal/shake"
)

// Transverse holds cross-axis sensitivities in percent. XY is measured while
// shaking Z, YZ while shaking X and XZ while shaking Y.
type Transverse struct {
	XY float64 `json:"xy"`
	YZ float64 `json:"yz"`
	XZ float64 `json:"xz"`
}

// Library gathers the three single-axis analyses of one accelerometer and,
// once finalized, its per-axis calibration.
type Library struct {
	Name      string  `json:"name"` // "hi" or "lo"
	ChannelID int     `json:"channel_id"`
	Sensor    string  `json:"sensor"`
	Target    float64 `json:"target"` // g
	Flips     imu.XYZ `json:"flips"`

	Files [3]string          `json:"files"`
	Axes  [3]*shake.Analysis `json:"axes"`

	Gain       imu.XYZ    `json:"gain"`
	Offset     imu.XYZ    `json:"offset"`
	Gravity    imu.XYZ    `json:"gravity"`
	Transverse Transverse `json:"transverse"`
}

// NewLibrary starts an empty library for channel ch.
func NewLibrary(name string, ch *recording.Channel, flips imu.XYZ) *Library {
	return &Library{
		Name:      name,
		ChannelID: ch.ID,
		Sensor:    ch.Sensor,
		Target:    TargetAmplitude(ch.Sensor),
		Flips:     flips,
	}
}

// Assign stores the analysis of the recording that shook a.Shaken.
func (l *Library) Assign(file string, a *shake.Analysis) error {
	if a.Shaken < 0 || a.Shaken > 2 {
		return &Error{Op: "assign", ChannelID: l.ChannelID, ChannelName: a.ChannelName, Err: ErrShakeNotFound,
			Detail: fmt.Sprintf("bad shaken axis %d in %q", a.Shaken, file)}
	}
	if prev := l.Axes[a.Shaken]; prev != nil {
		return &Error{Op: "assign", ChannelID: l.ChannelID, ChannelName: a.ChannelName, Err: ErrAxisConflict,
			Detail: fmt.Sprintf("%s shaken in both %q and %q", imu.AxisName(a.Shaken), l.Files[a.Shaken], file)}
	}
	l.Axes[a.Shaken] = a
	l.Files[a.Shaken] = file
	return nil
}

// Complete reports whether every axis has been assigned.
func (l *Library) Complete() bool {
	return l.Axes[0] != nil && l.Axes[1] != nil && l.Axes[2] != nil
}

// Means returns the quiet mean of each assigned axis, taken from the
// recording that shook it.
func (l *Library) Means() imu.XYZ {
	var m imu.XYZ
	for i, a := range l.Axes {
		if a != nil {
			m.Set(i, a.QuietMean)
		}
	}
	return m
}

// Amplitudes returns the measured shake amplitude of each assigned axis.
func (l *Library) Amplitudes() imu.XYZ {
	var m imu.XYZ
	for i, a := range l.Axes {
		if a != nil {
			m.Set(i, a.Amplitude)
		}
	}
	return m
}

// Finalize computes gains, offsets and transverse sensitivity against gravity.
func (l *Library) Finalize(gravity imu.XYZ) error {
	if !l.Complete() {
		return fmt.Errorf("%s accelerometer (channel %d): %w: have %s", l.Name, l.ChannelID, ErrIncomplete, l.Means())
	}
	flips, err := l.Flips.Values()
	if err != nil {
		return fmt.Errorf("%s flips: %w", l.Name, err)
	}
	g, err := gravity.Values()
	if err != nil {
		return fmt.Errorf("gravity: %w", err)
	}
	l.Gravity = gravity
	l.Gain, l.Offset = imu.XYZ{}, imu.XYZ{}
	for i, a := range l.Axes {
		gain := Gain(flips[i], a.Amplitude, l.Target)
		off := Offset(g[i], gain, a.QuietMean)
		l.Gain.Set(i, gain)
		l.Offset.Set(i, off)
		a.Gain, a.Offset = gain, off
	}
	l.Transverse = Transverse{
		XY: transverse(l.Axes[imu.Z].RMS, l.Gain, imu.Z),
		YZ: transverse(l.Axes[imu.X].RMS, l.Gain, imu.X),
		XZ: transverse(l.Axes[imu.Y].RMS, l.Gain, imu.Y),
	}
	return nil
}

// transverse is the gained cross-axis RMS as a percentage of the gained
// shaken-axis RMS.
func transverse(rms, gain imu.XYZ, shaken int) float64 {
	b, c := (shaken+1)%3, (shaken+2)%3
	den := math.Abs(rms.At(shaken) * gain.At(shaken))
	if den == 0 {
		return 0
	}
	return 100 * math.Hypot(rms.At(b)*gain.At(b), rms.At(c)*gain.At(c)) / den
}

// Apply installs the finalized gains and offsets as channel transforms.
func (l *Library) Apply(ch *recording.Channel) error {
	if !l.Gain.Complete() || !l.Offset.Complete() {
		return fmt.Errorf("%s accelerometer: %w", l.Name, ErrIncomplete)
	}
	pos, err := shake.AxisPositions(ch)
	if err != nil {
		return err
	}
	for i, p := range pos {
		ch.SetTransform(p, &recording.Transform{Gain: l.Gain.At(i), Offset: l.Offset.At(i)})
	}
	return nil
}

// GravityFromMeans returns sign(flip*mean) per axis. Z must point with gravity.
func GravityFromMeans(flips, means imu.XYZ) (imu.XYZ, error) {
	f, err := flips.Values()
	if err != nil {
		return imu.XYZ{}, fmt.Errorf("flips: %w", err)
	}
	m, err := means.Values()
	if err != nil {
		return imu.XYZ{}, fmt.Errorf("means: %w", err)
	}
	var g imu.XYZ
	for i := range 3 {
		g.Set(i, sign(f[i]*m[i]))
	}
	for i := range 3 {
		if g.At(i) == 0 {
			return g, &OrientationError{Axis: i, Gravity: g}
		}
	}
	if g.At(imu.Z) != 1 {
		return g, &OrientationError{Axis: imu.Z, Gravity: g}
	}
	return g, nil
}

func sign(v float64) float64 {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	}
	return 0
}
