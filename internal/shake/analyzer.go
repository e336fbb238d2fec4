// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package shake finds the driven shake and a quiet stretch in one shaker
// recording of a triaxial accelerometer, and measures both.
package shake

import (
	"fmt"
	"log"
	"math"
	"strings"

	"github.com/relabs-tech/birther/internal/dsp"
	"github.com/relabs-tech/birther/internal/imu"
	"github.com/relabs-tech/birther/internal/recording"
	"github.com/relabs-tech/birther/internal/shakeprofile"
)

// Params tunes the search. Sample offsets are counted after SkipTime is trimmed.
type Params struct {
	MinSampleRate    float64 // Hz
	HighpassHz       float64
	LowpassHz        float64 // applied before the quiet mean; 0 uses the raw mean
	FilterOrder      int
	SkipTime         float64 // s trimmed from each end
	BigThreshold     float64 // g, high-passed
	SmallThreshold   float64 // g, high-passed
	StartOffset      int     // samples from the first crossing to the window start
	EndOffset        int     // samples from the first crossing to the window end
	QuietSpan        float64 // s
	QuietOverlap     float64 // fraction, capped at 0.9
	ProfileShakeSpan float64 // s taken around the middle of a profile shake
}

// DefaultParams returns the values tuned for the production shaker fixture.
func DefaultParams() Params {
	return Params{
		MinSampleRate:    1000,
		HighpassHz:       10,
		LowpassHz:        2.55,
		FilterOrder:      5,
		SkipTime:         2,
		BigThreshold:     6,
		SmallThreshold:   3,
		StartOffset:      1000,
		EndOffset:        2000,
		QuietSpan:        1,
		QuietOverlap:     0.5,
		ProfileShakeSpan: 1,
	}
}

// Window limits the analysis to Start..End, in recording ticks.
type Window struct {
	Start float64
	End   float64
}

// Analysis is the working state for one accelerometer in one recording.
// Gain and Offset are filled in by the calibration step.
type Analysis struct {
	ChannelID   int     `json:"channel_id"`
	ChannelName string  `json:"channel_name"`
	Sensor      string  `json:"sensor"`
	Railed      bool    `json:"railed"`
	SampleRate  float64 `json:"sample_rate"`
	Shaken      int     `json:"shaken"`

	Amplitude  float64 `json:"amplitude"`
	RMS        imu.XYZ `json:"rms"`
	ShakeStart float64 `json:"shake_start"` // s
	ShakeEnd   float64 `json:"shake_end"`

	QuietStart float64 `json:"quiet_start"`
	QuietEnd   float64 `json:"quiet_end"`
	QuietMean  float64 `json:"quiet_mean"`

	Gain   float64 `json:"gain"`
	Offset float64 `json:"offset"`

	// set when the profile could not be lined up and its nominal timing was used
	ProfileError string `json:"profile_error,omitempty"`

	// high-passed X/Y/Z over the shake window, time in seconds
	Shake recording.Frame `json:"-"`
}

// Analyzer runs the search with fixed parameters. With a Profile set, the
// shake and quiet windows come from the profile lined up with the data
// instead of from threshold crossings.
type Analyzer struct {
	Params  Params
	Profile *shakeprofile.Profile
}

// NewAnalyzer returns an analyzer using p.
func NewAnalyzer(p Params) *Analyzer {
	return &Analyzer{Params: p}
}

// IsRailed reports whether the sensor clips below the 10 g shake.
func IsRailed(sensor string) bool {
	return strings.Contains(strings.ToUpper(sensor), "ADXL355")
}

// CalcShaken returns the column (1..3) with the largest standard deviation.
// cols[0] is time.
func CalcShaken(cols [][]float64) int {
	if len(cols) < 2 {
		return -1
	}
	sd := make([]float64, len(cols)-1)
	for i, c := range cols[1:] {
		sd[i] = dsp.StdDev(c)
	}
	return dsp.ArgMax(sd) + 1
}

// AxisPositions returns the subchannel positions of X, Y and Z, matched by
// the axis letter in the subchannel name.
func AxisPositions(ch *recording.Channel) ([3]int, error) {
	pos := [3]int{-1, -1, -1}
	for i, sc := range ch.Subchannels {
		axis := -1
		switch {
		case strings.Contains(sc.Name, "X"):
			axis = imu.X
		case strings.Contains(sc.Name, "Y"):
			axis = imu.Y
		case strings.Contains(sc.Name, "Z"):
			axis = imu.Z
		}
		if axis < 0 {
			continue
		}
		if pos[axis] >= 0 {
			return pos, &Error{Op: "find axes", ChannelID: ch.ID, ChannelName: ch.Name, Err: ErrAxisConflict,
				Detail: fmt.Sprintf("found multiple %s axes: %d and %d", imu.AxisName(axis), ch.Subchannels[pos[axis]].ID, sc.ID)}
		}
		pos[axis] = i
	}
	for axis, p := range pos {
		if p < 0 {
			return pos, &Error{Op: "find axes", ChannelID: ch.ID, ChannelName: ch.Name, Err: ErrAxisConflict,
				Detail: fmt.Sprintf("no %s subchannel", imu.AxisName(axis))}
		}
	}
	return pos, nil
}

// ShakeWindow returns [start, end) of the steady shake in the high-passed
// shaken axis. For a railed sensor the second, smaller shake is used: the
// search restarts halfway between the first big crossing and the last small one.
func ShakeWindow(hp []float64, p Params, railed bool) (int, int, error) {
	first := dsp.FirstAbove(hp, p.BigThreshold)
	if first < 0 {
		return 0, 0, fmt.Errorf("no sample above %g g", p.BigThreshold)
	}
	cross, last := first, dsp.LastAbove(hp, p.BigThreshold)
	if railed {
		last = dsp.LastAbove(hp, p.SmallThreshold)
		mid := (first + last) / 2
		k := dsp.FirstAbove(hp[mid:], p.SmallThreshold)
		if k < 0 {
			return 0, 0, fmt.Errorf("no small shake after sample %d", mid)
		}
		cross = mid + k
	}
	start := cross + p.StartOffset
	end := min(cross+p.EndOffset, last+1)
	if end-start < 2 {
		return 0, 0, fmt.Errorf("shake window %d..%d too short (crossings %d..%d)", start, end, cross, last)
	}
	return start, end, nil
}

// FindQuietSegment returns the start of the span-sample window of x with the
// smallest standard deviation, or -1 when x is shorter than span.
func FindQuietSegment(x []float64, span int, overlap float64) int {
	return quietest(x, span, overlap, [][2]int{{0, len(x) - span}})
}

// quietest scans each [from, to) range for window starts.
func quietest(x []float64, span int, overlap float64, ranges [][2]int) int {
	if span <= 0 {
		return -1
	}
	if overlap > 0.9 {
		overlap = 0.9
	}
	step := max(1, int(float64(span)*(1-overlap)))
	best, bestSD := -1, math.Inf(1)
	for _, r := range ranges {
		for s := max(r[0], 0); s < r[1] && s+span <= len(x); s += step {
			if sd := dsp.StdDev(x[s : s+span]); sd < bestSD {
				best, bestSD = s, sd
			}
		}
	}
	return best
}

// Analyze measures one accelerometer channel. shaken is the shaken axis
// (0..2) or -1 to detect it. Any channel transform is cleared first and stays
// cleared.
func (a *Analyzer) Analyze(ch *recording.Channel, shaken int, win *Window) (*Analysis, error) {
	p := a.Params
	fail := func(op string, err error, detail string) error {
		return &Error{Op: op, ChannelID: ch.ID, ChannelName: ch.Name, Err: err, Detail: detail}
	}

	ch.ClearTransforms()
	sess := ch.Session()
	if sess == nil {
		return nil, fail("find shake", ErrNoData, "")
	}
	rate := sess.SampleRate()
	if rate < p.MinSampleRate {
		return nil, &Error{Op: "find shake", ChannelID: ch.ID, ChannelName: ch.Name, Err: ErrLowSampleRate,
			Value: rate, Constraint: fmt.Sprintf(">= %g Hz", p.MinSampleRate)}
	}
	pos, err := AxisPositions(ch)
	if err != nil {
		return nil, err
	}

	var from, to *float64
	if win != nil {
		from, to = &win.Start, &win.End
	}
	frame := sess.Frame(from, to)
	tps := sess.TicksPerSecond()
	times := make([]float64, frame.Len())
	for i, t := range frame.Time {
		times[i] = t / tps
	}
	raw := [3][]float64{frame.Axes[pos[0]], frame.Axes[pos[1]], frame.Axes[pos[2]]}

	if shaken < 0 {
		shaken = CalcShaken([][]float64{times, raw[0], raw[1], raw[2]}) - 1
	}
	if shaken < 0 || shaken > 2 {
		return nil, fail("find shake", ErrShakeNotFound, fmt.Sprintf("bad shaken axis %d", shaken))
	}

	var hp [3][]float64
	for k := range 3 {
		if hp[k], err = dsp.Filter(raw[k], p.HighpassHz, rate, dsp.Highpass, p.FilterOrder); err != nil {
			return nil, fail("find shake", err, "")
		}
	}

	skip := int(p.SkipTime * rate)
	span := int(p.QuietSpan * rate)
	n := len(times) - 2*skip
	if n <= span {
		return nil, fail("find shake", ErrShakeNotFound,
			fmt.Sprintf("%d samples left after skipping %d at each end", max(n, 0), skip))
	}
	t := times[skip : skip+n]
	for k := range 3 {
		raw[k] = raw[k][skip : skip+n]
		hp[k] = hp[k][skip : skip+n]
	}

	railed := IsRailed(ch.Sensor)
	var sStart, sEnd, qStart int
	var adjErr error
	if a.Profile != nil {
		var ranges [][2]int
		sStart, sEnd, ranges, adjErr, err = a.profileWindows(ch, times, frame.Axes[pos[shaken]], rate, skip, n, span, railed)
		if err != nil {
			if adjErr != nil {
				err = fmt.Errorf("%w; %v", err, adjErr)
			}
			return nil, fail("find shake", ErrShakeNotFound, err.Error())
		}
		qStart = quietest(raw[shaken], span, p.QuietOverlap, ranges)
	} else {
		if sStart, sEnd, err = ShakeWindow(hp[shaken], p, railed); err != nil {
			return nil, fail("find shake", ErrShakeNotFound, err.Error())
		}
		qStart = FindQuietSegment(raw[shaken], span, p.QuietOverlap)
	}
	if sEnd > n {
		return nil, fail("find shake", ErrShakeNotFound, fmt.Sprintf("shake window ends at %d past %d samples", sEnd, n))
	}
	if qStart < 0 {
		return nil, fail("find quiet", ErrShakeNotFound, "no quiet window fits")
	}

	res := &Analysis{
		ChannelID:   ch.ID,
		ChannelName: ch.Name,
		Sensor:      ch.Sensor,
		Railed:      railed,
		SampleRate:  rate,
		Shaken:      shaken,
		Amplitude:   dsp.ReliableAmplitude(hp[shaken][sStart:sEnd]),
		RMS: imu.NewXYZ(
			dsp.RMS(hp[0][sStart:sEnd]),
			dsp.RMS(hp[1][sStart:sEnd]),
			dsp.RMS(hp[2][sStart:sEnd]),
		),
		ShakeStart: t[sStart],
		ShakeEnd:   t[sEnd-1],
		QuietStart: t[qStart],
		QuietEnd:   t[qStart+span-1],
		Shake:      recording.Frame{Time: t, Axes: hp[:]}.Slice(sStart, sEnd),
	}

	if adjErr != nil {
		res.ProfileError = adjErr.Error()
	}

	quiet := raw[shaken]
	if p.LowpassHz > 0 {
		if quiet, err = dsp.Filter(quiet, p.LowpassHz, rate, dsp.Lowpass, p.FilterOrder); err != nil {
			return nil, fail("find quiet", err, "")
		}
	}
	res.QuietMean = dsp.Mean(quiet[qStart : qStart+span])
	return res, nil
}

// profileWindows lines the profile up with the untrimmed shaken axis and
// returns the shake window and the delay ranges, as trimmed sample indices.
// adjErr is the reason the nominal timing was kept, if it was.
func (a *Analyzer) profileWindows(ch *recording.Channel, times, values []float64, rate float64,
	skip, n, span int, railed bool) (start, end int, ranges [][2]int, adjErr, err error) {
	prof := a.Profile.Clone()
	rel := make([]float64, len(times))
	for i, t := range times {
		rel[i] = t - times[0]
	}
	if adjErr = prof.Adjust(rel, values, rate); adjErr != nil {
		log.Printf("shake: channel %d: %v; using nominal %q timing", ch.ID, adjErr, prof.Name)
	}
	prof.ShiftIndices(rate, 0)
	prof.Shave(skip)

	si := prof.SelectShake(railed)
	if si < 0 {
		return 0, 0, nil, adjErr, fmt.Errorf("profile %q has no shakes", prof.Name)
	}
	seg := prof.Segments[si]
	length := int(a.Params.ProfileShakeSpan * rate)
	mid := (seg.StartIndex + seg.EndIndex) / 2
	start = max(0, mid-length/2)
	end = min(n, start+length)
	if end-start < 2 {
		return 0, 0, nil, adjErr, fmt.Errorf("%.0f g shake at samples %d..%d is outside the data", seg.Amp, seg.StartIndex, seg.EndIndex)
	}

	for _, di := range prof.Delays() {
		d := prof.Segments[di]
		if d.EndIndex-d.StartIndex > span {
			ranges = append(ranges, [2]int{d.StartIndex, min(d.EndIndex, n)})
		}
	}
	return start, end, ranges, adjErr, nil
}
