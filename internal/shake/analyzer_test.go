// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package shake

import (
	"errors"
	"math"
	"math/rand/v2"
	"strings"
	"testing"

	"github.com/relabs-tech/birther/internal/imu"
	"github.com/relabs-tech/birther/internal/recording"
	"github.com/relabs-tech/birther/internal/shakeprofile"
)

func TestCalcShaken(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 7))
	n := 2000
	cols := make([][]float64, 4)
	for i := range cols {
		cols[i] = make([]float64, n)
	}
	for j := range n {
		cols[0][j] = float64(j)
		cols[1][j] = rng.NormFloat64()
		cols[2][j] = 10 * rng.NormFloat64()
		cols[3][j] = rng.NormFloat64()
	}
	if got := CalcShaken(cols); got != 2 {
		t.Errorf("CalcShaken = %d, want 2", got)
	}
}

func sine(n int, amp float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = amp * math.Sin(2*math.Pi*float64(i)/20)
	}
	return out
}

func concat(parts ...[]float64) []float64 {
	var out []float64
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func TestShakeWindow(t *testing.T) {
	p := DefaultParams()
	hp := concat(make([]float64, 1000), sine(4000, 10), make([]float64, 3000), sine(4000, 4), make([]float64, 1000))

	start, end, err := ShakeWindow(hp, p, false)
	if err != nil {
		t.Fatal(err)
	}
	// first sample above 6 g is a quarter-period-ish into the big shake
	if start < 2000 || start > 2010 || end-start != 1000 {
		t.Errorf("unrailed window = %d..%d", start, end)
	}

	start, end, err = ShakeWindow(hp, p, true)
	if err != nil {
		t.Fatal(err)
	}
	if start < 9000 || start > 9010 || end-start != 1000 {
		t.Errorf("railed window = %d..%d, want the small shake", start, end)
	}
}

func TestShakeWindowClampsToLastCrossing(t *testing.T) {
	p := DefaultParams()
	hp := concat(make([]float64, 100), sine(1500, 10), make([]float64, 500))
	start, end, err := ShakeWindow(hp, p, false)
	if err != nil {
		t.Fatal(err)
	}
	if end > 1600 || start >= end {
		t.Errorf("window = %d..%d, want end clamped inside the shake", start, end)
	}

	p.EndOffset = 1200
	p.StartOffset = 1700
	if _, _, err := ShakeWindow(hp, p, false); err == nil {
		t.Error("expected error for an empty window")
	}
	if _, _, err := ShakeWindow(make([]float64, 100), DefaultParams(), false); err == nil {
		t.Error("expected error without a shake")
	}
}

func TestFindQuietSegment(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	x := make([]float64, 10000)
	for i := range x {
		sigma := 1.0
		if i >= 6000 && i < 7500 {
			sigma = 0.01
		}
		x[i] = rng.NormFloat64() * sigma
	}
	s := FindQuietSegment(x, 1000, 0.5)
	if s < 6000 || s+1000 > 7500 {
		t.Errorf("quiet start = %d, want inside 6000..6500", s)
	}
	if got := FindQuietSegment(x[:500], 1000, 0.5); got != -1 {
		t.Errorf("short input start = %d, want -1", got)
	}
	// overlap above 0.9 still moves forward
	if s := FindQuietSegment(x, 1000, 1.5); s < 6000 || s+1000 > 7500 {
		t.Errorf("capped-overlap quiet start = %d", s)
	}
}

func synthChannel(t *testing.T, axis, id int) *recording.Channel {
	t.Helper()
	ds := recording.Synth(recording.DefaultSynthOptions(axis))
	ch, ok := ds.Channel(id)
	if !ok {
		t.Fatalf("synthetic recording has no channel %d", id)
	}
	return ch
}

func TestAnalyzeThresholdSearch(t *testing.T) {
	ch := synthChannel(t, imu.Z, 8)
	ch.SetTransform(0, &recording.Transform{Gain: 2, Offset: 1})

	res, err := NewAnalyzer(DefaultParams()).Analyze(ch, -1, nil)
	if err != nil {
		t.Fatal(err)
	}
	if ch.HasTransforms() {
		t.Error("transform should be cleared by analysis")
	}
	if res.Shaken != imu.Z {
		t.Fatalf("shaken = %d, want Z", res.Shaken)
	}
	if math.Abs(res.SampleRate-5000) > 1e-6 {
		t.Errorf("sample rate = %v", res.SampleRate)
	}
	if math.Abs(res.Amplitude-10) > 0.1 {
		t.Errorf("amplitude = %v, want about 10", res.Amplitude)
	}
	if rz := res.RMS.At(imu.Z); math.Abs(rz-10/math.Sqrt2) > 0.1 {
		t.Errorf("RMS z = %v, want about %v", rz, 10/math.Sqrt2)
	}
	if rx := res.RMS.At(imu.X); rx > 0.2 {
		t.Errorf("RMS x = %v, want cross-talk only", rx)
	}
	if math.Abs(res.QuietMean-1) > 0.01 {
		t.Errorf("quiet mean = %v, want about 1", res.QuietMean)
	}
	if res.QuietStart < 6.2 || res.QuietEnd > 9.2 {
		t.Errorf("quiet window %v..%v not between the shakes", res.QuietStart, res.QuietEnd)
	}
	if res.ShakeStart < 3.1 || res.ShakeEnd > 6.1 {
		t.Errorf("shake window %v..%v not in the steady 10 g shake", res.ShakeStart, res.ShakeEnd)
	}
	if res.Shake.Len() != 1000 {
		t.Errorf("shake frame has %d samples, want 1000", res.Shake.Len())
	}
}

func TestAnalyzeRailedSensorUsesSmallShake(t *testing.T) {
	ch := synthChannel(t, imu.Y, 32)
	res, err := NewAnalyzer(DefaultParams()).Analyze(ch, imu.Y, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Railed {
		t.Error("ADXL355 should be treated as railed")
	}
	if math.Abs(res.Amplitude-4) > 0.1 {
		t.Errorf("amplitude = %v, want about 4", res.Amplitude)
	}
	if res.ShakeStart < 9.2 {
		t.Errorf("shake window starts at %v, want in the 4 g shake", res.ShakeStart)
	}
}

func TestAnalyzeWithProfile(t *testing.T) {
	ch := synthChannel(t, imu.X, 8)
	a := NewAnalyzer(DefaultParams())
	a.Profile = shakeprofile.TenGFourG()
	res, err := a.Analyze(ch, -1, nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.Shaken != imu.X {
		t.Fatalf("shaken = %d, want X", res.Shaken)
	}
	if math.Abs(res.Amplitude-10) > 0.1 {
		t.Errorf("amplitude = %v, want about 10", res.Amplitude)
	}
	if math.Abs(res.QuietMean-1) > 0.01 {
		t.Errorf("quiet mean = %v", res.QuietMean)
	}
	if a.Profile.Segments[1].Start != 4 {
		t.Error("analysis must not modify the configured profile")
	}
	if res.ProfileError != "" {
		t.Errorf("profile error = %q", res.ProfileError)
	}
}

func TestAnalyzeWithProfileRailedSensor(t *testing.T) {
	ch := synthChannel(t, imu.Y, 32)
	a := NewAnalyzer(DefaultParams())
	a.Profile = shakeprofile.TenGFourG()
	res, err := a.Analyze(ch, imu.Y, nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.ProfileError != "" {
		t.Fatalf("profile not lined up: %s", res.ProfileError)
	}
	// the synthetic 4 g shake runs from 9.2 s to 12.4 s
	if res.ShakeStart < 9.2 || res.ShakeEnd > 12.4 {
		t.Errorf("shake window %v..%v not in the 4 g shake", res.ShakeStart, res.ShakeEnd)
	}
	if math.Abs(res.Amplitude-4) > 0.1 {
		t.Errorf("amplitude = %v, want about 4", res.Amplitude)
	}
	if res.QuietStart < 6.2 || res.QuietEnd > 9.2 {
		t.Errorf("quiet window %v..%v not between the shakes", res.QuietStart, res.QuietEnd)
	}
}

func TestAnalyzeRecordsProfileError(t *testing.T) {
	ch := synthChannel(t, imu.Z, 8)
	a := NewAnalyzer(DefaultParams())
	// no band fits a 2600 Hz shake at 5000 Hz, so the nominal timing is kept
	a.Profile = shakeprofile.New("bad",
		shakeprofile.Delay(1, shakeprofile.DelayStart),
		shakeprofile.Shake(10, 5, 3, 3, 2600),
		shakeprofile.Delay(1, shakeprofile.DelayEnd),
	)
	res, err := a.Analyze(ch, imu.Z, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(res.ProfileError, "adjust profile") {
		t.Errorf("profile error = %q", res.ProfileError)
	}
}

func TestAnalyzeLowSampleRate(t *testing.T) {
	ch := synthChannel(t, imu.Z, 8)
	p := DefaultParams()
	p.MinSampleRate = 10000
	_, err := NewAnalyzer(p).Analyze(ch, -1, nil)
	if !errors.Is(err, ErrLowSampleRate) {
		t.Fatalf("err = %v, want ErrLowSampleRate", err)
	}
	var aerr *Error
	if !errors.As(err, &aerr) || aerr.ChannelID != 8 || aerr.Value != 5000 {
		t.Errorf("error detail = %+v", aerr)
	}
}

func TestAxisPositionsConflict(t *testing.T) {
	ch := &recording.Channel{ID: 3, Subchannels: []recording.Subchannel{{ID: 0, Name: "X"}, {ID: 1, Name: "X2"}, {ID: 2, Name: "Z"}}}
	if _, err := AxisPositions(ch); !errors.Is(err, ErrAxisConflict) {
		t.Errorf("err = %v, want ErrAxisConflict", err)
	}
}
