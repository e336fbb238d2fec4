// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package dsp

import (
	"math"
	"testing"
)

func near(a, b, tol float64) bool { return math.Abs(a-b) <= tol }

func TestStats(t *testing.T) {
	x := []float64{1, 2, 3, 4}
	if got := Mean(x); got != 2.5 {
		t.Errorf("Mean = %g", got)
	}
	if got := StdDev(x); !near(got, math.Sqrt(1.25), 1e-12) {
		t.Errorf("StdDev = %g, want population stddev", got)
	}
	if got := RMS([]float64{3, -3}); got != 3 {
		t.Errorf("RMS = %g", got)
	}
	if got := Percentile(x, 50); got != 2.5 {
		t.Errorf("Percentile 50 = %g", got)
	}
	if !math.IsNaN(Percentile(nil, 50)) {
		t.Error("Percentile of empty must be NaN")
	}
	if ArgMax(x) != 3 || ArgMin(x) != 0 || ArgMax(nil) != -1 {
		t.Error("ArgMax/ArgMin")
	}
	if FirstAbove([]float64{0, -5, 1, 6}, 4) != 1 || LastAbove([]float64{0, -5, 1, 6}, 4) != 3 {
		t.Error("FirstAbove/LastAbove")
	}
	if FirstAbove(x, 10) != -1 {
		t.Error("FirstAbove with nothing above")
	}
}

func TestReliableAmplitudeIgnoresSpikes(t *testing.T) {
	n := 10000
	x := make([]float64, n)
	for i := range x {
		x[i] = 10 * math.Sin(2*math.Pi*float64(i)/100)
	}
	x[500] = 1000
	if got := ReliableAmplitude(x); !near(got, 10, 0.1) {
		t.Errorf("ReliableAmplitude = %g, want ~10", got)
	}
}

func TestGradient(t *testing.T) {
	xs := []float64{0, 1, 3, 4, 7}
	ys := make([]float64, len(xs))
	for i, v := range xs {
		ys[i] = 2*v + 1
	}
	for i, g := range Gradient(ys, xs) {
		if !near(g, 2, 1e-12) {
			t.Errorf("g[%d] = %g, want 2", i, g)
		}
	}
}

func sine(freq, fs float64, n int) []float64 {
	x := make([]float64, n)
	for i := range x {
		x[i] = math.Sin(2 * math.Pi * freq * float64(i) / fs)
	}
	return x
}

func TestButterworthResponse(t *testing.T) {
	fs := 5000.0
	n := 20000
	tests := []struct {
		kind    Kind
		freq    float64
		passing bool
	}{
		{Highpass, 100, true},
		{Highpass, 1, false},
		{Lowpass, 0.5, true},
		{Lowpass, 100, false},
	}
	for _, tt := range tests {
		cutoff := 10.0
		if tt.kind == Lowpass {
			cutoff = 2.55
		}
		y, err := Filter(sine(tt.freq, fs, n), cutoff, fs, tt.kind, 5)
		if err != nil {
			t.Fatal(err)
		}
		amp := RMS(y[n/2:]) * math.Sqrt2
		if tt.passing && !near(amp, 1, 0.05) {
			t.Errorf("%s %g Hz: amplitude %g, want ~1", tt.kind, tt.freq, amp)
		}
		if !tt.passing && amp > 0.05 {
			t.Errorf("%s %g Hz: amplitude %g, want attenuated", tt.kind, tt.freq, amp)
		}
	}
}

func TestButterworthRejectsBadDesign(t *testing.T) {
	if _, err := Butterworth(0, 10, 1000, Lowpass); err == nil {
		t.Error("order 0 accepted")
	}
	if _, err := Butterworth(4, 600, 1000, Highpass); err == nil {
		t.Error("cutoff above Nyquist accepted")
	}
}

func TestFiltFiltKeepsPhase(t *testing.T) {
	fs := 1000.0
	x := sine(5, fs, 4000)
	secs, err := Butterworth(4, 50, fs, Lowpass)
	if err != nil {
		t.Fatal(err)
	}
	y := FiltFilt(secs, x)
	for i := 1000; i < 3000; i++ {
		if !near(y[i], x[i], 0.01) {
			t.Fatalf("y[%d] = %g, x = %g", i, y[i], x[i])
		}
	}
}
