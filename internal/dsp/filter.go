// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package dsp holds the small amount of signal processing the calibration
// needs: Butterworth filters as second-order sections, and robust statistics.
package dsp

import (
	"fmt"
	"math"
	"math/cmplx"
)

// Kind selects the filter response.
type Kind int

const (
	Lowpass Kind = iota
	Highpass
)

func (k Kind) String() string {
	if k == Highpass {
		return "high"
	}
	return "low"
}

// Section is one biquad: B are numerator, A denominator coefficients, A[0] == 1.
type Section struct {
	B [3]float64
	A [3]float64
}

// Butterworth designs a digital Butterworth filter of the given order as
// cascaded second-order sections. cutoff and fs are in Hz.
func Butterworth(order int, cutoff, fs float64, kind Kind) ([]Section, error) {
	if order < 1 {
		return nil, fmt.Errorf("butterworth order must be >= 1, got %d", order)
	}
	if fs <= 0 || cutoff <= 0 || cutoff >= fs/2 {
		return nil, fmt.Errorf("butterworth cutoff %.3f Hz outside (0, %.3f) for fs=%.3f Hz", cutoff, fs/2, fs)
	}

	// Bilinear transform with pre-warping so the -3 dB point lands on cutoff.
	fs2 := 2 * fs
	wa := fs2 * math.Tan(math.Pi*cutoff/fs)
	bilinear := func(s complex128) complex128 {
		return (complex(fs2, 0) + s) / (complex(fs2, 0) - s)
	}

	var sections []Section
	for k := 0; k < order; k++ {
		theta := math.Pi * float64(2*k+order+1) / float64(2*order)
		proto := cmplx.Exp(complex(0, theta))
		if imag(proto) < -1e-12 {
			continue // conjugate of a pole already handled
		}
		var s complex128
		if kind == Highpass {
			s = complex(wa, 0) / proto
		} else {
			s = complex(wa, 0) * proto
		}
		z := bilinear(s)

		var sec Section
		if math.Abs(imag(proto)) <= 1e-12 {
			sec.A = [3]float64{1, -real(z), 0}
			if kind == Highpass {
				sec.B = [3]float64{1, -1, 0}
			} else {
				sec.B = [3]float64{1, 1, 0}
			}
		} else {
			sec.A = [3]float64{1, -2 * real(z), real(z)*real(z) + imag(z)*imag(z)}
			if kind == Highpass {
				sec.B = [3]float64{1, -2, 1}
			} else {
				sec.B = [3]float64{1, 2, 1}
			}
		}
		normalize(&sec, kind)
		sections = append(sections, sec)
	}
	return sections, nil
}

// normalize scales B for unity gain at DC (lowpass) or Nyquist (highpass).
func normalize(sec *Section, kind Kind) {
	var num, den float64
	if kind == Highpass {
		num = sec.B[0] - sec.B[1] + sec.B[2]
		den = sec.A[0] - sec.A[1] + sec.A[2]
	} else {
		num = sec.B[0] + sec.B[1] + sec.B[2]
		den = sec.A[0] + sec.A[1] + sec.A[2]
	}
	g := den / num
	for i := range sec.B {
		sec.B[i] *= g
	}
}

// SOSFilter runs x through the cascade with zero initial state and returns a new slice.
func SOSFilter(sections []Section, x []float64) []float64 {
	y := make([]float64, len(x))
	copy(y, x)
	for _, sec := range sections {
		var z1, z2 float64
		for i, in := range y {
			out := sec.B[0]*in + z1
			z1 = sec.B[1]*in - sec.A[1]*out + z2
			z2 = sec.B[2]*in - sec.A[2]*out
			y[i] = out
		}
	}
	return y
}

// FiltFilt runs the cascade forward and then backward, cancelling the phase
// shift and squaring the magnitude response.
func FiltFilt(sections []Section, x []float64) []float64 {
	y := SOSFilter(sections, x)
	reverse(y)
	y = SOSFilter(sections, y)
	reverse(y)
	return y
}

func reverse(x []float64) {
	for i, j := 0, len(x)-1; i < j; i, j = i+1, j-1 {
		x[i], x[j] = x[j], x[i]
	}
}

// Filter designs and applies a Butterworth filter in one step.
func Filter(x []float64, cutoff, fs float64, kind Kind, order int) ([]float64, error) {
	sos, err := Butterworth(order, cutoff, fs, kind)
	if err != nil {
		return nil, err
	}
	return SOSFilter(sos, x), nil
}

// BandpassZeroPhase applies a highpass at low and a lowpass at high, forward
// and backward.
func BandpassZeroPhase(x []float64, low, high, fs float64, order int) ([]float64, error) {
	hp, err := Butterworth(order, low, fs, Highpass)
	if err != nil {
		return nil, err
	}
	lp, err := Butterworth(order, high, fs, Lowpass)
	if err != nil {
		return nil, err
	}
	return FiltFilt(append(hp, lp...), x), nil
}
