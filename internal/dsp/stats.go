// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package dsp

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Mean returns the arithmetic mean, 0 for an empty slice.
func Mean(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	return stat.Mean(x, nil)
}

// StdDev returns the population standard deviation.
func StdDev(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	_, sd := stat.PopMeanStdDev(x, nil)
	return sd
}

// RMS returns the root mean square.
func RMS(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	return math.Sqrt(floats.Dot(x, x) / float64(len(x)))
}

// Percentile returns the p-th percentile (0-100) with linear interpolation
// between closest ranks.
func Percentile(x []float64, p float64) float64 {
	if len(x) == 0 {
		return math.NaN()
	}
	s := append([]float64(nil), x...)
	sort.Float64s(s)
	pos := p / 100 * float64(len(s)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo < 0 {
		lo = 0
	}
	if hi >= len(s) {
		hi = len(s) - 1
	}
	frac := pos - float64(lo)
	return s[lo] + frac*(s[hi]-s[lo])
}

// ReliableAmplitude is half the spread between the 1st and 99th percentiles,
// which ignores isolated spikes and clipped peaks.
func ReliableAmplitude(x []float64) float64 {
	return (Percentile(x, 99) - Percentile(x, 1)) / 2
}

// ArgMax returns the index of the largest value, -1 for an empty slice.
func ArgMax(x []float64) int {
	if len(x) == 0 {
		return -1
	}
	return floats.MaxIdx(x)
}

// ArgMin returns the index of the smallest value, -1 for an empty slice.
func ArgMin(x []float64) int {
	if len(x) == 0 {
		return -1
	}
	return floats.MinIdx(x)
}

// Gradient returns dy/dx using second-order central differences inside and
// first-order differences at the ends. x may be unevenly spaced.
func Gradient(y, x []float64) []float64 {
	n := len(y)
	g := make([]float64, n)
	if n < 2 || len(x) != n {
		return g
	}
	g[0] = (y[1] - y[0]) / (x[1] - x[0])
	g[n-1] = (y[n-1] - y[n-2]) / (x[n-1] - x[n-2])
	for i := 1; i < n-1; i++ {
		hs := x[i] - x[i-1]
		hd := x[i+1] - x[i]
		g[i] = (hs*hs*y[i+1] + (hd*hd-hs*hs)*y[i] - hd*hd*y[i-1]) / (hs * hd * (hd + hs))
	}
	return g
}

// FirstAbove returns the first index whose absolute value exceeds thres, or -1.
func FirstAbove(x []float64, thres float64) int {
	for i, v := range x {
		if math.Abs(v) > thres {
			return i
		}
	}
	return -1
}

// LastAbove returns the last index whose absolute value exceeds thres, or -1.
func LastAbove(x []float64, thres float64) int {
	for i := len(x) - 1; i >= 0; i-- {
		if math.Abs(x[i]) > thres {
			return i
		}
	}
	return -1
}
