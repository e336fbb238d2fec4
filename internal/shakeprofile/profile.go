// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package shakeprofile describes the shaker table's program as an ordered
// run of delays and shakes, and lines that program up with a recording.
package shakeprofile

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/relabs-tech/birther/internal/dsp"
)

// ErrPeakMismatch means the ramps found in the data do not pair up with the
// profile's shakes; the nominal timing is kept.
var ErrPeakMismatch = errors.New("ramp peaks do not match profile shakes")

// Kind tells a shake from a delay.
type Kind int

const (
	KindDelay Kind = iota
	KindShake
)

func (k Kind) String() string {
	if k == KindShake {
		return "shake"
	}
	return "delay"
}

// DelayType places a delay within the profile.
type DelayType int

const (
	DelayStart DelayType = iota
	DelayMiddle
	DelayEnd
)

func (d DelayType) String() string {
	switch d {
	case DelayStart:
		return "start"
	case DelayEnd:
		return "end"
	}
	return "middle"
}

// ParseDelayType maps "start", "middle" or "end" to a DelayType.
func ParseDelayType(s string) (DelayType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "start":
		return DelayStart, nil
	case "middle", "":
		return DelayMiddle, nil
	case "end":
		return DelayEnd, nil
	}
	return DelayMiddle, fmt.Errorf("unknown delay type %q", s)
}

// Segment is one delay or shake. Times are seconds from the start of the
// recording; indices are sample positions once ShiftIndices has run.
type Segment struct {
	Kind Kind

	// shake
	Amp      float64 // g
	Freq     float64 // Hz
	Length   float64 // s at full amplitude
	RampUp   float64 // s
	RampDown float64 // s

	// delay
	MinLen    float64 // s
	DelayType DelayType

	Start      float64
	End        float64
	StartIndex int
	EndIndex   int

	// neighbours in Profile.Segments, -1 at either end
	Prev int
	Next int
}

// Delay returns a delay segment of at least minLen seconds.
func Delay(minLen float64, t DelayType) Segment {
	return Segment{Kind: KindDelay, MinLen: minLen, DelayType: t}
}

// Shake returns a shake segment.
func Shake(amp, length, rampUp, rampDown, freq float64) Segment {
	return Segment{Kind: KindShake, Amp: amp, Length: length, RampUp: rampUp, RampDown: rampDown, Freq: freq}
}

// Profile is the arena of segments in the order the shaker runs them.
type Profile struct {
	Name     string
	Segments []Segment
}

// New links the segments and lays out their nominal timing.
func New(name string, segs ...Segment) *Profile {
	p := &Profile{Name: name, Segments: append([]Segment(nil), segs...)}
	for i := range p.Segments {
		p.Segments[i].Prev = i - 1
		p.Segments[i].Next = i + 1
	}
	if n := len(p.Segments); n > 0 {
		p.Segments[n-1].Next = -1
	}
	p.layout()
	return p
}

func (p *Profile) layout() {
	t := 0.0
	for i := range p.Segments {
		s := &p.Segments[i]
		if s.Kind == KindShake {
			s.Start = t + s.RampUp
			s.End = s.Start + s.Length
			t = s.End + s.RampDown
		} else {
			s.Start = t
			s.End = t + s.MinLen
			t = s.End
		}
	}
}

// Duration returns the nominal length in seconds.
func (p *Profile) Duration() float64 {
	d := 0.0
	for _, s := range p.Segments {
		if s.Kind == KindShake {
			d += s.RampUp + s.Length + s.RampDown
		} else {
			d += s.MinLen
		}
	}
	return d
}

// Clone returns an independent copy.
func (p *Profile) Clone() *Profile {
	return &Profile{Name: p.Name, Segments: append([]Segment(nil), p.Segments...)}
}

func (p *Profile) indicesOf(k Kind) []int {
	var out []int
	for i, s := range p.Segments {
		if s.Kind == k {
			out = append(out, i)
		}
	}
	return out
}

// Shakes returns the arena indices of the shakes in order.
func (p *Profile) Shakes() []int { return p.indicesOf(KindShake) }

// Delays returns the arena indices of the delays in order.
func (p *Profile) Delays() []int { return p.indicesOf(KindDelay) }

// SelectShake picks the shake used for gain: the first shake of at most 4 g
// for a sensor that rails, otherwise the first one above 4 g. It falls back to
// the first shake and returns -1 when there is none.
func (p *Profile) SelectShake(railed bool) int {
	shakes := p.Shakes()
	for _, i := range shakes {
		amp := p.Segments[i].Amp
		if (railed && amp <= 4) || (!railed && amp > 4) {
			return i
		}
	}
	if len(shakes) > 0 {
		return shakes[0]
	}
	return -1
}

// ShiftIndices converts segment times to sample indices. shift is the time,
// in seconds, of sample 0. A start delay always begins at sample 0.
func (p *Profile) ShiftIndices(rate, shift float64) {
	for i := range p.Segments {
		s := &p.Segments[i]
		s.EndIndex = int(rate * (s.End - shift))
		if s.Kind == KindDelay && s.DelayType == DelayStart {
			s.StartIndex = 0
		} else {
			s.StartIndex = int(rate * (s.Start - shift))
		}
	}
}

// Shave moves the indices after n samples were dropped from each end of the
// data. The end delay loses samples at both ends.
func (p *Profile) Shave(n int) {
	for i := range p.Segments {
		s := &p.Segments[i]
		if s.Kind == KindShake {
			s.StartIndex -= n
			s.EndIndex -= n
			continue
		}
		if s.DelayType != DelayStart {
			s.StartIndex -= n
		}
		if s.DelayType == DelayEnd {
			s.EndIndex -= 2 * n
		} else {
			s.EndIndex -= n
		}
	}
}

func (p *Profile) setPrevEnd(i int, t float64) {
	if prev := p.Segments[i].Prev; prev >= 0 {
		p.Segments[prev].End = t
	}
}

func (p *Profile) setNextStart(i int, t float64) {
	if next := p.Segments[i].Next; next >= 0 {
		p.Segments[next].Start = t
	}
}

const (
	outlineSection = 500
	edgeCutoff     = 1.5 // s ignored at each end when looking for ramps
	bandHalfWidth  = 5.0 // Hz
	bandOrder      = 5
)

// Adjust moves the shakes, and the delays around them, onto the ramps found
// in values (the shaken axis, raw). times are seconds from the first sample.
// Each shake is looked for after the previous one ramps down.
// The end delay is always stretched to the last sample. When the ramps cannot
// be paired with the shakes the nominal timing is kept and ErrPeakMismatch is
// returned.
func (p *Profile) Adjust(times, values []float64, rate float64) error {
	if len(times) != len(values) {
		return fmt.Errorf("adjust profile: %d times for %d values", len(times), len(values))
	}
	if len(times) < 2 {
		return fmt.Errorf("adjust profile: not enough samples")
	}
	last := times[len(times)-1]
	defer p.stretchEnd(last)

	shakes := p.Shakes()
	type ramp struct{ up, down float64 }
	ramps := make([]ramp, 0, len(shakes))
	after := math.Inf(-1)
	for _, si := range shakes {
		s := p.Segments[si]
		band, err := dsp.BandpassZeroPhase(values, s.Freq-bandHalfWidth, s.Freq+bandHalfWidth, rate, bandOrder)
		if err != nil {
			return fmt.Errorf("adjust profile: %w", err)
		}
		ot, ov := outline(times, band, outlineSection)
		if len(ot) < 2 {
			continue
		}
		deriv := dsp.Gradient(ov, sectionAxis(len(ov)))
		up, down, ok := rampPeaks(ot, deriv, after, times[0], last)
		if ok {
			ramps = append(ramps, ramp{up, down})
			after = down
		}
	}

	if len(ramps) != len(shakes) {
		return fmt.Errorf("%w: %d peaks for %d shakes", ErrPeakMismatch, 2*len(ramps), len(shakes))
	}
	for k, si := range shakes {
		p.Segments[si].Start = ramps[k].up
		p.Segments[si].End = ramps[k].down
		p.setPrevEnd(si, ramps[k].up)
		p.setNextStart(si, ramps[k].down)
	}
	return nil
}

func (p *Profile) stretchEnd(last float64) {
	delays := p.Delays()
	if len(delays) == 0 {
		return
	}
	if d := &p.Segments[delays[len(delays)-1]]; d.DelayType == DelayEnd {
		d.End = last
	}
}

// outline returns the time and value of the maximum of each whole section of
// the signal. Leftover samples are dropped evenly from both ends.
func outline(times, values []float64, section int) ([]float64, []float64) {
	n := len(values)
	count := n / section
	if count == 0 {
		return nil, nil
	}
	left := n % section
	lead := left/2 + left%2
	ot := make([]float64, count)
	ov := make([]float64, count)
	for k := range count {
		seg := values[lead+k*section : lead+(k+1)*section]
		j := dsp.ArgMax(seg)
		ot[k] = times[lead+k*section+j]
		ov[k] = seg[j]
	}
	return ot, ov
}

// sectionAxis returns 0, 1, ..., n-1. The outline is differentiated per
// section: the peak times inside sections are unevenly spaced.
func sectionAxis(n int) []float64 {
	xs := make([]float64, n)
	for i := range xs {
		xs[i] = float64(i)
	}
	return xs
}

// rampPeaks returns the time of the steepest rise of the outline later than
// after, and of the steepest fall following it, ignoring edgeCutoff seconds at
// both ends of the recording. A flat outline has no ramps.
func rampPeaks(ot, deriv []float64, after, first, last float64) (float64, float64, bool) {
	lo, hi := -1, -1
	for i, t := range ot {
		if t-first >= edgeCutoff && t > after {
			lo = i
			break
		}
	}
	for i := len(ot) - 1; i >= 0; i-- {
		if last-ot[i] >= edgeCutoff {
			hi = i
			break
		}
	}
	if lo < 0 || hi <= lo {
		return 0, 0, false
	}
	up := lo + dsp.ArgMax(deriv[lo:hi+1])
	if up >= hi || deriv[up] <= 0 {
		return 0, 0, false
	}
	down := up + 1 + dsp.ArgMin(deriv[up+1:hi+1])
	if deriv[down] >= 0 {
		return 0, 0, false
	}
	return ot[up], ot[down], true
}
