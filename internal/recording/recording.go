// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package recording is the read-only view over a recorder's data file:
// channels of one or more subchannels, stored as time-ordered blocks.
package recording

import (
	"math"
	"sort"
)

// DefaultTicksPerSecond is the conventional time unit (microseconds).
const DefaultTicksPerSecond = 1e6

// Source is anything that exposes recorded channels.
// Implementations own the sample storage; callers only read it.
type Source interface {
	Channels() []*Channel
	Channel(id int) (*Channel, bool)
	TicksPerSecond() float64
}

// DeviceInfo identifies the recorder that produced a recording.
type DeviceInfo struct {
	Serial     string `json:"serial"`
	PartNumber string `json:"part_number"`
	MCUType    string `json:"mcu_type"`
	HwRev      string `json:"hw_rev,omitempty"`
}

// Block is one contiguous run of samples. Start and End are the timestamps of
// the first and last sample; intermediate samples are evenly spaced.
type Block struct {
	Start int64       `json:"start"`
	End   int64       `json:"end"`
	Rows  [][]float64 `json:"samples"` // one row per sample, one column per subchannel
}

// NumSamples returns the sample count.
func (b *Block) NumSamples() int {
	return len(b.Rows)
}

// TimeAt returns the timestamp of sample j.
func (b *Block) TimeAt(j int) float64 {
	n := len(b.Rows)
	if n <= 1 {
		return float64(b.Start)
	}
	return float64(b.Start) + float64(j)*float64(b.End-b.Start)/float64(n-1)
}

// Subchannel describes one axis or quantity of a channel.
type Subchannel struct {
	ID    int    `json:"id"`
	Name  string `json:"name"`
	Units string `json:"units,omitempty"`
}

// Transform is a per-subchannel linear calibration: out = Gain*raw + Offset.
type Transform struct {
	Gain   float64 `json:"gain"`
	Offset float64 `json:"offset"`
}

// Channel is one sensor stream.
type Channel struct {
	ID          int          `json:"id"`
	Name        string       `json:"name"`
	Sensor      string       `json:"sensor"`
	Subchannels []Subchannel `json:"subchannels"`
	Blocks      []*Block     `json:"blocks"`
	Transforms  []*Transform `json:"transforms,omitempty"`

	ticksPerSecond float64
}

// SetTransform replaces the transform of subchannel sub. nil means raw values.
func (c *Channel) SetTransform(sub int, t *Transform) {
	if sub < 0 || sub >= len(c.Subchannels) {
		return
	}
	if len(c.Transforms) < len(c.Subchannels) {
		grown := make([]*Transform, len(c.Subchannels))
		copy(grown, c.Transforms)
		c.Transforms = grown
	}
	c.Transforms[sub] = t
}

// ClearTransforms disables every subchannel transform so raw counts are read.
// The change is visible to every later reader of the channel.
func (c *Channel) ClearTransforms() {
	for i := range c.Transforms {
		c.Transforms[i] = nil
	}
}

// HasTransforms reports whether any subchannel transform is active.
func (c *Channel) HasTransforms() bool {
	for _, t := range c.Transforms {
		if t != nil {
			return true
		}
	}
	return false
}

// value returns the transformed value at position sub, NaN when row is short.
func (c *Channel) value(row []float64, sub int) float64 {
	if sub < 0 || sub >= len(row) {
		return math.NaN()
	}
	v := row[sub]
	if sub < len(c.Transforms) && c.Transforms[sub] != nil {
		t := c.Transforms[sub]
		v = t.Gain*v + t.Offset
	}
	return v
}

// Session returns a view over the channel's full sample range, or nil when the
// channel recorded nothing.
func (c *Channel) Session() *Session {
	n := 0
	for _, b := range c.Blocks {
		n += b.NumSamples()
	}
	if n == 0 {
		return nil
	}
	return &Session{ch: c, n: n}
}

// Session is a queryable view over a channel's samples.
type Session struct {
	ch *Channel
	n  int
}

// Channel returns the owning channel.
func (s *Session) Channel() *Channel { return s.ch }

// Len returns the total sample count.
func (s *Session) Len() int { return s.n }

// Blocks returns the non-empty blocks in time order.
func (s *Session) Blocks() []*Block {
	out := make([]*Block, 0, len(s.ch.Blocks))
	for _, b := range s.ch.Blocks {
		if b.NumSamples() > 0 {
			out = append(out, b)
		}
	}
	return out
}

// Interval returns the first and last sample timestamps.
func (s *Session) Interval() (start, end int64) {
	blocks := s.Blocks()
	return blocks[0].Start, blocks[len(blocks)-1].End
}

// TicksPerSecond returns the recording's time unit.
func (s *Session) TicksPerSecond() float64 {
	if s.ch.ticksPerSecond > 0 {
		return s.ch.ticksPerSecond
	}
	return DefaultTicksPerSecond
}

// SampleRate returns the whole-session rate in Hz using end-to-end spacing.
func (s *Session) SampleRate() float64 {
	start, end := s.Interval()
	if end <= start {
		return 0
	}
	return float64(s.n-1) * s.TicksPerSecond() / float64(end-start)
}

// Min returns the smallest value of subchannel position sub.
func (s *Session) Min(sub int) float64 {
	lo, _ := s.extrema(sub)
	return lo
}

// Max returns the largest value of subchannel position sub.
func (s *Session) Max(sub int) float64 {
	_, hi := s.extrema(sub)
	return hi
}

func (s *Session) extrema(sub int) (float64, float64) {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, b := range s.ch.Blocks {
		for _, row := range b.Rows {
			v := s.ch.value(row, sub)
			if math.IsNaN(v) {
				continue
			}
			lo = math.Min(lo, v)
			hi = math.Max(hi, v)
		}
	}
	return lo, hi
}

// Frame is a columnar copy of a time range: Time plus one column per subchannel.
type Frame struct {
	Time []float64
	Axes [][]float64
}

// Len returns the number of samples in the frame.
func (f Frame) Len() int { return len(f.Time) }

// Slice returns the samples in [i, j).
func (f Frame) Slice(i, j int) Frame {
	out := Frame{Time: f.Time[i:j], Axes: make([][]float64, len(f.Axes))}
	for k := range f.Axes {
		out.Axes[k] = f.Axes[k][i:j]
	}
	return out
}

// Frame extracts samples with start <= t <= end. nil bounds are open.
func (s *Session) Frame(start, end *float64) Frame {
	nsub := len(s.ch.Subchannels)
	f := Frame{Axes: make([][]float64, nsub)}
	for _, b := range s.ch.Blocks {
		for j, row := range b.Rows {
			t := b.TimeAt(j)
			if start != nil && t < *start {
				continue
			}
			if end != nil && t > *end {
				continue
			}
			f.Time = append(f.Time, t)
			for k := range nsub {
				f.Axes[k] = append(f.Axes[k], s.ch.value(row, k))
			}
		}
	}
	return f
}

// Column returns every value of subchannel position sub.
func (s *Session) Column(sub int) []float64 {
	out := make([]float64, 0, s.n)
	for _, b := range s.ch.Blocks {
		for _, row := range b.Rows {
			out = append(out, s.ch.value(row, sub))
		}
	}
	return out
}

// Dataset is the in-memory Source used by the loaders and the synthesizer.
type Dataset struct {
	Device   DeviceInfo
	TimeUnit float64
	channels map[int]*Channel
}

// NewDataset returns an empty dataset in the given time unit (ticks per second).
func NewDataset(dev DeviceInfo, ticksPerSecond float64) *Dataset {
	if ticksPerSecond <= 0 {
		ticksPerSecond = DefaultTicksPerSecond
	}
	return &Dataset{Device: dev, TimeUnit: ticksPerSecond, channels: map[int]*Channel{}}
}

// AddChannel registers ch, replacing any channel with the same id.
func (d *Dataset) AddChannel(ch *Channel) {
	ch.ticksPerSecond = d.TimeUnit
	sort.SliceStable(ch.Blocks, func(i, j int) bool { return ch.Blocks[i].Start < ch.Blocks[j].Start })
	d.channels[ch.ID] = ch
}

// Channels returns every channel ordered by id.
func (d *Dataset) Channels() []*Channel {
	out := make([]*Channel, 0, len(d.channels))
	for _, ch := range d.channels {
		out = append(out, ch)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Channel looks up a channel by id.
func (d *Dataset) Channel(id int) (*Channel, bool) {
	ch, ok := d.channels[id]
	return ch, ok
}

// TicksPerSecond returns the dataset's time unit.
func (d *Dataset) TicksPerSecond() float64 {
	return d.TimeUnit
}

// DeviceInfo returns the recorder identity.
func (d *Dataset) DeviceInfo() DeviceInfo {
	return d.Device
}
