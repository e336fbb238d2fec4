// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package checkide

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"periph.io/x/conn/v3/physic"
)

// Kind labels a failure record.
type Kind string

const (
	KindNoData       Kind = "NO DATA EXISTS"
	KindDuration     Kind = "DURATION FAILURE"
	KindSampleRate   Kind = "SAMPLE RATE FAILURE"
	KindMissingBlock Kind = "MISSING BLOCK FAILURE"
	KindValueRange   Kind = "VALUE RANGE FAILURE"
)

// Detail is the payload of a failure record.
type Detail interface {
	String() string
}

// Failure is one (kind, detail) record for a channel.
type Failure struct {
	Kind   Kind   `json:"kind"`
	Detail Detail `json:"detail,omitempty"`
}

func (f Failure) String() string {
	if f.Detail == nil {
		return string(f.Kind)
	}
	return fmt.Sprintf("%s: %s", f.Kind, f.Detail)
}

// Report maps channel id to its failures in the order they were found.
type Report map[string][]Failure

// Add appends f to the channel's list, creating the list on first use.
func (r Report) Add(channelID int, f Failure) {
	key := strconv.Itoa(channelID)
	list, ok := r[key]
	if !ok {
		list = make([]Failure, 0, 1)
	}
	r[key] = append(list, f)
}

// Passed reports whether no failure was recorded.
func (r Report) Passed() bool {
	return len(r) == 0
}

// ChannelIDs returns the failing channel keys in numeric order.
func (r Report) ChannelIDs() []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, errA := strconv.Atoi(keys[i])
		b, errB := strconv.Atoi(keys[j])
		if errA != nil || errB != nil {
			return keys[i] < keys[j]
		}
		return a < b
	})
	return keys
}

// Lines renders one line per failing channel.
func (r Report) Lines() []string {
	var out []string
	for _, k := range r.ChannelIDs() {
		parts := make([]string, len(r[k]))
		for i, f := range r[k] {
			parts[i] = f.String()
		}
		out = append(out, fmt.Sprintf("Channel %s: [%s]", k, strings.Join(parts, "; ")))
	}
	return out
}

func hz(f float64) string {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return fmt.Sprintf("%v Hz", f)
	}
	return physic.Frequency(math.Round(f * float64(physic.Hertz))).String()
}

// DurationDetail reports a channel starting or ending outside the envelope.
type DurationDetail struct {
	Start     int64 `json:"start"`
	End       int64 `json:"end"`
	MaxStart  int64 `json:"max_start"`
	MaxEnd    int64 `json:"max_end"`
	LateStart bool  `json:"late_start"`
	LateEnd   bool  `json:"late_end"`
}

func (d DurationDetail) String() string {
	var msgs []string
	if d.LateStart {
		msgs = append(msgs, fmt.Sprintf("Start Time %d should be < %d", d.Start, d.MaxStart))
	}
	if d.LateEnd {
		msgs = append(msgs, fmt.Sprintf("End Time %d should be < %d", d.End, d.MaxEnd))
	}
	return strings.Join(msgs, ", ")
}

// BlockRate is one block whose rate drifted from the reference.
type BlockRate struct {
	Index     int     `json:"index"`
	Rate      float64 `json:"rate"`
	Deviation float64 `json:"deviation"`
}

func (b BlockRate) String() string {
	return fmt.Sprintf("%d: %.3f Hz, %.3f%%", b.Index, b.Rate, b.Deviation*100)
}

// RateDetail lists drifting blocks, or points at the file they were written to.
type RateDetail struct {
	Expected   float64     `json:"expected"`
	Blocks     []BlockRate `json:"blocks,omitempty"`
	OutputPath string      `json:"output_path,omitempty"`
}

func (d RateDetail) String() string {
	if d.OutputPath != "" {
		return fmt.Sprintf("Expected: %s, Open %s", hz(d.Expected), d.OutputPath)
	}
	parts := make([]string, len(d.Blocks))
	for i, b := range d.Blocks {
		parts[i] = b.String()
	}
	return fmt.Sprintf("Expected: %s, blocks {%s}", hz(d.Expected), strings.Join(parts, ", "))
}

// AverageRateDetail reports a whole-session average rate off its reference.
type AverageRateDetail struct {
	Expected  float64 `json:"expected"`
	Actual    float64 `json:"actual"`
	Deviation float64 `json:"deviation"`
}

func (d AverageRateDetail) String() string {
	return fmt.Sprintf("Expected: %s, Actual: %.3f Hz (Diff of %.3f)", hz(d.Expected), d.Actual, d.Deviation)
}

// Gap is an adjacent block pair whose combined rate signals lost data.
type Gap struct {
	Index     int     `json:"index"`
	Rate      float64 `json:"rate"`
	Deviation float64 `json:"deviation"`
}

func (g Gap) String() string {
	return fmt.Sprintf("BLOCK MISSING AT %d - %d-%d Rate is %.3f%% of Avg.", g.Index, g.Index, g.Index+1, g.Deviation*100)
}

// GapDetail lists every detected gap of a channel.
type GapDetail struct {
	Expected float64 `json:"expected"`
	Gaps     []Gap   `json:"gaps"`
}

func (d GapDetail) String() string {
	parts := make([]string, len(d.Gaps))
	for i, g := range d.Gaps {
		parts[i] = g.String()
	}
	return strings.Join(parts, ", ")
}

// SubchannelRange is one subchannel whose observed extrema left its bounds.
type SubchannelRange struct {
	ID        int     `json:"id"`
	Expected  Bounds  `json:"expected"`
	ActualMin float64 `json:"actual_min"`
	ActualMax float64 `json:"actual_max"`
}

func (s SubchannelRange) String() string {
	return fmt.Sprintf("%d: Expected Range: %s, Actual Range: (%g, %g)", s.ID, s.Expected, s.ActualMin, s.ActualMax)
}

// RangeDetail lists failing subchannels.
type RangeDetail struct {
	Subchannels []SubchannelRange `json:"subchannels"`
}

func (d RangeDetail) String() string {
	parts := make([]string, len(d.Subchannels))
	for i, s := range d.Subchannels {
		parts[i] = s.String()
	}
	return "{" + strings.Join(parts, ", ") + "}"
}
