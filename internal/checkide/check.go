// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package checkide validates a sensor recording: every channel has data,
// starts and ends together with the others, holds its sample rate block by
// block without dropped blocks, and stays inside the expected value range.
package checkide

import (
	"fmt"
	"log"
	"math"
	"os"
	"strconv"
	"time"

	"github.com/relabs-tech/birther/internal/recording"
)

const (
	// BlockThreshold is the allowed relative rate deviation of a block.
	BlockThreshold = 0.01
	// FirstBlockThreshold applies to the first checked block, which may be partial.
	FirstBlockThreshold = 0.035
	// GapThreshold is the allowed deviation of a block pair's combined rate.
	GapThreshold = 0.03
	// SlowChannel is the channel id excluded from the per-block checks.
	SlowChannel = 36
)

// DefaultRates are the nominal rates (Hz) of the standard recorder channels.
var DefaultRates = map[int]float64{
	8:  5000,
	80: 500,
	84: 400,
	36: 1,
	47: 100,
	59: 10,
	76: 4,
	32: 400,
	43: 100,
	51: 100,
	65: 100,
	70: 100,
	20: 10,
}

// Options tunes Check.
type Options struct {
	// BlocksOutput, when set, receives drifting block rates instead of the report.
	BlocksOutput string
	// DurationTolerance is how far past the earliest start/end a channel may begin/finish.
	DurationTolerance time.Duration
	// DefaultRates are used when no explicit sample rate is expected.
	DefaultRates map[int]float64
	// SlowChannels skip the per-block checks. An expected sample rate is
	// checked on average; otherwise a non-nil function runs instead.
	SlowChannels map[int]RateCheckFunc
	// ReportMaskedGaps also reports gaps at blocks already flagged for rate.
	ReportMaskedGaps bool
}

// DefaultOptions mirrors the stock recorder layout.
func DefaultOptions() Options {
	return Options{
		DurationTolerance: 5 * time.Second,
		DefaultRates:      DefaultRates,
		SlowChannels:      map[int]RateCheckFunc{SlowChannel: AverageRateCheck(DefaultRates[SlowChannel])},
	}
}

// Rate returns the sample rate of count samples spanning start..end ticks.
func Rate(count int, end, start int64, ticksPerSecond float64) float64 {
	return float64(count-1) * ticksPerSecond / float64(end-start)
}

// Deviation returns |rate-ref|/ref.
func Deviation(rate, ref float64) float64 {
	return math.Abs(rate-ref) / ref
}

// Check runs every check over src and returns whether it passed with the
// per-channel failures. Channels are visited in ascending id.
func Check(src recording.Source, exp Expectations, opts Options) (bool, Report) {
	rep := Report{}
	channels := src.Channels()

	maxStart, maxEnd, haveEnvelope := envelope(channels, opts.DurationTolerance, src.TicksPerSecond())

	for _, ch := range channels {
		sess := ch.Session()
		if sess == nil {
			rep.Add(ch.ID, Failure{Kind: KindNoData})
			continue
		}

		if haveEnvelope {
			checkDuration(sess, maxStart, maxEnd, rep)
		}

		e, hasExp := exp[strconv.Itoa(ch.ID)]
		switch {
		case hasExp && e.RateCheck != nil:
			e.RateCheck(sess, rep)
		case isSlow(ch.ID, opts):
			if hasExp && e.SampleRate > 0 {
				AverageRateCheck(e.SampleRate)(sess, rep)
			} else if fn := opts.SlowChannels[ch.ID]; fn != nil {
				fn(sess, rep)
			}
		default:
			ref, ok := e.SampleRate, e.SampleRate > 0
			if !ok {
				ref, ok = opts.DefaultRates[ch.ID]
			}
			checkBlocks(sess, ref, ok, opts, rep)
		}

		if hasExp && e.Range != nil {
			checkRange(sess, e.Range, rep)
		}
	}
	return rep.Passed(), rep
}

func isSlow(id int, opts Options) bool {
	_, ok := opts.SlowChannels[id]
	return ok
}

// envelope returns the latest acceptable start and end over every channel with data.
func envelope(channels []*recording.Channel, tol time.Duration, tps float64) (int64, int64, bool) {
	var minStart, minEnd int64
	found := false
	for _, ch := range channels {
		sess := ch.Session()
		if sess == nil {
			continue
		}
		start, end := sess.Interval()
		if !found || start < minStart {
			minStart = start
		}
		if !found || end < minEnd {
			minEnd = end
		}
		found = true
	}
	slack := int64(math.Round(tol.Seconds() * tps))
	return minStart + slack, minEnd + slack, found
}

func checkDuration(sess *recording.Session, maxStart, maxEnd int64, rep Report) {
	start, end := sess.Interval()
	d := DurationDetail{
		Start:     start,
		End:       end,
		MaxStart:  maxStart,
		MaxEnd:    maxEnd,
		LateStart: start > maxStart,
		LateEnd:   end > maxEnd,
	}
	if d.LateStart || d.LateEnd {
		rep.Add(sess.Channel().ID, Failure{Kind: KindDuration, Detail: d})
	}
}

// checkedBlocks returns the block indices the rate check looks at. With three
// or more blocks the first and last are skipped because they may be partial.
func checkedBlocks(n int) []int {
	switch {
	case n <= 0:
		return nil
	case n <= 2:
		return []int{0}
	}
	idx := make([]int, 0, n-2)
	for i := 1; i < n-1; i++ {
		idx = append(idx, i)
	}
	return idx
}

// interiorRate averages the rate over all blocks except the first and last.
func interiorRate(blocks []*recording.Block, tps float64) (float64, bool) {
	n := len(blocks)
	if n < 3 {
		return 0, false
	}
	count := 0
	for _, b := range blocks[1 : n-1] {
		count += b.NumSamples()
	}
	start, end := blocks[1].Start, blocks[n-2].End
	if end <= start {
		return 0, false
	}
	return Rate(count, end, start, tps), true
}

func checkBlocks(sess *recording.Session, ref float64, haveRef bool, opts Options, rep Report) {
	blocks := sess.Blocks()
	tps := sess.TicksPerSecond()
	id := sess.Channel().ID

	if !haveRef {
		var ok bool
		if ref, ok = interiorRate(blocks, tps); !ok {
			return
		}
	}

	flagged := map[int]bool{}
	var drift []BlockRate
	for k, i := range checkedBlocks(len(blocks)) {
		b := blocks[i]
		if b.End <= b.Start {
			continue
		}
		rate := Rate(b.NumSamples(), b.End, b.Start, tps)
		dev := Deviation(rate, ref)
		limit := BlockThreshold
		if k == 0 {
			limit = FirstBlockThreshold
		}
		if dev > limit {
			flagged[i] = true
			drift = append(drift, BlockRate{Index: i, Rate: rate, Deviation: dev})
		}
	}
	if len(drift) > 0 {
		detail := RateDetail{Expected: ref, Blocks: drift}
		if opts.BlocksOutput != "" {
			if err := appendBlockFile(opts.BlocksOutput, id, drift); err != nil {
				log.Printf("checkide: channel %d: cannot write block failures: %v", id, err)
			} else {
				detail = RateDetail{Expected: ref, OutputPath: opts.BlocksOutput}
			}
		}
		rep.Add(id, Failure{Kind: KindSampleRate, Detail: detail})
	}

	gaps := findGaps(blocks, 0, ref, tps)
	if !opts.ReportMaskedGaps {
		kept := gaps[:0]
		for _, g := range gaps {
			if !flagged[g.Index] {
				kept = append(kept, g)
			}
		}
		gaps = kept
	}
	if len(gaps) > 0 {
		rep.Add(id, Failure{Kind: KindMissingBlock, Detail: GapDetail{Expected: ref, Gaps: gaps}})
	}
}

// findGaps checks adjacent block pairs (i, i+1) for i in [from, n-2). A pair
// spanning a dropped block reports roughly half the expected rate.
func findGaps(blocks []*recording.Block, from int, ref, tps float64) []Gap {
	var gaps []Gap
	for i := from; i < len(blocks)-2; i++ {
		a, b := blocks[i], blocks[i+1]
		if b.End <= a.Start {
			continue
		}
		rate := Rate(a.NumSamples()+b.NumSamples(), b.End, a.Start, tps)
		dev := Deviation(rate, ref)
		if dev > GapThreshold {
			gaps = append(gaps, Gap{Index: i, Rate: rate, Deviation: dev})
		}
	}
	return gaps
}

// AverageRateCheck compares the whole-session rate, excluding the first and
// last blocks, against hz and looks for dropped blocks from the second one on.
// It suits slow channels whose individual blocks hold only a few samples.
func AverageRateCheck(hz float64) RateCheckFunc {
	return func(sess *recording.Session, rep Report) {
		blocks := sess.Blocks()
		tps := sess.TicksPerSecond()
		id := sess.Channel().ID
		avg, ok := interiorRate(blocks, tps)
		if !ok {
			return
		}
		if dev := Deviation(avg, hz); dev > BlockThreshold {
			rep.Add(id, Failure{Kind: KindSampleRate, Detail: AverageRateDetail{Expected: hz, Actual: avg, Deviation: dev}})
		}
		if gaps := findGaps(blocks, 1, hz, tps); len(gaps) > 0 {
			rep.Add(id, Failure{Kind: KindMissingBlock, Detail: GapDetail{Expected: hz, Gaps: gaps}})
		}
	}
}

func checkRange(sess *recording.Session, spec *RangeSpec, rep Report) {
	ch := sess.Channel()
	var bad []SubchannelRange
	for pos, sub := range ch.Subchannels {
		var b Bounds
		switch spec.Kind {
		case RangeUniform:
			b = spec.Uniform
		case RangePerSubchannel:
			var ok bool
			if b, ok = spec.Subchannels[sub.ID]; !ok {
				continue
			}
		}
		lo, hi := sess.Min(pos), sess.Max(pos)
		if !b.Contains(lo, hi) {
			bad = append(bad, SubchannelRange{ID: sub.ID, Expected: b, ActualMin: lo, ActualMax: hi})
		}
	}
	if len(bad) > 0 {
		rep.Add(ch.ID, Failure{Kind: KindValueRange, Detail: RangeDetail{Subchannels: bad}})
	}
}

// appendBlockFile appends the drifting blocks of one channel to path.
func appendBlockFile(path string, channelID int, blocks []BlockRate) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(f, "\nChannel %d Block Failures:\n", channelID); err != nil {
		f.Close()
		return err
	}
	for _, b := range blocks {
		if _, err := fmt.Fprintln(f, b.String()); err != nil {
			f.Close()
			return err
		}
	}
	return f.Close()
}
