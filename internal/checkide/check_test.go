// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package checkide

import (
	"math"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/relabs-tech/birther/internal/recording"
)

// blk describes one block for buildChannel. A dropped block advances time only.
type blk struct {
	n       int
	step    int64
	dropped bool
}

func buildChannel(id int, start int64, specs ...blk) *recording.Channel {
	ch := &recording.Channel{
		ID:          id,
		Name:        "test",
		Subchannels: []recording.Subchannel{{ID: 0, Name: "X"}, {ID: 1, Name: "Y"}},
	}
	t := start
	for _, s := range specs {
		if s.dropped {
			t += int64(s.n) * s.step
			continue
		}
		b := &recording.Block{Start: t}
		for j := 0; j < s.n; j++ {
			b.Rows = append(b.Rows, []float64{float64(j % 10), -float64(j % 4)})
			b.End = t
			t += s.step
		}
		ch.Blocks = append(ch.Blocks, b)
	}
	return ch
}

func uniformBlocks(n int, size int, step int64) []blk {
	out := make([]blk, n)
	for i := range out {
		out[i] = blk{n: size, step: step}
	}
	return out
}

func dataset(channels ...*recording.Channel) *recording.Dataset {
	ds := recording.NewDataset(recording.DeviceInfo{}, 1e6)
	for _, ch := range channels {
		ds.AddChannel(ch)
	}
	return ds
}

func kinds(rep Report, key string) []Kind {
	var out []Kind
	for _, f := range rep[key] {
		out = append(out, f.Kind)
	}
	return out
}

func TestRate(t *testing.T) {
	if got := Rate(1000, 10_000_000, 0, 1e6); math.Abs(got-99.9) > 1e-9 {
		t.Errorf("Rate = %v, want 99.9", got)
	}
	if got := Deviation(990, 1000); math.Abs(got-0.01) > 1e-12 {
		t.Errorf("Deviation = %v, want 0.01", got)
	}
}

func TestCheckedBlocks(t *testing.T) {
	tests := []struct {
		n    int
		want []int
	}{
		{0, nil},
		{1, []int{0}},
		{2, []int{0}},
		{3, []int{1}},
		{5, []int{1, 2, 3}},
	}
	for _, tt := range tests {
		if got := checkedBlocks(tt.n); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("checkedBlocks(%d) = %v, want %v", tt.n, got, tt.want)
		}
	}
}

func TestCheckCleanRecordingPasses(t *testing.T) {
	ds := dataset(
		buildChannel(100, 0, uniformBlocks(6, 100, 1000)...),
		buildChannel(101, 0, uniformBlocks(6, 50, 2000)...),
	)
	exp := Expectations{"100": {SampleRate: 1000, Range: Uniform(-3, 9)}}
	ok, rep := Check(ds, exp, DefaultOptions())
	if !ok {
		t.Fatalf("expected pass, got %v", rep.Lines())
	}
}

func TestCheckNoData(t *testing.T) {
	empty := &recording.Channel{ID: 7, Blocks: []*recording.Block{{}}}
	ds := dataset(empty, buildChannel(100, 0, uniformBlocks(4, 100, 1000)...))
	ok, rep := Check(ds, Expectations{}, DefaultOptions())
	if ok {
		t.Fatal("expected failure")
	}
	if got := kinds(rep, "7"); !reflect.DeepEqual(got, []Kind{KindNoData}) {
		t.Errorf("channel 7 kinds = %v, want [NO DATA]", got)
	}
	if _, bad := rep["100"]; bad {
		t.Errorf("channel 100 should pass, got %v", rep["100"])
	}
}

func TestCheckFlagsDriftingInteriorBlock(t *testing.T) {
	// Block 1 drifts 2.4%, under the first-checked limit; block 2 drifts the
	// same amount but is held to the tighter interior limit.
	specs := []blk{
		{n: 100, step: 1000},
		{n: 100, step: 1025},
		{n: 100, step: 1025},
		{n: 100, step: 1000},
		{n: 100, step: 1000},
	}
	ds := dataset(buildChannel(100, 0, specs...))
	ok, rep := Check(ds, Expectations{"100": {SampleRate: 1000}}, DefaultOptions())
	if ok {
		t.Fatal("expected failure")
	}
	if got := kinds(rep, "100"); !reflect.DeepEqual(got, []Kind{KindSampleRate}) {
		t.Fatalf("kinds = %v, want [SAMPLE RATE]", got)
	}
	d := rep["100"][0].Detail.(RateDetail)
	if len(d.Blocks) != 1 || d.Blocks[0].Index != 2 {
		t.Errorf("flagged blocks = %+v, want only index 2", d.Blocks)
	}
	if d.Blocks[0].Deviation < 0.02 || d.Blocks[0].Deviation > 0.03 {
		t.Errorf("deviation = %v, want about 0.024", d.Blocks[0].Deviation)
	}
}

func TestCheckMissingBlockIsNotRateFailure(t *testing.T) {
	specs := []blk{
		{n: 100, step: 1000},
		{n: 100, step: 1000},
		{n: 100, step: 1000},
		{n: 100, step: 1000, dropped: true},
		{n: 100, step: 1000},
		{n: 100, step: 1000},
	}
	ds := dataset(buildChannel(100, 0, specs...))
	_, rep := Check(ds, Expectations{"100": {SampleRate: 1000}}, DefaultOptions())
	if got := kinds(rep, "100"); !reflect.DeepEqual(got, []Kind{KindMissingBlock}) {
		t.Fatalf("kinds = %v, want [MISSING BLOCK]", got)
	}
	gaps := rep["100"][0].Detail.(GapDetail).Gaps
	if len(gaps) != 1 || gaps[0].Index != 2 {
		t.Errorf("gaps = %+v, want one at index 2", gaps)
	}
}

func TestCheckMasksGapsAtFlaggedBlocks(t *testing.T) {
	specs := []blk{
		{n: 100, step: 1000},
		{n: 100, step: 1000},
		{n: 100, step: 2000},
		{n: 100, step: 1000},
		{n: 100, step: 1000},
	}
	ds := dataset(buildChannel(100, 0, specs...))
	exp := Expectations{"100": {SampleRate: 1000}}

	_, rep := Check(ds, exp, DefaultOptions())
	for _, f := range rep["100"] {
		if g, ok := f.Detail.(GapDetail); ok {
			for _, gap := range g.Gaps {
				if gap.Index == 2 {
					t.Errorf("gap at flagged block 2 should be masked")
				}
			}
		}
	}

	opts := DefaultOptions()
	opts.ReportMaskedGaps = true
	_, rep = Check(ds, exp, opts)
	found := false
	for _, f := range rep["100"] {
		if g, ok := f.Detail.(GapDetail); ok {
			for _, gap := range g.Gaps {
				found = found || gap.Index == 2
			}
		}
	}
	if !found {
		t.Errorf("gap at block 2 should be reported with ReportMaskedGaps, got %v", rep.Lines())
	}
}

func TestCheckDuration(t *testing.T) {
	ds := dataset(
		buildChannel(100, 0, uniformBlocks(3, 100, 1000)...),
		buildChannel(101, 6_000_000, uniformBlocks(3, 100, 1000)...),
	)
	_, rep := Check(ds, Expectations{}, DefaultOptions())
	if got := kinds(rep, "101"); len(got) == 0 || got[0] != KindDuration {
		t.Fatalf("channel 101 kinds = %v, want DURATION first", got)
	}
	d := rep["101"][0].Detail.(DurationDetail)
	if !d.LateStart || d.MaxStart != 5_000_000 {
		t.Errorf("detail = %+v, want late start past 5000000", d)
	}
	if _, bad := rep["100"]; bad {
		t.Errorf("channel 100 should pass, got %v", rep["100"])
	}
}

func TestCheckValueRange(t *testing.T) {
	ds := dataset(buildChannel(100, 0, uniformBlocks(3, 100, 1000)...))

	_, rep := Check(ds, Expectations{"100": {Range: Uniform(0, 5)}}, DefaultOptions())
	if got := kinds(rep, "100"); !reflect.DeepEqual(got, []Kind{KindValueRange}) {
		t.Fatalf("uniform kinds = %v", got)
	}
	subs := rep["100"][0].Detail.(RangeDetail).Subchannels
	// X spans 0..9 and Y spans -3..0; both leave [0, 5].
	if len(subs) != 2 {
		t.Errorf("uniform failing subchannels = %+v, want 2", subs)
	}

	per := PerSubchannel(map[int]Bounds{0: {Min: 0, Max: 9}, 1: {Min: -2, Max: 0}, 7: {Min: 0, Max: 1}})
	_, rep = Check(ds, Expectations{"100": {Range: per}}, DefaultOptions())
	subs = rep["100"][0].Detail.(RangeDetail).Subchannels
	if len(subs) != 1 || subs[0].ID != 1 || subs[0].ActualMin != -3 {
		t.Errorf("per-subchannel failures = %+v, want only subchannel 1", subs)
	}
}

func TestCheckIgnoresUnknownChannels(t *testing.T) {
	ds := dataset(buildChannel(100, 0, uniformBlocks(4, 100, 1000)...))
	exp := Expectations{"999": {SampleRate: 5, Range: Uniform(0, 0)}, "bogus": {SampleRate: 1}}
	if ok, rep := Check(ds, exp, DefaultOptions()); !ok {
		t.Errorf("expected pass, got %v", rep.Lines())
	}
}

func TestCheckIsIdempotent(t *testing.T) {
	specs := append(uniformBlocks(3, 100, 1000), blk{n: 100, step: 1500}, blk{n: 100, step: 1000})
	ds := dataset(buildChannel(100, 0, specs...), &recording.Channel{ID: 5})
	exp := Expectations{"100": {SampleRate: 1000, Range: Uniform(0, 3)}}
	_, first := Check(ds, exp, DefaultOptions())
	_, second := Check(ds, exp, DefaultOptions())
	if !reflect.DeepEqual(first, second) {
		t.Errorf("reports differ:\n%v\n%v", first.Lines(), second.Lines())
	}
}

func TestSlowChannelUsesAverageRate(t *testing.T) {
	slow := buildChannel(SlowChannel, 0, uniformBlocks(8, 2, 1_000_000)...)
	fast := buildChannel(100, 0, uniformBlocks(4, 100, 160_000)...)
	ds := dataset(slow, fast)
	if _, rep := Check(ds, Expectations{}, DefaultOptions()); len(rep["36"]) != 0 {
		t.Errorf("slow channel should pass, got %v", rep["36"])
	}

	withGap := append(uniformBlocks(3, 2, 1_000_000), blk{n: 2, step: 1_000_000, dropped: true})
	withGap = append(withGap, uniformBlocks(4, 2, 1_000_000)...)
	ds = dataset(buildChannel(SlowChannel, 0, withGap...), fast)
	_, rep := Check(ds, Expectations{}, DefaultOptions())
	if got := kinds(rep, "36"); len(got) == 0 || got[len(got)-1] != KindMissingBlock {
		t.Errorf("slow channel kinds = %v, want MISSING BLOCK", got)
	}

	opts := DefaultOptions()
	opts.SlowChannels = map[int]RateCheckFunc{SlowChannel: nil}
	if _, rep := Check(ds, Expectations{}, opts); len(rep["36"]) != 0 {
		t.Errorf("slow channel without a check function should be skipped, got %v", rep["36"])
	}
}

func TestSlowChannelUsesExpectedRate(t *testing.T) {
	// 2 Hz on the slow channel, which defaults to 1 Hz
	slow := buildChannel(SlowChannel, 0, uniformBlocks(8, 2, 500_000)...)
	fast := buildChannel(100, 0, uniformBlocks(4, 100, 20_000)...)
	ds := dataset(slow, fast)

	_, rep := Check(ds, Expectations{}, DefaultOptions())
	if got := kinds(rep, "36"); len(got) == 0 || got[0] != KindSampleRate {
		t.Errorf("default rate kinds = %v, want SAMPLE RATE", got)
	}
	exp := Expectations{"36": {SampleRate: 2}}
	if _, rep := Check(ds, exp, DefaultOptions()); len(rep["36"]) != 0 {
		t.Errorf("expected 2 Hz, got %v", rep["36"])
	}
	exp = Expectations{"36": {SampleRate: 4}}
	_, rep = Check(ds, exp, DefaultOptions())
	if len(rep["36"]) == 0 || rep["36"][0].Kind != KindSampleRate {
		t.Fatalf("expected 4 Hz, got %v", rep["36"])
	}
	if d, ok := rep["36"][0].Detail.(AverageRateDetail); !ok || d.Expected != 4 {
		t.Errorf("detail = %+v", rep["36"][0].Detail)
	}
}

func TestBlockFailuresGoToSideFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blocks.txt")
	specs := append(uniformBlocks(2, 100, 1000), blk{n: 100, step: 1100}, blk{n: 100, step: 1000}, blk{n: 100, step: 1000})
	ds := dataset(buildChannel(100, 0, specs...))
	opts := DefaultOptions()
	opts.BlocksOutput = path
	exp := Expectations{"100": {SampleRate: 1000}}

	for range 2 {
		_, rep := Check(ds, exp, opts)
		d, ok := rep["100"][0].Detail.(RateDetail)
		if !ok || d.OutputPath != path || len(d.Blocks) != 0 {
			t.Fatalf("detail = %#v, want pointer to %s", rep["100"][0].Detail, path)
		}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if n := strings.Count(string(data), "Channel 100 Block Failures:"); n != 2 {
		t.Errorf("side file has %d sections, want 2 (append mode):\n%s", n, data)
	}
	if !strings.Contains(string(data), "2: 909.091 Hz, 9.091%") {
		t.Errorf("side file missing block line:\n%s", data)
	}
}

func TestReportLinesOrderedNumerically(t *testing.T) {
	rep := Report{}
	rep.Add(80, Failure{Kind: KindNoData})
	rep.Add(8, Failure{Kind: KindNoData})
	rep.Add(8, Failure{Kind: KindDuration, Detail: DurationDetail{LateEnd: true, End: 9, MaxEnd: 3}})
	lines := rep.Lines()
	if len(lines) != 2 || !strings.HasPrefix(lines[0], "Channel 8:") || !strings.HasPrefix(lines[1], "Channel 80:") {
		t.Errorf("lines = %q", lines)
	}
	if len(rep["8"]) != 2 {
		t.Errorf("channel 8 should accumulate two failures, got %v", rep["8"])
	}
}
