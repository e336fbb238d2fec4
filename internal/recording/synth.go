// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package recording

import (
	"math"
	"math/rand/v2"
)

// SynthShake is one driven sine segment of a synthetic shaker recording.
type SynthShake struct {
	Amp      float64 // g
	Freq     float64 // Hz
	Duration float64 // seconds, excluding ramps
}

// SynthAccel describes one synthetic accelerometer channel.
type SynthAccel struct {
	ChannelID   int
	Name        string
	Sensor      string
	Rate        float64    // Hz
	Sensitivity [3]float64 // counts per g
	Bias        [3]float64 // counts
	Rail        float64    // g; 0 means the sensor never clips
}

// SynthOptions controls Synth.
type SynthOptions struct {
	Device        DeviceInfo
	ShakenAxis    int     // 0..2
	GravitySign   float64 // sign of gravity on the shaken axis
	LeadIn        float64 // seconds of handling before the first shake
	Gap           float64 // seconds of rest between shakes
	Tail          float64 // seconds of handling after the last shake
	Ramp          float64 // seconds of linear ramp up and down per shake
	CrossTalk     float64 // fraction of the shake seen on the other axes
	Shakes        []SynthShake
	QuietNoise    float64 // g RMS while resting on the shaker
	HandlingNoise float64 // g RMS during lead-in and tail
	BlockSize     int
	Accels        []SynthAccel
	Environment   bool // add a 10 Hz pressure/temperature/humidity channel (59)
	Seed          uint64
}

// DefaultSynthOptions returns the two-shake (10 g then 4 g) recording of a
// device with a primary channel 8 and an ADXL355 secondary channel 32.
func DefaultSynthOptions(shakenAxis int) SynthOptions {
	return SynthOptions{
		Device:        DeviceInfo{Serial: "S0012345", PartNumber: "S3-E100D40", MCUType: "EFM32GG11B820F2048GQ64"},
		ShakenAxis:    shakenAxis,
		GravitySign:   1,
		LeadIn:        3,
		Gap:           3,
		Tail:          3,
		Ramp:          0.1,
		CrossTalk:     0.01,
		Shakes:        []SynthShake{{Amp: 10, Freq: 100, Duration: 3}, {Amp: 4, Freq: 150, Duration: 3}},
		QuietNoise:    0.002,
		HandlingNoise: 0.05,
		BlockSize:     1000,
		Accels: []SynthAccel{
			{ChannelID: 8, Name: "100g PE Acceleration", Sensor: "832M1-0100", Rate: 5000,
				Sensitivity: [3]float64{1, 1, 1}},
			{ChannelID: 32, Name: "40g DC Acceleration", Sensor: "ADXL355", Rate: 4000,
				Sensitivity: [3]float64{1, 1, 1}, Rail: 8},
		},
		Environment: true,
		Seed:        1,
	}
}

// Duration returns the recording length in seconds.
func (o SynthOptions) Duration() float64 {
	d := o.LeadIn + o.Tail
	for i, s := range o.Shakes {
		d += s.Duration + 2*o.Ramp
		if i > 0 {
			d += o.Gap
		}
	}
	return d
}

// shakeAt returns the driven acceleration at t and whether t is in a handling period.
func (o SynthOptions) shakeAt(t float64) (float64, bool) {
	if t < o.LeadIn {
		return 0, true
	}
	t0 := o.LeadIn
	for i, s := range o.Shakes {
		if i > 0 {
			t0 += o.Gap
		}
		span := s.Duration + 2*o.Ramp
		if t >= t0 && t < t0+span {
			dt := t - t0
			env := 1.0
			if o.Ramp > 0 {
				env = math.Min(1, math.Min(dt/o.Ramp, (span-dt)/o.Ramp))
			}
			return s.Amp * env * math.Sin(2*math.Pi*s.Freq*dt), false
		}
		t0 += span
	}
	return 0, t >= t0
}

// Synth builds a deterministic shaker recording.
func Synth(o SynthOptions) *Dataset {
	ds := NewDataset(o.Device, DefaultTicksPerSecond)
	rng := rand.New(rand.NewPCG(o.Seed, o.Seed^0x9e3779b97f4a7c15))
	total := o.Duration()
	blockSize := o.BlockSize
	if blockSize <= 0 {
		blockSize = 1000
	}

	for _, a := range o.Accels {
		ch := &Channel{
			ID:     a.ChannelID,
			Name:   a.Name,
			Sensor: a.Sensor,
			Subchannels: []Subchannel{
				{ID: 0, Name: "X", Units: "g"},
				{ID: 1, Name: "Y", Units: "g"},
				{ID: 2, Name: "Z", Units: "g"},
			},
		}
		n := int(total * a.Rate)
		var blk *Block
		for j := 0; j < n; j++ {
			t := float64(j) / a.Rate
			drive, handling := o.shakeAt(t)
			sigma := o.QuietNoise
			if handling {
				sigma = o.HandlingNoise
			}
			row := make([]float64, 3)
			for k := 0; k < 3; k++ {
				g := rng.NormFloat64() * sigma
				if k == o.ShakenAxis {
					g += o.GravitySign + drive
				} else {
					g += o.CrossTalk * drive
				}
				if a.Rail > 0 {
					g = math.Max(-a.Rail, math.Min(a.Rail, g))
				}
				row[k] = a.Sensitivity[k]*g + a.Bias[k]
			}
			tick := int64(math.Round(t * DefaultTicksPerSecond))
			if blk == nil || blk.NumSamples() == blockSize {
				blk = &Block{Start: tick}
				ch.Blocks = append(ch.Blocks, blk)
			}
			blk.Rows = append(blk.Rows, row)
			blk.End = tick
		}
		ds.AddChannel(ch)
	}

	if o.Environment {
		ds.AddChannel(synthEnvironment(total, rng))
	}
	return ds
}

// synthEnvironment emits pressure (Pa), temperature (°C) and humidity (%RH) at 10 Hz.
func synthEnvironment(total float64, rng *rand.Rand) *Channel {
	const rate = 10.0
	ch := &Channel{
		ID:     59,
		Name:   "Control Pad P/T/H",
		Sensor: "MS8607",
		Subchannels: []Subchannel{
			{ID: 0, Name: "Pressure", Units: "Pa"},
			{ID: 1, Name: "Temperature", Units: "°C"},
			{ID: 2, Name: "Relative Humidity", Units: "%RH"},
		},
	}
	var blk *Block
	n := int(total * rate)
	for j := 0; j < n; j++ {
		tick := int64(math.Round(float64(j) / rate * DefaultTicksPerSecond))
		if blk == nil || blk.NumSamples() == 10 {
			blk = &Block{Start: tick}
			ch.Blocks = append(ch.Blocks, blk)
		}
		blk.Rows = append(blk.Rows, []float64{
			101325 + rng.NormFloat64()*5,
			23 + rng.NormFloat64()*0.05,
			40 + rng.NormFloat64()*0.2,
		})
		blk.End = tick
	}
	return ch
}
