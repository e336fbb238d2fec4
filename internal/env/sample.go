// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package env

import (
	"fmt"
	"math"
	"strings"

	"periph.io/x/conn/v3/physic"

	"github.com/relabs-tech/birther/internal/dsp"
	"github.com/relabs-tech/birther/internal/recording"
)

// ref is a (channel id, subchannel position) pair.
type ref struct{ channel, sub int }

// Known locations of the environmental sensors, first match wins.
var (
	pressureRefs    = []ref{{36, 0}, {59, 0}}
	temperatureRefs = []ref{{36, 1}, {59, 1}}
	humidityRefs    = []ref{{59, 2}}
)

// Sample represents the environmental conditions of one recording.
type Sample struct {
	Source string `json:"source"` // recording name

	Temperature *float64 `json:"temp_c,omitempty"`      // °C
	Pressure    *float64 `json:"pressure_pa,omitempty"` // Pa
	Humidity    *float64 `json:"humidity_rh,omitempty"` // %RH
}

// FromSource averages the first known channel for each quantity.
func FromSource(name string, src recording.Source) Sample {
	return Sample{
		Source:      name,
		Temperature: channelMean(src, temperatureRefs),
		Pressure:    channelMean(src, pressureRefs),
		Humidity:    channelMean(src, humidityRefs),
	}
}

func channelMean(src recording.Source, refs []ref) *float64 {
	for _, r := range refs {
		ch, ok := src.Channel(r.channel)
		if !ok || r.sub >= len(ch.Subchannels) {
			continue
		}
		sess := ch.Session()
		if sess == nil {
			continue
		}
		m := dsp.Mean(sess.Column(r.sub))
		return &m
	}
	return nil
}

// Average combines samples. Temperature and pressure average whatever is
// present; humidity is reported only when every sample has it.
func Average(source string, samples []Sample) Sample {
	out := Sample{Source: source}
	if len(samples) == 0 {
		return out
	}
	var temps, press, hums []float64
	for _, s := range samples {
		if s.Temperature != nil {
			temps = append(temps, *s.Temperature)
		}
		if s.Pressure != nil {
			press = append(press, *s.Pressure)
		}
		if s.Humidity != nil {
			hums = append(hums, *s.Humidity)
		}
	}
	out.Temperature = meanOf(temps)
	out.Pressure = meanOf(press)
	if len(hums) == len(samples) {
		out.Humidity = meanOf(hums)
	}
	return out
}

func meanOf(x []float64) *float64 {
	if len(x) == 0 {
		return nil
	}
	m := dsp.Mean(x)
	return &m
}

// Temp returns the temperature as a physic value.
func (s Sample) Temp() (physic.Temperature, bool) {
	if s.Temperature == nil {
		return 0, false
	}
	return physic.ZeroCelsius + physic.Temperature(math.Round(*s.Temperature*float64(physic.Celsius))), true
}

// Press returns the pressure as a physic value.
func (s Sample) Press() (physic.Pressure, bool) {
	if s.Pressure == nil {
		return 0, false
	}
	return physic.Pressure(math.Round(*s.Pressure * float64(physic.Pascal))), true
}

func (s Sample) String() string {
	var parts []string
	if t, ok := s.Temp(); ok {
		parts = append(parts, fmt.Sprintf("T=%.2f°C", t.Celsius()))
	}
	if p, ok := s.Press(); ok {
		parts = append(parts, "P="+p.String())
	}
	if s.Humidity != nil {
		parts = append(parts, fmt.Sprintf("RH=%.1f%%", *s.Humidity))
	}
	if len(parts) == 0 {
		return "no environmental data"
	}
	return strings.Join(parts, " ")
}
