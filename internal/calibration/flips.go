// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package calibration

import (
	"log"
	"path"
	"strings"

	"github.com/relabs-tech/birther/internal/imu"
	"github.com/relabs-tech/birther/internal/recording"
	"github.com/relabs-tech/birther/internal/shake"
)

// Known accelerometer channel ids, in search order.
var (
	HiChannels = []int{0, 8, 80}
	LoChannels = []int{32, 80}
)

// Nominal shake amplitudes in g.
const (
	TargetFull   = 10.0
	TargetRailed = 4.0
)

type flipRule struct {
	name  string
	match func(pn, mcu string) bool
	hi    [3]float64
	lo    [3]float64
	warn  bool // matched, but only by a catch-all
}

func glob(pattern string) func(pn, mcu string) bool {
	return func(pn, _ string) bool {
		ok, _ := path.Match(pattern, pn)
		return ok
	}
}

func stm32(pattern string) func(pn, mcu string) bool {
	return func(pn, mcu string) bool {
		if !strings.HasPrefix(mcu, "STM32") {
			return false
		}
		ok, _ := path.Match(pattern, pn)
		return ok
	}
}

func prefix(prefixes ...string) func(pn, mcu string) bool {
	return func(pn, _ string) bool {
		for _, p := range prefixes {
			if strings.HasPrefix(pn, p) {
				return true
			}
		}
		return false
	}
}

func all(preds ...func(pn, mcu string) bool) func(pn, mcu string) bool {
	return func(pn, mcu string) bool {
		for _, p := range preds {
			if !p(pn, mcu) {
				return false
			}
		}
		return true
	}
}

func anyOf(preds ...func(pn, mcu string) bool) func(pn, mcu string) bool {
	return func(pn, mcu string) bool {
		for _, p := range preds {
			if p(pn, mcu) {
				return true
			}
		}
		return false
	}
}

func contains(s string) func(pn, mcu string) bool {
	return func(pn, _ string) bool { return strings.Contains(pn, s) }
}

var fullSize = prefix("S3", "S4", "S5", "S6", "W5", "W8")

// flipRules is evaluated top to bottom; the first match wins.
var flipRules = []flipRule{
	{name: "STM32 S?-E", match: stm32("S?-E*"), hi: [3]float64{1, 1, -1}, lo: [3]float64{-1, -1, 1}},
	{name: "STM32 S?-R", match: stm32("S?-R*"), hi: [3]float64{-1, -1, -1}, lo: [3]float64{-1, -1, 1}},
	{name: "STM32 W?-E", match: stm32("W?-E*"), hi: [3]float64{-1, -1, -1}, lo: [3]float64{-1, -1, 1}},
	{name: "STM32 W?-R", match: stm32("W?-R*"), hi: [3]float64{1, 1, -1}, lo: [3]float64{-1, -1, 1}},
	{name: "STM32", match: func(_, mcu string) bool { return strings.HasPrefix(mcu, "STM32") },
		hi: [3]float64{1, 1, -1}, lo: [3]float64{-1, -1, 1}, warn: true},
	{name: "mini", match: prefix("S1", "S2"), hi: [3]float64{-1, -1, 1}, lo: [3]float64{1, 1, 1}},
	{name: "single digital", match: anyOf(glob("S?-D16"), glob("S?-D200")), hi: [3]float64{1, 1, -1}, lo: [3]float64{1, 1, 1}},
	{name: "piezoresistive", match: all(fullSize, contains("-R")), hi: [3]float64{-1, -1, -1}, lo: [3]float64{-1, -1, 1}},
	{name: "piezoelectric", match: all(fullSize, contains("-E")), hi: [3]float64{1, 1, -1}, lo: [3]float64{-1, -1, 1}},
	{name: "digital", match: fullSize, hi: [3]float64{-1, -1, 1}, lo: [3]float64{-1, -1, 1}},
	{name: "LOG-0004", match: prefix("LOG-0004"), hi: [3]float64{-1, 1, -1}, lo: [3]float64{1, 1, 1}},
	{name: "LOG-0002", match: prefix("LOG-0002"), hi: [3]float64{1, 1, -1}, lo: [3]float64{1, 1, 1}},
}

// LookupFlips returns the hi and lo accelerometer axis flips for a part
// number and MCU type. matched is false when only the neutral default applied.
func LookupFlips(partNumber, mcuType string) (hi, lo imu.XYZ, matched bool) {
	pn := strings.ToUpper(partNumber)
	mcu := strings.ToUpper(mcuType)
	for _, r := range flipRules {
		if r.match(pn, mcu) {
			if r.warn {
				log.Printf("calibration: using default axis flips for unknown %s device type %q", r.name, pn)
			}
			return imu.NewXYZ(r.hi[0], r.hi[1], r.hi[2]), imu.NewXYZ(r.lo[0], r.lo[1], r.lo[2]), true
		}
	}
	return imu.Fill(1), imu.Fill(1), false
}

// AxisFlips resolves the flips for dev. Non-nil overrides replace the table.
func AxisFlips(dev recording.DeviceInfo, hiOverride, loOverride *imu.XYZ) (hi, lo imu.XYZ) {
	hi, lo, matched := LookupFlips(dev.PartNumber, dev.MCUType)
	if !matched && (hiOverride == nil || loOverride == nil) {
		log.Printf("calibration: could not get axis flips for device type %q; using (1, 1, 1)", dev.PartNumber)
	}
	if hiOverride != nil {
		hi = *hiOverride
	}
	if loOverride != nil {
		lo = *loOverride
	}
	return hi, lo
}

// HasHiAccel reports whether a part number carries a high-g accelerometer.
func HasHiAccel(partNumber string) bool {
	pn := strings.ToUpper(partNumber)
	if strings.HasPrefix(pn, "LOG-0003") {
		return false
	}
	if ok, _ := path.Match("[SW]?-D*", pn); ok {
		both, _ := path.Match("S?-D*D*", pn)
		return both
	}
	return true
}

// IsMini reports whether gravity comes from the hi accelerometer.
func IsMini(partNumber string) bool {
	return prefix("S1", "S2")(strings.ToUpper(partNumber), "")
}

// TargetAmplitude returns the nominal shake amplitude the sensor can see.
func TargetAmplitude(sensor string) float64 {
	if shake.IsRailed(sensor) {
		return TargetRailed
	}
	return TargetFull
}

// Gain converts a measured amplitude into a signed gain.
func Gain(flip, amplitude, target float64) float64 {
	return flip * amplitude / target
}

// Offset places the quiet mean on the known gravity component.
func Offset(gravity, gain, mean float64) float64 {
	return gravity - gain*mean
}
