// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package shakeprofile

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
)

// TenGFourG is the standard program: a 10 g shake at 100 Hz, then a 4 g shake
// at 150 Hz for sensors that rail at 8 g.
func TenGFourG() *Profile {
	return New("10g_4g",
		Delay(1, DelayStart),
		Shake(10, 5, 3, 3, 100),
		Delay(3, DelayMiddle),
		Shake(4, 5, 2, 2, 150),
		Delay(1, DelayEnd),
	)
}

// TenG is the legacy single-shake program.
func TenG() *Profile {
	return New("10g",
		Delay(1, DelayStart),
		Shake(10, 5, 3, 3, 100),
		Delay(1, DelayEnd),
	)
}

var builtins = map[string]func() *Profile{
	"10g_4g": TenGFourG,
	"10g":    TenG,
}

// Names lists the built-in profiles.
func Names() []string {
	out := make([]string, 0, len(builtins))
	for k := range builtins {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Builtin returns a fresh copy of a named built-in profile.
func Builtin(name string) (*Profile, error) {
	fn, ok := builtins[name]
	if !ok {
		return nil, fmt.Errorf("unknown shake profile %q (have %s)", name, strings.Join(Names(), ", "))
	}
	return fn(), nil
}

type segmentDoc struct {
	Kind     string  `toml:"kind" json:"kind"`
	Amp      float64 `toml:"amp" json:"amp"`
	Freq     float64 `toml:"freq" json:"freq"`
	Length   float64 `toml:"length" json:"length"`
	RampUp   float64 `toml:"ramp_up" json:"ramp_up"`
	RampDown float64 `toml:"ramp_down" json:"ramp_down"`
	MinLen   float64 `toml:"min_len" json:"min_len"`
	Delay    string  `toml:"delay" json:"delay"`
}

type profileDoc struct {
	Name     string       `toml:"name" json:"name"`
	Segments []segmentDoc `toml:"segment" json:"segments"`
}

// Load reads a profile from a .toml or .json file. Times are in seconds.
func Load(path string) (*Profile, error) {
	var doc profileDoc
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read shake profile: %w", err)
		}
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("failed to decode shake profile: %w", err)
		}
	default:
		if _, err := toml.DecodeFile(path, &doc); err != nil {
			return nil, fmt.Errorf("failed to decode shake profile: %w", err)
		}
	}

	if len(doc.Segments) == 0 {
		return nil, fmt.Errorf("shake profile %s has no segments", path)
	}
	segs := make([]Segment, 0, len(doc.Segments))
	for i, d := range doc.Segments {
		switch strings.ToLower(d.Kind) {
		case "shake":
			if d.Freq <= bandHalfWidth {
				return nil, fmt.Errorf("segment %d: shake frequency %.1f Hz too low", i, d.Freq)
			}
			segs = append(segs, Shake(d.Amp, d.Length, d.RampUp, d.RampDown, d.Freq))
		case "delay":
			t, err := ParseDelayType(d.Delay)
			if err != nil {
				return nil, fmt.Errorf("segment %d: %w", i, err)
			}
			segs = append(segs, Delay(d.MinLen, t))
		default:
			return nil, fmt.Errorf("segment %d: unknown kind %q", i, d.Kind)
		}
	}
	name := doc.Name
	if name == "" {
		name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return New(name, segs...), nil
}

// Resolve returns the built-in profile called nameOrPath, or loads it from disk.
func Resolve(nameOrPath string) (*Profile, error) {
	if _, ok := builtins[nameOrPath]; ok {
		return Builtin(nameOrPath)
	}
	return Load(nameOrPath)
}
