// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package checkide

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/relabs-tech/birther/internal/recording"
)

// Bounds is an inclusive [Min, Max] value range.
type Bounds struct {
	Min float64
	Max float64
}

func (b Bounds) String() string {
	return fmt.Sprintf("(%g, %g)", b.Min, b.Max)
}

// Contains reports whether lo and hi both fall inside the bounds.
func (b Bounds) Contains(lo, hi float64) bool {
	return lo >= b.Min && hi <= b.Max
}

// MarshalJSON encodes the bounds as a two-element array.
func (b Bounds) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]float64{b.Min, b.Max})
}

// UnmarshalJSON accepts a two-element array.
func (b *Bounds) UnmarshalJSON(data []byte) error {
	var pair []float64
	if err := json.Unmarshal(data, &pair); err != nil {
		return err
	}
	if len(pair) != 2 {
		return fmt.Errorf("range needs 2 values, got %d", len(pair))
	}
	b.Min, b.Max = pair[0], pair[1]
	return nil
}

// RangeKind tells which form a RangeSpec takes.
type RangeKind int

const (
	// RangeUniform applies one pair of bounds to every subchannel.
	RangeUniform RangeKind = iota
	// RangePerSubchannel maps subchannel ids to bounds.
	RangePerSubchannel
)

// RangeSpec is either a uniform bound or a per-subchannel map.
type RangeSpec struct {
	Kind        RangeKind
	Uniform     Bounds
	Subchannels map[int]Bounds
}

// Uniform returns a spec applying [lo, hi] to every subchannel.
func Uniform(lo, hi float64) *RangeSpec {
	return &RangeSpec{Kind: RangeUniform, Uniform: Bounds{Min: lo, Max: hi}}
}

// PerSubchannel returns a spec with individual bounds per subchannel id.
func PerSubchannel(m map[int]Bounds) *RangeSpec {
	return &RangeSpec{Kind: RangePerSubchannel, Subchannels: m}
}

// MarshalJSON writes the array form or the object form.
func (r RangeSpec) MarshalJSON() ([]byte, error) {
	if r.Kind == RangeUniform {
		return json.Marshal(r.Uniform)
	}
	m := make(map[string]Bounds, len(r.Subchannels))
	for id, b := range r.Subchannels {
		m[strconv.Itoa(id)] = b
	}
	return json.Marshal(m)
}

// UnmarshalJSON accepts [min, max] or {"<subchannel>": [min, max], ...}.
func (r *RangeSpec) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	spec, err := parseRange(raw)
	if err != nil {
		return err
	}
	*r = *spec
	return nil
}

// RateCheckFunc replaces the built-in per-block rate checks of a channel.
// It records any failure it finds directly into the report.
type RateCheckFunc func(sess *recording.Session, rep Report)

// Expectation is what a caller expects of one channel.
type Expectation struct {
	SampleRate float64       // Hz; 0 means no explicit expectation
	RateCheck  RateCheckFunc // optional replacement of the block checks
	Range      *RangeSpec    // optional value range
}

// Expectations maps channel id (as a decimal string) to its expectation.
type Expectations map[string]Expectation

// ParseExpectations converts a decoded JSON or TOML table. Channel ids that do
// not parse as integers are kept but never match a channel.
func ParseExpectations(raw map[string]any) (Expectations, error) {
	exp := make(Expectations, len(raw))
	for key, v := range raw {
		tbl, ok := v.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("channel %s: expectation must be a table, got %T", key, v)
		}
		var e Expectation
		for field, fv := range tbl {
			switch field {
			case "sample_rate":
				rate, ok := toFloat(fv)
				if !ok {
					return nil, fmt.Errorf("channel %s: sample_rate must be a number, got %T", key, fv)
				}
				e.SampleRate = rate
			case "range":
				spec, err := parseRange(fv)
				if err != nil {
					return nil, fmt.Errorf("channel %s: %w", key, err)
				}
				e.Range = spec
			}
		}
		exp[key] = e
	}
	return exp, nil
}

// LoadExpectations reads an expectation table from a .json or .toml file.
func LoadExpectations(path string) (Expectations, error) {
	raw := map[string]any{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.DecodeFile(path, &raw); err != nil {
			return nil, fmt.Errorf("failed to decode expected values: %w", err)
		}
	default:
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read expected values: %w", err)
		}
		defer f.Close()
		return DecodeExpectations(f)
	}
	return ParseExpectations(raw)
}

// DecodeExpectations reads a JSON expectation table.
func DecodeExpectations(r io.Reader) (Expectations, error) {
	raw := map[string]any{}
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to decode expected values: %w", err)
	}
	return ParseExpectations(raw)
}

func parseRange(v any) (*RangeSpec, error) {
	switch r := v.(type) {
	case []any:
		b, err := parseBounds(r)
		if err != nil {
			return nil, err
		}
		return &RangeSpec{Kind: RangeUniform, Uniform: b}, nil
	case map[string]any:
		m := make(map[int]Bounds, len(r))
		for k, bv := range r {
			id, err := strconv.Atoi(k)
			if err != nil {
				// not a subchannel id; never matches
				continue
			}
			arr, ok := bv.([]any)
			if !ok {
				return nil, fmt.Errorf("range of subchannel %s must be [min, max], got %T", k, bv)
			}
			b, err := parseBounds(arr)
			if err != nil {
				return nil, fmt.Errorf("subchannel %s: %w", k, err)
			}
			m[id] = b
		}
		return &RangeSpec{Kind: RangePerSubchannel, Subchannels: m}, nil
	}
	return nil, fmt.Errorf("range must be [min, max] or a subchannel table, got %T", v)
}

func parseBounds(arr []any) (Bounds, error) {
	if len(arr) != 2 {
		return Bounds{}, fmt.Errorf("range needs 2 values, got %d", len(arr))
	}
	lo, ok1 := toFloat(arr[0])
	hi, ok2 := toFloat(arr[1])
	if !ok1 || !ok2 {
		return Bounds{}, fmt.Errorf("range values must be numbers")
	}
	return Bounds{Min: lo, Max: hi}, nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}
