// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package imu

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrAxisUnset is returned when an axis is read before it has been populated.
var ErrAxisUnset = errors.New("axis not set")

// Axis indices (0=x, 1=y, 2=z).
const (
	X = 0
	Y = 1
	Z = 2
)

var axisNames = [3]string{"X", "Y", "Z"}

// XYZ is a per-axis triple. Each axis may be unset until the recording that
// drives it has been analyzed.
type XYZ struct {
	v   [3]float64
	set [3]bool
}

// NewXYZ returns a fully populated triple.
func NewXYZ(x, y, z float64) XYZ {
	return XYZ{v: [3]float64{x, y, z}, set: [3]bool{true, true, true}}
}

// Fill returns a triple with every axis set to v.
func Fill(v float64) XYZ {
	return NewXYZ(v, v, v)
}

// AxisName returns "X", "Y" or "Z".
func AxisName(i int) string {
	if i < 0 || i > 2 {
		return fmt.Sprintf("axis(%d)", i)
	}
	return axisNames[i]
}

// AxisIndex maps "x"/"y"/"z" (any case) to 0/1/2.
func AxisIndex(name string) (int, error) {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "X":
		return X, nil
	case "Y":
		return Y, nil
	case "Z":
		return Z, nil
	}
	return -1, fmt.Errorf("bad XYZ index: %q", name)
}

// Set populates axis i.
func (t *XYZ) Set(i int, v float64) {
	t.v[i] = v
	t.set[i] = true
}

// IsSet reports whether axis i has been populated.
func (t XYZ) IsSet(i int) bool {
	return i >= 0 && i < 3 && t.set[i]
}

// Complete reports whether all three axes are populated.
func (t XYZ) Complete() bool {
	return t.set[0] && t.set[1] && t.set[2]
}

// Get returns axis i or ErrAxisUnset.
func (t XYZ) Get(i int) (float64, error) {
	if i < 0 || i > 2 {
		return 0, fmt.Errorf("bad XYZ index: %d", i)
	}
	if !t.set[i] {
		return 0, fmt.Errorf("%s: %w", axisNames[i], ErrAxisUnset)
	}
	return t.v[i], nil
}

// ByName is Get keyed by "x", "y" or "z".
func (t XYZ) ByName(name string) (float64, error) {
	i, err := AxisIndex(name)
	if err != nil {
		return 0, err
	}
	return t.Get(i)
}

// At returns axis i and panics if it is unset. Use it only after Complete.
func (t XYZ) At(i int) float64 {
	v, err := t.Get(i)
	if err != nil {
		panic(err)
	}
	return v
}

// Values returns the three axes, or an error naming the first unset one.
func (t XYZ) Values() ([3]float64, error) {
	for i := range 3 {
		if !t.set[i] {
			return [3]float64{}, fmt.Errorf("%s: %w", axisNames[i], ErrAxisUnset)
		}
	}
	return t.v, nil
}

func (t XYZ) combine(o XYZ, f func(a, b float64) float64) (XYZ, error) {
	var out XYZ
	for i := range 3 {
		if !t.set[i] || !o.set[i] {
			return XYZ{}, fmt.Errorf("%s: %w", axisNames[i], ErrAxisUnset)
		}
		out.Set(i, f(t.v[i], o.v[i]))
	}
	return out, nil
}

// Add returns t+o element-wise.
func (t XYZ) Add(o XYZ) (XYZ, error) {
	return t.combine(o, func(a, b float64) float64 { return a + b })
}

// Sub returns t-o element-wise.
func (t XYZ) Sub(o XYZ) (XYZ, error) {
	return t.combine(o, func(a, b float64) float64 { return a - b })
}

// Mul returns t*o element-wise.
func (t XYZ) Mul(o XYZ) (XYZ, error) {
	return t.combine(o, func(a, b float64) float64 { return a * b })
}

func (t XYZ) String() string {
	parts := make([]string, 3)
	for i := range 3 {
		if t.set[i] {
			parts[i] = fmt.Sprintf("%s: %g", strings.ToLower(axisNames[i]), t.v[i])
		} else {
			parts[i] = strings.ToLower(axisNames[i]) + ": None"
		}
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

// MarshalJSON encodes {"x":..,"y":..,"z":..} with null for unset axes.
func (t XYZ) MarshalJSON() ([]byte, error) {
	out := make(map[string]*float64, 3)
	for i := range 3 {
		key := strings.ToLower(axisNames[i])
		if t.set[i] {
			v := t.v[i]
			out[key] = &v
		} else {
			out[key] = nil
		}
	}
	return json.Marshal(out)
}

// UnmarshalJSON is the inverse of MarshalJSON.
func (t *XYZ) UnmarshalJSON(b []byte) error {
	var in map[string]*float64
	if err := json.Unmarshal(b, &in); err != nil {
		return err
	}
	*t = XYZ{}
	for i := range 3 {
		if v := in[strings.ToLower(axisNames[i])]; v != nil {
			t.Set(i, *v)
		}
	}
	return nil
}
