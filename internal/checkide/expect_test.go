// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package checkide

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func assertExpectations(t *testing.T, exp Expectations) {
	t.Helper()
	e8, ok := exp["8"]
	if !ok || e8.SampleRate != 5000 {
		t.Fatalf("channel 8 = %+v", e8)
	}
	if e8.Range == nil || e8.Range.Kind != RangeUniform || e8.Range.Uniform != (Bounds{Min: -100, Max: 100}) {
		t.Errorf("channel 8 range = %+v", e8.Range)
	}
	e80 := exp["80"]
	if e80.Range == nil || e80.Range.Kind != RangePerSubchannel {
		t.Fatalf("channel 80 range = %+v", e80.Range)
	}
	if got := e80.Range.Subchannels[2]; got != (Bounds{Min: 0, Max: 2}) {
		t.Errorf("channel 80 subchannel 2 = %v", got)
	}
	if e80.SampleRate != 0 {
		t.Errorf("channel 80 sample rate = %v, want unset", e80.SampleRate)
	}
}

func TestLoadExpectationsJSON(t *testing.T) {
	path := writeFile(t, "exp.json", `{
		"8": {"sample_rate": 5000, "range": [-100, 100]},
		"80": {"range": {"0": [-1, 1], "2": [0, 2]}}
	}`)
	exp, err := LoadExpectations(path)
	if err != nil {
		t.Fatal(err)
	}
	assertExpectations(t, exp)
}

func TestLoadExpectationsTOML(t *testing.T) {
	path := writeFile(t, "exp.toml", `
[8]
sample_rate = 5000
range = [-100, 100]

[80.range]
0 = [-1, 1]
2 = [0, 2]
`)
	exp, err := LoadExpectations(path)
	if err != nil {
		t.Fatal(err)
	}
	assertExpectations(t, exp)
}

func TestLoadExpectationsRejectsBadRange(t *testing.T) {
	path := writeFile(t, "bad.json", `{"8": {"range": [1, 2, 3]}}`)
	if _, err := LoadExpectations(path); err == nil {
		t.Error("expected error for a three-value range")
	}
}

func TestRangeSpecJSON(t *testing.T) {
	var r RangeSpec
	if err := json.Unmarshal([]byte(`{"1": [0, 5]}`), &r); err != nil {
		t.Fatal(err)
	}
	if r.Kind != RangePerSubchannel || r.Subchannels[1] != (Bounds{Min: 0, Max: 5}) {
		t.Errorf("decoded %+v", r)
	}
	out, err := json.Marshal(Uniform(-2, 2))
	if err != nil {
		t.Fatal(err)
	}
	if string(out) != "[-2,2]" {
		t.Errorf("uniform encodes as %s", out)
	}
}
