// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"bytes"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"periph.io/x/devices/v3/ssd1306/image1bit"
)

func TestRenderShakePlotDrawsEachAxis(t *testing.T) {
	lib := sampleResult().Hi
	img := RenderShakePlot(lib)
	if img.Bounds().Dx() != panelW || img.Bounds().Dy() != 3*panelH {
		t.Fatalf("bounds = %v", img.Bounds())
	}
	for axis := 0; axis < 3; axis++ {
		c := axisColors[axis]
		found := false
		for y := axis * panelH; y < (axis+1)*panelH && !found; y++ {
			for x := 0; x < panelW; x++ {
				if img.RGBAAt(x, y) == c {
					found = true
					break
				}
			}
		}
		if !found {
			t.Errorf("panel %d has no trace of its shaken axis", axis)
		}
	}
}

func TestWriteShakePlot(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "plots")
	path, err := WriteShakePlot(dir, "S0012345", sampleResult().Hi)
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Base(path) != "S0012345_hi.png" {
		t.Errorf("path = %s", path)
	}
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if _, err := png.Decode(f); err != nil {
		t.Fatalf("not a png: %v", err)
	}
}

func TestSummaryCard(t *testing.T) {
	res := sampleResult()
	img := RenderSummaryCard(res)
	if img.Bounds().Dx() != 128 || img.Bounds().Dy() != 64 {
		t.Fatalf("bounds = %v", img.Bounds())
	}
	lit := 0
	for y := 0; y < 64; y++ {
		for x := 0; x < 128; x++ {
			if img.BitAt(x, y) == image1bit.On {
				lit++
			}
		}
	}
	if lit == 0 {
		t.Error("card is blank")
	}

	var buf bytes.Buffer
	if err := WriteSummaryCard(&buf, res); err != nil {
		t.Fatal(err)
	}
	if _, err := png.Decode(&buf); err != nil {
		t.Fatalf("not a png: %v", err)
	}
}
