// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"
	"math"
	"os"
	"path/filepath"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"periph.io/x/devices/v3/ssd1306/image1bit"

	"github.com/relabs-tech/birther/internal/calibration"
	"github.com/relabs-tech/birther/internal/imu"
)

const (
	panelW = 600
	panelH = 200
	margin = 16
)

var axisColors = [3]color.RGBA{
	{R: 0xd6, G: 0x27, B: 0x28, A: 0xff},
	{R: 0x2c, G: 0xa0, B: 0x2c, A: 0xff},
	{R: 0x1f, G: 0x77, B: 0xb4, A: 0xff},
}

// RenderShakePlot draws one panel per shaken axis with the high-passed
// X, Y and Z traces of the shake window.
func RenderShakePlot(lib *calibration.Library) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, panelW, 3*panelH))
	draw.Draw(img, img.Bounds(), image.White, image.Point{}, draw.Src)

	drawer := &font.Drawer{
		Dst:  img,
		Src:  image.Black,
		Face: basicfont.Face7x13,
	}

	for axis := 0; axis < 3; axis++ {
		top := axis * panelH
		frame := image.Rect(margin, top+margin+13, panelW-margin, top+panelH-margin)
		outline(img, frame, color.Gray{Y: 0xa0})

		drawer.Dot = fixed.P(margin, top+margin+9)
		a := lib.Axes[axis]
		if a == nil {
			drawer.DrawBytes([]byte(fmt.Sprintf("%s %s: no data", lib.Name, imu.AxisName(axis))))
			continue
		}
		drawer.DrawBytes([]byte(fmt.Sprintf("%s ch%d %s shaken  amp=%.3f  %s",
			lib.Name, lib.ChannelID, imu.AxisName(axis), a.Amplitude, lib.Files[axis])))

		if a.Shake.Len() < 2 {
			continue
		}
		lo, hi := bounds(a.Shake.Axes)
		for k, col := range a.Shake.Axes {
			trace(img, frame, col, lo, hi, axisColors[k%3])
		}
	}
	return img
}

// WriteShakePlot renders lib into dir/<serial>_<name>.png and returns the path.
func WriteShakePlot(dir, serial string, lib *calibration.Library) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, fmt.Sprintf("%s_%s.png", serial, lib.Name))
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	if err := png.Encode(f, RenderShakePlot(lib)); err != nil {
		f.Close()
		return "", err
	}
	return path, f.Close()
}

// RenderSummaryCard draws the 128x64 monochrome status card shown on the
// station display: serial, gravity and one gain line per accelerometer.
func RenderSummaryCard(res *calibration.Result) *image1bit.VerticalLSB {
	img := image1bit.NewVerticalLSB(image.Rect(0, 0, 128, 64))

	drawer := &font.Drawer{
		Dst:  img,
		Src:  &image.Uniform{image1bit.On},
		Face: basicfont.Face7x13,
	}

	drawer.Dot = fixed.P(0, 13)
	drawer.DrawBytes([]byte(res.Device.Serial))

	drawer.Dot = fixed.P(0, 26)
	drawer.DrawBytes([]byte(fmt.Sprintf("g %+.0f %+.0f %+.0f", res.Gravity.At(0), res.Gravity.At(1), res.Gravity.At(2))))

	y := 39
	for _, lib := range res.Libraries() {
		drawer.Dot = fixed.P(0, y)
		drawer.DrawBytes([]byte(fmt.Sprintf("%s %.2f %.2f %.2f", lib.Name, lib.Gain.At(0), lib.Gain.At(1), lib.Gain.At(2))))
		y += 13
	}
	return img
}

// WriteSummaryCard encodes the status card as PNG.
func WriteSummaryCard(w io.Writer, res *calibration.Result) error {
	return png.Encode(w, RenderSummaryCard(res))
}

func bounds(cols [][]float64) (lo, hi float64) {
	lo, hi = math.Inf(1), math.Inf(-1)
	for _, col := range cols {
		for _, v := range col {
			lo = math.Min(lo, v)
			hi = math.Max(hi, v)
		}
	}
	if hi <= lo {
		hi = lo + 1
	}
	return lo, hi
}

func trace(img *image.RGBA, r image.Rectangle, col []float64, lo, hi float64, c color.RGBA) {
	w, h := r.Dx()-1, r.Dy()-1
	// one sample per pixel column
	prev := -1
	for px := 0; px <= w; px++ {
		i := px * (len(col) - 1) / w
		y := r.Max.Y - 1 - int(float64(h)*(col[i]-lo)/(hi-lo))
		if prev >= 0 {
			vline(img, r.Min.X+px, prev, y, c)
		}
		img.SetRGBA(r.Min.X+px, y, c)
		prev = y
	}
}

func vline(img *image.RGBA, x, y0, y1 int, c color.RGBA) {
	if y0 > y1 {
		y0, y1 = y1, y0
	}
	for y := y0; y <= y1; y++ {
		img.SetRGBA(x, y, c)
	}
}

func outline(img *image.RGBA, r image.Rectangle, c color.Color) {
	for x := r.Min.X; x < r.Max.X; x++ {
		img.Set(x, r.Min.Y, c)
		img.Set(x, r.Max.Y-1, c)
	}
	for y := r.Min.Y; y < r.Max.Y; y++ {
		img.Set(r.Min.X, y, c)
		img.Set(r.Max.X-1, y, c)
	}
}
