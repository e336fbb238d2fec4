// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/relabs-tech/birther/internal/calibration"
	"github.com/relabs-tech/birther/internal/checkide"
	"github.com/relabs-tech/birther/internal/imu"
	"github.com/relabs-tech/birther/internal/recording"
	"github.com/relabs-tech/birther/internal/shake"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "db", "birther.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("close: %v", err)
		}
	})
	return s
}

func fakeResult(serial string, created time.Time) *calibration.Result {
	lib := &calibration.Library{Name: "hi", ChannelID: 8, Sensor: "832M1-0100", Target: 10, Flips: imu.NewXYZ(1, 1, -1)}
	for i, f := range []string{"x.ide", "y.ide", "z.ide"} {
		a := &shake.Analysis{ChannelID: 8, Shaken: i, Amplitude: 10 + float64(i), QuietMean: 1, Gain: 1.1, Offset: -0.1}
		lib.Axes[i] = a
		lib.Files[i] = f
	}
	lib.Gain = imu.Fill(1.1)
	lib.Offset = imu.Fill(-0.1)
	return &calibration.Result{
		SessionID: uuid.New(),
		Device:    recording.DeviceInfo{Serial: serial, PartNumber: "S3-E100D40", MCUType: "EFM32GG11"},
		Created:   created,
		Hi:        lib,
		Gravity:   imu.NewXYZ(-1, -1, 1),
		Files:     lib.Files[:],
	}
}

func TestCalibrationRoundTrip(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	first := fakeResult("S0001", t0)
	if _, err := s.SaveCalibration(ctx, first); err != nil {
		t.Fatal(err)
	}
	second := fakeResult("S0001", t0.Add(time.Hour))
	if _, err := s.SaveCalibration(ctx, second); err != nil {
		t.Fatal(err)
	}
	if _, err := s.SaveCalibration(ctx, fakeResult("S0002", t0)); err != nil {
		t.Fatal(err)
	}

	list, err := s.ListCalibrations(ctx, "S0001")
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 || list[0].SessionID != second.SessionID.String() {
		t.Fatalf("list = %+v, want newest first", list)
	}
	if list[0].PartNumber != "S3-E100D40" || list[0].Gravity.At(imu.Z) != 1 || len(list[0].Files) != 3 {
		t.Errorf("summary = %+v", list[0])
	}
	all, err := s.ListCalibrations(ctx, "")
	if err != nil || len(all) != 3 {
		t.Fatalf("all = %d rows, err %v", len(all), err)
	}

	rec, err := s.GetCalibration(ctx, first.SessionID.String())
	if err != nil {
		t.Fatal(err)
	}
	if len(rec.Axes) != 3 || rec.Axes[0].Axis != "X" || rec.Axes[2].Amplitude != 12 || rec.Axes[1].File != "y.ide" {
		t.Errorf("axes = %+v", rec.Axes)
	}
	if rec.Result.Hi == nil || rec.Result.Hi.Gain.At(imu.Y) != 1.1 || rec.Result.Lo != nil {
		t.Errorf("decoded result = %+v", rec.Result)
	}
	if !rec.Created.Equal(t0) {
		t.Errorf("created = %v, want %v", rec.Created, t0)
	}
}

func TestGetCalibrationNotFound(t *testing.T) {
	s := openTemp(t)
	if _, err := s.GetCalibration(context.Background(), uuid.NewString()); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestValidityReports(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	rep := checkide.Report{}
	rep.Add(8, checkide.Failure{Kind: checkide.KindNoData})
	if _, err := s.SaveValidity(ctx, "bad.ide", "S0001", t0, false, rep); err != nil {
		t.Fatal(err)
	}
	if _, err := s.SaveValidity(ctx, "good.ide", "S0001", t0.Add(time.Minute), true, checkide.Report{}); err != nil {
		t.Fatal(err)
	}

	got, err := s.ListValidity(ctx, "S0001")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d records", len(got))
	}
	if got[0].File != "good.ide" || !got[0].Passed || len(got[0].Lines) != 0 {
		t.Errorf("newest = %+v", got[0])
	}
	if got[1].Passed || len(got[1].Lines) != 1 || got[1].Lines[0] != "Channel 8: [NO DATA EXISTS]" {
		t.Errorf("oldest = %+v", got[1])
	}
	if none, err := s.ListValidity(ctx, "S9999"); err != nil || len(none) != 0 {
		t.Errorf("unknown serial: %v, %v", none, err)
	}
}
