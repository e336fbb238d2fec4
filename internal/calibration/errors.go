// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package calibration

import (
	"errors"
	"fmt"

	"github.com/relabs-tech/birther/internal/imu"
	"github.com/relabs-tech/birther/internal/shake"
)

// Error is a fatal problem tied to one accelerometer channel.
type Error = shake.Error

var (
	ErrNoData        = shake.ErrNoData
	ErrLowSampleRate = shake.ErrLowSampleRate
	ErrShakeNotFound = shake.ErrShakeNotFound
	ErrAxisConflict  = shake.ErrAxisConflict

	ErrOrientation     = errors.New("gravity orientation mismatch")
	ErrIncomplete      = errors.New("calibration incomplete")
	ErrNoAccelerometer = errors.New("accelerometer channel not found")
	ErrDeviceMismatch  = errors.New("recordings come from different devices")
)

// OrientationError reports the axis whose gravity sign is wrong.
type OrientationError struct {
	Axis    int
	Gravity imu.XYZ
}

func (e *OrientationError) Error() string {
	return fmt.Sprintf("%v: %s axis disagrees, gravity %s", ErrOrientation, imu.AxisName(e.Axis), e.Gravity)
}

func (e *OrientationError) Is(target error) bool { return target == ErrOrientation }
