// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package shake

import (
	"errors"
	"fmt"
)

var (
	ErrNoData        = errors.New("channel has no data")
	ErrLowSampleRate = errors.New("low sample rate")
	ErrShakeNotFound = errors.New("shake not found")
	ErrAxisConflict  = errors.New("cannot identify X, Y and Z subchannels")
)

// Error is a fatal analysis problem tied to one accelerometer channel.
type Error struct {
	Op          string
	ChannelID   int
	ChannelName string
	Value       float64 // the offending computed value, if any
	Constraint  string  // what Value should have satisfied
	Detail      string
	Err         error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: channel %d (%s): %v", e.Op, e.ChannelID, e.ChannelName, e.Err)
	if e.Constraint != "" {
		msg += fmt.Sprintf(": got %g, want %s", e.Value, e.Constraint)
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }
