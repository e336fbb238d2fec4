// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package recording

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// fileDoc is the on-disk JSON layout of a recording.
type fileDoc struct {
	TimeUnit float64    `json:"time_unit"`
	Device   DeviceInfo `json:"device"`
	Channels []*Channel `json:"channels"`
}

// Open reads a JSON recording from path.
func Open(path string) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open recording: %w", err)
	}
	defer f.Close()

	ds, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return ds, nil
}

// Decode reads a JSON recording from r.
func Decode(r io.Reader) (*Dataset, error) {
	var doc fileDoc
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode recording: %w", err)
	}
	ds := NewDataset(doc.Device, doc.TimeUnit)
	for _, ch := range doc.Channels {
		if ch == nil {
			continue
		}
		for i, b := range ch.Blocks {
			if b == nil {
				return nil, fmt.Errorf("channel %d: block %d is null", ch.ID, i)
			}
			if b.NumSamples() > 1 && b.End <= b.Start {
				return nil, fmt.Errorf("channel %d: block %d ends (%d) before it starts (%d)", ch.ID, i, b.End, b.Start)
			}
			for j, row := range b.Rows {
				if len(row) != len(ch.Subchannels) {
					return nil, fmt.Errorf("channel %d: block %d sample %d has %d values, want %d",
						ch.ID, i, j, len(row), len(ch.Subchannels))
				}
			}
		}
		ds.AddChannel(ch)
	}
	return ds, nil
}

// Write encodes ds as a JSON recording.
func Write(w io.Writer, ds *Dataset) error {
	doc := fileDoc{TimeUnit: ds.TimeUnit, Device: ds.Device, Channels: ds.Channels()}
	enc := json.NewEncoder(w)
	return enc.Encode(doc)
}

// Save writes ds to path.
func Save(path string, ds *Dataset) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := Write(f, ds); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
