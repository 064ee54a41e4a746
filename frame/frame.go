// Copyright (c) Neurosense Labs.
// Licensed under the MIT License.

// Package frame decodes inbound acquisition frames. A frame is one
// time-aligned batch of multi-channel samples pushed by the backend as a
// JSON text message:
//
//	{ "source": "EMG", "timestamp": 1700000000000, "fs": 512,
//	  "window": [ [0.1, 0.2, ...], [0.3, 0.4, ...] ] }
//
// The backend is permissive about types on the wire, so decoding is
// tolerant: samples may arrive as numbers, numeric strings, or garbage, and
// anything that does not coerce to a finite number becomes 0.
package frame

import "fmt"

// DefaultSamplingRateHz is used when a frame does not declare a usable
// sampling rate and no deployment-specific default was configured.
const DefaultSamplingRateHz = 512

// Frame is one decoded acquisition frame. Channels preserves the wire order;
// EndTimestampMs is the time of the frame's last sample, not its first.
type Frame struct {
	// Source tag, uppercased ("EEG", "EMG", "EOG", or empty/unknown).
	Source string

	// Declared sampling rate in Hz, or the configured default.
	SamplingRateHz float64

	// Epoch milliseconds of the final sample in the frame.
	EndTimestampMs int64

	// Ordered per-channel sample arrays. Values are always finite.
	Channels [][]float64
}

// ChannelCount returns the number of channels declared on the wire,
// including any that decoded as empty.
func (f *Frame) ChannelCount() int {
	return len(f.Channels)
}

// DecodeError indicates a frame payload that could not be normalized. It is
// always local to the one frame; callers log it and drop the payload.
type DecodeError struct {
	message string
	wrapped error
}

func (e *DecodeError) Error() string {
	if e.wrapped != nil {
		return fmt.Sprintf("decode frame: %s: %v", e.message, e.wrapped)
	}
	return "decode frame: " + e.message
}

func (e *DecodeError) Unwrap() error {
	return e.wrapped
}

// Decoder normalizes raw payloads into Frames.
type Decoder struct {
	// DefaultSamplingRateHz substitutes for a missing or non-positive "fs"
	// field. Zero selects DefaultSamplingRateHz.
	DefaultSamplingRateHz float64
}
