// Copyright (c) Neurosense Labs.
// Licensed under the MIT License.
package frame

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

// Decode parses one raw text payload into a Frame. receivedAt is the receipt
// time of the message and substitutes for a missing "timestamp" field.
//
// Decode fails when the payload is not valid JSON, when it lacks a "window"
// array, when the first window entry is not itself an array (there is no
// usable sample reference without it), or when the reference channel is
// empty. All failures are DecodeErrors local to this one frame.
func (d *Decoder) Decode(payload []byte, receivedAt time.Time) (*Frame, error) {
	var raw map[string]any
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, &DecodeError{message: "payload is not valid JSON", wrapped: err}
	}

	win, ok := raw["window"].([]any)
	if !ok {
		return nil, &DecodeError{message: `missing or non-array "window" field`}
	}
	if len(win) == 0 {
		return nil, &DecodeError{message: "window has no channels"}
	}

	ref, ok := win[0].([]any)
	if !ok {
		return nil, &DecodeError{message: "first channel is not an array"}
	}
	if len(ref) == 0 {
		return nil, &DecodeError{message: "reference channel is empty"}
	}

	f := &Frame{
		SamplingRateHz: d.samplingRate(raw["fs"]),
		EndTimestampMs: endTimestamp(raw["timestamp"], receivedAt),
		Channels:       make([][]float64, len(win)),
	}

	if src, ok := raw["source"].(string); ok {
		f.Source = strings.ToUpper(src)
	}

	for i, ch := range win {
		samples, ok := ch.([]any)
		if !ok {
			// Preserve channel indices; a malformed channel decodes empty
			// and is skipped downstream.
			f.Channels[i] = []float64{}
			continue
		}
		values := make([]float64, len(samples))
		for j, s := range samples {
			values[j] = coerce(s)
		}
		f.Channels[i] = values
	}

	return f, nil
}

func (d *Decoder) samplingRate(v any) float64 {
	fallback := d.DefaultSamplingRateHz
	if fallback <= 0 {
		fallback = DefaultSamplingRateHz
	}

	fs := coerce(v)
	if fs <= 0 {
		return fallback
	}
	return fs
}

func endTimestamp(v any, receivedAt time.Time) int64 {
	ts := coerce(v)
	if ts <= 0 {
		return receivedAt.UnixMilli()
	}
	return int64(ts)
}

// coerce converts a decoded JSON value to a finite float64. Numeric strings
// parse as their value; everything else, including NaN and infinities,
// becomes 0.
func coerce(v any) float64 {
	var f float64
	switch s := v.(type) {
	case float64:
		f = s
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return 0
		}
		f = parsed
	case bool:
		if s {
			f = 1
		}
	case json.Number:
		parsed, err := s.Float64()
		if err != nil {
			return 0
		}
		f = parsed
	default:
		return 0
	}

	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}
