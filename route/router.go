// Copyright (c) Neurosense Labs.
// Licensed under the MIT License.

// Package route classifies decoded frames into per-channel point batches
// ready for buffering: it decides which logical channel keys a frame feeds,
// thins the samples with stride decimation, and assigns each kept sample a
// timestamp anchored on the frame's end timestamp.
package route

import (
	"math"
	"strconv"

	"github.com/neurosense/biostream/frame"
)

// Key identifies a logical channel buffer: a stringified channel index for
// multi-channel sources, or one of the fixed names below.
type Key string

const (
	// KeyPrimary holds channel 0 of a dual-channel EMG frame.
	KeyPrimary Key = "primary"

	// KeySecondary holds channel 1 of a dual-channel EMG frame.
	KeySecondary Key = "secondary"

	// KeyEOG holds single-channel EOG data.
	KeyEOG Key = "eog"

	// KeyEMG holds single-channel EMG data.
	KeyEMG Key = "emg"
)

// Index returns the key for a multi-channel source's channel index.
func Index(i int) Key {
	return Key(strconv.Itoa(i))
}

// Point is one buffered sample. Value is always finite.
type Point struct {
	// Time is epoch milliseconds.
	Time int64

	Value float64
}

// Batch is an ordered run of decimated, timestamped points bound for one
// channel buffer.
type Batch struct {
	Key    Key
	Points []Point
}

const (
	// DefaultMaxPointsPerMessage caps the points emitted per frame per
	// channel before decimation kicks in.
	DefaultMaxPointsPerMessage = 120

	// DefaultMultiChannelThreshold is the channel count at or above which an
	// untagged frame is routed per-channel. Deployment-dependent; some
	// installations run headsets as low as 4 channels.
	DefaultMultiChannelThreshold = 8
)

// Router turns decoded frames into keyed point batches.
type Router struct {
	// MaxPointsPerMessage bounds points emitted per frame; zero selects
	// DefaultMaxPointsPerMessage.
	MaxPointsPerMessage int

	// MultiChannelThreshold is the channel count that forces per-channel
	// routing regardless of source tag; zero selects
	// DefaultMultiChannelThreshold.
	MultiChannelThreshold int
}

// Route produces the point batches for one frame, already decimated and
// timestamped. A frame with no channels or an empty reference channel
// produces no batches.
//
// Classification priority:
//  1. EEG source, or channel count at/above the multi-channel threshold:
//     one batch per non-empty channel, keyed by index.
//  2. EMG source with exactly two channels: "primary" and "secondary".
//  3. Otherwise channel 0 only: "eog" for EOG, "emg" for EMG, and for
//     untagged sources a heuristic — two declared channels reads as an EOG
//     montage, anything else as EMG. Downstream consumers depend on these
//     exact thresholds; do not "fix" them.
func (r *Router) Route(f *frame.Frame) []Batch {
	if f == nil || len(f.Channels) == 0 {
		return nil
	}

	ref := f.Channels[0]
	if len(ref) == 0 {
		return nil
	}

	maxPoints := r.MaxPointsPerMessage
	if maxPoints <= 0 {
		maxPoints = DefaultMaxPointsPerMessage
	}
	threshold := r.MultiChannelThreshold
	if threshold <= 0 {
		threshold = DefaultMultiChannelThreshold
	}

	stride := len(ref) / maxPoints
	if stride < 1 {
		stride = 1
	}

	ts := timestamper{
		endMs:     f.EndTimestampMs,
		periodMs:  1000 / f.SamplingRateHz,
		lastIndex: len(ref) - 1,
	}

	switch {
	case f.Source == "EEG" || len(f.Channels) >= threshold:
		batches := make([]Batch, 0, len(f.Channels))
		for i, ch := range f.Channels {
			if len(ch) == 0 {
				continue
			}
			batches = append(batches, Batch{
				Key:    Index(i),
				Points: decimate(ch, stride, ts),
			})
		}
		return batches

	case f.Source == "EMG" && len(f.Channels) == 2:
		return []Batch{
			{Key: KeyPrimary, Points: decimate(f.Channels[0], stride, ts)},
			{Key: KeySecondary, Points: decimate(f.Channels[1], stride, ts)},
		}

	default:
		key := singleChannelKey(f.Source, len(f.Channels))
		return []Batch{{Key: key, Points: decimate(ref, stride, ts)}}
	}
}

func singleChannelKey(source string, channelCount int) Key {
	switch source {
	case "EOG":
		return KeyEOG
	case "EMG":
		return KeyEMG
	}
	// Untagged source; fall back on channel-count heuristics.
	if channelCount == 2 {
		return KeyEOG
	}
	return KeyEMG
}

// decimate keeps every stride-th sample starting at index 0 and assigns
// timestamps from the shared reference timeline.
func decimate(samples []float64, stride int, ts timestamper) []Point {
	points := make([]Point, 0, (len(samples)+stride-1)/stride)
	for i := 0; i < len(samples); i += stride {
		points = append(points, Point{Time: ts.at(i), Value: samples[i]})
	}
	return points
}

// timestamper places sample i of the reference channel at
// endMs + round((i - lastIndex) * periodMs), so the final reference sample
// lands exactly on the frame's declared end timestamp.
type timestamper struct {
	endMs     int64
	periodMs  float64
	lastIndex int
}

func (t timestamper) at(i int) int64 {
	return t.endMs + int64(math.Round(float64(i-t.lastIndex)*t.periodMs))
}
