// Copyright (c) Neurosense Labs.
// Licensed under the MIT License.
package route_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/neurosense/biostream/frame"
	"github.com/neurosense/biostream/route"
)

func testFrame(source string, channels ...[]float64) *frame.Frame {
	return &frame.Frame{
		Source:         source,
		SamplingRateHz: 500,
		EndTimestampMs: 1_000_000,
		Channels:       channels,
	}
}

func ramp(n int) []float64 {
	samples := make([]float64, n)
	for i := range samples {
		samples[i] = float64(i)
	}
	return samples
}

func keys(batches []route.Batch) []route.Key {
	out := make([]route.Key, len(batches))
	for i, b := range batches {
		out[i] = b.Key
	}
	return out
}

func TestRouteClassification(t *testing.T) {
	tests := []struct {
		name     string
		frame    *frame.Frame
		expected []route.Key
	}{
		{
			"EEG routes per channel regardless of channel count",
			testFrame("EEG", ramp(8), ramp(8)),
			[]route.Key{"0", "1"},
		},
		{
			"untagged at threshold routes per channel",
			testFrame("", ramp(4), ramp(4), ramp(4), ramp(4),
				ramp(4), ramp(4), ramp(4), ramp(4)),
			[]route.Key{"0", "1", "2", "3", "4", "5", "6", "7"},
		},
		{
			"dual-channel EMG routes primary and secondary",
			testFrame("EMG", ramp(4), ramp(4)),
			[]route.Key{route.KeyPrimary, route.KeySecondary},
		},
		{
			"single-channel EMG",
			testFrame("EMG", ramp(4)),
			[]route.Key{route.KeyEMG},
		},
		{
			"EOG takes channel 0 only",
			testFrame("EOG", ramp(4), ramp(4), ramp(4)),
			[]route.Key{route.KeyEOG},
		},
		{
			"untagged dual-channel reads as EOG",
			testFrame("", ramp(4), ramp(4)),
			[]route.Key{route.KeyEOG},
		},
		{
			"untagged single channel reads as EMG",
			testFrame("", ramp(4)),
			[]route.Key{route.KeyEMG},
		},
		{
			"untagged triple channel reads as EMG",
			testFrame("", ramp(4), ramp(4), ramp(4)),
			[]route.Key{route.KeyEMG},
		},
	}

	r := &route.Router{}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			require.Equal(t, test.expected, keys(r.Route(test.frame)))
		})
	}
}

func TestRouteThresholdConfigurable(t *testing.T) {
	r := &route.Router{MultiChannelThreshold: 4}
	batches := r.Route(testFrame("", ramp(4), ramp(4), ramp(4), ramp(4)))
	require.Equal(t, []route.Key{"0", "1", "2", "3"}, keys(batches))
}

func TestRouteEmptyFrames(t *testing.T) {
	r := &route.Router{}

	require.Nil(t, r.Route(nil))
	require.Nil(t, r.Route(testFrame("EEG")))
	require.Nil(t, r.Route(testFrame("EEG", nil, ramp(4))))
}

func TestRouteSkipsEmptyChannelsInMultiChannel(t *testing.T) {
	r := &route.Router{}
	batches := r.Route(testFrame("EEG", ramp(8), nil, ramp(8)))
	require.Equal(t, []route.Key{"0", "2"}, keys(batches))
}

func TestRouteDecimation(t *testing.T) {
	tests := []struct {
		n              int
		expectedStride int
		expectedCount  int
	}{
		{100, 1, 100},  // below the cap, no decimation
		{120, 1, 120},  // exactly the cap
		{1000, 8, 125}, // ceil(1000 / 8)
		{1201, 10, 121},
	}

	r := &route.Router{}
	for _, test := range tests {
		batches := r.Route(testFrame("EMG", ramp(test.n)))
		require.Len(t, batches, 1)
		points := batches[0].Points
		require.Len(t, points, test.expectedCount)

		// Every stride-th sample starting at index 0.
		for i, p := range points {
			require.Equal(t, float64(i*test.expectedStride), p.Value)
		}
	}
}

func TestRouteTimestampFormula(t *testing.T) {
	// n=100, fs=500: sample period is 2ms; the last sample lands exactly on
	// the frame's end timestamp and earlier samples land progressively
	// earlier.
	r := &route.Router{}
	batches := r.Route(testFrame("EMG", ramp(100)))
	require.Len(t, batches, 1)

	points := batches[0].Points
	require.Len(t, points, 100)
	require.Equal(t, int64(999_802), points[0].Time)
	require.Equal(t, int64(999_804), points[1].Time)
	require.Equal(t, int64(1_000_000), points[99].Time)
}

func TestRouteTimestampsNonDecreasing(t *testing.T) {
	r := &route.Router{}
	batches := r.Route(testFrame("EEG", ramp(2048), ramp(2048)))
	for _, b := range batches {
		for i := 1; i < len(b.Points); i++ {
			require.GreaterOrEqual(t, b.Points[i].Time, b.Points[i-1].Time)
		}
	}
}
