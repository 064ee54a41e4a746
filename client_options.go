// Copyright (c) Neurosense Labs.
// Licensed under the MIT License.
package biostream

import (
	"crypto/tls"
	"log/slog"
	"time"

	"github.com/neurosense/biostream/frame"
	"github.com/neurosense/biostream/route"
	"github.com/neurosense/biostream/window"
)

// ClientOptions are the resolved options for a streaming client. Zero values
// select the documented defaults.
type ClientOptions struct {
	// Endpoint is the ws:// or wss:// URL of the acquisition backend.
	Endpoint string

	// ConnectionProvider overrides how the transport is opened. When nil, a
	// provider is built from Endpoint and TLSConfig. Primarily for tests.
	ConnectionProvider ConnectionProvider

	// TLSConfig applies to wss:// endpoints.
	TLSConfig *tls.Config

	// DefaultSamplingRateHz substitutes for frames that do not declare a
	// sampling rate. Deployment-dependent (512 and 250 are both in the
	// field); defaults to 512.
	DefaultSamplingRateHz float64

	// MaxPointsPerMessage caps points emitted per frame per channel.
	MaxPointsPerMessage int

	// MaxPointsPerChannel caps buffer length per channel.
	MaxPointsPerChannel int

	// MultiChannelThreshold is the channel count that forces per-channel
	// routing regardless of source tag.
	MultiChannelThreshold int

	// TimeWindow is the buffers' sliding retention horizon.
	TimeWindow time.Duration

	// MaxReconnectAttempts bounds consecutive automatic reconnects.
	MaxReconnectAttempts uint64

	// ReconnectDelay is the fixed delay before an automatic reconnect.
	ReconnectDelay time.Duration

	// ProbeInterval is the spacing of latency probes while connected.
	ProbeInterval time.Duration

	// ProbeTimeout is how long an unanswered probe is kept before being
	// dropped as lost.
	ProbeTimeout time.Duration

	// Logger receives structured logs. A nil logger disables logging.
	Logger *slog.Logger
}

// ClientOption configures a streaming client.
type ClientOption func(*ClientOptions)

// Apply the provided options.
func (o *ClientOptions) Apply(opts []ClientOption, rest ...ClientOption) {
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	for _, opt := range rest {
		if opt != nil {
			opt(o)
		}
	}
}

func (o *ClientOptions) setDefaults() {
	if o.DefaultSamplingRateHz <= 0 {
		o.DefaultSamplingRateHz = frame.DefaultSamplingRateHz
	}
	if o.MaxPointsPerMessage <= 0 {
		o.MaxPointsPerMessage = route.DefaultMaxPointsPerMessage
	}
	if o.MaxPointsPerChannel <= 0 {
		o.MaxPointsPerChannel = window.DefaultMaxPointsPerChannel
	}
	if o.MultiChannelThreshold <= 0 {
		o.MultiChannelThreshold = route.DefaultMultiChannelThreshold
	}
	if o.TimeWindow <= 0 {
		o.TimeWindow = window.DefaultTimeWindow
	}
	if o.MaxReconnectAttempts == 0 {
		o.MaxReconnectAttempts = defaultMaxReconnectAttempts
	}
	if o.ReconnectDelay <= 0 {
		o.ReconnectDelay = defaultReconnectDelay
	}
	if o.ProbeInterval <= 0 {
		o.ProbeInterval = defaultProbeInterval
	}
	if o.ProbeTimeout <= 0 {
		o.ProbeTimeout = defaultProbeTimeout
	}
	if o.ConnectionProvider == nil {
		o.ConnectionProvider = WebSocketConnection(o.Endpoint, o.TLSConfig)
	}
}

// WithConnectionProvider overrides how the transport is opened. Intended for
// injecting a stub transport in tests.
func WithConnectionProvider(provider ConnectionProvider) ClientOption {
	return func(o *ClientOptions) {
		o.ConnectionProvider = provider
	}
}

// WithTLSConfig sets the TLS configuration for wss:// endpoints.
func WithTLSConfig(config *tls.Config) ClientOption {
	return func(o *ClientOptions) {
		o.TLSConfig = config
	}
}

// WithDefaultSamplingRate sets the fallback sampling rate in Hz.
func WithDefaultSamplingRate(hz float64) ClientOption {
	return func(o *ClientOptions) {
		o.DefaultSamplingRateHz = hz
	}
}

// WithMaxPointsPerMessage caps points emitted per frame per channel.
func WithMaxPointsPerMessage(n int) ClientOption {
	return func(o *ClientOptions) {
		o.MaxPointsPerMessage = n
	}
}

// WithMaxPointsPerChannel caps buffer length per channel.
func WithMaxPointsPerChannel(n int) ClientOption {
	return func(o *ClientOptions) {
		o.MaxPointsPerChannel = n
	}
}

// WithMultiChannelThreshold sets the channel count that forces per-channel
// routing.
func WithMultiChannelThreshold(n int) ClientOption {
	return func(o *ClientOptions) {
		o.MultiChannelThreshold = n
	}
}

// WithTimeWindow sets the buffers' sliding retention horizon.
func WithTimeWindow(d time.Duration) ClientOption {
	return func(o *ClientOptions) {
		o.TimeWindow = d
	}
}

// WithMaxReconnectAttempts bounds consecutive automatic reconnects.
func WithMaxReconnectAttempts(n uint64) ClientOption {
	return func(o *ClientOptions) {
		o.MaxReconnectAttempts = n
	}
}

// WithReconnectDelay sets the fixed delay before automatic reconnects.
func WithReconnectDelay(d time.Duration) ClientOption {
	return func(o *ClientOptions) {
		o.ReconnectDelay = d
	}
}

// WithProbeInterval sets the spacing of latency probes.
func WithProbeInterval(d time.Duration) ClientOption {
	return func(o *ClientOptions) {
		o.ProbeInterval = d
	}
}

// WithProbeTimeout sets how long unanswered probes are kept.
func WithProbeTimeout(d time.Duration) ClientOption {
	return func(o *ClientOptions) {
		o.ProbeTimeout = d
	}
}

// WithLogger sets the slog logger for the client.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(o *ClientOptions) {
		o.Logger = logger
	}
}
