// Copyright (c) Neurosense Labs.
// Licensed under the MIT License.
package biostream

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sosodev/duration"
)

// ClientConfigFromEnv parses a client configuration from well-known
// environment variables. Duration-valued settings use ISO 8601 (e.g. PT10S).
// Note that this will only return an error if a variable parses incorrectly;
// it will not return an error if required parameters are missing, to allow
// optional parameters to be specified from environment independently.
func ClientConfigFromEnv() (string, []ClientOption, error) {
	var endpoint string
	var opts []ClientOption
	tlsb := tlsConfigBuilder{}

	for _, env := range os.Environ() {
		idx := strings.IndexByte(env, '=')
		key := env[:idx]
		val := env[idx+1:]
		switch key {
		case "BIOSTREAM_ENDPOINT":
			endpoint = val

		case "BIOSTREAM_DEFAULT_SAMPLING_RATE":
			hz, err := strconv.ParseFloat(val, 64)
			if err != nil {
				return "", nil, &InvalidArgumentError{
					message: "could not parse default sampling rate",
					wrapped: err,
				}
			}
			opts = append(opts, WithDefaultSamplingRate(hz))

		case "BIOSTREAM_MAX_POINTS_PER_MESSAGE":
			n, err := strconv.Atoi(val)
			if err != nil {
				return "", nil, &InvalidArgumentError{
					message: "could not parse max points per message",
					wrapped: err,
				}
			}
			opts = append(opts, WithMaxPointsPerMessage(n))

		case "BIOSTREAM_MAX_POINTS_PER_CHANNEL":
			n, err := strconv.Atoi(val)
			if err != nil {
				return "", nil, &InvalidArgumentError{
					message: "could not parse max points per channel",
					wrapped: err,
				}
			}
			opts = append(opts, WithMaxPointsPerChannel(n))

		case "BIOSTREAM_MULTI_CHANNEL_THRESHOLD":
			n, err := strconv.Atoi(val)
			if err != nil {
				return "", nil, &InvalidArgumentError{
					message: "could not parse multi-channel threshold",
					wrapped: err,
				}
			}
			opts = append(opts, WithMultiChannelThreshold(n))

		case "BIOSTREAM_MAX_RECONNECT_ATTEMPTS":
			n, err := strconv.ParseUint(val, 10, 64)
			if err != nil {
				return "", nil, &InvalidArgumentError{
					message: "could not parse max reconnect attempts",
					wrapped: err,
				}
			}
			opts = append(opts, WithMaxReconnectAttempts(n))

		case "BIOSTREAM_TIME_WINDOW":
			d, err := parseEnvDuration("time window", val)
			if err != nil {
				return "", nil, err
			}
			opts = append(opts, WithTimeWindow(d))

		case "BIOSTREAM_RECONNECT_DELAY":
			d, err := parseEnvDuration("reconnect delay", val)
			if err != nil {
				return "", nil, err
			}
			opts = append(opts, WithReconnectDelay(d))

		case "BIOSTREAM_PROBE_INTERVAL":
			d, err := parseEnvDuration("probe interval", val)
			if err != nil {
				return "", nil, err
			}
			opts = append(opts, WithProbeInterval(d))

		case "BIOSTREAM_PROBE_TIMEOUT":
			d, err := parseEnvDuration("probe timeout", val)
			if err != nil {
				return "", nil, err
			}
			opts = append(opts, WithProbeTimeout(d))

		case "BIOSTREAM_TLS_CA_FILE":
			tlsb.caFile = val

		case "BIOSTREAM_TLS_CERT_FILE":
			tlsb.certFile = val

		case "BIOSTREAM_TLS_KEY_FILE":
			tlsb.keyFile = val

		case "BIOSTREAM_TLS_KEY_PASSWORD_FILE":
			tlsb.passFile = val
		}
	}

	if !tlsb.empty() {
		config, err := tlsb.build()
		if err != nil {
			return "", nil, &InvalidArgumentError{
				message: "could not build TLS configuration",
				wrapped: err,
			}
		}
		opts = append(opts, WithTLSConfig(config))
	}

	return endpoint, opts, nil
}

// NewClientFromEnv constructs a client from environment configuration.
// Explicit options override the environment. BIOSTREAM_ENDPOINT is required.
func NewClientFromEnv(opts ...ClientOption) (*Client, error) {
	endpoint, envOpts, err := ClientConfigFromEnv()
	if err != nil {
		return nil, err
	}
	if endpoint == "" {
		return nil, &InvalidArgumentError{
			message: "BIOSTREAM_ENDPOINT is not set",
		}
	}
	return NewClient(endpoint, append(envOpts, opts...)...), nil
}

func parseEnvDuration(name, val string) (time.Duration, error) {
	d, err := duration.Parse(val)
	if err != nil {
		return 0, &InvalidArgumentError{
			message: "could not parse " + name,
			wrapped: err,
		}
	}
	return d.ToTimeDuration(), nil
}
