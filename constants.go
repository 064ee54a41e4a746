// Copyright (c) Neurosense Labs.
// Licensed under the MIT License.
package biostream

import "time"

const (
	// defaultProbeInterval is the spacing of ping probes while connected.
	defaultProbeInterval = time.Second

	// defaultProbeTimeout is how long an unanswered probe is kept before it
	// is treated as lost and silently dropped.
	defaultProbeTimeout = 5 * time.Second

	// defaultReconnectDelay is the fixed delay before an automatic
	// reconnect attempt.
	defaultReconnectDelay = 3 * time.Second

	// defaultMaxReconnectAttempts bounds consecutive automatic reconnects
	// without an intervening successful connection.
	defaultMaxReconnectAttempts = 5
)
