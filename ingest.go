// Copyright (c) Neurosense Labs.
// Licensed under the MIT License.
package biostream

import (
	"context"
	"encoding/json"

	"github.com/neurosense/biostream/internal/wallclock"
)

// handleMessage processes one inbound text message: probe responses feed the
// latency tracker, everything else goes down the frame pipeline. A payload
// that fails to decode is logged and dropped; it never affects the
// connection or the buffers of other channels.
func (c *Client) handleMessage(payload []byte) {
	var probe probeResponse
	if err := json.Unmarshal(payload, &probe); err == nil && probe.Type == "pong" {
		c.handlePong(probe.ID)
		return
	}

	now := wallclock.Instance.Now()
	f, err := c.decoder.Decode(payload, now)
	if err != nil {
		c.decodeErrors.Add(1)
		c.log.Err(context.Background(), err)
		return
	}

	c.messageCount.Add(1)
	c.lastMu.Lock()
	c.lastFrame = f
	c.lastFrameAt = now
	c.lastMu.Unlock()

	c.log.Frame(context.Background(), "frame received", f)

	for _, b := range c.router.Route(f) {
		c.store.Push(b.Key, b.Points)
	}
	for h := range c.frameHandlers.All() {
		h(f)
	}
}
