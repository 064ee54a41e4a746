// Copyright (c) Neurosense Labs.
// Licensed under the MIT License.
package biostream

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/neurosense/biostream/internal"
	"github.com/neurosense/biostream/internal/wallclock"
)

// maxLatencySamples bounds the rolling round-trip window kept for stats.
const maxLatencySamples = 60

type (
	// probeRequest is the outbound liveness probe.
	probeRequest struct {
		Type string `json:"type"`
		ID   string `json:"id"`
		T0   int64  `json:"t0"`
	}

	// probeResponse is the backend's echo. The id must match a probe this
	// client sent; unmatched ids are ignored.
	probeResponse struct {
		Type string `json:"type"`
		ID   string `json:"id"`
	}
)

// probeLoop sends a probe every interval while the connection is up and
// prunes probes that went unanswered past the timeout. Lost probes are
// silently dropped with no latency penalty.
func (c *Client) probeLoop(
	session *internal.Background,
	connDown *internal.Background,
) {
	t := wallclock.Instance.NewTimer(c.options.ProbeInterval)
	defer t.Stop()

	for {
		select {
		case <-session.Done():
			return
		case <-connDown.Done():
			return
		case <-t.C():
		}

		c.sendProbe()
		c.probes.prune(wallclock.Instance.Now(), c.options.ProbeTimeout)
		t.Reset(c.options.ProbeInterval)
	}
}

func (c *Client) sendProbe() {
	if c.State() != Connected {
		return
	}

	id := uuid.NewString()
	now := wallclock.Instance.Now()
	c.probes.add(id, now)

	err := c.Send(probeRequest{Type: "ping", ID: id, T0: now.UnixMilli()})
	if err != nil {
		c.probes.take(id)
		c.log.Log(context.Background(), slog.LevelDebug, "probe send failed",
			slog.String("error", err.Error()),
		)
	}
}

func (c *Client) handlePong(id string) {
	sent, ok := c.probes.take(id)
	if !ok {
		return
	}
	c.latency.record(wallclock.Instance.Now().Sub(sent))
}

// Latency returns the most recent probe round-trip time, or zero if no
// probe has been answered yet.
func (c *Client) Latency() time.Duration {
	return c.latency.lastSample()
}

// LatencyStats returns aggregate round-trip statistics over the rolling
// sample window.
func (c *Client) LatencyStats() LatencySnapshot {
	return c.latency.snapshot()
}

// probeTracker records in-flight probes by id.
type probeTracker struct {
	mu      sync.Mutex
	pending map[string]time.Time
}

func (p *probeTracker) add(id string, at time.Time) {
	p.mu.Lock()
	p.pending[id] = at
	p.mu.Unlock()
}

func (p *probeTracker) take(id string) (time.Time, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	at, ok := p.pending[id]
	if ok {
		delete(p.pending, id)
	}
	return at, ok
}

func (p *probeTracker) prune(now time.Time, timeout time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for id, at := range p.pending {
		if now.Sub(at) > timeout {
			delete(p.pending, id)
		}
	}
}

// LatencySnapshot is an aggregate view of recent probe round trips.
type LatencySnapshot struct {
	Last  time.Duration
	Min   time.Duration
	Max   time.Duration
	Avg   time.Duration
	Count int
}

// latencyStats keeps a rolling window of probe round trips.
type latencyStats struct {
	mu      sync.RWMutex
	samples []time.Duration
	last    time.Duration
}

func (l *latencyStats) record(d time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.samples) >= maxLatencySamples {
		l.samples = l.samples[1:]
	}
	l.samples = append(l.samples, d)
	l.last = d
}

func (l *latencyStats) lastSample() time.Duration {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.last
}

func (l *latencyStats) snapshot() LatencySnapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()

	snap := LatencySnapshot{Last: l.last, Count: len(l.samples)}
	if len(l.samples) == 0 {
		return snap
	}

	var sum time.Duration
	snap.Min = l.samples[0]
	snap.Max = l.samples[0]
	for _, s := range l.samples {
		sum += s
		if s < snap.Min {
			snap.Min = s
		}
		if s > snap.Max {
			snap.Max = s
		}
	}
	snap.Avg = sum / time.Duration(len(l.samples))
	return snap
}
