// Copyright (c) Neurosense Labs.
// Licensed under the MIT License.

// Package window maintains bounded, time-windowed per-channel sample buffers
// for live charting. Each push appends a batch, then trims by a sliding time
// window that follows the most recent sample timestamp (not wall clock) and
// by a hard length cap. Readers always get copied snapshots, so a render
// pass never observes a half-trimmed buffer.
package window

import (
	"sync"
	"time"

	"github.com/neurosense/biostream/internal"
	"github.com/neurosense/biostream/route"
)

const (
	// DefaultTimeWindow is the retention horizon applied to new stores.
	DefaultTimeWindow = 10 * time.Second

	// DefaultMaxPointsPerChannel caps buffer length independently of the
	// time window.
	DefaultMaxPointsPerChannel = 50000
)

// Subscriber is notified after a push has been merged and trimmed, with the
// key that changed. Notifications run on the pushing goroutine.
type Subscriber func(key route.Key)

// Store maps channel keys to windowed buffers. Entries appear lazily on the
// first push for a key and survive until Reset.
type Store struct {
	mu         sync.RWMutex
	buffers    map[route.Key][]route.Point
	timeWindow time.Duration
	maxPoints  int

	subscribers *internal.HandlerList[Subscriber]
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithTimeWindow sets the initial retention horizon. Non-positive values are
// ignored.
func WithTimeWindow(d time.Duration) StoreOption {
	return func(s *Store) {
		if d > 0 {
			s.timeWindow = d
		}
	}
}

// WithMaxPointsPerChannel sets the hard length cap. Non-positive values are
// ignored.
func WithMaxPointsPerChannel(n int) StoreOption {
	return func(s *Store) {
		if n > 0 {
			s.maxPoints = n
		}
	}
}

func NewStore(opts ...StoreOption) *Store {
	s := &Store{
		buffers:     make(map[route.Key][]route.Point),
		timeWindow:  DefaultTimeWindow,
		maxPoints:   DefaultMaxPointsPerChannel,
		subscribers: internal.NewHandlerList[Subscriber](),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Push merges a batch into the buffer for key and re-trims. Points are
// assumed to arrive in non-decreasing time order across pushes; they are
// appended after existing content, never re-sorted.
//
// An empty push for an unknown key is a no-op (no empty buffer appears). An
// empty push for an existing key still re-runs trimming against the current
// content.
func (s *Store) Push(key route.Key, points []route.Point) {
	s.mu.Lock()

	existing, known := s.buffers[key]
	if len(points) == 0 && !known {
		s.mu.Unlock()
		return
	}

	merged := existing
	if len(points) > 0 {
		merged = append(existing, points...)
	}
	s.buffers[key] = s.trim(merged)

	s.mu.Unlock()

	for notify := range s.subscribers.All() {
		notify(key)
	}
}

// trim drops points older than the window behind the final point's time,
// then enforces the length cap by dropping the oldest survivors. Caller
// holds the write lock.
func (s *Store) trim(points []route.Point) []route.Point {
	if len(points) == 0 {
		return points
	}

	cutoff := points[len(points)-1].Time - s.timeWindow.Milliseconds()

	kept := points[:0]
	for _, p := range points {
		if p.Time >= cutoff {
			kept = append(kept, p)
		}
	}

	if len(kept) > s.maxPoints {
		kept = kept[len(kept)-s.maxPoints:]
	}
	return kept
}

// Snapshot returns a copy of the buffer for key, or an empty slice if
// nothing has arrived for it.
func (s *Store) Snapshot(key route.Key) []route.Point {
	s.mu.RLock()
	defer s.mu.RUnlock()

	buf := s.buffers[key]
	out := make([]route.Point, len(buf))
	copy(out, buf)
	return out
}

// SnapshotAll returns copies of every buffer, keyed as stored. Intended for
// overlay consumers that render all channels at once.
func (s *Store) SnapshotAll() map[route.Key][]route.Point {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[route.Key][]route.Point, len(s.buffers))
	for key, buf := range s.buffers {
		cp := make([]route.Point, len(buf))
		copy(cp, buf)
		out[key] = cp
	}
	return out
}

// Keys returns the channel keys that have received data, in no particular
// order.
func (s *Store) Keys() []route.Key {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]route.Key, 0, len(s.buffers))
	for key := range s.buffers {
		keys = append(keys, key)
	}
	return keys
}

// Len returns the current buffer length for key.
func (s *Store) Len(key route.Key) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.buffers[key])
}

// SetTimeWindow changes the retention horizon. It takes effect on the next
// push; an idle buffer is not retroactively re-trimmed. Non-positive values
// are ignored.
func (s *Store) SetTimeWindow(d time.Duration) {
	if d <= 0 {
		return
	}
	s.mu.Lock()
	s.timeWindow = d
	s.mu.Unlock()
}

// TimeWindow returns the current retention horizon.
func (s *Store) TimeWindow() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.timeWindow
}

// Reset drops every buffer. Intended for explicit session resets only;
// buffers are never cleared automatically.
func (s *Store) Reset() {
	s.mu.Lock()
	s.buffers = make(map[route.Key][]route.Point)
	s.mu.Unlock()
}

// Subscribe registers a change notification callback and returns its removal
// function.
func (s *Store) Subscribe(fn Subscriber) (remove func()) {
	return s.subscribers.AppendEntry(fn)
}
