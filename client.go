// Copyright (c) Neurosense Labs.
// Licensed under the MIT License.

// Package biostream implements a streaming client for browser-grade
// biosignal dashboards: it owns one WebSocket connection to an acquisition
// backend, keeps it alive with bounded fixed-delay reconnects and ping/pong
// latency probes, and feeds every decoded frame through the channel router
// into windowed per-channel buffers that rendering consumers snapshot.
package biostream

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/neurosense/biostream/frame"
	"github.com/neurosense/biostream/internal"
	"github.com/neurosense/biostream/route"
	"github.com/neurosense/biostream/window"
)

// State is the connection state of the client.
type State byte

const (
	// Disconnected means no transport is open and no connect is in flight.
	// The client returns here on explicit Disconnect and between automatic
	// reconnect attempts.
	Disconnected State = iota

	// Connecting means a transport dial is in flight.
	Connecting

	// Connected means the transport is open and frames are flowing.
	Connected

	// Errored means the transport failed and the automatic reconnect budget
	// is exhausted. Terminal until a manual Connect.
	Errored
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Errored:
		return "errored"
	default:
		return "unknown"
	}
}

type (
	// FrameHandler receives every successfully decoded frame, after it has
	// been routed into the buffer store.
	FrameHandler func(*frame.Frame)

	// StateHandler receives connection state transitions.
	StateHandler func(State)
)

// Client is the streaming connection manager. Exactly one transport handle
// is active at a time; all ingestion (decode, route, buffer) happens on the
// connection's read goroutine, in receipt order.
type Client struct {
	options ClientOptions

	decoder *frame.Decoder
	router  *route.Router
	store   *window.Store

	frameHandlers *internal.HandlerList[FrameHandler]
	stateHandlers *internal.HandlerList[StateHandler]

	// mu guards the connection state machine.
	mu       sync.Mutex
	state    State
	conn     *websocket.Conn
	session  *internal.Background
	connDown *internal.Background

	// writeMu serializes writes to the socket; gorilla connections do not
	// support concurrent writers.
	writeMu sync.Mutex

	probes  probeTracker
	latency latencyStats

	messageCount atomic.Int64
	decodeErrors atomic.Int64

	lastMu      sync.Mutex
	lastFrame   *frame.Frame
	lastFrameAt time.Time

	sessionID string

	log logger
}

// NewClient constructs a streaming client for the given ws:// or wss://
// endpoint. The client starts in the Disconnected state; call Connect.
func NewClient(endpoint string, opts ...ClientOption) *Client {
	c := &Client{
		frameHandlers: internal.NewHandlerList[FrameHandler](),
		stateHandlers: internal.NewHandlerList[StateHandler](),
		sessionID:     uuid.NewString(),
	}
	c.options.Endpoint = endpoint
	c.options.Apply(opts)
	c.options.setDefaults()

	c.decoder = &frame.Decoder{
		DefaultSamplingRateHz: c.options.DefaultSamplingRateHz,
	}
	c.router = &route.Router{
		MaxPointsPerMessage:   c.options.MaxPointsPerMessage,
		MultiChannelThreshold: c.options.MultiChannelThreshold,
	}
	c.store = window.NewStore(
		window.WithTimeWindow(c.options.TimeWindow),
		window.WithMaxPointsPerChannel(c.options.MaxPointsPerChannel),
	)
	c.probes.pending = make(map[string]time.Time)
	c.log = newLogger(c.options.Logger)

	return c
}

// ID returns the client session id.
func (c *Client) ID() string {
	return c.sessionID
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Store exposes the windowed buffer store that rendering consumers read.
func (c *Client) Store() *window.Store {
	return c.store
}

// MessageCount returns the number of data frames accepted since the client
// was created. Probe responses and undecodable payloads are not counted.
func (c *Client) MessageCount() int64 {
	return c.messageCount.Load()
}

// DecodeErrorCount returns the number of inbound payloads dropped because
// they could not be decoded.
func (c *Client) DecodeErrorCount() int64 {
	return c.decodeErrors.Load()
}

// LastFrame returns the most recently accepted frame and its receipt time,
// or nil if none has arrived.
func (c *Client) LastFrame() (*frame.Frame, time.Time) {
	c.lastMu.Lock()
	defer c.lastMu.Unlock()
	return c.lastFrame, c.lastFrameAt
}

// RegisterFrameHandler adds a callback for decoded frames and returns its
// removal function. Handlers run on the read goroutine; keep them short.
func (c *Client) RegisterFrameHandler(h FrameHandler) (remove func()) {
	return c.frameHandlers.AppendEntry(h)
}

// RegisterStateHandler adds a callback for connection state transitions and
// returns its removal function.
func (c *Client) RegisterStateHandler(h StateHandler) (remove func()) {
	return c.stateHandlers.AppendEntry(h)
}

// setStateLocked records a state transition under c.mu and reports whether
// the state changed. Callers notify after releasing the lock.
func (c *Client) setStateLocked(s State) bool {
	if c.state == s {
		return false
	}
	c.state = s
	return true
}

func (c *Client) notifyState(s State) {
	for h := range c.stateHandlers.All() {
		h(s)
	}
}
