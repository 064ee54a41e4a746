// Copyright (c) Neurosense Labs.
// Licensed under the MIT License.
package biostream_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/neurosense/biostream"
	"github.com/neurosense/biostream/frame"
	"github.com/neurosense/biostream/route"
)

// testBackend is an in-process acquisition backend: an httptest server that
// upgrades each request and hands the connection to the per-test handler.
type testBackend struct {
	url      string
	server   *httptest.Server
	connects atomic.Int64
}

func newTestBackend(
	t *testing.T,
	handler func(connect int64, conn *websocket.Conn),
) *testBackend {
	t.Helper()

	b := &testBackend{}
	upgrader := websocket.Upgrader{}
	b.server = httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			conn, err := upgrader.Upgrade(w, r, nil)
			if err != nil {
				return
			}
			handler(b.connects.Add(1), conn)
		},
	))
	t.Cleanup(b.server.Close)
	b.url = "ws" + strings.TrimPrefix(b.server.URL, "http")
	return b
}

// echoPongs answers every ping with a matching pong and discards everything
// else.
func echoPongs(conn *websocket.Conn) {
	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var msg map[string]any
		if json.Unmarshal(payload, &msg) != nil || msg["type"] != "ping" {
			continue
		}
		resp, _ := json.Marshal(map[string]any{
			"type": "pong",
			"id":   msg["id"],
		})
		if conn.WriteMessage(websocket.TextMessage, resp) != nil {
			return
		}
	}
}

func sendText(t *testing.T, conn *websocket.Conn, payload string) {
	t.Helper()
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(payload)))
}

// countingProvider wraps the default provider to observe dial attempts.
func countingProvider(
	url string,
	dials *atomic.Int64,
) biostream.ConnectionProvider {
	base := biostream.WebSocketConnection(url, nil)
	return func(ctx context.Context) (*websocket.Conn, error) {
		dials.Add(1)
		return base(ctx)
	}
}

func waitFrame(t *testing.T, frames <-chan *frame.Frame) *frame.Frame {
	t.Helper()
	select {
	case f := <-frames:
		return f
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a frame")
		return nil
	}
}

func TestIngestPipeline(t *testing.T) {
	backend := newTestBackend(t, func(_ int64, conn *websocket.Conn) {
		sendText(t, conn,
			`{"source":"emg","timestamp":1000000,"fs":500,"window":[[1,2,3,4]]}`)
		echoPongs(conn)
	})

	c := biostream.NewClient(backend.url)
	frames := make(chan *frame.Frame, 1)
	remove := c.RegisterFrameHandler(func(f *frame.Frame) {
		select {
		case frames <- f:
		default:
		}
	})
	defer remove()

	require.NoError(t, c.Connect(context.Background()))
	defer c.Disconnect()

	f := waitFrame(t, frames)
	require.Equal(t, "EMG", f.Source)
	require.Equal(t, 500.0, f.SamplingRateHz)

	snap := c.Store().Snapshot(route.KeyEMG)
	require.Len(t, snap, 4)
	require.Equal(t, int64(1_000_000), snap[3].Time)
	require.Equal(t, 4.0, snap[3].Value)

	require.Equal(t, int64(1), c.MessageCount())

	last, at := c.LastFrame()
	require.Same(t, f, last)
	require.False(t, at.IsZero())
}

func TestBadFrameDoesNotBreakPipeline(t *testing.T) {
	backend := newTestBackend(t, func(_ int64, conn *websocket.Conn) {
		sendText(t, conn, `this is not a frame`)
		sendText(t, conn, `{"source":"eog","window":[[1,2]]}`)
		echoPongs(conn)
	})

	c := biostream.NewClient(backend.url)
	frames := make(chan *frame.Frame, 1)
	c.RegisterFrameHandler(func(f *frame.Frame) {
		select {
		case frames <- f:
		default:
		}
	})

	require.NoError(t, c.Connect(context.Background()))
	defer c.Disconnect()

	f := waitFrame(t, frames)
	require.Equal(t, "EOG", f.Source)
	require.Equal(t, int64(1), c.DecodeErrorCount())
	require.Equal(t, int64(1), c.MessageCount())
	require.Equal(t, biostream.Connected, c.State())
}

func TestProbeLatency(t *testing.T) {
	backend := newTestBackend(t, func(_ int64, conn *websocket.Conn) {
		echoPongs(conn)
	})

	c := biostream.NewClient(backend.url,
		biostream.WithProbeInterval(5*time.Millisecond),
	)
	require.NoError(t, c.Connect(context.Background()))
	defer c.Disconnect()

	require.Eventually(t, func() bool {
		return c.Latency() > 0
	}, 2*time.Second, 5*time.Millisecond)

	stats := c.LatencyStats()
	require.GreaterOrEqual(t, stats.Count, 1)
	require.LessOrEqual(t, stats.Min, stats.Max)
	require.Greater(t, stats.Last, time.Duration(0))
}

func TestSendWhileDisconnected(t *testing.T) {
	c := biostream.NewClient("ws://127.0.0.1:1/stream")

	err := c.Send(map[string]any{"command": "test"})
	var unavailable *biostream.SendUnavailableError
	require.ErrorAs(t, err, &unavailable)
	require.Equal(t, biostream.Disconnected, unavailable.State)

	require.Error(t, c.StartAcquisition())
}

func TestCommands(t *testing.T) {
	received := make(chan []byte, 8)
	backend := newTestBackend(t, func(_ int64, conn *websocket.Conn) {
		for {
			_, payload, err := conn.ReadMessage()
			if err != nil {
				return
			}
			received <- payload
		}
	})

	c := biostream.NewClient(backend.url,
		biostream.WithProbeInterval(time.Hour),
	)
	require.NoError(t, c.Connect(context.Background()))
	defer c.Disconnect()

	require.NoError(t, c.StartAcquisition())

	select {
	case payload := <-received:
		var cmd struct {
			Command   string `json:"command"`
			Timestamp int64  `json:"timestamp"`
		}
		require.NoError(t, json.Unmarshal(payload, &cmd))
		require.Equal(t, "start_acquisition", cmd.Command)
		require.Greater(t, cmd.Timestamp, int64(0))
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the command")
	}
}

func TestConnectIsIdempotent(t *testing.T) {
	backend := newTestBackend(t, func(_ int64, conn *websocket.Conn) {
		echoPongs(conn)
	})

	var dials atomic.Int64
	c := biostream.NewClient(backend.url,
		biostream.WithConnectionProvider(countingProvider(backend.url, &dials)),
	)
	require.NoError(t, c.Connect(context.Background()))
	defer c.Disconnect()

	require.NoError(t, c.Connect(context.Background()))
	require.NoError(t, c.Connect(context.Background()))
	require.Equal(t, int64(1), dials.Load())
	require.Equal(t, biostream.Connected, c.State())
}

func TestAutoReconnect(t *testing.T) {
	backend := newTestBackend(t, func(connect int64, conn *websocket.Conn) {
		if connect == 1 {
			// Drop the first connection immediately to trigger recovery.
			conn.Close()
			return
		}
		echoPongs(conn)
	})

	var mu sync.Mutex
	var states []biostream.State
	c := biostream.NewClient(backend.url,
		biostream.WithReconnectDelay(5*time.Millisecond),
	)
	c.RegisterStateHandler(func(s biostream.State) {
		mu.Lock()
		states = append(states, s)
		mu.Unlock()
	})

	require.NoError(t, c.Connect(context.Background()))
	defer c.Disconnect()

	require.Eventually(t, func() bool {
		return backend.connects.Load() == 2 && c.State() == biostream.Connected
	}, 2*time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []biostream.State{
		biostream.Connecting,
		biostream.Connected,
		biostream.Disconnected,
		biostream.Connecting,
		biostream.Connected,
	}, states)
}

func TestConnectRacingReconnectStaysConnected(t *testing.T) {
	backend := newTestBackend(t, func(connect int64, conn *websocket.Conn) {
		if connect == 1 {
			conn.Close()
			return
		}
		echoPongs(conn)
	})

	// Hold the manual Connect's dial open until the automatic reconnect has
	// installed its own connection, so the manual dial loses the race.
	gate := make(chan struct{})
	var dials atomic.Int64
	base := biostream.WebSocketConnection(backend.url, nil)
	provider := func(ctx context.Context) (*websocket.Conn, error) {
		n := dials.Add(1)
		conn, err := base(ctx)
		if n == 2 {
			<-gate
		}
		return conn, err
	}

	c := biostream.NewClient(backend.url,
		biostream.WithConnectionProvider(provider),
		biostream.WithReconnectDelay(50*time.Millisecond),
	)
	require.NoError(t, c.Connect(context.Background()))
	defer c.Disconnect()

	require.Eventually(t, func() bool {
		return c.State() == biostream.Disconnected
	}, 2*time.Second, time.Millisecond)

	done := make(chan error, 1)
	go func() { done <- c.Connect(context.Background()) }()

	// The manual dial is parked behind the gate; the pending reconnect fires
	// and wins.
	require.Eventually(t, func() bool {
		return dials.Load() == 3 && c.State() == biostream.Connected
	}, 2*time.Second, time.Millisecond)
	close(gate)

	require.NoError(t, <-done)
	require.Equal(t, biostream.Connected, c.State())
	require.NoError(t, c.TestSignal())
}

func TestReconnectExhausted(t *testing.T) {
	conns := make(chan *websocket.Conn, 1)
	backend := newTestBackend(t, func(_ int64, conn *websocket.Conn) {
		conns <- conn
		echoPongs(conn)
	})

	var dials atomic.Int64
	c := biostream.NewClient(backend.url,
		biostream.WithConnectionProvider(countingProvider(backend.url, &dials)),
		biostream.WithMaxReconnectAttempts(3),
		biostream.WithReconnectDelay(2*time.Millisecond),
	)
	require.NoError(t, c.Connect(context.Background()))
	defer c.Disconnect()

	// Kill the backend; every reconnect attempt now fails. The upgraded
	// connection is hijacked, so httptest no longer tracks it and it must
	// be closed directly.
	backend.server.CloseClientConnections()
	backend.server.Close()
	require.NoError(t, (<-conns).Close())

	require.Eventually(t, func() bool {
		return c.State() == biostream.Errored
	}, 2*time.Second, 2*time.Millisecond)

	// Initial connect plus the exhausted attempt budget, then nothing.
	require.Equal(t, int64(4), dials.Load())
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, int64(4), dials.Load())
	require.Equal(t, biostream.Errored, c.State())
}

func TestDisconnectCancelsPendingReconnect(t *testing.T) {
	backend := newTestBackend(t, func(_ int64, conn *websocket.Conn) {
		conn.Close()
	})

	var dials atomic.Int64
	c := biostream.NewClient(backend.url,
		biostream.WithConnectionProvider(countingProvider(backend.url, &dials)),
		biostream.WithReconnectDelay(100*time.Millisecond),
	)
	require.NoError(t, c.Connect(context.Background()))

	// Wait for the close to be noticed, then disconnect while the reconnect
	// timer is pending.
	require.Eventually(t, func() bool {
		return c.State() == biostream.Disconnected
	}, 2*time.Second, time.Millisecond)
	require.NoError(t, c.Disconnect())

	time.Sleep(250 * time.Millisecond)
	require.Equal(t, int64(1), dials.Load())
	require.Equal(t, biostream.Disconnected, c.State())
}

func TestDisconnectWithoutConnect(t *testing.T) {
	c := biostream.NewClient("ws://127.0.0.1:1/stream")
	require.NoError(t, c.Disconnect())
	require.Equal(t, biostream.Disconnected, c.State())
}

func TestConnectFailureIsErrored(t *testing.T) {
	// Nothing listens here.
	c := biostream.NewClient("ws://127.0.0.1:1/stream")

	err := c.Connect(context.Background())
	var connErr *biostream.ConnectionError
	require.ErrorAs(t, err, &connErr)
	require.Equal(t, biostream.Errored, c.State())
}

func TestMultiChannelOverlaySnapshot(t *testing.T) {
	backend := newTestBackend(t, func(_ int64, conn *websocket.Conn) {
		sendText(t, conn,
			`{"source":"eeg","timestamp":1000000,"fs":512,"window":[[1,2],[3,4],[5,6]]}`)
		echoPongs(conn)
	})

	c := biostream.NewClient(backend.url)
	frames := make(chan *frame.Frame, 1)
	c.RegisterFrameHandler(func(f *frame.Frame) {
		select {
		case frames <- f:
		default:
		}
	})

	require.NoError(t, c.Connect(context.Background()))
	defer c.Disconnect()

	waitFrame(t, frames)
	all := c.Store().SnapshotAll()
	require.Len(t, all, 3)
	require.Len(t, all[route.Index(0)], 2)
	require.Equal(t, 6.0, all[route.Index(2)][1].Value)
}
