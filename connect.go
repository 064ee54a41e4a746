// Copyright (c) Neurosense Labs.
// Licensed under the MIT License.
package biostream

import (
	"context"
	"errors"
	"log/slog"

	"github.com/gorilla/websocket"

	"github.com/neurosense/biostream/internal"
	"github.com/neurosense/biostream/internal/wallclock"
	"github.com/neurosense/biostream/retry"
)

// errDialSuperseded marks a dial that lost the race to a concurrent dial on
// the same session. The winning connection owns the state machine; the loser
// must not disturb it.
var errDialSuperseded = errors.New("dial superseded by a concurrent connection")

// Connect opens the connection to the acquisition backend. It is a no-op if
// the client is already connecting or connected. A manual Connect restarts
// the automatic reconnect budget, including from the Errored state.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.state == Connecting || c.state == Connected {
		c.mu.Unlock()
		return nil
	}
	if c.session == nil {
		c.session = internal.NewBackground(context.Canceled)
	}
	session := c.session
	c.mu.Unlock()

	if err := c.dial(ctx, session); err != nil {
		if errors.Is(err, errDialSuperseded) {
			// A concurrent reconnect won the race; its connection is live
			// and this call has nothing left to do.
			return nil
		}
		c.transition(session, Errored)
		return err
	}
	return nil
}

// Disconnect stops the probe loop, cancels any pending reconnect, and closes
// the transport. The client ends in the Disconnected state; no automatic
// reconnect follows an explicit Disconnect.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	session := c.session
	conn := c.conn
	connDown := c.connDown
	c.session = nil
	c.conn = nil
	c.connDown = nil
	changed := c.setStateLocked(Disconnected)
	c.mu.Unlock()

	// Halt timers before releasing the transport, so a stale reconnect can
	// never revive a manually closed connection.
	if session != nil {
		session.Close()
	}
	if connDown != nil {
		connDown.Close()
	}
	if conn != nil {
		_ = conn.Close()
	}

	if changed {
		c.notifyState(Disconnected)
	}
	c.log.Log(context.Background(), slog.LevelInfo, "disconnected")
	return nil
}

// dial performs a single connection attempt for the given session. On
// success it transitions to Connected, resets the reconnect budget, and
// starts the read and probe loops. On failure the state is left untouched
// for the caller to resolve.
func (c *Client) dial(ctx context.Context, session *internal.Background) error {
	c.mu.Lock()
	if c.session != session || c.conn != nil {
		c.mu.Unlock()
		return errDialSuperseded
	}
	c.mu.Unlock()
	c.transition(session, Connecting)

	conn, err := c.options.ConnectionProvider(ctx)
	if err != nil {
		return err
	}

	c.mu.Lock()
	if c.session != session || c.conn != nil {
		// Disconnect or a competing connect raced the dial; this dial owns
		// no connection and must leave the state machine alone.
		c.mu.Unlock()
		_ = conn.Close()
		return errDialSuperseded
	}
	c.conn = conn
	connDown := internal.NewBackground(context.Canceled)
	c.connDown = connDown
	changed := c.setStateLocked(Connected)
	c.mu.Unlock()

	if changed {
		c.notifyState(Connected)
	}
	c.log.Log(ctx, slog.LevelInfo, "connected",
		slog.String("endpoint", c.options.Endpoint),
	)

	go c.readLoop(session, conn, connDown)
	go c.probeLoop(session, connDown)
	return nil
}

// readLoop pumps inbound messages for one connection. Every message is
// processed on this goroutine in receipt order. When the connection drops
// for any reason other than an explicit Disconnect, the loop hands off to
// the automatic reconnect.
func (c *Client) readLoop(
	session *internal.Background,
	conn *websocket.Conn,
	connDown *internal.Background,
) {
	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			break
		}
		c.handleMessage(payload)
	}

	connDown.Close()

	c.mu.Lock()
	if c.session != session || c.conn != conn {
		// Explicit Disconnect already tore this connection down.
		c.mu.Unlock()
		return
	}
	c.conn = nil
	c.connDown = nil
	changed := c.setStateLocked(Disconnected)
	c.mu.Unlock()
	_ = conn.Close()

	if changed {
		c.notifyState(Disconnected)
	}
	c.log.Log(context.Background(), slog.LevelWarn, "connection lost")

	go c.reconnect(session)
}

// reconnect waits the configured delay, then retries the dial on a fixed
// interval until it succeeds or the attempt budget is exhausted, at which
// point the client parks in the Errored state.
func (c *Client) reconnect(session *internal.Background) {
	ctx, cancel := session.With(context.Background())
	defer cancel()

	select {
	case <-ctx.Done():
		return
	case <-wallclock.Instance.After(c.options.ReconnectDelay):
	}

	policy := &retry.ConstantBackoff{
		MaxAttempts: c.options.MaxReconnectAttempts,
		Interval:    c.options.ReconnectDelay,
		Logger:      c.options.Logger,
	}
	err := policy.Start(ctx, "reconnect",
		func(ctx context.Context) (bool, error) {
			c.mu.Lock()
			stale := c.session != session || c.conn != nil
			c.mu.Unlock()
			if stale {
				// A manual Connect beat the timer; nothing to recover.
				return false, nil
			}
			if err := c.dial(ctx, session); err != nil {
				if errors.Is(err, errDialSuperseded) {
					return false, nil
				}
				return true, err
			}
			return false, nil
		},
	)
	if err == nil || ctx.Err() != nil {
		return
	}

	c.transition(session, Errored)
	c.log.Err(ctx, &ReconnectExhaustedError{
		Attempts: c.options.MaxReconnectAttempts,
	})
}

// transition moves to the given state if the session is still current,
// notifying handlers on change.
func (c *Client) transition(session *internal.Background, s State) {
	c.mu.Lock()
	if c.session != session {
		c.mu.Unlock()
		return
	}
	changed := c.setStateLocked(s)
	c.mu.Unlock()

	if changed {
		c.notifyState(s)
	}
}
