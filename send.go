// Copyright (c) Neurosense Labs.
// Licensed under the MIT License.
package biostream

import (
	"encoding/json"

	"github.com/gorilla/websocket"

	"github.com/neurosense/biostream/internal/wallclock"
)

// Command is a fire-and-forget instruction to the acquisition backend. The
// backend offers no response contract for commands.
type Command string

const (
	CommandStartAcquisition Command = "start_acquisition"
	CommandStopAcquisition  Command = "stop_acquisition"
	CommandTest             Command = "test"
)

type commandMessage struct {
	Command   Command `json:"command"`
	Timestamp int64   `json:"timestamp"`
}

// Send serializes v as JSON and transmits it. When the client is not
// connected it returns a SendUnavailableError and drops the payload; it
// never queues, retries, or panics.
func (c *Client) Send(v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return &InvalidArgumentError{
			message: "payload is not serializable",
			wrapped: err,
		}
	}
	return c.sendText(payload)
}

// SendCommand transmits a backend control command stamped with the current
// time.
func (c *Client) SendCommand(cmd Command) error {
	return c.Send(commandMessage{
		Command:   cmd,
		Timestamp: wallclock.Instance.Now().UnixMilli(),
	})
}

// StartAcquisition asks the backend to start streaming.
func (c *Client) StartAcquisition() error {
	return c.SendCommand(CommandStartAcquisition)
}

// StopAcquisition asks the backend to stop streaming.
func (c *Client) StopAcquisition() error {
	return c.SendCommand(CommandStopAcquisition)
}

// TestSignal asks the backend to emit its test waveform.
func (c *Client) TestSignal() error {
	return c.SendCommand(CommandTest)
}

func (c *Client) sendText(payload []byte) error {
	c.mu.Lock()
	state := c.state
	conn := c.conn
	c.mu.Unlock()

	if state != Connected || conn == nil {
		return &SendUnavailableError{State: state}
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		return &ConnectionError{message: "write failed", wrapped: err}
	}
	return nil
}
