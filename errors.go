// Copyright (c) Neurosense Labs.
// Licensed under the MIT License.
package biostream

import "fmt"

// ConnectionError indicates a failure opening or using the WebSocket
// connection to the acquisition backend. It may wrap an underlying error
// using Go standard error wrapping.
type ConnectionError struct {
	wrapped error
	message string
}

func (e *ConnectionError) Error() string {
	if e.wrapped != nil {
		return fmt.Sprintf("%s: %v", e.message, e.wrapped)
	}
	return e.message
}

func (e *ConnectionError) Unwrap() error {
	return e.wrapped
}

// SendUnavailableError is returned when a send is attempted while the client
// is not connected. The payload is dropped; it is never queued or retried.
type SendUnavailableError struct {
	State State
}

func (e *SendUnavailableError) Error() string {
	return fmt.Sprintf("cannot send while the client is %s", e.State)
}

// ReconnectExhaustedError indicates that the client gave up automatic
// reconnection after the configured number of attempts. The client stays in
// the Errored state until a manual Connect.
type ReconnectExhaustedError struct {
	Attempts uint64
}

func (e *ReconnectExhaustedError) Error() string {
	return fmt.Sprintf("gave up reconnecting after %d attempts", e.Attempts)
}

// InvalidArgumentError indicates that the user has provided an invalid value
// for an option. It may wrap an underlying error using Go standard error
// wrapping.
type InvalidArgumentError struct {
	wrapped error
	message string
}

func (e *InvalidArgumentError) Error() string {
	if e.wrapped != nil {
		return fmt.Sprintf("%s: %v", e.message, e.wrapped)
	}
	return e.message
}

func (e *InvalidArgumentError) Unwrap() error {
	return e.wrapped
}
