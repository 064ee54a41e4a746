// Copyright (c) Neurosense Labs.
// Licensed under the MIT License.
package biostream

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
)

// ConnectionProvider is a function that returns a WebSocket connection to
// the acquisition backend that is ready to read from and write to. The
// client serializes its own writes; the provider does not need to return a
// concurrency-safe connection.
type ConnectionProvider func(context.Context) (*websocket.Conn, error)

// WebSocketConnection is a ConnectionProvider that dials a ws:// or wss://
// endpoint. tlsConfig applies to wss endpoints only and may be nil.
func WebSocketConnection(
	endpoint string,
	tlsConfig *tls.Config,
) ConnectionProvider {
	return func(ctx context.Context) (*websocket.Conn, error) {
		u, err := url.Parse(endpoint)
		if err != nil {
			return nil, &ConnectionError{
				message: "invalid endpoint URL",
				wrapped: err,
			}
		}
		switch u.Scheme {
		case "ws", "wss":
		default:
			return nil, &ConnectionError{
				message: fmt.Sprintf(
					"unsupported endpoint scheme %q", u.Scheme,
				),
			}
		}

		d := websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 45 * time.Second,
			TLSClientConfig:  tlsConfig,
		}
		conn, resp, err := d.DialContext(ctx, endpoint, nil)
		if err != nil {
			if resp != nil && resp.Body != nil {
				_ = resp.Body.Close()
			}
			return nil, &ConnectionError{
				message: "error opening WebSocket connection",
				wrapped: err,
			}
		}
		return conn, nil
	}
}
