// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package control

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/finchvox/finchvox/lib/codec"
)

const (
	dialTimeout = 5 * time.Second

	// A pass can finalize many sessions, each with an audio encode, so
	// the client waits much longer than the server's own I/O limits.
	responseReadTimeout = 10 * time.Minute

	maxResponseSize = 16 * 1024 * 1024
)

// ErrNotRunning is wrapped by Call when nothing accepts connections
// on the socket.
var ErrNotRunning = errors.New("finchvox is not running")

// Error is returned by Call when the server answers ok=false.
type Error struct {
	Action  string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("control action %q failed: %s", e.Action, e.Message)
}

// Client sends one request per connection to a control socket.
type Client struct {
	socketPath string
}

func NewClient(socketPath string) *Client {
	return &Client{socketPath: socketPath}
}

// Call sends action with fields and decodes the response data into
// result when both are non-nil. fields must not contain "action".
func (c *Client) Call(ctx context.Context, action string, fields map[string]any, result any) error {
	request := make(map[string]any, len(fields)+1)
	for key, value := range fields {
		request[key] = value
	}
	request["action"] = action

	response, err := c.send(ctx, request)
	if err != nil {
		return fmt.Errorf("calling %q on %s: %w", action, c.socketPath, err)
	}
	if !response.OK {
		return &Error{Action: action, Message: response.Error}
	}
	if result != nil && len(response.Data) > 0 {
		if err := codec.Unmarshal(response.Data, result); err != nil {
			notation, diagErr := codec.Diagnose(response.Data)
			if diagErr != nil {
				notation = "<malformed>"
			}
			return fmt.Errorf("decoding response data for %q (%s): %w", action, notation, err)
		}
	}
	return nil
}

func (c *Client) send(ctx context.Context, request any) (*Response, error) {
	dialer := net.Dialer{Timeout: dialTimeout}
	conn, err := dialer.DialContext(ctx, "unix", c.socketPath)
	if err != nil {
		return nil, fmt.Errorf("connecting: %w: %w", ErrNotRunning, err)
	}
	defer conn.Close()

	if err := codec.NewEncoder(conn).Encode(request); err != nil {
		return nil, fmt.Errorf("writing request: %w", err)
	}
	if unixConn, ok := conn.(*net.UnixConn); ok {
		unixConn.CloseWrite()
	}

	deadline := time.Now().Add(responseReadTimeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	conn.SetReadDeadline(deadline)

	var response Response
	if err := codec.NewDecoder(io.LimitReader(conn, maxResponseSize)).Decode(&response); err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	return &response, nil
}

// Status fetches the scheduler state.
func (c *Client) Status(ctx context.Context) (StatusResponse, error) {
	var status StatusResponse
	err := c.Call(ctx, ActionStatus, nil, &status)
	return status, err
}

// Pending lists eligible sessions, or every session when all is set.
func (c *Client) Pending(ctx context.Context, all bool) (PendingResponse, error) {
	var pending PendingResponse
	var fields map[string]any
	if all {
		fields = map[string]any{"all": true}
	}
	err := c.Call(ctx, ActionPending, fields, &pending)
	return pending, err
}

// RunPass triggers one finalization pass and returns how many sessions
// it finalized.
func (c *Client) RunPass(ctx context.Context) (int, error) {
	var pass PassResponse
	err := c.Call(ctx, ActionPass, nil, &pass)
	return pass.Finalized, err
}

// Finalize finalizes sessionID regardless of its activity.
func (c *Client) Finalize(ctx context.Context, sessionID string) (bool, error) {
	var result FinalizeResponse
	err := c.Call(ctx, ActionFinalize, map[string]any{"session_id": sessionID}, &result)
	return result.Finalized, err
}
