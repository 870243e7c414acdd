// Package client talks to a running swayback watch daemon over its
// control socket.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/swayback/swayback/internal/control"
)

const (
	// defaultTimeout is used when the caller does not provide a context deadline.
	defaultTimeout = 3 * time.Second
)

// Client talks to the running swayback daemon over its control socket.
type Client struct {
	socketPath string
}

// DaemonStatus reports the daemon's counters since startup.
type DaemonStatus = control.DaemonStatus

// New creates a client that connects to the provided socket path. When path is
// empty, the default runtime path is used.
func New(path string) (*Client, error) {
	if path == "" {
		var err error
		path, err = control.DefaultSocketPath()
		if err != nil {
			return nil, err
		}
	}
	return &Client{socketPath: path}, nil
}

// Status retrieves the daemon's save/restore counters.
func (c *Client) Status(ctx context.Context) (DaemonStatus, error) {
	var status DaemonStatus
	if err := c.do(ctx, control.Request{Action: control.ActionStatus}, &status); err != nil {
		return DaemonStatus{}, err
	}
	return status, nil
}

// Save asks the daemon to snapshot a workspace. An empty name means the
// focused workspace.
func (c *Client) Save(ctx context.Context, workspace string) error {
	return c.do(ctx, c.workspaceRequest(control.ActionSave, workspace), nil)
}

// Restore asks the daemon to restore a workspace's stored arrangement. An
// empty name means the focused workspace.
func (c *Client) Restore(ctx context.Context, workspace string) error {
	return c.do(ctx, c.workspaceRequest(control.ActionRestore, workspace), nil)
}

// Reload asks the daemon to reload its configuration.
func (c *Client) Reload(ctx context.Context) error {
	return c.do(ctx, control.Request{Action: control.ActionReload}, nil)
}

func (c *Client) workspaceRequest(action, workspace string) control.Request {
	req := control.Request{Action: action}
	if workspace != "" {
		req.Params = map[string]any{"workspace": workspace}
	}
	return req
}

func (c *Client) do(ctx context.Context, req control.Request, out any) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, defaultTimeout)
		defer cancel()
	}
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", c.socketPath)
	if err != nil {
		return fmt.Errorf("dial control socket: %w", err)
	}
	defer conn.Close()
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	if err := json.NewEncoder(conn).Encode(req); err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	var resp control.Response
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if resp.Status != control.StatusOK {
		if resp.Error == "" {
			resp.Error = "unknown control error"
		}
		return errors.New(resp.Error)
	}
	if out == nil || resp.Data == nil {
		return nil
	}
	data, err := json.Marshal(resp.Data)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	return nil
}
