package ipc

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
)

// Rect is a pixel rectangle as reported by the manager.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// WindowProperties carries the X11 window attributes i3 reports on views.
type WindowProperties struct {
	Class    string `json:"class"`
	Instance string `json:"instance"`
	Title    string `json:"title"`
}

// Node is one container in the manager's tree. Leaf views carry either
// window_properties.class (i3/X11) or app_id (sway/Wayland).
type Node struct {
	ID               int64             `json:"id"`
	Name             string            `json:"name"`
	Type             string            `json:"type"`
	Layout           string            `json:"layout"`
	Percent          *float64          `json:"percent"`
	Rect             Rect              `json:"rect"`
	WindowProperties *WindowProperties `json:"window_properties"`
	AppID            string            `json:"app_id"`
	Output           string            `json:"output"`
	Focused          bool              `json:"focused"`
	Nodes            []Node            `json:"nodes"`
	FloatingNodes    []Node            `json:"floating_nodes"`
}

// Workspace is one entry from GET_WORKSPACES.
type Workspace struct {
	Num     int    `json:"num"`
	Name    string `json:"name"`
	Visible bool   `json:"visible"`
	Focused bool   `json:"focused"`
	Output  string `json:"output"`
}

// Output is one entry from GET_OUTPUTS.
type Output struct {
	Name             string `json:"name"`
	Active           bool   `json:"active"`
	Primary          bool   `json:"primary"`
	CurrentWorkspace string `json:"current_workspace"`
}

// CommandError reports a RUN_COMMAND reply with success=false.
type CommandError struct {
	Command string
	Message string
}

func (e *CommandError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("command %q failed", e.Command)
	}
	return fmt.Sprintf("command %q failed: %s", e.Command, e.Message)
}

// Client talks the i3 IPC protocol over the manager's unix socket. Each
// request dials its own connection, so a Client is safe for concurrent use.
type Client struct {
	path string
}

// NewClient locates the manager socket from the environment.
func NewClient() (*Client, error) {
	path, err := SocketPath()
	if err != nil {
		return nil, err
	}
	return &Client{path: path}, nil
}

// ClientAt returns a client for an explicit socket path.
func ClientAt(path string) *Client {
	return &Client{path: path}
}

func (c *Client) roundTrip(ctx context.Context, msgType uint32, payload []byte) ([]byte, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", c.path)
	if err != nil {
		return nil, fmt.Errorf("connect manager socket: %w", err)
	}
	defer conn.Close()
	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			return nil, fmt.Errorf("set deadline: %w", err)
		}
	}
	if err := writeMessage(conn, msgType, payload); err != nil {
		return nil, err
	}
	gotType, data, err := readMessage(conn)
	if err != nil {
		return nil, err
	}
	if gotType != msgType {
		return nil, fmt.Errorf("reply type %d does not match request type %d", gotType, msgType)
	}
	return data, nil
}

// Tree returns the full container tree.
func (c *Client) Tree(ctx context.Context) (*Node, error) {
	data, err := c.roundTrip(ctx, msgGetTree, nil)
	if err != nil {
		return nil, err
	}
	var root Node
	if err := json.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("decode tree: %w", err)
	}
	return &root, nil
}

// Workspaces returns all workspaces.
func (c *Client) Workspaces(ctx context.Context) ([]Workspace, error) {
	data, err := c.roundTrip(ctx, msgGetWorkspaces, nil)
	if err != nil {
		return nil, err
	}
	var workspaces []Workspace
	if err := json.Unmarshal(data, &workspaces); err != nil {
		return nil, fmt.Errorf("decode workspaces: %w", err)
	}
	return workspaces, nil
}

// Outputs returns all outputs.
func (c *Client) Outputs(ctx context.Context) ([]Output, error) {
	data, err := c.roundTrip(ctx, msgGetOutputs, nil)
	if err != nil {
		return nil, err
	}
	var outputs []Output
	if err := json.Unmarshal(data, &outputs); err != nil {
		return nil, fmt.Errorf("decode outputs: %w", err)
	}
	return outputs, nil
}

// Command runs a manager command and fails on any non-success result.
func (c *Client) Command(ctx context.Context, command string) error {
	data, err := c.roundTrip(ctx, msgRunCommand, []byte(command))
	if err != nil {
		return err
	}
	var results []struct {
		Success bool   `json:"success"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(data, &results); err != nil {
		return fmt.Errorf("decode command reply: %w", err)
	}
	for _, res := range results {
		if !res.Success {
			return &CommandError{Command: command, Message: res.Error}
		}
	}
	return nil
}

// CommandFor scopes a command to one container by con_id.
func (c *Client) CommandFor(ctx context.Context, conID int64, command string) error {
	return c.Command(ctx, fmt.Sprintf("[con_id=%d] %s", conID, command))
}

// FindByID returns the node with the given con_id, or nil.
func (n *Node) FindByID(id int64) *Node {
	if n.ID == id {
		return n
	}
	for i := range n.Nodes {
		if found := n.Nodes[i].FindByID(id); found != nil {
			return found
		}
	}
	for i := range n.FloatingNodes {
		if found := n.FloatingNodes[i].FindByID(id); found != nil {
			return found
		}
	}
	return nil
}

// FindFocused returns the focused node, or nil.
func (n *Node) FindFocused() *Node {
	if n.Focused {
		return n
	}
	for i := range n.Nodes {
		if found := n.Nodes[i].FindFocused(); found != nil {
			return found
		}
	}
	for i := range n.FloatingNodes {
		if found := n.FloatingNodes[i].FindFocused(); found != nil {
			return found
		}
	}
	return nil
}

// FindWorkspace returns the workspace node with the given name, or nil.
func (n *Node) FindWorkspace(name string) *Node {
	if n.Type == "workspace" && n.Name == name {
		return n
	}
	for i := range n.Nodes {
		if found := n.Nodes[i].FindWorkspace(name); found != nil {
			return found
		}
	}
	return nil
}

// FindParentOf returns the node whose tiling children include id, or nil.
func (n *Node) FindParentOf(id int64) *Node {
	for i := range n.Nodes {
		if n.Nodes[i].ID == id {
			return n
		}
		if found := n.Nodes[i].FindParentOf(id); found != nil {
			return found
		}
	}
	return nil
}

// FocusedWorkspace returns the workspace containing the focused node, or nil.
func (n *Node) FocusedWorkspace() *Node {
	return focusedWorkspace(n, nil)
}

func focusedWorkspace(n, current *Node) *Node {
	if n.Type == "workspace" {
		current = n
	}
	if n.Focused {
		return current
	}
	for i := range n.Nodes {
		if found := focusedWorkspace(&n.Nodes[i], current); found != nil {
			return found
		}
	}
	for i := range n.FloatingNodes {
		if found := focusedWorkspace(&n.FloatingNodes[i], current); found != nil {
			return found
		}
	}
	return nil
}
