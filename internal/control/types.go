package control

import (
	"errors"
	"os"
	"path/filepath"
)

const (
	// SocketFileName is the filename of the control socket within the runtime dir.
	SocketFileName = "control.sock"

	// Action names supported by the control protocol.
	ActionStatus  = "status"
	ActionSave    = "save"
	ActionRestore = "restore"
	ActionReload  = "reload"

	// Response statuses.
	StatusOK    = "ok"
	StatusError = "error"
)

// Request represents a control API request.
type Request struct {
	Action string         `json:"action"`
	Params map[string]any `json:"params,omitempty"`
}

// Response represents a control API response.
type Response struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
	Data   any    `json:"data,omitempty"`
}

// DaemonStatus reports the watch daemon's counters since startup.
type DaemonStatus struct {
	Saves    int `json:"saves"`
	Restores int `json:"restores"`
	Failures int `json:"failures"`
}

// DefaultSocketPath returns the expected location of the swayback control socket.
func DefaultSocketPath() (string, error) {
	if env := os.Getenv("SWAYBACK_CONTROL_SOCKET"); env != "" {
		return env, nil
	}
	runtimeDir := os.Getenv("XDG_RUNTIME_DIR")
	base := runtimeDir
	if base == "" {
		base = os.TempDir()
		if base == "" {
			return "", errors.New("no runtime directory available")
		}
	}
	return filepath.Join(base, "swayback", SocketFileName), nil
}
