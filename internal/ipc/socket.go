package ipc

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

// magic prefixes every message in both directions.
const magic = "i3-ipc"

const headerLen = len(magic) + 8

// Message types understood by sway and i3.
const (
	msgRunCommand    uint32 = 0
	msgGetWorkspaces uint32 = 1
	msgSubscribe     uint32 = 2
	msgGetOutputs    uint32 = 3
	msgGetTree       uint32 = 4
)

// eventFlag marks a reply as an asynchronous event rather than a response.
const eventFlag uint32 = 1 << 31

var eventNames = map[uint32]string{
	0: "workspace",
	1: "output",
	2: "mode",
	3: "window",
	4: "barconfig_update",
	5: "binding",
	6: "shutdown",
	7: "tick",
}

// SocketPath locates the manager socket from the environment. sway exports
// SWAYSOCK, i3 exports I3SOCK; sway sessions often carry both.
func SocketPath() (string, error) {
	if path := os.Getenv("SWAYSOCK"); path != "" {
		return path, nil
	}
	if path := os.Getenv("I3SOCK"); path != "" {
		return path, nil
	}
	return "", fmt.Errorf("neither SWAYSOCK nor I3SOCK is set")
}

func writeMessage(w io.Writer, msgType uint32, payload []byte) error {
	buf := make([]byte, headerLen+len(payload))
	copy(buf, magic)
	binary.LittleEndian.PutUint32(buf[len(magic):], uint32(len(payload)))
	binary.LittleEndian.PutUint32(buf[len(magic)+4:], msgType)
	copy(buf[headerLen:], payload)
	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	return nil
}

func readMessage(r io.Reader) (uint32, []byte, error) {
	header := make([]byte, headerLen)
	if _, err := io.ReadFull(r, header); err != nil {
		return 0, nil, fmt.Errorf("read header: %w", err)
	}
	if string(header[:len(magic)]) != magic {
		return 0, nil, fmt.Errorf("bad magic %q", header[:len(magic)])
	}
	length := binary.LittleEndian.Uint32(header[len(magic):])
	msgType := binary.LittleEndian.Uint32(header[len(magic)+4:])
	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return 0, nil, fmt.Errorf("read payload: %w", err)
	}
	return msgType, payload, nil
}
