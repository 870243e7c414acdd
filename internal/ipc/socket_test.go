package ipc

import (
	"bytes"
	"strings"
	"testing"
)

func TestSocketPathPrefersSway(t *testing.T) {
	t.Setenv("SWAYSOCK", "/run/sway.sock")
	t.Setenv("I3SOCK", "/run/i3.sock")

	path, err := SocketPath()
	if err != nil {
		t.Fatalf("SocketPath: %v", err)
	}
	if path != "/run/sway.sock" {
		t.Fatalf("unexpected path %q", path)
	}
}

func TestSocketPathFallsBackToI3(t *testing.T) {
	t.Setenv("SWAYSOCK", "")
	t.Setenv("I3SOCK", "/run/i3.sock")

	path, err := SocketPath()
	if err != nil {
		t.Fatalf("SocketPath: %v", err)
	}
	if path != "/run/i3.sock" {
		t.Fatalf("unexpected path %q", path)
	}
}

func TestSocketPathMissingEnv(t *testing.T) {
	t.Setenv("SWAYSOCK", "")
	t.Setenv("I3SOCK", "")

	if _, err := SocketPath(); err == nil {
		t.Fatal("expected error when no socket env is set")
	}
}

func TestMessageRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	payload := []byte(`{"success":true}`)
	if err := writeMessage(&buf, msgRunCommand, payload); err != nil {
		t.Fatalf("writeMessage: %v", err)
	}

	msgType, got, err := readMessage(&buf)
	if err != nil {
		t.Fatalf("readMessage: %v", err)
	}
	if msgType != msgRunCommand {
		t.Fatalf("message type = %d, want %d", msgType, msgRunCommand)
	}
	if string(got) != string(payload) {
		t.Fatalf("payload = %q, want %q", got, payload)
	}
}

func TestMessageRoundTripEmptyPayload(t *testing.T) {
	var buf bytes.Buffer
	if err := writeMessage(&buf, msgGetTree, nil); err != nil {
		t.Fatalf("writeMessage: %v", err)
	}
	msgType, got, err := readMessage(&buf)
	if err != nil {
		t.Fatalf("readMessage: %v", err)
	}
	if msgType != msgGetTree {
		t.Fatalf("message type = %d, want %d", msgType, msgGetTree)
	}
	if len(got) != 0 {
		t.Fatalf("payload = %q, want empty", got)
	}
}

func TestReadMessageBadMagic(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteString("not-ipc")
	buf.Write(make([]byte, 16))

	_, _, err := readMessage(&buf)
	if err == nil || !strings.Contains(err.Error(), "bad magic") {
		t.Fatalf("expected bad magic error, got %v", err)
	}
}
