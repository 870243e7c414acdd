package ipc

import (
	"context"
	"encoding/json"
	"fmt"
	"net"

	"github.com/swayback/swayback/internal/util"
)

// Event is one asynchronous manager event. Payload is the raw JSON body;
// consumers decode the fields they care about per kind.
type Event struct {
	Kind    string
	Payload json.RawMessage
}

// Subscribe opens a dedicated event connection and streams events until
// context cancellation. The channel is closed when the stream ends.
func (c *Client) Subscribe(ctx context.Context, logger *util.Logger, kinds ...string) (<-chan Event, error) {
	conn, err := net.Dial("unix", c.path)
	if err != nil {
		return nil, fmt.Errorf("connect event socket: %w", err)
	}
	payload, err := json.Marshal(kinds)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("encode subscription: %w", err)
	}
	if err := writeMessage(conn, msgSubscribe, payload); err != nil {
		conn.Close()
		return nil, err
	}
	replyType, data, err := readMessage(conn)
	if err != nil {
		conn.Close()
		return nil, err
	}
	if replyType != msgSubscribe {
		conn.Close()
		return nil, fmt.Errorf("unexpected subscribe reply type %d", replyType)
	}
	var reply struct {
		Success bool `json:"success"`
	}
	if err := json.Unmarshal(data, &reply); err != nil {
		conn.Close()
		return nil, fmt.Errorf("decode subscribe reply: %w", err)
	}
	if !reply.Success {
		conn.Close()
		return nil, fmt.Errorf("manager rejected subscription %v", kinds)
	}

	events := make(chan Event)
	go func() {
		// Unblocks the read loop on cancellation.
		<-ctx.Done()
		conn.Close()
	}()
	go func() {
		defer close(events)
		for {
			msgType, payload, err := readMessage(conn)
			if err != nil {
				if ctx.Err() == nil {
					logger.Warnf("event stream error: %v", err)
				}
				return
			}
			if msgType&eventFlag == 0 {
				continue
			}
			kind, ok := eventNames[msgType&^eventFlag]
			if !ok {
				continue
			}
			select {
			case events <- Event{Kind: kind, Payload: payload}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return events, nil
}
