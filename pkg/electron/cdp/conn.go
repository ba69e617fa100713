package cdp

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// Conn is a low-level Chrome DevTools Protocol connection. Calls are
// serialized; protocol events interleaved with replies are skipped.
type Conn struct {
	ws     *websocket.Conn
	mu     sync.Mutex
	nextID atomic.Int64
}

func newConn(ws *websocket.Conn) *Conn {
	return &Conn{ws: ws}
}

type message struct {
	ID     int64           `json:"id,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *protocolError  `json:"error,omitempty"`
}

type protocolError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Call invokes one protocol method and decodes its result into result when
// non-nil.
func (c *Conn) Call(ctx context.Context, method string, params any, result any) error {
	if c == nil || c.ws == nil {
		return fmt.Errorf("cdp: connection unavailable")
	}
	id := c.nextID.Add(1)

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.applyDeadline(ctx); err != nil {
		return fmt.Errorf("cdp: %s: %w", method, err)
	}
	req := map[string]any{"id": id, "method": method}
	if params != nil {
		req["params"] = params
	}
	if err := c.ws.WriteJSON(req); err != nil {
		return fmt.Errorf("cdp: send %s: %w", method, err)
	}

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			return fmt.Errorf("cdp: read %s reply: %w", method, err)
		}
		var msg message
		if err := json.Unmarshal(data, &msg); err != nil {
			return fmt.Errorf("cdp: decode %s reply: %w", method, err)
		}
		if msg.ID != id {
			continue
		}
		if msg.Error != nil {
			return fmt.Errorf("cdp: %s failed [%d]: %s", method, msg.Error.Code, msg.Error.Message)
		}
		if result != nil && len(msg.Result) > 0 {
			if err := json.Unmarshal(msg.Result, result); err != nil {
				return fmt.Errorf("cdp: decode %s result: %w", method, err)
			}
		}
		return nil
	}
}

func (c *Conn) applyDeadline(ctx context.Context) error {
	if deadline, ok := ctx.Deadline(); ok {
		if err := c.ws.SetReadDeadline(deadline); err != nil {
			return err
		}
		return c.ws.SetWriteDeadline(deadline)
	}
	if err := c.ws.SetReadDeadline(time.Time{}); err != nil {
		return err
	}
	return c.ws.SetWriteDeadline(time.Time{})
}

// Close closes the underlying WebSocket.
func (c *Conn) Close() error {
	if c == nil || c.ws == nil {
		return nil
	}
	return c.ws.Close()
}
