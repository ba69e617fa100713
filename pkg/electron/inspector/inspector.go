// Package inspector evaluates bootstrap source inside a freshly spawned
// process over the Node inspector protocol. Connections are short-lived:
// connect, evaluate one script, dispose.
package inspector

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/odvcencio/filament/pkg/logging"
)

// Client injects code over the inspector endpoint of a debugger port.
type Client struct {
	httpClient *http.Client
	dialer     *websocket.Dialer
	host       string
	logger     *logging.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHost overrides the default loopback host, mainly for tests.
func WithHost(host string) Option {
	return func(c *Client) { c.host = host }
}

// WithLogger routes injector diagnostics to logger.
func WithLogger(logger *logging.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// NewClient creates an injector client.
func NewClient(opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		dialer:     &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		host:       "127.0.0.1",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type target struct {
	Type                 string `json:"type"`
	Title                string `json:"title"`
	URL                  string `json:"url"`
	WebSocketDebuggerURL string `json:"webSocketDebuggerUrl"`
}

type evaluateResponse struct {
	ID     int64 `json:"id"`
	Result struct {
		Result struct {
			Type        string `json:"type"`
			Description string `json:"description"`
		} `json:"result"`
		ExceptionDetails *struct {
			Text      string `json:"text"`
			Exception *struct {
				Description string `json:"description"`
			} `json:"exception"`
		} `json:"exceptionDetails"`
	} `json:"result"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Inject connects to the inspector endpoint at port, evaluates code in the
// target's main execution context, and disposes the connection regardless of
// outcome. Any connection or evaluation failure is returned unchanged; the
// caller treats it as fatal to the open sequence.
func (c *Client) Inject(ctx context.Context, port int, code string) error {
	wsURL, err := c.discoverTarget(ctx, port)
	if err != nil {
		return err
	}

	conn, resp, err := c.dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("inspector: dial %s: %w", wsURL, err)
	}
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetReadDeadline(deadline)
		_ = conn.SetWriteDeadline(deadline)
	}

	const evalID = 1
	req := map[string]any{
		"id":     evalID,
		"method": "Runtime.evaluate",
		"params": map[string]any{
			"expression":            code,
			"includeCommandLineAPI": true,
		},
	}
	if err := conn.WriteJSON(req); err != nil {
		return fmt.Errorf("inspector: send evaluate: %w", err)
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("inspector: read evaluate result: %w", err)
		}
		var msg evaluateResponse
		if err := json.Unmarshal(data, &msg); err != nil {
			return fmt.Errorf("inspector: decode message: %w", err)
		}
		if msg.ID != evalID {
			// Protocol event or unrelated reply; keep waiting.
			continue
		}
		if msg.Error != nil {
			return fmt.Errorf("inspector: evaluate failed [%d]: %s", msg.Error.Code, msg.Error.Message)
		}
		if details := msg.Result.ExceptionDetails; details != nil {
			desc := details.Text
			if details.Exception != nil && details.Exception.Description != "" {
				desc = details.Exception.Description
			}
			return fmt.Errorf("inspector: bootstrap threw: %s", desc)
		}
		c.logger.Debug(logging.CategoryInspector, "inject.done", "bootstrap evaluated", map[string]any{
			"port": port,
		})
		return nil
	}
}

// discoverTarget resolves the debugger WebSocket URL via the inspector's
// /json/list endpoint.
func (c *Client) discoverTarget(ctx context.Context, port int) (string, error) {
	listURL := fmt.Sprintf("http://%s:%d/json/list", c.host, port)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, listURL, nil)
	if err != nil {
		return "", fmt.Errorf("inspector: build list request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("inspector: list targets: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("inspector: list targets: unexpected status %s", resp.Status)
	}

	var targets []target
	if err := json.NewDecoder(resp.Body).Decode(&targets); err != nil {
		return "", fmt.Errorf("inspector: decode target list: %w", err)
	}
	for _, t := range targets {
		if t.WebSocketDebuggerURL != "" {
			return t.WebSocketDebuggerURL, nil
		}
	}
	return "", fmt.Errorf("inspector: no debuggable target on port %d", port)
}
