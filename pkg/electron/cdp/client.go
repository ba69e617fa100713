// Package cdp attaches to an application's remote-debugging port and drives
// it over the Chrome DevTools Protocol for the session's steady-state
// lifetime: top-frame navigation and native input dispatch.
package cdp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/odvcencio/filament/pkg/electron"
	"github.com/odvcencio/filament/pkg/logging"
)

// inputMethods maps native event types to protocol methods.
var inputMethods = map[electron.NativeEventType]string{
	electron.EventTypeMouse:      "Input.dispatchMouseEvent",
	electron.EventTypeKeyboard:   "Input.dispatchKeyEvent",
	electron.EventTypeInsertText: "Input.insertText",
	electron.EventTypeTouch:      "Input.dispatchTouchEvent",
	electron.EventTypeDrag:       "Input.dispatchDragEvent",
}

// Client is the remote-automation client bound to one session's
// remote-debugging port.
type Client struct {
	port       int
	host       string
	httpClient *http.Client
	dialer     *websocket.Dialer
	logger     *logging.Logger
	conn       *Conn
}

// Option configures a Client.
type Option func(*Client)

// WithHost overrides the default loopback host, mainly for tests.
func WithHost(host string) Option {
	return func(c *Client) { c.host = host }
}

// WithLogger routes client diagnostics to logger.
func WithLogger(logger *logging.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// NewClient creates a client for the given remote-debugging port.
func NewClient(port int, opts ...Option) *Client {
	c := &Client{
		port:       port,
		host:       "127.0.0.1",
		httpClient: &http.Client{Timeout: 10 * time.Second},
		dialer:     &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
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

// Init discovers the page target and establishes the protocol connection.
// This is the point at which the remote-debugging connection actually comes
// up and becomes queryable.
func (c *Client) Init(ctx context.Context) error {
	wsURL, err := c.discoverPage(ctx)
	if err != nil {
		return err
	}
	ws, resp, err := c.dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("cdp: dial %s: %w", wsURL, err)
	}
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	c.conn = newConn(ws)
	c.logger.Debug(logging.CategoryCDP, "client.attached", "automation client attached", map[string]any{
		"port": c.port,
	})
	return nil
}

// ActiveClient returns the low-level protocol connection, or nil before Init.
func (c *Client) ActiveClient() electron.ProtocolClient {
	if c == nil || c.conn == nil {
		return nil
	}
	return c.conn
}

// NavigateTopFrame navigates the top-level frame to url.
func (c *Client) NavigateTopFrame(ctx context.Context, url string) error {
	if c.conn == nil {
		return fmt.Errorf("cdp: client not initialized")
	}
	var result struct {
		ErrorText string `json:"errorText"`
	}
	if err := c.conn.Call(ctx, "Page.navigate", map[string]any{"url": url}, &result); err != nil {
		return err
	}
	if result.ErrorText != "" {
		return fmt.Errorf("cdp: navigate %s: %s", url, result.ErrorText)
	}
	return nil
}

// DispatchEvent dispatches one native input event.
func (c *Client) DispatchEvent(ctx context.Context, ev electron.NativeEvent) error {
	if c.conn == nil {
		return fmt.Errorf("cdp: client not initialized")
	}
	method, ok := inputMethods[ev.Type]
	if !ok {
		return fmt.Errorf("cdp: unsupported native event type %q", ev.Type)
	}
	params := ev.Options
	if params == nil {
		params = map[string]any{}
	}
	return c.conn.Call(ctx, method, params, nil)
}

// Close releases the protocol connection.
func (c *Client) Close() error {
	if c == nil || c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

// discoverPage resolves the page target's WebSocket URL via /json/list.
func (c *Client) discoverPage(ctx context.Context) (string, error) {
	listURL := fmt.Sprintf("http://%s:%d/json/list", c.host, c.port)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, listURL, nil)
	if err != nil {
		return "", fmt.Errorf("cdp: build list request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("cdp: list targets: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("cdp: list targets: unexpected status %s", resp.Status)
	}

	var targets []target
	if err := json.NewDecoder(resp.Body).Decode(&targets); err != nil {
		return "", fmt.Errorf("cdp: decode target list: %w", err)
	}
	var fallback string
	for _, t := range targets {
		if t.WebSocketDebuggerURL == "" {
			continue
		}
		if t.Type == "page" {
			return t.WebSocketDebuggerURL, nil
		}
		if fallback == "" {
			fallback = t.WebSocketDebuggerURL
		}
	}
	if fallback != "" {
		return fallback, nil
	}
	return "", fmt.Errorf("cdp: no debuggable target on port %d", c.port)
}
