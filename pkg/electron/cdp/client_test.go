package cdp

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/odvcencio/filament/pkg/electron"
)

// fakeEndpoint emulates a remote-debugging endpoint with one page target.
type fakeEndpoint struct {
	srv  *httptest.Server
	port int

	mu      sync.Mutex
	methods []string

	navigateError string
	failMethod    string
}

func newFakeEndpoint(t *testing.T) *fakeEndpoint {
	t.Helper()
	f := &fakeEndpoint{}
	upgrader := websocket.Upgrader{}

	mux := http.NewServeMux()
	mux.HandleFunc("/json/list", func(w http.ResponseWriter, r *http.Request) {
		wsURL := "ws://" + r.Host + "/devtools/page/1"
		_ = json.NewEncoder(w).Encode([]map[string]string{
			{"type": "background_page", "webSocketDebuggerUrl": "ws://" + r.Host + "/devtools/bg/1"},
			{"type": "page", "webSocketDebuggerUrl": wsURL},
		})
	})
	mux.HandleFunc("/devtools/page/1", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			var req struct {
				ID     int64          `json:"id"`
				Method string         `json:"method"`
				Params map[string]any `json:"params"`
			}
			if err := conn.ReadJSON(&req); err != nil {
				return
			}
			f.mu.Lock()
			f.methods = append(f.methods, req.Method)
			failMethod, navErr := f.failMethod, f.navigateError
			f.mu.Unlock()

			// Interleave an event before every reply to exercise demuxing.
			_ = conn.WriteJSON(map[string]any{"method": "Page.frameNavigated", "params": map[string]any{}})

			resp := map[string]any{"id": req.ID}
			switch {
			case req.Method == failMethod:
				resp["error"] = map[string]any{"code": -32000, "message": "dispatch rejected"}
			case req.Method == "Page.navigate" && navErr != "":
				resp["result"] = map[string]any{"errorText": navErr}
			default:
				resp["result"] = map[string]any{}
			}
			if err := conn.WriteJSON(resp); err != nil {
				return
			}
		}
	})

	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	f.port = f.srv.Listener.Addr().(*net.TCPAddr).Port
	return f
}

func (f *fakeEndpoint) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.methods...)
}

func (f *fakeEndpoint) host(t *testing.T) string {
	t.Helper()
	h, _, err := net.SplitHostPort(strings.TrimPrefix(f.srv.URL, "http://"))
	require.NoError(t, err)
	return h
}

func newTestClient(t *testing.T, f *fakeEndpoint) *Client {
	t.Helper()
	client := NewClient(f.port, WithHost(f.host(t)))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, client.Init(ctx))
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestClientInitPicksPageTarget(t *testing.T) {
	fake := newFakeEndpoint(t)
	client := newTestClient(t, fake)
	require.NotNil(t, client.ActiveClient())
}

func TestClientNavigateTopFrame(t *testing.T) {
	fake := newFakeEndpoint(t)
	client := newTestClient(t, fake)

	require.NoError(t, client.NavigateTopFrame(context.Background(), "file:///tmp/page.html"))
	require.Equal(t, []string{"Page.navigate"}, fake.calls())
}

func TestClientNavigateReportsErrorText(t *testing.T) {
	fake := newFakeEndpoint(t)
	fake.navigateError = "net::ERR_FILE_NOT_FOUND"
	client := newTestClient(t, fake)

	err := client.NavigateTopFrame(context.Background(), "file:///missing")
	require.Error(t, err)
	require.Contains(t, err.Error(), "net::ERR_FILE_NOT_FOUND")
}

func TestClientDispatchEventMapsToInputDomain(t *testing.T) {
	fake := newFakeEndpoint(t)
	client := newTestClient(t, fake)
	ctx := context.Background()

	require.NoError(t, client.DispatchEvent(ctx, electron.NativeEvent{
		Type:    electron.EventTypeMouse,
		Options: map[string]any{"type": "mousePressed", "x": 10, "y": 20, "button": "left"},
	}))
	require.NoError(t, client.DispatchEvent(ctx, electron.NativeEvent{
		Type:    electron.EventTypeInsertText,
		Options: map[string]any{"text": "hello"},
	}))

	require.Equal(t, []string{"Input.dispatchMouseEvent", "Input.insertText"}, fake.calls())
}

func TestClientDispatchEventRejectsUnknownType(t *testing.T) {
	fake := newFakeEndpoint(t)
	client := newTestClient(t, fake)

	err := client.DispatchEvent(context.Background(), electron.NativeEvent{Type: "gamepad"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "unsupported native event type")
	require.Empty(t, fake.calls())
}

func TestClientDispatchEventPropagatesProtocolError(t *testing.T) {
	fake := newFakeEndpoint(t)
	fake.failMethod = "Input.dispatchKeyEvent"
	client := newTestClient(t, fake)

	err := client.DispatchEvent(context.Background(), electron.NativeEvent{
		Type:    electron.EventTypeKeyboard,
		Options: map[string]any{"type": "keyDown", "key": "a"},
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "dispatch rejected")
}

func TestClientCallsFailBeforeInit(t *testing.T) {
	client := NewClient(1)
	require.Nil(t, client.ActiveClient())
	require.Error(t, client.NavigateTopFrame(context.Background(), "about:blank"))
	require.Error(t, client.DispatchEvent(context.Background(), electron.NativeEvent{Type: electron.EventTypeMouse}))
}
