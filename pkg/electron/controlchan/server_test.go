package controlchan

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/odvcencio/filament/pkg/config"
	"github.com/odvcencio/filament/pkg/electron"
)

// fakeBootstrap dials the server's socket and answers RPCs like the injected
// bootstrap script would.
type fakeBootstrap struct {
	t      *testing.T
	conn   net.Conn
	status electron.InjectingStatus
	fail   map[string]string // method -> remote error message

	mu      sync.Mutex
	methods []string
}

func (fb *fakeBootstrap) calls() []string {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return append([]string(nil), fb.methods...)
}

func dialBootstrap(t *testing.T, endpoint string, configure ...func(*fakeBootstrap)) *fakeBootstrap {
	t.Helper()
	conn, err := net.DialTimeout("unix", endpoint, 2*time.Second)
	require.NoError(t, err)
	fb := &fakeBootstrap{t: t, conn: conn, status: electron.InjectingStatus{Completed: true}}
	for _, fn := range configure {
		fn(fb)
	}
	t.Cleanup(func() { _ = conn.Close() })
	go fb.serve()
	return fb
}

func (fb *fakeBootstrap) serve() {
	reader := bufio.NewReader(fb.conn)
	for {
		line, err := reader.ReadBytes('\n')
		if err != nil {
			return
		}
		var req struct {
			ID     string `json:"id"`
			Method string `json:"method"`
		}
		if err := json.Unmarshal(line, &req); err != nil {
			return
		}
		fb.mu.Lock()
		fb.methods = append(fb.methods, req.Method)
		fb.mu.Unlock()

		resp := map[string]any{"id": req.ID}
		if msg, ok := fb.fail[req.Method]; ok {
			resp["error"] = map[string]string{"code": "E_REMOTE", "message": msg}
		} else if req.Method == "getInjectingStatus" {
			resp["result"] = fb.status
		} else if req.Method == "getMainMenuItems" {
			resp["result"] = []electron.MenuItem{{Label: "File", Enabled: true, Visible: true}}
		}
		data, _ := json.Marshal(resp)
		data = append(data, '\n')
		if _, err := fb.conn.Write(data); err != nil {
			return
		}
	}
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := &config.Resolved{SessionID: "test-" + t.Name(), AppPath: "/usr/bin/true"}
	srv, err := NewServer(cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Stop(context.Background()) })
	return srv
}

func TestServerHandshakeAndStatus(t *testing.T) {
	srv := newTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, srv.Start(ctx))
	dialBootstrap(t, srv.Endpoint(), func(fb *fakeBootstrap) {
		fb.status = electron.InjectingStatus{Completed: false, OpenedURLs: []string{"http://x/other"}}
	})

	require.NoError(t, srv.Connect(ctx))

	status, err := srv.InjectingStatus(ctx)
	require.NoError(t, err)
	require.False(t, status.Completed)
	require.Equal(t, []string{"http://x/other"}, status.OpenedURLs)
}

func TestServerForwardsHelperCalls(t *testing.T) {
	srv := newTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, srv.Start(ctx))
	dialBootstrap(t, srv.Endpoint())
	require.NoError(t, srv.Connect(ctx))

	var items []electron.MenuItem
	require.NoError(t, srv.Call(ctx, "getMainMenuItems", nil, &items))
	require.Len(t, items, 1)
	require.Equal(t, "File", items[0].Label)
}

func TestServerRelaysRemoteErrors(t *testing.T) {
	srv := newTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, srv.Start(ctx))
	dialBootstrap(t, srv.Endpoint(), func(fb *fakeBootstrap) {
		fb.fail = map[string]string{"clickOnMainMenuItem": "menu item not found"}
	})
	require.NoError(t, srv.Connect(ctx))

	err := srv.Call(ctx, "clickOnMainMenuItem", map[string]string{"menuItem": "File/Quit"}, nil)
	require.Error(t, err)

	var remote *electron.RemoteError
	require.ErrorAs(t, err, &remote)
	require.Equal(t, "E_REMOTE", remote.Code)
	require.Equal(t, "menu item not found", remote.Message)
}

func TestServerCallBeforeConnectFails(t *testing.T) {
	srv := newTestServer(t)
	require.NoError(t, srv.Start(context.Background()))

	err := srv.Call(context.Background(), "terminateProcess", nil, nil)
	require.ErrorIs(t, err, electron.ErrChannelClosed)
}

func TestServerConnectHonorsContext(t *testing.T) {
	srv := newTestServer(t)
	require.NoError(t, srv.Start(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := srv.Connect(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestServerStopIsIdempotent(t *testing.T) {
	srv := newTestServer(t)
	require.NoError(t, srv.Start(context.Background()))
	require.NoError(t, srv.Stop(context.Background()))
	require.NoError(t, srv.Stop(context.Background()))
}

func TestServerTerminateSequence(t *testing.T) {
	srv := newTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, srv.Start(ctx))
	fb := dialBootstrap(t, srv.Endpoint())
	require.NoError(t, srv.Connect(ctx))

	require.NoError(t, srv.TerminateProcess(ctx))
	require.NoError(t, srv.Stop(ctx))
	require.Equal(t, []string{"terminateProcess"}, fb.calls())
}
