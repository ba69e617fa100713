// Package controlchan implements the private per-session control channel:
// a unix-socket server the injected bootstrap connects back to, carrying the
// readiness handshake, process termination, and helper RPC traffic as
// newline-delimited JSON.
package controlchan

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/odvcencio/filament/pkg/config"
	"github.com/odvcencio/filament/pkg/electron"
	"github.com/odvcencio/filament/pkg/logging"
)

// Server is one session's control-channel endpoint. It accepts exactly one
// bootstrap connection and serializes request/response traffic over it.
type Server struct {
	cfg        *config.Resolved
	logger     *logging.Logger
	socketPath string

	callMu sync.Mutex // one in-flight request at a time

	mu       sync.Mutex
	ln       net.Listener
	conn     net.Conn
	reader   *bufio.Reader
	accepted chan net.Conn
	started  bool
	stopped  bool
}

// NewServer creates a server bound to the session's configuration. The
// socket path is derived from the session ID under the system temp dir.
func NewServer(cfg *config.Resolved, logger *logging.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("controlchan: configuration is required")
	}
	path, err := resolveSocketPath(cfg.SessionID)
	if err != nil {
		return nil, err
	}
	return &Server{
		cfg:        cfg,
		logger:     logger,
		socketPath: path,
		accepted:   make(chan net.Conn, 1),
	}, nil
}

// Endpoint returns the socket path the bootstrap script connects back to.
func (s *Server) Endpoint() string {
	return s.socketPath
}

// Start begins listening for the bootstrap connection.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return fmt.Errorf("controlchan: already started")
	}
	// A stale socket from a crashed prior run would block the bind.
	_ = os.Remove(s.socketPath)

	ln, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("controlchan: listen %s: %w", s.socketPath, err)
	}
	s.ln = ln
	s.started = true
	go s.acceptLoop(ln)

	s.logger.Debug(logging.CategoryControl, "server.started", "control channel listening", map[string]any{
		"session_id": s.cfg.SessionID,
		"endpoint":   s.socketPath,
	})
	return nil
}

func (s *Server) acceptLoop(ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		select {
		case s.accepted <- conn:
		default:
			// Only the first bootstrap connection is honored.
			_ = conn.Close()
		}
	}
}

// Connect completes the handshake by adopting the bootstrap connection.
func (s *Server) Connect(ctx context.Context) error {
	s.mu.Lock()
	if !s.started || s.stopped {
		s.mu.Unlock()
		return electron.ErrChannelClosed
	}
	if s.conn != nil {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	select {
	case <-ctx.Done():
		return fmt.Errorf("controlchan: waiting for bootstrap connection: %w", ctx.Err())
	case conn := <-s.accepted:
		s.mu.Lock()
		s.conn = conn
		s.reader = bufio.NewReader(conn)
		s.mu.Unlock()
		s.logger.Debug(logging.CategoryControl, "server.connected", "bootstrap connected", map[string]any{
			"session_id": s.cfg.SessionID,
		})
		return nil
	}
}

// InjectingStatus queries whether the bootstrap reached the main window.
func (s *Server) InjectingStatus(ctx context.Context) (electron.InjectingStatus, error) {
	var status electron.InjectingStatus
	if err := s.Call(ctx, "getInjectingStatus", nil, &status); err != nil {
		return electron.InjectingStatus{}, err
	}
	return status, nil
}

// TerminateProcess asks the bootstrap to exit the application process.
func (s *Server) TerminateProcess(ctx context.Context) error {
	return s.Call(ctx, "terminateProcess", nil, nil)
}

// Stop closes the connection and the listener and removes the socket file.
// It is safe to call more than once.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil
	}
	s.stopped = true
	if s.conn != nil {
		_ = s.conn.Close()
		s.conn = nil
	}
	if s.ln != nil {
		_ = s.ln.Close()
		s.ln = nil
	}
	_ = os.Remove(s.socketPath)
	s.logger.Debug(logging.CategoryControl, "server.stopped", "control channel stopped", map[string]any{
		"session_id": s.cfg.SessionID,
	})
	return nil
}

type request struct {
	ID     string `json:"id"`
	Method string `json:"method"`
	Args   any    `json:"args,omitempty"`
}

type response struct {
	ID     string          `json:"id"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *remoteError    `json:"error,omitempty"`
}

type remoteError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Call sends one named RPC to the bootstrap and decodes the reply into
// reply, when non-nil. Remote failures come back as *electron.RemoteError.
func (s *Server) Call(ctx context.Context, method string, args any, reply any) error {
	s.callMu.Lock()
	defer s.callMu.Unlock()

	s.mu.Lock()
	conn, reader := s.conn, s.reader
	s.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("controlchan: %s: %w", method, electron.ErrChannelClosed)
	}

	if err := applyDeadline(conn, ctx); err != nil {
		return fmt.Errorf("controlchan: %s: %w", method, err)
	}

	req := request{ID: uuid.NewString(), Method: method, Args: args}
	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("controlchan: marshal %s: %w", method, err)
	}
	data = append(data, '\n')
	if _, err := conn.Write(data); err != nil {
		return fmt.Errorf("controlchan: send %s: %w", method, err)
	}

	for {
		line, err := reader.ReadBytes('\n')
		if err != nil {
			return fmt.Errorf("controlchan: read %s reply: %w", method, err)
		}
		var resp response
		if err := json.Unmarshal(line, &resp); err != nil {
			return fmt.Errorf("controlchan: decode %s reply: %w", method, err)
		}
		if resp.ID != req.ID {
			// Unsolicited event from the bootstrap; skip it.
			continue
		}
		if resp.Error != nil {
			return electron.NewRemoteError(resp.Error.Code, resp.Error.Message)
		}
		if reply != nil && len(resp.Result) > 0 {
			if err := json.Unmarshal(resp.Result, reply); err != nil {
				return fmt.Errorf("controlchan: decode %s result: %w", method, err)
			}
		}
		return nil
	}
}

func applyDeadline(conn net.Conn, ctx context.Context) error {
	if deadline, ok := ctx.Deadline(); ok {
		return conn.SetDeadline(deadline)
	}
	return conn.SetDeadline(time.Time{})
}

func resolveSocketPath(sessionID string) (string, error) {
	dir := filepath.Join(os.TempDir(), "filament")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("controlchan: create socket dir: %w", err)
	}
	return filepath.Join(dir, fmt.Sprintf("%s.sock", sanitizeSessionID(sessionID))), nil
}

func sanitizeSessionID(sessionID string) string {
	out := strings.Builder{}
	for _, r := range sessionID {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			out.WriteRune(r)
		case r == '-' || r == '_':
			out.WriteRune(r)
		default:
			out.WriteRune('_')
		}
	}
	if out.Len() == 0 {
		return "session"
	}
	return out.String()
}
