package electron

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrUnavailable     = errors.New("electron provider unavailable")
	ErrSessionExists   = errors.New("session already open")
	ErrSessionNotFound = errors.New("session not found")
	ErrChannelClosed   = errors.New("control channel closed")
	ErrNoAutomation    = errors.New("native automation not attached")
)

// ReadinessError reports that the bootstrap never loaded the expected main
// window URL before the readiness gate.
type ReadinessError struct {
	SessionID   string
	ExpectedURL string
	OpenedURLs  []string
}

func (e *ReadinessError) Error() string {
	opened := "none"
	if len(e.OpenedURLs) > 0 {
		opened = strings.Join(e.OpenedURLs, ", ")
	}
	return fmt.Sprintf("session %s: main window %q was never loaded (opened: %s)",
		e.SessionID, e.ExpectedURL, opened)
}

// RemoteError is an error reported by the code running inside the target
// process, relayed verbatim over the control channel.
type RemoteError struct {
	Code    string
	Message string
	Err     error
}

func (e *RemoteError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("remote error [%s]: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("remote error [%s]: %s", e.Code, e.Message)
}

func (e *RemoteError) Unwrap() error {
	return e.Err
}

// NewRemoteError creates a RemoteError.
func NewRemoteError(code, message string) *RemoteError {
	return &RemoteError{Code: code, Message: message}
}
