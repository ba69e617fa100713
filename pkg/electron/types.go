// Package electron launches and supervises Electron application processes so
// a test runner can drive them like browser tabs. The Provider orchestrates
// port allocation, process spawn, bootstrap injection over the Node inspector
// protocol, a readiness handshake over a private control channel, and a CDP
// automation client, with symmetric teardown on close or handshake failure.
package electron

import (
	"context"
	"time"

	"github.com/odvcencio/filament/pkg/config"
)

// Ports is the triple of ports allocated for one session.
type Ports struct {
	IPC         int
	Debug       int
	RemoteDebug int
}

// InjectingStatus reports whether the bootstrap script reached the expected
// main window URL, and which URLs actually opened when it did not.
type InjectingStatus struct {
	Completed  bool     `json:"completed"`
	OpenedURLs []string `json:"openedUrls,omitempty"`
}

// OpenOptions tunes a single OpenBrowser call.
type OpenOptions struct {
	// NativeAutomation, when non-nil, attaches a native-automation
	// sub-session after the CDP client is initialized.
	NativeAutomation *NativeAutomationOptions
}

// NativeAutomationOptions configures the native-automation sub-session.
type NativeAutomationOptions struct {
	EmulateFocus bool `json:"emulateFocus,omitempty"`
}

// MenuItem describes one entry of the application's main or context menu.
type MenuItem struct {
	Label   string     `json:"label"`
	Path    string     `json:"path,omitempty"`
	Enabled bool       `json:"enabled"`
	Visible bool       `json:"visible"`
	Checked bool       `json:"checked,omitempty"`
	Items   []MenuItem `json:"items,omitempty"`
}

// NativeEventType names a dispatchable native input event.
type NativeEventType string

const (
	EventTypeMouse      NativeEventType = "mouse"
	EventTypeKeyboard   NativeEventType = "keyboard"
	EventTypeInsertText NativeEventType = "insertText"
	EventTypeTouch      NativeEventType = "touch"
	EventTypeDrag       NativeEventType = "drag"
)

// NativeEvent is one native input event forwarded to the CDP Input domain.
type NativeEvent struct {
	Type    NativeEventType `json:"type"`
	Options map[string]any  `json:"options,omitempty"`
}

// SequenceItem is either a timed pause or a dispatchable event inside an
// event sequence.
type SequenceItem interface {
	sequenceItem()
}

// DelayItem suspends sequence execution for Duration before continuing.
type DelayItem struct {
	Duration time.Duration
}

func (DelayItem) sequenceItem() {}

// EventItem dispatches one native event.
type EventItem struct {
	Event NativeEvent
}

func (EventItem) sequenceItem() {}

// ControlChannel is the private per-session channel between the orchestrator
// and the bootstrap code running inside the spawned process.
type ControlChannel interface {
	// Start begins listening for the bootstrap connection.
	Start(ctx context.Context) error
	// Endpoint returns the address the bootstrap script connects back to.
	Endpoint() string
	// Connect completes the handshake with the now-running process.
	Connect(ctx context.Context) error
	// InjectingStatus queries whether the bootstrap reached the main window.
	InjectingStatus(ctx context.Context) (InjectingStatus, error)
	// TerminateProcess asks the in-process bootstrap to exit the application.
	TerminateProcess(ctx context.Context) error
	// Stop shuts the server down and releases the endpoint.
	Stop(ctx context.Context) error
	// Call forwards a named helper RPC to the process.
	Call(ctx context.Context, method string, args any, reply any) error
}

// ProtocolClient is a low-level CDP connection usable for raw method calls.
type ProtocolClient interface {
	Call(ctx context.Context, method string, params any, result any) error
}

// AutomationClient drives a session over the remote-debugging port for its
// steady-state lifetime.
type AutomationClient interface {
	// Init establishes the remote-debugging connection.
	Init(ctx context.Context) error
	// ActiveClient exposes the low-level protocol connection.
	ActiveClient() ProtocolClient
	// NavigateTopFrame navigates the top-level frame to url.
	NavigateTopFrame(ctx context.Context, url string) error
	// DispatchEvent dispatches one native input event.
	DispatchEvent(ctx context.Context, ev NativeEvent) error
	// Close releases the connection.
	Close() error
}

// Injector evaluates bootstrap source in the target process over the Node
// inspector protocol, disposing the connection on every exit path.
type Injector interface {
	Inject(ctx context.Context, port int, code string) error
}

// Launcher spawns the application process with debugger ports bound. It is
// fire-and-forget: it never reports process exit or crash.
type Launcher interface {
	Launch(cfg *config.Resolved, ports Ports) error
}

// BootstrapBuilder generates the bootstrap source injected into the process.
type BootstrapBuilder interface {
	Build(cfg *config.Resolved, pageURL, endpoint string, ports Ports) (string, error)
}

// ChannelFactory builds the control-channel server for one session.
type ChannelFactory func(cfg *config.Resolved) (ControlChannel, error)

// AutomationFactory builds the automation client for a remote-debugging port.
type AutomationFactory func(remoteDebugPort int) (AutomationClient, error)
