package electron

import (
	"github.com/odvcencio/filament/pkg/config"
)

// Session is the live runtime record of one opened browser session. It is
// created only after the readiness handshake succeeds and is mutated exactly
// once afterwards, to attach the native-automation sub-session.
type Session struct {
	ID     string
	Config *config.Resolved
	Ports  Ports

	channel    ControlChannel
	automation AutomationClient
	helpers    *HelperForwarder
	native     *NativeAutomation
}

// RemoteDebugPort returns the CDP port retained for the session lifetime.
func (s *Session) RemoteDebugPort() int {
	return s.Ports.RemoteDebug
}

// Channel returns the session's control channel.
func (s *Session) Channel() ControlChannel {
	return s.channel
}

// Automation returns the session's CDP automation client.
func (s *Session) Automation() AutomationClient {
	return s.automation
}

// Helpers returns the helper forwarder bound to the control channel.
func (s *Session) Helpers() *HelperForwarder {
	return s.helpers
}

// Native returns the native-automation sub-session, or nil when the caller
// did not request one.
func (s *Session) Native() *NativeAutomation {
	return s.native
}
