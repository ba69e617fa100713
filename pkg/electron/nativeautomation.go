package electron

import (
	"context"
	"fmt"
)

// NativeAutomation is the per-session sub-session holding the low-level CDP
// connection used for native input dispatch. It is created lazily on request
// and never outlives its parent session.
type NativeAutomation struct {
	sessionID string
	client    ProtocolClient
	opts      NativeAutomationOptions
}

func newNativeAutomation(sessionID string, client ProtocolClient, opts NativeAutomationOptions) *NativeAutomation {
	return &NativeAutomation{sessionID: sessionID, client: client, opts: opts}
}

// Init prepares the target for native input dispatch.
func (n *NativeAutomation) Init(ctx context.Context) error {
	if n.client == nil {
		return fmt.Errorf("session %s: %w", n.sessionID, ErrNoAutomation)
	}
	if err := n.client.Call(ctx, "Page.enable", nil, nil); err != nil {
		return fmt.Errorf("session %s: enable page domain: %w", n.sessionID, err)
	}
	if n.opts.EmulateFocus {
		params := map[string]any{"enabled": true}
		if err := n.client.Call(ctx, "Emulation.setFocusEmulationEnabled", params, nil); err != nil {
			return fmt.Errorf("session %s: enable focus emulation: %w", n.sessionID, err)
		}
	}
	return nil
}

// Client returns the low-level protocol connection.
func (n *NativeAutomation) Client() ProtocolClient {
	return n.client
}
