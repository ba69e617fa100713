package electron

import (
	"context"
)

// HelperForwarder relays menu and dialog helper RPCs over a session's
// control channel. All side effects happen inside the target process.
type HelperForwarder struct {
	channel ControlChannel
}

// NewHelperForwarder binds a forwarder to a control channel.
func NewHelperForwarder(channel ControlChannel) *HelperForwarder {
	return &HelperForwarder{channel: channel}
}

type menuItemQuery struct {
	MenuItem string `json:"menuItem"`
}

type dialogHandlerArgs struct {
	Handler string `json:"handler"`
	Context any    `json:"context,omitempty"`
}

// GetMainMenuItems returns the application's main menu tree.
func (f *HelperForwarder) GetMainMenuItems(ctx context.Context) ([]MenuItem, error) {
	var items []MenuItem
	if err := f.channel.Call(ctx, "getMainMenuItems", nil, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// GetContextMenuItems returns the currently open context menu tree.
func (f *HelperForwarder) GetContextMenuItems(ctx context.Context) ([]MenuItem, error) {
	var items []MenuItem
	if err := f.channel.Call(ctx, "getContextMenuItems", nil, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// GetMainMenuItem resolves one main menu item by its slash-separated path.
func (f *HelperForwarder) GetMainMenuItem(ctx context.Context, menuItem string) (*MenuItem, error) {
	var item MenuItem
	if err := f.channel.Call(ctx, "getMainMenuItem", menuItemQuery{MenuItem: menuItem}, &item); err != nil {
		return nil, err
	}
	return &item, nil
}

// GetContextMenuItem resolves one context menu item by its path.
func (f *HelperForwarder) GetContextMenuItem(ctx context.Context, menuItem string) (*MenuItem, error) {
	var item MenuItem
	if err := f.channel.Call(ctx, "getContextMenuItem", menuItemQuery{MenuItem: menuItem}, &item); err != nil {
		return nil, err
	}
	return &item, nil
}

// ClickOnMainMenuItem clicks a main menu item inside the target process.
func (f *HelperForwarder) ClickOnMainMenuItem(ctx context.Context, menuItem string) error {
	return f.channel.Call(ctx, "clickOnMainMenuItem", menuItemQuery{MenuItem: menuItem}, nil)
}

// ClickOnContextMenuItem clicks a context menu item inside the target process.
func (f *HelperForwarder) ClickOnContextMenuItem(ctx context.Context, menuItem string) error {
	return f.channel.Call(ctx, "clickOnContextMenuItem", menuItemQuery{MenuItem: menuItem}, nil)
}

// SetElectronDialogHandler registers handler source for native dialogs. The
// handler runs inside the target process with the serialized context value.
func (f *HelperForwarder) SetElectronDialogHandler(ctx context.Context, handler string, handlerContext any) error {
	return f.channel.Call(ctx, "setDialogHandler", dialogHandlerArgs{
		Handler: handler,
		Context: handlerContext,
	}, nil)
}
