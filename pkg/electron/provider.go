package electron

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/odvcencio/filament/pkg/config"
	"github.com/odvcencio/filament/pkg/logging"
	"github.com/odvcencio/filament/pkg/ports"
)

const tracerName = "github.com/odvcencio/filament/pkg/electron"

// BrowserName is the single browser alias this provider exposes.
const BrowserName = "electron"

// Deps are the collaborators a Provider drives. Allocator, Launcher,
// Injector, Bootstrap, NewChannel and NewAutomation are required.
type Deps struct {
	Allocator     ports.Allocator
	Launcher      Launcher
	Injector      Injector
	Bootstrap     BootstrapBuilder
	NewChannel    ChannelFactory
	NewAutomation AutomationFactory
	Logger        *logging.Logger
	Registry      *Registry
}

// Provider orchestrates the open/close session lifecycle and exposes the
// surface the host test runner calls against.
type Provider struct {
	deps     Deps
	registry *Registry
	logger   *logging.Logger
	tracer   trace.Tracer
}

// NewProvider validates the dependency set and builds a provider.
func NewProvider(deps Deps) (*Provider, error) {
	switch {
	case deps.Allocator == nil:
		return nil, fmt.Errorf("electron: port allocator is required")
	case deps.Launcher == nil:
		return nil, fmt.Errorf("electron: launcher is required")
	case deps.Injector == nil:
		return nil, fmt.Errorf("electron: injector is required")
	case deps.Bootstrap == nil:
		return nil, fmt.Errorf("electron: bootstrap builder is required")
	case deps.NewChannel == nil:
		return nil, fmt.Errorf("electron: channel factory is required")
	case deps.NewAutomation == nil:
		return nil, fmt.Errorf("electron: automation factory is required")
	}
	registry := deps.Registry
	if registry == nil {
		registry = NewRegistry()
	}
	return &Provider{
		deps:     deps,
		registry: registry,
		logger:   deps.Logger,
		tracer:   otel.Tracer(tracerName),
	}, nil
}

// Registry exposes the provider's session registry.
func (p *Provider) Registry() *Registry {
	return p.registry
}

// OpenBrowser opens one session: resolve config, start the control channel,
// allocate ports, spawn the process, inject bootstrap, handshake, register,
// attach CDP, and optionally attach native automation. On readiness failure
// the spawned process is terminated and the channel stopped before the error
// is returned; no registry entry survives a failed open.
func (p *Provider) OpenBrowser(ctx context.Context, id, pageURL, mainPath string, opts OpenOptions) (err error) {
	ctx, span := p.tracer.Start(ctx, "electron.OpenBrowser", trace.WithAttributes(
		attribute.String("session.id", id),
		attribute.String("session.page_url", pageURL),
	))
	defer span.End()
	defer func() {
		if err != nil {
			span.RecordError(err)
		}
	}()

	if err = p.registry.Reserve(id); err != nil {
		metricOpenFailures.WithLabelValues("duplicate").Inc()
		return err
	}

	var (
		channel        ControlChannel
		channelStarted bool
		committed      bool
	)
	defer func() {
		if err == nil || committed {
			return
		}
		if channelStarted {
			_ = channel.Stop(context.WithoutCancel(ctx))
		}
		p.registry.Release(id)
	}()

	cfg, err := config.Resolve(id, mainPath)
	if err != nil {
		metricOpenFailures.WithLabelValues("config").Inc()
		return err
	}

	channel, err = p.deps.NewChannel(cfg)
	if err != nil {
		metricOpenFailures.WithLabelValues("control_start").Inc()
		return fmt.Errorf("session %s: create control channel: %w", id, err)
	}
	if err = channel.Start(ctx); err != nil {
		metricOpenFailures.WithLabelValues("control_start").Inc()
		return fmt.Errorf("session %s: start control channel: %w", id, err)
	}
	channelStarted = true

	allocated, err := p.deps.Allocator.Allocate(3)
	if err != nil {
		metricOpenFailures.WithLabelValues("ports").Inc()
		return fmt.Errorf("session %s: allocate ports: %w", id, err)
	}
	portSet := Ports{IPC: allocated[0], Debug: allocated[1], RemoteDebug: allocated[2]}

	if err = p.deps.Launcher.Launch(cfg, portSet); err != nil {
		metricOpenFailures.WithLabelValues("launch").Inc()
		return fmt.Errorf("session %s: launch: %w", id, err)
	}

	code, err := p.deps.Bootstrap.Build(cfg, pageURL, channel.Endpoint(), portSet)
	if err != nil {
		metricOpenFailures.WithLabelValues("bootstrap").Inc()
		return fmt.Errorf("session %s: build bootstrap: %w", id, err)
	}
	if err = p.deps.Injector.Inject(ctx, portSet.Debug, code); err != nil {
		metricOpenFailures.WithLabelValues("inject").Inc()
		return fmt.Errorf("session %s: inject bootstrap: %w", id, err)
	}

	if err = channel.Connect(ctx); err != nil {
		metricOpenFailures.WithLabelValues("connect").Inc()
		return fmt.Errorf("session %s: connect control channel: %w", id, err)
	}

	status, err := channel.InjectingStatus(ctx)
	if err != nil {
		metricOpenFailures.WithLabelValues("status").Inc()
		return fmt.Errorf("session %s: query injecting status: %w", id, err)
	}
	if !status.Completed {
		metricOpenFailures.WithLabelValues("readiness").Inc()
		expected := cfg.MainWindowURL
		if expected == "" {
			expected = pageURL
		}
		teardownCtx := context.WithoutCancel(ctx)
		if terr := channel.TerminateProcess(teardownCtx); terr != nil {
			p.logger.Warn(logging.CategorySession, "teardown.terminate_failed",
				"terminate after readiness failure", map[string]any{
					"session_id": id, "error": terr.Error(),
				})
		}
		_ = channel.Stop(teardownCtx)
		channelStarted = false
		return &ReadinessError{SessionID: id, ExpectedURL: expected, OpenedURLs: status.OpenedURLs}
	}

	sess := &Session{
		ID:      id,
		Config:  cfg,
		Ports:   portSet,
		channel: channel,
		helpers: NewHelperForwarder(channel),
	}
	p.registry.Commit(sess)
	committed = true

	automation, err := p.deps.NewAutomation(portSet.RemoteDebug)
	if err == nil {
		err = automation.Init(ctx)
	}
	if err != nil {
		metricOpenFailures.WithLabelValues("automation").Inc()
		p.teardownRegistered(ctx, sess)
		return fmt.Errorf("session %s: attach automation client: %w", id, err)
	}
	sess.automation = automation

	if opts.NativeAutomation != nil {
		native := newNativeAutomation(id, automation.ActiveClient(), *opts.NativeAutomation)
		if err = native.Init(ctx); err != nil {
			metricOpenFailures.WithLabelValues("native_automation").Inc()
			p.teardownRegistered(ctx, sess)
			return fmt.Errorf("session %s: init native automation: %w", id, err)
		}
		sess.native = native
	}

	metricSessionsOpened.Inc()
	metricSessionsActive.Set(float64(p.registry.Len()))
	p.logger.Info(logging.CategorySession, "session.opened", "session opened", map[string]any{
		"session_id":        id,
		"page_url":          pageURL,
		"remote_debug_port": portSet.RemoteDebug,
		"native_automation": opts.NativeAutomation != nil,
	})
	return nil
}

// teardownRegistered rolls back a session that failed after registration:
// terminate the process, stop the channel, drop the registry entry.
func (p *Provider) teardownRegistered(ctx context.Context, sess *Session) {
	teardownCtx := context.WithoutCancel(ctx)
	if err := sess.channel.TerminateProcess(teardownCtx); err != nil {
		p.logger.Warn(logging.CategorySession, "teardown.terminate_failed",
			"terminate after post-registration failure", map[string]any{
				"session_id": sess.ID, "error": err.Error(),
			})
	}
	_ = sess.channel.Stop(teardownCtx)
	if sess.automation != nil {
		_ = sess.automation.Close()
	}
	p.registry.Remove(sess.ID)
	metricSessionsActive.Set(float64(p.registry.Len()))
}

// CloseBrowser tears a session down: terminate the process over the control
// channel, stop the channel server, remove the registry entry. The server is
// not stopped until termination is acknowledged, so a still-running process
// always has a channel able to signal it.
func (p *Provider) CloseBrowser(ctx context.Context, id string) error {
	ctx, span := p.tracer.Start(ctx, "electron.CloseBrowser", trace.WithAttributes(
		attribute.String("session.id", id),
	))
	defer span.End()

	sess, err := p.registry.Get(id)
	if err != nil {
		span.RecordError(err)
		return err
	}
	if err := sess.channel.TerminateProcess(ctx); err != nil {
		span.RecordError(err)
		return fmt.Errorf("session %s: terminate process: %w", id, err)
	}
	if err := sess.channel.Stop(ctx); err != nil {
		span.RecordError(err)
		return fmt.Errorf("session %s: stop control channel: %w", id, err)
	}
	if sess.automation != nil {
		_ = sess.automation.Close()
	}
	p.registry.Remove(id)
	metricSessionsClosed.Inc()
	metricSessionsActive.Set(float64(p.registry.Len()))
	p.logger.Info(logging.CategorySession, "session.closed", "session closed", map[string]any{
		"session_id": id,
	})
	return nil
}

// IsLocalBrowser reports that sessions always run on the local machine.
func (p *Provider) IsLocalBrowser() bool {
	return true
}

// SupportNativeAutomation reports that native input dispatch is available.
func (p *Provider) SupportNativeAutomation() bool {
	return true
}

// GetBrowserList returns the browser aliases this provider serves.
func (p *Provider) GetBrowserList() []string {
	return []string{BrowserName}
}

// IsValidBrowserName reports whether name is a servable browser alias.
func (p *Provider) IsValidBrowserName(name string) bool {
	return name == BrowserName
}

// GetMainMenuItems returns the main menu tree of the session's application.
func (p *Provider) GetMainMenuItems(ctx context.Context, id string) ([]MenuItem, error) {
	sess, err := p.registry.Get(id)
	if err != nil {
		return nil, err
	}
	return sess.helpers.GetMainMenuItems(ctx)
}

// GetContextMenuItems returns the open context menu tree.
func (p *Provider) GetContextMenuItems(ctx context.Context, id string) ([]MenuItem, error) {
	sess, err := p.registry.Get(id)
	if err != nil {
		return nil, err
	}
	return sess.helpers.GetContextMenuItems(ctx)
}

// GetMainMenuItem resolves one main menu item by path.
func (p *Provider) GetMainMenuItem(ctx context.Context, id, menuItem string) (*MenuItem, error) {
	sess, err := p.registry.Get(id)
	if err != nil {
		return nil, err
	}
	return sess.helpers.GetMainMenuItem(ctx, menuItem)
}

// GetContextMenuItem resolves one context menu item by path.
func (p *Provider) GetContextMenuItem(ctx context.Context, id, menuItem string) (*MenuItem, error) {
	sess, err := p.registry.Get(id)
	if err != nil {
		return nil, err
	}
	return sess.helpers.GetContextMenuItem(ctx, menuItem)
}

// ClickOnMainMenuItem clicks a main menu item inside the target process.
func (p *Provider) ClickOnMainMenuItem(ctx context.Context, id, menuItem string) error {
	sess, err := p.registry.Get(id)
	if err != nil {
		return err
	}
	return sess.helpers.ClickOnMainMenuItem(ctx, menuItem)
}

// ClickOnContextMenuItem clicks a context menu item inside the target process.
func (p *Provider) ClickOnContextMenuItem(ctx context.Context, id, menuItem string) error {
	sess, err := p.registry.Get(id)
	if err != nil {
		return err
	}
	return sess.helpers.ClickOnContextMenuItem(ctx, menuItem)
}

// SetElectronDialogHandler registers a native dialog handler for the session.
func (p *Provider) SetElectronDialogHandler(ctx context.Context, id, handler string, handlerContext any) error {
	sess, err := p.registry.Get(id)
	if err != nil {
		return err
	}
	return sess.helpers.SetElectronDialogHandler(ctx, handler, handlerContext)
}

// OpenFileProtocol navigates the session's top-level frame to url.
func (p *Provider) OpenFileProtocol(ctx context.Context, id, url string) error {
	sess, err := p.registry.Get(id)
	if err != nil {
		return err
	}
	return sess.automation.NavigateTopFrame(ctx, url)
}

// DispatchNativeAutomationEvent dispatches one native input event.
func (p *Provider) DispatchNativeAutomationEvent(ctx context.Context, id string, ev NativeEvent) error {
	sess, err := p.registry.Get(id)
	if err != nil {
		return err
	}
	if err := sess.automation.DispatchEvent(ctx, ev); err != nil {
		return err
	}
	metricNativeEvents.Inc()
	return nil
}

// DispatchNativeAutomationEventSequence runs an ordered sequence of delays
// and events, strictly sequentially. A delay fully elapses before the next
// item runs; the first failure aborts the remainder.
func (p *Provider) DispatchNativeAutomationEventSequence(ctx context.Context, id string, items []SequenceItem) error {
	sess, err := p.registry.Get(id)
	if err != nil {
		return err
	}
	for i, item := range items {
		switch it := item.(type) {
		case DelayItem:
			timer := time.NewTimer(it.Duration)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		case EventItem:
			if err := sess.automation.DispatchEvent(ctx, it.Event); err != nil {
				return fmt.Errorf("session %s: sequence item %d: %w", id, i, err)
			}
			metricNativeEvents.Inc()
		default:
			return fmt.Errorf("session %s: sequence item %d: unsupported item %T", id, i, item)
		}
	}
	return nil
}
