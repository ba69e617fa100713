// Command filament opens a supervised Electron application session and holds
// it until interrupted, mirroring what a hosting test runner does around a
// test pass. Useful for smoke-testing an application's launch wiring.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/odvcencio/filament/pkg/config"
	"github.com/odvcencio/filament/pkg/electron"
	"github.com/odvcencio/filament/pkg/electron/cdp"
	"github.com/odvcencio/filament/pkg/electron/controlchan"
	"github.com/odvcencio/filament/pkg/electron/inspector"
	"github.com/odvcencio/filament/pkg/logging"
	"github.com/odvcencio/filament/pkg/observability"
	"github.com/odvcencio/filament/pkg/ports"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "filament: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		appPath     = flag.String("app", "", "application entrypoint or bundle path (required)")
		pageURL     = flag.String("url", "", "page URL to load in the main window (required)")
		sessionID   = flag.String("id", "filament-cli", "session identifier")
		logDir      = flag.String("log-dir", defaultLogDir(), "diagnostics log directory")
		verbose     = flag.Bool("v", false, "log debug events, including process output")
		native      = flag.Bool("native-automation", false, "attach the native-automation sub-session")
		trace       = flag.Bool("trace", false, "export traces to stdout")
		metricsAddr = flag.String("metrics-addr", "", "serve Prometheus metrics on this address (e.g. 127.0.0.1:9090)")
		openTimeout = flag.Duration("open-timeout", 60*time.Second, "deadline for the open handshake")
	)
	flag.Parse()

	if *appPath == "" || *pageURL == "" {
		flag.Usage()
		return fmt.Errorf("-app and -url are required")
	}

	logger, err := logging.NewLogger(*logDir)
	if err != nil {
		return err
	}
	defer logger.Close()
	if *verbose {
		logger.SetMinLevel(logging.LevelDebug)
	}

	if *trace {
		tp, err := observability.NewTracerProvider("filament")
		if err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = tp.Shutdown(shutdownCtx)
		}()
	}

	if *metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		go func() {
			if err := http.ListenAndServe(*metricsAddr, mux); err != nil {
				logger.Error(logging.CategorySession, "metrics.serve_failed", err.Error(), nil)
			}
		}()
	}

	provider, err := electron.NewProvider(electron.Deps{
		Allocator: ports.NewOSAllocator(),
		Launcher:  electron.NewProcessLauncher(logger),
		Injector:  inspector.NewClient(inspector.WithLogger(logger)),
		Bootstrap: electron.NewBootstrapBuilder(),
		NewChannel: func(cfg *config.Resolved) (electron.ControlChannel, error) {
			return controlchan.NewServer(cfg, logger)
		},
		NewAutomation: func(remoteDebugPort int) (electron.AutomationClient, error) {
			return cdp.NewClient(remoteDebugPort, cdp.WithLogger(logger)), nil
		},
		Logger: logger,
	})
	if err != nil {
		return err
	}

	var opts electron.OpenOptions
	if *native {
		opts.NativeAutomation = &electron.NativeAutomationOptions{EmulateFocus: true}
	}

	openCtx, cancel := context.WithTimeout(context.Background(), *openTimeout)
	defer cancel()
	if err := provider.OpenBrowser(openCtx, *sessionID, *pageURL, *appPath, opts); err != nil {
		return err
	}
	fmt.Printf("session %s open; press Ctrl-C to close\n", *sessionID)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	closeCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return provider.CloseBrowser(closeCtx, *sessionID)
}

func defaultLogDir() string {
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".filament", "logs")
	}
	return filepath.Join(os.TempDir(), "filament-logs")
}
