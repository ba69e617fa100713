package electron

import (
	"bytes"
	"fmt"
	"text/template"

	"github.com/odvcencio/filament/pkg/config"
)

// TemplateBootstrapBuilder renders the bootstrap source evaluated inside the
// freshly spawned process. The generated script wires the in-process bridge:
// it connects back to the control endpoint, tracks every window URL the
// application opens, and answers the handshake and helper RPCs.
type TemplateBootstrapBuilder struct {
	tmpl *template.Template
}

// NewBootstrapBuilder creates the default builder.
func NewBootstrapBuilder() *TemplateBootstrapBuilder {
	return &TemplateBootstrapBuilder{
		tmpl: template.Must(template.New("bootstrap").Parse(bootstrapTemplate)),
	}
}

type bootstrapParams struct {
	Endpoint      string
	IPCPort       int
	MainWindowURL string
	PageURL       string
	WindowTitle   string
	WindowURL     string
}

// Build renders the bootstrap source for one session. The expected main
// window URL falls back to the page URL when the configuration leaves it
// unset.
func (b *TemplateBootstrapBuilder) Build(cfg *config.Resolved, pageURL, endpoint string, p Ports) (string, error) {
	if endpoint == "" {
		return "", fmt.Errorf("bootstrap: control endpoint is required")
	}
	params := bootstrapParams{
		Endpoint:      endpoint,
		IPCPort:       p.IPC,
		MainWindowURL: cfg.MainWindowURL,
		PageURL:       pageURL,
		WindowTitle:   cfg.Window.Title,
		WindowURL:     cfg.Window.URL,
	}
	if params.MainWindowURL == "" {
		params.MainWindowURL = pageURL
	}
	var buf bytes.Buffer
	if err := b.tmpl.Execute(&buf, params); err != nil {
		return "", fmt.Errorf("bootstrap: render: %w", err)
	}
	return buf.String(), nil
}

const bootstrapTemplate = `(function () {
	'use strict';

	const CONTROL_ENDPOINT = {{printf "%q" .Endpoint}};
	const IPC_PORT = {{.IPCPort}};
	const MAIN_WINDOW_URL = {{printf "%q" .MainWindowURL}};
	const PAGE_URL = {{printf "%q" .PageURL}};
	const WINDOW_TITLE_RE = {{printf "%q" .WindowTitle}};
	const WINDOW_URL_RE = {{printf "%q" .WindowURL}};

	const { app, BrowserWindow, Menu, dialog } = require('electron');
	const net = require('net');

	const openedUrls = [];
	let mainWindowLoaded = false;

	function matchesMainWindow (url, title) {
		if (WINDOW_URL_RE && new RegExp(WINDOW_URL_RE).test(url))
			return true;
		if (WINDOW_TITLE_RE && new RegExp(WINDOW_TITLE_RE).test(title || ''))
			return true;
		return url === MAIN_WINDOW_URL;
	}

	app.on('web-contents-created', (event, contents) => {
		contents.on('did-finish-load', () => {
			const url = contents.getURL();

			openedUrls.push(url);
			if (matchesMainWindow(url, contents.getTitle())) {
				mainWindowLoaded = true;
				contents.loadURL(PAGE_URL);
			}
		});
	});

	const bridge = require('filament-bridge');

	bridge.connect(net, CONTROL_ENDPOINT, IPC_PORT, {
		getInjectingStatus: () => ({ completed: mainWindowLoaded, openedUrls }),
		terminateProcess:   () => process.exit(0),
		menu:               { Menu, BrowserWindow },
		dialog:             dialog
	});
})();
`
