// Package config resolves the per-application launch configuration used by
// the Electron session provider.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// ConfigFileName is looked up next to the application entrypoint.
const ConfigFileName = ".filament.yaml"

// WindowRules match the application's main window when several windows open.
type WindowRules struct {
	Title string `yaml:"title,omitempty"`
	URL   string `yaml:"url,omitempty"`
}

// FileConfig is the on-disk configuration shape.
type FileConfig struct {
	MainWindowURL string      `yaml:"mainWindowUrl,omitempty"`
	ElectronPath  string      `yaml:"electronPath,omitempty"`
	AppPath       string      `yaml:"appPath,omitempty"`
	AppArgs       []string    `yaml:"appArgs,omitempty"`
	Window        WindowRules `yaml:"window,omitempty"`
}

// Resolved is the fully resolved configuration bound to one session.
type Resolved struct {
	SessionID     string
	MainPath      string
	AppPath       string
	ExtraArgs     []string
	MainWindowURL string
	Window        WindowRules
}

// Resolve builds the configuration for a session from its ID and the
// application entrypoint path. A relative mainPath is resolved against the
// current working directory. A .filament.yaml next to the entrypoint
// overrides defaults; its absence is not an error.
func Resolve(sessionID, mainPath string) (*Resolved, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, fmt.Errorf("config: session ID is required")
	}
	if strings.TrimSpace(mainPath) == "" {
		return nil, fmt.Errorf("config: main path is required")
	}
	abs, err := filepath.Abs(mainPath)
	if err != nil {
		return nil, fmt.Errorf("config: resolve main path: %w", err)
	}

	resolved := &Resolved{
		SessionID: sessionID,
		MainPath:  abs,
		AppPath:   abs,
	}

	fileCfg, err := loadFileConfig(configDir(abs))
	if err != nil {
		return nil, err
	}
	if fileCfg != nil {
		resolved.MainWindowURL = fileCfg.MainWindowURL
		resolved.ExtraArgs = append(resolved.ExtraArgs, fileCfg.AppArgs...)
		resolved.Window = fileCfg.Window
		switch {
		case fileCfg.AppPath != "":
			resolved.AppPath = resolvePath(configDir(abs), fileCfg.AppPath)
		case fileCfg.ElectronPath != "":
			resolved.AppPath = resolvePath(configDir(abs), fileCfg.ElectronPath)
			// Electron binaries take the app entrypoint as their first argument.
			resolved.ExtraArgs = append([]string{abs}, resolved.ExtraArgs...)
		}
	}

	if err := resolved.Validate(); err != nil {
		return nil, err
	}
	return resolved, nil
}

// Validate checks structural invariants of a resolved configuration.
func (r *Resolved) Validate() error {
	if r == nil {
		return fmt.Errorf("config: nil configuration")
	}
	if r.AppPath == "" {
		return fmt.Errorf("config: application path is empty")
	}
	if r.Window.Title != "" {
		if _, err := regexp.Compile(r.Window.Title); err != nil {
			return fmt.Errorf("config: invalid window title pattern: %w", err)
		}
	}
	if r.Window.URL != "" {
		if _, err := regexp.Compile(r.Window.URL); err != nil {
			return fmt.Errorf("config: invalid window url pattern: %w", err)
		}
	}
	return nil
}

// IsBundle reports whether the application path is a macOS .app bundle
// directory, which must be launched through the platform open mechanism.
func (r *Resolved) IsBundle() bool {
	if r == nil || !strings.HasSuffix(r.AppPath, ".app") {
		return false
	}
	info, err := os.Stat(r.AppPath)
	return err == nil && info.IsDir()
}

func configDir(mainPath string) string {
	if info, err := os.Stat(mainPath); err == nil && info.IsDir() {
		return mainPath
	}
	return filepath.Dir(mainPath)
}

func loadFileConfig(dir string) (*FileConfig, error) {
	path := filepath.Join(dir, ConfigFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	var cfg FileConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return &cfg, nil
}

func resolvePath(baseDir, p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(baseDir, p)
}
