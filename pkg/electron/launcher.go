package electron

import (
	"bufio"
	"fmt"
	"io"
	"os/exec"
	"runtime"

	"github.com/odvcencio/filament/pkg/config"
	"github.com/odvcencio/filament/pkg/logging"
)

// ProcessLauncher spawns the application process with the debugger and
// remote-debugging ports bound. It performs no cleanup and never observes
// process exit; a dead or crashed process surfaces later as an injection or
// handshake failure.
type ProcessLauncher struct {
	logger *logging.Logger
	goos   string
}

// NewProcessLauncher creates a launcher routing process output to logger.
func NewProcessLauncher(logger *logging.Logger) *ProcessLauncher {
	return &ProcessLauncher{logger: logger, goos: runtime.GOOS}
}

// Launch builds the platform command line and starts the process. The call
// returns as soon as the process is spawned.
func (l *ProcessLauncher) Launch(cfg *config.Resolved, p Ports) error {
	name, args := l.commandLine(cfg, p)
	cmd := exec.Command(name, args...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("launcher: stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("launcher: stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("launcher: start %s: %w", name, err)
	}

	go l.forwardOutput(cfg.SessionID, "stdout", stdout)
	go l.forwardOutput(cfg.SessionID, "stderr", stderr)
	go func() {
		// Reap the child so it does not linger as a zombie. Exit status is
		// deliberately not reported anywhere.
		_ = cmd.Wait()
	}()

	l.logger.Info(logging.CategoryLauncher, "process.spawned", "application process spawned", map[string]any{
		"session_id": cfg.SessionID,
		"executable": name,
		"args":       args,
	})
	return nil
}

// commandLine returns the executable and argument list for the platform.
// Flags use the debug port for the inspector and the remote-debug port for
// CDP, followed by any user-supplied extra arguments.
func (l *ProcessLauncher) commandLine(cfg *config.Resolved, p Ports) (string, []string) {
	flags := []string{
		fmt.Sprintf("--inspect-brk=%d", p.Debug),
		fmt.Sprintf("--remote-debugging-port=%d", p.RemoteDebug),
	}
	flags = append(flags, cfg.ExtraArgs...)

	if l.goos == "darwin" && cfg.IsBundle() {
		args := append([]string{"-nW", "-a", cfg.AppPath, "--args"}, flags...)
		return "open", args
	}
	return cfg.AppPath, flags
}

func (l *ProcessLauncher) forwardOutput(sessionID, stream string, r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		l.logger.ProcessLine(sessionID, stream, scanner.Text())
	}
}
