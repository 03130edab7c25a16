package service

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"runtime"
)

// Launcher shows a local entry in the desktop file manager.
type Launcher interface {
	Reveal(ctx context.Context, path string, isFolder bool) error
}

// ExecLauncher reveals entries with the platform's opener command.
type ExecLauncher struct {
	goos        string
	execCommand func(ctx context.Context, name string, args ...string) *exec.Cmd
	lookPath    func(file string) (string, error)
}

// NewExecLauncher creates a launcher for the running platform.
func NewExecLauncher() *ExecLauncher {
	return &ExecLauncher{
		goos:        runtime.GOOS,
		execCommand: exec.CommandContext,
		lookPath:    exec.LookPath,
	}
}

// RevealCommand returns the command that reveals path:
//   - darwin: open -R <path> (selects the entry in Finder)
//   - windows: explorer /select,<path>
//   - others: xdg-open <dir> (files open their parent directory)
func RevealCommand(goos, path string, isFolder bool) (string, []string) {
	switch goos {
	case "darwin":
		return "open", []string{"-R", path}
	case "windows":
		return "explorer", []string{"/select," + path}
	default:
		dir := path
		if !isFolder {
			dir = filepath.Dir(path)
		}
		return "xdg-open", []string{dir}
	}
}

// Reveal starts the opener and does not wait for the file manager to exit.
func (l *ExecLauncher) Reveal(ctx context.Context, path string, isFolder bool) error {
	name, args := RevealCommand(l.goos, path, isFolder)
	if _, err := l.lookPath(name); err != nil {
		return fmt.Errorf("%s not available on %s: %w", name, l.goos, err)
	}

	cmd := l.execCommand(context.WithoutCancel(ctx), name, args...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start %s: %w", name, err)
	}
	go func() { _ = cmd.Wait() }()
	return nil
}
