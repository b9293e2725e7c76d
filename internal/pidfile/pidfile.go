// Package pidfile keeps a single voxbox-core running per cache directory.
package pidfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

// ErrAlreadyRunning is returned by New when a live process owns the file.
var ErrAlreadyRunning = errors.New("another instance is already running")

// PIDFile manages a PID file for preventing duplicate instances
type PIDFile struct {
	path string
	pid  int
}

// New creates a new PID file at the specified path.
// A file naming a live process yields ErrAlreadyRunning; a stale one is replaced.
func New(path string) (*PIDFile, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create PID directory: %w", err)
	}

	if existingPID, running := Running(path); running {
		return nil, fmt.Errorf("%w (PID %d)", ErrAlreadyRunning, existingPID)
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to remove stale PID file: %w", err)
	}

	currentPID := os.Getpid()
	if err := os.WriteFile(path, []byte(fmt.Sprintf("%d\n", currentPID)), 0644); err != nil {
		return nil, fmt.Errorf("failed to write PID file: %w", err)
	}

	return &PIDFile{path: path, pid: currentPID}, nil
}

// Path returns the location of the PID file.
func (p *PIDFile) Path() string {
	return p.path
}

// Remove deletes the PID file if it still holds our PID.
func (p *PIDFile) Remove() error {
	if p == nil {
		return nil
	}
	if pid, err := read(p.path); err == nil && pid == p.pid {
		return os.Remove(p.path)
	}
	return nil
}

// Running reports the PID recorded at path and whether that process is alive.
func Running(path string) (int, bool) {
	pid, err := read(path)
	if err != nil {
		return 0, false
	}
	return pid, isProcessRunning(pid)
}

func read(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

// isProcessRunning checks if a process with the given PID is running
func isProcessRunning(pid int) bool {
	if pid <= 0 {
		return false
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}

	// On Unix systems, FindProcess always succeeds, so probe with signal 0
	err = process.Signal(syscall.Signal(0))
	switch {
	case err == nil:
		return true
	case errors.Is(err, syscall.EPERM):
		// Process exists but we don't have permission to signal it
		return true
	default:
		return false
	}
}

// PathFor returns the PID file path for appName inside dir.
func PathFor(dir, appName string) string {
	return filepath.Join(dir, appName+".pid")
}
