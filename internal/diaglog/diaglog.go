// Package diaglog writes structured NDJSON diagnostics for voxbox. Logging is
// off unless VOXBOX_DEBUG=true; a disabled Logger creates no file and every
// method on it is a no-op.
package diaglog

import (
	"encoding/json"
	"os"
	"sync"
	"time"
)

// DebugEnv is the environment variable that turns diagnostics on.
const DebugEnv = "VOXBOX_DEBUG"

// DefaultMaxSize is the size at which the log moves to <path>.old.
const DefaultMaxSize = 10 * 1024 * 1024

const (
	ComponentController     = "controller"
	ComponentGateway        = "media-gateway"
	ComponentCommandWatcher = "command-watcher"
	ComponentStatusServer   = "status-server"
	ComponentDiagExport     = "diag-export"
	ComponentCore           = "voxbox-core"
)

const (
	EventTransition        = "transition"
	EventTransitionFailed  = "transition_failed"
	EventSessionTerminated = "session_terminated"
	EventDiscardFailed     = "discard_failed"
	EventCaptureStart      = "capture_start"
	EventCaptureStop       = "capture_stop"
	EventPlaybackStart     = "playback_start"
	EventPlaybackStop      = "playback_stop"
	EventPermissionResult  = "permission_result"
	EventCommandReceived   = "command_received"
	EventClientConnect     = "client_connect"
	EventClientDisconnect  = "client_disconnect"
	EventShutdown          = "shutdown"
)

// LogEntry is one line of the log.
type LogEntry struct {
	Timestamp string      `json:"ts"` // RFC3339Nano, filled in by Log
	Component string      `json:"component"`
	Event     string      `json:"event"`
	SessionID string      `json:"session_id,omitempty"`
	Reason    string      `json:"reason,omitempty"` // intent or cause
	Payload   interface{} `json:"payload,omitempty"`
}

// Logger appends entries to a size-capped file. At most two generations
// exist on disk: the live file and <path>.old.
type Logger struct {
	mu      sync.Mutex
	path    string
	maxSize int64
	f       *os.File
	size    int64
}

// New returns a Logger writing to path, or a disabled Logger when debug mode
// is off.
func New(path string) (*Logger, error) {
	if !IsDebugEnabled() {
		return NewNoOp(), nil
	}
	return openLogger(path, DefaultMaxSize)
}

// NewNoOp returns a disabled Logger, used when New fails or in tests.
func NewNoOp() *Logger {
	return &Logger{}
}

func openLogger(path string, maxSize int64) (*Logger, error) {
	l := &Logger{path: path, maxSize: maxSize}
	if err := l.openLocked(); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *Logger) openLocked() error {
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return err
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return err
	}
	l.f, l.size = f, info.Size()
	return nil
}

// Log writes entry as one JSON line. The payload is redacted first. Errors
// are swallowed: diagnostics never fail the caller.
func (l *Logger) Log(entry LogEntry) {
	if !l.Enabled() {
		return
	}
	if entry.Timestamp == "" {
		entry.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	}
	if entry.Payload != nil {
		entry.Payload = Redact(entry.Payload)
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	_ = l.write(append(data, '\n'))
}

// write appends line, first rotating if it would push a non-empty file past
// maxSize. Each line is synced so entries survive a daemon crash.
func (l *Logger) write(line []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.f == nil {
		return os.ErrClosed
	}

	if l.size > 0 && l.size+int64(len(line)) > l.maxSize {
		if err := l.f.Close(); err != nil {
			return err
		}
		l.f = nil
		if err := os.Rename(l.path, l.path+".old"); err != nil && !os.IsNotExist(err) {
			return err
		}
		if err := l.openLocked(); err != nil {
			return err
		}
	}

	n, err := l.f.Write(line)
	l.size += int64(n)
	if err != nil {
		return err
	}
	return l.f.Sync()
}

// Enabled reports whether entries are actually written.
func (l *Logger) Enabled() bool {
	return l != nil && l.path != ""
}

// Close closes the file. Later Log calls are dropped.
func (l *Logger) Close() error {
	if !l.Enabled() {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.f == nil {
		return nil
	}
	_ = l.f.Sync()
	err := l.f.Close()
	l.f = nil
	return err
}

func IsDebugEnabled() bool {
	return os.Getenv(DebugEnv) == "true"
}

// DefaultPath returns VOXBOX_LOG_PATH or /tmp/voxbox-debug.log.
func DefaultPath() string {
	if p := os.Getenv("VOXBOX_LOG_PATH"); p != "" {
		return p
	}
	return "/tmp/voxbox-debug.log"
}
