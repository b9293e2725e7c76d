// Package execgw implements the media gateway with external processes: a
// capture command (ffmpeg, arecord, ...) that records until interrupted, and
// a player command that plays a file and exits.
package execgw

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	child_process_manager "github.com/AgustinSRG/go-child-process-manager"
	"github.com/hashicorp/go-multierror"

	"github.com/tiroq/voxbox/internal/diaglog"
	"github.com/tiroq/voxbox/internal/fileutil"
	"github.com/tiroq/voxbox/internal/media"
)

// PathPlaceholder is replaced with the recording path in every command argument.
const PathPlaceholder = "{path}"

const (
	DefaultSettle      = 300 * time.Millisecond
	DefaultStopTimeout = 5 * time.Second
	stderrTailSize     = 2048
)

// Options configures the gateway.
type Options struct {
	CaptureCommand  []string
	PlaybackCommand []string
	// DevicePath, when set, must be readable for capture to be permitted
	// (e.g. /dev/snd/pcmC0D0c).
	DevicePath string
	// Settle is how long a freshly started process must survive before the
	// start counts as successful.
	Settle      time.Duration
	StopTimeout time.Duration
}

// Gateway runs capture and playback as child processes. Only one process of
// each kind is expected at a time, but the gateway itself keeps no state
// beyond the handles it returns.
type Gateway struct {
	opts     Options
	logger   *diaglog.Logger
	lookPath func(string) (string, error)
}

// New creates a gateway. Zero durations fall back to the defaults.
func New(opts Options) *Gateway {
	if opts.Settle <= 0 {
		opts.Settle = DefaultSettle
	}
	if opts.StopTimeout <= 0 {
		opts.StopTimeout = DefaultStopTimeout
	}
	return &Gateway{
		opts:     opts,
		logger:   diaglog.NewNoOp(),
		lookPath: exec.LookPath,
	}
}

// SetLogger injects the diagnostic logger.
func (g *Gateway) SetLogger(l *diaglog.Logger) {
	if l == nil {
		l = diaglog.NewNoOp()
	}
	g.logger = l
}

// Name implements media.Gateway.
func (g *Gateway) Name() string { return "exec" }

// CheckPermission reports media.ErrPermissionDenied when the capture binary
// cannot be resolved or the configured device cannot be opened.
func (g *Gateway) CheckPermission() error {
	if len(g.opts.CaptureCommand) == 0 {
		return fmt.Errorf("%w: no capture command configured", media.ErrPermissionDenied)
	}
	if _, err := g.lookPath(g.opts.CaptureCommand[0]); err != nil {
		return fmt.Errorf("%w: %s: %v", media.ErrPermissionDenied, g.opts.CaptureCommand[0], err)
	}
	if g.opts.DevicePath != "" {
		f, err := os.Open(g.opts.DevicePath)
		if err != nil {
			return fmt.Errorf("%w: %v", media.ErrPermissionDenied, err)
		}
		_ = f.Close()
	}
	return nil
}

// BeginCapture starts the capture command writing to path.
func (g *Gateway) BeginCapture(path string) (media.Handle, error) {
	argv := expand(g.opts.CaptureCommand, path)
	if len(argv) == 0 {
		return nil, fmt.Errorf("%w: no capture command configured", media.ErrDeviceUnavailable)
	}
	bin, err := g.lookPath(argv[0])
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", media.ErrDeviceUnavailable, argv[0], err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("%w: create recording dir: %v", media.ErrCaptureStartFailed, err)
	}

	h, err := g.start(media.KindRecorder, bin, argv[1:], path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", media.ErrCaptureStartFailed, err)
	}
	if exited, werr := h.settle(g.opts.Settle); exited {
		// Whatever the recorder managed to write is not a recording.
		_ = fileutil.DiscardRecording(path)
		return nil, fmt.Errorf("%w: capture exited during startup: %v: %s",
			media.ErrCaptureStartFailed, werr, h.stderr.String())
	}

	g.log(diaglog.EventCaptureStart, h, nil)
	return h, nil
}

// EndCapture interrupts the capture process so it can finalize the file,
// then checks that something was written.
func (g *Gateway) EndCapture(mh media.Handle) error {
	h, ok := mh.(*procHandle)
	if !ok || h.kind != media.KindRecorder {
		return media.ErrWrongHandle
	}

	var result *multierror.Error
	select {
	case <-h.done:
		// Exited on its own before we asked it to stop.
		if h.waitErr != nil {
			result = multierror.Append(result, fmt.Errorf("capture process died: %v: %s", h.waitErr, h.stderr.String()))
		}
	default:
		if err := h.stop(g.opts.StopTimeout); err != nil {
			result = multierror.Append(result, err)
		}
	}

	if !fileutil.RecordingExists(h.path) {
		result = multierror.Append(result, fmt.Errorf("%w: %s is missing or empty", media.ErrWriteFailed, h.path))
	}

	err := result.ErrorOrNil()
	g.log(diaglog.EventCaptureStop, h, err)
	return err
}

// BeginPlayback starts the player command on path.
func (g *Gateway) BeginPlayback(path string) (media.Handle, error) {
	if !fileutil.RecordingExists(path) {
		return nil, fmt.Errorf("%w: %s", media.ErrFileMissingOrCorrupt, path)
	}
	argv := expand(g.opts.PlaybackCommand, path)
	if len(argv) == 0 {
		return nil, fmt.Errorf("%w: no playback command configured", media.ErrPlaybackStartFailed)
	}
	bin, err := g.lookPath(argv[0])
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", media.ErrPlaybackStartFailed, argv[0], err)
	}

	h, err := g.start(media.KindPlayer, bin, argv[1:], path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", media.ErrPlaybackStartFailed, err)
	}
	// A short clip may legitimately finish inside the settle window.
	if exited, werr := h.settle(g.opts.Settle); exited && werr != nil {
		return nil, fmt.Errorf("%w: player exited: %v: %s",
			media.ErrPlaybackStartFailed, werr, h.stderr.String())
	}

	g.log(diaglog.EventPlaybackStart, h, nil)
	return h, nil
}

// EndPlayback stops the player if it is still running. A player that
// already finished is not an error.
func (g *Gateway) EndPlayback(mh media.Handle) error {
	h, ok := mh.(*procHandle)
	if !ok || h.kind != media.KindPlayer {
		return media.ErrWrongHandle
	}

	var err error
	select {
	case <-h.done:
	default:
		if serr := h.stop(g.opts.StopTimeout); serr != nil {
			err = fmt.Errorf("%w: %v", media.ErrPlaybackStopFailed, serr)
		}
	}
	g.log(diaglog.EventPlaybackStop, h, err)
	return err
}

func (g *Gateway) start(kind media.Kind, bin string, args []string, path string) (*procHandle, error) {
	cmd := exec.Command(bin, args...)
	h := &procHandle{
		kind:    kind,
		path:    path,
		started: time.Now(),
		cmd:     cmd,
		done:    make(chan struct{}),
		stderr:  &tailBuffer{max: stderrTailSize},
	}
	cmd.Stderr = h.stderr
	// Do not let an orphaned grandchild holding stderr block Wait forever.
	cmd.WaitDelay = time.Second
	// Best effort: the child should not outlive a crashed daemon.
	_ = child_process_manager.ConfigureCommand(cmd)
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	_ = child_process_manager.AddChildProcess(cmd.Process)
	go func() {
		h.waitErr = cmd.Wait()
		close(h.done)
	}()
	return h, nil
}

func (g *Gateway) log(event string, h *procHandle, err error) {
	payload := map[string]interface{}{
		"path": h.path,
		"pid":  h.cmd.Process.Pid,
	}
	if event == diaglog.EventCaptureStop || event == diaglog.EventPlaybackStop {
		payload["duration_ms"] = time.Since(h.started).Milliseconds()
	}
	if err != nil {
		payload["error"] = err.Error()
	}
	g.logger.Log(diaglog.LogEntry{
		Component: diaglog.ComponentGateway,
		Event:     event,
		Payload:   payload,
	})
}

// expand substitutes the recording path into argv.
func expand(argv []string, path string) []string {
	out := make([]string, len(argv))
	for i, a := range argv {
		out[i] = strings.ReplaceAll(a, PathPlaceholder, path)
	}
	return out
}

// procHandle is the media.Handle for a running child process.
type procHandle struct {
	kind    media.Kind
	path    string
	started time.Time
	cmd     *exec.Cmd
	stderr  *tailBuffer

	done    chan struct{} // closed once Wait returns
	waitErr error         // valid after done is closed
}

func (h *procHandle) Kind() media.Kind     { return h.kind }
func (h *procHandle) Path() string         { return h.path }
func (h *procHandle) StartedAt() time.Time { return h.started }

// settle waits out the startup window and reports whether the process has
// already exited, along with its exit error.
func (h *procHandle) settle(d time.Duration) (bool, error) {
	select {
	case <-h.done:
		return true, h.waitErr
	case <-time.After(d):
		return false, nil
	}
}

// stop interrupts the process, escalating to kill after timeout. The process
// is always reaped before stop returns.
func (h *procHandle) stop(timeout time.Duration) error {
	var result *multierror.Error
	// os.ErrProcessDone means the process exited on its own meanwhile.
	if err := h.cmd.Process.Signal(os.Interrupt); err != nil && !errors.Is(err, os.ErrProcessDone) {
		result = multierror.Append(result, fmt.Errorf("interrupt: %w", err))
		if kerr := h.cmd.Process.Kill(); kerr != nil && !errors.Is(kerr, os.ErrProcessDone) {
			result = multierror.Append(result, fmt.Errorf("kill: %w", kerr))
		}
	}

	select {
	case <-h.done:
	case <-time.After(timeout):
		result = multierror.Append(result, fmt.Errorf("process did not exit within %s", timeout))
		if err := h.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
			result = multierror.Append(result, fmt.Errorf("kill: %w", err))
		}
		<-h.done
	}
	return result.ErrorOrNil()
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	mu  sync.Mutex
	buf []byte
	max int
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = append(b.buf, p...)
	if over := len(b.buf) - b.max; over > 0 {
		b.buf = b.buf[over:]
	}
	return len(p), nil
}

func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return strings.TrimSpace(string(b.buf))
}
