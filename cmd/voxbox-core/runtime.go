package main

import (
	"context"
	"errors"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"

	"github.com/tiroq/voxbox/internal/config"
	"github.com/tiroq/voxbox/internal/diaglog"
	"github.com/tiroq/voxbox/internal/fileutil"
	"github.com/tiroq/voxbox/internal/ipc"
	"github.com/tiroq/voxbox/internal/media"
	"github.com/tiroq/voxbox/internal/statemachine"
	"github.com/tiroq/voxbox/internal/statusws"
	"github.com/tiroq/voxbox/internal/version"
)

// commandSettle gives a writer time to finish cmd.txt before it is read.
const commandSettle = 50 * time.Millisecond

// runtime owns the controller. Every intent, whatever its source, is applied
// from the goroutine running loop.
type runtime struct {
	cfg    *config.Config
	gw     media.Gateway
	ctrl   *statemachine.Controller
	outLog *log.Logger
	errLog *log.Logger
	diag   *diaglog.Logger
	ws     *statusws.Server

	commands chan ipc.Command

	lastAction string
	lastError  string
}

func newRuntime(cfg *config.Config, gw media.Gateway, outLog, errLog *log.Logger, diag *diaglog.Logger) *runtime {
	r := &runtime{
		cfg:      cfg,
		gw:       gw,
		outLog:   outLog,
		errLog:   errLog,
		diag:     diag,
		commands: make(chan ipc.Command, 8),
	}
	r.ctrl = statemachine.NewController(gw, cfg.RecordingPath())
	r.ctrl.SetLogger(diag)
	r.ctrl.SetSessionID(uuid.NewString())
	r.ctrl.OnTransition(r.onTransition)
	return r
}

// attachStatusServer publishes every transition to ws and accepts its intents.
func (r *runtime) attachStatusServer(ws *statusws.Server) {
	r.ws = ws
	r.publish(statemachine.Transition{To: r.ctrl.CurrentState(), At: time.Now()})
}

// prepare clears any recording left by a previous run and delivers the
// permission result. A denial is returned as media.ErrPermissionDenied.
func (r *runtime) prepare() error {
	path := r.cfg.RecordingPath()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	if fileutil.RecordingExists(path) {
		r.outLog.Printf("[STARTUP] Removing stale recording %s", path)
	}
	if err := fileutil.DiscardRecording(path); err != nil {
		r.errLog.Printf("[STARTUP] Failed to remove stale recording: %v", err)
	}

	r.outLog.Println("[STARTUP] Checking capture permission...")
	permErr := media.CheckPermission(r.gw)
	if permErr != nil {
		r.errLog.Printf("[STARTUP] Capture permission check failed: %v", permErr)
	}
	if err := r.ctrl.OnPermissionResult(permErr == nil); err != nil {
		if permErr != nil {
			r.lastError = permErr.Error()
		}
		r.writeStatus()
		return err
	}
	r.outLog.Println("[STARTUP] Capture permission granted")
	r.writeStatus()
	return nil
}

// loop applies intents until ctx is cancelled or a quit command arrives.
// Active capture or playback is stopped before it returns.
func (r *runtime) loop(ctx context.Context) {
	var wsIntents <-chan statemachine.Intent
	if r.ws != nil {
		wsIntents = r.ws.Intents()
	}

	for {
		select {
		case <-ctx.Done():
			r.outLog.Printf("[SHUTDOWN] Received shutdown signal at %s", time.Now().Format(time.RFC3339))
			r.shutdown()
			return

		case cmd := <-r.commands:
			if cmd == ipc.CmdQuit {
				r.outLog.Println("[SHUTDOWN] Quit command received")
				r.shutdown()
				return
			}
			if intent, ok := cmd.Intent(); ok {
				r.apply(intent, "command")
			}

		case intent := <-wsIntents:
			r.apply(intent, "websocket")
		}
	}
}

func (r *runtime) apply(intent statemachine.Intent, source string) {
	r.outLog.Printf("[EVENT] %s from %s in state %s", intent, source, r.ctrl.CurrentState())
	err := r.ctrl.HandleAction(intent)
	switch {
	case err == nil:
	case errors.Is(err, statemachine.ErrSessionTerminated):
		r.errLog.Printf("Ignoring %s: session terminated", intent)
	default:
		r.errLog.Printf("%s failed: %v", intent, err)
	}
}

func (r *runtime) shutdown() {
	r.diag.Log(diaglog.LogEntry{
		Component: diaglog.ComponentCore,
		Event:     diaglog.EventShutdown,
		SessionID: r.ctrl.SessionID(),
		Payload:   map[string]interface{}{"state": string(r.ctrl.CurrentState())},
	})
	switch r.ctrl.CurrentState() {
	case statemachine.StateRecording:
		r.outLog.Println("[SHUTDOWN] Recording is active - finalizing before shutdown...")
	case statemachine.StatePlaying:
		r.outLog.Println("[SHUTDOWN] Stopping playback...")
	}
	if err := r.ctrl.Shutdown(); err != nil {
		r.errLog.Printf("[SHUTDOWN] %v", err)
	}
	if err := ipc.RemoveStatus(r.cfg.CacheDir); err != nil {
		r.errLog.Printf("[SHUTDOWN] Failed to remove status: %v", err)
	}
	r.outLog.Println("[SHUTDOWN] Shutting down gracefully")
}

// onTransition runs inside HandleAction; it must not call back into the
// controller.
func (r *runtime) onTransition(tr statemachine.Transition) {
	r.lastAction = string(tr.Intent)
	if tr.Err != nil {
		r.lastError = tr.Err.Error()
		r.errLog.Printf("[EVENT] %s: %s -> %s failed: %v", tr.Intent, tr.From, tr.To, tr.Err)
	} else {
		r.lastError = ""
		r.outLog.Printf("[EVENT] %s: %s -> %s", tr.Intent, tr.From, tr.To)
	}

	if tr.Err == nil && tr.From == statemachine.StateRecording && tr.To == statemachine.StateRecorded && tr.Handle != nil {
		meta := fileutil.NewMetadata(version.Version, tr.SessionID, r.gw.Name(), tr.Handle.Path(), tr.Handle.StartedAt(), tr.At)
		if err := fileutil.WriteMetadata(tr.Handle.Path(), meta); err != nil {
			r.errLog.Printf("Failed to write recording metadata: %v", err)
		} else {
			r.outLog.Printf("Recorded %s (%s)", tr.Handle.Path(), meta.Duration)
		}
	}

	r.writeStatus()
	r.publish(tr)
}

func (r *runtime) snapshot() *ipc.StatusSnapshot {
	path := r.ctrl.RecordingPath()
	state := r.ctrl.CurrentState()
	return &ipc.StatusSnapshot{
		State:             state,
		Handle:            r.ctrl.HandleKind(),
		RecordingPath:     path,
		RecordingExists:   fileutil.RecordingExists(path),
		ResetEnabled:      state.ResetEnabled(),
		LastAction:        r.lastAction,
		LastError:         r.lastError,
		SessionID:         r.ctrl.SessionID(),
		Backend:           r.ctrl.Backend(),
		PermissionGranted: r.ctrl.PermissionGranted(),
		Terminated:        r.ctrl.Terminated(),
		PID:               os.Getpid(),
		Version:           version.Version,
		Timestamp:         time.Now(),
	}
}

func (r *runtime) writeStatus() {
	if err := ipc.WriteStatus(r.cfg.CacheDir, r.snapshot()); err != nil {
		r.errLog.Printf("Failed to write status: %v", err)
	}
}

func (r *runtime) publish(tr statemachine.Transition) {
	if r.ws == nil {
		return
	}
	ev := statusws.StateEvent{
		State:        r.ctrl.CurrentState(),
		Handle:       r.ctrl.HandleKind(),
		From:         tr.From,
		Intent:       tr.Intent,
		ResetEnabled: r.ctrl.CurrentState().ResetEnabled(),
		Terminated:   r.ctrl.Terminated(),
		SessionID:    r.ctrl.SessionID(),
		Timestamp:    tr.At,
	}
	if tr.Err != nil {
		ev.Error = tr.Err.Error()
	}
	r.ws.Publish(ev)
}

// watchCommands monitors cmd.txt and forwards commands to the loop until ctx
// is cancelled.
func (r *runtime) watchCommands(ctx context.Context) {
	dir := r.cfg.CacheDir
	cmdPath := filepath.Join(dir, ipc.CommandFile)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		r.errLog.Printf("fsnotify not available, falling back to polling: %v", err)
		r.pollCommands(ctx, cmdPath)
		return
	}
	defer func() {
		if err := watcher.Close(); err != nil {
			r.errLog.Printf("Failed to close watcher: %v", err)
		}
	}()

	if err := watcher.Add(dir); err != nil {
		r.errLog.Printf("Failed to watch command directory, falling back to polling: %v", err)
		r.pollCommands(ctx, cmdPath)
		return
	}

	r.outLog.Println("Command watcher started (using fsnotify)")

	// Fallback polling in case fsnotify misses an event
	pollTicker := time.NewTicker(1 * time.Second)
	defer pollTicker.Stop()

	lastCheckTime := time.Now()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-watcher.Events:
			if !ok {
				r.outLog.Println("fsnotify watcher closed, switching to polling")
				r.pollCommands(ctx, cmdPath)
				return
			}
			if event.Name == cmdPath && event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				time.Sleep(commandSettle)
				r.readCommand(ctx)
				lastCheckTime = time.Now()
			}

		case <-pollTicker.C:
			if info, err := os.Stat(cmdPath); err == nil && info.ModTime().After(lastCheckTime) {
				time.Sleep(commandSettle)
				r.readCommand(ctx)
				lastCheckTime = time.Now()
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				r.outLog.Println("fsnotify error channel closed, switching to polling")
				r.pollCommands(ctx, cmdPath)
				return
			}
			r.errLog.Printf("File watcher error: %v", err)
		}
	}
}

// pollCommands is a pure polling fallback for command monitoring
func (r *runtime) pollCommands(ctx context.Context, cmdPath string) {
	r.outLog.Println("Command watcher started (using polling fallback, 1s interval)")

	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	lastCheckTime := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			info, err := os.Stat(cmdPath)
			if err != nil || !info.ModTime().After(lastCheckTime) {
				continue
			}
			time.Sleep(commandSettle)
			r.readCommand(ctx)
			lastCheckTime = time.Now()
		}
	}
}

func (r *runtime) readCommand(ctx context.Context) {
	cmd, err := ipc.ReadCommand(r.cfg.CacheDir)
	if err != nil {
		r.errLog.Printf("Failed to read command: %v", err)
		return
	}
	if cmd == "" {
		return
	}
	r.outLog.Printf("Received command: %s", cmd)
	r.diag.Log(diaglog.LogEntry{
		Component: diaglog.ComponentCommandWatcher,
		Event:     diaglog.EventCommandReceived,
		SessionID: r.ctrl.SessionID(),
		Reason:    string(cmd),
	})
	select {
	case r.commands <- cmd:
	case <-ctx.Done():
	}
}
