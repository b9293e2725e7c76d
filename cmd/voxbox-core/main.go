package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	child_process_manager "github.com/AgustinSRG/go-child-process-manager"

	"github.com/tiroq/voxbox/internal/config"
	"github.com/tiroq/voxbox/internal/diaglog"
	"github.com/tiroq/voxbox/internal/media"
	"github.com/tiroq/voxbox/internal/media/execgw"
	"github.com/tiroq/voxbox/internal/media/nsgw"
	"github.com/tiroq/voxbox/internal/pidfile"
	"github.com/tiroq/voxbox/internal/statusws"
	"github.com/tiroq/voxbox/internal/version"
)

const (
	appName    = "voxbox-core"
	logPrefix  = "[voxbox-core]"
	maxLogSize = 10 * 1024 * 1024

	exitOK               = 0
	exitFailure          = 1
	exitPermissionDenied = 3
)

var (
	outLog *log.Logger
	errLog *log.Logger
)

func main() {
	os.Exit(run())
}

func run() (code int) {
	// --export-diag: read the debug log, write a bundle, exit.
	if len(os.Args) > 1 && os.Args[1] == "--export-diag" {
		return exportDiag()
	}

	configPath := flag.String("config", "", "path to config.json or config.toml")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()
	if *showVersion {
		fmt.Println(version.Full(appName))
		return exitOK
	}

	// Recover from any panics and log them
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "PANIC in %s: %v\n", appName, r)
			if outLog != nil {
				outLog.Printf("PANIC: %v", r)
			}
			if errLog != nil {
				errLog.Printf("PANIC: %v", r)
			}
			code = exitFailure
		}
	}()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return exitFailure
	}

	if err := initLogging(cfg.LogDir); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logging: %v\n", err)
		return exitFailure
	}

	outLog.Println("===========================================")
	outLog.Println("Starting Voxbox Core v" + version.Version + "...")
	outLog.Printf("PID: %d", os.Getpid())
	outLog.Printf("Timestamp: %s", time.Now().Format(time.RFC3339))
	outLog.Println("===========================================")

	pidFilePath := pidfile.PathFor(cfg.CacheDir, appName)
	outLog.Printf("Checking PID file: %s", pidFilePath)
	pf, err := pidfile.New(pidFilePath)
	if err != nil {
		errLog.Printf("Failed to create PID file: %v", err)
		if errors.Is(err, pidfile.ErrAlreadyRunning) {
			errLog.Printf("If you're sure no other instance is running, remove: %s", pidFilePath)
		}
		return exitFailure
	}
	defer func() {
		outLog.Println("Cleaning up before exit...")
		if err := pf.Remove(); err != nil {
			errLog.Printf("Warning: failed to remove PID file: %v", err)
		}
	}()

	diag, err := diaglog.New(diaglog.DefaultPath())
	if err != nil {
		errLog.Printf("Failed to open diagnostic log, continuing without it: %v", err)
		diag = diaglog.NewNoOp()
	}
	defer diag.Close()
	if diag.Enabled() {
		outLog.Printf("[STARTUP] Diagnostic logging to %s", diaglog.DefaultPath())
	}

	if err := child_process_manager.InitializeChildProcessManager(); err != nil {
		errLog.Printf("[STARTUP] Child process manager unavailable, capture may outlive a crash: %v", err)
	} else {
		defer child_process_manager.DisposeChildProcessManager()
	}

	gw, err := buildGateway(cfg, diag)
	if err != nil {
		errLog.Printf("[STARTUP] Failed to set up media backend: %v", err)
		return exitFailure
	}
	outLog.Printf("[STARTUP] Media backend: %s, recording to %s", gw.Name(), cfg.RecordingPath())

	rt := newRuntime(cfg, gw, outLog, errLog, diag)
	outLog.Printf("[STARTUP] Session %s", rt.ctrl.SessionID())
	if err := rt.prepare(); err != nil {
		if errors.Is(err, media.ErrPermissionDenied) {
			errLog.Println("Microphone access is required. Grant it in System Settings > Privacy & Security > Microphone, or check capture.device_path.")
			return exitPermissionDenied
		}
		errLog.Printf("[STARTUP] %v", err)
		return exitFailure
	}

	if cfg.StatusAddr != "" {
		ws := statusws.New(cfg.StatusAddr)
		ws.SetLogger(diag)
		if err := ws.Start(); err != nil {
			errLog.Printf("[STARTUP] Status server disabled: %v", err)
		} else {
			outLog.Printf("[STARTUP] Status server listening on %s", statusws.URL(ws.Addr()))
			rt.attachStatusServer(ws)
			defer ws.Close()
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go rt.watchCommands(ctx)

	outLog.Println("[STARTUP] Ready")
	rt.loop(ctx)
	outLog.Println("===========================================")
	return exitOK
}

func buildGateway(cfg *config.Config, diag *diaglog.Logger) (media.Gateway, error) {
	exec := execgw.New(execgw.Options{
		CaptureCommand:  cfg.Capture.Command,
		PlaybackCommand: cfg.Playback.Command,
		DevicePath:      cfg.Capture.DevicePath,
		Settle:          cfg.Settle(),
		StopTimeout:     cfg.StopTimeout(),
	})
	exec.SetLogger(diag)

	if cfg.Playback.Backend == config.BackendNSSound {
		player, err := nsgw.New()
		if err != nil {
			return nil, err
		}
		return media.Combine(exec.Name()+"+"+nsgw.Name, exec, player), nil
	}
	return media.Combine(exec.Name(), exec, exec), nil
}

func exportDiag() int {
	diaglog.Version = version.Version
	path, n, err := diaglog.Export(diaglog.DefaultPath(), ".")
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		if os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "hint: run with %s=true to enable logging\n", diaglog.DebugEnv)
			return 1
		}
		return 2
	}
	fmt.Printf("Wrote: %s (%d lines)\n", path, n)
	return 0
}

// initLogging sets up log files with rotation support
func initLogging(logDir string) error {
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return err
	}

	outLogPath := filepath.Join(logDir, appName+".out.log")
	errLogPath := filepath.Join(logDir, appName+".err.log")

	if err := rotateLogIfNeeded(outLogPath, maxLogSize); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to rotate out log: %v\n", err)
	}
	if err := rotateLogIfNeeded(errLogPath, maxLogSize); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to rotate err log: %v\n", err)
	}

	outFile, err := os.OpenFile(outLogPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return err
	}
	errFile, err := os.OpenFile(errLogPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		_ = outFile.Close()
		return err
	}

	outLog = log.New(outFile, logPrefix+" ", log.LstdFlags)
	errLog = log.New(errFile, logPrefix+" ERROR: ", log.LstdFlags)
	return nil
}

// rotateLogIfNeeded rotates a log file if it exceeds maxSize bytes
func rotateLogIfNeeded(logPath string, maxSize int64) error {
	info, err := os.Stat(logPath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if info.Size() < maxSize {
		return nil
	}

	// Rotate: rename current log to .old, removing previous .old
	oldPath := logPath + ".old"
	if err := os.Remove(oldPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove old log: %w", err)
	}
	return os.Rename(logPath, oldPath)
}
