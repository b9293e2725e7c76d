// Package config loads voxbox settings from a JSON or TOML file with
// environment overrides on top.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Backends accepted in the capture and playback sections.
const (
	BackendExec    = "exec"
	BackendNSSound = "nssound"
)

// PathPlaceholder marks where the recording path goes in a command line.
const PathPlaceholder = "{path}"

const (
	DefaultRecordingFile = "recording.wav"
	DefaultStatusAddr    = "127.0.0.1:4466"
	DefaultSettleMs      = 300
	DefaultStopTimeout   = 5
)

// CaptureConfig selects and tunes the capture backend.
type CaptureConfig struct {
	Backend            string   `json:"backend" toml:"backend"`                           // Only "exec" today
	Command            []string `json:"command" toml:"command"`                           // argv with {path}
	DevicePath         string   `json:"device_path,omitempty" toml:"device_path"`         // Must be readable to record
	SettleMs           int      `json:"settle_ms" toml:"settle_ms"`                       // Startup survival window
	StopTimeoutSeconds int      `json:"stop_timeout_seconds" toml:"stop_timeout_seconds"` // Grace before kill
}

// PlaybackConfig selects and tunes the playback backend.
type PlaybackConfig struct {
	Backend string   `json:"backend" toml:"backend"` // "exec" or "nssound"
	Command []string `json:"command" toml:"command"` // argv with {path}, exec only
}

// Config holds all daemon settings.
type Config struct {
	CacheDir      string         `json:"cache_dir" toml:"cache_dir"`           // cmd.txt, status.json, pid, recording
	RecordingFile string         `json:"recording_file" toml:"recording_file"` // File name inside CacheDir
	LogDir        string         `json:"log_dir" toml:"log_dir"`               // Operational logs
	StatusAddr    string         `json:"status_addr" toml:"status_addr"`       // Websocket listen address, "" disables
	Capture       CaptureConfig  `json:"capture" toml:"capture"`
	Playback      PlaybackConfig `json:"playback" toml:"playback"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		CacheDir:      defaultCacheDir(),
		RecordingFile: DefaultRecordingFile,
		LogDir:        os.TempDir(),
		StatusAddr:    DefaultStatusAddr,
		Capture: CaptureConfig{
			Backend:            BackendExec,
			Command:            defaultCaptureCommand(runtime.GOOS),
			SettleMs:           DefaultSettleMs,
			StopTimeoutSeconds: DefaultStopTimeout,
		},
		Playback: PlaybackConfig{
			Backend: BackendExec,
			Command: []string{"ffplay", "-nodisp", "-autoexit", "-loglevel", "error", PathPlaceholder},
		},
	}
}

func defaultCaptureCommand(goos string) []string {
	input := []string{"-f", "alsa", "-i", "default"}
	if goos == "darwin" {
		input = []string{"-f", "avfoundation", "-i", ":default"}
	}
	argv := append([]string{"ffmpeg"}, input...)
	return append(argv, "-ac", "1", "-ar", "16000", "-y", PathPlaceholder)
}

// Load reads path, or the default location when path is empty. A missing
// file at the default location yields Default(); a missing explicit path is
// an error. Files ending in .toml are decoded as TOML, everything else as
// JSON. Environment overrides are applied last, then the result is validated.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}

	cfg := Default()
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := decode(path, data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	case os.IsNotExist(err) && !explicit:
		// Defaults only.
	default:
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	applyEnvOverrides(cfg)
	cfg.CacheDir = expandTilde(cfg.CacheDir)
	cfg.LogDir = expandTilde(cfg.LogDir)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(path string, data []byte, cfg *Config) error {
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		_, err := toml.Decode(string(data), cfg)
		return err
	}
	return json.Unmarshal(data, cfg)
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("VOXBOX_CACHE_DIR"); v != "" {
		cfg.CacheDir = v
	}
	if v, ok := os.LookupEnv("VOXBOX_STATUS_ADDR"); ok {
		// Set but empty disables the websocket server.
		cfg.StatusAddr = v
	}
	if v := os.Getenv("VOXBOX_LOG_DIR"); v != "" {
		cfg.LogDir = v
	}
}

// Validate checks Config for validity
func (c *Config) Validate() error {
	if c.CacheDir == "" {
		return fmt.Errorf("cache_dir must not be empty")
	}
	if c.RecordingFile == "" || strings.ContainsAny(c.RecordingFile, `/\`) {
		return fmt.Errorf("recording_file must be a plain file name, got %q", c.RecordingFile)
	}
	if c.Capture.Backend != BackendExec {
		return fmt.Errorf("capture.backend must be %q, got %q", BackendExec, c.Capture.Backend)
	}
	if err := validateCommand("capture.command", c.Capture.Command); err != nil {
		return err
	}
	if c.Capture.SettleMs < 0 {
		return fmt.Errorf("capture.settle_ms must not be negative, got %d", c.Capture.SettleMs)
	}
	if c.Capture.StopTimeoutSeconds < 1 {
		return fmt.Errorf("capture.stop_timeout_seconds must be at least 1, got %d", c.Capture.StopTimeoutSeconds)
	}
	switch c.Playback.Backend {
	case BackendExec:
		if err := validateCommand("playback.command", c.Playback.Command); err != nil {
			return err
		}
	case BackendNSSound:
	default:
		return fmt.Errorf("playback.backend must be %q or %q, got %q", BackendExec, BackendNSSound, c.Playback.Backend)
	}
	return nil
}

func validateCommand(field string, argv []string) error {
	if len(argv) == 0 || argv[0] == "" {
		return fmt.Errorf("%s must not be empty", field)
	}
	for _, a := range argv[1:] {
		if strings.Contains(a, PathPlaceholder) {
			return nil
		}
	}
	return fmt.Errorf("%s must contain %s", field, PathPlaceholder)
}

// RecordingPath is the fixed location of the recording.
func (c *Config) RecordingPath() string {
	return filepath.Join(c.CacheDir, c.RecordingFile)
}

// Settle returns the capture settle window as a duration.
func (c *Config) Settle() time.Duration {
	return time.Duration(c.Capture.SettleMs) * time.Millisecond
}

// StopTimeout returns the capture/playback stop grace period.
func (c *Config) StopTimeout() time.Duration {
	return time.Duration(c.Capture.StopTimeoutSeconds) * time.Second
}

// DefaultPath is $XDG_CONFIG_HOME/voxbox/config.json, falling back to
// ~/.config/voxbox/config.json.
func DefaultPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "voxbox", "config.json")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".config", "voxbox", "config.json")
	}
	return filepath.Join(".", "voxbox.json")
}

func defaultCacheDir() string {
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".cache", "voxbox")
	}
	return filepath.Join(os.TempDir(), "voxbox")
}

func expandTilde(path string) string {
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
