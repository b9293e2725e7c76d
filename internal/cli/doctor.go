package cli

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/tiroq/voxbox/internal/config"
	"github.com/tiroq/voxbox/internal/output"
)

func NewDoctorCmd(deps *Dependencies) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check prerequisites",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := output.NewFormatter(deps.Out)
			if runChecks(deps.Config, f) {
				f.Success("\nAll prerequisites met. Ready to record!")
			} else {
				f.Warning("\nSome prerequisites are missing.")
			}
			if pid, running := daemonRunning(deps); running {
				f.SetupCheck(daemonName, true, fmt.Sprintf("running (PID %d)", pid))
			} else {
				f.SetupCheck(daemonName, false, "not running")
			}
			return nil
		},
	}
}

// runChecks reports each prerequisite and whether all of them passed.
func runChecks(cfg *config.Config, f *output.Formatter) bool {
	ok := true

	if bin, err := exec.LookPath(cfg.Capture.Command[0]); err != nil {
		f.SetupCheck("Capture command", false, cfg.Capture.Command[0]+" not found. Install with: brew install ffmpeg")
		ok = false
	} else {
		f.SetupCheck("Capture command", true, bin)
	}

	if cfg.Capture.DevicePath != "" {
		if fh, err := os.Open(cfg.Capture.DevicePath); err != nil {
			f.SetupCheck("Capture device", false, err.Error())
			ok = false
		} else {
			_ = fh.Close()
			f.SetupCheck("Capture device", true, cfg.Capture.DevicePath)
		}
	}

	switch cfg.Playback.Backend {
	case config.BackendExec:
		if bin, err := exec.LookPath(cfg.Playback.Command[0]); err != nil {
			f.SetupCheck("Playback command", false, cfg.Playback.Command[0]+" not found")
			ok = false
		} else {
			f.SetupCheck("Playback command", true, bin)
		}
	case config.BackendNSSound:
		f.SetupCheck("Playback", true, "NSSound (macOS only)")
	}

	if err := checkWritable(cfg.CacheDir); err != nil {
		f.SetupCheck("Cache directory", false, err.Error())
		ok = false
	} else {
		f.SetupCheck("Cache directory", true, cfg.CacheDir)
	}

	if cfg.StatusAddr != "" {
		f.SetupCheck("Status server", true, cfg.StatusAddr)
	} else {
		f.SetupCheck("Status server", true, "disabled")
	}
	return ok
}

func checkWritable(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	probe := filepath.Join(dir, ".voxbox-doctor")
	if err := os.WriteFile(probe, []byte("ok"), 0644); err != nil {
		return err
	}
	return os.Remove(probe)
}
