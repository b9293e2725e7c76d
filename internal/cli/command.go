package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/tiroq/voxbox/internal/ipc"
	"github.com/tiroq/voxbox/internal/output"
	"github.com/tiroq/voxbox/internal/pidfile"
	"github.com/tiroq/voxbox/internal/statusws"
)

const (
	daemonName = "voxbox-core"
	dialWait   = 2 * time.Second
)

func NewPressCmd(deps *Dependencies) *cobra.Command {
	return newSendCmd(deps, "press", "Press the main button (record, stop, play)", ipc.CmdPrimary)
}

func NewResetCmd(deps *Dependencies) *cobra.Command {
	return newSendCmd(deps, "reset", "Discard the current recording", ipc.CmdReset)
}

func NewQuitCmd(deps *Dependencies) *cobra.Command {
	return newSendCmd(deps, "quit", "Stop the daemon, finalizing any active recording", ipc.CmdQuit)
}

// newSendCmd delivers command over the status websocket when the daemon
// serves one, and through cmd.txt otherwise. quit always uses the file.
func newSendCmd(deps *Dependencies, use, short string, command ipc.Command) *cobra.Command {
	var fileOnly bool

	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := output.NewFormatter(deps.Out)

			if intent, ok := command.Intent(); ok && !fileOnly && deps.Config.StatusAddr != "" {
				ctx, cancel := context.WithTimeout(cmd.Context(), dialWait)
				err := statusws.SendIntent(ctx, statusws.URL(deps.Config.StatusAddr), intent)
				cancel()
				if err == nil {
					f.CommandSent(command)
					return nil
				}
			}

			if _, running := daemonRunning(deps); !running {
				f.Warning(daemonName + " is not running; start it before sending commands")
			}
			if err := ipc.WriteCommand(deps.Config.CacheDir, command); err != nil {
				return fmt.Errorf("writing command: %w", err)
			}
			f.CommandSent(command)
			return nil
		},
	}
	cmd.Flags().BoolVar(&fileOnly, "file", false, "Always deliver through "+ipc.CommandFile)
	return cmd
}

func daemonRunning(deps *Dependencies) (int, bool) {
	return pidfile.Running(pidfile.PathFor(deps.Config.CacheDir, daemonName))
}
